package message

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

func TestCloneSharesPayload(t *testing.T) {
	msg := New([]byte("payload"), nil)
	clone := msg.Clone()

	if &msg.Bytes()[0] != &clone.Bytes()[0] {
		t.Fatal("expected clone to share the payload storage")
	}
	if msg.Refs() != 2 {
		t.Fatalf("expected refcount 2, got %d", msg.Refs())
	}

	clone.Free()
	if msg.Refs() != 1 {
		t.Fatalf("expected refcount 1 after freeing clone, got %d", msg.Refs())
	}
	if !bytes.Equal(msg.Bytes(), []byte("payload")) {
		t.Fatal("expected payload to stay alive while a handle remains")
	}

	msg.Free()
	if msg.Bytes() != nil {
		t.Fatal("expected payload to be released when the last handle is freed")
	}
}

func TestConcurrentCloneFree(t *testing.T) {
	msg := New([]byte("shared"), nil)

	const workers = 16
	const rounds = 200

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				clone := msg.Clone()
				if clone.Len() != 6 {
					t.Error("payload released while handles remain")
					return
				}
				clone.Free()
			}
		}()
	}
	wg.Wait()

	if msg.Refs() != 1 {
		t.Fatalf("expected refcount 1 after all clones freed, got %d", msg.Refs())
	}
	msg.Free()
	if msg.Bytes() != nil {
		t.Fatal("expected payload released exactly once at refcount zero")
	}
}

func TestMetadataLookup(t *testing.T) {
	md := []Metadata{
		{ID: 1, Value: Int64Value(42)},
		{ID: 2, Value: Float64Value(2.5)},
		{ID: 3, Value: DurationValue(1500 * time.Millisecond)},
	}
	msg := New(nil, md)
	defer msg.Free()

	if v, ok := msg.Metadata(1).Value.Int64(); !ok || v != 42 {
		t.Fatalf("expected int64 42, got %v ok=%v", v, ok)
	}
	if v, ok := msg.Metadata(2).Value.Float64(); !ok || v != 2.5 {
		t.Fatalf("expected float64 2.5, got %v ok=%v", v, ok)
	}
	if d, ok := msg.Metadata(3).Value.Duration(); !ok || d != 1500*time.Millisecond {
		t.Fatalf("expected duration 1.5s, got %v ok=%v", d, ok)
	}

	if !msg.Metadata(9).IsEmpty() {
		t.Fatal("expected absent id to yield the Empty sentinel")
	}
	if !msg.Metadata(0).IsEmpty() {
		t.Fatal("expected zero id to yield the Empty sentinel")
	}
}

func TestDurationParts(t *testing.T) {
	v := DurationValue(2*time.Second + 750*time.Millisecond)
	secs, nsecs, ok := v.DurationParts()
	if !ok || secs != 2 || nsecs != 750_000_000 {
		t.Fatalf("expected (2, 750000000), got (%d, %d) ok=%v", secs, nsecs, ok)
	}
	if nsecs >= 1_000_000_000 {
		t.Fatal("nanoseconds part must stay below one second")
	}

	if _, _, ok := Int64Value(1).DurationParts(); ok {
		t.Fatal("expected non-duration variant to report ok=false")
	}
}

func TestBufferAccumulatesAndTakes(t *testing.T) {
	buf := NewBuffer()

	if _, err := buf.Write([]byte("hello ")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := buf.WriteString("world"); err != nil {
		t.Fatalf("write string failed: %v", err)
	}
	if buf.Len() != 11 {
		t.Fatalf("expected accumulated length 11, got %d", buf.Len())
	}

	first := buf.TakeMsg()
	defer first.Free()
	if string(first.Bytes()) != "hello world" {
		t.Fatalf("unexpected first payload %q", first.Bytes())
	}
	if first.Refs() != 1 {
		t.Fatalf("expected taken message refcount 1, got %d", first.Refs())
	}
	if buf.Len() != 0 {
		t.Fatal("expected buffer to reset after take")
	}

	buf.Write([]byte("second"))
	second := buf.TakeMsg()
	defer second.Free()
	if string(second.Bytes()) != "second" {
		t.Fatalf("unexpected second payload %q", second.Bytes())
	}
	if string(first.Bytes()) != "hello world" {
		t.Fatal("expected first message to stay disjoint from later writes")
	}
}

func TestBufferMetadataUpsert(t *testing.T) {
	buf := NewBuffer()
	buf.SetMetadata(Metadata{ID: 7, Value: Int64Value(1)})
	buf.SetMetadata(Metadata{ID: 8, Value: Int64Value(2)})
	buf.SetMetadata(Metadata{ID: 7, Value: Int64Value(99)})
	buf.SetMetadata(Metadata{ID: 0, Value: Int64Value(5)}) // sentinel, ignored

	msg := buf.TakeMsg()
	defer msg.Free()

	if v, _ := msg.Metadata(7).Value.Int64(); v != 99 {
		t.Fatalf("expected repeated id to overwrite, got %d", v)
	}
	if v, _ := msg.Metadata(8).Value.Int64(); v != 2 {
		t.Fatalf("expected id 8 to keep value 2, got %d", v)
	}
	if len(msg.shared.metadata) != 2 {
		t.Fatalf("expected 2 metadata entries, got %d", len(msg.shared.metadata))
	}
}
