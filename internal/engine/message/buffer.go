package message

const initialBufferCap = 1024

// Buffer accumulates payload bytes and pending metadata for one outgoing
// message. It is owned exclusively by the element that obtained it until
// TakeMsg converts the contents into an immutable Message.
type Buffer struct {
	buf      []byte
	metadata []Metadata
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{buf: make([]byte, 0, initialBufferCap)}
}

// Write appends p to the accumulated payload. It implements io.Writer and
// never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// WriteString appends s to the accumulated payload.
func (b *Buffer) WriteString(s string) (int, error) {
	b.buf = append(b.buf, s...)
	return len(s), nil
}

// SetMetadata upserts an entry: a later entry with the same id replaces the
// earlier one. Entries with the zero sentinel id are ignored.
func (b *Buffer) SetMetadata(md Metadata) {
	if md.ID == 0 {
		return
	}
	for i := range b.metadata {
		if b.metadata[i].ID == md.ID {
			b.metadata[i] = md
			return
		}
	}
	b.metadata = append(b.metadata, md)
}

// Len returns the number of accumulated payload bytes.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// TakeMsg converts the current contents into a new Message with reference
// count 1 and resets the buffer to empty, ready for reuse. Subsequent writes
// are disjoint from the taken message.
func (b *Buffer) TakeMsg() *Message {
	payload := make([]byte, len(b.buf))
	copy(payload, b.buf)

	var metadata []Metadata
	if len(b.metadata) > 0 {
		metadata = make([]Metadata, len(b.metadata))
		copy(metadata, b.metadata)
	}

	b.Reset()
	return New(payload, metadata)
}

// Reset discards the accumulated contents without producing a Message.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.metadata = b.metadata[:0]
}
