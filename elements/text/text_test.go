package text

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugflow/plugflow"
	"github.com/plugflow/plugflow/elements"
)

type feedSource struct {
	payloads []string
}

func (s *feedSource) Step(ctx *plugflow.Context, _ *plugflow.Receiver) (plugflow.Result, error) {
	if ctx.Closing() || len(s.payloads) == 0 {
		return plugflow.ResultClose, nil
	}
	buf, err := ctx.MsgBuf(0)
	if err != nil {
		return 0, err
	}
	buf.WriteString(s.payloads[0])
	s.payloads = s.payloads[1:]
	return plugflow.ResultMsgBuf, nil
}

type gatherSink struct {
	got *[]string
}

func (s *gatherSink) Step(_ *plugflow.Context, recv *plugflow.Receiver) (plugflow.Result, error) {
	msg, ok := recv.Recv(0)
	if !ok {
		return plugflow.ResultClose, nil
	}
	*s.got = append(*s.got, string(msg.Bytes()))
	msg.Free()
	return plugflow.ResultMsg, nil
}

func splitBank(t *testing.T, payloads []string, got *[]string) *plugflow.Bank {
	t.Helper()

	spec, ok := elements.DefaultBank.Lookup(SplitByDelimiterName)
	require.True(t, ok)

	bank := plugflow.NewBank()
	require.NoError(t, bank.Register(spec))
	require.NoError(t, bank.Register(plugflow.Spec{
		Name:      "feed-src",
		SendPorts: 1,
		New: func([]byte) (plugflow.Element, error) {
			return &feedSource{payloads: payloads}, nil
		},
	}))
	require.NoError(t, bank.Register(plugflow.Spec{
		Name:      "gather-sink",
		RecvPorts: 1,
		New: func([]byte) (plugflow.Element, error) {
			return &gatherSink{got: got}, nil
		},
	}))
	return bank
}

func runSplit(t *testing.T, delimiter string, payloads []string) []string {
	t.Helper()

	var got []string
	bank := splitBank(t, payloads, &got)
	elementConf := map[string]any{}
	if delimiter != "" {
		elementConf["delimiter"] = delimiter
	}
	conf := &plugflow.Config{Tasks: []plugflow.TaskConf{
		{ID: 1, Element: "feed-src"},
		{ID: 2, Element: SplitByDelimiterName,
			From: [][]plugflow.TaskPort{{{ID: 1, Port: 0}}},
			Conf: elementConf},
		{ID: 3, Element: "gather-sink", From: [][]plugflow.TaskPort{{{ID: 2, Port: 0}}}},
	}}

	runner, err := plugflow.NewRunner(conf, plugflow.NopLogger(), plugflow.Options{Bank: bank})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Run(ctx))
	require.NoError(t, ctx.Err(), "pipeline did not terminate on its own")
	return got
}

func TestSplitByDelimiter(t *testing.T) {
	tests := []struct {
		name      string
		delimiter string
		payloads  []string
		want      []string
	}{
		{
			name:     "default newline",
			payloads: []string{"foo\nbar\n"},
			want:     []string{"foo", "bar"},
		},
		{
			name:      "delimiter spanning messages",
			delimiter: "EOS",
			payloads:  []string{"hogeEO", "Sfuga", "EOS"},
			want:      []string{"hoge", "fuga"},
		},
		{
			name:      "several segments in one message",
			delimiter: ",",
			payloads:  []string{"a,b,c,"},
			want:      []string{"a", "b", "c"},
		},
		{
			name:      "trailing segment without delimiter dropped",
			delimiter: ",",
			payloads:  []string{"a,b"},
			want:      []string{"a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runSplit(t, tt.delimiter, tt.payloads))
		})
	}
}

func TestTextSrcEmitsUntilClosed(t *testing.T) {
	spec, ok := elements.DefaultBank.Lookup(SrcName)
	require.True(t, ok)

	var got []string
	bank := plugflow.NewBank()
	require.NoError(t, bank.Register(spec))
	require.NoError(t, bank.Register(plugflow.Spec{
		Name:      "gather-sink",
		RecvPorts: 1,
		New: func([]byte) (plugflow.Element, error) {
			return &gatherSink{got: &got}, nil
		},
	}))

	conf := &plugflow.Config{Tasks: []plugflow.TaskConf{
		{ID: 1, Element: SrcName, Conf: map[string]any{"text": "tick", "interval_ms": 1.0}},
		{ID: 2, Element: "gather-sink", From: [][]plugflow.TaskPort{{{ID: 1, Port: 0}}}},
	}}
	runner, err := plugflow.NewRunner(conf, plugflow.NopLogger(), plugflow.Options{Bank: bank})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not close after cancellation")
	}

	require.NotEmpty(t, got)
	for _, payload := range got {
		assert.Equal(t, "tick", payload)
	}
}

func TestTextSrcRequiresText(t *testing.T) {
	_, err := newSrc([]byte(`{}`))
	assert.Error(t, err)
}
