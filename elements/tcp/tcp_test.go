package tcp

import (
	"context"
	"io"
	"net"
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

func TestSinkWritesToRemote(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			received <- nil
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- data
	}()

	sinkSpec, ok := elements.DefaultBank.Lookup(SinkName)
	require.True(t, ok)

	bank := plugflow.NewBank()
	require.NoError(t, bank.Register(sinkSpec))
	require.NoError(t, bank.Register(plugflow.Spec{
		Name:      "feed-src",
		SendPorts: 1,
		New: func([]byte) (plugflow.Element, error) {
			return &feedSource{payloads: []string{"hel", "lo"}}, nil
		},
	}))

	conf := &plugflow.Config{Tasks: []plugflow.TaskConf{
		{ID: 1, Element: "feed-src"},
		{ID: 2, Element: SinkName,
			From: [][]plugflow.TaskPort{{{ID: 1, Port: 0}}},
			Conf: map[string]any{"addr": listener.Addr().String()}},
	}}
	runner, err := plugflow.NewRunner(conf, plugflow.NopLogger(), plugflow.Options{Bank: bank})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Run(ctx))
	require.NoError(t, ctx.Err(), "pipeline did not terminate on its own")

	select {
	case data := <-received:
		assert.Equal(t, "hello", string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("remote end received nothing")
	}
}

func TestSrcEmitsClientData(t *testing.T) {
	// Listen first to learn a free port, then hand the address to the
	// element after closing our listener.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := probe.Addr().String()
	require.NoError(t, probe.Close())

	elem, err := newSrc([]byte(`{"addr": "` + addr + `"}`))
	require.NoError(t, err)
	source := elem.(*src)
	defer source.Close()

	go func() {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return
		}
		conn.Write([]byte("ping"))
		conn.Close()
	}()

	conn, err := source.listener.Accept()
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
	conn.Close()
}

func TestSrcRequiresAddr(t *testing.T) {
	_, err := newSrc([]byte(`{}`))
	assert.Error(t, err)
}

func TestSinkRequiresAddr(t *testing.T) {
	_, err := newSink([]byte(`{}`))
	assert.Error(t, err)
}
