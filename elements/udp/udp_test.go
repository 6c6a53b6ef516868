package udp

import (
	"context"
	"net"
	"sync"
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

type firstSink struct {
	mu  sync.Mutex
	got []byte
}

func (s *firstSink) Step(_ *plugflow.Context, recv *plugflow.Receiver) (plugflow.Result, error) {
	msg, ok := recv.Recv(0)
	if !ok {
		return plugflow.ResultClose, nil
	}
	s.mu.Lock()
	s.got = append([]byte(nil), msg.Bytes()...)
	s.mu.Unlock()
	msg.Free()
	return plugflow.ResultClose, nil
}

func TestSinkSendsDatagrams(t *testing.T) {
	remote, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer remote.Close()

	received := make(chan string, 2)
	go func() {
		buf := make([]byte, 64)
		for i := 0; i < 2; i++ {
			n, _, err := remote.ReadFrom(buf)
			if err != nil {
				return
			}
			received <- string(buf[:n])
		}
	}()

	sinkSpec, ok := elements.DefaultBank.Lookup(SinkName)
	require.True(t, ok)

	bank := plugflow.NewBank()
	require.NoError(t, bank.Register(sinkSpec))
	require.NoError(t, bank.Register(plugflow.Spec{
		Name:      "feed-src",
		SendPorts: 1,
		New: func([]byte) (plugflow.Element, error) {
			return &feedSource{payloads: []string{"one", "two"}}, nil
		},
	}))

	conf := &plugflow.Config{Tasks: []plugflow.TaskConf{
		{ID: 1, Element: "feed-src"},
		{ID: 2, Element: SinkName,
			From: [][]plugflow.TaskPort{{{ID: 1, Port: 0}}},
			Conf: map[string]any{"remote_addr": remote.LocalAddr().String()}},
	}}
	runner, err := plugflow.NewRunner(conf, plugflow.NopLogger(), plugflow.Options{Bank: bank})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Run(ctx))
	require.NoError(t, ctx.Err(), "pipeline did not terminate on its own")

	// Datagram boundaries are preserved, one message per datagram. Arrival
	// order is not part of the contract.
	var got []string
	for i := 0; i < 2; i++ {
		select {
		case data := <-received:
			got = append(got, data)
		case <-time.After(5 * time.Second):
			t.Fatal("remote end received nothing")
		}
	}
	assert.ElementsMatch(t, []string{"one", "two"}, got)
}

func TestSrcEmitsDatagram(t *testing.T) {
	srcSpec, ok := elements.DefaultBank.Lookup(SrcName)
	require.True(t, ok)

	// The source needs a known port before the pipeline starts. Bind a
	// throwaway socket to learn a free one.
	probe, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := probe.LocalAddr().String()
	require.NoError(t, probe.Close())

	sink := &firstSink{}
	bank := plugflow.NewBank()
	require.NoError(t, bank.Register(srcSpec))
	require.NoError(t, bank.Register(plugflow.Spec{
		Name:      "first-sink",
		RecvPorts: 1,
		New: func([]byte) (plugflow.Element, error) {
			return sink, nil
		},
	}))

	conf := &plugflow.Config{Tasks: []plugflow.TaskConf{
		{ID: 1, Element: SrcName, Conf: map[string]any{"bind_addr": addr}},
		{ID: 2, Element: "first-sink",
			From: [][]plugflow.TaskPort{{{ID: 1, Port: 0}}}},
	}}
	runner, err := plugflow.NewRunner(conf, plugflow.NopLogger(), plugflow.Options{Bank: bank})
	require.NoError(t, err)

	// Keep sending until the pipeline winds down so the blocked read always
	// wakes up and observes the closing flag.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		conn, err := net.Dial("udp", addr)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			conn.Write([]byte("ping"))
			select {
			case <-stop:
				return
			case <-time.After(20 * time.Millisecond):
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Run(ctx))
	require.NoError(t, ctx.Err(), "pipeline did not terminate on its own")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, "ping", string(sink.got))
}

func TestSrcRequiresBindAddr(t *testing.T) {
	_, err := newSrc([]byte(`{}`))
	assert.Error(t, err)
}

func TestSinkRequiresRemoteAddr(t *testing.T) {
	_, err := newSink([]byte(`{}`))
	assert.Error(t, err)
}
