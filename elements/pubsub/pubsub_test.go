package pubsub

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

func TestBridgeDeliversAcrossBranches(t *testing.T) {
	sinkSpec, ok := elements.DefaultBank.Lookup(SinkName)
	require.True(t, ok)
	srcSpec, ok := elements.DefaultBank.Lookup(SrcName)
	require.True(t, ok)

	var got []string
	bank := plugflow.NewBank()
	require.NoError(t, bank.Register(sinkSpec))
	require.NoError(t, bank.Register(srcSpec))
	require.NoError(t, bank.Register(plugflow.Spec{
		Name:      "feed-src",
		SendPorts: 1,
		New: func([]byte) (plugflow.Element, error) {
			return &feedSource{payloads: []string{"alpha", "beta", "gamma"}}, nil
		},
	}))
	require.NoError(t, bank.Register(plugflow.Spec{
		Name:      "gather-sink",
		RecvPorts: 1,
		New: func([]byte) (plugflow.Element, error) {
			return &gatherSink{got: &got}, nil
		},
	}))

	elementConf := map[string]any{"bus": "bridge-test", "topic": "payloads"}
	conf := &plugflow.Config{Tasks: []plugflow.TaskConf{
		{ID: 1, Element: "feed-src"},
		{ID: 2, Element: SinkName,
			From: [][]plugflow.TaskPort{{{ID: 1, Port: 0}}},
			Conf: elementConf},
		{ID: 3, Element: SrcName, Conf: elementConf},
		{ID: 4, Element: "gather-sink", From: [][]plugflow.TaskPort{{{ID: 3, Port: 0}}}},
	}}

	runner, err := plugflow.NewRunner(conf, plugflow.NopLogger(), plugflow.Options{Bank: bank})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, runner.Run(ctx))
	require.NoError(t, ctx.Err(), "pipeline did not terminate on its own")

	assert.Equal(t, []string{"alpha", "beta", "gamma"}, got)
}

func TestConfRequiresTopic(t *testing.T) {
	_, err := newSink([]byte(`{"bus": "b"}`))
	assert.Error(t, err)

	_, err = newSrc([]byte(`{}`))
	assert.Error(t, err)
}
