package tee

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

func TestTeePairCopiesStream(t *testing.T) {
	filterSpec, ok := elements.DefaultBank.Lookup(FilterName)
	require.True(t, ok)
	srcSpec, ok := elements.DefaultBank.Lookup(SrcName)
	require.True(t, ok)

	var direct, copied []string
	bank := plugflow.NewBank()
	require.NoError(t, bank.Register(filterSpec))
	require.NoError(t, bank.Register(srcSpec))
	require.NoError(t, bank.Register(plugflow.Spec{
		Name:      "feed-src",
		SendPorts: 1,
		New: func([]byte) (plugflow.Element, error) {
			return &feedSource{payloads: []string{"one", "two", "three"}}, nil
		},
	}))
	require.NoError(t, bank.Register(plugflow.Spec{
		Name:      "direct-sink",
		RecvPorts: 1,
		New: func([]byte) (plugflow.Element, error) {
			return &gatherSink{got: &direct}, nil
		},
	}))
	require.NoError(t, bank.Register(plugflow.Spec{
		Name:      "copy-sink",
		RecvPorts: 1,
		New: func([]byte) (plugflow.Element, error) {
			return &gatherSink{got: &copied}, nil
		},
	}))

	conf := &plugflow.Config{Tasks: []plugflow.TaskConf{
		{ID: 1, Element: "feed-src"},
		{ID: 2, Element: FilterName,
			From: [][]plugflow.TaskPort{{{ID: 1, Port: 0}}},
			Conf: map[string]any{"name": "tee-pair-test"}},
		{ID: 3, Element: "direct-sink", From: [][]plugflow.TaskPort{{{ID: 2, Port: 0}}}},
		{ID: 4, Element: SrcName, Conf: map[string]any{"name": "tee-pair-test"}},
		{ID: 5, Element: "copy-sink", From: [][]plugflow.TaskPort{{{ID: 4, Port: 0}}}},
	}}

	runner, err := plugflow.NewRunner(conf, plugflow.NopLogger(), plugflow.Options{Bank: bank})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Run(ctx))
	require.NoError(t, ctx.Err(), "pipeline did not terminate on its own")

	want := []string{"one", "two", "three"}
	assert.Equal(t, want, direct)
	assert.Equal(t, want, copied)
}

func TestFilterNameDuplication(t *testing.T) {
	first, err := newFilter([]byte(`{"name": "dup-test"}`))
	require.NoError(t, err)
	defer first.(interface{ Close() error }).Close()

	_, err = newFilter([]byte(`{"name": "dup-test"}`))
	assert.Error(t, err)
}

func TestSrcUnknownName(t *testing.T) {
	elem, err := newSrc([]byte(`{"name": "never-registered"}`))
	require.NoError(t, err)

	_, err = elem.(*src).Step(nil, nil)
	assert.Error(t, err)
}
