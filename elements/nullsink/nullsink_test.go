package nullsink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plugflow/plugflow"
	"github.com/plugflow/plugflow/elements"
)

type feedSource struct {
	remaining int
}

func (s *feedSource) Step(ctx *plugflow.Context, _ *plugflow.Receiver) (plugflow.Result, error) {
	if ctx.Closing() || s.remaining == 0 {
		return plugflow.ResultClose, nil
	}
	s.remaining--
	buf, err := ctx.MsgBuf(0)
	if err != nil {
		return 0, err
	}
	buf.WriteString("dropped")
	return plugflow.ResultMsgBuf, nil
}

func TestSinkDrainsSeveralSources(t *testing.T) {
	spec, ok := elements.DefaultBank.Lookup(Name)
	require.True(t, ok)

	bank := plugflow.NewBank()
	require.NoError(t, bank.Register(spec))
	require.NoError(t, bank.Register(plugflow.Spec{
		Name:      "feed-src",
		SendPorts: 1,
		New: func([]byte) (plugflow.Element, error) {
			return &feedSource{remaining: 10}, nil
		},
	}))

	// Two sources feeding two different null-sink ports; the rest of its 32
	// ports stay unwired.
	conf := &plugflow.Config{Tasks: []plugflow.TaskConf{
		{ID: 1, Element: "feed-src"},
		{ID: 2, Element: "feed-src"},
		{ID: 3, Element: Name, From: [][]plugflow.TaskPort{
			{{ID: 1, Port: 0}},
			{{ID: 2, Port: 0}},
		}},
	}}
	runner, err := plugflow.NewRunner(conf, plugflow.NopLogger(), plugflow.Options{Bank: bank})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Run(ctx))
	require.NoError(t, ctx.Err(), "pipeline did not terminate on its own")
}
