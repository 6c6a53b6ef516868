// Package stat provides a pass-through element that reports message
// throughput at a configured interval.
package stat

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/plugflow/plugflow"
	"github.com/plugflow/plugflow/elements"
)

// Name registers the statistics filter element.
const Name = "stat-filter"

// Output receives the statistics lines. Overridable for tests.
var Output io.Writer = os.Stderr

func init() {
	elements.Register(plugflow.Spec{
		Name:      Name,
		RecvPorts: 1,
		SendPorts: 1,
		New:       newFilter,
	})
}

type filterConf struct {
	// IntervalMs is the reporting interval in milliseconds.
	IntervalMs float64 `json:"interval_ms"`
}

type filter struct {
	interval time.Duration
	count    int
	bytes    int
	before   time.Time
}

func newFilter(conf []byte) (plugflow.Element, error) {
	c, err := plugflow.DecodeConf[filterConf](conf)
	if err != nil {
		return nil, err
	}
	return &filter{
		interval: time.Duration(c.IntervalMs * float64(time.Millisecond)),
		before:   time.Now(),
	}, nil
}

func (f *filter) Step(ctx *plugflow.Context, recv *plugflow.Receiver) (plugflow.Result, error) {
	msg, ok := recv.Recv(0)
	if !ok {
		return plugflow.ResultClose, nil
	}
	f.count++
	f.bytes += msg.Len()

	if now := time.Now(); now.Sub(f.before) > f.interval {
		fmt.Fprintf(Output, "count = %d, bytes = %d\n", f.count, f.bytes)
		f.count = 0
		f.bytes = 0
		f.before = now
	}

	if err := ctx.SetResultMsg(0, msg); err != nil {
		msg.Free()
		return 0, err
	}
	return plugflow.ResultMsg, nil
}
