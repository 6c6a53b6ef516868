// Package printlog provides a pass-through element that periodically logs
// how many messages and bytes crossed it, tagged for identification.
package printlog

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/plugflow/plugflow"
	"github.com/plugflow/plugflow/elements"
)

// Name registers the print log filter element.
const Name = "print-log-filter"

// Output modes.
const (
	OutputLogTrace = "log-trace"
	OutputStderr   = "stderr"
)

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
	// Tag identifies this filter in its output lines.
	Tag string `json:"tag"`
	// Output selects "log-trace" or "stderr".
	Output string `json:"output"`
}

type filter struct {
	conf     filterConf
	interval time.Duration
	log      plugflow.Logger

	count  int
	bytes  int
	before time.Time
}

func newFilter(conf []byte) (plugflow.Element, error) {
	c, err := plugflow.DecodeConf[filterConf](conf)
	if err != nil {
		return nil, err
	}
	switch c.Output {
	case OutputLogTrace, OutputStderr:
	case "":
		c.Output = OutputStderr
	default:
		return nil, fmt.Errorf("print-log-filter: unknown output %q", c.Output)
	}
	return &filter{
		conf:     c,
		interval: time.Duration(c.IntervalMs * float64(time.Millisecond)),
		log:      plugflow.NewLogger(slog.Default()),
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
		f.report()
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

func (f *filter) report() {
	switch f.conf.Output {
	case OutputLogTrace:
		f.log.Trace("passed messages", plugflow.LogFields{
			"tag":   f.conf.Tag,
			"msgs":  f.count,
			"bytes": f.bytes,
		})
	case OutputStderr:
		fmt.Fprintf(os.Stderr, "[%s] %d msgs, %d bytes\n", f.conf.Tag, f.count, f.bytes)
	}
}
