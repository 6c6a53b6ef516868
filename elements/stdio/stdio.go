// Package stdio provides the stdout sink element.
package stdio

import (
	"bufio"
	"io"
	"os"

	"github.com/plugflow/plugflow"
	"github.com/plugflow/plugflow/elements"
)

// SinkName registers the stdout sink element.
const SinkName = "stdout-sink"

// Stdout is the sink's destination. Overridable for tests.
var Stdout io.Writer = os.Stdout

func init() {
	elements.Register(plugflow.Spec{
		Name:      SinkName,
		RecvPorts: 1,
		New:       newSink,
	})
}

type sinkConf struct {
	// FlushSize delays flushing until this many bytes are buffered. Zero
	// flushes after every message.
	FlushSize int `json:"flush_size"`
	// Separator is written after every message.
	Separator string `json:"separator"`
}

type sink struct {
	conf sinkConf
	out  *bufio.Writer
}

func newSink(conf []byte) (plugflow.Element, error) {
	c, err := plugflow.DecodeConf[sinkConf](conf)
	if err != nil {
		return nil, err
	}
	return &sink{conf: c, out: bufio.NewWriter(Stdout)}, nil
}

func (s *sink) Step(_ *plugflow.Context, recv *plugflow.Receiver) (plugflow.Result, error) {
	msg, ok := recv.Recv(0)
	if !ok {
		if err := s.out.Flush(); err != nil {
			return 0, err
		}
		return plugflow.ResultClose, nil
	}

	_, err := s.out.Write(msg.Bytes())
	msg.Free()
	if err != nil {
		return 0, err
	}
	if s.conf.Separator != "" {
		if _, err := s.out.WriteString(s.conf.Separator); err != nil {
			return 0, err
		}
	}

	if s.conf.FlushSize == 0 || s.out.Buffered() > s.conf.FlushSize {
		if err := s.out.Flush(); err != nil {
			return 0, err
		}
	}
	return plugflow.ResultMsg, nil
}

// Close flushes whatever is still buffered.
func (s *sink) Close() error {
	return s.out.Flush()
}
