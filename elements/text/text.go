// Package text provides text generation and splitting elements.
package text

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/plugflow/plugflow"
	"github.com/plugflow/plugflow/elements"
)

const (
	// SrcName registers the text generator element.
	SrcName = "text-src"
	// SplitByDelimiterName registers the delimiter splitting element.
	SplitByDelimiterName = "split-by-delimiter-filter"
)

const defaultLimitSize = 1 << 30

func init() {
	elements.Register(plugflow.Spec{
		Name:      SrcName,
		SendPorts: 1,
		EmitTypes: [][]plugflow.MsgType{{plugflow.MsgTypeText()}},
		New:       newSrc,
	})
	elements.Register(plugflow.Spec{
		Name:      SplitByDelimiterName,
		RecvPorts: 1,
		SendPorts: 1,
		New:       newSplitByDelimiter,
	})
}

type srcConf struct {
	// Text is the payload of every generated message.
	Text string `json:"text"`
	// IntervalMs is the pause between batches, in milliseconds.
	IntervalMs float64 `json:"interval_ms"`
	// Repeat is the number of messages per batch. Zero means one.
	Repeat int `json:"repeat"`
}

// src emits its configured text repeatedly, sleeping after every batch.
type src struct {
	conf  srcConf
	count int
}

func newSrc(conf []byte) (plugflow.Element, error) {
	c, err := plugflow.DecodeConf[srcConf](conf)
	if err != nil {
		return nil, err
	}
	if c.Text == "" {
		return nil, errors.New("text-src: text is required")
	}
	if c.Repeat <= 0 {
		c.Repeat = 1
	}
	return &src{conf: c}, nil
}

func (s *src) Step(ctx *plugflow.Context, _ *plugflow.Receiver) (plugflow.Result, error) {
	if ctx.Closing() {
		return plugflow.ResultClose, nil
	}

	buf, err := ctx.MsgBuf(0)
	if err != nil {
		return 0, err
	}

	s.count++
	if s.count == s.conf.Repeat {
		time.Sleep(time.Duration(s.conf.IntervalMs * float64(time.Millisecond)))
		s.count = 0
	}
	buf.WriteString(s.conf.Text)
	return plugflow.ResultMsgBuf, nil
}

type splitByDelimiterConf struct {
	// Delimiter separates the emitted segments. Defaults to "\n".
	Delimiter string `json:"delimiter"`
	// LimitSize caps the accumulation buffer. Defaults to 1GiB.
	LimitSize int `json:"limit_size"`
}

// splitByDelimiter re-frames the byte stream on a delimiter: input message
// boundaries are ignored, each output message is one delimiter-free segment.
type splitByDelimiter struct {
	delimiter []byte
	limit     int

	pending []byte
	// scanned marks the prefix of pending already searched, so a segment
	// spanning many input messages is not rescanned from the start.
	scanned int
}

func newSplitByDelimiter(conf []byte) (plugflow.Element, error) {
	c, err := plugflow.DecodeConf[splitByDelimiterConf](conf)
	if err != nil {
		return nil, err
	}
	if c.Delimiter == "" {
		c.Delimiter = "\n"
	}
	if c.LimitSize <= 0 {
		c.LimitSize = defaultLimitSize
	}
	return &splitByDelimiter{
		delimiter: []byte(c.Delimiter),
		limit:     c.LimitSize,
	}, nil
}

func (s *splitByDelimiter) Step(ctx *plugflow.Context, recv *plugflow.Receiver) (plugflow.Result, error) {
	for {
		if i := s.search(); i >= 0 {
			buf, err := ctx.MsgBuf(0)
			if err != nil {
				return 0, err
			}
			buf.Write(s.pending[:i])
			s.consume(i + len(s.delimiter))
			return plugflow.ResultMsgBuf, nil
		}

		if len(s.pending) > s.limit {
			return 0, fmt.Errorf("split-by-delimiter-filter: reached buffer limit size %d", s.limit)
		}

		msg, ok := recv.Recv(0)
		if !ok {
			// A trailing segment without its delimiter is dropped.
			return plugflow.ResultClose, nil
		}
		s.pending = append(s.pending, msg.Bytes()...)
		msg.Free()
	}
}

func (s *splitByDelimiter) search() int {
	from := s.scanned - len(s.delimiter) + 1
	if from < 0 {
		from = 0
	}
	i := bytes.Index(s.pending[from:], s.delimiter)
	if i < 0 {
		s.scanned = len(s.pending)
		return -1
	}
	return from + i
}

func (s *splitByDelimiter) consume(n int) {
	remaining := copy(s.pending, s.pending[n:])
	s.pending = s.pending[:remaining]
	s.scanned = 0
}
