// Package fixedsize provides an element that re-chunks the byte stream into
// messages of an exact size, ignoring input message boundaries.
package fixedsize

import (
	"errors"

	"github.com/plugflow/plugflow"
	"github.com/plugflow/plugflow/elements"
)

// Name registers the fixed size splitting element.
const Name = "split-by-fixed-size-filter"

func init() {
	elements.Register(plugflow.Spec{
		Name:      Name,
		RecvPorts: 1,
		SendPorts: 1,
		New:       newFilter,
	})
}

type filterConf struct {
	// Size is the exact byte length of every emitted message.
	Size int `json:"size"`
}

type filter struct {
	size    int
	pending []byte
}

func newFilter(conf []byte) (plugflow.Element, error) {
	c, err := plugflow.DecodeConf[filterConf](conf)
	if err != nil {
		return nil, err
	}
	if c.Size <= 0 {
		return nil, errors.New("split-by-fixed-size-filter: size must be positive")
	}
	return &filter{
		size:    c.Size,
		pending: make([]byte, 0, c.Size*2),
	}, nil
}

func (f *filter) Step(ctx *plugflow.Context, recv *plugflow.Receiver) (plugflow.Result, error) {
	for len(f.pending) < f.size {
		msg, ok := recv.Recv(0)
		if !ok {
			// A short trailing chunk is dropped.
			return plugflow.ResultClose, nil
		}
		f.pending = append(f.pending, msg.Bytes()...)
		msg.Free()
	}

	buf, err := ctx.MsgBuf(0)
	if err != nil {
		return 0, err
	}
	buf.Write(f.pending[:f.size])

	remaining := copy(f.pending, f.pending[f.size:])
	f.pending = f.pending[:remaining]
	return plugflow.ResultMsgBuf, nil
}
