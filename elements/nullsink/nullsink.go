// Package nullsink provides a message sink that swallows everything it
// receives. Useful to terminate pipeline branches whose output is not
// needed.
package nullsink

import (
	"github.com/plugflow/plugflow"
	"github.com/plugflow/plugflow/elements"
)

// Name registers the null sink element.
const Name = "null-sink"

// RecvPorts is the number of inputs a single null-sink can drain.
const RecvPorts plugflow.Port = 32

func init() {
	elements.Register(plugflow.Spec{
		Name:      Name,
		RecvPorts: RecvPorts,
		New:       newSink,
	})
}

type sink struct{}

func newSink([]byte) (plugflow.Element, error) {
	return sink{}, nil
}

func (sink) Step(_ *plugflow.Context, recv *plugflow.Receiver) (plugflow.Result, error) {
	_, msg, ok := recv.RecvAny()
	if !ok {
		return plugflow.ResultClose, nil
	}
	msg.Free()
	return plugflow.ResultMsg, nil
}
