package engine

import (
	"fmt"
	"sync/atomic"

	errspkg "github.com/plugflow/plugflow/internal/engine/errors"
	"github.com/plugflow/plugflow/internal/engine/message"
	"github.com/plugflow/plugflow/internal/engine/metaid"
	"github.com/plugflow/plugflow/internal/engine/msgtype"
)

// Context is the per-task handle passed to an element's Step. It exposes
// buffer acquisition, result delivery, metadata id resolution, and shutdown
// signalling. A Context belongs to exactly one task and is never shared.
type Context struct {
	taskID  TaskID
	element string

	registry *metaid.Registry
	tc       *typeChecker

	closing      *atomic.Bool
	requestClose func()

	typeChecked bool

	// Per send port: a reusable buffer and whether it is outstanding, plus
	// any message deposited via SetResultMsg.
	bufs        []*message.Buffer
	outstanding []bool
	results     []*message.Message
}

func newContext(taskID TaskID, element string, sendPorts Port, registry *metaid.Registry, tc *typeChecker, closing *atomic.Bool, requestClose func()) *Context {
	n := int(sendPorts)
	return &Context{
		taskID:       taskID,
		element:      element,
		registry:     registry,
		tc:           tc,
		closing:      closing,
		requestClose: requestClose,
		bufs:         make([]*message.Buffer, n),
		outstanding:  make([]bool, n),
		results:      make([]*message.Message, n),
	}
}

// MsgBuf returns the message buffer for a send port. Requesting a buffer
// that is already outstanding, or a port out of range, is a protocol misuse
// reported through the sentinel error; the element and pipeline keep
// running.
func (c *Context) MsgBuf(port Port) (*message.Buffer, error) {
	if int(port) >= len(c.bufs) {
		return nil, fmt.Errorf("%w: send port %d of element %q", errspkg.ErrPortOutOfRange, port, c.element)
	}
	if c.outstanding[port] {
		return nil, fmt.Errorf("%w: send port %d of element %q", errspkg.ErrBufferOutstanding, port, c.element)
	}
	if c.bufs[port] == nil {
		c.bufs[port] = message.NewBuffer()
	}
	c.bufs[port].Reset()
	c.outstanding[port] = true
	return c.bufs[port], nil
}

// SetResultMsg deposits a pre-built message as the step result for a send
// port. Depositing twice on the same port within one step is a misuse.
func (c *Context) SetResultMsg(port Port, msg *message.Message) error {
	if int(port) >= len(c.results) {
		return fmt.Errorf("%w: send port %d of element %q", errspkg.ErrPortOutOfRange, port, c.element)
	}
	if c.results[port] != nil {
		return fmt.Errorf("%w: send port %d of element %q", errspkg.ErrResultOutstanding, port, c.element)
	}
	c.results[port] = msg
	return nil
}

// Closing reports whether a cooperative shutdown has been requested. Source
// elements should observe it between steps and return ResultClose.
func (c *Context) Closing() bool {
	return c.closing.Load()
}

// Close requests a cooperative shutdown of the whole pipeline.
func (c *Context) Close() {
	c.requestClose()
}

// MetadataID resolves a metadata key through the runner's interning
// registry. Invalid keys resolve to the zero sentinel.
func (c *Context) MetadataID(key string) message.MetadataID {
	return c.registry.ID(key)
}

// CheckSendMsgType validates the message type this element emits on port
// against the accepted types of every connected downstream port.
func (c *Context) CheckSendMsgType(port Port, t msgtype.MsgType) error {
	if err := c.tc.check(c.taskID, port, t); err != nil {
		return err
	}
	c.typeChecked = true
	return nil
}

// SendMsgTypeChecked reports whether CheckSendMsgType has succeeded at least
// once for this element, so tight source loops can skip re-validation.
func (c *Context) SendMsgTypeChecked() bool {
	return c.typeChecked
}

type outgoing struct {
	port Port
	msg  *message.Message
}

// takeOutgoing collects the step's outputs: deposited result messages and
// the contents of outstanding buffers, in port order. The context is reset
// for the next step.
func (c *Context) takeOutgoing(res Result) []outgoing {
	var out []outgoing

	for port := range c.results {
		if c.results[port] != nil {
			if res == ResultMsg {
				out = append(out, outgoing{port: Port(port), msg: c.results[port]})
			} else {
				c.results[port].Free()
			}
			c.results[port] = nil
		}
		if c.outstanding[port] {
			c.outstanding[port] = false
			if res == ResultMsgBuf && c.bufs[port].Len() > 0 {
				out = append(out, outgoing{port: Port(port), msg: c.bufs[port].TakeMsg()})
			} else {
				c.bufs[port].Reset()
			}
		}
	}
	return out
}

// discardOutgoing drops anything deposited during a step that ended in Close
// or an error, freeing deposited messages.
func (c *Context) discardOutgoing() {
	for port := range c.results {
		if c.results[port] != nil {
			c.results[port].Free()
			c.results[port] = nil
		}
		if c.outstanding[port] {
			c.outstanding[port] = false
			c.bufs[port].Reset()
		}
	}
}
