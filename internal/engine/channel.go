package engine

import (
	"reflect"
	"strconv"
	"sync/atomic"

	"github.com/plugflow/plugflow/internal/engine/message"
	"github.com/plugflow/plugflow/internal/engine/metrics"
)

// inlet is the write end of one receive port. Several senders may feed one
// port; the channel is closed by whichever sender releases it last.
type inlet struct {
	ch      chan *message.Message
	writers atomic.Int32
}

func newInlet(capacity, writers int) *inlet {
	in := &inlet{ch: make(chan *message.Message, capacity)}
	in.writers.Store(int32(writers))
	if writers == 0 {
		// Unwired port: receivers observe closure immediately.
		close(in.ch)
	}
	return in
}

func (in *inlet) send(msg *message.Message) {
	in.ch <- msg
}

func (in *inlet) release() {
	if in.writers.Add(-1) == 0 {
		close(in.ch)
	}
}

// Sender routes an element's outgoing messages onto the inlets bound to each
// send port. One port fanning out to N destinations delivers reference
// clones to the first N-1 and moves the original to the last.
type Sender struct {
	ports [][]*inlet
}

func newSender(sendPorts Port) *Sender {
	return &Sender{ports: make([][]*inlet, int(sendPorts))}
}

func (s *Sender) bind(port Port, in *inlet) {
	s.ports[port] = append(s.ports[port], in)
}

// Send routes msg to every destination of port, blocking while a destination
// channel is full. A port with no destinations frees the message.
func (s *Sender) Send(port Port, msg *message.Message) {
	if int(port) >= len(s.ports) {
		msg.Free()
		return
	}
	dests := s.ports[port]
	if len(dests) == 0 {
		msg.Free()
		return
	}

	for _, dest := range dests[:len(dests)-1] {
		dest.send(msg.Clone())
	}
	dests[len(dests)-1].send(msg)
}

// Close releases every bound inlet; each channel closes once its last writer
// releases it, propagating shutdown downstream.
func (s *Sender) Close() {
	for _, dests := range s.ports {
		for _, dest := range dests {
			dest.release()
		}
	}
}

// Receiver is the read end of an element's receive ports. It is owned by a
// single task and must not be shared.
type Receiver struct {
	chans []chan *message.Message
	open  []bool

	metrics *metrics.Engine
	element string
}

func newReceiver(inlets []*inlet) *Receiver {
	r := &Receiver{
		chans: make([]chan *message.Message, len(inlets)),
		open:  make([]bool, len(inlets)),
	}
	for i, in := range inlets {
		r.chans[i] = in.ch
		r.open[i] = true
	}
	return r
}

func newMeteredReceiver(inlets []*inlet, m *metrics.Engine, element string) *Receiver {
	r := newReceiver(inlets)
	r.metrics = m
	r.element = element
	return r
}

// Recv blocks until a message arrives on the given port, preserving per-port
// FIFO order. ok is false once the port's sending side has closed and the
// channel is drained, or when port is out of range.
func (r *Receiver) Recv(port Port) (*message.Message, bool) {
	if int(port) >= len(r.chans) {
		return nil, false
	}
	msg, ok := <-r.chans[port]
	if !ok {
		r.open[port] = false
		return nil, false
	}
	r.metrics.RecordReceived(r.element, strconv.Itoa(int(port)))
	return msg, true
}

// RecvAny blocks until any bound port has data, returning the port it
// arrived on. Readiness selection is uniform pseudo-random across ready
// ports, so no ready port can be starved. ok is false once every port has
// closed and drained.
func (r *Receiver) RecvAny() (Port, *message.Message, bool) {
	for {
		cases := make([]reflect.SelectCase, 0, len(r.chans))
		ports := make([]int, 0, len(r.chans))
		for i, ch := range r.chans {
			if !r.open[i] {
				continue
			}
			cases = append(cases, reflect.SelectCase{
				Dir:  reflect.SelectRecv,
				Chan: reflect.ValueOf(ch),
			})
			ports = append(ports, i)
		}
		if len(cases) == 0 {
			return 0, nil, false
		}

		chosen, value, ok := reflect.Select(cases)
		port := ports[chosen]
		if !ok {
			r.open[port] = false
			continue
		}
		r.metrics.RecordReceived(r.element, strconv.Itoa(port))
		return Port(port), value.Interface().(*message.Message), true
	}
}

// PortCount returns the number of bound receive ports.
func (r *Receiver) PortCount() int {
	return len(r.chans)
}
