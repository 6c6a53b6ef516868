// Package engine implements the dataflow execution core: reference-counted
// messages moving over bounded port channels between element tasks, driven by
// a Runner built from a pipeline configuration.
package engine

import (
	"fmt"
	"sort"
	"sync"

	errspkg "github.com/plugflow/plugflow/internal/engine/errors"
	"github.com/plugflow/plugflow/internal/engine/jsoncodec"
	"github.com/plugflow/plugflow/internal/engine/msgtype"
)

// Port numbers one receive or send port of an element. Receive and send
// ports are numbered independently from zero.
type Port = uint8

// TaskID identifies one element instance in a pipeline.
type TaskID uint64

// Result is an element's verdict after one step. Unrecoverable failures are
// signalled through the error return instead.
type Result uint8

const (
	// ResultClose requests clean termination; the runner closes the
	// element's output channels and stops its task.
	ResultClose Result = iota
	// ResultMsg indicates result messages were deposited on the context via
	// SetResultMsg.
	ResultMsg
	// ResultMsgBuf indicates message buffers obtained from the context were
	// written; the runner takes and routes their contents.
	ResultMsgBuf
)

func (r Result) String() string {
	switch r {
	case ResultClose:
		return "close"
	case ResultMsg:
		return "msg"
	case ResultMsgBuf:
		return "msgbuf"
	}
	return "unknown"
}

// Element is one unit of pipeline work. Step is invoked repeatedly by the
// element's driving task until it returns ResultClose or an error. Elements
// with receive ports observe shutdown as channel closure through the
// Receiver; elements without receive ports must poll Context.Closing between
// steps and return ResultClose when it reports true.
type Element interface {
	Step(ctx *Context, recv *Receiver) (Result, error)
}

// Finalizable is implemented by elements that need cleanup after every task
// has terminated. The returned function runs exactly once; nil means no
// finalizer.
type Finalizable interface {
	Finalizer() func() error
}

// Spec declares an element kind: its identity, port shape, the message types
// its ports accept and emit, and its constructor. Conf carries the element's
// JSON-encoded configuration block.
type Spec struct {
	Name        string
	RecvPorts   Port
	SendPorts   Port
	AcceptTypes [][]msgtype.MsgType
	EmitTypes   [][]msgtype.MsgType
	New         func(conf []byte) (Element, error)
}

func (s Spec) validate() error {
	if s.Name == "" {
		return errspkg.ErrElementNameEmpty
	}
	if s.New == nil {
		return fmt.Errorf("%w (element %q)", errspkg.ErrElementNewRequired, s.Name)
	}
	if len(s.AcceptTypes) > int(s.RecvPorts) {
		return fmt.Errorf("plugflow: element %q declares accept types for %d ports but has %d receive ports",
			s.Name, len(s.AcceptTypes), s.RecvPorts)
	}
	if len(s.EmitTypes) > int(s.SendPorts) {
		return fmt.Errorf("plugflow: element %q declares emit types for %d ports but has %d send ports",
			s.Name, len(s.EmitTypes), s.SendPorts)
	}
	return nil
}

// acceptTypesFor returns the declared accept types for a receive port. An
// empty list means the port accepts anything.
func (s Spec) acceptTypesFor(port Port) []msgtype.MsgType {
	if int(port) < len(s.AcceptTypes) {
		return s.AcceptTypes[port]
	}
	return nil
}

// emitTypesFor returns the declared emit types for a send port. An empty
// list means the emitted type is only known at runtime.
func (s Spec) emitTypesFor(port Port) []msgtype.MsgType {
	if int(port) < len(s.EmitTypes) {
		return s.EmitTypes[port]
	}
	return nil
}

// DecodeConf unmarshals an element configuration block into T. An empty
// block yields the zero value.
func DecodeConf[T any](conf []byte) (T, error) {
	var v T
	if len(conf) == 0 {
		return v, nil
	}
	if err := jsoncodec.Unmarshal(conf, &v); err != nil {
		return v, fmt.Errorf("plugflow: decoding element configuration: %w", err)
	}
	return v, nil
}

// Bank holds the registered element specs for a process, keyed by name.
type Bank struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

// NewBank returns an empty bank.
func NewBank() *Bank {
	return &Bank{specs: make(map[string]Spec)}
}

// Register adds a spec. Name duplication is a registration error.
func (b *Bank) Register(spec Spec) error {
	if err := spec.validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.specs[spec.Name]; ok {
		return fmt.Errorf("plugflow: element name duplication detected for %q", spec.Name)
	}
	b.specs[spec.Name] = spec
	return nil
}

// Lookup returns the spec registered under name.
func (b *Bank) Lookup(name string) (Spec, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	spec, ok := b.specs[name]
	return spec, ok
}

// Each calls fn for every registered spec in name order until fn returns
// false.
func (b *Bank) Each(fn func(Spec) bool) {
	b.mu.RLock()
	names := make([]string, 0, len(b.specs))
	for name := range b.specs {
		names = append(names, name)
	}
	specs := make([]Spec, 0, len(names))
	sort.Strings(names)
	for _, name := range names {
		specs = append(specs, b.specs[name])
	}
	b.mu.RUnlock()

	for _, spec := range specs {
		if !fn(spec) {
			return
		}
	}
}

// Len returns the number of registered specs.
func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.specs)
}
