// Package message implements the reference-counted message unit exchanged
// between pipeline elements, and the mutable buffer used to build one.
//
// A Message is immutable once created: handles obtained via Clone share the
// payload and metadata, and the storage is released exactly once, when the
// last handle is freed. Mutation only happens through a Buffer, before the
// contents are taken into a Message.
package message

import "sync/atomic"

// Message is an immutable payload plus typed metadata, shared between tasks
// through an atomic reference count.
type Message struct {
	shared *shared
}

type shared struct {
	refs     atomic.Int64
	payload  []byte
	metadata []Metadata
}

// New creates a message with reference count 1. The payload slice is owned by
// the message from this point on; callers must not retain or mutate it.
func New(payload []byte, metadata []Metadata) *Message {
	s := &shared{payload: payload, metadata: metadata}
	s.refs.Store(1)
	return &Message{shared: s}
}

// Clone returns a new handle sharing this message's payload and metadata,
// incrementing the reference count. Safe to call concurrently from tasks
// holding independent handles.
func (m *Message) Clone() *Message {
	m.shared.refs.Add(1)
	return &Message{shared: m.shared}
}

// Free releases this handle. When the last handle is freed the payload and
// metadata storage are dropped. Using a handle after freeing it yields empty
// reads, never a crash.
func (m *Message) Free() {
	if m.shared.refs.Add(-1) == 0 {
		m.shared.payload = nil
		m.shared.metadata = nil
	}
}

// Bytes returns a read-only view of the payload, valid for as long as the
// caller holds a live handle.
func (m *Message) Bytes() []byte {
	return m.shared.payload
}

// Len returns the payload length in bytes.
func (m *Message) Len() int {
	return len(m.shared.payload)
}

// Metadata looks up an entry by interned id. Absent ids and the zero sentinel
// return the Empty metadata rather than failing.
func (m *Message) Metadata(id MetadataID) Metadata {
	if id == 0 {
		return Metadata{}
	}
	for _, md := range m.shared.metadata {
		if md.ID == id {
			return md
		}
	}
	return Metadata{}
}

// Refs returns the current reference count. Intended for tests and
// diagnostics only; the value may be stale the moment it is read.
func (m *Message) Refs() int64 {
	return m.shared.refs.Load()
}
