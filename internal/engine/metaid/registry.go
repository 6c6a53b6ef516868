// Package metaid interns human-readable metadata keys into the small integer
// ids carried by messages. One Registry is shared by every task of a Runner,
// so identical keys resolve to identical ids across all of its contexts.
package metaid

import (
	"strings"
	"sync"

	"github.com/plugflow/plugflow/internal/engine/message"
)

// Registry is a bidirectional string-key to id mapping, populated lazily on
// first lookup of each distinct key. Ids start at 1 and are never reused or
// invalidated for the registry's lifetime; 0 is the invalid sentinel.
type Registry struct {
	mu    sync.RWMutex
	ids   map[string]message.MetadataID
	names map[message.MetadataID]string
	next  message.MetadataID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		ids:   make(map[string]message.MetadataID),
		names: make(map[message.MetadataID]string),
	}
}

// ID resolves key to its interned id, allocating one on first sight. Invalid
// keys (empty, or containing a NUL byte) resolve to the zero sentinel.
// Concurrent lookups of the same new key never allocate duplicate ids: a
// later-arriving duplicate resolves to the earlier-assigned id.
func (r *Registry) ID(key string) message.MetadataID {
	if key == "" || strings.ContainsRune(key, 0) {
		return 0
	}

	r.mu.RLock()
	id, ok := r.ids[key]
	r.mu.RUnlock()
	if ok {
		return id
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.ids[key]; ok {
		return id
	}
	r.next++
	r.ids[key] = r.next
	r.names[r.next] = key
	return r.next
}

// Lookup returns the key interned under id, if any.
func (r *Registry) Lookup(id message.MetadataID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[id]
	return name, ok
}

// Len returns the number of interned keys.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}
