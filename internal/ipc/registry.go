package ipc

import (
	"encoding/json"
	"sync"

	"github.com/cortexd/cortexd/internal/types"
)

// Handler processes one decoded request and returns either a result value
// (marshaled into the response's data field) or an error with a stable
// code.
type Handler func(params json.RawMessage) (any, *types.ErrorDetail)

// registry is a method-name -> Handler map. RegisterHandler takes the
// exclusive writer lock; dispatch takes the shared reader lock only long
// enough to copy the handler out before releasing it, so a handler that
// registers another handler while running never deadlocks (spec.md
// §4.5).
type registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for method.
func (r *registry) Register(method string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = h
}

// Lookup returns the handler for method and whether it was found. The
// returned Handler is a copy of the map entry; the lock is released
// before the caller invokes it.
func (r *registry) Lookup(method string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[method]
	return h, ok
}
