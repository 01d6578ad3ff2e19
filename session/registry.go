package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/smnsjas/go-hotline/transaction"
)

// Handler processes one inbound request. A non-nil returned transaction
// is sent back as the reply; a nil transaction with a nil error means the
// request needs no reply. A returned error becomes an error reply to the
// peer.
type Handler func(ctx context.Context, req *transaction.Transaction) (*transaction.Transaction, error)

// Registry maps transaction types to handlers. One registry is typically
// shared by every session of a server; registration happens at startup
// and lookups are concurrent.
type Registry struct {
	mu       sync.RWMutex
	handlers map[transaction.Type]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[transaction.Type]Handler)}
}

// Register installs a handler for a transaction type. Registering a type
// twice is a programming error and fails.
func (r *Registry) Register(t transaction.Type, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler already registered for %s", t)
	}
	r.handlers[t] = h
	return nil
}

func (r *Registry) lookup(t transaction.Type) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}
