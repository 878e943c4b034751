package runtime

import (
	"fmt"
	"sync"
)

type Handler interface {
	Type() string
	Run(ctx *Context) error
}

// ExhaustionHandler is implemented by handlers that own state outside
// job_run needing reconciliation when a run fails with no retries left.
// The worker invokes it after the terminal failure, whichever path caused
// it, so panics and handler-returned errors reconcile the same as
// failures the handler reported itself.
type ExhaustionHandler interface {
	OnExhausted(ctx *Context)
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	t := h.Type()
	if t == "" {
		return fmt.Errorf("handler Type() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler already registered for job_type=%s", t)
	}
	r.handlers[t] = h
	return nil
}

func (r *Registry) Get(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}
