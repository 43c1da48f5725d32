package hostfunc

import (
	"context"
	"sort"
	"sync"
)

// Func is a Go function callable from scripts. args holds the call's
// arguments in their natural Go form, keyed by keyword (see Args).
type Func func(ctx context.Context, args map[string]any) (any, error)

// Registry maps names to host functions. It is safe for concurrent use and
// may be shared by several interpreters.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register binds fn to name, replacing any earlier binding.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	r.funcs[name] = fn
	r.mu.Unlock()
}

// Get returns the function bound to name.
func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	return fn, ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns a copy of the registered functions.
func (r *Registry) All() map[string]Func {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Func, len(r.funcs))
	for name, fn := range r.funcs {
		out[name] = fn
	}
	return out
}
