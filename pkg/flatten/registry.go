package flatten

import (
	"reflect"
	"sync"
	"time"
)

// Func serializes one value of a registered type. The returned text must
// already be escaped.
type Func func(f *Flattener, v any) (string, error)

// Registry maps concrete Go types to flattening functions.
type Registry struct {
	mu  sync.RWMutex
	fns map[reflect.Type]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{fns: make(map[reflect.Type]Func)}
}

// DefaultRegistry creates a registry preloaded with the built-in
// flatteners: time.Time renders as RFC 3339.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(time.Time{}, func(_ *Flattener, v any) (string, error) {
		return EscapeText(v.(time.Time).Format(time.RFC3339)), nil
	})
	return r
}

// Register binds fn to the dynamic type of sample.
func (r *Registry) Register(sample any, fn Func) {
	r.RegisterType(reflect.TypeOf(sample), fn)
}

// RegisterType binds fn to t.
func (r *Registry) RegisterType(t reflect.Type, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns[t] = fn
}

// Lookup returns the function registered for t.
func (r *Registry) Lookup(t reflect.Type) (Func, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[t]
	return fn, ok
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fns)
}

// Clone returns an independent copy of r.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := &Registry{fns: make(map[reflect.Type]Func, len(r.fns))}
	for t, fn := range r.fns {
		out.fns[t] = fn
	}
	return out
}
