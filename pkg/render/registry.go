package render

import (
	"reflect"
	"sort"
	"sync"

	"github.com/conneroisu/breve/pkg/flatten"
	"github.com/conneroisu/breve/pkg/scope"
)

// Registry holds what every render of an engine shares: global names,
// per-type flatteners and the push/pop stack.
type Registry struct {
	mutex      sync.RWMutex
	globals    map[string]any
	flatteners *flatten.Registry
	stack      *scope.GlobalStack
}

// Default is the process-wide registry used by engines created without
// WithRegistry. It pushes and pops on scope.Globals.
var Default = &Registry{
	globals:    make(map[string]any),
	flatteners: flatten.DefaultRegistry(),
	stack:      scope.Globals,
}

// NewRegistry creates an isolated registry with its own stack.
func NewRegistry() *Registry {
	return &Registry{
		globals:    make(map[string]any),
		flatteners: flatten.DefaultRegistry(),
		stack:      scope.NewGlobalStack(),
	}
}

// RegisterGlobal makes value visible as name in every template.
func (r *Registry) RegisterGlobal(name string, value any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.globals[name] = value
}

// RegisterFlattener registers fn for values of sample's dynamic type.
func (r *Registry) RegisterFlattener(sample any, fn flatten.Func) {
	r.flatteners.RegisterType(reflect.TypeOf(sample), fn)
}

// Global returns a registered global.
func (r *Registry) Global(name string) (any, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	v, ok := r.globals[name]
	return v, ok
}

// Globals returns the registered globals as an ordered namespace.
func (r *Registry) Globals() *scope.Namespace {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.globals))
	for name := range r.globals {
		names = append(names, name)
	}
	sort.Strings(names)

	ns := scope.New(nil)
	for _, name := range names {
		ns.Set(name, r.globals[name])
	}
	return ns
}

// Flatteners returns the per-type flattener registry.
func (r *Registry) Flatteners() *flatten.Registry {
	return r.flatteners
}

// Stack returns the push/pop stack.
func (r *Registry) Stack() *scope.GlobalStack {
	return r.stack
}
