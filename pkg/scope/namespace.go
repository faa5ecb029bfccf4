// Package scope holds the name-resolution structures used while a template
// is evaluated: ordered namespaces chained into frames, the callable
// protocol that threads the active frame into directives, and the
// process-wide global stack.
package scope

import (
	"fmt"
	"reflect"
	"sort"

	berrors "github.com/conneroisu/breve/pkg/errors"
)

// Namespace is an ordered key/value container. A namespace may have a parent
// frame; lookups walk outward, writes always land in the receiver. Values are
// stored by reference so later bindings are visible through every holder of
// the namespace.
type Namespace struct {
	keys   []string
	values map[string]any
	parent *Namespace
}

// New creates a namespace holding a copy of values. Map iteration order is
// not defined, so keys from a plain map are inserted sorted; use NewOrdered
// or Set when insertion order matters.
func New(values map[string]any) *Namespace {
	ns := &Namespace{values: make(map[string]any, len(values))}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ns.Set(k, values[k])
	}
	return ns
}

// NewOrdered creates a namespace from alternating key/value pairs.
func NewOrdered(pairs ...any) (*Namespace, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("expected an even number of arguments, got %d", len(pairs))
	}
	ns := &Namespace{values: make(map[string]any, len(pairs)/2)}
	for i := 0; i < len(pairs); i += 2 {
		k, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("key at position %d is %T, not string", i, pairs[i])
		}
		ns.Set(k, pairs[i+1])
	}
	return ns, nil
}

// Child returns an empty frame whose lookups fall back to ns.
func (ns *Namespace) Child() *Namespace {
	return &Namespace{values: make(map[string]any), parent: ns}
}

// Parent returns the enclosing frame, or nil.
func (ns *Namespace) Parent() *Namespace {
	return ns.parent
}

// Has reports whether key resolves in this frame or any parent.
func (ns *Namespace) Has(key string) bool {
	_, ok := ns.Get(key)
	return ok
}

// HasOwn reports whether key is bound directly in this frame.
func (ns *Namespace) HasOwn(key string) bool {
	if ns == nil {
		return false
	}
	_, ok := ns.values[key]
	return ok
}

// Get resolves key, walking parent frames.
func (ns *Namespace) Get(key string) (any, bool) {
	for f := ns; f != nil; f = f.parent {
		if v, ok := f.values[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Lookup resolves key or returns an unresolved-name error listing close
// matches among the visible names.
func (ns *Namespace) Lookup(key string) (any, error) {
	if v, ok := ns.Get(key); ok {
		return v, nil
	}
	return nil, berrors.NewUnresolvedNameError(key).
		WithSuggestions(berrors.SuggestNames(key, ns.AllKeys())...)
}

// Set binds key in this frame, keeping the original position on rebind.
func (ns *Namespace) Set(key string, value any) {
	if ns.values == nil {
		ns.values = make(map[string]any)
	}
	if _, exists := ns.values[key]; !exists {
		ns.keys = append(ns.keys, key)
	}
	ns.values[key] = value
}

// Delete removes key from this frame.
func (ns *Namespace) Delete(key string) {
	if _, ok := ns.values[key]; !ok {
		return
	}
	delete(ns.values, key)
	for i, k := range ns.keys {
		if k == key {
			ns.keys = append(ns.keys[:i], ns.keys[i+1:]...)
			break
		}
	}
}

// Update copies every binding of other into this frame. other may be a
// *Namespace (own keys, in order), a map with string keys, or nil.
func (ns *Namespace) Update(other any) error {
	switch src := other.(type) {
	case nil:
		return nil
	case *Namespace:
		if src == nil {
			return nil
		}
		for _, k := range src.keys {
			ns.Set(k, src.values[k])
		}
		return nil
	case map[string]any:
		keys := make([]string, 0, len(src))
		for k := range src {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			ns.Set(k, src[k])
		}
		return nil
	}

	rv := reflect.ValueOf(other)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return fmt.Errorf("cannot update namespace from %T", other)
	}
	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	for _, k := range keys {
		ns.Set(k.String(), rv.MapIndex(k).Interface())
	}
	return nil
}

// Keys returns the keys bound in this frame in insertion order.
func (ns *Namespace) Keys() []string {
	if ns == nil {
		return nil
	}
	out := make([]string, len(ns.keys))
	copy(out, ns.keys)
	return out
}

// AllKeys returns every visible key, innermost frame first, without
// duplicates.
func (ns *Namespace) AllKeys() []string {
	seen := make(map[string]struct{})
	var out []string
	for f := ns; f != nil; f = f.parent {
		for _, k := range f.keys {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

// Len returns the number of keys bound in this frame.
func (ns *Namespace) Len() int {
	if ns == nil {
		return 0
	}
	return len(ns.keys)
}

// Map returns a shallow copy of this frame's bindings.
func (ns *Namespace) Map() map[string]any {
	out := make(map[string]any, len(ns.keys))
	for _, k := range ns.keys {
		out[k] = ns.values[k]
	}
	return out
}

// Value resolves key like Get, letting a namespace serve as a tag
// multiplication record.
func (ns *Namespace) Value(key string) (any, bool) {
	return ns.Get(key)
}
