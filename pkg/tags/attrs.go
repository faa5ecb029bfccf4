package tags

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Attrs is an insertion-ordered attribute map. A nil value is never stored:
// setting a key to nil removes it, so an absent attribute is never emitted.
type Attrs struct {
	keys   []string
	values map[string]any
}

// NewAttrs creates an empty attribute map.
func NewAttrs() *Attrs {
	return &Attrs{values: make(map[string]any)}
}

// NormalizeName strips one trailing underscore so reserved words can be used
// as attribute names (class_ becomes class).
func NormalizeName(name string) string {
	if len(name) > 1 && strings.HasSuffix(name, "_") {
		return name[:len(name)-1]
	}
	return name
}

// Set binds name to value. A nil value deletes the attribute.
func (a *Attrs) Set(name string, value any) {
	name = NormalizeName(name)
	if value == nil {
		a.remove(name)
		return
	}
	if a.values == nil {
		a.values = make(map[string]any)
	}
	if _, exists := a.values[name]; !exists {
		a.keys = append(a.keys, name)
	}
	a.values[name] = value
}

// Get returns the value bound to name.
func (a *Attrs) Get(name string) (any, bool) {
	if a == nil {
		return nil, false
	}
	v, ok := a.values[NormalizeName(name)]
	return v, ok
}

// Has reports whether name is set.
func (a *Attrs) Has(name string) bool {
	_, ok := a.Get(name)
	return ok
}

// Delete removes name.
func (a *Attrs) Delete(name string) {
	a.remove(NormalizeName(name))
}

func (a *Attrs) remove(name string) {
	if a == nil {
		return
	}
	if _, ok := a.values[name]; !ok {
		return
	}
	delete(a.values, name)
	for i, k := range a.keys {
		if k == name {
			a.keys = append(a.keys[:i], a.keys[i+1:]...)
			break
		}
	}
}

// Keys returns attribute names in insertion order.
func (a *Attrs) Keys() []string {
	if a == nil {
		return nil
	}
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Len returns the number of attributes.
func (a *Attrs) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Each calls fn for every attribute in insertion order.
func (a *Attrs) Each(fn func(name string, value any)) {
	if a == nil {
		return
	}
	for _, k := range a.keys {
		fn(k, a.values[k])
	}
}

// Clone returns a copy sharing no structure with a.
func (a *Attrs) Clone() *Attrs {
	out := &Attrs{values: make(map[string]any, a.Len())}
	a.Each(func(k string, v any) {
		out.keys = append(out.keys, k)
		out.values[k] = v
	})
	return out
}

// OrderedRecord is a keyed value source that also knows its key order, such
// as a scope namespace.
type OrderedRecord interface {
	Keys() []string
	Value(key string) (any, bool)
}

// Update applies attributes from args. Each argument may be a map with
// string keys (applied in sorted key order), an OrderedRecord (applied in its
// own order), or part of a flat name/value pair sequence.
func (a *Attrs) Update(args ...any) error {
	for i := 0; i < len(args); i++ {
		switch v := args[i].(type) {
		case nil:
			continue
		case *Attrs:
			v.Each(a.Set)
		case OrderedRecord:
			for _, k := range v.Keys() {
				val, _ := v.Value(k)
				a.Set(k, val)
			}
		case map[string]any:
			for _, k := range sortedKeys(v) {
				a.Set(k, v[k])
			}
		case map[string]string:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				a.Set(k, v[k])
			}
		case string:
			if i+1 >= len(args) {
				return fmt.Errorf("attribute %q has no value", v)
			}
			a.Set(v, args[i+1])
			i++
		default:
			rv := reflect.ValueOf(v)
			if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
				keys := rv.MapKeys()
				sort.Slice(keys, func(x, y int) bool { return keys[x].String() < keys[y].String() })
				for _, k := range keys {
					a.Set(k.String(), rv.MapIndex(k).Interface())
				}
				continue
			}
			return fmt.Errorf("cannot use %T as attribute name", v)
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
