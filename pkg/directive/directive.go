// Package directive implements the template-level control nodes: conditions,
// scope bindings, macros, comments, CDATA sections, invisible groups and
// access to the global stack.
package directive

import (
	"reflect"

	"github.com/conneroisu/breve/pkg/scope"
	"github.com/conneroisu/breve/pkg/tags"
)

// Condition is the result of Check. It renders as nothing; its truth value
// gates the nodes passed to And and Or.
type Condition struct {
	ok bool
}

// Check evaluates v for truthiness.
func Check(v any) Condition {
	return Condition{ok: Truthy(v)}
}

// True reports the checked value's truthiness.
func (c Condition) True() bool { return c.ok }

// And returns nodes when the condition holds and "" otherwise.
func (c Condition) And(nodes ...any) any {
	if !c.ok {
		return ""
	}
	return group(nodes)
}

// Or returns nodes when the condition fails and "" otherwise.
func (c Condition) Or(nodes ...any) any {
	if c.ok {
		return ""
	}
	return group(nodes)
}

func group(nodes []any) any {
	if len(nodes) == 1 {
		return nodes[0]
	}
	return nodes
}

// Truthy reports whether v counts as true: nil, false, numeric zero, empty
// strings and empty collections are false.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case Condition:
		return x.ok
	case string:
		return x != ""
	case tags.Raw:
		return x != ""
	case *scope.Namespace:
		return x != nil && x.Len() > 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String, reflect.Chan:
		return rv.Len() > 0
	case reflect.Ptr, reflect.Interface, reflect.Func:
		return !rv.IsNil()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Bool:
		return rv.Bool()
	}
	return true
}

// Let binds every entry of values into ns and returns an invisible node.
func Let(ns *scope.Namespace, values any) (any, error) {
	if err := ns.Update(values); err != nil {
		return nil, err
	}
	return Invisible(), nil
}

// Assign binds name to value in ns and returns an invisible node.
func Assign(ns *scope.Namespace, name string, value any) any {
	ns.Set(name, value)
	return Invisible()
}

// Comment wraps children in a markup comment.
func Comment(children ...any) *tags.Tag {
	return tags.NewKind("comment", tags.KindComment).With(children...)
}

// CDATA wraps children in a CDATA section.
func CDATA(children ...any) *tags.Tag {
	return tags.NewKind("cdata", tags.KindCDATA).With(children...)
}

// Invisible groups children without emitting a wrapper element.
func Invisible(children ...any) *tags.Tag {
	return tags.NewKind("invisible", tags.KindInvisible).With(children...)
}

// XML passes raw markup through unescaped.
func XML(raw string) tags.Raw {
	return tags.Raw(raw)
}
