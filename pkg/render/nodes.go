package render

import (
	"fmt"
	"strings"

	"github.com/conneroisu/breve/pkg/flatten"
	"github.com/conneroisu/breve/pkg/scope"
)

// Inherits renders a parent template when flattened. Its Override children
// become fragments for the parent's slots; other children are ignored.
type Inherits struct {
	Name     string
	Children []any
	call     *call
}

// Flatten implements flatten.Flattenable.
func (n *Inherits) Flatten(*flatten.Flattener) (string, error) {
	var fragments []*Override
	for _, child := range n.Children {
		if o, ok := child.(*Override); ok {
			fragments = append(fragments, o)
		}
	}
	return n.call.partial(n.Name, fragments)
}

// Override supplies named content for a parent's slot. Outside inherits it
// renders its children in place.
type Override struct {
	Name     string
	Children []any
}

// NewOverride builds an override fragment for RenderPartial.
func NewOverride(name string, children ...any) *Override {
	return &Override{Name: name, Children: children}
}

// Flatten implements flatten.Flattenable.
func (n *Override) Flatten(f *flatten.Flattener) (string, error) {
	return flattenAll(f, n.Children)
}

// Slot is a placeholder in a parent template. It renders the fragment of the
// same name when one was supplied and its own children otherwise.
type Slot struct {
	Name     string
	Children []any
	call     *call
}

// Flatten implements flatten.Flattenable.
func (n *Slot) Flatten(f *flatten.Flattener) (string, error) {
	if frag, ok := n.call.fragments[n.Name]; ok {
		return f.Flatten(frag)
	}
	return flattenAll(f, n.Children)
}

func flattenAll(f *flatten.Flattener, nodes []any) (string, error) {
	var b strings.Builder
	for _, n := range nodes {
		s, err := f.Flatten(n)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

func nodeName(fn string, args []any) (string, []any, error) {
	if len(args) == 0 {
		return "", nil, badArgs(fn, "requires a name")
	}
	name, ok := args[0].(string)
	if !ok || name == "" {
		return "", nil, badArgs(fn, fmt.Sprintf("name must be a non-empty string, got %T", args[0]))
	}
	return name, args[1:], nil
}

// inherits(name, children...)
func (c *call) inherits(_ *scope.Namespace, args []any) (any, error) {
	name, children, err := nodeName("inherits", args)
	if err != nil {
		return nil, err
	}
	return &Inherits{Name: name, Children: children, call: c}, nil
}

// override(name, children...)
func newOverride(_ *scope.Namespace, args []any) (any, error) {
	name, children, err := nodeName("override", args)
	if err != nil {
		return nil, err
	}
	return NewOverride(name, children...), nil
}

// slot(name, default...)
func (c *call) slot(_ *scope.Namespace, args []any) (any, error) {
	name, children, err := nodeName("slot", args)
	if err != nil {
		return nil, err
	}
	return &Slot{Name: name, Children: children, call: c}, nil
}

// preamble({doctype = ..., ...}) changes the settings of the running call.
func (c *call) preamble(_ *scope.Namespace, args []any) (any, error) {
	for _, a := range args {
		var kv map[string]any
		switch v := a.(type) {
		case *scope.Namespace:
			kv = v.Map()
		case map[string]any:
			kv = v
		default:
			return nil, badArgs("preamble", fmt.Sprintf("expected an object, got %T", a))
		}
		if err := c.opts.preamble(kv); err != nil {
			return nil, err
		}
	}
	return "", nil
}
