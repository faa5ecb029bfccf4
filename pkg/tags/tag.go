// Package tags provides the markup tree: tags with ordered attributes and
// heterogeneous children, raw passthrough text, tag vocabularies, tag
// multiplication over records and depth-first traversal.
package tags

import (
	"fmt"
)

// Kind selects how a tag is serialized.
type Kind int

const (
	// KindElement is a normal element with open and close tags.
	KindElement Kind = iota
	// KindEmpty is a void element serialized as <name /> when childless.
	KindEmpty
	// KindComment serializes its children inside <!-- -->.
	KindComment
	// KindCDATA serializes its children inside a CDATA section.
	KindCDATA
	// KindInvisible serializes only its children.
	KindInvisible
	// KindInlineJS wraps its children in a script block with a CDATA guard.
	KindInlineJS
	// KindMinJS is KindInlineJS with whitespace-compressed content.
	KindMinJS
)

func (k Kind) String() string {
	switch k {
	case KindElement:
		return "element"
	case KindEmpty:
		return "empty"
	case KindComment:
		return "comment"
	case KindCDATA:
		return "cdata"
	case KindInvisible:
		return "invisible"
	case KindInlineJS:
		return "inlineJS"
	case KindMinJS:
		return "minJS"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Raw is markup emitted verbatim, bypassing escaping.
type Raw string

// Renderer produces the node serialized in place of a tag. It receives a
// copy of the tag, which it may clear and refill, and the tag's data.
type Renderer func(t *Tag, data any) (any, error)

// Tag is one node of the markup tree. Children may be strings, Raw, other
// tags, sequences, deferred functions or any value the flattener knows.
type Tag struct {
	Name     string
	Attrs    *Attrs
	Children []any
	Kind     Kind

	// Render, when set, is called by the flattener with Data.
	Render Renderer
	Data   any

	proto bool
}

// New creates an element. attrs follows the Attrs.Update conventions;
// malformed attribute arguments are ignored.
func New(name string, attrs ...any) *Tag {
	t := &Tag{Name: name, Attrs: NewAttrs(), Kind: kindFor(name)}
	_ = t.Attrs.Update(attrs...)
	_ = t.TakeHooks()
	return t
}

// NewKind creates a tag with an explicit serialization kind.
func NewKind(name string, kind Kind) *Tag {
	return &Tag{Name: name, Attrs: NewAttrs(), Kind: kind}
}

// Proto marks t as a shared prototype. Prototypes are never mutated: Call
// and With on a prototype work on a fresh clone.
func Proto(t *Tag) *Tag {
	t.proto = true
	return t
}

// IsProto reports whether t is a shared prototype.
func (t *Tag) IsProto() bool { return t.proto }

// Call returns a copy of t with attrs applied, the equivalent of calling a
// tag constructor.
func (t *Tag) Call(attrs ...any) (*Tag, error) {
	c := t.Clone()
	if err := c.Attrs.Update(attrs...); err != nil {
		return nil, fmt.Errorf("tag %s: %w", t.Name, err)
	}
	if err := c.TakeHooks(); err != nil {
		return nil, err
	}
	return c, nil
}

// Set applies attrs in place and returns t. A prototype is cloned first.
func (t *Tag) Set(attrs ...any) *Tag {
	if t.proto {
		t = t.Clone()
	}
	_ = t.Attrs.Update(attrs...)
	_ = t.TakeHooks()
	return t
}

// TakeHooks moves a render attribute into Render. Once a tag has a
// renderer its data attribute moves into Data; without one, data stays an
// ordinary attribute (<object data="...">).
func (t *Tag) TakeHooks() error {
	if v, ok := t.Attrs.Get("render"); ok {
		r, ok := AsRenderer(v)
		if !ok {
			return fmt.Errorf("tag %s: render must be a renderer function, got %T", t.Name, v)
		}
		t.Render = r
		t.Attrs.Delete("render")
	}
	if t.Render == nil {
		return nil
	}
	if v, ok := t.Attrs.Get("data"); ok {
		t.Data = v
		t.Attrs.Delete("data")
	}
	return nil
}

// AsRenderer converts the function shapes accepted as renderers.
func AsRenderer(v any) (Renderer, bool) {
	switch f := v.(type) {
	case Renderer:
		return f, f != nil
	case func(*Tag, any) (any, error):
		return f, f != nil
	case func(*Tag, any) any:
		if f == nil {
			return nil, false
		}
		return func(t *Tag, data any) (any, error) { return f(t, data), nil }, true
	}
	return nil, false
}

// Clear removes every child and returns t.
func (t *Tag) Clear() *Tag {
	t.Children = nil
	return t
}

// With appends children and returns t. A prototype is cloned first.
func (t *Tag) With(children ...any) *Tag {
	if t.proto {
		t = t.Clone()
	}
	t.Children = append(t.Children, children...)
	return t
}

// Insert places child at position i among the children.
func (t *Tag) Insert(i int, child any) {
	if i < 0 {
		i = 0
	}
	if i >= len(t.Children) {
		t.Children = append(t.Children, child)
		return
	}
	t.Children = append(t.Children, nil)
	copy(t.Children[i+1:], t.Children[i:])
	t.Children[i] = child
}

// Attr returns the attribute value for name, or nil.
func (t *Tag) Attr(name string) any {
	v, _ := t.Attrs.Get(name)
	return v
}

// Clone deep-copies t and every child tag beneath it. Non-tag children are
// shared. The copy is never a prototype.
func (t *Tag) Clone() *Tag {
	c := &Tag{
		Name:   t.Name,
		Attrs:  t.Attrs.Clone(),
		Kind:   t.Kind,
		Render: t.Render,
		Data:   t.Data,
	}
	if len(t.Children) > 0 {
		c.Children = make([]any, len(t.Children))
		for i, child := range t.Children {
			c.Children[i] = cloneNode(child)
		}
	}
	return c
}

func cloneNode(n any) any {
	switch v := n.(type) {
	case *Tag:
		if v == nil {
			return v
		}
		return v.Clone()
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneNode(e)
		}
		return out
	default:
		return n
	}
}

func (t *Tag) String() string {
	return fmt.Sprintf("<%s %d attrs, %d children>", t.Name, t.Attrs.Len(), len(t.Children))
}

var emptyElements = map[string]bool{
	"br": true, "hr": true, "img": true, "meta": true, "link": true,
	"input": true, "area": true, "base": true, "col": true, "param": true,
}

// IsEmptyElement reports whether name is a void element.
func IsEmptyElement(name string) bool {
	return emptyElements[name]
}

func kindFor(name string) Kind {
	if emptyElements[name] {
		return KindEmpty
	}
	return KindElement
}
