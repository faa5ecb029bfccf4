// Package flatten serializes tag trees and the values embedded in them into
// markup text.
package flatten

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/conneroisu/breve/internal/logging"
	"github.com/conneroisu/breve/pkg/directive"
	berrors "github.com/conneroisu/breve/pkg/errors"
	"github.com/conneroisu/breve/pkg/scope"
	"github.com/conneroisu/breve/pkg/tags"
)

// Flattenable is implemented by nodes that produce their own markup, such
// as the inheritance directives.
type Flattenable interface {
	Flatten(f *Flattener) (string, error)
}

// Flattener turns a node tree into markup.
type Flattener struct {
	Registry *Registry
	Debug    bool
	Logger   logging.Logger
	Context  context.Context
}

// Option configures a Flattener.
type Option func(*Flattener)

// WithDebug replaces failing children with an inline diagnostic instead of
// aborting.
func WithDebug(debug bool) Option {
	return func(f *Flattener) { f.Debug = debug }
}

// WithLogger sets the logger used for debug diagnostics.
func WithLogger(l logging.Logger) Option {
	return func(f *Flattener) { f.Logger = l }
}

// WithContext sets the context passed to templ components.
func WithContext(ctx context.Context) Option {
	return func(f *Flattener) { f.Context = ctx }
}

// New creates a Flattener. A nil registry gets the default one.
func New(reg *Registry, opts ...Option) *Flattener {
	if reg == nil {
		reg = DefaultRegistry()
	}
	f := &Flattener{Registry: reg, Logger: logging.Nop(), Context: context.Background()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Flatten serializes node.
func Flatten(node any) (string, error) {
	return New(nil).Flatten(node)
}

// Flatten serializes node.
func (f *Flattener) Flatten(node any) (string, error) {
	var b strings.Builder
	if err := f.child(&b, node, false); err != nil {
		return "", err
	}
	return b.String(), nil
}

// child writes one node. In debug mode a failure is replaced by a
// diagnostic span and swallowed.
func (f *Flattener) child(b *strings.Builder, node any, rawText bool) error {
	var sub strings.Builder
	err := f.write(&sub, node, rawText)
	if err == nil {
		b.WriteString(sub.String())
		return nil
	}
	if !f.Debug {
		return err
	}
	f.Logger.Warn(f.Context, err, "flatten failed, emitting diagnostic")
	b.WriteString(Diagnostic(err))
	return nil
}

// Diagnostic renders err as an inline error marker.
func Diagnostic(err error) string {
	return `<span class="template_exception">Error in template: ` + EscapeText(err.Error()) + `</span>`
}

func (f *Flattener) write(b *strings.Builder, node any, rawText bool) error {
	if node == nil {
		return nil
	}
	if fn, ok := f.Registry.Lookup(reflect.TypeOf(node)); ok {
		s, err := fn(f, node)
		if err != nil {
			return berrors.NewFlattenError(fmt.Sprintf("flattener for %T failed", node), err)
		}
		b.WriteString(s)
		return nil
	}

	switch v := node.(type) {
	case string:
		if rawText {
			b.WriteString(v)
		} else {
			b.WriteString(EscapeText(v))
		}
		return nil
	case tags.Raw:
		b.WriteString(string(v))
		return nil
	case bool, directive.Condition:
		return nil
	case *tags.Tag:
		if v == nil {
			return nil
		}
		return f.tag(b, v)
	case []any:
		return f.children(b, v, rawText)
	case Flattenable:
		s, err := v.Flatten(f)
		if err != nil {
			return err
		}
		b.WriteString(s)
		return nil
	case templ.Component:
		if err := v.Render(f.Context, b); err != nil {
			return berrors.NewFlattenError("templ component failed to render", err)
		}
		return nil
	case func() any:
		return f.child(b, v(), rawText)
	case func() (any, error):
		out, err := v()
		if err != nil {
			return err
		}
		return f.child(b, out, rawText)
	case func() string:
		return f.child(b, v(), rawText)
	case []byte:
		return f.write(b, string(v), rawText)
	case error:
		return berrors.NewFlattenError("cannot flatten an error value", v)
	case *directive.Macro:
		return berrors.NewFlattenError(fmt.Sprintf("macro %s used without being called", v.Name), nil)
	case *scope.Namespace:
		return berrors.NewFlattenError("cannot flatten a namespace", nil)
	case int:
		b.WriteString(strconv.Itoa(v))
		return nil
	case int64:
		b.WriteString(strconv.FormatInt(v, 10))
		return nil
	case float64:
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		return nil
	case fmt.Stringer:
		return f.write(b, v.String(), rawText)
	}

	rv := reflect.ValueOf(node)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := f.child(b, rv.Index(i).Interface(), rawText); err != nil {
				return err
			}
		}
		return nil
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString(strconv.FormatInt(rv.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		b.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return nil
	case reflect.Float32:
		b.WriteString(strconv.FormatFloat(rv.Float(), 'f', -1, 32))
		return nil
	case reflect.String:
		return f.write(b, rv.String(), rawText)
	case reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return berrors.NewFlattenError(fmt.Sprintf("cannot flatten value of type %T", node), nil)
	}
	return f.write(b, fmt.Sprint(node), rawText)
}

func (f *Flattener) children(b *strings.Builder, nodes []any, rawText bool) error {
	for _, n := range nodes {
		if err := f.child(b, n, rawText); err != nil {
			return err
		}
	}
	return nil
}

func (f *Flattener) tag(b *strings.Builder, t *tags.Tag) error {
	if t.Render != nil {
		return f.rendered(b, t)
	}
	switch t.Kind {
	case tags.KindInvisible:
		return f.children(b, t.Children, false)
	case tags.KindComment:
		b.WriteString("<!-- ")
		if err := f.children(b, t.Children, false); err != nil {
			return err
		}
		b.WriteString(" -->")
		return nil
	case tags.KindCDATA:
		var inner strings.Builder
		if err := f.children(&inner, t.Children, true); err != nil {
			return err
		}
		b.WriteString("<![CDATA[")
		b.WriteString(strings.ReplaceAll(inner.String(), "]]>", "]]]]><![CDATA[>"))
		b.WriteString("]]>")
		return nil
	case tags.KindInlineJS, tags.KindMinJS:
		var inner strings.Builder
		if err := f.children(&inner, t.Children, true); err != nil {
			return err
		}
		script := inner.String()
		if t.Kind == tags.KindMinJS {
			min, err := CompressJS(script)
			if err != nil {
				return err
			}
			script = min
		}
		b.WriteString("\n<script type=\"text/javascript\">\n//<![CDATA[\n")
		b.WriteString(script)
		b.WriteString("\n//]]></script>\n")
		return nil
	}

	b.WriteString("<")
	b.WriteString(t.Name)
	var attrErr error
	t.Attrs.Each(func(name string, value any) {
		if attrErr != nil {
			return
		}
		text, ok, err := f.attrValue(value)
		if err != nil {
			attrErr = berrors.NewFlattenError(fmt.Sprintf("attribute %s of <%s>", name, t.Name), err)
			return
		}
		if !ok {
			return
		}
		b.WriteString(" ")
		b.WriteString(name)
		b.WriteString(`="`)
		b.WriteString(text)
		b.WriteString(`"`)
	})
	if attrErr != nil {
		return attrErr
	}

	if t.Kind == tags.KindEmpty && len(t.Children) == 0 {
		b.WriteString(" />")
		return nil
	}
	b.WriteString(">")
	if err := f.children(b, t.Children, false); err != nil {
		return err
	}
	b.WriteString("</")
	b.WriteString(t.Name)
	b.WriteString(">")
	return nil
}

// rendered serializes what t's renderer returns for a copy of t. A
// returned tag is serialized without calling a renderer again.
func (f *Flattener) rendered(b *strings.Builder, t *tags.Tag) error {
	c := t.Clone()
	c.Render = nil
	out, err := t.Render(c, t.Data)
	if err != nil {
		return berrors.NewFlattenError(fmt.Sprintf("renderer of <%s> failed", t.Name), err)
	}
	if rt, ok := out.(*tags.Tag); ok && rt != nil {
		if rt.Render != nil {
			rt = rt.Clone()
			rt.Render = nil
		}
		return f.tag(b, rt)
	}
	return f.child(b, out, false)
}

// attrValue returns the escaped text of an attribute value and whether the
// attribute is emitted at all. false omits the attribute; true renders it
// as an empty string.
func (f *Flattener) attrValue(v any) (string, bool, error) {
	switch x := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return EscapeAttr(x), true, nil
	case tags.Raw:
		return string(x), true, nil
	case bool:
		return "", x, nil
	}
	var b strings.Builder
	if err := f.write(&b, v, false); err != nil {
		return "", false, err
	}
	return quoteOnly.Replace(b.String()), true, nil
}
