package directive

import (
	"fmt"

	berrors "github.com/conneroisu/breve/pkg/errors"
	"github.com/conneroisu/breve/pkg/scope"
)

// Body is a macro body. Compiled template programs satisfy it.
type Body interface {
	Eval(ns *scope.Namespace) (any, error)
}

// BodyFunc adapts a Go function to Body.
type BodyFunc func(ns *scope.Namespace) (any, error)

// Eval calls f.
func (f BodyFunc) Eval(ns *scope.Namespace) (any, error) { return f(ns) }

// Param is one macro parameter.
type Param struct {
	Name       string
	Default    any
	HasDefault bool
}

// Macro is a named, parameterized template fragment. The body runs in a
// child frame of the scope the macro was defined in.
type Macro struct {
	Name   string
	Params []Param
	Body   Body
	Scope  *scope.Namespace
}

// Define creates a macro and binds it under name in ns.
func Define(ns *scope.Namespace, name string, params []Param, body Body) *Macro {
	m := &Macro{Name: name, Params: params, Body: body, Scope: ns}
	ns.Set(name, m)
	return m
}

// Call binds args to the parameters and evaluates the body. A trailing
// namespace or map whose keys all name parameters supplies keyword
// arguments.
func (m *Macro) Call(_ *scope.Namespace, args []any) (any, error) {
	frame, err := m.bind(args)
	if err != nil {
		return nil, err
	}
	v, err := m.Body.Eval(frame)
	if err != nil {
		return nil, wrapMacroErr(m.Name, err)
	}
	return v, nil
}

// Defer returns a node that calls the macro when the flattener reaches it.
func (m *Macro) Defer(args ...any) func() (any, error) {
	return func() (any, error) {
		return m.Call(nil, args)
	}
}

func (m *Macro) bind(args []any) (*scope.Namespace, error) {
	parent := m.Scope
	if parent == nil {
		parent = scope.New(nil)
	}
	frame := parent.Child()

	var kwargs map[string]any
	if n := len(args); n > 0 {
		if kw, ok := m.keywordArgs(args[n-1]); ok {
			kwargs = kw
			args = args[:n-1]
		}
	}

	if len(args) > len(m.Params) {
		return nil, berrors.NewEvaluationError(berrors.ErrCodeBadArguments,
			fmt.Sprintf("macro %s takes %d arguments, got %d", m.Name, len(m.Params), len(args)))
	}

	for i, p := range m.Params {
		switch {
		case i < len(args):
			frame.Set(p.Name, args[i])
		case hasKey(kwargs, p.Name):
			frame.Set(p.Name, kwargs[p.Name])
		case p.HasDefault:
			frame.Set(p.Name, p.Default)
		default:
			return nil, berrors.NewUnresolvedNameError(p.Name).
				WithContext("macro", m.Name)
		}
	}
	return frame, nil
}

func (m *Macro) keywordArgs(arg any) (map[string]any, bool) {
	var kw map[string]any
	switch a := arg.(type) {
	case *scope.Namespace:
		if a == nil {
			return nil, false
		}
		kw = a.Map()
	case map[string]any:
		kw = a
	default:
		return nil, false
	}
	if len(kw) == 0 {
		return nil, false
	}
	for k := range kw {
		if !m.hasParam(k) {
			return nil, false
		}
	}
	return kw, true
}

func (m *Macro) hasParam(name string) bool {
	for _, p := range m.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

func hasKey(m map[string]any, k string) bool {
	_, ok := m[k]
	return ok
}

func wrapMacroErr(name string, err error) error {
	if be, ok := berrors.AsBreveError(err); ok {
		if _, set := be.Context["macro"]; !set {
			be.WithContext("macro", name)
		}
		return be
	}
	wrapped := berrors.NewEvaluationError(berrors.ErrCodeCallFailed, fmt.Sprintf("macro %s failed", name))
	wrapped.Cause = err
	return wrapped
}
