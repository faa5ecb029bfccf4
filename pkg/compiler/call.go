package compiler

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsyntax"

	"github.com/conneroisu/breve/pkg/directive"
	berrors "github.com/conneroisu/breve/pkg/errors"
	"github.com/conneroisu/breve/pkg/scope"
	"github.com/conneroisu/breve/pkg/tags"
)

func (c *compiler) call(e *hclsyntax.FunctionCallExpr) (evalFn, error) {
	switch e.Name {
	case "macro":
		return c.macro(e)
	case "lambda":
		return c.lambda(e)
	}

	args, err := c.exprs(e.Args)
	if err != nil {
		return nil, err
	}
	path := strings.Split(e.Name, "::")
	expand := e.ExpandFinal
	rng := e.Range()
	name := e.Name

	return func(fr *scope.Namespace) (any, error) {
		fn, err := fr.Lookup(path[0])
		if err != nil {
			return nil, c.locate(err, e.NameRange)
		}
		for _, member := range path[1:] {
			if fn, err = Attr(fn, member); err != nil {
				return nil, c.locate(err, e.NameRange)
			}
		}

		vals := make([]any, 0, len(args))
		for _, a := range args {
			v, err := a(fr)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		}
		if expand && len(vals) > 0 {
			last := vals[len(vals)-1]
			vals = append(vals[:len(vals)-1], toSlice(last)...)
		}

		out, err := Call(fr, fn, vals)
		if err != nil {
			if be, ok := berrors.AsBreveError(err); ok && be.Context["function"] == nil {
				be.WithContext("function", name)
			}
			return nil, c.locate(err, rng)
		}
		return out, nil
	}, nil
}

// macro(name, body) or macro(name, params, body). params is a list whose
// items are parameter names or single-key objects giving a default, or an
// object mapping every parameter to its default.
func (c *compiler) macro(e *hclsyntax.FunctionCallExpr) (evalFn, error) {
	if len(e.Args) < 2 || len(e.Args) > 3 {
		return nil, c.badForm(e, "macro takes a name, optional parameters and a body")
	}
	nameFn, err := c.expr(e.Args[0])
	if err != nil {
		return nil, err
	}
	var paramsFn evalFn
	if len(e.Args) == 3 {
		if paramsFn, err = c.expr(e.Args[1]); err != nil {
			return nil, err
		}
	}
	body, err := c.expr(e.Args[len(e.Args)-1])
	if err != nil {
		return nil, err
	}
	rng := e.Range()

	return func(fr *scope.Namespace) (any, error) {
		nv, err := nameFn(fr)
		if err != nil {
			return nil, err
		}
		name, ok := nv.(string)
		if !ok || name == "" {
			return nil, c.locate(berrors.NewEvaluationError(berrors.ErrCodeBadArguments,
				fmt.Sprintf("macro name must be a non-empty string, got %T", nv)), rng)
		}
		var params []directive.Param
		if paramsFn != nil {
			pv, err := paramsFn(fr)
			if err != nil {
				return nil, err
			}
			if params, err = toParams(pv); err != nil {
				return nil, c.locate(err, rng)
			}
		}
		directive.Define(fr, name, params, directive.BodyFunc(body))
		return "", nil
	}, nil
}

func toParams(v any) ([]directive.Param, error) {
	var out []directive.Param
	addDefaults := func(ns *scope.Namespace) {
		for _, k := range ns.Keys() {
			d, _ := ns.Get(k)
			out = append(out, directive.Param{Name: k, Default: d, HasDefault: true})
		}
	}
	switch p := v.(type) {
	case nil:
		return nil, nil
	case *scope.Namespace:
		addDefaults(p)
		return out, nil
	case string:
		return []directive.Param{{Name: p}}, nil
	}
	for _, item := range toSlice(v) {
		switch it := item.(type) {
		case string:
			out = append(out, directive.Param{Name: it})
		case *scope.Namespace:
			addDefaults(it)
		default:
			return nil, berrors.NewEvaluationError(berrors.ErrCodeBadArguments,
				fmt.Sprintf("macro parameter must be a name or an object, got %T", item))
		}
	}
	return out, nil
}

// lambda(body) captures the current frame and defers body until the
// flattener reaches the node.
func (c *compiler) lambda(e *hclsyntax.FunctionCallExpr) (evalFn, error) {
	if len(e.Args) != 1 {
		return nil, c.badForm(e, "lambda takes exactly one body")
	}
	body, err := c.expr(e.Args[0])
	if err != nil {
		return nil, err
	}
	return func(fr *scope.Namespace) (any, error) {
		return func() (any, error) { return body(fr) }, nil
	}, nil
}

func (c *compiler) badForm(e *hclsyntax.FunctionCallExpr, msg string) error {
	err := berrors.NewCompileError(c.name, msg, nil)
	err.Code = berrors.ErrCodeBadArguments
	return err.WithLocation(c.name, e.NameRange.Start.Line, e.NameRange.Start.Column)
}

// Call invokes fn with args. Tags are cloned: a leading object argument
// becomes attributes and the rest become children. Callables receive the
// active frame. Other Go functions are called through reflection.
func Call(fr *scope.Namespace, fn any, args []any) (any, error) {
	switch f := fn.(type) {
	case *tags.Tag:
		return callTag(fr, f, args)
	case scope.Callable:
		return f.Call(fr, args)
	case func(args ...any) (any, error):
		return f(args...)
	}

	rv := reflect.ValueOf(fn)
	if rv.Kind() == reflect.Func && !rv.IsNil() {
		return callReflect(rv, args)
	}
	return nil, berrors.NewEvaluationError(berrors.ErrCodeNotCallable,
		fmt.Sprintf("value of type %T is not callable", fn))
}

func callTag(fr *scope.Namespace, t *tags.Tag, args []any) (any, error) {
	c := t.Clone()
	if len(args) > 0 && isAttrSource(args[0]) {
		if err := c.Attrs.Update(args[0]); err != nil {
			return nil, berrors.NewEvaluationError(berrors.ErrCodeBadArguments,
				fmt.Sprintf("attributes of %s: %v", t.Name, err))
		}
		args = args[1:]
		bindRenderer(fr, c)
		if err := c.TakeHooks(); err != nil {
			return nil, berrors.NewEvaluationError(berrors.ErrCodeBadArguments, err.Error())
		}
	}
	c.Children = append(c.Children, args...)
	return c, nil
}

// bindRenderer turns a callable render attribute (a macro, a registered
// function) into a tags.Renderer evaluated in fr.
func bindRenderer(fr *scope.Namespace, t *tags.Tag) {
	v, ok := t.Attrs.Get("render")
	if !ok {
		return
	}
	if _, ok := tags.AsRenderer(v); ok {
		return
	}
	if _, ok := v.(scope.Callable); !ok && reflect.ValueOf(v).Kind() != reflect.Func {
		return
	}
	t.Attrs.Set("render", tags.Renderer(func(rt *tags.Tag, data any) (any, error) {
		return Call(fr, v, []any{rt, data})
	}))
}

func isAttrSource(v any) bool {
	switch v.(type) {
	case *scope.Namespace, map[string]any, map[string]string:
		return true
	}
	return false
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func callReflect(fn reflect.Value, args []any) (any, error) {
	ft := fn.Type()
	n := ft.NumIn()
	if ft.IsVariadic() {
		if len(args) < n-1 {
			return nil, berrors.NewEvaluationError(berrors.ErrCodeBadArguments,
				fmt.Sprintf("expected at least %d arguments, got %d", n-1, len(args)))
		}
	} else if len(args) != n {
		return nil, berrors.NewEvaluationError(berrors.ErrCodeBadArguments,
			fmt.Sprintf("expected %d arguments, got %d", n, len(args)))
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var pt reflect.Type
		if ft.IsVariadic() && i >= n-1 {
			pt = ft.In(n - 1).Elem()
		} else {
			pt = ft.In(i)
		}
		v, err := convertArg(a, pt)
		if err != nil {
			return nil, berrors.NewEvaluationError(berrors.ErrCodeBadArguments,
				fmt.Sprintf("argument %d: %v", i+1, err))
		}
		in[i] = v
	}

	out := fn.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if ft.Out(0) == errorType {
			err, _ := out[0].Interface().(error)
			return nil, err
		}
		return out[0].Interface(), nil
	case 2:
		var err error
		if ft.Out(1) == errorType {
			err, _ = out[1].Interface().(error)
		}
		return out[0].Interface(), err
	}
	return nil, berrors.NewEvaluationError(berrors.ErrCodeNotCallable,
		fmt.Sprintf("function returns %d values", len(out)))
}

func convertArg(a any, t reflect.Type) (reflect.Value, error) {
	if a == nil {
		return reflect.Zero(t), nil
	}
	v := reflect.ValueOf(a)
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	if isNumericKind(v.Kind()) && isNumericKind(t.Kind()) {
		return v.Convert(t), nil
	}
	if t.Kind() == reflect.String {
		return reflect.ValueOf(Str(a)).Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", a, t)
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
