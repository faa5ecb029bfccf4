package directive

import (
	"fmt"

	berrors "github.com/conneroisu/breve/pkg/errors"
	"github.com/conneroisu/breve/pkg/scope"
)

// Funcs returns the directive callables bound into every render scope.
// push and pop operate on stack.
func Funcs(stack *scope.GlobalStack) map[string]any {
	return map[string]any{
		"check": scope.Func(func(_ *scope.Namespace, args []any) (any, error) {
			if len(args) != 1 {
				return nil, badArgs("check", "takes exactly one argument")
			}
			return Check(args[0]), nil
		}),
		"let": scope.Func(func(ns *scope.Namespace, args []any) (any, error) {
			for _, a := range args {
				if _, err := Let(ns, a); err != nil {
					return nil, badArgs("let", err.Error())
				}
			}
			return Invisible(), nil
		}),
		"assign": scope.Func(func(ns *scope.Namespace, args []any) (any, error) {
			if len(args) != 2 {
				return nil, badArgs("assign", "takes a name and a value")
			}
			name, ok := args[0].(string)
			if !ok {
				return nil, badArgs("assign", fmt.Sprintf("name must be a string, got %T", args[0]))
			}
			return Assign(ns, name, args[1]), nil
		}),
		"comment": scope.Func(func(_ *scope.Namespace, args []any) (any, error) {
			return Comment(args...), nil
		}),
		"cdata": scope.Func(func(_ *scope.Namespace, args []any) (any, error) {
			return CDATA(args...), nil
		}),
		"invisible": scope.Func(func(_ *scope.Namespace, args []any) (any, error) {
			return Invisible(args...), nil
		}),
		"xml": scope.Func(func(_ *scope.Namespace, args []any) (any, error) {
			if len(args) != 1 {
				return nil, badArgs("xml", "takes exactly one argument")
			}
			s, ok := args[0].(string)
			if !ok {
				return nil, badArgs("xml", fmt.Sprintf("expected a string, got %T", args[0]))
			}
			return XML(s), nil
		}),
		"push": scope.Func(func(_ *scope.Namespace, args []any) (any, error) {
			for _, a := range args {
				kv, err := toMap(a)
				if err != nil {
					return nil, badArgs("push", err.Error())
				}
				stack.Push(kv)
			}
			return Invisible(), nil
		}),
		"pop": scope.Func(func(_ *scope.Namespace, args []any) (any, error) {
			if len(args) != 1 {
				return nil, badArgs("pop", "takes exactly one key")
			}
			key, ok := args[0].(string)
			if !ok {
				return nil, badArgs("pop", fmt.Sprintf("key must be a string, got %T", args[0]))
			}
			return stack.Pop(key)
		}),
	}
}

func toMap(v any) (map[string]any, error) {
	switch m := v.(type) {
	case *scope.Namespace:
		return m.Map(), nil
	case map[string]any:
		return m, nil
	}
	return nil, fmt.Errorf("expected an object, got %T", v)
}

func badArgs(fn, msg string) error {
	return berrors.NewEvaluationError(berrors.ErrCodeBadArguments, fn+": "+msg).
		WithContext("function", fn)
}
