package compiler

import (
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/conneroisu/breve/pkg/directive"
	berrors "github.com/conneroisu/breve/pkg/errors"
	"github.com/conneroisu/breve/pkg/scope"
	"github.com/conneroisu/breve/pkg/tags"
)

// Builtins returns the functions every template can call.
func Builtins() map[string]any {
	return map[string]any{
		"tag":   scope.Func(builtinTag),
		"len":   scope.Func(builtinLen),
		"range": scope.Func(builtinRange),
		"join":  scope.Func(builtinJoin),
		"format": scope.Func(func(_ *scope.Namespace, args []any) (any, error) {
			if len(args) == 0 {
				return nil, argError("format", "requires a format string")
			}
			f, ok := args[0].(string)
			if !ok {
				return nil, argError("format", "format must be a string")
			}
			return fmt.Sprintf(f, args[1:]...), nil
		}),
		"upper": stringFunc("upper", strings.ToUpper),
		"lower": stringFunc("lower", strings.ToLower),
		"str": scope.Func(func(_ *scope.Namespace, args []any) (any, error) {
			if len(args) != 1 {
				return nil, argError("str", "takes exactly one argument")
			}
			return Str(args[0]), nil
		}),
		"walk": scope.Func(builtinWalk),
	}
}

func argError(fn, msg string) error {
	return berrors.NewEvaluationError(berrors.ErrCodeBadArguments, fn+": "+msg).WithContext("function", fn)
}

// tag(name, attrs?, children...) creates a tag with an arbitrary name.
func builtinTag(fr *scope.Namespace, args []any) (any, error) {
	if len(args) == 0 {
		return nil, argError("tag", "takes a name, optional attributes and children")
	}
	name, ok := args[0].(string)
	if !ok || name == "" {
		return nil, argError("tag", "name must be a non-empty string")
	}
	return callTag(fr, tags.New(name), args[1:])
}

func builtinLen(_ *scope.Namespace, args []any) (any, error) {
	if len(args) != 1 {
		return nil, argError("len", "takes exactly one argument")
	}
	switch v := args[0].(type) {
	case nil:
		return int64(0), nil
	case *scope.Namespace:
		return int64(v.Len()), nil
	case *tags.Tag:
		return int64(len(v.Children)), nil
	case string:
		return int64(len([]rune(v))), nil
	}
	rv := reflect.ValueOf(args[0])
	switch rv.Kind() {
	case reflect.String:
		return int64(utf8.RuneCountInString(rv.String())), nil
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return int64(rv.Len()), nil
	}
	return nil, argError("len", fmt.Sprintf("%T has no length", args[0]))
}

// range(n), range(start, end) or range(start, end, step); end is
// exclusive.
func builtinRange(_ *scope.Namespace, args []any) (any, error) {
	nums := make([]int, len(args))
	for i, a := range args {
		n, ok := toInt(a)
		if !ok {
			return nil, argError("range", fmt.Sprintf("argument %d must be a whole number", i+1))
		}
		nums[i] = n
	}

	start, end, step := 0, 0, 1
	switch len(nums) {
	case 1:
		end = nums[0]
	case 2:
		start, end = nums[0], nums[1]
	case 3:
		start, end, step = nums[0], nums[1], nums[2]
	default:
		return nil, argError("range", fmt.Sprintf("takes 1 to 3 arguments, got %d", len(args)))
	}
	if step == 0 {
		return nil, argError("range", "step cannot be zero")
	}

	out := []any{}
	if step > 0 {
		for i := start; i < end; i += step {
			out = append(out, int64(i))
		}
	} else {
		for i := start; i > end; i += step {
			out = append(out, int64(i))
		}
	}
	return out, nil
}

// join(separator, list) concatenates the text of list items.
func builtinJoin(_ *scope.Namespace, args []any) (any, error) {
	if len(args) != 2 {
		return nil, argError("join", "takes a separator and a list")
	}
	sep, ok := args[0].(string)
	if !ok {
		return nil, argError("join", "separator must be a string")
	}
	items := toSlice(args[1])
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = Str(it)
	}
	return strings.Join(parts, sep), nil
}

func stringFunc(name string, fn func(string) string) scope.Func {
	return func(_ *scope.Namespace, args []any) (any, error) {
		if len(args) != 1 {
			return nil, argError(name, "takes exactly one argument")
		}
		return fn(Str(args[0])), nil
	}
}

// walk(tag, visitor, includeSelf?) calls visitor(node, isTag) for every node
// beneath tag. A visitor returning false skips a tag's children.
func builtinWalk(fr *scope.Namespace, args []any) (any, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, argError("walk", "takes a tag, a visitor and an optional includeSelf flag")
	}
	root, ok := args[0].(*tags.Tag)
	if !ok {
		return nil, argError("walk", fmt.Sprintf("first argument must be a tag, got %T", args[0]))
	}
	visitor := args[1]
	includeSelf := len(args) == 3 && directive.Truthy(args[2])

	var walkErr error
	tags.Walk(root, func(node any, isTag bool) bool {
		if walkErr != nil {
			return false
		}
		out, err := Call(fr, visitor, []any{node, isTag})
		if err != nil {
			walkErr = err
			return false
		}
		if b, ok := out.(bool); ok {
			return b
		}
		return true
	}, includeSelf)
	if walkErr != nil {
		return nil, walkErr
	}
	return "", nil
}
