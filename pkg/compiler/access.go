package compiler

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	berrors "github.com/conneroisu/breve/pkg/errors"
	"github.com/conneroisu/breve/pkg/scope"
	"github.com/conneroisu/breve/pkg/tags"
)

// Resolver is implemented by name factories reachable through attribute
// access, such as tag vocabularies, auto-tag factories and entity tables.
type Resolver interface {
	Resolve(name string) (any, error)
}

// Attr resolves v.name.
func Attr(v any, name string) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, berrors.NewUnresolvedNameError(name).WithContext("reason", "attribute of null")
	case *scope.Namespace:
		if out, ok := x.Get(name); ok {
			return out, nil
		}
		return nil, berrors.NewUnresolvedNameError(name).
			WithSuggestions(berrors.SuggestNames(name, x.AllKeys())...)
	case Resolver:
		out, err := x.Resolve(name)
		if err != nil {
			return nil, berrors.NewUnresolvedNameError(name).WithContext("reason", err.Error())
		}
		return out, nil
	case *tags.Tag:
		switch name {
		case "name":
			return x.Name, nil
		case "attrs":
			return attrsNamespace(x.Attrs), nil
		case "children":
			return x.Children, nil
		}
		return x.Attr(name), nil
	case *tags.Attrs:
		out, _ := x.Get(name)
		return out, nil
	case map[string]any:
		if out, ok := x[name]; ok {
			return out, nil
		}
		return nil, berrors.NewUnresolvedNameError(name).
			WithSuggestions(berrors.SuggestNames(name, sortedMapKeys(x))...)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, berrors.NewUnresolvedNameError(name).WithContext("reason", "attribute of nil pointer")
		}
		if m := methodByName(rv, name); m.IsValid() {
			return callMethod(m, name)
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			mv := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
			if mv.IsValid() {
				return mv.Interface(), nil
			}
		}
	case reflect.Struct:
		fv := rv.FieldByNameFunc(func(n string) bool {
			return n == name || strings.EqualFold(n, name)
		})
		if fv.IsValid() && fv.CanInterface() {
			return fv.Interface(), nil
		}
		if m := methodByName(rv, name); m.IsValid() {
			return callMethod(m, name)
		}
	}
	return nil, berrors.NewUnresolvedNameError(name).WithContext("type", fmt.Sprintf("%T", v))
}

func methodByName(rv reflect.Value, name string) reflect.Value {
	if m := rv.MethodByName(name); m.IsValid() {
		return m
	}
	if name == "" {
		return reflect.Value{}
	}
	exported := strings.ToUpper(name[:1]) + name[1:]
	return rv.MethodByName(exported)
}

func callMethod(m reflect.Value, name string) (any, error) {
	if m.Type().NumIn() != 0 {
		return m.Interface(), nil
	}
	out, err := callReflect(m, nil)
	if err != nil {
		return nil, fmt.Errorf("method %s: %w", name, err)
	}
	return out, nil
}

func attrsNamespace(a *tags.Attrs) *scope.Namespace {
	ns := scope.New(nil)
	a.Each(ns.Set)
	return ns
}

// Index resolves v[key].
func Index(v any, key any) (any, error) {
	if s, ok := key.(string); ok {
		switch v.(type) {
		case *scope.Namespace, map[string]any, *tags.Tag, *tags.Attrs, Resolver:
			return Attr(v, s)
		}
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
		i, ok := toInt(key)
		if !ok {
			return nil, berrors.NewEvaluationError(berrors.ErrCodeBadOperand,
				fmt.Sprintf("index must be a whole number, got %T", key))
		}
		// Strings index by character, matching len().
		var runes []rune
		n := rv.Len()
		if rv.Kind() == reflect.String {
			runes = []rune(rv.String())
			n = len(runes)
		}
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return nil, berrors.NewEvaluationError(berrors.ErrCodeBadOperand,
				fmt.Sprintf("index %d out of range for length %d", i, n))
		}
		if runes != nil {
			return string(runes[i]), nil
		}
		return rv.Index(i).Interface(), nil
	case reflect.Map:
		kv := reflect.ValueOf(key)
		if !kv.IsValid() || !kv.Type().ConvertibleTo(rv.Type().Key()) {
			return nil, berrors.NewEvaluationError(berrors.ErrCodeBadOperand,
				fmt.Sprintf("cannot index %T with %T", v, key))
		}
		mv := rv.MapIndex(kv.Convert(rv.Type().Key()))
		if !mv.IsValid() {
			return nil, berrors.NewUnresolvedNameError(Str(key))
		}
		return mv.Interface(), nil
	}
	if s, ok := key.(string); ok {
		return Attr(v, s)
	}
	return nil, berrors.NewEvaluationError(berrors.ErrCodeBadOperand,
		fmt.Sprintf("cannot index %T", v))
}

type pair struct {
	key   any
	value any
}

// iterate returns the key/value pairs of a collection in a stable order:
// sequences by position, namespaces by insertion and maps by sorted key.
func iterate(v any) ([]pair, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case *scope.Namespace:
		out := make([]pair, 0, x.Len())
		for _, k := range x.Keys() {
			val, _ := x.Get(k)
			out = append(out, pair{k, val})
		}
		return out, nil
	case *tags.Tag:
		return iterate(x.Children)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]pair, rv.Len())
		for i := range out {
			out[i] = pair{int64(i), rv.Index(i).Interface()}
		}
		return out, nil
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		out := make([]pair, len(keys))
		for i, k := range keys {
			out[i] = pair{k.Interface(), rv.MapIndex(k).Interface()}
		}
		return out, nil
	}
	return nil, berrors.NewEvaluationError(berrors.ErrCodeBadOperand,
		fmt.Sprintf("cannot iterate over %T", v))
}

func toSlice(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}

// Str converts v to plain text without escaping.
func Str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case tags.Raw:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

func sortedMapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
