package tags

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
)

// Record supplies substitution values for tag multiplication.
type Record interface {
	Value(key string) (any, bool)
}

var placeholder = regexp.MustCompile(`\$(?:\$|([A-Za-z_][A-Za-z0-9_]*)|\{([A-Za-z_][A-Za-z0-9_]*)\})`)

// Multiply returns one clone of t per record with $key and ${key}
// placeholders in attribute values and text children replaced by the
// record's values. Placeholders naming absent keys are left untouched and
// $$ yields a literal dollar sign. records must be a slice or array of
// records; each record may be a map with string keys or a Record.
func Multiply(t *Tag, records any) ([]any, error) {
	rv := reflect.ValueOf(records)
	if !rv.IsValid() {
		return nil, nil
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("cannot multiply tag %s by %T", t.Name, records)
	}

	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		lookup, err := recordLookup(rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, substituteTag(t, lookup))
	}
	return out, nil
}

type lookupFunc func(key string) (any, bool)

func recordLookup(rec any) (lookupFunc, error) {
	switch r := rec.(type) {
	case Record:
		return r.Value, nil
	case map[string]any:
		return func(k string) (any, bool) { v, ok := r[k]; return v, ok }, nil
	case map[string]string:
		return func(k string) (any, bool) { v, ok := r[k]; return v, ok }, nil
	}
	rv := reflect.ValueOf(rec)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		return func(k string) (any, bool) {
			v := rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key()))
			if !v.IsValid() {
				return nil, false
			}
			return v.Interface(), true
		}, nil
	}
	return nil, fmt.Errorf("%T is not a record", rec)
}

func substituteTag(t *Tag, lookup lookupFunc) *Tag {
	c := &Tag{Name: t.Name, Attrs: NewAttrs(), Kind: t.Kind}
	t.Attrs.Each(func(k string, v any) {
		if s, ok := v.(string); ok {
			v = Substitute(s, lookup)
		}
		c.Attrs.Set(k, v)
	})
	for _, child := range t.Children {
		c.Children = append(c.Children, substituteNode(child, lookup))
	}
	return c
}

func substituteNode(n any, lookup lookupFunc) any {
	switch v := n.(type) {
	case string:
		return Substitute(v, lookup)
	case *Tag:
		if v == nil {
			return v
		}
		return substituteTag(v, lookup)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = substituteNode(e, lookup)
		}
		return out
	default:
		return n
	}
}

// Substitute replaces placeholders in s using lookup.
func Substitute(s string, lookup func(string) (any, bool)) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		if m == "$$" {
			return "$"
		}
		sub := placeholder.FindStringSubmatch(m)
		key := sub[1]
		if key == "" {
			key = sub[2]
		}
		v, ok := lookup(key)
		if !ok {
			return m
		}
		return text(v)
	})
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case Raw:
		return string(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}
