package tags

import "reflect"

// Visitor is called for every node reached by Walk. isTag is true for *Tag
// nodes. Returning false skips the children of a tag.
type Visitor func(node any, isTag bool) bool

// Walk traverses t depth-first in pre-order, visiting tags and the non-tag
// leaves between them in child order. Nested sequences are walked in place.
// The visitor may mutate a tag's attributes and children; children added
// during its own visit are walked.
func Walk(t *Tag, visit Visitor, includeSelf bool) {
	if t == nil {
		return
	}
	if includeSelf && !visit(t, true) {
		return
	}
	walkChildren(t, visit)
}

func walkChildren(t *Tag, visit Visitor) {
	for i := 0; i < len(t.Children); i++ {
		walkNode(t.Children[i], visit)
	}
}

func walkNode(n any, visit Visitor) {
	switch v := n.(type) {
	case *Tag:
		if v == nil {
			return
		}
		if visit(v, true) {
			walkChildren(v, visit)
		}
	case []any:
		for _, e := range v {
			walkNode(e, visit)
		}
	case string, Raw, nil:
		visit(n, false)
	default:
		rv := reflect.ValueOf(n)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			for i := 0; i < rv.Len(); i++ {
				walkNode(rv.Index(i).Interface(), visit)
			}
			return
		}
		visit(n, false)
	}
}
