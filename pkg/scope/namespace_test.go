package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	berrors "github.com/conneroisu/breve/pkg/errors"
)

func TestNamespace_OrderAndRebind(t *testing.T) {
	ns, err := NewOrdered("b", 1, "a", 2, "c", 3)
	require.NoError(t, err)

	ns.Set("a", 20)
	assert.Equal(t, []string{"b", "a", "c"}, ns.Keys())

	v, ok := ns.Get("a")
	require.True(t, ok)
	assert.Equal(t, 20, v)

	ns.Delete("b")
	assert.Equal(t, []string{"a", "c"}, ns.Keys())
	assert.Equal(t, 2, ns.Len())
}

func TestNewOrdered_Errors(t *testing.T) {
	_, err := NewOrdered("a")
	assert.Error(t, err)

	_, err = NewOrdered(1, "a")
	assert.Error(t, err)
}

func TestNamespace_ChildFrames(t *testing.T) {
	root := New(map[string]any{"title": "root", "shared": 1})
	child := root.Child()
	child.Set("title", "child")

	v, _ := child.Get("title")
	assert.Equal(t, "child", v)
	v, _ = root.Get("title")
	assert.Equal(t, "root", v)

	assert.True(t, child.Has("shared"))
	assert.False(t, child.HasOwn("shared"))
	assert.Same(t, root, child.Parent())

	// Bindings added to the parent after the child was created are visible.
	root.Set("late", true)
	assert.True(t, child.Has("late"))
}

func TestNamespace_LookupSuggestions(t *testing.T) {
	ns := New(map[string]any{"title": 1, "table": 2, "span": 3})

	_, err := ns.Lookup("titel")
	require.Error(t, err)
	assert.True(t, berrors.IsUnresolvedName(err))

	be, ok := berrors.AsBreveError(err)
	require.True(t, ok)
	assert.Contains(t, be.Suggestions, "title")
}

func TestNamespace_Update(t *testing.T) {
	tests := []struct {
		name    string
		src     any
		want    []string
		wantErr bool
	}{
		{name: "nil", src: nil, want: nil},
		{name: "map sorted", src: map[string]any{"z": 1, "m": 2}, want: []string{"m", "z"}},
		{name: "typed map", src: map[string]int{"y": 1, "x": 2}, want: []string{"x", "y"}},
		{name: "namespace keeps order", src: mustOrdered(t, "q", 1, "p", 2), want: []string{"q", "p"}},
		{name: "bad source", src: []int{1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns := New(nil)
			err := ns.Update(tt.src)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, nilIfEmpty(ns.Keys()))
		})
	}
}

func TestNamespace_AllKeysDeduplicates(t *testing.T) {
	root := New(map[string]any{"a": 1, "b": 2})
	child := root.Child()
	child.Set("b", 3)
	child.Set("c", 4)

	assert.Equal(t, []string{"b", "c", "a"}, child.AllKeys())
}

func mustOrdered(t *testing.T, pairs ...any) *Namespace {
	t.Helper()
	ns, err := NewOrdered(pairs...)
	require.NoError(t, err)
	return ns
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
