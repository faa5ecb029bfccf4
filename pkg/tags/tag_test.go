package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_KindsAndAttrs(t *testing.T) {
	div := New("div", "class_", "box", "id", "main")
	assert.Equal(t, KindElement, div.Kind)
	assert.Equal(t, []string{"class", "id"}, div.Attrs.Keys())
	assert.Equal(t, "box", div.Attr("class"))

	br := New("br")
	assert.Equal(t, KindEmpty, br.Kind)
	assert.True(t, IsEmptyElement("img"))
	assert.False(t, IsEmptyElement("div"))
}

func TestAttrs_NilRemoves(t *testing.T) {
	a := NewAttrs()
	a.Set("href", "/x")
	a.Set("title", "t")
	a.Set("href", nil)

	assert.Equal(t, []string{"title"}, a.Keys())
	assert.False(t, a.Has("href"))

	a.Set("alt", nil)
	assert.Equal(t, 1, a.Len())
}

func TestAttrs_Update(t *testing.T) {
	tests := []struct {
		name    string
		args    []any
		want    []string
		wantErr bool
	}{
		{name: "pairs", args: []any{"b", 1, "a", 2}, want: []string{"b", "a"}},
		{name: "map sorted", args: []any{map[string]any{"z": 1, "y": 2}}, want: []string{"y", "z"}},
		{name: "string map", args: []any{map[string]string{"k": "v"}}, want: []string{"k"}},
		{name: "ordered record", args: []any{orderedRecord{"q", "p"}}, want: []string{"q", "p"}},
		{name: "dangling name", args: []any{"a"}, wantErr: true},
		{name: "bad name", args: []any{42, "x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAttrs()
			err := a.Update(tt.args...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Keys())
		})
	}
}

func TestTag_ProtoIsNeverMutated(t *testing.T) {
	p := Proto(New("span"))

	withKids := p.With("hello")
	withAttr := p.Set("class", "x")
	called, err := p.Call("id", "y")
	require.NoError(t, err)

	assert.Empty(t, p.Children)
	assert.Equal(t, 0, p.Attrs.Len())
	assert.Equal(t, []any{"hello"}, withKids.Children)
	assert.Equal(t, "x", withAttr.Attr("class"))
	assert.Equal(t, "y", called.Attr("id"))
	assert.False(t, called.IsProto())
}

func TestTag_WithMutatesNonProto(t *testing.T) {
	ul := New("ul")
	same := ul.With(New("li"))
	assert.Same(t, ul, same)
	assert.Len(t, ul.Children, 1)
}

func TestTag_CloneIsDeep(t *testing.T) {
	inner := New("b").With("bold")
	outer := New("p", "class", "x").With(inner, []any{New("i")})

	c := outer.Clone()
	c.Attrs.Set("class", "y")
	c.Children[0].(*Tag).Children[0] = "changed"

	assert.Equal(t, "x", outer.Attr("class"))
	assert.Equal(t, "bold", inner.Children[0])
	assert.NotSame(t, outer.Children[1].([]any)[0], c.Children[1].([]any)[0])
}

func TestTag_Insert(t *testing.T) {
	h := New("h1").With("Title")
	h.Insert(0, New("a", "name", "x"))
	h.Insert(10, "end")

	require.Len(t, h.Children, 3)
	assert.Equal(t, "a", h.Children[0].(*Tag).Name)
	assert.Equal(t, "Title", h.Children[1])
	assert.Equal(t, "end", h.Children[2])
}

type orderedRecord []string

func (o orderedRecord) Keys() []string { return o }

func (o orderedRecord) Value(key string) (any, bool) { return key + "-value", true }

func TestAttrs_DeleteNormalizesName(t *testing.T) {
	a := NewAttrs()
	a.Set("class_", "box")
	a.Set("for_", "name")
	a.Set("id", "x")

	a.Delete("class_")
	a.Delete("for")
	assert.Equal(t, []string{"id"}, a.Keys())

	a.Set("class__", "kept")
	a.Set("class__", nil)
	assert.False(t, a.Has("class_"))
	assert.Equal(t, []string{"id"}, a.Keys())
}

func TestTag_RenderHooks(t *testing.T) {
	render := func(tag *Tag, data any) (any, error) { return data, nil }

	t.Run("render and data move out of the attributes", func(t *testing.T) {
		tr, err := New("tr", "class", "row").Call("render", Renderer(render), "data", []int{1, 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"class"}, tr.Attrs.Keys())
		require.NotNil(t, tr.Render)
		assert.Equal(t, []int{1, 2}, tr.Data)

		c := tr.Clone()
		assert.NotNil(t, c.Render)
		assert.Equal(t, []int{1, 2}, c.Data)
	})

	t.Run("data is an attribute without a renderer", func(t *testing.T) {
		obj := New("object", "data", "movie.swf")
		assert.Nil(t, obj.Render)
		assert.Nil(t, obj.Data)
		assert.Equal(t, "movie.swf", obj.Attr("data"))
	})

	t.Run("plain function shapes", func(t *testing.T) {
		_, ok := AsRenderer(func(*Tag, any) any { return nil })
		assert.True(t, ok)
		_, ok = AsRenderer(render)
		assert.True(t, ok)
		_, ok = AsRenderer("nope")
		assert.False(t, ok)
	})

	t.Run("non-function render value", func(t *testing.T) {
		_, err := New("tr").Call("render", "nope")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "render must be a renderer")
	})

	t.Run("clear drops children", func(t *testing.T) {
		tr := New("tr").With("a", New("td"))
		assert.Same(t, tr, tr.Clear())
		assert.Empty(t, tr.Children)
	})
}
