package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	berrors "github.com/conneroisu/breve/pkg/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "views/index.b", `p("hello")`)
	mtime := time.Unix(1700000000, 0)
	require.NoError(t, os.Chtimes(p, mtime, mtime))

	var l FileLoader
	uid, ts, err := l.Stat("views/index.b", dir)
	require.NoError(t, err)
	assert.Equal(t, p, uid)
	assert.Equal(t, int64(1700000000), ts)

	src, err := l.Load(uid)
	require.NoError(t, err)
	assert.Equal(t, `p("hello")`, src)
}

func TestFileLoader_NotFound(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	tests := []struct {
		name string
		id   string
	}{
		{"missing file", "missing.b"},
		{"directory", "sub"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := FileLoader{}.Stat(tt.id, dir)
			require.Error(t, err)
			assert.True(t, berrors.IsTemplateNotFound(err))
		})
	}

	_, err := FileLoader{}.Load(filepath.Join(dir, "gone.b"))
	assert.True(t, berrors.IsTemplateNotFound(err))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    string
		wantErr bool
	}{
		{"utf8 default", []byte("\"caf\xc3\xa9\""), `"café"`, false},
		{"declared latin1", []byte("# coding: latin1\n\"caf\xe9\""), "# coding: latin1\n\"café\"", false},
		{"emacs style second line", []byte("# header\n# -*- coding: windows-1252 -*-\n\"\xe9\""), "# header\n# -*- coding: windows-1252 -*-\n\"é\"", false},
		{"third line ignored", []byte("#\n#\n# coding: latin1\n\"x\""), "#\n#\n# coding: latin1\n\"x\"", false},
		{"unknown charset", []byte("# coding: klingon\n\"x\""), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode("t.b", tt.data)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, berrors.IsLoaderError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPathLoader(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFile(t, second, "a.b", "second-a")
	writeFile(t, first, "b.b", "first-b")
	writeFile(t, second, "b.b", "second-b")

	l := NewPathLoader(first, second)

	uid, _, err := l.Stat("a.b", "ignored")
	require.NoError(t, err)
	src, err := l.Load(uid)
	require.NoError(t, err)
	assert.Equal(t, "second-a", src)

	uid, _, err = l.Stat("b.b", "")
	require.NoError(t, err)
	src, err = l.Load(uid)
	require.NoError(t, err)
	assert.Equal(t, "first-b", src)

	_, _, err = l.Stat("c.b", "")
	assert.True(t, berrors.IsTemplateNotFound(err))
}

func TestFSLoader(t *testing.T) {
	fsys := fstest.MapFS{
		"tpl/page.b": &fstest.MapFile{Data: []byte(`div("x")`)},
	}

	t.Run("literal", func(t *testing.T) {
		l := FSLoader{FS: fsys}
		uid, ts, err := l.Stat("page.b", "tpl")
		require.NoError(t, err)
		assert.Equal(t, "tpl/page.b", uid)
		assert.Zero(t, ts)

		src, err := l.Load(uid)
		require.NoError(t, err)
		assert.Equal(t, `div("x")`, src)

		_, _, err = l.Stat("nope.b", "tpl")
		assert.True(t, berrors.IsTemplateNotFound(err))
	})

	t.Run("instances report distinct uids", func(t *testing.T) {
		a, b := NewFSLoader(fsys), NewFSLoader(fsys)
		uidA, _, err := a.Stat("page.b", "tpl")
		require.NoError(t, err)
		uidB, _, err := b.Stat("page.b", "tpl")
		require.NoError(t, err)
		assert.NotEqual(t, uidA, uidB)
		assert.True(t, strings.HasSuffix(uidA, "tpl/page.b"))

		src, err := a.Load(uidA)
		require.NoError(t, err)
		assert.Equal(t, `div("x")`, src)
		_, err = a.Load(uidB)
		assert.True(t, berrors.IsTemplateNotFound(err))
	})
}

func TestMapLoader(t *testing.T) {
	m := NewMapLoader(map[string]string{"a.b": "one"})

	uid, ts1, err := m.Stat("a.b", "/root")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(uid, "a.b"))

	m.Set("a.b", "two")
	_, ts2, err := m.Stat("a.b", "")
	require.NoError(t, err)
	assert.Greater(t, ts2, ts1)

	src, err := m.Load(uid)
	require.NoError(t, err)
	assert.Equal(t, "two", src)

	m.Delete("a.b")
	_, _, err = m.Stat("a.b", "")
	assert.True(t, berrors.IsTemplateNotFound(err))
	_, err = m.Load(uid)
	assert.True(t, berrors.IsTemplateNotFound(err))
}

func TestMapLoader_UIDsAreUniquePerLoader(t *testing.T) {
	a := NewMapLoader(map[string]string{"page.b": "from a"})
	b := NewMapLoader(map[string]string{"page.b": "from b"})

	uidA, tsA, err := a.Stat("page.b", "")
	require.NoError(t, err)
	uidB, tsB, err := b.Stat("page.b", "")
	require.NoError(t, err)
	assert.Equal(t, tsA, tsB)
	assert.NotEqual(t, uidA, uidB)

	_, err = a.Load(uidB)
	assert.True(t, berrors.IsTemplateNotFound(err))

	var zero MapLoader
	zero.Set("page.b", "zero")
	uidZ, _, err := zero.Stat("page.b", "")
	require.NoError(t, err)
	assert.NotEqual(t, uidA, uidZ)
	src, err := zero.Load(uidZ)
	require.NoError(t, err)
	assert.Equal(t, "zero", src)
}

func TestStack(t *testing.T) {
	base := NewMapLoader(nil)
	s := NewStack(base)
	assert.Same(t, base, s.Top())

	pushed := NewMapLoader(nil)
	s.Push(pushed)
	assert.Same(t, pushed, s.Top())
	assert.Equal(t, 1, s.Depth())

	s.Pop()
	s.Pop()
	assert.Same(t, base, s.Top())
	assert.Equal(t, 0, s.Depth())

	_, ok := NewStack(nil).Top().(FileLoader)
	assert.True(t, ok)
}
