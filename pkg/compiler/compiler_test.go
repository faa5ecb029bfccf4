package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/breve/pkg/directive"
	berrors "github.com/conneroisu/breve/pkg/errors"
	"github.com/conneroisu/breve/pkg/flatten"
	"github.com/conneroisu/breve/pkg/scope"
	"github.com/conneroisu/breve/pkg/tags"
)

func testScope(t *testing.T, extra map[string]any) *scope.Namespace {
	t.Helper()
	ns := scope.New(tags.HTML.Map())
	require.NoError(t, ns.Update(Builtins()))
	require.NoError(t, ns.Update(directive.Funcs(scope.NewGlobalStack())))
	require.NoError(t, ns.Update(extra))
	return ns.Child()
}

func eval(t *testing.T, src string, extra map[string]any) (any, error) {
	t.Helper()
	p, err := Compile("test.b", src)
	require.NoError(t, err)
	return p.Eval(testScope(t, extra))
}

func render(t *testing.T, src string, extra map[string]any) string {
	t.Helper()
	v, err := eval(t, src, extra)
	require.NoError(t, err)
	out, err := flatten.Flatten(v)
	require.NoError(t, err)
	return out
}

func TestCompile_Templates(t *testing.T) {
	links := []map[string]any{
		{"url": "http://www.google.com", "label": "Google"},
		{"url": "http://www.yahoo.com", "label": "Yahoo!"},
		{"url": "http://www.amazon.com", "label": "Amazon"},
	}

	tests := []struct {
		name  string
		src   string
		extra map[string]any
		want  string
	}{
		{
			name: "attributes and escaped text",
			src:  `p({class = "foo"}, "&&&")`,
			want: `<p class="foo">&amp;&amp;&amp;</p>`,
		},
		{
			name:  "tag multiplication",
			src:   `ul(li(a({href = "$url"}, "$label")) * links)`,
			extra: map[string]any{"links": links},
			want: `<ul><li><a href="http://www.google.com">Google</a></li>` +
				`<li><a href="http://www.yahoo.com">Yahoo!</a></li>` +
				`<li><a href="http://www.amazon.com">Amazon</a></li></ul>`,
		},
		{
			name: "macros",
			src: `[
				macro("link", ["url", {label = "here"}], a({href = url}, label)),
				link("/a", "A"),
				link("/b"),
				link({url = "/c", label = "C"}),
			]`,
			want: `<a href="/a">A</a><a href="/b">here</a><a href="/c">C</a>`,
		},
		{
			name: "let and check",
			src: `[
				let({name = "world"}),
				check(name == "world") && span("shown"),
				check(false) && span("hidden"),
				p("hello ${name}"),
			]`,
			want: `<span>shown</span><p>hello world</p>`,
		},
		{
			name: "conditional expression",
			src:  `admin ? b("admin") : i("guest")`,
			extra: map[string]any{"admin": false},
			want: `<i>guest</i>`,
		},
		{
			name: "for expression with filter",
			src:  `ul([for n in range(5) : li(n) if n % 2 == 0])`,
			want: `<ul><li>0</li><li>2</li><li>4</li></ul>`,
		},
		{
			name:  "auto tags",
			src:   `T::foo({attr = "foo"}, T::bar({attr = "bar"}), T::baz({attr = "baz"}))`,
			extra: map[string]any{"T": tags.NewAutoTag(tags.AllowAny)},
			want:  `<foo attr="foo"><bar attr="bar"></bar><baz attr="baz"></baz></foo>`,
		},
		{
			name: "dynamic tags",
			src: `[
				let({mytag = tag("mytag"), explicit = tag("explicit", {feature = "bar"})}),
				mytag({feature = "foo"}, "hello, from mytag", explicit("hello from explicit tag")),
			]`,
			want: `<mytag feature="foo">hello, from mytag<explicit feature="bar">hello from explicit tag</explicit></mytag>`,
		},
		{
			name: "escaped attribute",
			src:  `div({style = "width: 400px;<should be &escaped&>"})`,
			want: `<div style="width: 400px;&lt;should be &amp;escaped&amp;&gt;"></div>`,
		},
		{
			name:  "entities",
			src:   `span("Coffee", E.nbsp, E.amp, E.nbsp, "cream")`,
			extra: map[string]any{"E": tags.Entities},
			want:  `<span>Coffee&#160;&#38;&#160;cream</span>`,
		},
		{
			name: "deferred lambda sees later bindings",
			src:  `[let({n = "before"}), lambda(p(n)), let({n = "after"})]`,
			want: `<p>after</p>`,
		},
		{
			name:  "expanded final argument",
			src:   `span(items...)`,
			extra: map[string]any{"items": []any{"a", "b"}},
			want:  `<span>ab</span>`,
		},
		{
			name: "stacks",
			src:  `[push({a = 1, b = 2}), pop("a"), pop("b")]`,
			want: `12`,
		},
		{
			name: "comments and empty elements",
			src:  "# coding: utf-8\n# page\ndiv(\n  br,\n  comment(\"c\")\n)",
			want: `<div><br /><!-- c --></div>`,
		},
		{
			name: "traversal into tags",
			src:  `[let({link = a({href = "/x"}, "text")}), span(link.href, link.name, len(link))]`,
			want: `<span>/xa1</span>`,
		},
		{
			name: "string builtins",
			src:  `p(upper("ab"), lower("CD"), join("-", ["x", "y"]), format("%d%%", 5), str(true))`,
			want: `<p>ABcdx-y5%true</p>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, tt.src, tt.extra))
		})
	}
}

func TestCompile_Operators(t *testing.T) {
	tests := []struct {
		src  string
		want any
	}{
		{`1 + 2`, int64(3)},
		{`"a" + 1`, "a1"},
		{`7 / 2`, 3.5},
		{`6 / 3`, int64(2)},
		{`7 % 3`, int64(1)},
		{`-x`, int64(-4)},
		{`"ab" * 2`, "abab"},
		{`1.5 * 2`, 3.0},
		{`1 < 2`, true},
		{`"a" >= "b"`, false},
		{`[1] + [2]`, []any{int64(1), int64(2)}},
		{`!true`, false},
		{`null || "x"`, "x"},
		{`0 && "x"`, int64(0)},
		{`x == 4`, true},
		{`"${x}"`, 4},
		{`"n=${x}"`, "n=4"},
		{`ns.inner`, "deep"},
		{`ns["inner"]`, "deep"},
		{`list[1]`, "b"},
		{`list[-1]`, "c"},
		{`word[1]`, "é"},
		{`word[-1]`, "o"},
		{`len(word)`, int64(5)},
		{`len(tagline)`, int64(3)},
		{`{for k, v in ns : v => k}`, nil},
	}

	extra := map[string]any{
		"x":       4,
		"ns":      scope.New(map[string]any{"inner": "deep"}),
		"list":    []string{"a", "b", "c"},
		"word":    "héllo",
		"tagline": named("añb"),
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := eval(t, tt.src, extra)
			require.NoError(t, err)
			if tt.want == nil {
				ns, ok := got.(*scope.Namespace)
				require.True(t, ok)
				v, _ := ns.Get("deep")
				assert.Equal(t, "inner", v)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

type named string

type user struct {
	Name string
}

func (u user) Greeting() string { return "hi " + u.Name }

func TestCompile_GoValues(t *testing.T) {
	extra := map[string]any{
		"user":   user{Name: "Ann"},
		"double": func(n int) int { return n * 2 },
		"fail":   func() (string, error) { return "", assert.AnError },
	}

	v, err := eval(t, `user.name`, extra)
	require.NoError(t, err)
	assert.Equal(t, "Ann", v)

	v, err = eval(t, `user.greeting`, extra)
	require.NoError(t, err)
	assert.Equal(t, "hi Ann", v)

	v, err = eval(t, `double(21)`, extra)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = eval(t, `fail()`, extra)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestCompile_Walk(t *testing.T) {
	var b strings.Builder
	visitor := scope.Func(func(_ *scope.Namespace, args []any) (any, error) {
		if args[1].(bool) {
			b.WriteString(args[0].(*tags.Tag).Name)
		} else {
			b.WriteString(Str(args[0]))
		}
		return nil, nil
	})

	src := `[
		let({doc = html(head(title("<name>")), body(div("okay")))}),
		walk(doc, visitor, true),
	]`
	_, err := eval(t, src, map[string]any{"visitor": visitor})
	require.NoError(t, err)
	assert.Equal(t, "htmlheadtitle<name>bodydivokay", b.String())
}

func TestCompile_Errors(t *testing.T) {
	t.Run("syntax error", func(t *testing.T) {
		_, err := Compile("bad.b", "p(")
		require.Error(t, err)
		assert.True(t, berrors.IsCompileError(err))
		be, _ := berrors.AsBreveError(err)
		assert.Equal(t, "bad.b", be.Template)
		assert.Equal(t, 1, be.Line)
	})

	t.Run("unsupported splat", func(t *testing.T) {
		_, err := Compile("splat.b", "items[*].name")
		require.Error(t, err)
		be, ok := berrors.AsBreveError(err)
		require.True(t, ok)
		assert.Equal(t, berrors.ErrCodeUnsupportedExpr, be.Code)
	})

	t.Run("malformed macro", func(t *testing.T) {
		_, err := Compile("m.b", `macro("x")`)
		assert.True(t, berrors.IsCompileError(err))
	})

	t.Run("unresolved name carries location", func(t *testing.T) {
		_, err := eval(t, "div(\n  p(missing))", nil)
		require.Error(t, err)
		assert.True(t, berrors.IsUnresolvedName(err))
		be, _ := berrors.AsBreveError(err)
		assert.Equal(t, "test.b", be.Template)
		assert.Equal(t, 2, be.Line)
		assert.Equal(t, 5, be.Column)
	})

	t.Run("not callable", func(t *testing.T) {
		_, err := eval(t, `x()`, map[string]any{"x": 1})
		require.Error(t, err)
		be, ok := berrors.AsBreveError(err)
		require.True(t, ok)
		assert.Equal(t, berrors.ErrCodeNotCallable, be.Code)
		assert.Equal(t, "x", be.Context["function"])
	})

	t.Run("bad operands", func(t *testing.T) {
		_, err := eval(t, `1 / 0`, nil)
		assert.True(t, berrors.IsEvaluationError(err))
		_, err = eval(t, `"a" < 1`, nil)
		assert.True(t, berrors.IsEvaluationError(err))
	})

	t.Run("missing macro argument", func(t *testing.T) {
		_, err := eval(t, `[macro("m", ["a"], p(a)), m()]`, nil)
		assert.True(t, berrors.IsUnresolvedName(err))
	})

	t.Run("pop from empty stack", func(t *testing.T) {
		_, err := eval(t, `pop("nothing")`, nil)
		assert.True(t, berrors.IsEvaluationError(err))
	})
}

func TestMustCompile(t *testing.T) {
	assert.NotPanics(t, func() { MustCompile("ok.b", `p("x")`) })
	assert.Panics(t, func() { MustCompile("bad.b", `p(`) })
}
