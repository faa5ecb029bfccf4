package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/conneroisu/breve/internal/testutils"
	berrors "github.com/conneroisu/breve/pkg/errors"
)

// execute runs the root command with args and returns its output. Flag
// values and viper state left over from earlier runs are reset first.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	viper.Reset()
	rebindFlags()
	cfgFile = ""
	renderOutput = ""
	convertFragment = false
	convertOutput = ""
	versionFormat = "text"
	versionShort = false
	for _, flags := range []*pflag.FlagSet{rootCmd.PersistentFlags(), renderCmd.Flags()} {
		flags.VisitAll(func(f *pflag.Flag) {
			if f.Value.Type() != "stringArray" {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
	}
	renderParams.Set = nil

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRenderCommand(t *testing.T) {
	dir := testutils.CreateTemplateDir(t, map[string]string{
		"index.b":  `html(head(title(v.title)), body(include("header"), p(v.count)))`,
		"header.b": `h1(upper(v.title))`,
		"plain.b":  `p(title)`,
		"broken.b": `div(missing_name)`,
	})

	t.Run("fragment with set params", func(t *testing.T) {
		out, err := execute(t, "render", "index", "--root", dir, "--namespace", "v", "--fragment",
			"--set", "title=Home", "--set", "count=3")
		require.NoError(t, err)
		assert.Equal(t, "<html><head><title>Home</title></head><body><h1>HOME</h1><p>3</p></body></html>\n", out)
	})

	t.Run("document prologue", func(t *testing.T) {
		out, err := execute(t, "render", "plain", "--root", dir, "--doctype", "<!DOCTYPE html>", "--set", "title=x")
		require.NoError(t, err)
		assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?>`+"\n<!DOCTYPE html>\n<p>x</p>\n", out)
	})

	t.Run("params file", func(t *testing.T) {
		params := filepath.Join(t.TempDir(), "params.yml")
		require.NoError(t, os.WriteFile(params, []byte("title: From YAML\n"), 0o644))

		out, err := execute(t, "render", "plain", "--root", dir, "--fragment", "--params", params)
		require.NoError(t, err)
		assert.Equal(t, "<p>From YAML</p>\n", out)
	})

	t.Run("missing params file", func(t *testing.T) {
		_, err := execute(t, "render", "plain", "--root", dir, "--params", filepath.Join(dir, "nope.yml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "file does not exist")
	})

	t.Run("several templates into a directory", func(t *testing.T) {
		outDir := filepath.Join(t.TempDir(), "public")
		_, err := execute(t, "render", "broken", "index", "--root", dir, "--fragment", "--namespace", "v",
			"--set", "title=T", "--set", "count=0", "--output", outDir)
		require.Error(t, err)

		data, err := os.ReadFile(filepath.Join(outDir, "index.html"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "<title>T</title>")
		assert.NoFileExists(t, filepath.Join(outDir, "broken.html"))
	})

	t.Run("failures are collected", func(t *testing.T) {
		_, err := execute(t, "render", "broken", "nope", "--root", dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "2 templates failed")
		assert.Contains(t, err.Error(), "missing_name")
	})

	t.Run("debug renders diagnostics", func(t *testing.T) {
		out, err := execute(t, "render", "broken", "--root", dir, "--fragment", "--debug")
		require.NoError(t, err)
		assert.Contains(t, out, `class="template_exception"`)
	})

	t.Run("config file", func(t *testing.T) {
		cfg := filepath.Join(t.TempDir(), "breve.yml")
		require.NoError(t, os.WriteFile(cfg, []byte("render:\n  namespace: v\n  fragment: true\n"), 0o644))

		out, err := execute(t, "render", "index", "--root", dir, "--config", cfg, "--set", "title=Cfg", "--set", "count=1")
		require.NoError(t, err)
		assert.Contains(t, out, "<h1>CFG</h1>")
		assert.NotContains(t, out, "<?xml")
	})
}

func TestCheckCommand(t *testing.T) {
	dir := testutils.CreateTemplateDir(t, map[string]string{
		"good.b": `div("ok")`,
		"bad.b":  `div(`,
	})

	out, err := execute(t, "check", "good", "--root", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "ok   good")

	out, err = execute(t, "check", "good", "bad", "--root", dir)
	require.Error(t, err)
	assert.Contains(t, out, "FAIL bad")
	var rf *berrors.RenderFailure
	require.ErrorAs(t, err, &rf)
	assert.True(t, berrors.IsCompileError(err))
}

func TestConvertCommand(t *testing.T) {
	dir := testutils.CreateTemplateDir(t, map[string]string{
		"page.html": `<div class="a"><p>hi</p></div>`,
	})

	out, err := execute(t, "convert", filepath.Join(dir, "page.html"), "--fragment")
	require.NoError(t, err)
	assert.Contains(t, out, `div(`)
	assert.Contains(t, out, `class = "a"`)
	assert.Contains(t, out, `p("hi")`)

	target := filepath.Join(dir, "page.b")
	_, err = execute(t, "convert", filepath.Join(dir, "page.html"), "--fragment", "--output", target)
	require.NoError(t, err)
	assert.FileExists(t, target)

	// The converted template renders back to the same markup.
	out, err = execute(t, "render", "page", "--root", dir, "--fragment")
	require.NoError(t, err)
	assert.Equal(t, "<div class=\"a\"><p>hi</p></div>\n", out)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "breve ")

	_, err = execute(t, "version", "--format", "xml")
	assert.Error(t, err)
}

func TestParamFlags_ParseParams(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, data, 0o644))
		return path
	}

	packed, err := msgpack.Marshal(map[string]interface{}{"title": "packed", "tags": []string{"a"}})
	require.NoError(t, err)

	tests := []struct {
		name    string
		flags   ParamFlags
		want    map[string]interface{}
		wantErr string
	}{
		{
			name:  "empty",
			flags: ParamFlags{},
			want:  map[string]interface{}{},
		},
		{
			name:  "yaml file",
			flags: ParamFlags{ParamsFile: write("p.yaml", []byte("title: y\nitems: [a, b]\n"))},
			want:  map[string]interface{}{"title": "y", "items": []interface{}{"a", "b"}},
		},
		{
			name:  "json file",
			flags: ParamFlags{ParamsFile: write("p.json", []byte(`{"title": "j", "n": 1}`))},
			want:  map[string]interface{}{"title": "j", "n": float64(1)},
		},
		{
			name:  "msgpack file",
			flags: ParamFlags{ParamsFile: write("p.msgpack", packed)},
			want:  map[string]interface{}{"title": "packed", "tags": []interface{}{"a"}},
		},
		{
			name:  "inline props",
			flags: ParamFlags{Props: `{"a": "b"}`},
			want:  map[string]interface{}{"a": "b"},
		},
		{
			name:  "props file reference",
			flags: ParamFlags{Props: "@" + write("props.json", []byte(`{"a": "file"}`))},
			want:  map[string]interface{}{"a": "file"},
		},
		{
			name:  "set values nest and keep scalar types",
			flags: ParamFlags{Set: []string{"page.title=Hi there", "page.n=4", "draft=true", "raw=[x]"}},
			want: map[string]interface{}{
				"page":  map[string]interface{}{"title": "Hi there", "n": 4},
				"draft": true,
				"raw":   "[x]",
			},
		},
		{
			name:    "set without value",
			flags:   ParamFlags{Set: []string{"novalue"}},
			wantErr: "expected key=value",
		},
		{
			name:    "set through a scalar",
			flags:   ParamFlags{Set: []string{"a=1", "a.b=2"}},
			wantErr: "a is not a map",
		},
		{
			name:    "unknown extension",
			flags:   ParamFlags{ParamsFile: write("p.toml", []byte("a = 1"))},
			wantErr: "unsupported params file",
		},
		{
			name:    "both file and props",
			flags:   ParamFlags{ParamsFile: "x.json", Props: "{}"},
			wantErr: "cannot specify both",
		},
		{
			name:    "invalid json",
			flags:   ParamFlags{Props: "{"},
			wantErr: "invalid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.flags.ParseParams()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
