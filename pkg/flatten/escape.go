package flatten

import (
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/js"

	berrors "github.com/conneroisu/breve/pkg/errors"
)

const jsMediaType = "application/javascript"

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	quoteOnly   = strings.NewReplacer(`"`, "&quot;")

	jsMinifier = func() *minify.M {
		m := minify.New()
		m.Add(jsMediaType, &js.Minifier{KeepVarNames: true})
		return m
	}()
)

// EscapeText escapes the characters significant in element content.
func EscapeText(s string) string {
	return textEscaper.Replace(s)
}

// EscapeAttr escapes the characters significant in a double-quoted
// attribute value.
func EscapeAttr(s string) string {
	return attrEscaper.Replace(s)
}

// CompressJS minifies a script body. Statement boundaries that rely on
// automatic semicolon insertion, regular expression literals and string
// literals come through intact. Variable names are kept so separate script
// blocks can still refer to each other.
func CompressJS(src string) (string, error) {
	out, err := jsMinifier.String(jsMediaType, src)
	if err != nil {
		return "", berrors.NewFlattenError("minifying script", err)
	}
	return out, nil
}
