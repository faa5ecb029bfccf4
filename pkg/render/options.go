package render

import (
	"fmt"
	"strings"

	berrors "github.com/conneroisu/breve/pkg/errors"
	"github.com/conneroisu/breve/pkg/loader"
	"github.com/conneroisu/breve/pkg/tags"
)

// DefaultXMLDeclaration is prefixed to full documents.
const DefaultXMLDeclaration = `<?xml version="1.0" encoding="UTF-8"?>`

// Options control one render. Engine holds the defaults; Settings passed to
// Render override them for that call only.
type Options struct {
	Tidy           bool
	Debug          bool
	Namespace      string
	Extension      string
	MashupEntities bool
	AutoTags       string
	AutoTagPolicy  tags.Policy
	XMLNS          string
	Doctype        string
	XMLDeclaration string
	// Fragment skips the XML declaration and doctype.
	Fragment bool
	// Loader is pushed onto the call's loader stack when set.
	Loader loader.Loader
}

// DefaultOptions returns the options an Engine starts with.
func DefaultOptions() Options {
	return Options{
		Extension:      "b",
		XMLDeclaration: DefaultXMLDeclaration,
	}
}

// Setting overrides one option.
type Setting func(*Options)

func Tidy(on bool) Setting           { return func(o *Options) { o.Tidy = on } }
func Debug(on bool) Setting          { return func(o *Options) { o.Debug = on } }
func Namespace(key string) Setting   { return func(o *Options) { o.Namespace = key } }
func Extension(ext string) Setting   { return func(o *Options) { o.Extension = ext } }
func MashupEntities(on bool) Setting { return func(o *Options) { o.MashupEntities = on } }
func XMLNS(uri string) Setting       { return func(o *Options) { o.XMLNS = uri } }
func Doctype(d string) Setting       { return func(o *Options) { o.Doctype = d } }
func Fragment(on bool) Setting       { return func(o *Options) { o.Fragment = on } }

// AutoTags installs an auto-tag factory under name. An empty name disables
// it.
func AutoTags(name string, policy tags.Policy) Setting {
	return func(o *Options) {
		o.AutoTags = name
		o.AutoTagPolicy = policy
	}
}

// XMLDeclaration replaces the declaration line. An empty string omits it.
func XMLDeclaration(decl string) Setting {
	return func(o *Options) { o.XMLDeclaration = decl }
}

// UseLoader renders with l instead of the engine's default loader.
func UseLoader(l loader.Loader) Setting {
	return func(o *Options) { o.Loader = l }
}

func (o Options) apply(settings []Setting) Options {
	for _, s := range settings {
		if s != nil {
			s(&o)
		}
	}
	return o
}

// filename maps a template id to the name handed to the loader.
func (o Options) filename(id string) string {
	ext := strings.TrimPrefix(o.Extension, ".")
	if ext == "" {
		return id
	}
	return fmt.Sprintf("%s.%s", id, ext)
}

// preamble applies template-level settings from a preamble directive.
func (o *Options) preamble(kv map[string]any) error {
	for key, v := range kv {
		switch key {
		case "doctype":
			s, err := preambleString(key, v)
			if err != nil {
				return err
			}
			o.Doctype = s
		case "xml_declaration":
			s, err := preambleString(key, v)
			if err != nil {
				return err
			}
			o.XMLDeclaration = s
		case "xmlns":
			s, err := preambleString(key, v)
			if err != nil {
				return err
			}
			o.XMLNS = s
		case "tidy":
			b, ok := v.(bool)
			if !ok {
				return preambleErr(key, "must be a bool")
			}
			o.Tidy = b
		case "debug":
			b, ok := v.(bool)
			if !ok {
				return preambleErr(key, "must be a bool")
			}
			o.Debug = b
		default:
			return berrors.NewEvaluationError(berrors.ErrCodeBadArguments,
				fmt.Sprintf("preamble: unknown setting %q", key)).
				WithContext("function", "preamble").
				WithSuggestions(berrors.SuggestNames(key, preambleKeys)...)
		}
	}
	return nil
}

var preambleKeys = []string{"debug", "doctype", "tidy", "xml_declaration", "xmlns"}

func preambleString(key string, v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case tags.Raw:
		return string(s), nil
	}
	return "", preambleErr(key, fmt.Sprintf("must be a string, got %T", v))
}

func preambleErr(key, msg string) error {
	return berrors.NewEvaluationError(berrors.ErrCodeBadArguments, "preamble: "+key+" "+msg).
		WithContext("function", "preamble")
}
