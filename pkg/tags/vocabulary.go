package tags

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/net/html/atom"
)

// Vocabulary maps tag names to shared prototypes.
type Vocabulary struct {
	protos map[string]*Tag
}

// NewVocabulary creates a vocabulary with one element prototype per name.
func NewVocabulary(names ...string) *Vocabulary {
	v := &Vocabulary{protos: make(map[string]*Tag, len(names))}
	for _, n := range names {
		v.Add(New(n))
	}
	return v
}

// Add registers t as the prototype for t.Name.
func (v *Vocabulary) Add(t *Tag) {
	v.protos[t.Name] = Proto(t)
}

// Get returns the prototype registered for name.
func (v *Vocabulary) Get(name string) (*Tag, bool) {
	t, ok := v.protos[name]
	return t, ok
}

// Resolve returns the prototype for name or an error.
func (v *Vocabulary) Resolve(name string) (any, error) {
	if t, ok := v.protos[name]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("unknown tag %q", name)
}

// Tag returns a fresh tag named name with attrs applied. Names outside the
// vocabulary still produce plain elements.
func (v *Vocabulary) Tag(name string, attrs ...any) *Tag {
	if p, ok := v.protos[name]; ok {
		return p.Set(attrs...)
	}
	return New(name, attrs...)
}

// Names returns the sorted tag names.
func (v *Vocabulary) Names() []string {
	out := make([]string, 0, len(v.protos))
	for n := range v.protos {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Map returns name to prototype bindings, suitable for merging into a scope.
func (v *Vocabulary) Map() map[string]any {
	out := make(map[string]any, len(v.protos))
	for n, t := range v.protos {
		out[n] = t
	}
	return out
}

// Merge returns a new vocabulary holding the prototypes of v and others;
// later vocabularies win on conflicts.
func (v *Vocabulary) Merge(others ...*Vocabulary) *Vocabulary {
	out := &Vocabulary{protos: make(map[string]*Tag, len(v.protos))}
	for n, t := range v.protos {
		out.protos[n] = t
	}
	for _, o := range others {
		for n, t := range o.protos {
			out.protos[n] = t
		}
	}
	return out
}

var htmlNames = []string{
	"a", "abbr", "acronym", "address", "applet", "area", "article", "aside",
	"audio", "b", "base", "basefont", "bdo", "big", "blockquote", "body", "br",
	"button", "canvas", "caption", "center", "cite", "code", "col", "colgroup",
	"dd", "del", "details", "dfn", "dialog", "dir", "div", "dl", "dt", "em",
	"embed", "fieldset", "figcaption", "figure", "font", "footer", "form",
	"frame", "frameset", "h1", "h2", "h3", "h4", "h5", "h6", "head", "header",
	"hr", "html", "i", "iframe", "img", "input", "ins", "isindex", "kbd",
	"label", "legend", "li", "link", "main", "map", "mark", "menu", "meta",
	"nav", "noframes", "noscript", "object", "ol", "optgroup", "option", "p",
	"param", "pre", "q", "s", "samp", "script", "section", "select", "small",
	"source", "span", "strike", "strong", "style", "sub", "summary", "sup",
	"table", "tbody", "td", "template", "textarea", "tfoot", "th", "thead",
	"time", "title", "tr", "tt", "u", "ul", "var", "video",
}

// HTML is the built-in HTML vocabulary, including the inlineJS and minJS
// script helpers.
var HTML = newHTML()

func newHTML() *Vocabulary {
	v := NewVocabulary(htmlNames...)
	v.Add(NewKind("inlineJS", KindInlineJS))
	v.Add(NewKind("minJS", KindMinJS))
	return v
}

// Policy decides which names an AutoTag accepts.
type Policy int

const (
	// AllowAny mints a prototype for every name.
	AllowAny Policy = iota
	// HTMLOnly accepts names known to the HTML atom table and custom
	// element names containing a dash.
	HTMLOnly
)

// AutoTag mints element prototypes on first use of a name and returns the
// same prototype on every later use.
type AutoTag struct {
	mu     sync.Mutex
	protos map[string]*Tag
	policy Policy
}

// NewAutoTag creates a factory applying policy.
func NewAutoTag(policy Policy) *AutoTag {
	return &AutoTag{protos: make(map[string]*Tag), policy: policy}
}

// Resolve returns the prototype for name.
func (a *AutoTag) Resolve(name string) (any, error) {
	return a.Get(name)
}

// Get returns the prototype for name, minting it when first seen.
func (a *AutoTag) Get(name string) (*Tag, error) {
	if name == "" {
		return nil, fmt.Errorf("empty tag name")
	}
	if a.policy == HTMLOnly && atom.Lookup([]byte(name)) == 0 && !strings.Contains(name, "-") {
		return nil, fmt.Errorf("%q is not an HTML element name", name)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.protos[name]; ok {
		return t, nil
	}
	t := Proto(New(name))
	a.protos[name] = t
	return t, nil
}
