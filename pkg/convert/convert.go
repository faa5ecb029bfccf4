// Package convert turns existing HTML into template source.
package convert

import (
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/breve/pkg/compiler"
	"github.com/conneroisu/breve/pkg/directive"
	berrors "github.com/conneroisu/breve/pkg/errors"
	"github.com/conneroisu/breve/pkg/tags"
)

// Options control the conversion.
type Options struct {
	// Vocabulary lists the element names written as plain calls. Others
	// go through tag("name", ...). Defaults to tags.HTML.
	Vocabulary *tags.Vocabulary
	// Fragment parses the input as body content even when it looks like a
	// full document.
	Fragment bool
}

// Names bound by the engine that shadow same-named elements.
var reserved = func() map[string]bool {
	names := map[string]bool{
		"macro": true, "lambda": true, "include": true, "inherits": true,
		"override": true, "slot": true, "preamble": true, "E": true,
	}
	for name := range directive.Funcs(nil) {
		names[name] = true
	}
	for name := range compiler.Builtins() {
		names[name] = true
	}
	return names
}()

// HCL keywords that cannot be bare object keys.
var keywords = map[string]bool{
	"for": true, "in": true, "if": true, "true": true, "false": true, "null": true,
}

var (
	documentPattern = regexp.MustCompile(`(?i)^\s*(<!doctype|<html)`)
	spaceRun        = regexp.MustCompile(`\s+`)
)

// Convert reads HTML from r and returns equivalent template source.
func Convert(r io.Reader, opts Options) (string, error) {
	if opts.Vocabulary == nil {
		opts.Vocabulary = tags.HTML
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", berrors.NewLoaderError("", "cannot read input", err)
	}
	src := string(data)

	var nodes []*html.Node
	if !opts.Fragment && documentPattern.MatchString(src) {
		doc, err := html.Parse(strings.NewReader(src))
		if err != nil {
			return "", berrors.NewCompileError("", "cannot parse HTML document", err)
		}
		for n := doc.FirstChild; n != nil; n = n.NextSibling {
			nodes = append(nodes, n)
		}
	} else {
		body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
		nodes, err = html.ParseFragment(strings.NewReader(src), body)
		if err != nil {
			return "", berrors.NewCompileError("", "cannot parse HTML fragment", err)
		}
	}

	c := &converter{opts: opts}
	exprs := c.nodes(nodes, false)

	var out hclwrite.Tokens
	switch len(exprs) {
	case 0:
		out = hclwrite.TokensForValue(cty.StringVal(""))
	case 1:
		out = exprs[0]
	default:
		out = hclwrite.TokensForTuple(onSeparateLines(exprs))
	}
	return string(hclwrite.Format(out.Bytes())) + "\n", nil
}

type converter struct {
	opts Options
}

func (c *converter) nodes(list []*html.Node, raw bool) []hclwrite.Tokens {
	var out []hclwrite.Tokens
	for _, n := range list {
		if toks := c.node(n, raw); toks != nil {
			out = append(out, toks)
		}
	}
	return out
}

func (c *converter) node(n *html.Node, raw bool) hclwrite.Tokens {
	switch n.Type {
	case html.DoctypeNode:
		doctype := "<!DOCTYPE " + n.Data + ">"
		return hclwrite.TokensForFunctionCall("preamble", hclwrite.TokensForObject([]hclwrite.ObjectAttrTokens{{
			Name:  hclwrite.TokensForIdentifier("doctype"),
			Value: hclwrite.TokensForValue(cty.StringVal(doctype)),
		}}))
	case html.CommentNode:
		return hclwrite.TokensForFunctionCall("comment", hclwrite.TokensForValue(cty.StringVal(strings.TrimSpace(n.Data))))
	case html.TextNode:
		text := n.Data
		if !raw {
			if strings.TrimSpace(text) == "" {
				return nil
			}
			text = spaceRun.ReplaceAllString(text, " ")
		}
		return hclwrite.TokensForValue(cty.StringVal(text))
	case html.ElementNode:
		return c.element(n)
	case html.DocumentNode:
		return hclwrite.TokensForTuple(c.nodes(children(n), false))
	}
	return nil
}

func (c *converter) element(n *html.Node) hclwrite.Tokens {
	var args []hclwrite.Tokens
	if attrs := attributes(n); attrs != nil {
		args = append(args, attrs)
	}

	raw := n.DataAtom == atom.Script || n.DataAtom == atom.Style || n.DataAtom == atom.Pre || n.DataAtom == atom.Textarea
	kids := c.nodes(children(n), raw)
	nested := false
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode {
			nested = true
			break
		}
	}
	if nested {
		kids = onSeparateLines(kids)
	}
	args = append(args, kids...)

	if _, known := c.opts.Vocabulary.Get(n.Data); known && !reserved[n.Data] && hclsyntax.ValidIdentifier(n.Data) {
		return hclwrite.TokensForFunctionCall(n.Data, args...)
	}
	name := hclwrite.TokensForValue(cty.StringVal(n.Data))
	return hclwrite.TokensForFunctionCall("tag", append([]hclwrite.Tokens{name}, args...)...)
}

// attributes returns the object literal for n's attributes, or nil.
func attributes(n *html.Node) hclwrite.Tokens {
	if len(n.Attr) == 0 {
		return nil
	}
	attrs := make([]hclwrite.ObjectAttrTokens, 0, len(n.Attr))
	for _, a := range n.Attr {
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + key
		}
		attrs = append(attrs, hclwrite.ObjectAttrTokens{
			Name:  objectKey(key),
			Value: hclwrite.TokensForValue(cty.StringVal(a.Val)),
		})
	}
	return hclwrite.TokensForObject(attrs)
}

func objectKey(name string) hclwrite.Tokens {
	if hclsyntax.ValidIdentifier(name) && !keywords[name] {
		return hclwrite.TokensForIdentifier(name)
	}
	return hclwrite.TokensForValue(cty.StringVal(name))
}

// onSeparateLines starts every expression on a new line.
func onSeparateLines(list []hclwrite.Tokens) []hclwrite.Tokens {
	out := make([]hclwrite.Tokens, len(list))
	for i, toks := range list {
		nl := &hclwrite.Token{Type: hclsyntax.TokenNewline, Bytes: []byte{'\n'}}
		out[i] = append(hclwrite.Tokens{nl}, toks...)
	}
	return out
}

func children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// Reserved returns the names that are always written through tag().
func Reserved() []string {
	out := make([]string, 0, len(reserved))
	for name := range reserved {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
