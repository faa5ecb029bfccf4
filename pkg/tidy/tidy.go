// Package tidy re-indents rendered markup.
package tidy

import (
	"regexp"
	"strings"

	"github.com/yosssi/gohtml"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	berrors "github.com/conneroisu/breve/pkg/errors"
	"github.com/conneroisu/breve/pkg/flatten"
)

var documentPattern = regexp.MustCompile(`(?i)^\s*(<\?xml[^>]*>\s*)?(<!doctype|<html)`)

var voidElements = map[atom.Atom]bool{
	atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true,
	atom.Embed: true, atom.Hr: true, atom.Img: true, atom.Input: true,
	atom.Link: true, atom.Meta: true, atom.Param: true, atom.Source: true,
	atom.Track: true, atom.Wbr: true,
}

var rawTextElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Pre: true, atom.Textarea: true,
}

func init() {
	// Elements holding a single text child stay on one line.
	gohtml.Condense = true
}

// Clean parses markup and writes it back one element per line. Input that
// starts with a doctype or <html> is treated as a full document and gets
// the implied html, head and body elements; anything else is parsed as
// body content. Parsed markup is normalized (collapsed whitespace, XHTML
// void elements) before gohtml indents it.
func Clean(markup string) (string, error) {
	var nodes []*html.Node
	if documentPattern.MatchString(markup) {
		doc, err := html.Parse(strings.NewReader(markup))
		if err != nil {
			return "", berrors.NewFlattenError("tidy: cannot parse document", err)
		}
		for n := doc.FirstChild; n != nil; n = n.NextSibling {
			nodes = append(nodes, n)
		}
	} else {
		body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
		parsed, err := html.ParseFragment(strings.NewReader(markup), body)
		if err != nil {
			return "", berrors.NewFlattenError("tidy: cannot parse fragment", err)
		}
		nodes = parsed
	}

	var w writer
	for _, n := range nodes {
		w.node(n)
	}
	out := gohtml.Format(w.b.String())
	if out == "" {
		return "", nil
	}
	return out + "\n", nil
}

// writer serializes parsed nodes without layout.
type writer struct {
	b strings.Builder
}

func (w *writer) node(n *html.Node) {
	switch n.Type {
	case html.DoctypeNode:
		w.b.WriteString("<!DOCTYPE " + n.Data + ">")
	case html.CommentNode:
		w.b.WriteString("<!--" + n.Data + "-->")
	case html.TextNode:
		w.b.WriteString(flatten.EscapeText(collapse(n.Data)))
	case html.ElementNode:
		w.element(n)
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.node(c)
		}
	}
}

func (w *writer) element(n *html.Node) {
	open := startTag(n)

	if voidElements[n.DataAtom] && n.FirstChild == nil {
		w.b.WriteString(strings.TrimSuffix(open, ">") + " />")
		return
	}

	w.b.WriteString(open)
	if rawTextElements[n.DataAtom] {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case c.Type != html.TextNode:
				w.node(c)
			case n.DataAtom == atom.Script || n.DataAtom == atom.Style:
				w.b.WriteString(c.Data)
			default:
				w.b.WriteString(flatten.EscapeText(c.Data))
			}
		}
	} else {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.node(c)
		}
	}
	w.b.WriteString("</" + n.Data + ">")
}

func startTag(n *html.Node) string {
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(n.Data)
	for _, a := range n.Attr {
		b.WriteString(" ")
		if a.Namespace != "" {
			b.WriteString(a.Namespace)
			b.WriteString(":")
		}
		b.WriteString(a.Key)
		b.WriteString(`="`)
		b.WriteString(flatten.EscapeAttr(a.Val))
		b.WriteString(`"`)
	}
	b.WriteString(">")
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
