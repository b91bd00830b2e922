package view

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// OverlayNoteClass marks info links whose target opens in the page modal.
const OverlayNoteClass = "overlaynote"

// RewriteInfo turns every overlay-note anchor of a class info fragment
// into a Datastar action that loads the note from notesURL. The anchor
// loses its href; the note title is the upper-cased link text.
func RewriteInfo(fragment, notesURL string) (string, error) {
	if !strings.Contains(fragment, OverlayNoteClass) {
		return fragment, nil
	}
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return "", fmt.Errorf("parsing info html: %w", err)
	}

	for _, n := range nodes {
		walk(n, func(el *html.Node) {
			if el.DataAtom != atom.A || !hasClass(el, OverlayNoteClass) {
				return
			}
			href := attr(el, "href")
			if href == "" {
				return
			}
			q := url.Values{"href": {href}, "title": {strings.ToUpper(strings.TrimSpace(text(el)))}}
			removeAttr(el, "href")
			setAttr(el, "role", "button")
			setAttr(el, "data-on:click", fmt.Sprintf("@get('%s?%s')", notesURL, q.Encode()))
		})
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("rendering info html: %w", err)
		}
	}
	return buf.String(), nil
}

func walk(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}

func text(n *html.Node) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return b.String()
}
