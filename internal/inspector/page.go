package inspector

import (
	"bytes"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type page struct {
	title        *string
	description  *string
	technologies []string
}

// techRule reports whether an element gives away a front-end technology.
type techRule struct {
	name  string
	match func(n *html.Node) bool
}

var techRules = []techRule{
	{"WordPress", func(n *html.Node) bool {
		switch n.DataAtom {
		case atom.Link:
			return attrContains(n, "href", "wp-content")
		case atom.Script:
			return attrContains(n, "src", "wp-content")
		case atom.Meta:
			return attrEquals(n, "name", "generator") && attrContains(n, "content", "WordPress")
		}
		return false
	}},
	{"jQuery", func(n *html.Node) bool {
		return n.DataAtom == atom.Script && attrContains(n, "src", "jquery")
	}},
	{"React", func(n *html.Node) bool {
		return hasAttr(n, "data-reactroot") || hasAttr(n, "data-reactid")
	}},
	{"Bootstrap", func(n *html.Node) bool {
		switch n.DataAtom {
		case atom.Link:
			return attrContains(n, "href", "bootstrap")
		case atom.Script:
			return attrContains(n, "src", "bootstrap")
		}
		return false
	}},
}

// parsePage extracts the title, meta description and technologies from an HTML body.
// Unparsable input yields an empty page.
func parsePage(body []byte) page {
	p := page{technologies: []string{}}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return p
	}

	found := make(map[string]bool)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.DataAtom == atom.Title && p.title == nil:
				title := strings.TrimSpace(textContent(n))
				p.title = &title
			case n.DataAtom == atom.Meta && p.description == nil && attrEquals(n, "name", "description"):
				if content, ok := attr(n, "content"); ok {
					p.description = &content
				}
			}
			for _, rule := range techRules {
				if !found[rule.name] && rule.match(n) {
					found[rule.name] = true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for name := range found {
		p.technologies = append(p.technologies, name)
	}
	sort.Strings(p.technologies)
	return p
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := attr(n, key)
	return ok
}

func attrEquals(n *html.Node, key, want string) bool {
	v, ok := attr(n, key)
	return ok && v == want
}

func attrContains(n *html.Node, key, sub string) bool {
	v, ok := attr(n, key)
	return ok && strings.Contains(v, sub)
}
