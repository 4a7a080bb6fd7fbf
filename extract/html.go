package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseHTML parses a full HTML document.
func ParseHTML(doc string) (*html.Node, error) {
	return html.Parse(strings.NewReader(doc))
}

// ScriptByID returns the text of the first <script> element whose id
// attribute equals id. The second result is false when no such element
// exists.
func ScriptByID(doc *html.Node, id string) (string, bool) {
	for _, n := range findAllByTag(doc, atom.Script) {
		if getAttr(n, "id") != id {
			continue
		}
		var b strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
		return b.String(), true
	}
	return "", false
}

// MetaContent returns the content attribute of the first <meta> element
// whose property or name attribute equals key (e.g. "og:image").
func MetaContent(doc *html.Node, key string) (string, bool) {
	for _, n := range findAllByTag(doc, atom.Meta) {
		if getAttr(n, "property") != key && getAttr(n, "name") != key {
			continue
		}
		if v := strings.TrimSpace(getAttr(n, "content")); v != "" {
			return v, true
		}
	}
	return "", false
}

// getAttr returns the value of an attribute on a node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// findAllByTag finds all elements with a specific tag, in document order.
func findAllByTag(root *html.Node, tag atom.Atom) []*html.Node {
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == tag {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return results
}
