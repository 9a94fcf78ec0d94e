package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a parsed HTML page held in memory. It is not safe for
// concurrent use; callers serialise access.
type Document struct {
	root *html.Node
}

// Parse reads a full HTML document. Fragments are wrapped in html/head/body
// the same way a browser would.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString is Parse for an in-memory string.
func ParseString(markup string) (*Document, error) {
	return Parse(strings.NewReader(markup))
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// First returns the first element matching sel, or nil.
func (d *Document) First(sel cascadia.Selector) *html.Node {
	return sel.MatchFirst(d.root)
}

// All returns every element matching sel in document order.
func (d *Document) All(sel cascadia.Selector) []*html.Node {
	return sel.MatchAll(d.root)
}

// Count returns how many elements match sel.
func (d *Document) Count(sel cascadia.Selector) int {
	return len(d.All(sel))
}

// Query compiles a selector string and returns the first match.
func (d *Document) Query(selector string) (*html.Node, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	return d.First(sel), nil
}

// Contains reports whether n is attached to this document.
func (d *Document) Contains(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// CreateElement returns a detached element node.
func (d *Document) CreateElement(tag string) *html.Node {
	tag = strings.ToLower(tag)
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
}

// AppendMarkup parses markup in the context of parent and appends the
// resulting nodes as its last children.
func (d *Document) AppendMarkup(parent *html.Node, markup string) error {
	if parent == nil || parent.Type != html.ElementNode {
		return fmt.Errorf("append target must be an element")
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), parent)
	if err != nil {
		return fmt.Errorf("failed to parse fragment: %w", err)
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	return nil
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// RenderNode renders a single subtree.
func RenderNode(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}
