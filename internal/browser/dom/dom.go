// internal/browser/dom/dom.go
package dom

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Tree is the read-only view of a parsed page that action resolution runs against.
// Implementations must be deterministic: the same markup and the same query always
// yield the same node.
type Tree interface {
	// Query returns the first element in document order matching a CSS selector,
	// or nil when nothing matches. An unparsable selector is an error.
	Query(selector string) (Node, error)
	// QueryAll returns every element matching a CSS selector in document order.
	QueryAll(selector string) ([]Node, error)
	// ByID returns the first element whose id attribute equals id exactly, or nil.
	ByID(id string) Node
}

// Node is a single element of a Tree.
type Node interface {
	// Tag is the lowercase element name.
	Tag() string
	Attr(name string) (string, bool)
	// Is reports whether the element itself matches the selector.
	Is(selector string) bool
	// Find returns the first descendant matching the selector, or nil.
	Find(selector string) Node
	FindAll(selector string) []Node
	// Closest returns the element itself or its nearest ancestor matching the selector, or nil.
	Closest(selector string) Node
	Text() string
	// XPath is an absolute locator for the element, anchored on the nearest unique id.
	XPath() string
	// Selector is a short CSS description of the element, used in logs.
	Selector() string
}

// Document is the goquery backed Tree.
type Document struct {
	doc *goquery.Document
}

var _ Tree = (*Document)(nil)

// Parse reads HTML markup into a Document.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Document{doc: doc}, nil
}

// ParseString is Parse for markup already held in memory.
func ParseString(markup string) (*Document, error) {
	return Parse(strings.NewReader(markup))
}

// compile validates a selector. goquery silently matches nothing on a bad selector,
// so model supplied selectors go through cascadia first.
func compile(selector string) (cascadia.Selector, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	return sel, nil
}

func (d *Document) Query(selector string) (Node, error) {
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	return wrap(d.doc.FindMatcher(sel).First()), nil
}

func (d *Document) QueryAll(selector string) ([]Node, error) {
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	return wrapAll(d.doc.FindMatcher(sel)), nil
}

func (d *Document) ByID(id string) Node {
	if id == "" {
		return nil
	}
	match := d.doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.AttrOr("id", "") == id
	})
	return wrap(match.First())
}

// Root returns the underlying document node.
func (d *Document) Root() *html.Node {
	return d.doc.Get(0)
}

// Element is a Node backed by a single-element goquery selection.
type Element struct {
	sel *goquery.Selection
}

var _ Node = (*Element)(nil)

// wrap returns a nil Node, not a typed nil, for an empty selection.
func wrap(s *goquery.Selection) Node {
	if s == nil || s.Length() == 0 {
		return nil
	}
	return &Element{sel: s.First()}
}

func wrapAll(s *goquery.Selection) []Node {
	nodes := make([]Node, 0, s.Length())
	s.Each(func(_ int, item *goquery.Selection) {
		nodes = append(nodes, &Element{sel: item})
	})
	return nodes
}

// HTMLNode exposes the parsed node for callers that need raw tree access.
func (e *Element) HTMLNode() *html.Node {
	return e.sel.Get(0)
}

func (e *Element) Tag() string {
	return strings.ToLower(goquery.NodeName(e.sel))
}

func (e *Element) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

func (e *Element) Is(selector string) bool {
	return e.sel.Is(selector)
}

func (e *Element) Find(selector string) Node {
	return wrap(e.sel.Find(selector).First())
}

func (e *Element) FindAll(selector string) []Node {
	return wrapAll(e.sel.Find(selector))
}

func (e *Element) Closest(selector string) Node {
	return wrap(e.sel.Closest(selector))
}

func (e *Element) Text() string {
	return NormalizeWhitespace(e.sel.Text())
}

func (e *Element) XPath() string {
	return XPath(e.HTMLNode())
}

func (e *Element) Selector() string {
	return SpecificSelector(e)
}

// IsTextEntry reports whether a node accepts free text: a textarea, or an input whose
// type is not hidden or button-like.
func IsTextEntry(n Node) bool {
	if n == nil {
		return false
	}
	switch n.Tag() {
	case "textarea":
		return true
	case "input":
		t, _ := n.Attr("type")
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "hidden", "submit", "button", "reset", "image", "checkbox", "radio", "file":
			return false
		default:
			// Includes text, search, email, password, url, tel, number and untyped inputs.
			return true
		}
	}
	return false
}
