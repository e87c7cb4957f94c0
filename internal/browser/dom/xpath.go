// internal/browser/dom/xpath.go
package dom

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// XPath builds an absolute XPath expression for a node. The path is anchored on the
// nearest ancestor (or the node itself) carrying an id that is unique within the
// document, and falls back to positional steps from the root otherwise.
func XPath(node *html.Node) string {
	if node == nil {
		return ""
	}
	root := node
	for root.Parent != nil {
		root = root.Parent
	}

	var path []string
	for n := node; n != nil && n.Type != html.DocumentNode; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		tag := strings.ToLower(n.Data)
		if tag == "" {
			continue
		}

		if id := htmlquery.SelectAttr(n, "id"); usableID(root, id) {
			path = append(path, fmt.Sprintf(`//*[@id='%s']`, id))
			break
		}

		// XPath positions are 1-based and count same-tag siblings only.
		index := 1
		for prev := n.PrevSibling; prev != nil; prev = prev.PrevSibling {
			if prev.Type == html.ElementNode && strings.ToLower(prev.Data) == tag {
				index++
			}
		}
		path = append(path, fmt.Sprintf("%s[%d]", tag, index))
	}

	if len(path) == 0 {
		return "/"
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	xpath := strings.Join(path, "/")
	if !strings.HasPrefix(xpath, "//*[@id=") {
		xpath = "/" + xpath
	}
	return xpath
}

// usableID reports whether an id can anchor a path: non-empty, quotable inside a
// single-quoted XPath literal, and carried by exactly one element.
func usableID(root *html.Node, id string) bool {
	if id == "" || strings.Contains(id, "'") {
		return false
	}
	matches, err := htmlquery.QueryAll(root, fmt.Sprintf(`//*[@id='%s']`, id))
	return err == nil && len(matches) == 1
}

var cssIdent = regexp.MustCompile(`^-?[_a-zA-Z][_a-zA-Z0-9-]*$`)

// SpecificSelector describes a node with the most specific short CSS selector it can
// build: tag#id, then tag[name="..."], then tag[type="..."], then the bare tag.
// The result is not guaranteed to be unique; XPath is the precise locator.
func SpecificSelector(n Node) string {
	if n == nil {
		return ""
	}
	tag := n.Tag()
	if id, ok := n.Attr("id"); ok && cssIdent.MatchString(id) {
		return tag + "#" + id
	}
	if name, ok := n.Attr("name"); ok && name != "" {
		return fmt.Sprintf(`%s[name=%s]`, tag, quoteCSS(name))
	}
	if typ, ok := n.Attr("type"); ok && typ != "" {
		return fmt.Sprintf(`%s[type=%s]`, tag, quoteCSS(typ))
	}
	return tag
}

func quoteCSS(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
