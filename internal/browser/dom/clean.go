// internal/browser/dom/clean.go
package dom

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// noiseSelector lists elements whose text never reaches the model.
const noiseSelector = "script, style, noscript, template, svg, iframe, head"

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	strictPolicy = bluemonday.StrictPolicy()
)

// NormalizeWhitespace collapses every whitespace run to one space and trims the ends.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// CleanText returns the visible body text of the document with scripts, styles and
// similar noise removed and whitespace collapsed. The document itself is not modified.
func (d *Document) CleanText() string {
	body := d.doc.Find("body")
	if body.Length() == 0 {
		body = d.doc.Selection
	}
	clone := body.Clone()
	clone.Find(noiseSelector).Remove()
	return NormalizeWhitespace(clone.Text())
}

// CleanText parses markup and returns its cleaned body text.
func CleanText(markup string) (string, error) {
	doc, err := ParseString(markup)
	if err != nil {
		return "", err
	}
	return doc.CleanText(), nil
}

// SanitizeText strips any markup from untrusted text, such as labels produced by the
// model, and returns plain text with entities decoded and whitespace collapsed.
func SanitizeText(s string) string {
	return NormalizeWhitespace(html.UnescapeString(strictPolicy.Sanitize(s)))
}
