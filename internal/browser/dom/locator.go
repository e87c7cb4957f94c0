// internal/browser/dom/locator.go
package dom

// LocatorKind tells the browser driver how to interpret a Locator expression.
type LocatorKind int

const (
	// LocateXPath is an XPath expression produced by XPath for a parsed node.
	LocateXPath LocatorKind = iota
	// LocateCSS is a CSS selector, typically one supplied by the model.
	LocateCSS
)

// Locator addresses one element on the live page.
type Locator struct {
	Expr string
	Kind LocatorKind
	// Desc is a human readable form of the target for logs.
	Desc string
}

// LocatorFor addresses a parsed node on the live page by its XPath.
func LocatorFor(n Node) Locator {
	return Locator{Expr: n.XPath(), Kind: LocateXPath, Desc: n.Selector()}
}

// CSSLocator addresses an element by CSS selector.
func CSSLocator(selector string) Locator {
	return Locator{Expr: selector, Kind: LocateCSS, Desc: selector}
}

// Fallback returns the CSS form of an XPath locator, taken from its
// description. CSS locators have no fallback.
func (l Locator) Fallback() (Locator, bool) {
	if l.Kind != LocateXPath || l.Desc == "" || l.Desc == l.Expr {
		return Locator{}, false
	}
	return CSSLocator(l.Desc), true
}

func (l Locator) String() string {
	if l.Desc != "" {
		return l.Desc
	}
	return l.Expr
}
