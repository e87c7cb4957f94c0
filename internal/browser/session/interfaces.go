// internal/browser/session/interfaces.go
package session

import (
	"context"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/browser/dom"
)

// Driver abstracts the browser engine so the Session can own lifecycle and
// bookkeeping without being coupled to chromedp. ChromeDriver is the
// production implementation.
type Driver interface {
	// Start launches the browser and opens the single page. It is only called
	// once per driver.
	Start(ctx context.Context) error

	// Navigate directs the page to url and returns once the DOM has been
	// constructed. It does not wait for network idle.
	Navigate(ctx context.Context, url string) error

	// Snapshot reads the title, serialized HTML and URL of the current page.
	// The Generation field is left for the Session to fill in.
	Snapshot(ctx context.Context) (*schemas.PageSnapshot, error)

	// Fill replaces the value of the target field with value.
	Fill(ctx context.Context, target dom.Locator, value string) error
	Click(ctx context.Context, target dom.Locator) error
	// PressEnter sends the commit key to the target element.
	PressEnter(ctx context.Context, target dom.Locator) error

	// ListenSettle subscribes to page load signals until ctx is done. The
	// returned channel receives at least once after the main frame loads a
	// document other than the one shown when listening began, or navigates
	// within its document. Subframe activity does not count.
	ListenSettle(ctx context.Context) <-chan struct{}

	// Close releases the page and then the browser.
	Close(ctx context.Context) error
}
