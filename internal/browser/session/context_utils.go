// internal/browser/session/context_utils.go
package session

import (
	"context"
	"time"
)

// CombineContext returns a context that carries the values and deadline of
// primary (the chromedp tab context) and is also canceled when secondary (the
// caller's operational context) is done. chromedp locates its target through
// context values, so browser actions must always run on a context derived
// from the tab.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancelCause(primary)
	stop := context.AfterFunc(secondary, func() {
		cancel(context.Cause(secondary))
	})
	return combined, func() {
		stop()
		cancel(context.Canceled)
	}
}

// Detach returns a context with the values of ctx but none of its
// cancellation, for teardown work that must run after ctx is done.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// DetachWithTimeout is Detach bounded by its own timeout.
func DetachWithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(Detach(ctx), timeout)
}
