// internal/formexec/executor.go
package formexec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/browser/dom"
	"github.com/xkilldash9x/pagepilot/internal/config"
)

// ErrNoInputFieldFound is returned when a form has no field that accepts free text.
var ErrNoInputFieldFound = errors.New("no suitable input field found in the form")

const (
	submitSelector       = `button[type="submit"], input[type="submit"]`
	inputSelector        = "input, textarea"
	defaultSettleTimeout = 10 * time.Second
)

// Page is the slice of the browser session a form submission needs.
type Page interface {
	Fill(ctx context.Context, target dom.Locator, value string) error
	Click(ctx context.Context, target dom.Locator) error
	PressEnter(ctx context.Context, target dom.Locator) error
	ExpectSettle(ctx context.Context, timeout time.Duration) func() error
	ReadState(ctx context.Context) (*schemas.PageState, error)
}

// Target is the field a submission fills.
type Target struct {
	Node    dom.Node
	Locator dom.Locator
}

// Placeholder returns the field's placeholder text, if any.
func (t Target) Placeholder() string {
	if t.Node == nil {
		return ""
	}
	v, _ := t.Node.Attr("placeholder")
	return v
}

// Name returns the field's name attribute, if any.
func (t Target) Name() string {
	if t.Node == nil {
		return ""
	}
	v, _ := t.Node.Attr("name")
	return v
}

// SelectInput picks the field to fill. A direct selector wins when one of its
// matches is an input or textarea, or a container holding one. Matches inside
// form are preferred over matches elsewhere on the page. Otherwise the first
// text entry field of the form is used.
func SelectInput(tree dom.Tree, form dom.Node, directSelector string) (Target, error) {
	if n := directInput(tree, form, directSelector); n != nil {
		return Target{Node: n, Locator: dom.LocatorFor(n)}, nil
	}
	if form == nil {
		return Target{}, ErrNoInputFieldFound
	}
	for _, n := range form.FindAll(inputSelector) {
		if dom.IsTextEntry(n) {
			return Target{Node: n, Locator: dom.LocatorFor(n)}, nil
		}
	}
	return Target{}, ErrNoInputFieldFound
}

func directInput(tree dom.Tree, form dom.Node, selector string) dom.Node {
	if selector == "" || tree == nil {
		return nil
	}
	matches, err := tree.QueryAll(selector)
	if err != nil {
		return nil
	}
	var outside dom.Node
	for _, n := range matches {
		if !n.Is(inputSelector) {
			if n = n.Find(inputSelector); n == nil {
				continue
			}
		}
		if form == nil || sameNode(n.Closest("form"), form) {
			return n
		}
		if outside == nil {
			outside = n
		}
	}
	return outside
}

func sameNode(a, b dom.Node) bool {
	if a == nil || b == nil {
		return false
	}
	type htmlNoder interface{ HTMLNode() *html.Node }
	ha, okA := a.(htmlNoder)
	hb, okB := b.(htmlNoder)
	if okA && okB {
		return ha.HTMLNode() == hb.HTMLNode()
	}
	return a.XPath() == b.XPath()
}

// Executor fills and submits forms on a live page.
type Executor struct {
	page          Page
	logger        *zap.Logger
	settleTimeout time.Duration
}

// NewExecutor creates an Executor driving page.
func NewExecutor(page Page, cfg config.NetworkConfig, logger *zap.Logger) *Executor {
	timeout := cfg.SettleTimeout
	if timeout <= 0 {
		timeout = defaultSettleTimeout
	}
	return &Executor{
		page:          page,
		logger:        logger.Named("formexec"),
		settleTimeout: timeout,
	}
}

// Execute fills target with value and submits form, by clicking its submit
// control if it has one and by pressing Enter in the field otherwise. The
// submission races a bounded wait for the page to settle. A settle timeout is
// logged and the current page is read anyway.
func (e *Executor) Execute(ctx context.Context, form dom.Node, target Target, value string) (*schemas.PageState, error) {
	logger := e.logger.With(zap.Stringer("input", target.Locator))

	if err := e.page.Fill(ctx, target.Locator, value); err != nil {
		return nil, fmt.Errorf("failed to fill form input: %w", err)
	}
	logger.Debug("Filled input field.")

	trigger := e.triggerFor(form, target, logger)

	g, gctx := errgroup.WithContext(ctx)
	// The listener must be in place before the trigger fires.
	wait := e.page.ExpectSettle(gctx, e.settleTimeout)
	g.Go(func() error {
		return trigger(gctx)
	})
	g.Go(func() error {
		err := wait()
		var timeout *schemas.SubmissionTimeout
		if errors.As(err, &timeout) {
			logger.Warn("Page did not settle after submission, reading current state.", zap.Error(err))
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	state, err := e.page.ReadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page after submission: %w", err)
	}
	logger.Info("Form submitted.", zap.String("url", state.URL), zap.String("title", state.Title))
	return state, nil
}

func (e *Executor) triggerFor(form dom.Node, target Target, logger *zap.Logger) func(context.Context) error {
	var submit dom.Node
	if form != nil {
		submit = form.Find(submitSelector)
	}
	if submit != nil {
		loc := dom.LocatorFor(submit)
		logger.Debug("Clicking submit control.", zap.Stringer("submit", loc))
		return func(ctx context.Context) error {
			if err := e.page.Click(ctx, loc); err != nil {
				return fmt.Errorf("failed to click submit control: %w", err)
			}
			return nil
		}
	}

	logger.Debug("No submit control, pressing enter in the input field.")
	return func(ctx context.Context) error {
		if err := e.page.PressEnter(ctx, target.Locator); err != nil {
			return fmt.Errorf("failed to submit with enter: %w", err)
		}
		return nil
	}
}
