// internal/navigator/navigator.go
package navigator

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/browser/dom"
	"github.com/xkilldash9x/pagepilot/internal/config"
	"github.com/xkilldash9x/pagepilot/internal/formexec"
	"github.com/xkilldash9x/pagepilot/internal/llmutil"
	"github.com/xkilldash9x/pagepilot/internal/prompt"
	"github.com/xkilldash9x/pagepilot/internal/resolver"
)

var (
	// ErrStaleAction is returned when an action extracted from an earlier page is
	// applied after the page changed.
	ErrStaleAction = errors.New("action belongs to an earlier page")
	// ErrActionNotFound is returned when the selected name is not in the action list.
	ErrActionNotFound = errors.New("critical error: could not find the selected action")
)

// Browser is the page session the loop drives. *session.Session satisfies it.
type Browser interface {
	formexec.Page
	Navigate(ctx context.Context, url string) (*schemas.PageSnapshot, error)
	Generation() uint64
}

// Extractor produces the summary and actions for a page.
type Extractor interface {
	ExtractPage(ctx context.Context, snap *schemas.PageSnapshot) (*schemas.ExtractionResult, error)
}

// Navigator runs the interactive page loop: load a page, extract its actions,
// let the operator pick one and carry it out, then repeat on the resulting page.
type Navigator struct {
	browser   Browser
	extractor Extractor
	forms     *formexec.Executor
	prompter  prompt.Prompter
	printer   *prompt.Printer
	logger    *zap.Logger

	maxSteps        int
	maxContentChars int
}

// New wires a Navigator. Form submissions run on browser.
func New(cfg config.Interface, browser Browser, extractor Extractor, prompter prompt.Prompter, printer *prompt.Printer, logger *zap.Logger) *Navigator {
	return &Navigator{
		browser:         browser,
		extractor:       extractor,
		forms:           formexec.NewExecutor(browser, cfg.Network(), logger),
		prompter:        prompter,
		printer:         printer,
		logger:          logger.Named("navigator"),
		maxSteps:        cfg.Navigator().MaxSteps,
		maxContentChars: cfg.Navigator().MaxContentChars,
	}
}

// Run drives the loop from startURL until the operator cancels, the step limit
// is reached or a non-recoverable error occurs. Operator cancellation is
// returned as schemas.ErrOperatorCancelled.
func (n *Navigator) Run(ctx context.Context, startURL string) error {
	snap, err := n.open(ctx, startURL)
	if err != nil {
		return err
	}

	for step := 1; ; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if n.maxSteps > 0 && step > n.maxSteps {
			n.logger.Warn("Step limit reached, ending run.", zap.Int("max_steps", n.maxSteps), zap.String("url", snap.URL))
			n.printer.Warnf("Reached the limit of %d pages, stopping.", n.maxSteps)
			return nil
		}

		n.logger.Debug("Starting page cycle.", zap.Int("step", step), zap.String("url", snap.URL), zap.Uint64("generation", snap.Generation))
		n.printer.Infof("Summarizing page content and identifying actions...")
		result, err := n.extractor.ExtractPage(ctx, snap)
		if err != nil {
			return err
		}

		if snap, err = n.present(ctx, snap, result); err != nil {
			return err
		}
	}
}

// open loads a page and announces it.
func (n *Navigator) open(ctx context.Context, target string) (*schemas.PageSnapshot, error) {
	n.printer.Infof("Fetching content for: %s", target)
	snap, err := n.browser.Navigate(ctx, target)
	if err != nil {
		return nil, err
	}
	n.printer.Infof("Page title: %s", snap.Title)
	return snap, nil
}

// present offers the actions of one page until one of them leaves it, and
// returns the page that follows.
func (n *Navigator) present(ctx context.Context, snap *schemas.PageSnapshot, result *schemas.ExtractionResult) (*schemas.PageSnapshot, error) {
	for {
		name, err := n.prompter.SelectAction(ctx, result.Summary, result.Actions)
		if err != nil {
			return nil, err
		}
		action, ok := result.Find(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrActionNotFound, name)
		}
		if current := n.browser.Generation(); action.Generation != current {
			return nil, fmt.Errorf("%w: %q is from page %d, current page is %d", ErrStaleAction, action.Name, action.Generation, current)
		}

		n.printer.Noticef("Selected action: %s", action.Name)
		n.logger.Info("Action selected.", zap.String("action", action.Name), zap.String("kind", string(action.Kind)))

		var next *schemas.PageSnapshot
		switch action.Kind {
		case schemas.ActionLink:
			next, err = n.followLink(ctx, snap, action)
		case schemas.ActionForm:
			next, err = n.submitForm(ctx, snap, action)
		default:
			n.showPage(snap, result)
		}
		if err != nil {
			return nil, err
		}
		if next != nil {
			return next, nil
		}
	}
}

// followLink navigates to the action's URL. If that fails the previous page is
// reloaded; only a failure of the reload is returned. A nil page means the
// link could not be followed and the current page stays.
func (n *Navigator) followLink(ctx context.Context, snap *schemas.PageSnapshot, action schemas.PageAction) (*schemas.PageSnapshot, error) {
	if action.URL == "" {
		n.printer.Warnf("Link action selected, but no URL was provided. Cannot follow link.")
		return nil, nil
	}
	if !isWebURL(action.URL) {
		n.logger.Warn("Refusing to follow a non-web link.", zap.String("url", action.URL))
		n.printer.Warnf("Cannot follow link to %s.", action.URL)
		return nil, nil
	}

	n.printer.Infof("Following link to: %s", action.URL)
	next, err := n.open(ctx, action.URL)
	if err == nil {
		return next, nil
	}

	var navErr *schemas.NavigationFailure
	if !errors.As(err, &navErr) || ctx.Err() != nil {
		return nil, err
	}
	n.logger.Warn("Link navigation failed, returning to the previous page.",
		zap.String("url", action.URL), zap.String("previous", snap.URL), zap.Error(err))
	n.printer.Warnf("Could not load %s, returning to %s.", action.URL, snap.URL)
	return n.open(ctx, snap.URL)
}

// submitForm re-resolves the action's form on the current page, asks for the
// input value and submits it. A nil page means the form could not be used and
// the current page stays.
func (n *Navigator) submitForm(ctx context.Context, snap *schemas.PageSnapshot, action schemas.PageAction) (*schemas.PageSnapshot, error) {
	tree, err := dom.ParseString(snap.HTML)
	if err != nil {
		return nil, err
	}

	res, err := resolver.ResolveAction(tree, action)
	if err != nil {
		var miss *schemas.ResolutionMiss
		if errors.As(err, &miss) {
			n.logger.Warn("Form could not be resolved.", zap.Error(err))
			n.printer.Warnf("Could not locate the form for %q on this page.", action.Name)
			return nil, nil
		}
		return nil, err
	}

	var direct string
	if action.Form != nil {
		direct = action.Form.InputSelector
	}
	target, err := formexec.SelectInput(tree, res.Form, direct)
	if err != nil {
		if errors.Is(err, formexec.ErrNoInputFieldFound) {
			n.logger.Warn("Form has no text input.", zap.String("action", action.Name), zap.String("form", res.Form.Selector()))
			n.printer.Warnf("The form for %q has no field to fill.", action.Name)
			return nil, nil
		}
		return nil, err
	}
	n.logger.Debug("Form resolved.",
		zap.String("action", action.Name),
		zap.String("strategy", string(res.Strategy)),
		zap.String("form", res.Form.Selector()),
		zap.Stringer("input", target.Locator),
	)

	title, hint := prompt.FormPrompt(action.Name, target.Placeholder(), target.Name())
	value, err := n.prompter.InputText(ctx, title, hint)
	if err != nil {
		return nil, err
	}
	n.printer.Infof("Input for %q: %s", action.Name, value)

	state, err := n.forms.Execute(ctx, res.Form, target, value)
	if err != nil {
		return nil, err
	}
	n.printer.Infof("Page title: %s", state.Title)

	// The submitted page is used as is. Reloading its URL could repeat a POST.
	return &schemas.PageSnapshot{
		Title:      state.Title,
		HTML:       state.Content,
		URL:        state.URL,
		Generation: n.browser.Generation(),
	}, nil
}

// showPage prints the summary and the cleaned page text.
func (n *Navigator) showPage(snap *schemas.PageSnapshot, result *schemas.ExtractionResult) {
	text, err := dom.CleanText(snap.HTML)
	if err != nil {
		n.logger.Warn("Could not extract page text.", zap.Error(err))
	}
	if n.maxContentChars > 0 {
		text = llmutil.TruncateString(text, n.maxContentChars)
	}
	n.printer.Page(snap.Title, result.Summary, text)
}

func isWebURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
