// internal/browser/session/chrome_driver.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/browser/dom"
	"github.com/xkilldash9x/pagepilot/internal/config"
)

var errDriverNotStarted = errors.New("browser driver has not been started")

// ChromeDriver drives a single headless Chrome tab through chromedp.
type ChromeDriver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

var _ Driver = (*ChromeDriver)(nil)

// NewChromeDriver prepares a driver. No browser process is started until Start.
func NewChromeDriver(cfg config.BrowserConfig, logger *zap.Logger) *ChromeDriver {
	return &ChromeDriver{
		cfg:    cfg,
		logger: logger.Named("chromedp"),
	}
}

// launchFlags assembles the command line switches for the browser process.
func launchFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":               cfg.Headless,
		"disable-gpu":            true,
		"no-sandbox":             true,
		"disable-setuid-sandbox": true,
		"disable-dev-shm-usage":  true,
		"no-first-run":           true,
		"disable-extensions":     true,
		"disable-default-apps":   true,
		// Hides navigator.webdriver from page scripts.
		"disable-blink-features": "AutomationControlled",
	}
	if cfg.IgnoreTLSErrors {
		flags["ignore-certificate-errors"] = true
		flags["allow-insecure-localhost"] = true
	}

	// Custom arguments from config, e.g. "--lang=en-US" or "--mute-audio".
	for _, arg := range cfg.Args {
		parts := strings.SplitN(strings.TrimSpace(arg), "=", 2)
		name := strings.TrimLeft(parts[0], "-")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags[name] = parts[1]
		} else {
			flags[name] = true
		}
	}
	return flags
}

// AllocatorOptions builds the chromedp allocator options for cfg.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	flags := launchFlags(cfg)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}
	opts = append(opts, chromedp.UserAgent(userAgent))

	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// Start launches Chrome and attaches to its first tab. The browser outlives ctx;
// ctx only bounds how long the launch may take.
func (d *ChromeDriver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tabCtx != nil {
		return nil
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), AllocatorOptions(d.cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(d.logger.Sugar().Debugf),
		chromedp.WithErrorf(d.logger.Sugar().Debugf),
	)

	setup := chromedp.Tasks{page.SetLifecycleEventsEnabled(true)}
	if d.cfg.BlockImages {
		setup = append(setup, d.blockImages(tabCtx))
	}

	// The first Run allocates the browser and must happen on the long lived tab
	// context, so the launch deadline is enforced around it instead.
	errCh := make(chan error, 1)
	go func() { errCh <- chromedp.Run(tabCtx, setup) }()

	select {
	case err := <-errCh:
		if err != nil {
			tabCancel()
			allocCancel()
			return fmt.Errorf("failed to launch browser: %w", err)
		}
	case <-ctx.Done():
		tabCancel()
		allocCancel()
		<-errCh
		return fmt.Errorf("browser did not start in time: %w", ctx.Err())
	}

	d.allocCancel = allocCancel
	d.tabCtx = tabCtx
	d.tabCancel = tabCancel
	d.logger.Info("Browser launched.",
		zap.Bool("headless", d.cfg.Headless),
		zap.Bool("block_images", d.cfg.BlockImages),
		zap.Int("viewport_width", d.cfg.ViewportWidth),
		zap.Int("viewport_height", d.cfg.ViewportHeight),
	)
	return nil
}

// blockImages fails image requests in the Fetch domain. Only image requests
// are intercepted, so nothing else is paused.
func (d *ChromeDriver) blockImages(tabCtx context.Context) chromedp.Action {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		// Listener callbacks must not block on CDP round trips.
		go func() {
			c := chromedp.FromContext(tabCtx)
			if c == nil || c.Target == nil {
				return
			}
			execCtx := cdp.WithExecutor(tabCtx, c.Target)
			var err error
			if paused.ResourceType == network.ResourceTypeImage {
				err = fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
			} else {
				err = fetch.ContinueRequest(paused.RequestID).Do(execCtx)
			}
			if err != nil && tabCtx.Err() == nil {
				d.logger.Debug("Failed to settle intercepted request.", zap.String("url", paused.Request.URL), zap.Error(err))
			}
		}()
	})

	return fetch.Enable().WithPatterns([]*fetch.RequestPattern{
		{URLPattern: "*", ResourceType: network.ResourceTypeImage},
	})
}

// run executes actions on the tab, bounded by ctx.
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	d.mu.Lock()
	tabCtx := d.tabCtx
	d.mu.Unlock()
	if tabCtx == nil {
		return errDriverNotStarted
	}

	runCtx, cancel := CombineContext(tabCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate waits for DOMContentLoaded of the document the navigation created.
func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		loaded := make(chan cdp.LoaderID, 16)
		lctx, stop := context.WithCancel(c)
		defer stop()
		chromedp.ListenTarget(lctx, func(ev interface{}) {
			if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "DOMContentLoaded" {
				select {
				case loaded <- e.LoaderID:
				default:
				}
			}
		})

		_, loaderID, errorText, _, err := page.Navigate(url).Do(c)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("page load error %s", errorText)
		}
		// Same-document navigations create no new loader.
		if loaderID == "" {
			return nil
		}
		for {
			select {
			case id := <-loaded:
				if id == loaderID {
					return nil
				}
			case <-c.Done():
				return c.Err()
			}
		}
	}))
}

func (d *ChromeDriver) Snapshot(ctx context.Context) (*schemas.PageSnapshot, error) {
	var snap schemas.PageSnapshot
	err := d.run(ctx,
		chromedp.Title(&snap.Title),
		chromedp.OuterHTML("html", &snap.HTML, chromedp.ByQuery),
		chromedp.Location(&snap.URL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	return &snap, nil
}

func queryOptions(target dom.Locator) []chromedp.QueryOption {
	if target.Kind == dom.LocateCSS {
		return []chromedp.QueryOption{chromedp.ByQuery}
	}
	return []chromedp.QueryOption{chromedp.BySearch}
}

// pickLocator keeps target unless it matches nothing on the live page while
// its CSS fallback does.
func pickLocator(target dom.Locator, primaryHits, fallbackHits int) dom.Locator {
	fallback, ok := target.Fallback()
	if !ok || primaryHits > 0 || fallbackHits == 0 {
		return target
	}
	return fallback
}

// countNodes reports how many live nodes target matches without waiting.
func (d *ChromeDriver) countNodes(ctx context.Context, target dom.Locator) int {
	var nodes []*cdp.Node
	opts := append(queryOptions(target), chromedp.AtLeast(0))
	if err := d.run(ctx, chromedp.Nodes(target.Expr, &nodes, opts...)); err != nil {
		return 0
	}
	return len(nodes)
}

// locate resolves target against the live page. An XPath derived from a
// snapshot can go stale when scripts rewrite the document, so the CSS form of
// the same element is tried before giving up.
func (d *ChromeDriver) locate(ctx context.Context, target dom.Locator) dom.Locator {
	fallback, ok := target.Fallback()
	if !ok {
		return target
	}
	primary := d.countNodes(ctx, target)
	if primary > 0 {
		return target
	}
	chosen := pickLocator(target, primary, d.countNodes(ctx, fallback))
	if chosen != target {
		d.logger.Debug("XPath matched nothing; using the CSS selector instead.",
			zap.String("xpath", target.Expr),
			zap.String("selector", chosen.Expr),
		)
	}
	return chosen
}

func (d *ChromeDriver) Fill(ctx context.Context, target dom.Locator, value string) error {
	loc := d.locate(ctx, target)
	opts := queryOptions(loc)
	err := d.run(ctx,
		chromedp.WaitReady(loc.Expr, opts...),
		chromedp.ScrollIntoView(loc.Expr, opts...),
		chromedp.SetValue(loc.Expr, "", opts...),
		chromedp.SendKeys(loc.Expr, value, opts...),
	)
	if err != nil {
		return fmt.Errorf("failed to fill %s: %w", target, err)
	}
	return nil
}

func (d *ChromeDriver) Click(ctx context.Context, target dom.Locator) error {
	loc := d.locate(ctx, target)
	opts := queryOptions(loc)
	err := d.run(ctx,
		chromedp.ScrollIntoView(loc.Expr, opts...),
		chromedp.Click(loc.Expr, opts...),
	)
	if err != nil {
		return fmt.Errorf("failed to click %s: %w", target, err)
	}
	return nil
}

func (d *ChromeDriver) PressEnter(ctx context.Context, target dom.Locator) error {
	loc := d.locate(ctx, target)
	if err := d.run(ctx, chromedp.SendKeys(loc.Expr, kb.Enter, queryOptions(loc)...)); err != nil {
		return fmt.Errorf("failed to press enter on %s: %w", target, err)
	}
	return nil
}

// settleFilter decides which page events mean the main document settled.
type settleFilter struct {
	// mainFrame is empty when the frame tree could not be read, in which case
	// events from every frame are considered.
	mainFrame cdp.FrameID
	// armedLoader is the loader of the document shown when listening began.
	// Its late lifecycle events say nothing about what happened afterwards.
	armedLoader cdp.LoaderID
}

func (f settleFilter) fromMainFrame(id cdp.FrameID) bool {
	return f.mainFrame == "" || id == f.mainFrame
}

func (f settleFilter) accept(ev interface{}) bool {
	switch e := ev.(type) {
	case *page.EventLifecycleEvent:
		if e.Name != "DOMContentLoaded" && e.Name != "load" {
			return false
		}
		if !f.fromMainFrame(e.FrameID) {
			return false
		}
		return f.armedLoader == "" || e.LoaderID != f.armedLoader
	case *page.EventNavigatedWithinDocument:
		return f.fromMainFrame(e.FrameID)
	}
	return false
}

// currentFrame reads the main frame and the loader of its current document.
func (d *ChromeDriver) currentFrame(ctx context.Context) (settleFilter, error) {
	var filter settleFilter
	err := d.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		tree, err := page.GetFrameTree().Do(c)
		if err != nil {
			return err
		}
		if tree != nil && tree.Frame != nil {
			filter.mainFrame = tree.Frame.ID
			filter.armedLoader = tree.Frame.LoaderID
		}
		return nil
	}))
	return filter, err
}

// ListenSettle reports main frame document loads that start after the call,
// and main frame same-document navigations.
func (d *ChromeDriver) ListenSettle(ctx context.Context) <-chan struct{} {
	settled := make(chan struct{}, 1)

	d.mu.Lock()
	tabCtx := d.tabCtx
	d.mu.Unlock()
	if tabCtx == nil {
		return settled
	}

	filter, err := d.currentFrame(ctx)
	if err != nil {
		d.logger.Debug("Could not read the frame tree; accepting load events from any frame.", zap.Error(err))
	}

	lctx, cancel := CombineContext(tabCtx, ctx)
	context.AfterFunc(ctx, cancel)

	chromedp.ListenTarget(lctx, func(ev interface{}) {
		if !filter.accept(ev) {
			return
		}
		select {
		case settled <- struct{}{}:
		default:
		}
	})
	return settled
}

// Close closes the tab, then the browser process.
func (d *ChromeDriver) Close(ctx context.Context) error {
	d.mu.Lock()
	tabCtx, tabCancel, allocCancel := d.tabCtx, d.tabCancel, d.allocCancel
	d.tabCtx, d.tabCancel, d.allocCancel = nil, nil, nil
	d.mu.Unlock()

	if tabCtx == nil {
		return nil
	}
	defer allocCancel()
	defer tabCancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(tabCtx) }()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to close browser tab: %w", err)
		}
	case <-ctx.Done():
		d.logger.Warn("Timed out closing the browser tab gracefully; killing the browser.", zap.Error(ctx.Err()))
	}
	d.logger.Info("Browser closed.")
	return nil
}
