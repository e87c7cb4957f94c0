package navigator

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/browser/dom"
	"github.com/xkilldash9x/pagepilot/internal/config"
	"github.com/xkilldash9x/pagepilot/internal/prompt"
)

// -- Fake Browser --

type fakeBrowser struct {
	mu           sync.Mutex
	pages        map[string]*schemas.PageSnapshot
	failing      map[string]bool
	generation   uint64
	navigations  []string
	interactions []string
	submitted    *schemas.PageState

	// failRevisits makes every URL fail after its first successful load.
	failRevisits bool
	loaded       map[string]bool
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		pages:   map[string]*schemas.PageSnapshot{},
		failing: map[string]bool{},
		loaded:  map[string]bool{},
	}
}

func (b *fakeBrowser) addPage(url, title, html string) {
	b.pages[url] = &schemas.PageSnapshot{URL: url, Title: title, HTML: html}
}

func (b *fakeBrowser) Navigate(ctx context.Context, url string) (*schemas.PageSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.navigations = append(b.navigations, url)
	if b.failing[url] || (b.failRevisits && b.loaded[url]) {
		return nil, &schemas.NavigationFailure{URL: url, Err: fmt.Errorf("net::ERR_CONNECTION_REFUSED")}
	}
	page, ok := b.pages[url]
	if !ok {
		return nil, &schemas.NavigationFailure{URL: url, Err: fmt.Errorf("404")}
	}
	b.loaded[url] = true
	b.generation++
	cp := *page
	cp.Generation = b.generation
	return &cp, nil
}

func (b *fakeBrowser) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

func (b *fakeBrowser) Fill(ctx context.Context, target dom.Locator, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interactions = append(b.interactions, "fill "+target.String()+"="+value)
	return nil
}

func (b *fakeBrowser) Click(ctx context.Context, target dom.Locator) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generation++
	b.interactions = append(b.interactions, "click "+target.String())
	return nil
}

func (b *fakeBrowser) PressEnter(ctx context.Context, target dom.Locator) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generation++
	b.interactions = append(b.interactions, "enter "+target.String())
	return nil
}

func (b *fakeBrowser) ExpectSettle(ctx context.Context, timeout time.Duration) func() error {
	return func() error { return nil }
}

func (b *fakeBrowser) ReadState(ctx context.Context) (*schemas.PageState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.submitted == nil {
		return &schemas.PageState{}, nil
	}
	return b.submitted, nil
}

// -- Fake Extractor --

// fakeExtractor returns canned results keyed by page URL and stamps them like
// the real extractor does.
type fakeExtractor struct {
	results map[string]*schemas.ExtractionResult
	err     error
	calls   []string
}

func (e *fakeExtractor) ExtractPage(ctx context.Context, snap *schemas.PageSnapshot) (*schemas.ExtractionResult, error) {
	e.calls = append(e.calls, snap.URL)
	if e.err != nil {
		return nil, e.err
	}
	canned, ok := e.results[snap.URL]
	if !ok {
		canned = &schemas.ExtractionResult{Summary: "Nothing here."}
	}
	out := &schemas.ExtractionResult{Summary: canned.Summary}
	for _, a := range canned.Actions {
		a.Generation = snap.Generation
		out.Actions = append(out.Actions, a)
	}
	out.Actions = append(out.Actions, schemas.PageAction{Name: schemas.ReadActionName, Kind: schemas.ActionRead, Generation: snap.Generation})
	return out, nil
}

// -- Scripted Prompter --

// scriptedPrompter answers selections and inputs from queues. An exhausted
// queue behaves like the operator pressing ctrl-c.
type scriptedPrompter struct {
	choices []string
	inputs  []string
	offered [][]string
	titles  []string
}

func (p *scriptedPrompter) SelectAction(ctx context.Context, summary string, actions []schemas.PageAction) (string, error) {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = a.Name
	}
	p.offered = append(p.offered, names)
	if len(p.choices) == 0 {
		return "", schemas.ErrOperatorCancelled
	}
	choice := p.choices[0]
	p.choices = p.choices[1:]
	return choice, nil
}

func (p *scriptedPrompter) InputText(ctx context.Context, title, placeholder string) (string, error) {
	p.titles = append(p.titles, title)
	if len(p.inputs) == 0 {
		return "", schemas.ErrOperatorCancelled
	}
	v := p.inputs[0]
	p.inputs = p.inputs[1:]
	return v, nil
}

// -- Fixture --

type fixture struct {
	nav       *Navigator
	browser   *fakeBrowser
	extractor *fakeExtractor
	prompter  *scriptedPrompter
	out       *bytes.Buffer
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.NetworkCfg.SettleTimeout = time.Second
	if mutate != nil {
		mutate(cfg)
	}

	f := &fixture{
		browser:   newFakeBrowser(),
		extractor: &fakeExtractor{results: map[string]*schemas.ExtractionResult{}},
		prompter:  &scriptedPrompter{},
		out:       &bytes.Buffer{},
	}
	f.nav = New(cfg, f.browser, f.extractor, f.prompter, prompt.NewPrinter(f.out), zaptest.NewLogger(t))
	return f
}
