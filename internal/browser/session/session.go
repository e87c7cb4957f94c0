// internal/browser/session/session.go
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/browser/dom"
	"github.com/xkilldash9x/pagepilot/internal/config"
)

var (
	// ErrSessionActive is returned when a Session is created while another one is still live.
	ErrSessionActive = errors.New("a browser session is already live in this process")
	// ErrSessionClosed is returned by operations on a Session after Close.
	ErrSessionClosed = errors.New("browser session is closed")
	// ErrNoPage is returned by page operations before the first navigation.
	ErrNoPage = errors.New("no page is open")
)

// closeTimeout bounds teardown, which runs even after the caller's context is done.
const closeTimeout = 10 * time.Second

// live guards the one-Session-per-process rule. It is claimed by New and released by Close.
var live atomic.Bool

// Session owns the single browser and page used for a run. It is created
// explicitly and handed to the components that need it; nothing reaches it
// through package state.
//
// Every navigation or page-changing interaction advances the page generation.
// Anything derived from an older generation, such as extracted actions, must
// not be applied to the current page.
type Session struct {
	id      string
	logger  *zap.Logger
	network config.NetworkConfig
	driver  Driver

	mu      sync.Mutex
	started bool
	closed  bool

	generation atomic.Uint64
	closeOnce  sync.Once
}

// New claims the process-wide session slot. The browser itself is started
// lazily by the first navigation.
func New(cfg config.Interface, driver Driver, logger *zap.Logger) (*Session, error) {
	if driver == nil {
		return nil, errors.New("session requires a browser driver")
	}
	if !live.CompareAndSwap(false, true) {
		return nil, ErrSessionActive
	}

	id := uuid.New().String()
	return &Session{
		id:      id,
		logger:  logger.Named("session").With(zap.String("session_id", id)),
		network: cfg.Network(),
		driver:  driver,
	}, nil
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Generation returns the current page generation. It is zero until the first navigation.
func (s *Session) Generation() uint64 {
	return s.generation.Load()
}

// EnsureSession starts the browser and its page if they are not running yet.
func (s *Session) EnsureSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.started {
		return nil
	}

	startCtx, cancel := withOptionalTimeout(ctx, s.network.StartupTimeout)
	defer cancel()

	s.logger.Debug("Starting browser.")
	if err := s.driver.Start(startCtx); err != nil {
		return &schemas.StartupError{Reason: "browser failed to start", Err: err}
	}
	s.started = true
	return nil
}

// checkOpen reports whether page operations are allowed.
func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrSessionClosed
	case !s.started:
		return ErrNoPage
	}
	return nil
}

// Navigate loads url and returns the resulting page. Failures are reported as
// a *schemas.NavigationFailure and leave the session usable.
func (s *Session) Navigate(ctx context.Context, url string) (*schemas.PageSnapshot, error) {
	if err := s.EnsureSession(ctx); err != nil {
		return nil, err
	}

	navCtx, cancel := withOptionalTimeout(ctx, s.network.NavigationTimeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("Navigating.", zap.String("url", url))
	if err := s.driver.Navigate(navCtx, url); err != nil {
		s.logger.Warn("Navigation failed.", zap.String("url", url), zap.Error(err))
		return nil, &schemas.NavigationFailure{URL: url, Err: err}
	}
	gen := s.generation.Add(1)

	if wait := s.network.PostLoadWait; wait > 0 {
		if err := sleep(navCtx, wait); err != nil {
			return nil, &schemas.NavigationFailure{URL: url, Err: err}
		}
	}

	snap, err := s.driver.Snapshot(navCtx)
	if err != nil {
		return nil, &schemas.NavigationFailure{URL: url, Err: err}
	}
	snap.Generation = gen

	s.logger.Info("Page loaded.",
		zap.String("url", snap.URL),
		zap.String("title", snap.Title),
		zap.Uint64("generation", gen),
		zap.Duration("duration", time.Since(start)),
	)
	return snap, nil
}

// Snapshot reads the current page without navigating.
func (s *Session) Snapshot(ctx context.Context) (*schemas.PageSnapshot, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	snap, err := s.driver.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	snap.Generation = s.generation.Load()
	return snap, nil
}

// ReadState returns the title, serialized HTML and URL of the current page.
func (s *Session) ReadState(ctx context.Context) (*schemas.PageState, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &schemas.PageState{Title: snap.Title, Content: snap.HTML, URL: snap.URL}, nil
}

// Fill sets the value of a field on the current page.
func (s *Session) Fill(ctx context.Context, target dom.Locator, value string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	opCtx, cancel := withOptionalTimeout(ctx, s.network.NavigationTimeout)
	defer cancel()

	s.logger.Debug("Filling field.", zap.Stringer("target", target))
	return s.driver.Fill(opCtx, target, value)
}

// Click clicks an element. The page generation advances because the click may
// replace the document.
func (s *Session) Click(ctx context.Context, target dom.Locator) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	opCtx, cancel := withOptionalTimeout(ctx, s.network.NavigationTimeout)
	defer cancel()

	s.generation.Add(1)
	s.logger.Debug("Clicking element.", zap.Stringer("target", target))
	return s.driver.Click(opCtx, target)
}

// PressEnter sends the commit key to an element. Like Click it advances the
// page generation.
func (s *Session) PressEnter(ctx context.Context, target dom.Locator) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	opCtx, cancel := withOptionalTimeout(ctx, s.network.NavigationTimeout)
	defer cancel()

	s.generation.Add(1)
	s.logger.Debug("Pressing enter.", zap.Stringer("target", target))
	return s.driver.PressEnter(opCtx, target)
}

// ExpectSettle starts listening for the page to settle and returns a function
// that waits for it. Call it before triggering the action so no signal is
// missed, and always call the returned function, which releases the listener.
// The wait fails with *schemas.SubmissionTimeout once timeout elapses.
func (s *Session) ExpectSettle(ctx context.Context, timeout time.Duration) func() error {
	if err := s.checkOpen(); err != nil {
		return func() error { return err }
	}

	lctx, cancel := context.WithCancel(ctx)
	settled := s.driver.ListenSettle(lctx)

	return func() error {
		defer cancel()
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-settled:
			return nil
		case <-timer.C:
			return &schemas.SubmissionTimeout{Timeout: timeout}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close releases the page and the browser and frees the process-wide slot.
// Only the first call does any work; later calls return nil.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		started := s.started
		s.closed = true
		s.mu.Unlock()

		defer live.Store(false)
		if !started {
			s.logger.Debug("Session closed before a browser was started.")
			return
		}

		closeCtx, cancel := DetachWithTimeout(ctx, closeTimeout)
		defer cancel()
		if err = s.driver.Close(closeCtx); err != nil {
			s.logger.Warn("Error while closing browser.", zap.Error(err))
			return
		}
		s.logger.Info("Browser session closed.")
	})
	return err
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
