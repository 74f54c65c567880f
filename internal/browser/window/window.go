// internal/browser/window/window.go
package window

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webtraversal/internal/browser"
	"github.com/xkilldash9x/webtraversal/internal/browser/jsexec"
	"github.com/xkilldash9x/webtraversal/internal/browser/scraper"
	"github.com/xkilldash9x/webtraversal/internal/config"
)

// Window is one browser instance holding any number of named tabs. Tabs are
// created, never forgotten: closing a tab only marks it closed, and a closed
// tab never reopens. Once quit, every driver dependent call fails with
// browser.ErrWindowClosed.
type Window struct {
	name    string
	driver  browser.Driver
	js      *jsexec.Wrapper
	scraper *scraper.Scraper
	logger  *zap.Logger

	mu      sync.Mutex
	handles map[string]string
	order   []string
	closed  map[string]struct{}
	pending map[string]string
	current string
	quit    bool
}

// New wraps driver, whose current tab becomes the window's first tab.
func New(name string, driver browser.Driver, cfg *config.Config, logger *zap.Logger, version string) *Window {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("window").With(zap.String("window", name))
	js := jsexec.New(driver, cfg, log)
	return &Window{
		name:    name,
		driver:  driver,
		js:      js,
		scraper: scraper.New(driver, js, cfg, log, version),
		logger:  log,
		handles: map[string]string{},
		closed:  map[string]struct{}{},
		pending: map[string]string{},
	}
}

func (w *Window) Name() string { return w.name }

// JS returns the script wrapper bound to this window's driver.
func (w *Window) JS() *jsexec.Wrapper { return w.js }

// Scraper returns the scraper bound to this window's driver.
func (w *Window) Scraper() *scraper.Scraper { return w.scraper }

// Driver returns the underlying driver, or browser.ErrWindowClosed after Quit.
func (w *Window) Driver() (browser.Driver, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	return w.driver, nil
}

func (w *Window) checkOpen() error {
	if w.quit {
		return fmt.Errorf("%w: window '%s' has quit", browser.ErrWindowClosed, w.name)
	}
	return nil
}

// CreateTab binds a new tab to name. The first tab reuses the browser's
// initial tab; later ones open a new browser tab and claim the handle no
// other tab owns. A non-empty url is loaded on the next PopPending.
func (w *Window) CreateTab(ctx context.Context, name, url string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpen(); err != nil {
		return err
	}
	if _, exists := w.handles[name]; exists {
		return fmt.Errorf("tab '%s' already exists in window '%s'", name, w.name)
	}

	var handle string
	if len(w.order) == 0 {
		handle = w.driver.CurrentHandle()
	} else {
		if err := w.driver.OpenTab(ctx); err != nil {
			return fmt.Errorf("failed to open tab '%s': %w", name, err)
		}
		all, err := w.driver.Handles(ctx)
		if err != nil {
			return fmt.Errorf("failed to list tabs: %w", err)
		}
		claimed := make(map[string]struct{}, len(w.handles))
		for _, h := range w.handles {
			claimed[h] = struct{}{}
		}
		for _, h := range all {
			if _, ok := claimed[h]; !ok {
				handle = h
				break
			}
		}
		if handle == "" {
			return fmt.Errorf("no unclaimed handle after opening tab '%s'", name)
		}
	}

	w.handles[name] = handle
	w.order = append(w.order, name)
	if url != "" {
		w.pending[name] = url
	}
	if w.current == "" {
		w.current = name
	}
	w.logger.Debug("Created tab.", zap.String("tab", name), zap.String("handle", handle))
	return nil
}

// SetTab makes name the tab that page commands apply to.
func (w *Window) SetTab(ctx context.Context, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpen(); err != nil {
		return err
	}
	handle, ok := w.handles[name]
	if !ok {
		return fmt.Errorf("no tab named '%s' in window '%s'", name, w.name)
	}
	if _, closed := w.closed[name]; closed {
		w.logger.Warn("Switching to a closed tab.", zap.String("tab", name))
	}
	if err := w.driver.SwitchTo(ctx, handle); err != nil {
		return fmt.Errorf("failed to switch to tab '%s': %w", name, err)
	}
	w.current = name
	return nil
}

// CurrentTab returns the name of the focused tab.
func (w *Window) CurrentTab() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Tabs lists every tab in creation order, closed ones included.
func (w *Window) Tabs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.order)
}

// OpenTabs lists the tabs not yet closed, in creation order.
func (w *Window) OpenTabs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.quit {
		return nil
	}
	open := make([]string, 0, len(w.order))
	for _, name := range w.order {
		if _, closed := w.closed[name]; !closed {
			open = append(open, name)
		}
	}
	return open
}

// IsClosed reports whether the tab was closed or the window has quit.
func (w *Window) IsClosed(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, closed := w.closed[name]
	return closed || w.quit
}

// MarkClosed records name as closed without touching the browser tab.
func (w *Window) MarkClosed(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed[name] = struct{}{}
	delete(w.pending, name)
}

// CloseTab marks name closed and closes its browser tab. Failing to close
// the browser tab is logged, not returned.
func (w *Window) CloseTab(ctx context.Context, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpen(); err != nil {
		return err
	}
	handle, ok := w.handles[name]
	if !ok {
		return fmt.Errorf("no tab named '%s' in window '%s'", name, w.name)
	}
	w.closed[name] = struct{}{}
	delete(w.pending, name)

	if err := w.driver.SwitchTo(ctx, handle); err != nil {
		w.logger.Debug("Tab already gone.", zap.String("tab", name), zap.Error(err))
		return nil
	}
	if err := w.driver.CloseCurrent(ctx); err != nil {
		w.logger.Warn("Failed to close browser tab.", zap.String("tab", name), zap.Error(err))
	}
	if w.current == name {
		w.current = ""
	}
	return nil
}

// SetPending schedules a navigation for name, performed by the workflow
// before the tab's next snapshot.
func (w *Window) SetPending(name, url string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[name] = url
}

// PopPending returns and clears the scheduled navigation for name.
func (w *Window) PopPending(name string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	url, ok := w.pending[name]
	delete(w.pending, name)
	return url, ok
}

// Cookies returns the cookies visible to the current tab.
func (w *Window) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	d, err := w.Driver()
	if err != nil {
		return nil, err
	}
	return d.Cookies(ctx)
}

// SetCookies replaces the cookies of the current tab's browsing context.
func (w *Window) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	d, err := w.Driver()
	if err != nil {
		return err
	}
	return d.SetCookies(ctx, cookies)
}

// Quit releases the browser. It is safe to call more than once.
func (w *Window) Quit(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.quit {
		return nil
	}
	w.quit = true
	w.logger.Info("Quitting window.")
	if err := w.driver.Quit(ctx); err != nil {
		return fmt.Errorf("failed to quit window '%s': %w", w.name, err)
	}
	return nil
}

// HasQuit reports whether Quit has been called.
func (w *Window) HasQuit() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.quit
}
