// internal/workflow/host.go
package workflow

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webtraversal/api/schemas"
	"github.com/xkilldash9x/webtraversal/internal/action"
	"github.com/xkilldash9x/webtraversal/internal/browser"
	"github.com/xkilldash9x/webtraversal/internal/config"
)

// host exposes the current tab of a Workflow to executing actions.
type host struct {
	wf *Workflow
}

var _ action.Host = (*host)(nil)

func (h *host) JS() action.JS           { return h.wf.JS() }
func (h *host) Config() *config.Config { return h.wf.cfg }

func (h *host) EnterFrame(ctx context.Context, iframe string) (func(), error) {
	return h.wf.EnterFrame(ctx, iframe)
}

func (h *host) SmartScrollTo(ctx context.Context, bounds schemas.Rectangle) error {
	return h.wf.SmartScrollTo(ctx, bounds)
}

func (h *host) Navigate(ctx context.Context, url string) error {
	return h.wf.Scraper().Navigate(ctx, url)
}

func (h *host) Refresh(ctx context.Context) error {
	return h.wf.Scraper().Refresh(ctx)
}

func (h *host) ResetTo(ctx context.Context, viewIndex int) error {
	return h.wf.resetTo(ctx, viewIndex)
}

func (h *host) CloseCurrentTab(ctx context.Context) error {
	return h.wf.currentWindow.CloseTab(ctx, h.wf.currentTab)
}

func (h *host) WaitForUser(ctx context.Context) error {
	return h.wf.WaitForUser(ctx)
}

// EnterFrame directs script execution into the iframe found by identifier,
// a frame name, id or class, until the returned exit is called. An empty
// identifier stays in the top document.
func (wf *Workflow) EnterFrame(ctx context.Context, identifier string) (exit func(), err error) {
	if identifier == "" {
		return func() {}, nil
	}
	name, err := wf.JS().FindIFrameName(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("found no iframe with identifier '%s': %w", identifier, browser.ErrElementNotFound)
	}
	driver, err := wf.currentWindow.Driver()
	if err != nil {
		return nil, err
	}

	wf.logger.Debug("Entering iframe.", zap.String("frame", name))
	if err := driver.SwitchToFrame(ctx, name); err != nil {
		return nil, err
	}
	return func() {
		wf.logger.Debug("Exiting iframe.", zap.String("frame", name))
		if err := driver.SwitchToDefault(context.WithoutCancel(ctx)); err != nil {
			wf.logger.Warn("Failed to leave iframe.", zap.String("frame", name), zap.Error(err))
		}
	}, nil
}

// WaitForUser blocks until a line is read from the workflow's input. The end
// of the input counts as a line.
func (wf *Workflow) WaitForUser(ctx context.Context) error {
	wf.logger.Info("Waiting for user, press enter to continue.")
	lines := wf.input.start()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case _, ok := <-lines:
		if ok {
			return nil
		}
		if err := wf.input.err; !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read user input: %w", err)
		}
		return nil
	}
}

// lineReader reads the input on a single goroutine, so a wait abandoned by
// its context leaves the next line to the next wait. The goroutine starts
// with the first wait and ends at the end of the input or on stop.
type lineReader struct {
	r     *bufio.Reader
	lines chan struct{}
	quit  chan struct{}
	err   error

	startOnce sync.Once
	stopOnce  sync.Once
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{
		r:     bufio.NewReader(r),
		lines: make(chan struct{}),
		quit:  make(chan struct{}),
	}
}

// start returns the channel receiving one value per line. It is closed once
// the input fails, after err is set.
func (l *lineReader) start() <-chan struct{} {
	l.startOnce.Do(func() { go l.run() })
	return l.lines
}

func (l *lineReader) run() {
	for {
		if _, err := l.r.ReadString('\n'); err != nil {
			l.err = err
			close(l.lines)
			return
		}
		select {
		case l.lines <- struct{}{}:
		case <-l.quit:
			return
		}
	}
}

// stop releases a reader parked on delivering a line. A read blocked on the
// input itself ends only with the input.
func (l *lineReader) stop() {
	l.stopOnce.Do(func() { close(l.quit) })
}
