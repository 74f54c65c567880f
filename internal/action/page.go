// internal/action/page.go
package action

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/webtraversal/api/schemas"
	"github.com/xkilldash9x/webtraversal/internal/browser/dom"
)

// DefaultPollInterval is the WaitForElement interval used when none is set.
const DefaultPollInterval = time.Second

// Annotate writes text on the drawing canvas.
type Annotate struct {
	Location   schemas.Point `wtl:"location"`
	Color      schemas.Color `wtl:"color"`
	Size       int           `wtl:"size"`
	Text       string        `wtl:"text"`
	Background schemas.Color `wtl:"background"`
	Viewport   *bool         `wtl:"viewport"`
}

func (Annotate) pageAction()      {}
func (a Annotate) String() string { return describe(a) }

func (a Annotate) Execute(ctx context.Context, h Host) error {
	return h.JS().Annotate(ctx, a.Location, a.Color, a.Size, a.Text, a.Background, viewportOr(a.Viewport, h))
}

// Clear removes every highlight and annotation.
type Clear struct {
	Viewport *bool `wtl:"viewport"`
}

func (Clear) pageAction()      {}
func (a Clear) String() string { return describe(a) }

func (a Clear) Execute(ctx context.Context, h Host) error {
	return h.JS().ClearHighlights(ctx, viewportOr(a.Viewport, h))
}

// Navigate loads URL in the current tab and waits for it to settle.
type Navigate struct {
	URL string `wtl:"url"`
}

func (Navigate) pageAction()      {}
func (a Navigate) String() string { return describe(a) }

func (a Navigate) Execute(ctx context.Context, h Host) error {
	return h.Navigate(ctx, a.URL)
}

// Revert resets the workflow and replays history up to ViewIndex. Index 0
// only repeats the initial navigation.
type Revert struct {
	ViewIndex int `wtl:"view_index"`
}

func (Revert) pageAction()      {}
func (a Revert) String() string { return describe(a) }

func (a Revert) Execute(ctx context.Context, h Host) error {
	return h.ResetTo(ctx, a.ViewIndex)
}

// Wait pauses for Duration.
type Wait struct {
	Duration time.Duration `wtl:"duration"`
}

func (Wait) pageAction()      {}
func (a Wait) String() string { return describe(a) }

func (a Wait) Execute(ctx context.Context, _ Host) error {
	if a.Duration <= 0 {
		return nil
	}
	t := time.NewTimer(a.Duration)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WaitForElement polls every Interval until Selector matches an element.
type WaitForElement struct {
	Selector dom.Selector  `wtl:"selector"`
	Interval time.Duration `wtl:"interval"`
}

func (WaitForElement) pageAction()      {}
func (a WaitForElement) String() string { return describe(a) }

func (a WaitForElement) Execute(ctx context.Context, h Host) error {
	interval := a.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	limiter.Allow()
	for {
		ok, err := h.JS().ElementExists(ctx, a.Selector)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}
}

// WaitForUser blocks until the operator confirms on the terminal.
type WaitForUser struct{}

func (WaitForUser) pageAction()      {}
func (a WaitForUser) String() string { return describe(a) }

func (a WaitForUser) Execute(ctx context.Context, h Host) error {
	return h.WaitForUser(ctx)
}

// Refresh reloads the current page. The next snapshot may assign different uids.
type Refresh struct{}

func (Refresh) pageAction()      {}
func (a Refresh) String() string { return describe(a) }

func (a Refresh) Execute(ctx context.Context, h Host) error {
	return h.Refresh(ctx)
}

// Abort stops all further work on the tab. The browser tab itself is closed
// only when actions.abort.close is set and debug.preserve_window is not.
type Abort struct{}

func (Abort) pageAction()      {}
func (a Abort) String() string { return describe(a) }

func (a Abort) Execute(ctx context.Context, h Host) error {
	cfg := h.Config()
	if cfg.Actions.Abort.Close && !cfg.Debug.PreserveWindow {
		return h.CloseCurrentTab(ctx)
	}
	return nil
}
