// internal/browser/jsexec/wrapper.go
package jsexec

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webtraversal/api/schemas"
	"github.com/xkilldash9x/webtraversal/internal/browser"
	"github.com/xkilldash9x/webtraversal/internal/browser/dom"
	"github.com/xkilldash9x/webtraversal/internal/config"
	"github.com/xkilldash9x/webtraversal/internal/observability"
)

// PageSize is the full document size in CSS pixels and the device pixel ratio.
type PageSize struct {
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	PixelRatio float64 `json:"pixel_ratio"`
}

type viewport struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Wrapper runs the bundled scripts against a Driver's current tab. Page
// scripts misbehave routinely, so most helpers are best effort: JavaScript
// exceptions and unexpected dialogs are logged and the zero result is
// returned without error. Everything the browser printed to its console
// while a script ran is forwarded to the logger at the level configured for
// its severity.
type Wrapper struct {
	driver browser.Driver
	cfg    *config.Config
	logger *zap.Logger
}

// New creates a Wrapper bound to driver.
func New(driver browser.Driver, cfg *config.Config, logger *zap.Logger) *Wrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Wrapper{driver: driver, cfg: cfg, logger: logger.Named("jsexec")}
}

// Run executes s and decodes its result into out. All errors are returned.
func (w *Wrapper) Run(ctx context.Context, s browser.Script, out any, args ...any) error {
	err := w.driver.Execute(ctx, s, args, out)
	w.FlushConsole()
	return err
}

// Execute is Run with JavaScript exceptions and unexpected alerts logged and
// suppressed.
func (w *Wrapper) Execute(ctx context.Context, s browser.Script, out any, args ...any) error {
	err := w.Run(ctx, s, out, args...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, browser.ErrUnexpectedAlert):
		w.logger.Error("Script interrupted by an open dialog.", zap.String("script", s.Name), zap.Error(err))
		return nil
	case errors.Is(err, browser.ErrJavascript):
		w.logger.Error("Exception thrown in the browser's JavaScript engine.", zap.String("script", s.Name))
		w.logger.Debug("JavaScript exception details.", zap.String("script", s.Name), zap.Error(err))
		return nil
	}
	return err
}

// ExecuteSource runs an ad hoc snippet with the same best effort semantics as Execute.
func (w *Wrapper) ExecuteSource(ctx context.Context, source string, out any, args ...any) error {
	return w.Execute(ctx, browser.Script{Source: source}, out, args...)
}

// FlushConsole drains the driver's captured console output into the log.
func (w *Wrapper) FlushConsole() {
	for _, msg := range w.driver.ConsoleMessages() {
		observability.LogAt(w.logger, w.levelFor(msg.Severity), msg.Text, zap.String("source", "browser"), zap.String("severity", msg.Severity))
	}
}

func (w *Wrapper) levelFor(severity string) string {
	if w.cfg == nil {
		return "debug"
	}
	switch severity {
	case browser.ConsoleSevere:
		return w.cfg.JavaScript.Severe
	case browser.ConsoleWarning:
		return w.cfg.JavaScript.Warning
	default:
		return w.cfg.JavaScript.Info
	}
}

// ElementMetadata tags every element with a wtl-uid and returns its metadata.
// Unlike most helpers, failures are returned so a scrape can be retried.
func (w *Wrapper) ElementMetadata(ctx context.Context) ([]map[string]any, error) {
	var out []map[string]any
	if err := w.Run(ctx, mustBundled(ScriptElementMetadata), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FindActiveElements returns the uids of elements that look interactive.
func (w *Wrapper) FindActiveElements(ctx context.Context) ([]int, error) {
	var out []int
	err := w.Execute(ctx, mustBundled(ScriptFindActiveElements), &out)
	return out, err
}

// IsPageLoaded reports whether the document and any jQuery activity have settled.
func (w *Wrapper) IsPageLoaded(ctx context.Context) (bool, error) {
	var out bool
	err := w.Execute(ctx, mustBundled(ScriptIsPageLoaded), &out)
	return out, err
}

// FindViewport returns the visible area in page coordinates.
func (w *Wrapper) FindViewport(ctx context.Context) (schemas.Rectangle, error) {
	var v viewport
	if err := w.Execute(ctx, mustBundled(ScriptFindViewport), &v); err != nil {
		return schemas.Rectangle{}, err
	}
	return schemas.Rect(v.X, v.Y, v.W, v.H), nil
}

// PageSize returns the document size and device pixel ratio.
func (w *Wrapper) PageSize(ctx context.Context) (PageSize, error) {
	var out PageSize
	if err := w.Execute(ctx, mustBundled(ScriptPageSize), &out); err != nil {
		return PageSize{}, err
	}
	if out.PixelRatio <= 0 {
		out.PixelRatio = 1
	}
	return out, nil
}

// FindIFrameName resolves an iframe name, id or class to the frame's name.
// An empty result means no iframe matched.
func (w *Wrapper) FindIFrameName(ctx context.Context, identifier string) (string, error) {
	var out string
	err := w.Execute(ctx, mustBundled(ScriptFindIFrameName), &out, identifier)
	return out, err
}

// DisableAnimations turns off CSS and jQuery animations on the current page.
func (w *Wrapper) DisableAnimations(ctx context.Context) error {
	return w.Execute(ctx, mustBundled(ScriptDisableAnimations), nil)
}

// ScrollTo scrolls the window so (x, y) is at the top left of the viewport.
func (w *Wrapper) ScrollTo(ctx context.Context, x, y float64) error {
	return w.Execute(ctx, mustBundled(ScriptScrollTo), nil, x, y)
}

// MakeCanvas installs the drawing canvases if they are missing.
func (w *Wrapper) MakeCanvas(ctx context.Context) error {
	return w.Execute(ctx, mustBundled(ScriptMakeCanvas), nil)
}

// ClickElement clicks the first element matching sel.
func (w *Wrapper) ClickElement(ctx context.Context, sel dom.Selector) error {
	return w.Execute(ctx, mustBundled(ScriptClickElement), nil, sel.CSS)
}

// FillText types text into the first element matching sel.
func (w *Wrapper) FillText(ctx context.Context, sel dom.Selector, text string) error {
	return w.Execute(ctx, mustBundled(ScriptFillText), nil, sel.CSS, text)
}

// Select picks the option with the given value in a <select>.
func (w *Wrapper) Select(ctx context.Context, sel dom.Selector, value string) error {
	return w.Execute(ctx, mustBundled(ScriptSelect), nil, sel.CSS, value)
}

// DeleteElement removes the first element matching sel from the DOM.
func (w *Wrapper) DeleteElement(ctx context.Context, sel dom.Selector) error {
	return w.Execute(ctx, mustBundled(ScriptDeleteElement), nil, sel.CSS)
}

// ElementExists reports whether sel matches anything. Invalid selectors count
// as not existing.
func (w *Wrapper) ElementExists(ctx context.Context, sel dom.Selector) (bool, error) {
	var out bool
	err := w.Execute(ctx, mustBundled(ScriptElementExists), &out, sel.CSS)
	return out, err
}

// Highlight draws a box around sel on the page canvas, or the viewport canvas.
// The color's alpha sets the intensity.
func (w *Wrapper) Highlight(ctx context.Context, sel dom.Selector, color schemas.Color, fill, onViewport bool) error {
	if err := w.MakeCanvas(ctx); err != nil {
		return err
	}
	return w.Execute(ctx, mustBundled(ScriptHighlight), nil,
		sel.CSS, color.Hex(false), float64(color.A)/255, fill, onViewport)
}

// Annotate writes text at a point on the page canvas, or the viewport canvas.
func (w *Wrapper) Annotate(ctx context.Context, at schemas.Point, color schemas.Color, size int, text string, background schemas.Color, onViewport bool) error {
	if err := w.MakeCanvas(ctx); err != nil {
		return err
	}
	return w.Execute(ctx, mustBundled(ScriptAnnotate), nil,
		at.X, at.Y, color.Hex(false), size, text, background.Hex(false), float64(background.A)/255, onViewport)
}

// ClearHighlights wipes the page canvas, or the viewport canvas.
func (w *Wrapper) ClearHighlights(ctx context.Context, onViewport bool) error {
	return w.Execute(ctx, mustBundled(ScriptClearHighlights), nil, onViewport)
}
