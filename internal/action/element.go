// internal/action/element.go
package action

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/webtraversal/api/schemas"
	"github.com/xkilldash9x/webtraversal/internal/browser/dom"
)

// DefaultHighlightColor is used by Highlight when no color is given.
var DefaultHighlightColor = schemas.MustParseColor("#FFB3C7")

// inFrame runs fn with script execution scoped to the iframe of sel.
func inFrame(ctx context.Context, h Host, sel dom.Selector, fn func() error) error {
	exit, err := h.EnterFrame(ctx, sel.IFrame)
	if err != nil {
		return err
	}
	defer exit()
	return fn()
}

// Click simulates a click on the target. Non clickable targets are left alone.
type Click struct {
	Target Target `wtl:"target"`
}

func (a Click) ActionTarget() Target { return a.Target }
func (a Click) String() string       { return describe(a) }

func (a Click) Execute(ctx context.Context, h Host) error {
	sel := a.Target.Selector()
	return inFrame(ctx, h, sel, func() error { return h.JS().ClickElement(ctx, sel) })
}

// FillText sets the value of a text input.
type FillText struct {
	Target Target `wtl:"target"`
	Text   string `wtl:"text"`
}

func (a FillText) ActionTarget() Target { return a.Target }
func (a FillText) String() string       { return describe(a) }

func (a FillText) Execute(ctx context.Context, h Host) error {
	sel := a.Target.Selector()
	return inFrame(ctx, h, sel, func() error { return h.JS().FillText(ctx, sel, a.Text) })
}

// Select picks an option of a <select> element by value.
type Select struct {
	Target Target `wtl:"target"`
	Value  string `wtl:"value"`
}

func (a Select) ActionTarget() Target { return a.Target }
func (a Select) String() string       { return describe(a) }

func (a Select) Execute(ctx context.Context, h Host) error {
	sel := a.Target.Selector()
	return inFrame(ctx, h, sel, func() error { return h.JS().Select(ctx, sel, a.Value) })
}

// ScrollTo scrolls the page so the target is visible, centering it vertically when possible.
type ScrollTo struct {
	Target Target `wtl:"target"`
}

func (a ScrollTo) ActionTarget() Target { return a.Target }
func (a ScrollTo) String() string       { return describe(a) }

func (a ScrollTo) Execute(ctx context.Context, h Host) error {
	if !a.Target.Resolved() {
		return fmt.Errorf("scrolling to unresolved target %s: %w", a.Target, ErrNotSupported)
	}
	return h.SmartScrollTo(ctx, a.Target.Element.Bounds())
}

// Highlight outlines (or fills) the target on the drawing canvas. A nil
// Viewport falls back on debug.default_canvas_viewport.
type Highlight struct {
	Target   Target        `wtl:"target"`
	Color    schemas.Color `wtl:"color"`
	Fill     bool          `wtl:"fill"`
	Viewport *bool         `wtl:"viewport"`
}

func (a Highlight) ActionTarget() Target { return a.Target }
func (a Highlight) String() string       { return describe(a) }

func (a Highlight) Execute(ctx context.Context, h Host) error {
	c := a.Color
	if c == (schemas.Color{}) {
		c = DefaultHighlightColor
	}
	return h.JS().Highlight(ctx, a.Target.Selector(), c, a.Fill, viewportOr(a.Viewport, h))
}

// Remove deletes the target from the DOM.
type Remove struct {
	Target Target `wtl:"target"`
}

func (a Remove) ActionTarget() Target { return a.Target }
func (a Remove) String() string       { return describe(a) }

func (a Remove) Execute(ctx context.Context, h Host) error {
	return h.JS().DeleteElement(ctx, a.Target.Selector())
}

func viewportOr(v *bool, h Host) bool {
	if v != nil {
		return *v
	}
	return h.Config().Debug.DefaultCanvasViewport
}
