// internal/action/action.go
package action

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/xkilldash9x/webtraversal/api/schemas"
	"github.com/xkilldash9x/webtraversal/internal/browser"
	"github.com/xkilldash9x/webtraversal/internal/browser/dom"
	"github.com/xkilldash9x/webtraversal/internal/config"
	"github.com/xkilldash9x/webtraversal/internal/snapshot"
)

var (
	// ErrNotSupported is returned by actions that cannot run in the current
	// state. The execution pipeline logs and skips them.
	ErrNotSupported = errors.New("action not supported")
	// ErrAmbiguousField is returned when a positional value cannot be mapped
	// to exactly one field of an action.
	ErrAmbiguousField = errors.New("ambiguous action field, name the field explicitly")
	// ErrUnknownField is returned by WithField for a name the action does not declare.
	ErrUnknownField = errors.New("unknown action field")
)

// JS is the set of browser side primitives that actions call. All of them
// are best effort: page exceptions are logged by the implementation and only
// transport level faults are returned.
type JS interface {
	ClickElement(ctx context.Context, sel dom.Selector) error
	FillText(ctx context.Context, sel dom.Selector, text string) error
	Select(ctx context.Context, sel dom.Selector, value string) error
	DeleteElement(ctx context.Context, sel dom.Selector) error
	ElementExists(ctx context.Context, sel dom.Selector) (bool, error)
	Highlight(ctx context.Context, sel dom.Selector, color schemas.Color, fill, viewport bool) error
	Annotate(ctx context.Context, at schemas.Point, color schemas.Color, size int, text string, background schemas.Color, viewport bool) error
	ClearHighlights(ctx context.Context, viewport bool) error
}

// Host is the live environment an action executes against, normally the
// Workflow with its current tab selected.
type Host interface {
	JS() JS
	Config() *config.Config
	// EnterFrame scopes script execution to the named iframe until exit is
	// called. An empty name is a no-op.
	EnterFrame(ctx context.Context, iframe string) (exit func(), err error)
	SmartScrollTo(ctx context.Context, bounds schemas.Rectangle) error
	Navigate(ctx context.Context, url string) error
	Refresh(ctx context.Context) error
	ResetTo(ctx context.Context, viewIndex int) error
	CloseCurrentTab(ctx context.Context) error
	WaitForUser(ctx context.Context) error
}

// Action is a possible interaction with a tab. Actions are values: the
// With* helpers return modified copies.
type Action interface {
	Execute(ctx context.Context, h Host) error
	String() string
}

// ElementAction is an action aimed at a single element.
type ElementAction interface {
	Action
	ActionTarget() Target
}

// PageAction is an action aimed at the page as a whole.
type PageAction interface {
	Action
	pageAction()
}

// Target identifies the element an ElementAction operates on. Either Element
// or Sel may be empty, but not both.
type Target struct {
	Element *snapshot.PageElement
	Sel     dom.Selector
}

// On targets a scraped element.
func On(el *snapshot.PageElement) Target {
	return Target{Element: el, Sel: el.Selector()}
}

// At targets whatever sel matches in the latest snapshot.
func At(sel dom.Selector) Target { return Target{Sel: sel} }

// AtCSS is At(dom.ByCSS(css)).
func AtCSS(css string) Target { return At(dom.ByCSS(css)) }

// Selector returns the selector the action is executed with.
func (t Target) Selector() dom.Selector {
	if t.Sel.IsZero() && t.Element != nil {
		return t.Element.Selector()
	}
	return t.Sel
}

// Resolved reports whether the target points to a scraped element.
func (t Target) Resolved() bool { return t.Element != nil }

func (t Target) String() string {
	return t.Selector().CSS
}

// WithTarget returns a copy of a with its target replaced.
func WithTarget[A ElementAction](a A, t Target) A {
	out, err := WithField(a, "target", t)
	if err != nil {
		panic(err) // every ElementAction declares a target field
	}
	return out.(A)
}

// Bind returns a copy of a targeting el.
func Bind(a ElementAction, el *snapshot.PageElement) ElementAction {
	return WithTarget(a, On(el))
}

// Resolve binds the selector target of a to the first matching element of
// els. The selector itself is kept so the action executes exactly as requested.
func Resolve(a ElementAction, els snapshot.Elements) (ElementAction, error) {
	sel := a.ActionTarget().Selector()
	matches := els.BySelector(sel)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%s: selector %q matches no elements: %w", typeName(a), sel.CSS, browser.ErrElementNotFound)
	}
	return WithTarget(a, Target{Element: matches[0], Sel: sel}), nil
}

// WithField returns a copy of a with the field tagged name set to value.
func WithField(a Action, name string, value any) (Action, error) {
	t := reflect.TypeOf(a)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%T is not an action value: %w", a, ErrUnknownField)
	}
	v := reflect.New(t).Elem()
	v.Set(reflect.ValueOf(a))
	for _, f := range reflect.VisibleFields(v.Type()) {
		if f.Tag.Get("wtl") != name {
			continue
		}
		if err := assign(v.FieldByIndex(f.Index), value); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", typeName(a), name, err)
		}
		return v.Interface().(Action), nil
	}
	return nil, fmt.Errorf("%s has no field %q: %w", typeName(a), name, ErrUnknownField)
}

// Apply sets the only field of a other than its target. It fails with
// ErrAmbiguousField when a declares more or fewer than one such field.
func Apply(a Action, value any) (Action, error) {
	fields := Fields(a)
	if len(fields) != 1 {
		return nil, fmt.Errorf("%s has %d settable fields: %w", typeName(a), len(fields), ErrAmbiguousField)
	}
	return WithField(a, fields[0], value)
}

// Fields lists the settable field names of a, excluding its target.
func Fields(a Action) []string {
	t := reflect.TypeOf(a)
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	var out []string
	for _, f := range reflect.VisibleFields(t) {
		if name := f.Tag.Get("wtl"); name != "" && name != "target" {
			out = append(out, name)
		}
	}
	return out
}

func assign(field reflect.Value, value any) error {
	if value == nil {
		field.SetZero()
		return nil
	}
	v := reflect.ValueOf(value)
	switch {
	case v.Type().AssignableTo(field.Type()):
		field.Set(v)
	case field.Kind() == reflect.Pointer && v.Type().AssignableTo(field.Type().Elem()):
		p := reflect.New(field.Type().Elem())
		p.Elem().Set(v)
		field.Set(p)
	case isNumeric(v.Kind()) && isNumeric(field.Kind()):
		field.Set(v.Convert(field.Type()))
	default:
		return fmt.Errorf("cannot use %T as %s", value, field.Type())
	}
	return nil
}

func isNumeric(k reflect.Kind) bool {
	return (k >= reflect.Int && k <= reflect.Uint64) || k == reflect.Float32 || k == reflect.Float64
}

func typeName(a Action) string { return reflect.TypeOf(a).Name() }

// describe renders a as Name(field=value, ...) from its tagged fields.
func describe(a Action) string {
	v := reflect.ValueOf(a)
	var parts []string
	for _, f := range reflect.VisibleFields(v.Type()) {
		name := f.Tag.Get("wtl")
		if name == "" {
			continue
		}
		fv := v.FieldByIndex(f.Index)
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		}
		switch x := fv.Interface().(type) {
		case string:
			parts = append(parts, fmt.Sprintf("%s=%q", name, x))
		case Target:
			parts = append(parts, fmt.Sprintf("%s=%q", name, x.String()))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", name, x))
		}
	}
	return typeName(a) + "(" + strings.Join(parts, ", ") + ")"
}
