// internal/workflow/pipeline.go
package workflow

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webtraversal/api/schemas"
	"github.com/xkilldash9x/webtraversal/internal/action"
	"github.com/xkilldash9x/webtraversal/internal/browser"
	"github.com/xkilldash9x/webtraversal/internal/browser/scraper"
	"github.com/xkilldash9x/webtraversal/internal/classifier"
	"github.com/xkilldash9x/webtraversal/internal/snapshot"
	"github.com/xkilldash9x/webtraversal/internal/view"
)

var abortAction action.Action = action.Abort{}

// actionScreenshotPrefix names the screenshots taken before element actions.
const actionScreenshotPrefix = "action"

// newViews builds the view of every open tab for the current loop index.
// Closed tabs map to nil.
func (wf *Workflow) newViews(ctx context.Context) (Views, error) {
	views := make(Views, len(wf.tabs))
	for _, tab := range wf.tabs {
		views[tab] = nil
	}

	for _, tab := range wf.OpenTabs() {
		if err := wf.SetTab(ctx, tab); err != nil {
			return nil, err
		}

		var initial action.Action
		if url, ok := wf.currentWindow.PopPending(tab); ok {
			initial = action.Navigate{URL: url}
			if err := wf.performAction(ctx, initial); err != nil {
				return nil, err
			}
		}

		// A tab the policy left alone keeps its view unless every tab must be rescraped.
		h := wf.historyOf(tab)
		if !wf.cfg.Scraping.All && wf.prevResult != nil && !wf.prevResult.Has(tab) && h[len(h)-1].HasSnapshot() {
			v := h[len(h)-1].Detached()
			// Nothing ran on the tab, so nothing must be replayed for it.
			if wf.cfg.Scraping.History {
				v.Metadata[view.PreviousActionKey] = action.Actions(nil)
			}
			v.Metadata[view.NextActionKey] = action.Actions(nil)
			wf.store(v)
			wf.prune(tab)
			views[tab] = v
			wf.logger.Debug("Reusing the view of an untouched tab.", zap.String("tab", tab))
			continue
		}

		v, err := wf.newView(ctx, tab, initial)
		if err != nil {
			return nil, err
		}
		views[tab] = v
	}
	return views, nil
}

// newView snapshots the current tab and classifies it.
func (wf *Workflow) newView(ctx context.Context, tab string, initial action.Action) (*view.View, error) {
	snap, err := wf.Scraper().ScrapeCurrentPage(ctx)
	if err != nil {
		return nil, err
	}

	actions := action.Actions{action.Abort{}, action.Refresh{}, action.Navigate{}, action.Wait{}}
	if wf.cfg.Scraping.History {
		for i := range wf.loopIdx {
			actions = append(actions, action.Revert{ViewIndex: i})
		}
	}

	v := view.New(tab, snap, actions)
	if wf.cfg.Scraping.History {
		var next any
		recorded := false
		if prev := wf.viewAt(tab, wf.loopIdx-1); prev != nil {
			next, recorded = prev.Metadata[view.NextActionKey]
			if recorded {
				v.Metadata = maps.Clone(prev.Metadata)
			}
		}
		if recorded {
			v.Metadata[view.PreviousActionKey] = next
		} else {
			v.Metadata[view.PreviousActionKey] = initialActions(initial)
		}
	}
	v.Metadata[view.NextActionKey] = action.Actions(nil)

	wf.store(v)
	wf.prune(tab)

	classified, err := wf.runElementClassifiers(ctx, snap)
	if err != nil {
		return nil, err
	}
	v.Actions = append(v.Actions, classified...)

	for _, vc := range wf.classifiers.ActiveViewClassifiers() {
		if err := vc.Run(ctx, v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func initialActions(initial action.Action) action.Actions {
	if initial == nil {
		return action.Actions{}
	}
	return action.Actions{initial}
}

func (wf *Workflow) viewAt(tab string, i int) *view.View {
	h := wf.historyOf(tab)
	if i < 0 || i >= len(h) {
		return nil
	}
	return h[i]
}

// prune drops every view but the latest when history is disabled.
func (wf *Workflow) prune(tab string) {
	if wf.cfg.Scraping.History {
		return
	}
	h := wf.historyOf(tab)
	for i := range len(h) - 1 {
		h[i] = nil
	}
}

func (wf *Workflow) runElementClassifiers(ctx context.Context, snap *snapshot.PageSnapshot) (action.Actions, error) {
	var out action.Actions
	els := snap.Elements()
	for _, ec := range wf.classifiers.ActiveElementClassifiers() {
		classes, err := ec.Run(ctx, els, wf)
		if err != nil {
			return nil, err
		}
		for _, cls := range classes {
			if !ec.Highlight.IsZero() {
				if err := wf.highlightClass(ctx, ec, cls, snap); err != nil {
					return nil, err
				}
			}
			out = append(out, ec.Actions(cls)...)
		}
	}
	return out, nil
}

// highlightClass draws the selected members of cls on the page, with their
// score as label when debug.live_annotation is set. With debug.screenshots
// the same boxes are drawn on a copy of the full page screenshot named after
// the classifier.
func (wf *Workflow) highlightClass(ctx context.Context, ec *classifier.ElementClassifier, cls classifier.Class, snap *snapshot.PageSnapshot) error {
	var shot *snapshot.Screenshot
	if wf.cfg.Debug.Screenshots {
		s, err := snap.NewScreenshot(ec.Name, scraper.ScreenshotFull)
		if err != nil {
			wf.logger.Warn("No full page screenshot to draw classifier results on.", zap.String("classifier", ec.Name), zap.Error(err))
		} else {
			shot = s
		}
	}

	js := wf.JS()
	onViewport := wf.cfg.Debug.DefaultCanvasViewport
	for _, r := range ec.Highlighted(cls) {
		color := ec.HighlightColorFor(r.Score)
		bounds := r.Element.Bounds()
		if err := js.Highlight(ctx, r.Element.Selector(), color, false, onViewport); err != nil {
			return err
		}
		label := fmt.Sprintf("%.2f (%.2f)", r.Score, r.Raw)
		if wf.cfg.Debug.LiveAnnotation {
			at := schemas.Point{X: bounds.X() + 1, Y: bounds.Y() + bounds.Height() + 10}
			if err := js.Annotate(ctx, at, color, 10, cls.Name+": "+label, schemas.Color{}, onViewport); err != nil {
				return err
			}
		}
		if shot != nil {
			shot.Highlight(bounds, color, label)
		}
	}
	return nil
}

// executePolicyResult runs the actions of every open tab in order. A Revert
// anywhere in the result preempts everything else; the earliest one wins.
func (wf *Workflow) executePolicyResult(ctx context.Context, result PolicyResult) error {
	var revert *action.Revert
	for _, actions := range result {
		for _, a := range actions {
			if r, ok := a.(action.Revert); ok && (revert == nil || r.ViewIndex < revert.ViewIndex) {
				revert = &r
			}
		}
	}
	if revert != nil {
		return wf.performAction(ctx, *revert)
	}

	for _, tab := range wf.OpenTabs() {
		actions, ok := result[tab]
		if !ok {
			wf.logger.Info("No action given for tab.", zap.String("tab", tab))
			continue
		}
		actions = append(action.Actions(nil), actions...)
		if len(actions) > 0 {
			if err := wf.SetTab(ctx, tab); err != nil {
				return err
			}
		}

		for i, a := range actions {
			if err := sleep(ctx, wf.cfg.Scraping.WaitAction); err != nil {
				return err
			}
			if ea, ok := a.(action.ElementAction); ok {
				target := ea.ActionTarget()
				if !target.Resolved() && target.Selector().IFrame == "" {
					resolved, err := wf.resolve(ea)
					if err != nil {
						return err
					}
					a = resolved
					actions[i] = a
				}
			}
			if err := wf.performAction(ctx, a); err != nil {
				return err
			}
		}

		if latest := wf.latestViewOf(tab); latest != nil {
			latest.Metadata[view.NextActionKey] = actions
		}
	}
	return nil
}

// resolve binds a selector target to an element of the latest snapshot.
func (wf *Workflow) resolve(ea action.ElementAction) (action.ElementAction, error) {
	latest := wf.LatestView()
	if !latest.HasSnapshot() {
		return nil, fmt.Errorf("cannot resolve %s without a snapshot of tab '%s': %w", ea, wf.currentTab, browser.ErrElementNotFound)
	}
	return action.Resolve(ea, latest.Snapshot.Elements())
}

// performAction executes a on the current tab. Element actions on a scraped
// element may be scrolled to, captured, highlighted or monkeypatched first.
// Actions reporting action.ErrNotSupported are logged and skipped.
func (wf *Workflow) performAction(ctx context.Context, a action.Action) error {
	if a == nil {
		wf.logger.Warn("Nil given as action.")
		return nil
	}
	wf.logger.Debug("Next action.", zap.Stringer("action", a), zap.String("tab", wf.currentTab))

	if ea, ok := a.(action.ElementAction); ok {
		patched, err := wf.prepareElementAction(ctx, ea)
		if err != nil {
			return err
		}
		a = patched
	}

	err := a.Execute(ctx, &host{wf: wf})
	if errors.Is(err, action.ErrNotSupported) {
		wf.logger.Error("Action could not be executed.", zap.Stringer("action", a), zap.Error(err))
		err = nil
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", a, err)
	}

	if _, ok := a.(action.Abort); ok && wf.currentWindow != nil {
		wf.currentWindow.MarkClosed(wf.currentTab)
	}
	return nil
}

func (wf *Workflow) prepareElementAction(ctx context.Context, ea action.ElementAction) (action.Action, error) {
	target := ea.ActionTarget()
	el := target.Element
	dbg := wf.cfg.Debug

	if dbg.Autoscroll && el != nil && (dbg.Screenshots || !wf.cfg.Browser.Headless) {
		if err := wf.SmartScrollTo(ctx, el.Bounds()); err != nil {
			return nil, err
		}
	}

	if dbg.Save && dbg.Screenshots && el != nil {
		if err := wf.captureAction(ctx, ea); err != nil {
			return nil, err
		}
	}

	if dbg.Live {
		if err := wf.JS().Highlight(ctx, target.Selector(), dbg.HighlightColor(), false, dbg.DefaultCanvasViewport); err != nil {
			return nil, err
		}
		if !wf.cfg.Browser.Headless {
			if err := sleep(ctx, dbg.LiveDelay); err != nil {
				return nil, err
			}
		}
	}

	if el != nil {
		if dest := wf.patches.Check(el.Page(), el); dest != "" {
			patched := action.Navigate{URL: dest}
			wf.logger.Info("Action monkeypatched.", zap.Stringer("action", ea), zap.Stringer("replacement", patched))
			return patched, nil
		}
	}
	return ea, nil
}

// captureAction stores a viewport screenshot with the action's target
// outlined in the latest snapshot, as action1, action2 and so on.
func (wf *Workflow) captureAction(ctx context.Context, ea action.ElementAction) error {
	latest := wf.LatestView()
	if !latest.HasSnapshot() {
		return nil
	}
	n := 1
	for _, name := range latest.Snapshot.ScreenshotNames() {
		if strings.HasPrefix(name, actionScreenshotPrefix) {
			n++
		}
	}
	shot, err := wf.Scraper().Screenshot(ctx, actionScreenshotPrefix+strconv.Itoa(n))
	if err != nil {
		return err
	}
	vp, err := wf.JS().FindViewport(ctx)
	if err != nil {
		return err
	}
	bounds := ea.ActionTarget().Element.Bounds().Sub(vp.Min)
	shot.Highlight(bounds, schemas.RGB(255, 0, 0), "Action: "+actionName(ea))
	latest.Snapshot.AddScreenshot(shot)
	return nil
}

func actionName(a action.Action) string {
	name, _, _ := strings.Cut(a.String(), "(")
	return name
}

// SmartScrollTo scrolls as little as possible to bring bounds into view,
// centering it vertically when scrolling down.
func (wf *Workflow) SmartScrollTo(ctx context.Context, bounds schemas.Rectangle) error {
	js := wf.JS()
	vp, err := js.FindViewport(ctx)
	if err != nil {
		return err
	}

	var y float64
	switch {
	case vp.Contains(bounds):
		return nil
	case bounds.Height() > vp.Height(), bounds.Y() < vp.Y():
		y = bounds.Y()
	case bounds.Y()+bounds.Height() > vp.Y()+vp.Height():
		y = bounds.Y() + bounds.Height()/2 - vp.Height()/2
	default:
		return nil
	}

	if err := js.ScrollTo(ctx, vp.X(), y); err != nil {
		return err
	}
	return sleep(ctx, wf.cfg.Scraping.WaitScroll)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
