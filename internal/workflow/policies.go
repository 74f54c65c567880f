// internal/workflow/policies.go
package workflow

import (
	"context"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"

	"github.com/xkilldash9x/webtraversal/internal/action"
	"github.com/xkilldash9x/webtraversal/internal/view"
)

// AnyTab keys a PolicyResult entry meant for the only tab of a single tab
// workflow.
const AnyTab = ""

// Views holds the latest view of every tab, keyed by tab name. Tabs that
// were closed before the iteration map to nil.
type Views map[string]*view.View

// Names returns the tab names in lexical order.
func (v Views) Names() []string { return slices.Sorted(maps.Keys(v)) }

// PolicyResult maps tab names to the actions to run on them, in order. A tab
// missing from the result is left alone and, unless scraping.all is set,
// reuses its view on the next iteration.
type PolicyResult map[string]action.Actions

// Single runs actions on the only tab.
func Single(actions ...action.Action) PolicyResult {
	return PolicyResult{AnyTab: actions}
}

// ByView runs actions on the tab v was taken from.
func ByView(v *view.View, actions ...action.Action) PolicyResult {
	return PolicyResult{v.Name: actions}
}

// Set adds actions for tab and returns r for chaining.
func (r PolicyResult) Set(tab string, actions ...action.Action) PolicyResult {
	r[tab] = append(r[tab], actions...)
	return r
}

// Has reports whether the result names tab.
func (r PolicyResult) Has(tab string) bool {
	_, ok := r[tab]
	return ok
}

// Policy chooses the next actions given the latest views.
type Policy interface {
	Decide(ctx context.Context, wf *Workflow, views Views) (PolicyResult, error)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, wf *Workflow, views Views) (PolicyResult, error)

func (f PolicyFunc) Decide(ctx context.Context, wf *Workflow, views Views) (PolicyResult, error) {
	return f(ctx, wf, views)
}

// Coroutine is a policy that carries state between iterations. Resume is
// called once per iteration with the new views and returns
// ErrPolicyExhausted when it has nothing left to do.
type Coroutine interface {
	Resume(ctx context.Context, wf *Workflow, views Views) (PolicyResult, error)
}

// FromCoroutine drives c as a Policy.
func FromCoroutine(c Coroutine) Policy {
	return PolicyFunc(c.Resume)
}

// Scripted is a Coroutine replaying fixed results, one per iteration, and
// exhausted afterwards.
type Scripted struct {
	steps []PolicyResult
	next  int
}

// NewScripted creates a Scripted coroutine over steps.
func NewScripted(steps ...PolicyResult) *Scripted {
	return &Scripted{steps: steps}
}

func (s *Scripted) Resume(context.Context, *Workflow, Views) (PolicyResult, error) {
	if s.next >= len(s.steps) {
		return nil, ErrPolicyExhausted
	}
	r := s.steps[s.next]
	s.next++
	return r, nil
}

// Decide lets a Scripted be passed as a Policy directly.
func (s *Scripted) Decide(ctx context.Context, wf *Workflow, views Views) (PolicyResult, error) {
	return s.Resume(ctx, wf, views)
}

// Dummy names every tab without acting on any of them.
func Dummy() Policy {
	return PolicyFunc(func(_ context.Context, _ *Workflow, views Views) (PolicyResult, error) {
		r := PolicyResult{}
		for tab := range views {
			r[tab] = nil
		}
		return r, nil
	})
}

// RandomClick picks one available Click at random on every open tab. Tabs
// without a Click action are named with no actions.
func RandomClick(rng *rand.Rand) Policy {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return PolicyFunc(func(_ context.Context, _ *Workflow, views Views) (PolicyResult, error) {
		r := PolicyResult{}
		for _, tab := range views.Names() {
			v := views[tab]
			if v == nil {
				continue
			}
			clicks := action.ByType[action.Click](v.Actions)
			if len(clicks) == 0 {
				r[tab] = nil
				continue
			}
			r[tab] = action.Actions{clicks[rng.IntN(len(clicks))]}
		}
		return r, nil
	})
}

// Random picks one action of any type at random on every open tab. Actions
// still missing fields fail when executed like any other action.
func Random(rng *rand.Rand) Policy {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return PolicyFunc(func(_ context.Context, _ *Workflow, views Views) (PolicyResult, error) {
		r := PolicyResult{}
		for _, tab := range views.Names() {
			v := views[tab]
			if v == nil {
				continue
			}
			if len(v.Actions) == 0 {
				r[tab] = nil
				continue
			}
			r[tab] = action.Actions{v.Actions[rng.IntN(len(v.Actions))]}
		}
		return r, nil
	})
}

// SingleTabFunc decides for the only view of a single tab workflow.
type SingleTabFunc func(ctx context.Context, wf *Workflow, v *view.View) (action.Actions, error)

// SingleTab adapts fn into a Policy. The workflow must have exactly one tab.
func SingleTab(fn SingleTabFunc) Policy {
	return PolicyFunc(func(ctx context.Context, wf *Workflow, views Views) (PolicyResult, error) {
		if len(views) != 1 {
			return nil, fmt.Errorf("single tab policy called with %d views", len(views))
		}
		for tab, v := range views {
			actions, err := fn(ctx, wf, v)
			if err != nil {
				return nil, err
			}
			return PolicyResult{tab: actions}, nil
		}
		return nil, nil
	})
}
