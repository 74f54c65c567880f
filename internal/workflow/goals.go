// internal/workflow/goals.go
package workflow

import (
	"context"
	"fmt"
)

// GoalResult is the outcome of a goal evaluation. When PerTab is set the goal
// is reached only if it holds at least one entry and every entry is true;
// otherwise All decides.
type GoalResult struct {
	All    bool
	PerTab map[string]bool
}

// Reached collapses the result into a single decision.
func (r GoalResult) Reached() bool {
	if r.PerTab == nil {
		return r.All
	}
	if len(r.PerTab) == 0 {
		return false
	}
	for _, ok := range r.PerTab {
		if !ok {
			return false
		}
	}
	return true
}

// Done is the GoalResult of a plain boolean goal.
func Done(ok bool) GoalResult { return GoalResult{All: ok} }

// Goal is evaluated once per iteration, after the new views are built and
// before the policy is asked. Reaching it stops the workflow.
type Goal interface {
	Evaluate(ctx context.Context, wf *Workflow, views Views) (GoalResult, error)
}

// GoalFunc adapts a function to Goal.
type GoalFunc func(ctx context.Context, wf *Workflow, views Views) (GoalResult, error)

func (f GoalFunc) Evaluate(ctx context.Context, wf *Workflow, views Views) (GoalResult, error) {
	return f(ctx, wf, views)
}

// Forever never reaches its goal.
func Forever() Goal {
	return GoalFunc(func(context.Context, *Workflow, Views) (GoalResult, error) {
		return Done(false), nil
	})
}

// NSteps is not reached exactly n times, and reached from then on.
func NSteps(n int) Goal {
	if n < 0 {
		panic(fmt.Sprintf("workflow: NSteps needs n >= 0, got %d", n))
	}
	left := n + 1
	return GoalFunc(func(context.Context, *Workflow, Views) (GoalResult, error) {
		left--
		return Done(left <= 0), nil
	})
}

// Once lets the policy act exactly one time.
func Once() Goal { return NSteps(1) }
