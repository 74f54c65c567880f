// internal/action/actions.go
package action

import (
	"fmt"
	"slices"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/webtraversal/internal/browser/dom"
	"github.com/xkilldash9x/webtraversal/internal/snapshot"
)

// Actions is an ordered collection of actions with the same query surface as
// snapshot.Elements. Score based filters only consider element actions with
// a resolved target.
type Actions []Action

// ByType returns the members that are a T. T may be a concrete variant or
// one of the ElementAction and PageAction families.
func ByType[T Action](as Actions) Actions {
	return as.filter(func(a Action) bool {
		_, ok := a.(T)
		return ok
	})
}

// ByScore returns the element actions whose target scores above limit under name.
func (as Actions) ByScore(name string, limit float64) Actions {
	return as.filter(func(a Action) bool {
		el := elementOf(a)
		if el == nil {
			return false
		}
		v, ok := el.Score(name)
		return ok && v > limit
	})
}

// ByRawScore returns the element actions whose target has a raw score above limit under name.
func (as Actions) ByRawScore(name string, limit float64) Actions {
	return as.filter(func(a Action) bool {
		el := elementOf(a)
		if el == nil {
			return false
		}
		v, ok := el.RawScores()[name]
		return ok && v > limit
	})
}

// ByElement returns the element actions targeting el.
func (as Actions) ByElement(el *snapshot.PageElement) Actions {
	return as.filter(func(a Action) bool {
		return el != nil && elementOf(a) == el
	})
}

// BySelector returns the element actions whose target is matched by sel in
// the snapshot of the first element action.
func (as Actions) BySelector(sel dom.Selector) Actions {
	elementActions := ByType[ElementAction](as)
	if len(elementActions) == 0 {
		return Actions{}
	}
	first := elementOf(elementActions[0])
	if first == nil || first.Page() == nil {
		return Actions{}
	}
	nodes := first.Page().Document().Matches(sel)
	if len(nodes) == 0 {
		return Actions{}
	}

	uids := dom.UIDsOf(nodes)
	out := elementActions.filter(func(a Action) bool {
		el := elementOf(a)
		if el == nil {
			return false
		}
		_, ok := uids[el.UID()]
		return ok
	})
	if len(out) > 0 {
		return out
	}

	matched := make(map[*html.Node]struct{}, len(nodes))
	for _, n := range nodes {
		matched[n] = struct{}{}
	}
	return elementActions.filter(func(a Action) bool {
		el := elementOf(a)
		if el == nil {
			return false
		}
		_, ok := matched[el.Tag()]
		return ok
	})
}

// SortBy sorts in place by the targets' raw score under name. Missing scores
// and page actions count as 0. The sort is stable.
func (as Actions) SortBy(name string, reverse bool) Actions {
	key := func(a Action) float64 {
		if el := elementOf(a); el != nil {
			return el.RawScores()[name]
		}
		return 0
	}
	slices.SortStableFunc(as, func(a, b Action) int {
		ka, kb := key(a), key(b)
		if reverse {
			ka, kb = kb, ka
		}
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		}
		return 0
	})
	return as
}

// Unique returns the only member of the collection.
func (as Actions) Unique() (Action, error) {
	if len(as) != 1 {
		return nil, fmt.Errorf("%w, found %d", snapshot.ErrNotUnique, len(as))
	}
	return as[0], nil
}

// Elements returns the resolved targets of the element actions, in order.
func (as Actions) Elements() snapshot.Elements {
	out := snapshot.Elements{}
	for _, a := range as {
		if el := elementOf(a); el != nil {
			out = append(out, el)
		}
	}
	return out
}

func (as Actions) filter(keep func(Action) bool) Actions {
	out := Actions{}
	for _, a := range as {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

func elementOf(a Action) *snapshot.PageElement {
	ea, ok := a.(ElementAction)
	if !ok {
		return nil
	}
	return ea.ActionTarget().Element
}
