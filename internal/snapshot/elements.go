// internal/snapshot/elements.go
package snapshot

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/webtraversal/internal/browser/dom"
)

// AllScores is the score name that selects every element.
const AllScores = "all"

// ErrNotUnique is returned by Unique when the collection does not hold exactly one element.
var ErrNotUnique = errors.New("expected exactly one element")

// Elements is an ordered collection of elements from the same snapshot.
// Filters return new collections and never reorder.
type Elements []*PageElement

// ByScore returns the elements whose classifier value under name exceeds limit.
// The name "all" returns every element.
func (es Elements) ByScore(name string, limit float64) Elements {
	if name == AllScores {
		return slices.Clone(es)
	}
	return es.filter(func(e *PageElement) bool {
		v, ok := e.Score(name)
		return ok && v > limit
	})
}

// ByScores returns the elements carrying a value for every one of names, regardless of magnitude.
func (es Elements) ByScores(names ...string) Elements {
	return es.filter(func(e *PageElement) bool {
		for _, n := range names {
			if _, ok := e.metadata[n]; !ok {
				return false
			}
		}
		return true
	})
}

// ByRawScore returns the elements whose raw score under name exceeds limit.
func (es Elements) ByRawScore(name string, limit float64) Elements {
	if name == AllScores {
		return slices.Clone(es)
	}
	return es.filter(func(e *PageElement) bool {
		v, ok := e.RawScores()[name]
		return ok && v > limit
	})
}

// ByRawScores returns the elements carrying a raw score for every one of names.
func (es Elements) ByRawScores(names ...string) Elements {
	return es.filter(func(e *PageElement) bool {
		rs := e.RawScores()
		for _, n := range names {
			if _, ok := rs[n]; !ok {
				return false
			}
		}
		return true
	})
}

// BySelector returns the elements matched by sel in the snapshot of the first
// member, CSS first with XPath as fallback.
func (es Elements) BySelector(sel dom.Selector) Elements {
	if len(es) == 0 {
		return Elements{}
	}
	page := es[0].Page()
	if page == nil {
		return Elements{}
	}
	nodes := page.doc.Matches(sel)
	if len(nodes) == 0 {
		return Elements{}
	}

	uids := dom.UIDsOf(nodes)
	out := es.filter(func(e *PageElement) bool {
		_, ok := uids[e.UID()]
		return ok
	})
	if len(out) > 0 {
		return out
	}

	// Fall back on node identity for matches that carry no uid yet.
	matched := make(map[*html.Node]struct{}, len(nodes))
	for _, n := range nodes {
		matched[n] = struct{}{}
	}
	return es.filter(func(e *PageElement) bool {
		_, ok := matched[e.Tag()]
		return ok
	})
}

// BySubtree returns the elements below root in the DOM, followed by root
// itself when includeRoot is set.
func (es Elements) BySubtree(root *PageElement, includeRoot bool) Elements {
	if len(es) == 0 || root == nil {
		return Elements{}
	}
	tag := root.Tag()
	if tag == nil {
		if includeRoot {
			return Elements{root}
		}
		return Elements{}
	}
	below := make(map[*html.Node]struct{})
	for _, n := range dom.Descendants(tag) {
		below[n] = struct{}{}
	}
	out := es.filter(func(e *PageElement) bool {
		_, ok := below[e.Tag()]
		return ok
	})
	if includeRoot {
		out = append(out, root)
	}
	return out
}

// BySubtreeSelector is BySubtree rooted at the single element matched by sel.
func (es Elements) BySubtreeSelector(sel dom.Selector, includeRoot bool) (Elements, error) {
	if len(es) == 0 {
		return Elements{}, nil
	}
	root, err := es.BySelector(sel).Unique()
	if err != nil {
		return nil, fmt.Errorf("subtree root %s: %w", sel.CSS, err)
	}
	return es.BySubtree(root, includeRoot), nil
}

// ByUID returns the element with the given uid, or nil.
func (es Elements) ByUID(uid int) *PageElement {
	for _, e := range es {
		if e.UID() == uid {
			return e
		}
	}
	return nil
}

// SortBy sorts the collection in place by raw score under name. Elements
// without that score count as 0. The sort is stable.
func (es Elements) SortBy(name string, reverse bool) Elements {
	slices.SortStableFunc(es, func(a, b *PageElement) int {
		va, vb := a.RawScores()[name], b.RawScores()[name]
		if reverse {
			va, vb = vb, va
		}
		switch {
		case va < vb:
			return -1
		case va > vb:
			return 1
		}
		return 0
	})
	return es
}

// Unique returns the only element of the collection.
func (es Elements) Unique() (*PageElement, error) {
	if len(es) != 1 {
		return nil, fmt.Errorf("%w, found %d", ErrNotUnique, len(es))
	}
	return es[0], nil
}

// Contains reports whether e is a member of the collection.
func (es Elements) Contains(e *PageElement) bool {
	return slices.Contains(es, e)
}

func (es Elements) filter(keep func(*PageElement) bool) Elements {
	out := Elements{}
	for _, e := range es {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
