// internal/workflow/patches.go
package workflow

import (
	"cmp"
	"slices"

	"github.com/xkilldash9x/webtraversal/internal/browser/dom"
	"github.com/xkilldash9x/webtraversal/internal/snapshot"
)

// Patch redirects actions on the elements matched by Selector to Destination.
type Patch struct {
	Selector    dom.Selector
	Destination string
}

// MonkeyPatches replaces element actions by a Navigate when their target
// matches a registered selector.
type MonkeyPatches struct {
	patches []Patch
	def     string
}

// NewMonkeyPatches registers patches in order.
func NewMonkeyPatches(patches ...Patch) *MonkeyPatches {
	m := &MonkeyPatches{}
	for _, p := range patches {
		m.Add(p.Selector, p.Destination)
	}
	return m
}

// Add registers dest for sel, replacing any destination already set for sel.
func (m *MonkeyPatches) Add(sel dom.Selector, dest string) {
	for i := range m.patches {
		if m.patches[i].Selector == sel {
			m.patches[i].Destination = dest
			return
		}
	}
	m.patches = append(m.patches, Patch{Selector: sel, Destination: dest})
}

// SetDefault sets the destination used when no selector matches. It behaves
// like a patch on "*" without querying the page.
func (m *MonkeyPatches) SetDefault(dest string) { m.def = dest }

func (m *MonkeyPatches) Contains(sel dom.Selector) bool {
	return slices.ContainsFunc(m.patches, func(p Patch) bool { return p.Selector == sel })
}

func (m *MonkeyPatches) Len() int { return len(m.patches) }

// Check returns the destination for el in snap, or "" when nothing applies.
// Candidates are ranked by ascending match count, not descending: a selector
// matching fewer elements is more specific and wins, so a catch-all patch
// never shadows a targeted one.
func (m *MonkeyPatches) Check(snap *snapshot.PageSnapshot, el *snapshot.PageElement) string {
	if snap == nil || el == nil {
		return m.def
	}
	type candidate struct {
		dest    string
		matches snapshot.Elements
	}
	els := snap.Elements()
	candidates := make([]candidate, 0, len(m.patches))
	for _, p := range m.patches {
		candidates = append(candidates, candidate{dest: p.Destination, matches: els.BySelector(p.Selector)})
	}
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return cmp.Compare(len(a.matches), len(b.matches))
	})
	for _, c := range candidates {
		if c.matches.Contains(el) {
			return c.dest
		}
	}
	return m.def
}
