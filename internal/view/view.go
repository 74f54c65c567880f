// internal/view/view.go
package view

import (
	"maps"
	"slices"

	"github.com/xkilldash9x/webtraversal/internal/action"
	"github.com/xkilldash9x/webtraversal/internal/snapshot"
)

// Metadata keys maintained by the workflow to link views into an action trail.
const (
	PreviousActionKey = "previous_action"
	NextActionKey     = "next_action"
)

// Tags is a set of labels assigned by view classifiers.
type Tags map[string]struct{}

// NewTags builds a set from names.
func NewTags(names ...string) Tags {
	t := make(Tags, len(names))
	t.Add(names...)
	return t
}

func (t Tags) Add(names ...string) {
	for _, n := range names {
		t[n] = struct{}{}
	}
}

func (t Tags) Has(name string) bool {
	_, ok := t[name]
	return ok
}

// Sorted returns the tags in lexical order.
func (t Tags) Sorted() []string {
	return slices.Sorted(maps.Keys(t))
}

// View is the state of one tab at one iteration as presented to goals and
// policies. Views are treated as immutable once built, except for Metadata
// which policies may write to. Metadata is carried forward to the next view
// of the same tab, so large payloads belong in the workflow metadata instead.
type View struct {
	Name     string
	Snapshot *snapshot.PageSnapshot
	Actions  action.Actions
	Tags     Tags
	Metadata map[string]any
}

// New creates an empty view for the named tab.
func New(name string, snap *snapshot.PageSnapshot, actions action.Actions) *View {
	return &View{
		Name:     name,
		Snapshot: snap,
		Actions:  actions,
		Tags:     Tags{},
		Metadata: map[string]any{},
	}
}

// Copy returns a shallow copy sharing tags and metadata. With noSnapshot the
// snapshot and actions are dropped to release their memory.
func (v *View) Copy(noSnapshot bool) *View {
	c := *v
	if noSnapshot {
		c.Snapshot = nil
		c.Actions = nil
	}
	return &c
}

// Detached returns a copy with its own tags and metadata maps.
func (v *View) Detached() *View {
	c := v.Copy(false)
	c.Tags = maps.Clone(v.Tags)
	c.Metadata = maps.Clone(v.Metadata)
	if c.Tags == nil {
		c.Tags = Tags{}
	}
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	return c
}

// PreviousActions returns the actions that led to this view.
func (v *View) PreviousActions() action.Actions {
	as, _ := v.Metadata[PreviousActionKey].(action.Actions)
	return as
}

// NextActions returns the actions the policy chose given this view, and
// whether a choice has been recorded.
func (v *View) NextActions() (action.Actions, bool) {
	as, ok := v.Metadata[NextActionKey].(action.Actions)
	return as, ok
}

// HasSnapshot reports whether the view still holds its snapshot.
func (v *View) HasSnapshot() bool { return v != nil && v.Snapshot != nil }
