// internal/classifier/classifier.go
package classifier

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/xkilldash9x/webtraversal/api/schemas"
	"github.com/xkilldash9x/webtraversal/internal/action"
	"github.com/xkilldash9x/webtraversal/internal/snapshot"
	"github.com/xkilldash9x/webtraversal/internal/view"
)

// DefaultHighlightColor is used when an ElementClassifier sets none.
var DefaultHighlightColor = schemas.MustParseColor("#5A1911")

// Env is what a classifier callback may query besides its input, normally the
// running Workflow.
type Env interface {
	// FindActiveElements returns the uids of elements the page considers interactable.
	FindActiveElements(ctx context.Context) ([]int, error)
}

// Classifier is implemented by *ElementClassifier and *ViewClassifier.
type Classifier interface {
	ClassifierName() string
	Enabled() bool
	SetEnabled(bool)
}

// ResultType is the type classifier scores are stored as in element metadata.
type ResultType int

const (
	Float ResultType = iota
	Bool
	Int
)

func (t ResultType) convert(score float64) any {
	switch t {
	case Bool:
		return score != 0
	case Int:
		return int(score)
	}
	return score
}

// HighlightSpec selects which scored elements are drawn on the page.
// The zero value highlights nothing.
type HighlightSpec struct {
	kind  highlightKind
	top   int
	above float64
}

type highlightKind int

const (
	highlightNone highlightKind = iota
	highlightAll
	highlightTop
	highlightAbove
)

// HighlightAll highlights every element.
func HighlightAll() HighlightSpec { return HighlightSpec{kind: highlightAll} }

// HighlightTop highlights the n best scoring elements.
func HighlightTop(n int) HighlightSpec { return HighlightSpec{kind: highlightTop, top: n} }

// HighlightAbove highlights every element scoring strictly above x.
func HighlightAbove(x float64) HighlightSpec { return HighlightSpec{kind: highlightAbove, above: x} }

// IsZero reports whether the spec highlights nothing.
func (h HighlightSpec) IsZero() bool { return h.kind == highlightNone }

// ElementCallback scores elements of subset.
type ElementCallback func(ctx context.Context, subset snapshot.Elements, env Env) (Result, error)

// ElementClassifier scores elements of every new snapshot. Only Name and
// Callback are required.
type ElementClassifier struct {
	Name     string
	Disabled bool
	Callback ElementCallback

	// Action, when set, is bound to every element with a nonzero score and
	// offered to the policy.
	Action    action.ElementAction
	Highlight HighlightSpec
	Mode      ScalingMode
	// HighlightColor defaults to DefaultHighlightColor. Its alpha is replaced by the score.
	HighlightColor schemas.Color
	// Subset restricts the input to elements carrying all these scores. Empty or
	// "all" means every element.
	Subset     []string
	ResultType ResultType
}

func (c *ElementClassifier) ClassifierName() string { return c.Name }
func (c *ElementClassifier) Enabled() bool          { return !c.Disabled }
func (c *ElementClassifier) SetEnabled(on bool)     { c.Disabled = !on }

// Color returns the highlight color.
func (c *ElementClassifier) Color() schemas.Color {
	if c.HighlightColor == (schemas.Color{}) {
		return DefaultHighlightColor
	}
	return c.HighlightColor
}

// SelectSubset returns the elements the callback is invoked with.
func (c *ElementClassifier) SelectSubset(els snapshot.Elements) snapshot.Elements {
	switch {
	case len(c.Subset) == 0, len(c.Subset) == 1 && c.Subset[0] == snapshot.AllScores:
		return els
	case len(c.Subset) == 1:
		return els.ByScore(c.Subset[0], 0)
	}
	return els.ByScores(c.Subset...)
}

// Ranked is one element of a processed class with its raw and scaled score.
type Ranked struct {
	Element *snapshot.PageElement
	Raw     float64
	Score   float64
}

// Class is the processed outcome of one class of a classifier.
type Class struct {
	// Name is the metadata key the scores are stored under.
	Name   string
	Binary bool
	// Ranked is sorted by descending raw score.
	Ranked []Ranked
}

// Run invokes the callback on its subset of els and records the scores of
// every resulting class in the elements' metadata. A nil or empty result
// yields no classes.
func (c *ElementClassifier) Run(ctx context.Context, els snapshot.Elements, env Env) ([]Class, error) {
	subset := c.SelectSubset(els)
	res, err := c.Callback(ctx, subset, env)
	if err != nil {
		return nil, fmt.Errorf("classifier %s: %w", c.Name, err)
	}
	if isEmpty(res) {
		return nil, nil
	}

	if mc, ok := res.(MultiClass); ok {
		names := make([]string, 0, len(mc))
		for name := range mc {
			names = append(names, name)
		}
		slices.Sort(names)
		classes := make([]Class, 0, len(names))
		for _, name := range names {
			cls, err := c.process(c.Name+"__"+name, mc[name], subset)
			if err != nil {
				return nil, err
			}
			classes = append(classes, cls)
		}
		return classes, nil
	}

	cls, err := c.process(c.Name, res, subset)
	if err != nil {
		return nil, err
	}
	return []Class{cls}, nil
}

func (c *ElementClassifier) process(name string, res Result, subset snapshot.Elements) (Class, error) {
	cls := Class{Name: name}
	switch r := res.(type) {
	case nil:
		cls.Binary = true
		for _, e := range subset {
			cls.Ranked = append(cls.Ranked, Ranked{Element: e})
		}
	case Binary:
		cls.Binary = true
		members := snapshot.Elements(r)
		for _, e := range subset {
			score := 0.0
			if members.Contains(e) {
				score = 1
			}
			cls.Ranked = append(cls.Ranked, Ranked{Element: e, Raw: score})
		}
	case Scores:
		for _, s := range r {
			cls.Ranked = append(cls.Ranked, Ranked{Element: s.Element, Raw: s.Score})
		}
	default:
		return Class{}, fmt.Errorf("classifier %s: class %s has unsupported result %T", c.Name, name, res)
	}

	slices.SortStableFunc(cls.Ranked, func(a, b Ranked) int { return cmp.Compare(b.Raw, a.Raw) })

	raws := make([]float64, len(cls.Ranked))
	for i, r := range cls.Ranked {
		raws[i] = r.Raw
	}
	scaled := raws
	if !cls.Binary {
		var err error
		if scaled, err = c.Mode.Scale(raws); err != nil {
			return Class{}, fmt.Errorf("classifier %s: %w", c.Name, err)
		}
	}

	for i := range cls.Ranked {
		r := &cls.Ranked[i]
		r.Score = scaled[i]
		r.Element.RawScores()[name] = r.Raw
		r.Element.Metadata()[name] = c.ResultType.convert(r.Score)
	}
	return cls, nil
}

// Highlighted returns the members of cls selected by the highlight spec.
// Elements with a zero score are never highlighted.
func (c *ElementClassifier) Highlighted(cls Class) []Ranked {
	var picked []Ranked
	switch c.Highlight.kind {
	case highlightAll:
		picked = cls.Ranked
	case highlightTop:
		picked = cls.Ranked[:min(max(c.Highlight.top, 0), len(cls.Ranked))]
	case highlightAbove:
		for _, r := range cls.Ranked {
			if r.Score > c.Highlight.above {
				picked = append(picked, r)
			}
		}
	}
	out := make([]Ranked, 0, len(picked))
	for _, r := range picked {
		if r.Score != 0 {
			out = append(out, r)
		}
	}
	return out
}

// HighlightColorFor returns the highlight color with its alpha scaled by score.
func (c *ElementClassifier) HighlightColorFor(score float64) schemas.Color {
	return c.Color().WithAlpha(uint8(min(1, max(0, score)) * 255))
}

// Actions binds the classifier action to every element of cls with a nonzero score.
func (c *ElementClassifier) Actions(cls Class) action.Actions {
	if c.Action == nil {
		return nil
	}
	var out action.Actions
	for _, r := range cls.Ranked {
		if r.Score != 0 {
			out = append(out, action.Bind(c.Action, r.Element))
		}
	}
	return out
}

// ViewCallback returns tags for a view.
type ViewCallback func(ctx context.Context, v *view.View) ([]string, error)

// ViewClassifier tags every new view. It runs after the element classifiers.
type ViewClassifier struct {
	Name     string
	Disabled bool
	Callback ViewCallback
}

func (c *ViewClassifier) ClassifierName() string { return c.Name }
func (c *ViewClassifier) Enabled() bool          { return !c.Disabled }
func (c *ViewClassifier) SetEnabled(on bool)     { c.Disabled = !on }

// Run merges the callback's tags into v.Tags.
func (c *ViewClassifier) Run(ctx context.Context, v *view.View) error {
	tags, err := c.Callback(ctx, v)
	if err != nil {
		return fmt.Errorf("classifier %s: %w", c.Name, err)
	}
	if v.Tags == nil {
		v.Tags = view.Tags{}
	}
	v.Tags.Add(tags...)
	return nil
}
