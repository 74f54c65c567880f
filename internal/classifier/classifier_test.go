// internal/classifier/classifier_test.go
package classifier_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webtraversal/api/schemas"
	"github.com/xkilldash9x/webtraversal/internal/action"
	"github.com/xkilldash9x/webtraversal/internal/classifier"
	"github.com/xkilldash9x/webtraversal/internal/snapshot"
	"github.com/xkilldash9x/webtraversal/internal/view"
)

type fakeEnv struct {
	active []int
	err    error
}

func (e fakeEnv) FindActiveElements(context.Context) ([]int, error) { return e.active, e.err }

func detached(n int) snapshot.Elements {
	els := make(snapshot.Elements, n)
	for i := range els {
		els[i] = snapshot.NewElement(map[string]any{snapshot.KeyUID: float64(i)})
	}
	return els
}

func uidsOf(rs []classifier.Ranked) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = r.Element.UID()
	}
	return out
}

func TestElementClassifier_Binary(t *testing.T) {
	els := detached(4)
	c := &classifier.ElementClassifier{
		Name: "even",
		Callback: func(_ context.Context, subset snapshot.Elements, _ classifier.Env) (classifier.Result, error) {
			return classifier.Binary{subset[0], subset[2]}, nil
		},
		Mode:   classifier.Linear,
		Action: action.Click{},
	}

	classes, err := c.Run(context.Background(), els, nil)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	cls := classes[0]
	assert.Equal(t, "even", cls.Name)
	assert.True(t, cls.Binary)
	assert.Equal(t, []int{0, 2, 1, 3}, uidsOf(cls.Ranked), "members first, stable otherwise")

	for _, e := range els {
		want := 0.0
		if e.UID()%2 == 0 {
			want = 1
		}
		assert.Equal(t, want, e.RawScores()["even"], "every element of the subset gets a raw score")
		assert.Equal(t, want, e.Metadata()["even"], "binary scores are not rescaled")
	}

	acts := c.Actions(cls)
	require.Len(t, acts, 2)
	assert.Same(t, els[0], acts[0].(action.Click).Target.Element)
}

func TestElementClassifier_Scored(t *testing.T) {
	els := detached(3)
	c := &classifier.ElementClassifier{
		Name: "size",
		Callback: func(_ context.Context, subset snapshot.Elements, _ classifier.Env) (classifier.Result, error) {
			return classifier.Scores{{subset[0], 10}, {subset[1], 30}, {subset[2], 20}}, nil
		},
		Mode:       classifier.Linear,
		ResultType: classifier.Float,
	}

	classes, err := c.Run(context.Background(), els, nil)
	require.NoError(t, err)
	cls := classes[0]
	assert.False(t, cls.Binary)
	assert.Equal(t, []int{1, 2, 0}, uidsOf(cls.Ranked))
	assert.Equal(t, []float64{1, 0.5, 0}, []float64{cls.Ranked[0].Score, cls.Ranked[1].Score, cls.Ranked[2].Score})

	assert.Equal(t, 30.0, els[1].RawScores()["size"])
	assert.Equal(t, 0.5, els[2].Metadata()["size"])
	assert.Len(t, els.ByScore("size", 0), 2)
}

func TestElementClassifier_ResultTypes(t *testing.T) {
	els := detached(2)
	scores := func(_ context.Context, s snapshot.Elements, _ classifier.Env) (classifier.Result, error) {
		return classifier.Scores{{s[0], 2.7}, {s[1], 0}}, nil
	}

	_, err := (&classifier.ElementClassifier{Name: "b", Callback: scores, ResultType: classifier.Bool}).Run(context.Background(), els, nil)
	require.NoError(t, err)
	_, err = (&classifier.ElementClassifier{Name: "i", Callback: scores, Mode: classifier.Identity, ResultType: classifier.Int}).Run(context.Background(), els, nil)
	require.NoError(t, err)

	assert.Equal(t, true, els[0].Metadata()["b"])
	assert.Equal(t, false, els[1].Metadata()["b"])
	assert.Equal(t, 2, els[0].Metadata()["i"])
	assert.Equal(t, 2.7, els[0].RawScores()["i"])
}

func TestElementClassifier_MultiClass(t *testing.T) {
	els := detached(3)
	c := &classifier.ElementClassifier{
		Name: "kind",
		Callback: func(_ context.Context, s snapshot.Elements, _ classifier.Env) (classifier.Result, error) {
			return classifier.MultiClass{
				"button": classifier.Binary{s[1]},
				"link":   classifier.Scores{{s[0], 0.3}, {s[2], 0.9}},
				"none":   classifier.Binary{},
			}, nil
		},
	}

	classes, err := c.Run(context.Background(), els, nil)
	require.NoError(t, err)
	require.Len(t, classes, 3)
	assert.Equal(t, "kind__button", classes[0].Name)
	assert.Equal(t, "kind__link", classes[1].Name)
	assert.Equal(t, "kind__none", classes[2].Name)

	assert.Equal(t, 1.0, els[1].Metadata()["kind__button"])
	assert.Equal(t, 0.9, els[2].Metadata()["kind__link"])
	_, scored := els[1].Metadata()["kind__link"]
	assert.False(t, scored, "scored classes only touch listed elements")
	assert.Equal(t, 0.0, els[0].Metadata()["kind__none"])
}

func TestElementClassifier_EmptyAndErrors(t *testing.T) {
	els := detached(2)
	empty := &classifier.ElementClassifier{
		Name: "empty",
		Callback: func(context.Context, snapshot.Elements, classifier.Env) (classifier.Result, error) {
			return classifier.Binary{}, nil
		},
	}
	classes, err := empty.Run(context.Background(), els, nil)
	require.NoError(t, err)
	assert.Empty(t, classes)
	_, touched := els[0].Metadata()["empty"]
	assert.False(t, touched)

	boom := errors.New("boom")
	failing := &classifier.ElementClassifier{
		Name: "failing",
		Callback: func(context.Context, snapshot.Elements, classifier.Env) (classifier.Result, error) {
			return nil, boom
		},
	}
	_, err = failing.Run(context.Background(), els, nil)
	assert.ErrorIs(t, err, boom)

	badLog := &classifier.ElementClassifier{
		Name: "log",
		Mode: classifier.Log,
		Callback: func(_ context.Context, s snapshot.Elements, _ classifier.Env) (classifier.Result, error) {
			return classifier.Scores{{s[0], -1}}, nil
		},
	}
	_, err = badLog.Run(context.Background(), els, nil)
	assert.Error(t, err)
}

func TestElementClassifier_Subset(t *testing.T) {
	els := detached(3)
	els[0].Metadata()["a"] = 1.0
	els[1].Metadata()["a"] = 0.0
	els[1].Metadata()["b"] = 1.0
	els[0].Metadata()["b"] = 1.0

	tests := []struct {
		subset []string
		want   int
	}{
		{nil, 3},
		{[]string{"all"}, 3},
		{[]string{"a"}, 1},
		{[]string{"a", "b"}, 2},
	}
	for _, tt := range tests {
		c := &classifier.ElementClassifier{Subset: tt.subset}
		assert.Len(t, c.SelectSubset(els), tt.want, "%v", tt.subset)
	}
}

func TestElementClassifier_Highlighted(t *testing.T) {
	els := detached(3)
	scores := func(_ context.Context, s snapshot.Elements, _ classifier.Env) (classifier.Result, error) {
		return classifier.Scores{{s[2], 0.1}, {s[0], 0.9}, {s[1], 0.4}}, nil
	}

	tests := []struct {
		name string
		spec classifier.HighlightSpec
		want []int
	}{
		{"none", classifier.HighlightSpec{}, []int{}},
		{"all", classifier.HighlightAll(), []int{0, 1, 2}},
		{"top two", classifier.HighlightTop(2), []int{0, 1}},
		{"top too many", classifier.HighlightTop(10), []int{0, 1, 2}},
		{"above", classifier.HighlightAbove(0.3), []int{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &classifier.ElementClassifier{Name: "s", Callback: scores, Mode: classifier.Identity, Highlight: tt.spec}
			classes, err := c.Run(context.Background(), els, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, uidsOf(c.Highlighted(classes[0])))
		})
	}

	c := &classifier.ElementClassifier{}
	assert.Equal(t, classifier.DefaultHighlightColor.WithAlpha(127), c.HighlightColorFor(0.5))
	c.HighlightColor = schemas.RGB(1, 2, 3)
	assert.Equal(t, schemas.Color{R: 1, G: 2, B: 3, A: 255}, c.HighlightColorFor(1.5))
}

func TestActiveElementFilter(t *testing.T) {
	els := detached(4)
	c := classifier.ActiveElementFilter()
	assert.Equal(t, classifier.ActiveElementName, c.ClassifierName())

	_, err := c.Run(context.Background(), els, fakeEnv{active: []int{1, 3, 99}})
	require.NoError(t, err)
	assert.Equal(t, true, els[1].Metadata()["is_active"])
	assert.Equal(t, false, els[0].Metadata()["is_active"])
	assert.Len(t, els.ByScore("is_active", 0), 2)

	_, err = c.Run(context.Background(), els, fakeEnv{err: errors.New("closed")})
	assert.Error(t, err)
}

func TestViewClassifier(t *testing.T) {
	c := &classifier.ViewClassifier{
		Name: "login",
		Callback: func(_ context.Context, v *view.View) ([]string, error) {
			return []string{"login", v.Name}, nil
		},
	}
	v := view.New("tab", nil, nil)
	v.Tags.Add("old")
	require.NoError(t, c.Run(context.Background(), v))
	assert.Equal(t, []string{"login", "old", "tab"}, v.Tags.Sorted())
}

func TestCollection(t *testing.T) {
	noop := func(context.Context, snapshot.Elements, classifier.Env) (classifier.Result, error) { return nil, nil }
	a := &classifier.ElementClassifier{Name: "a", Callback: noop}
	b := &classifier.ViewClassifier{Name: "b", Callback: func(context.Context, *view.View) ([]string, error) { return nil, nil }}
	c := &classifier.ElementClassifier{Name: "c"}
	col := classifier.NewCollection(a, b, c)

	assert.Equal(t, []string{"a", "b", "c"}, col.Names())
	assert.Len(t, col.ActiveElementClassifiers(), 1, "classifiers without callbacks are inactive")
	assert.Len(t, col.ActiveViewClassifiers(), 1)

	require.NoError(t, col.Stop("a"))
	assert.Empty(t, col.ActiveElementClassifiers())
	require.NoError(t, col.Start("a"))
	assert.Len(t, col.ActiveElementClassifiers(), 1)
	assert.Error(t, col.Stop("zzz"))

	replacement := &classifier.ElementClassifier{Name: "a", Callback: noop, Disabled: true}
	col.Add(replacement)
	assert.Equal(t, 3, col.Len())
	assert.Same(t, replacement, col.Get("a"))
	assert.True(t, col.Contains("b"))
	assert.Equal(t, []string{"a", "b", "c"}, col.Names(), "replacing keeps the position")
}
