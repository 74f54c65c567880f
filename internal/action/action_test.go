// internal/action/action_test.go
package action_test

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webtraversal/api/schemas"
	"github.com/xkilldash9x/webtraversal/internal/action"
	"github.com/xkilldash9x/webtraversal/internal/browser"
	"github.com/xkilldash9x/webtraversal/internal/browser/dom"
	"github.com/xkilldash9x/webtraversal/internal/config"
	"github.com/xkilldash9x/webtraversal/internal/snapshot"
)

// recorder implements both Host and JS, logging every call.
type recorder struct {
	cfg      *config.Config
	calls    []string
	frames   []string
	exists   int // ElementExists reports true from this call on
	existsN  int
	closeErr error
}

func newRecorder() *recorder {
	return &recorder{cfg: config.NewDefaultConfig()}
}

func (r *recorder) record(format string, args ...any) error {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
	return nil
}

func (r *recorder) JS() action.JS                     { return r }
func (r *recorder) Config() *config.Config            { return r.cfg }
func (r *recorder) Refresh(context.Context) error     { return r.record("refresh") }
func (r *recorder) WaitForUser(context.Context) error { return r.record("wait for user") }

func (r *recorder) EnterFrame(_ context.Context, iframe string) (func(), error) {
	r.frames = append(r.frames, "enter:"+iframe)
	return func() { r.frames = append(r.frames, "exit:"+iframe) }, nil
}
func (r *recorder) SmartScrollTo(_ context.Context, b schemas.Rectangle) error {
	return r.record("scroll %s", b)
}
func (r *recorder) Navigate(_ context.Context, url string) error { return r.record("navigate %s", url) }
func (r *recorder) ResetTo(_ context.Context, i int) error       { return r.record("reset to %d", i) }
func (r *recorder) CloseCurrentTab(context.Context) error {
	r.record("close tab")
	return r.closeErr
}

func (r *recorder) ClickElement(_ context.Context, sel dom.Selector) error {
	return r.record("click %s", sel.CSS)
}
func (r *recorder) FillText(_ context.Context, sel dom.Selector, text string) error {
	return r.record("fill %s %s", sel.CSS, text)
}
func (r *recorder) Select(_ context.Context, sel dom.Selector, value string) error {
	return r.record("select %s %s", sel.CSS, value)
}
func (r *recorder) DeleteElement(_ context.Context, sel dom.Selector) error {
	return r.record("delete %s", sel.CSS)
}
func (r *recorder) ElementExists(_ context.Context, sel dom.Selector) (bool, error) {
	r.existsN++
	r.record("exists %s", sel.CSS)
	return r.existsN >= r.exists, nil
}
func (r *recorder) Highlight(_ context.Context, sel dom.Selector, c schemas.Color, fill, viewport bool) error {
	return r.record("highlight %s %s fill=%t viewport=%t", sel.CSS, c.Hex(false), fill, viewport)
}
func (r *recorder) Annotate(_ context.Context, at schemas.Point, c schemas.Color, size int, text string, _ schemas.Color, viewport bool) error {
	return r.record("annotate %s %s %d %s viewport=%t", at, c.Hex(false), size, text, viewport)
}
func (r *recorder) ClearHighlights(_ context.Context, viewport bool) error {
	return r.record("clear viewport=%t", viewport)
}

const pageHTML = `<html><body wtl-uid="0" wtl-parent-uid="-1">
<a href="/x" wtl-uid="1" wtl-parent-uid="0">x</a>
<a href="/y" wtl-uid="2" wtl-parent-uid="0">y</a>
<input name="q" wtl-uid="3" wtl-parent-uid="0">
</body></html>`

func newSnapshot(t *testing.T) *snapshot.PageSnapshot {
	t.Helper()
	meta := []map[string]any{
		{snapshot.KeyUID: 0.0, snapshot.KeyParentUID: -1.0},
		{snapshot.KeyUID: 1.0, snapshot.KeyParentUID: 0.0, "link": 1.0, snapshot.KeyRawScores: map[string]any{"link": 0.2},
			snapshot.KeyLocation: map[string]any{"x": 5.0, "y": 6.0}, snapshot.KeySize: map[string]any{"width": 10.0, "height": 4.0}},
		{snapshot.KeyUID: 2.0, snapshot.KeyParentUID: 0.0, "link": 0.5, snapshot.KeyRawScores: map[string]any{"link": 0.9}},
		{snapshot.KeyUID: 3.0, snapshot.KeyParentUID: 0.0},
	}
	p, err := snapshot.New(pageHTML, nil, meta, nil, nil)
	require.NoError(t, err)
	return p
}

func TestElementActions_Execute(t *testing.T) {
	ctx := context.Background()
	r := newRecorder()

	require.NoError(t, action.Click{Target: action.AtCSS("#go")}.Execute(ctx, r))
	require.NoError(t, action.FillText{Target: action.AtCSS("input"), Text: "hello"}.Execute(ctx, r))
	require.NoError(t, action.Select{Target: action.At(dom.ByCSS("select").InFrame("pay")), Value: "2"}.Execute(ctx, r))
	require.NoError(t, action.Remove{Target: action.AtCSS("#ad")}.Execute(ctx, r))
	require.NoError(t, action.Highlight{Target: action.AtCSS("h1")}.Execute(ctx, r))

	assert.Equal(t, []string{
		"click #go",
		"fill input hello",
		"select select 2",
		"delete #ad",
		"highlight h1 #FFB3C7 fill=false viewport=false",
	}, r.calls)
	assert.Equal(t, []string{"enter:", "exit:", "enter:", "exit:", "enter:pay", "exit:pay"}, r.frames)
}

func TestScrollTo(t *testing.T) {
	ctx := context.Background()
	r := newRecorder()

	err := action.ScrollTo{Target: action.AtCSS("a")}.Execute(ctx, r)
	assert.ErrorIs(t, err, action.ErrNotSupported)

	p := newSnapshot(t)
	el := p.Elements().ByUID(1)
	require.NoError(t, action.ScrollTo{Target: action.On(el)}.Execute(ctx, r))
	assert.Equal(t, []string{"scroll Rectangle(5, 6, 10x4)"}, r.calls)
	runtime.KeepAlive(p)
}

func TestPageActions_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("simple delegation", func(t *testing.T) {
		r := newRecorder()
		r.cfg.Debug.DefaultCanvasViewport = true
		no := false
		require.NoError(t, action.Navigate{URL: "example.test"}.Execute(ctx, r))
		require.NoError(t, action.Refresh{}.Execute(ctx, r))
		require.NoError(t, action.Revert{ViewIndex: 2}.Execute(ctx, r))
		require.NoError(t, action.WaitForUser{}.Execute(ctx, r))
		require.NoError(t, action.Clear{}.Execute(ctx, r))
		require.NoError(t, action.Clear{Viewport: &no}.Execute(ctx, r))
		require.NoError(t, action.Annotate{Location: schemas.Point{X: 1, Y: 2}, Color: schemas.RGB(0, 0, 255), Size: 12, Text: "hi"}.Execute(ctx, r))
		assert.Equal(t, []string{
			"navigate example.test",
			"refresh",
			"reset to 2",
			"wait for user",
			"clear viewport=true",
			"clear viewport=false",
			"annotate (1, 2) #0000FF 12 hi viewport=true",
		}, r.calls)
	})

	t.Run("abort closes the tab by default", func(t *testing.T) {
		r := newRecorder()
		require.NoError(t, action.Abort{}.Execute(ctx, r))
		assert.Equal(t, []string{"close tab"}, r.calls)
	})

	t.Run("abort keeps the tab when preserving the window", func(t *testing.T) {
		r := newRecorder()
		r.cfg.Debug.PreserveWindow = true
		require.NoError(t, action.Abort{}.Execute(ctx, r))
		r.cfg.Debug.PreserveWindow = false
		r.cfg.Actions.Abort.Close = false
		require.NoError(t, action.Abort{}.Execute(ctx, r))
		assert.Empty(t, r.calls)
	})

	t.Run("abort surfaces window errors", func(t *testing.T) {
		r := newRecorder()
		r.closeErr = browser.ErrWindowClosed
		assert.ErrorIs(t, action.Abort{}.Execute(ctx, r), browser.ErrWindowClosed)
	})
}

func TestWait(t *testing.T) {
	start := time.Now()
	require.NoError(t, action.Wait{Duration: 20 * time.Millisecond}.Execute(context.Background(), nil))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, action.Wait{Duration: time.Hour}.Execute(ctx, nil), context.Canceled)
}

func TestWaitForElement(t *testing.T) {
	r := newRecorder()
	r.exists = 3
	wait := action.WaitForElement{Selector: dom.ByCSS("#late"), Interval: 5 * time.Millisecond}
	require.NoError(t, wait.Execute(context.Background(), r))
	assert.Len(t, r.calls, 3)

	r = newRecorder()
	r.exists = 1 << 30
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.Error(t, wait.Execute(ctx, r))
}

func TestWithField(t *testing.T) {
	base := action.FillText{Target: action.AtCSS("input")}

	a, err := action.WithField(base, "text", "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", a.(action.FillText).Text)
	assert.Empty(t, base.Text, "the original is not modified")

	_, err = action.WithField(base, "nope", 1)
	assert.ErrorIs(t, err, action.ErrUnknownField)
	_, err = action.WithField(base, "text", 5)
	assert.Error(t, err)

	w, err := action.WithField(action.Wait{}, "duration", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, w.(action.Wait).Duration)

	v, err := action.WithField(action.Highlight{}, "viewport", true)
	require.NoError(t, err)
	require.NotNil(t, v.(action.Highlight).Viewport)
	assert.True(t, *v.(action.Highlight).Viewport)

	r, err := action.WithField(action.Revert{}, "view_index", 3.0)
	require.NoError(t, err)
	assert.Equal(t, 3, r.(action.Revert).ViewIndex)
}

func TestApply(t *testing.T) {
	n, err := action.Apply(action.Navigate{}, "http://a.test")
	require.NoError(t, err)
	assert.Equal(t, action.Navigate{URL: "http://a.test"}, n)

	f, err := action.Apply(action.FillText{Target: action.AtCSS("input")}, "text")
	require.NoError(t, err)
	assert.Equal(t, "input", f.(action.FillText).Target.Selector().CSS, "target is kept")

	_, err = action.Apply(action.Highlight{}, true)
	assert.ErrorIs(t, err, action.ErrAmbiguousField)
	_, err = action.Apply(action.Click{}, "x")
	assert.ErrorIs(t, err, action.ErrAmbiguousField)
}

func TestBindAndResolve(t *testing.T) {
	p := newSnapshot(t)
	els := p.Elements()

	bound := action.Bind(action.Click{}, els.ByUID(2))
	assert.Same(t, els.ByUID(2), bound.ActionTarget().Element)
	assert.Equal(t, els.ByUID(2).Selector(), bound.ActionTarget().Selector())

	resolved, err := action.Resolve(action.FillText{Target: action.AtCSS("input"), Text: "q"}, els)
	require.NoError(t, err)
	assert.Equal(t, 3, resolved.ActionTarget().Element.UID())
	assert.Equal(t, "input", resolved.ActionTarget().Selector().CSS)
	assert.Equal(t, "q", resolved.(action.FillText).Text)

	_, err = action.Resolve(action.Click{Target: action.AtCSS("table")}, els)
	assert.ErrorIs(t, err, browser.ErrElementNotFound)
	runtime.KeepAlive(p)
}

func TestString(t *testing.T) {
	assert.Equal(t, `Navigate(url="x")`, action.Navigate{URL: "x"}.String())
	assert.Equal(t, `Click(target="#go")`, action.Click{Target: action.AtCSS("#go")}.String())
	assert.Equal(t, `Abort()`, action.Abort{}.String())
	assert.Equal(t, `Wait(duration=1.5s)`, action.Wait{Duration: 1500 * time.Millisecond}.String())
}
