// File: internal/mocks/mocks_test.go
package mocks_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webtraversal/api/schemas"
	"github.com/xkilldash9x/webtraversal/internal/browser"
	"github.com/xkilldash9x/webtraversal/internal/browser/jsexec"
	"github.com/xkilldash9x/webtraversal/internal/mocks"
)

const linkPage = `<html><head><title>Start</title></head><body>
<div id="menu"><a id="next" href="/next">Next</a><button>Go</button></div>
<iframe id="ads"></iframe>
</body></html>`

func newFake(t *testing.T) *mocks.FakeDriver {
	t.Helper()
	f := mocks.NewFakeDriver(map[string]string{
		"http://site.test/":     linkPage,
		"http://site.test/next": `<html><head><title>Next</title></head><body><p>done</p></body></html>`,
	})
	require.NoError(t, f.Navigate(context.Background(), "http://site.test/"))
	return f
}

func script(t *testing.T, name string) browser.Script {
	t.Helper()
	s, err := jsexec.Bundled(name)
	require.NoError(t, err)
	return s
}

func TestFakeDriver_ElementMetadataAssignsStableUIDs(t *testing.T) {
	ctx := context.Background()
	f := newFake(t)

	var first []map[string]any
	require.NoError(t, f.Execute(ctx, script(t, jsexec.ScriptElementMetadata), nil, &first))
	require.Len(t, first, 5) // body, div, a, button, iframe
	assert.Equal(t, "body", first[0]["tag"])
	assert.Equal(t, float64(0), first[0]["wtl_uid"])
	assert.Equal(t, float64(-1), first[0]["wtl_parent_uid"])
	assert.Equal(t, "a", first[2]["tag"])
	assert.Equal(t, float64(1), first[2]["wtl_parent_uid"])

	src, err := f.PageSource(ctx)
	require.NoError(t, err)
	assert.Contains(t, src, `wtl-uid="2"`)

	var second []map[string]any
	require.NoError(t, f.Execute(ctx, script(t, jsexec.ScriptElementMetadata), nil, &second))
	for i := range first {
		assert.Equal(t, first[i]["wtl_uid"], second[i]["wtl_uid"])
	}
}

func TestFakeDriver_ClickFollowsLinks(t *testing.T) {
	ctx := context.Background()
	f := newFake(t)

	var ok bool
	require.NoError(t, f.Execute(ctx, script(t, jsexec.ScriptClickElement), []any{"#next"}, &ok))
	assert.True(t, ok)
	u, err := f.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://site.test/next", u)
	title, err := f.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Next", title)

	require.NoError(t, f.Execute(ctx, script(t, jsexec.ScriptClickElement), []any{"#missing"}, &ok))
	assert.False(t, ok)
	msgs := f.ConsoleMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, browser.ConsoleSevere, msgs[0].Severity)
	assert.Empty(t, f.ConsoleMessages(), "console is drained")
}

func TestFakeDriver_Tabs(t *testing.T) {
	ctx := context.Background()
	f := newFake(t)
	first := f.CurrentHandle()

	require.NoError(t, f.OpenTab(ctx))
	handles, err := f.Handles(ctx)
	require.NoError(t, err)
	require.Len(t, handles, 2)
	assert.Equal(t, first, f.CurrentHandle(), "opening a tab keeps focus")

	require.NoError(t, f.SwitchTo(ctx, handles[1]))
	u, err := f.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "about:blank", u)

	require.NoError(t, f.CloseCurrent(ctx))
	_, err = f.CurrentURL(ctx)
	assert.ErrorIs(t, err, browser.ErrWindowClosed)
	assert.ErrorIs(t, f.SwitchTo(ctx, handles[1]), browser.ErrWindowClosed)
	require.NoError(t, f.SwitchTo(ctx, first))
	assert.Equal(t, "http://site.test/", f.URLOf(first))
}

func TestFakeDriver_FramesAndScreenshots(t *testing.T) {
	ctx := context.Background()
	f := newFake(t)

	var name string
	require.NoError(t, f.Execute(ctx, script(t, jsexec.ScriptFindIFrameName), []any{"ads"}, &name))
	assert.True(t, strings.HasPrefix(name, "wtl-frame-"))
	require.NoError(t, f.SwitchToFrame(ctx, name))
	assert.Equal(t, name, f.Frame())
	assert.ErrorIs(t, f.SwitchToFrame(ctx, "nope"), browser.ErrElementNotFound)

	f.SetViewport(40, 30)
	clip := schemas.Rect(0, 0, 40, 90)
	png, err := f.Screenshot(ctx, &clip)
	require.NoError(t, err)
	assert.NotEmpty(t, png)
	assert.Contains(t, f.Calls(), "screenshot 40x90")
}

func TestFakeDriver_ScriptOverride(t *testing.T) {
	ctx := context.Background()
	f := newFake(t)
	f.HandleScript(jsexec.ScriptIsPageLoaded, func([]any) (any, error) {
		return nil, browser.ErrJavascript
	})
	var loaded bool
	err := f.Execute(ctx, script(t, jsexec.ScriptIsPageLoaded), nil, &loaded)
	assert.ErrorIs(t, err, browser.ErrJavascript)
}
