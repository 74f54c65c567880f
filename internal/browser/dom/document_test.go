// internal/browser/dom/document_test.go
package dom_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webtraversal/internal/browser/dom"
)

func TestDocument_Select(t *testing.T) {
	doc, err := dom.Parse(testHTML)
	require.NoError(t, err)

	uids := dom.UIDsOf(doc.Select("li"))
	assert.Equal(t, map[int]struct{}{7: {}, 8: {}}, uids)

	assert.Empty(t, doc.Select("[[invalid"), "invalid css matches nothing")
}

func TestDocument_SelectXPath(t *testing.T) {
	doc, err := dom.Parse(testHTML)
	require.NoError(t, err)

	nodes, err := doc.SelectXPath("//ul/li")
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	_, err = doc.SelectXPath("//ul[")
	assert.Error(t, err)
}

func TestDocument_Matches(t *testing.T) {
	doc, err := dom.Parse(testHTML)
	require.NoError(t, err)

	t.Run("css first", func(t *testing.T) {
		assert.Len(t, doc.Matches(dom.ByCSS("p")), 2)
	})
	t.Run("xpath fallback", func(t *testing.T) {
		nodes := doc.Matches(dom.Selector{CSS: "nothing-here", XPath: "//h1"})
		require.Len(t, nodes, 1)
		uid, ok := dom.UIDOf(nodes[0])
		require.True(t, ok)
		assert.Equal(t, 2, uid)
	})
	t.Run("catch-all xpath does not fall back", func(t *testing.T) {
		assert.Empty(t, doc.Matches(dom.ByCSS("nothing-here")))
	})
}

func TestDescendants(t *testing.T) {
	doc, err := dom.Parse(testHTML)
	require.NoError(t, err)
	div, ok := doc.NodeByUID(3)
	require.True(t, ok)

	uids := dom.UIDsOf(dom.Descendants(div))
	assert.Equal(t, map[int]struct{}{4: {}, 5: {}, 6: {}, 7: {}, 8: {}}, uids)
}

func TestDocument_Render(t *testing.T) {
	doc, err := dom.Parse(testHTML)
	require.NoError(t, err)
	out, err := doc.Render()
	require.NoError(t, err)
	assert.Contains(t, out, `wtl-uid="7"`)

	again, err := dom.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, doc.BuildSelector(8), again.BuildSelector(8))
}
