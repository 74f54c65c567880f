// internal/view/view_test.go
package view_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webtraversal/internal/action"
	"github.com/xkilldash9x/webtraversal/internal/snapshot"
	"github.com/xkilldash9x/webtraversal/internal/view"
)

func TestView_Copy(t *testing.T) {
	snap, err := snapshot.New("<html><body></body></html>", nil, nil, nil, nil)
	require.NoError(t, err)
	v := view.New("tab", snap, action.Actions{action.Refresh{}})
	v.Tags.Add("login")
	v.Metadata["k"] = 1

	t.Run("shallow", func(t *testing.T) {
		c := v.Copy(false)
		assert.Same(t, snap, c.Snapshot)
		c.Metadata["shared"] = true
		assert.Equal(t, true, v.Metadata["shared"])
		delete(v.Metadata, "shared")
	})

	t.Run("no snapshot", func(t *testing.T) {
		c := v.Copy(true)
		assert.False(t, c.HasSnapshot())
		assert.Nil(t, c.Actions)
		assert.True(t, c.Tags.Has("login"), "tags survive")
		assert.Equal(t, 1, c.Metadata["k"], "metadata survives")
		assert.True(t, v.HasSnapshot(), "original is untouched")
	})

	t.Run("detached", func(t *testing.T) {
		c := v.Detached()
		c.Metadata["k"] = 2
		c.Tags.Add("extra")
		assert.Equal(t, 1, v.Metadata["k"])
		assert.False(t, v.Tags.Has("extra"))
	})
}

func TestView_ActionTrail(t *testing.T) {
	v := view.New("tab", nil, nil)
	assert.Nil(t, v.PreviousActions())
	_, ok := v.NextActions()
	assert.False(t, ok)

	v.Metadata[view.PreviousActionKey] = action.Actions{action.Navigate{URL: "a"}}
	v.Metadata[view.NextActionKey] = action.Actions{action.Refresh{}}

	assert.Equal(t, action.Actions{action.Navigate{URL: "a"}}, v.PreviousActions())
	next, ok := v.NextActions()
	assert.True(t, ok)
	assert.Len(t, next, 1)
}

func TestTags(t *testing.T) {
	tags := view.NewTags("b", "a")
	tags.Add("c", "a")
	assert.Equal(t, []string{"a", "b", "c"}, tags.Sorted())
	assert.False(t, tags.Has("d"))
}
