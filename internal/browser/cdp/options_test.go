// internal/browser/cdp/options_test.go
package cdp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/webtraversal/internal/config"
)

func TestAllocatorOptions(t *testing.T) {
	base := config.NewDefaultConfig().Browser
	baseCount := len(AllocatorOptions(config.BrowserConfig{Width: 1, Height: 1}))

	t.Run("headless adds flags", func(t *testing.T) {
		b := base
		b.Headless = true
		assert.Len(t, AllocatorOptions(b), baseCount+2)
		b.Headless = false
		assert.Len(t, AllocatorOptions(b), baseCount)
	})

	t.Run("user agent proxy and args", func(t *testing.T) {
		b := base
		b.Headless = false
		b.UserAgent = "wtl"
		b.Proxy = "socks5://127.0.0.1:9050"
		b.Args = []string{"--lang=en-US", "mute-audio"}
		assert.Len(t, AllocatorOptions(b), baseCount+4)
	})
}
