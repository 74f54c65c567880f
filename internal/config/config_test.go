// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, time.Duration(0), cfg.Timeout)
	assert.True(t, cfg.Actions.Abort.Close)
	assert.Equal(t, 10, cfg.Scraping.Attempts)
	assert.Equal(t, 30*time.Second, cfg.Scraping.PageLoadTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Scraping.WaitAction)
	assert.True(t, cfg.Scraping.History)
	assert.False(t, cfg.Scraping.FullHistory)
	assert.False(t, cfg.Scraping.All)
	assert.Equal(t, "chrome", cfg.Browser.Browser)
	assert.Equal(t, 1920, cfg.Browser.Width)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "warning", cfg.JavaScript.Severe)
	assert.Equal(t, time.Second, cfg.Debug.LiveDelay)

	require.NoError(t, cfg.Validate(), "defaults must always validate")
}

func TestNewConfigFromViper_Overrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	require.NoError(t, ApplyOverrides(v, []string{
		"scraping.attempts=3",
		"scraping.wait_action=0.25",
		"timeout=2",
		"debug.save=True",
		"scraping.page_load_timeout=1m",
		"browser.useragent=wtl-test",
	}))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Scraping.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Scraping.WaitAction, "bare numbers are seconds")
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.True(t, cfg.Debug.Save)
	assert.Equal(t, time.Minute, cfg.Scraping.PageLoadTimeout)
	assert.Equal(t, "wtl-test", cfg.Browser.UserAgent)
}

func TestApplyOverrides_Malformed(t *testing.T) {
	v := viper.New()
	err := ApplyOverrides(v, []string{"no-equals-sign"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected key=value")

	err = ApplyOverrides(v, []string{"=value"})
	require.Error(t, err)
}

func TestParseOverrideValue(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{"True", true},
		{"false", false},
		{"42", 42},
		{"-7", -7},
		{"0.5", 0.5},
		{".5", 0.5},
		{"500ms", "500ms"},
		{"#FF00FF", "#FF00FF"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, parseOverrideValue(tt.raw))
		})
	}
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bad javascript level", func(c *Config) { c.JavaScript.Info = "verbose" }, "javascript.info"},
		{"empty javascript level is allowed", func(c *Config) { c.JavaScript.Severe = "" }, ""},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "timeout"},
		{"zero attempts", func(c *Config) { c.Scraping.Attempts = 0 }, "scraping.attempts"},
		{"zero width", func(c *Config) { c.Browser.Width = 0 }, "browser.width"},
		{"zero height", func(c *Config) { c.Browser.Height = 0 }, "browser.height"},
		{"negative live delay", func(c *Config) { c.Debug.LiveDelay = -1 }, "debug.live_delay"},
		{"unknown browser", func(c *Config) { c.Browser.Browser = "netscape" }, "browser.browser"},
		{"bad highlight color", func(c *Config) { c.Debug.ActionHighlightColor = "red" }, "action_highlight_color"},
		{"full history without history", func(c *Config) {
			c.Scraping.History = false
			c.Scraping.FullHistory = true
		}, "full_history"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewConfigFromViper_FailsFast(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("scraping.attempts", 0)

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestDebugConfig_HighlightColor(t *testing.T) {
	cfg := NewDefaultConfig()
	c := cfg.Debug.HighlightColor()
	assert.Equal(t, uint8(255), c.R)
	assert.Equal(t, uint8(0), c.G)
	assert.Equal(t, uint8(255), c.A)
}
