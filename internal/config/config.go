// File: internal/config/config.go
package config

import (
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/webtraversal/api/schemas"
)

// LogLevels is the vocabulary accepted by the javascript.* severity settings.
// An empty string silences that class of browser messages.
var LogLevels = []string{"", "debug", "info", "warning", "error", "critical"}

// Browsers lists the supported values of browser.browser.
var Browsers = []string{"chrome", "chromium"}

// Config holds the entire traversal configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Timeout    time.Duration    `mapstructure:"timeout" yaml:"timeout"`
	Actions    ActionsConfig    `mapstructure:"actions" yaml:"actions"`
	Scraping   ScrapingConfig   `mapstructure:"scraping" yaml:"scraping"`
	Scrolling  ScrollingConfig  `mapstructure:"scrolling" yaml:"scrolling"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	JavaScript JavaScriptConfig `mapstructure:"javascript" yaml:"javascript"`
	Debug      DebugConfig      `mapstructure:"debug" yaml:"debug"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ActionsConfig tunes the behavior of individual actions.
type ActionsConfig struct {
	Abort AbortConfig `mapstructure:"abort" yaml:"abort"`
}

// AbortConfig controls whether Abort physically closes the browser tab.
type AbortConfig struct {
	Close bool `mapstructure:"close" yaml:"close"`
}

// ScrapingConfig controls page loading, snapshotting and history retention.
type ScrapingConfig struct {
	DisableAnimations bool          `mapstructure:"disable_animations" yaml:"disable_animations"`
	Attempts          int           `mapstructure:"attempts" yaml:"attempts"`
	Prescroll         bool          `mapstructure:"prescroll" yaml:"prescroll"`
	PageLoadTimeout   time.Duration `mapstructure:"page_load_timeout" yaml:"page_load_timeout"`
	WaitLoading       time.Duration `mapstructure:"wait_loading" yaml:"wait_loading"`
	WaitScroll        time.Duration `mapstructure:"wait_scroll" yaml:"wait_scroll"`
	WaitAction        time.Duration `mapstructure:"wait_action" yaml:"wait_action"`
	SaveMHTML         bool          `mapstructure:"save_mhtml" yaml:"save_mhtml"`
	TempPath          string        `mapstructure:"temp_path" yaml:"temp_path"`
	MHTMLTimeout      time.Duration `mapstructure:"mhtml_timeout" yaml:"mhtml_timeout"`
	History           bool          `mapstructure:"history" yaml:"history"`
	FullHistory       bool          `mapstructure:"full_history" yaml:"full_history"`
	// All forces a rescrape of every open tab on every iteration.
	All bool `mapstructure:"all" yaml:"all"`
}

// ScrollingConfig bounds full page captures.
type ScrollingConfig struct {
	MaxPageHeight int `mapstructure:"max_page_height" yaml:"max_page_height"`
}

// BrowserConfig holds settings for the browser instance backing each window.
type BrowserConfig struct {
	Browser     string   `mapstructure:"browser" yaml:"browser"`
	UserAgent   string   `mapstructure:"useragent" yaml:"useragent"`
	Width       int      `mapstructure:"width" yaml:"width"`
	Height      int      `mapstructure:"height" yaml:"height"`
	Headless    bool     `mapstructure:"headless" yaml:"headless"`
	EnableMHTML bool     `mapstructure:"enable_mhtml" yaml:"enable_mhtml"`
	Proxy       string   `mapstructure:"proxy" yaml:"proxy"`
	PixelRatio  float64  `mapstructure:"pixelratio" yaml:"pixelratio"`
	Args        []string `mapstructure:"args" yaml:"args"`
	// RemoteURL attaches to an already running browser instead of launching one.
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`
}

// JavaScriptConfig maps browser console severities onto log levels.
type JavaScriptConfig struct {
	Info    string `mapstructure:"info" yaml:"info"`
	Warning string `mapstructure:"warning" yaml:"warning"`
	Severe  string `mapstructure:"severe" yaml:"severe"`
}

// DebugConfig holds developer aids: live highlighting, screenshots and persisted output.
type DebugConfig struct {
	Autoscroll            bool          `mapstructure:"autoscroll" yaml:"autoscroll"`
	DefaultCanvasViewport bool          `mapstructure:"default_canvas_viewport" yaml:"default_canvas_viewport"`
	Live                  bool          `mapstructure:"live" yaml:"live"`
	LiveDelay             time.Duration `mapstructure:"live_delay" yaml:"live_delay"`
	LiveAnnotation        bool          `mapstructure:"live_annotation" yaml:"live_annotation"`
	Screenshots           bool          `mapstructure:"screenshots" yaml:"screenshots"`
	Save                  bool          `mapstructure:"save" yaml:"save"`
	PreserveWindow        bool          `mapstructure:"preserve_window" yaml:"preserve_window"`
	ActionHighlightColor  string        `mapstructure:"action_highlight_color" yaml:"action_highlight_color"`
}

// HighlightColor parses debug.action_highlight_color. Validate guarantees it parses.
func (d DebugConfig) HighlightColor() schemas.Color {
	c, err := schemas.ParseColor(d.ActionHighlightColor)
	if err != nil {
		return schemas.RGB(255, 0, 0)
	}
	return c
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return cfg
}

// SetDefaults initializes default values for every recognized key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "wtl")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	v.SetDefault("timeout", "0s")

	// -- Actions --
	v.SetDefault("actions.abort.close", true)

	// -- Scraping --
	v.SetDefault("scraping.disable_animations", true)
	v.SetDefault("scraping.attempts", 10)
	v.SetDefault("scraping.prescroll", false)
	v.SetDefault("scraping.page_load_timeout", "30s")
	v.SetDefault("scraping.wait_loading", "500ms")
	v.SetDefault("scraping.wait_scroll", "200ms")
	v.SetDefault("scraping.wait_action", "500ms")
	v.SetDefault("scraping.save_mhtml", false)
	v.SetDefault("scraping.temp_path", "")
	v.SetDefault("scraping.mhtml_timeout", "10s")
	v.SetDefault("scraping.history", true)
	v.SetDefault("scraping.full_history", false)
	v.SetDefault("scraping.all", false)

	// -- Scrolling --
	v.SetDefault("scrolling.max_page_height", 10000)

	// -- Browser --
	v.SetDefault("browser.browser", "chrome")
	v.SetDefault("browser.useragent", "")
	v.SetDefault("browser.width", 1920)
	v.SetDefault("browser.height", 1080)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.enable_mhtml", false)
	v.SetDefault("browser.proxy", "")
	v.SetDefault("browser.pixelratio", 0.0)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.remote_url", "")

	// -- JavaScript --
	v.SetDefault("javascript.info", "debug")
	v.SetDefault("javascript.warning", "info")
	v.SetDefault("javascript.severe", "warning")

	// -- Debug --
	v.SetDefault("debug.autoscroll", false)
	v.SetDefault("debug.default_canvas_viewport", false)
	v.SetDefault("debug.live", false)
	v.SetDefault("debug.live_delay", "1s")
	v.SetDefault("debug.live_annotation", false)
	v.SetDefault("debug.screenshots", false)
	v.SetDefault("debug.save", false)
	v.SetDefault("debug.preserve_window", false)
	v.SetDefault("debug.action_highlight_color", "#FF0000")
}

// NewConfigFromViper creates a new configuration instance from a viper object
// and validates it. Configuration errors are reported before any browser starts.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	cfg, err := decode(v)
	if err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// secondsToDurationHook lets numeric values stand for seconds, so that
// "scraping.wait_action=0.5" and "wait_action: 0.5s" mean the same thing.
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != durationType {
			return data, nil
		}
		switch n := data.(type) {
		case int:
			return time.Duration(n) * time.Second, nil
		case int64:
			return time.Duration(n) * time.Second, nil
		case float64:
			return time.Duration(n * float64(time.Second)), nil
		case float32:
			return time.Duration(float64(n) * float64(time.Second)), nil
		}
		return data, nil
	}
}

var (
	intPattern   = regexp.MustCompile(`^[-+]?[0-9]+$`)
	floatPattern = regexp.MustCompile(`^[-+]?[0-9]*\.?[0-9]+$`)
)

// ApplyOverrides applies dotted "key=value" pairs on top of v. Values are typed
// the same way a hand written config file would be: booleans, integers and
// floats are recognized, anything else is kept as a string.
func ApplyOverrides(v *viper.Viper, overrides []string) error {
	for _, o := range overrides {
		key, raw, ok := strings.Cut(o, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return fmt.Errorf("malformed override %q: expected key=value", o)
		}
		v.Set(strings.TrimSpace(key), parseOverrideValue(raw))
	}
	return nil
}

func parseOverrideValue(raw string) any {
	switch {
	case strings.EqualFold(raw, "true"):
		return true
	case strings.EqualFold(raw, "false"):
		return false
	case intPattern.MatchString(raw):
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	case floatPattern.MatchString(raw):
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	return raw
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	for key, level := range map[string]string{
		"javascript.info":    c.JavaScript.Info,
		"javascript.warning": c.JavaScript.Warning,
		"javascript.severe":  c.JavaScript.Severe,
	} {
		if !slices.Contains(LogLevels, level) {
			return fmt.Errorf("%s must be one of %q, got %q", key, LogLevels, level)
		}
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.Scraping.Attempts < 1 {
		return fmt.Errorf("scraping.attempts must be at least 1")
	}
	if c.Scraping.PageLoadTimeout < 0 {
		return fmt.Errorf("scraping.page_load_timeout must not be negative")
	}
	if c.Scraping.FullHistory && !c.Scraping.History {
		return fmt.Errorf("scraping.full_history requires scraping.history")
	}
	if c.Scrolling.MaxPageHeight < 0 {
		return fmt.Errorf("scrolling.max_page_height must not be negative")
	}
	if c.Browser.Width < 1 || c.Browser.Height < 1 {
		return fmt.Errorf("browser.width and browser.height must be at least 1")
	}
	if !slices.Contains(Browsers, c.Browser.Browser) {
		return fmt.Errorf("browser.browser must be one of %q, got %q", Browsers, c.Browser.Browser)
	}
	if c.Debug.LiveDelay < 0 {
		return fmt.Errorf("debug.live_delay must not be negative")
	}
	if _, err := schemas.ParseColor(c.Debug.ActionHighlightColor); err != nil {
		return fmt.Errorf("debug.action_highlight_color: %w", err)
	}
	return nil
}
