// internal/workflow/options.go
package workflow

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webtraversal/internal/browser"
	"github.com/xkilldash9x/webtraversal/internal/browser/cdp"
	"github.com/xkilldash9x/webtraversal/internal/classifier"
	"github.com/xkilldash9x/webtraversal/internal/config"
)

// DefaultName names the window and tab of single URL workflows.
const DefaultName = "tab"

// TabSpec is a tab to open and the URL it starts on. An empty URL leaves the
// tab blank.
type TabSpec struct {
	Name string
	URL  string
}

// WindowSpec is a browser window and its tabs, opened in order.
type WindowSpec struct {
	Name string
	Tabs []TabSpec
}

// SingleURL starts one window with one tab, both called DefaultName.
func SingleURL(url string) []WindowSpec {
	return TabURLs(TabSpec{Name: DefaultName, URL: url})
}

// TabURLs starts one window called DefaultName holding tabs.
func TabURLs(tabs ...TabSpec) []WindowSpec {
	return []WindowSpec{{Name: DefaultName, Tabs: tabs}}
}

// WindowFactory starts the browser backing a new window.
type WindowFactory func(ctx context.Context, name string, cfg *config.Config, logger *zap.Logger) (browser.Driver, error)

// LaunchChrome is the default WindowFactory: a Chrome instance driven over
// the DevTools protocol.
func LaunchChrome(ctx context.Context, name string, cfg *config.Config, logger *zap.Logger) (browser.Driver, error) {
	d, err := cdp.Launch(ctx, cfg.Browser, logger.With(zap.String("window", name)))
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Options configures a Workflow. URLs and Policy are required.
type Options struct {
	// URLs lists the windows and tabs to open. Tab names must be unique
	// across windows.
	URLs   []WindowSpec
	Policy Policy
	// Goal defaults to Forever.
	Goal        Goal
	Classifiers []classifier.Classifier
	Patches     []Patch
	// Output is where debug.save writes snapshots. Required when debug.save is set.
	Output string
	// Config defaults to config.NewDefaultConfig.
	Config *config.Config
	Logger *zap.Logger
	// NewWindow defaults to LaunchChrome.
	NewWindow WindowFactory
	// Input is read by WaitForUser. Defaults to os.Stdin.
	Input io.Reader
	// Version is recorded in snapshot metadata.
	Version string
}
