// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webtraversal/internal/browser"
	"github.com/xkilldash9x/webtraversal/internal/config"
	"github.com/xkilldash9x/webtraversal/internal/mocks"
	"github.com/xkilldash9x/webtraversal/internal/observability"
	"github.com/xkilldash9x/webtraversal/internal/workflow"
)

const testPage = `<html><head><title>Start</title></head><body>
<a href="/next">Next</a><button>Go</button>
</body></html>`

// fastFlags keeps traversals from waiting on the fake browser.
var fastFlags = []string{
	"--set", "logger.level=error",
	"--set", "scraping.wait_loading=0",
	"--set", "scraping.wait_action=0",
	"--set", "scraping.wait_scroll=0",
	"--set", "scraping.page_load_timeout=1s",
}

// useFakeBrowser routes window creation to FakeDrivers and returns the
// drivers by window name.
func useFakeBrowser(t *testing.T) map[string]*mocks.FakeDriver {
	t.Helper()
	drivers := map[string]*mocks.FakeDriver{}
	newWindow = func(_ context.Context, name string, _ *config.Config, _ *zap.Logger) (browser.Driver, error) {
		d := mocks.NewFakeDriver(map[string]string{
			"http://site.test/":     testPage,
			"http://site.test/next": `<html><head><title>Next</title></head><body><p>end</p></body></html>`,
		})
		drivers[name] = d
		return d, nil
	}
	observability.ResetForTest()
	t.Cleanup(func() {
		newWindow = workflow.LaunchChrome
		observability.ResetForTest()
	})
	return drivers
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestRootCmd_NoArgs(t *testing.T) {
	out, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "webtraversal drives browsers")
}

func TestRunCmd_Dummy(t *testing.T) {
	drivers := useFakeBrowser(t)

	args := append([]string{"run", "http://site.test/", "--steps", "2", "--policy", "dummy"}, fastFlags...)
	out, err := execute(t, args...)
	require.NoError(t, err)

	assert.Contains(t, out, "finished after 3 iterations, 1 of 1 tabs still open")
	require.Contains(t, drivers, workflow.DefaultName)
	assert.Equal(t, []string{"navigate http://site.test/"}, drivers[workflow.DefaultName].CallsWithPrefix("navigate "))
	assert.NotEmpty(t, drivers[workflow.DefaultName].CallsWithPrefix("quit"), "the browser is closed after the run")
}

func TestRunCmd_RandomOnTabs(t *testing.T) {
	drivers := useFakeBrowser(t)

	args := append([]string{"run", "http://site.test/", "http://site.test/", "--tabs", "--steps", "1", "--seed", "42"}, fastFlags...)
	out, err := execute(t, args...)
	require.NoError(t, err)

	assert.Contains(t, out, "finished after 2 iterations, 2 of 2 tabs still open")
	require.Len(t, drivers, 1)
	assert.Len(t, drivers[workflow.DefaultName].CallsWithPrefix("script click_element "), 2)
}

func TestRunCmd_SavesSnapshots(t *testing.T) {
	useFakeBrowser(t)
	dir := t.TempDir()

	args := append([]string{"run", "http://site.test/", "--steps", "1", "--policy", "dummy",
		"--output", dir, "--set", "debug.save=true"}, fastFlags...)
	args = append(args, "--set", "logger.level=info")
	_, err := execute(t, args...)
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "0"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
	assert.FileExists(t, filepath.Join(dir, logFileName), "the run log is kept next to the snapshots")
}

func TestRunCmd_Errors(t *testing.T) {
	useFakeBrowser(t)

	_, err := execute(t, "run")
	assert.Error(t, err, "at least one URL is required")

	_, err = execute(t, append([]string{"run", "http://site.test/", "--policy", "greedy"}, fastFlags...)...)
	assert.ErrorContains(t, err, "unknown policy")

	_, err = execute(t, append([]string{"run", "http://site.test/", "--steps", "-1"}, fastFlags...)...)
	assert.ErrorContains(t, err, "must not be negative")

	_, err = execute(t, "run", "http://site.test/", "--set", "no-equals-sign")
	assert.ErrorContains(t, err, "malformed override")

	_, err = execute(t, "run", "http://site.test/", "--set", "scraping.attempts=0")
	assert.ErrorContains(t, err, "scraping.attempts")

	_, err = execute(t, "run", "http://site.test/", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "error reading config file")
}

func TestRunCmd_ConfigFile(t *testing.T) {
	useFakeBrowser(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scraping:\n  attempts: 0\n"), 0o600))

	_, err := execute(t, "run", "http://site.test/", "--config", path)
	assert.ErrorContains(t, err, "scraping.attempts", "values from the file are validated")
}

func TestStartURLs(t *testing.T) {
	single := startURLs([]string{"a.test"}, false)
	assert.Equal(t, workflow.SingleURL("a.test"), single)

	tabs := startURLs([]string{"a.test", "b.test"}, true)
	require.Len(t, tabs, 1)
	assert.Equal(t, []workflow.TabSpec{{Name: "tab1", URL: "a.test"}, {Name: "tab2", URL: "b.test"}}, tabs[0].Tabs)

	windows := startURLs([]string{"a.test", "b.test"}, false)
	require.Len(t, windows, 2)
	assert.Equal(t, "window2", windows[1].Name)
	assert.Equal(t, []workflow.TabSpec{{Name: "tab2", URL: "b.test"}}, windows[1].Tabs)
}
