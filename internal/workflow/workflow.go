// File: internal/workflow/workflow.go
// Description: The traversal loop. Each iteration snapshots the open tabs,
// classifies their elements, asks the goal whether to stop and the policy what
// to do next, then executes the chosen actions.

package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webtraversal/internal/action"
	"github.com/xkilldash9x/webtraversal/internal/browser/jsexec"
	"github.com/xkilldash9x/webtraversal/internal/browser/scraper"
	"github.com/xkilldash9x/webtraversal/internal/browser/window"
	"github.com/xkilldash9x/webtraversal/internal/classifier"
	"github.com/xkilldash9x/webtraversal/internal/config"
	"github.com/xkilldash9x/webtraversal/internal/observability"
	"github.com/xkilldash9x/webtraversal/internal/view"
)

// Workflow drives one or more browser windows through the
// snapshot, classify, decide, act loop. It is not safe for concurrent use.
type Workflow struct {
	id          string
	cfg         *config.Config
	logger      *zap.Logger
	policy      Policy
	goal        Goal
	classifiers *classifier.Collection
	patches     *MonkeyPatches
	output      string
	newWindow   WindowFactory
	input       *lineReader
	version     string
	start       []WindowSpec

	windows       map[string]*window.Window
	windowOrder   []string
	currentTab    string
	currentWindow *window.Window
	tabs          []string

	loopIdx    int
	history    map[string][]*view.View
	metadata   map[string]any
	prevResult PolicyResult

	preload  []string
	postload []scraper.PostloadFunc
	hasQuit  bool
}

// New validates opts, opens every window and tab, and leaves the workflow
// ready to Run. The starting URLs are loaded by the first iteration.
func New(ctx context.Context, opts Options) (*Workflow, error) {
	wf, err := newWorkflow(opts)
	if err != nil {
		return nil, wrap("new", err)
	}
	if err := wf.reset(ctx); err != nil {
		_ = wf.Quit(ctx)
		return nil, wrap("new", err)
	}
	return wf, nil
}

func newWorkflow(opts Options) (*Workflow, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.Policy == nil {
		return nil, errors.New("workflow created without a policy")
	}
	if cfg.Debug.Save && opts.Output == "" {
		return nil, errors.New("debug.save requires an output path")
	}
	if err := validateURLs(opts.URLs); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = observability.GetLogger()
	}
	id := uuid.NewString()

	wf := &Workflow{
		id:          id,
		cfg:         cfg,
		logger:      logger.Named("workflow").With(zap.String("run_id", id)),
		policy:      opts.Policy,
		goal:        opts.Goal,
		classifiers: classifier.NewCollection(opts.Classifiers...),
		patches:     NewMonkeyPatches(opts.Patches...),
		output:      opts.Output,
		newWindow:   opts.NewWindow,
		version:     opts.Version,
		start:       slices.Clone(opts.URLs),
		windows:     map[string]*window.Window{},
		loopIdx:     -1,
		history:     map[string][]*view.View{},
		metadata:    map[string]any{},
	}
	if wf.goal == nil {
		wf.goal = Forever()
	}
	if wf.newWindow == nil {
		wf.newWindow = LaunchChrome
	}
	if opts.Input != nil {
		wf.input = newLineReader(opts.Input)
	} else {
		wf.input = newLineReader(os.Stdin)
	}
	return wf, nil
}

func validateURLs(specs []WindowSpec) error {
	if len(specs) == 0 {
		return errors.New("workflow created without starting URLs")
	}
	seen := map[string]struct{}{}
	for _, w := range specs {
		if len(w.Tabs) == 0 {
			return fmt.Errorf("window '%s' has no tabs", w.Name)
		}
		for _, t := range w.Tabs {
			if _, dup := seen[t.Name]; dup {
				return fmt.Errorf("tab name '%s' is used more than once", t.Name)
			}
			seen[t.Name] = struct{}{}
		}
	}
	return nil
}

// ID identifies this run in logs and output.
func (wf *Workflow) ID() string { return wf.id }

// Run iterates until the goal is reached, the policy is exhausted, every tab
// is closed or the configured timeout elapses. A timeout is logged and ends
// the run without an error.
func (wf *Workflow) Run(ctx context.Context) error {
	if wf.hasQuit {
		return wrap("run", ErrQuit)
	}
	if wf.classifiers.Len() > 0 {
		if err := wf.AddPreloadScript(ctx, jsexec.ScriptInterceptEventListeners); err != nil {
			return wrap("run", err)
		}
	}

	runCtx := ctx
	if wf.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, wf.cfg.Timeout)
		defer cancel()
	}

	for wf.Success() {
		stop, err := wf.runOnce(runCtx)
		if err != nil {
			if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				wf.logger.Error("Workflow run timed out.", zap.Duration("timeout", wf.cfg.Timeout))
				break
			}
			return wrap("run", err)
		}
		if stop {
			break
		}
	}
	wf.logger.Debug("Workflow run completed.", zap.Int("loop_idx", wf.loopIdx))
	return nil
}

// RunOnce performs a single iteration and reports whether the workflow should
// stop. Unlike Run it applies no timeout.
func (wf *Workflow) RunOnce(ctx context.Context) (bool, error) {
	if wf.hasQuit {
		return true, wrap("run_once", ErrQuit)
	}
	stop, err := wf.runOnce(ctx)
	return stop, wrap("run_once", err)
}

func (wf *Workflow) runOnce(ctx context.Context) (bool, error) {
	wf.refreshTabs()
	wf.loopIdx++

	views, err := wf.newViews(ctx)
	if err != nil {
		return false, err
	}

	res, err := wf.goal.Evaluate(ctx, wf, views)
	if err != nil {
		return false, fmt.Errorf("goal evaluation failed: %w", err)
	}
	reached := res.Reached()

	policyStopped := false
	if !reached {
		result, err := wf.policy.Decide(ctx, wf, views)
		switch {
		case errors.Is(err, ErrPolicyExhausted):
			wf.logger.Info("Policy exhausted, will not continue.")
			policyStopped = true
		case err != nil:
			return false, fmt.Errorf("policy failed: %w", err)
		default:
			if result, err = wf.normalize(result); err != nil {
				return false, err
			}
			wf.prevResult = result
			if err := wf.executePolicyResult(ctx, result); err != nil {
				return false, err
			}
		}
	}

	if wf.cfg.Debug.Save {
		if err := wf.saveLatest(); err != nil {
			return false, err
		}
	}

	if reached {
		return true, nil
	}

	if policyStopped {
		sweep := PolicyResult{}
		for _, tab := range wf.OpenTabs() {
			sweep.Set(tab, abortAction)
		}
		if err := wf.executePolicyResult(ctx, sweep); err != nil {
			return false, err
		}
	}

	if wf.cfg.Scraping.History && !wf.cfg.Scraping.FullHistory {
		for _, tab := range wf.OpenTabs() {
			h := wf.historyOf(tab)
			if last := h[len(h)-1]; last != nil {
				h[len(h)-1] = last.Copy(true)
			}
		}
	}
	return policyStopped, nil
}

func (wf *Workflow) saveLatest() error {
	for _, tab := range wf.tabs {
		v := wf.latestViewOf(tab)
		if !v.HasSnapshot() {
			continue
		}
		dir, err := wf.outputPathFor(tab)
		if err != nil {
			return err
		}
		if err := v.Snapshot.Save(dir); err != nil {
			return fmt.Errorf("failed to save snapshot of tab '%s': %w", tab, err)
		}
	}
	return nil
}

// normalize resolves AnyTab to the single tab.
func (wf *Workflow) normalize(r PolicyResult) (PolicyResult, error) {
	actions, ok := r[AnyTab]
	if !ok {
		return r, nil
	}
	if len(wf.tabs) != 1 {
		return nil, fmt.Errorf("policy result without a tab name needs a single tab workflow, have %d tabs", len(wf.tabs))
	}
	out := make(PolicyResult, len(r))
	for tab, as := range r {
		if tab != AnyTab {
			out[tab] = as
		}
	}
	out.Set(wf.tabs[0], actions...)
	return out, nil
}

// reset quits every window and reopens the starting windows and tabs. History
// is kept.
func (wf *Workflow) reset(ctx context.Context) error {
	if !wf.cfg.Scraping.History && wf.loopIdx != -1 {
		return fmt.Errorf("cannot reset with scraping.history disabled: %w", ErrInvalidRevert)
	}
	wf.loopIdx = -1
	wf.prevResult = nil

	for _, name := range wf.windowOrder {
		if err := wf.windows[name].Quit(ctx); err != nil {
			wf.logger.Warn("Failed to quit window during reset.", zap.String("window", name), zap.Error(err))
		}
	}
	clear(wf.windows)
	wf.windowOrder = nil
	wf.currentWindow = nil
	wf.currentTab = ""

	for _, spec := range wf.start {
		w, err := wf.CreateWindow(ctx, spec.Name)
		if err != nil {
			return err
		}
		for _, tab := range spec.Tabs {
			if err := w.CreateTab(ctx, tab.Name, tab.URL); err != nil {
				return err
			}
		}
	}
	wf.refreshTabs()
	return wf.SetTab(ctx, wf.tabs[0])
}

// ResetTo restarts the workflow and replays the recorded actions up to and
// including viewIndex, without consulting the policy. Views from viewIndex on
// are rebuilt and the loop index is rewound to match, so later output
// overwrites earlier output.
func (wf *Workflow) ResetTo(ctx context.Context, viewIndex int) error {
	return wrap("reset_to", wf.resetTo(ctx, viewIndex))
}

func (wf *Workflow) resetTo(ctx context.Context, viewIndex int) error {
	if !wf.cfg.Scraping.History {
		return fmt.Errorf("cannot revert with scraping.history disabled: %w", ErrInvalidRevert)
	}
	if viewIndex < 0 || viewIndex >= wf.loopIdx {
		return fmt.Errorf("cannot revert to view %d at iteration %d: %w", viewIndex, wf.loopIdx, ErrInvalidRevert)
	}
	if err := wf.reset(ctx); err != nil {
		return err
	}
	for _, tab := range wf.tabs {
		if h := wf.history[tab]; len(h) > viewIndex+1 {
			wf.history[tab] = h[:viewIndex+1]
		}
	}

	for i := 0; i <= viewIndex; i++ {
		wf.logger.Info("Replaying view.", zap.Int("index", i))
		if i > 0 {
			wf.loopIdx = i - 1
			replay := PolicyResult{}
			for _, tab := range wf.tabs {
				if recorded := wf.recordedActions(tab, i); recorded != nil {
					replay[tab] = recorded
				}
			}
			if err := wf.executePolicyResult(ctx, replay); err != nil {
				return fmt.Errorf("replay of view %d failed: %w", i, err)
			}
		}
		wf.loopIdx = i
		if _, err := wf.newViews(ctx); err != nil {
			return fmt.Errorf("replay of view %d failed: %w", i, err)
		}
	}
	return nil
}

// recordedActions returns the actions that led to view i of tab.
func (wf *Workflow) recordedActions(tab string, i int) action.Actions {
	h := wf.history[tab]
	if i < len(h) && h[i] != nil {
		if _, ok := h[i].Metadata[view.PreviousActionKey]; ok {
			return h[i].PreviousActions()
		}
	}
	if i-1 < len(h) && h[i-1] != nil {
		if as, ok := h[i-1].NextActions(); ok {
			return as
		}
	}
	return nil
}

// CreateWindow starts a new browser window. The preload scripts and postload
// callbacks registered so far are installed in it.
func (wf *Workflow) CreateWindow(ctx context.Context, name string) (*window.Window, error) {
	if _, exists := wf.windows[name]; exists {
		return nil, fmt.Errorf("window '%s' already exists", name)
	}
	driver, err := wf.newWindow(ctx, name, wf.cfg, wf.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start window '%s': %w", name, err)
	}
	for _, script := range wf.preload {
		s, err := jsexec.Bundled(script)
		if err != nil {
			return nil, err
		}
		if err := driver.AddScriptOnNewDocument(ctx, s.Source); err != nil {
			return nil, fmt.Errorf("failed to install preload script '%s': %w", script, err)
		}
	}
	w := window.New(name, driver, wf.cfg, wf.logger, wf.version)
	for _, fn := range wf.postload {
		w.Scraper().AddPostload(fn)
	}
	wf.windows[name] = w
	wf.windowOrder = append(wf.windowOrder, name)
	return w, nil
}

// AddPreloadScript installs a bundled script to run before any page script
// on every document, in current and future windows.
func (wf *Workflow) AddPreloadScript(ctx context.Context, name string) error {
	if slices.Contains(wf.preload, name) {
		return nil
	}
	s, err := jsexec.Bundled(name)
	if err != nil {
		return err
	}
	for _, wname := range wf.windowOrder {
		d, err := wf.windows[wname].Driver()
		if err != nil {
			continue
		}
		if err := d.AddScriptOnNewDocument(ctx, s.Source); err != nil {
			return fmt.Errorf("failed to install preload script '%s': %w", name, err)
		}
	}
	wf.preload = append(wf.preload, name)
	return nil
}

// AddPostloadCallback registers fn to run after every page load, in current
// and future windows.
func (wf *Workflow) AddPostloadCallback(fn scraper.PostloadFunc) {
	wf.postload = append(wf.postload, fn)
	for _, name := range wf.windowOrder {
		wf.windows[name].Scraper().AddPostload(fn)
	}
}

// SetTab focuses the named tab and its window.
func (wf *Workflow) SetTab(ctx context.Context, name string) error {
	var owner *window.Window
	for _, wname := range wf.windowOrder {
		if slices.Contains(wf.windows[wname].Tabs(), name) {
			owner = wf.windows[wname]
			break
		}
	}
	if owner == nil {
		return fmt.Errorf("no tab named '%s'", name)
	}
	if len(wf.tabs) > 1 && wf.currentTab != name {
		wf.logger.Info("Setting tab.", zap.String("tab", name))
	}
	if err := owner.SetTab(ctx, name); err != nil {
		return err
	}
	wf.currentTab = name
	wf.currentWindow = owner
	return nil
}

// Window returns the named window, or nil.
func (wf *Workflow) Window(name string) *window.Window { return wf.windows[name] }

// Quit releases every window. The workflow cannot be used afterwards.
func (wf *Workflow) Quit(ctx context.Context) error {
	wf.hasQuit = true
	wf.input.stop()
	var errs []error
	for _, name := range wf.windowOrder {
		errs = append(errs, wf.windows[name].Quit(ctx))
	}
	return errors.Join(errs...)
}

// Close quits unless debug.preserve_window asks to keep the browser open.
func (wf *Workflow) Close(ctx context.Context) error {
	if wf.cfg.Debug.PreserveWindow {
		return nil
	}
	return wf.Quit(ctx)
}

func (wf *Workflow) refreshTabs() {
	wf.tabs = nil
	for _, name := range wf.windowOrder {
		wf.tabs = append(wf.tabs, wf.windows[name].Tabs()...)
	}
}

// historyOf returns the history of tab, padding tabs created late with empty
// views so that every history spans the current loop index.
func (wf *Workflow) historyOf(tab string) []*view.View {
	h, ok := wf.history[tab]
	if !ok {
		for range wf.loopIdx + 1 {
			h = append(h, view.New(tab, nil, nil))
		}
		wf.history[tab] = h
	}
	return h
}

// store puts v at the current loop index of its tab's history.
func (wf *Workflow) store(v *view.View) {
	h := wf.historyOf(v.Name)
	if wf.loopIdx < len(h) {
		h[wf.loopIdx] = v
	} else {
		wf.history[v.Name] = append(h, v)
	}
}

func (wf *Workflow) latestViewOf(tab string) *view.View {
	h := wf.historyOf(tab)
	if wf.loopIdx < 0 || wf.loopIdx >= len(h) {
		return nil
	}
	return h[wf.loopIdx]
}

// LoopIndex is the index of the latest iteration, -1 before the first.
func (wf *Workflow) LoopIndex() int { return wf.loopIdx }

// Success reports whether any tab is still open.
func (wf *Workflow) Success() bool {
	for _, name := range wf.windowOrder {
		if len(wf.windows[name].OpenTabs()) > 0 {
			return true
		}
	}
	return false
}

// Tabs lists every tab name as of the start of the iteration.
func (wf *Workflow) Tabs() []string { return slices.Clone(wf.tabs) }

// OpenTabs lists the tabs not yet closed.
func (wf *Workflow) OpenTabs() []string {
	var out []string
	for _, name := range wf.windowOrder {
		out = append(out, wf.windows[name].OpenTabs()...)
	}
	return out
}

func (wf *Workflow) CurrentTab() string { return wf.currentTab }

// CurrentWindow returns the window owning the current tab.
func (wf *Workflow) CurrentWindow() *window.Window { return wf.currentWindow }

// History returns the views of tab by loop index. Entries are nil where
// scraping.history discarded them.
func (wf *Workflow) History(tab string) []*view.View {
	return slices.Clone(wf.historyOf(tab))
}

// LatestView returns the view of the current tab at the current loop index.
func (wf *Workflow) LatestView() *view.View { return wf.latestViewOf(wf.currentTab) }

// Metadata is scratch space shared by policies across iterations.
func (wf *Workflow) Metadata() map[string]any { return wf.metadata }

// Aborted reports whether the current tab has been closed.
func (wf *Workflow) Aborted() bool {
	return wf.currentWindow == nil || wf.currentWindow.IsClosed(wf.currentTab)
}

// JS returns the script wrapper of the current window.
func (wf *Workflow) JS() *jsexec.Wrapper { return wf.currentWindow.JS() }

// Scraper returns the scraper of the current window.
func (wf *Workflow) Scraper() *scraper.Scraper { return wf.currentWindow.Scraper() }

func (wf *Workflow) Config() *config.Config { return wf.cfg }

// Classifiers returns the registered classifiers, which may be started and
// stopped between iterations.
func (wf *Workflow) Classifiers() *classifier.Collection { return wf.classifiers }

// MonkeyPatches returns the registered patches.
func (wf *Workflow) MonkeyPatches() *MonkeyPatches { return wf.patches }

// FindActiveElements reports the uids of the interactable elements of the current tab.
func (wf *Workflow) FindActiveElements(ctx context.Context) ([]int, error) {
	return wf.JS().FindActiveElements(ctx)
}

// OutputPath is the directory for the current tab and iteration:
// <output>/<loop_idx>, with a /<tab> suffix in multi tab workflows.
func (wf *Workflow) OutputPath() (string, error) { return wf.outputPathFor(wf.currentTab) }

func (wf *Workflow) outputPathFor(tab string) (string, error) {
	if wf.output == "" {
		return "", errors.New("no output path was specified")
	}
	p := filepath.Join(wf.output, strconv.Itoa(wf.loopIdx))
	if len(wf.tabs) > 1 {
		p = filepath.Join(p, tab)
	}
	return p, nil
}

// PostProcessingOutputPath returns <output>/post, creating it. The workflow
// writes nothing there itself.
func (wf *Workflow) PostProcessingOutputPath() (string, error) {
	if wf.output == "" {
		return "", errors.New("no output path was specified")
	}
	p := filepath.Join(wf.output, "post")
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", fmt.Errorf("failed to create post processing directory: %w", err)
	}
	return p, nil
}
