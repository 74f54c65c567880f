// internal/browser/cdp/driver.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	cdptypes "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webtraversal/api/schemas"
	"github.com/xkilldash9x/webtraversal/internal/browser"
	"github.com/xkilldash9x/webtraversal/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const isolatedWorldName = "wtl"

type tab struct {
	ctx context.Context
	// cancel is nil for the first tab, whose context owns the browser.
	cancel context.CancelFunc
}

// Driver controls a Chrome instance over the DevTools protocol.
type Driver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu       sync.Mutex
	tabs     map[string]*tab
	order    []string
	current  string
	frameCtx runtime.ExecutionContextID
	preload  []string
	console  []browser.ConsoleMessage
	dialog   string
}

var _ browser.Driver = (*Driver)(nil)

// Launch starts (or, with browser.remote_url, attaches to) a browser. Its
// first tab becomes the current tab.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{
		cfg:    cfg,
		logger: logger.Named("cdp"),
		tabs:   map[string]*tab{},
	}

	// The browser must outlive ctx, which only bounds the launch.
	var allocCtx context.Context
	if cfg.RemoteURL != "" {
		allocCtx, d.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
	} else {
		allocCtx, d.allocCancel = chromedp.NewExecAllocator(context.Background(), AllocatorOptions(cfg)...)
	}
	d.browserCtx, d.browserCancel = chromedp.NewContext(allocCtx)

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(d.browserCtx) }()
	select {
	case err := <-started:
		if err != nil {
			d.shutdown()
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
	case <-ctx.Done():
		d.shutdown()
		return nil, ctx.Err()
	}

	handle := string(chromedp.FromContext(d.browserCtx).Target.TargetID)
	if err := d.attach(ctx, handle, &tab{ctx: d.browserCtx}); err != nil {
		d.shutdown()
		return nil, err
	}
	d.current = handle
	d.logger.Info("Browser started.", zap.String("browser", cfg.Browser), zap.Bool("headless", cfg.Headless))
	return d, nil
}

func (d *Driver) shutdown() {
	if d.browserCancel != nil {
		d.browserCancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
}

// attach registers a tab, its event listener, the preload scripts and the
// device metrics override.
func (d *Driver) attach(ctx context.Context, handle string, t *tab) error {
	chromedp.ListenTarget(t.ctx, d.listener(t.ctx))

	d.mu.Lock()
	d.tabs[handle] = t
	d.order = append(d.order, handle)
	preload := slices.Clone(d.preload)
	d.mu.Unlock()

	actions := make([]chromedp.Action, 0, len(preload)+1)
	if d.cfg.PixelRatio > 0 {
		actions = append(actions, emulation.SetDeviceMetricsOverride(int64(d.cfg.Width), int64(d.cfg.Height), d.cfg.PixelRatio, false))
	}
	for _, src := range preload {
		actions = append(actions, addScript(src))
	}
	return d.runOn(ctx, t, actions...)
}

func addScript(src string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if _, err := page.AddScriptToEvaluateOnNewDocument(src).Do(ctx); err != nil {
			return fmt.Errorf("failed to install preload script: %w", err)
		}
		return nil
	})
}

// listener captures console output and dismisses dialogs, which would
// otherwise block every later command on the tab.
func (d *Driver) listener(tabCtx context.Context) func(ev any) {
	return func(ev any) {
		switch e := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			d.pushConsole(consoleSeverity(string(e.Type)), consoleText(e.Args))
		case *cdplog.EventEntryAdded:
			if e.Entry != nil {
				d.pushConsole(consoleSeverity(string(e.Entry.Level)), e.Entry.Text)
			}
		case *runtime.EventExceptionThrown:
			if e.ExceptionDetails != nil {
				d.pushConsole(browser.ConsoleSevere, exceptionText(e.ExceptionDetails))
			}
		case *page.EventJavascriptDialogOpening:
			d.mu.Lock()
			d.dialog = string(e.Type) + ": " + e.Message
			d.mu.Unlock()
			go func() {
				_ = chromedp.Run(tabCtx, page.HandleJavaScriptDialog(false))
			}()
		}
	}
}

func consoleSeverity(level string) string {
	switch level {
	case "error", "assert":
		return browser.ConsoleSevere
	case "warning":
		return browser.ConsoleWarning
	}
	return browser.ConsoleInfo
}

func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		var val any
		switch {
		case len(arg.Value) > 0 && json.Unmarshal(arg.Value, &val) == nil:
			parts = append(parts, fmt.Sprint(val))
		case arg.Description != "":
			parts = append(parts, arg.Description)
		default:
			parts = append(parts, "["+string(arg.Type)+"]")
		}
	}
	return strings.Join(parts, " ")
}

func exceptionText(e *runtime.ExceptionDetails) string {
	if e.Exception != nil && e.Exception.Description != "" {
		return e.Exception.Description
	}
	return e.Text
}

func (d *Driver) pushConsole(severity, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.console = append(d.console, browser.ConsoleMessage{Severity: severity, Text: text})
}

func (d *Driver) currentTab() (*tab, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tabs[d.current]
	if !ok {
		return nil, fmt.Errorf("%w: no current tab", browser.ErrWindowClosed)
	}
	return t, nil
}

func (d *Driver) runOn(ctx context.Context, t *tab, actions ...chromedp.Action) error {
	if len(actions) == 0 {
		return nil
	}
	runCtx, cancel := combineContext(t.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %w", browser.ErrWindowClosed, err)
		}
		return fmt.Errorf("%w: %w", browser.ErrCommandDispatch, err)
	}
	return nil
}

// run executes actions on the current tab with ctx's deadline.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	t, err := d.currentTab()
	if err != nil {
		return err
	}
	return d.runOn(ctx, t, actions...)
}

func (d *Driver) Name() string { return d.cfg.Browser }

func (d *Driver) Handles(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.order), nil
}

func (d *Driver) CurrentHandle() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// OpenTab opens a blank tab in the same browser.
func (d *Driver) OpenTab(ctx context.Context) error {
	tabCtx, cancel := chromedp.NewContext(d.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return fmt.Errorf("%w: failed to open tab: %w", browser.ErrCommandDispatch, err)
	}
	handle := string(chromedp.FromContext(tabCtx).Target.TargetID)
	return d.attach(ctx, handle, &tab{ctx: tabCtx, cancel: cancel})
}

func (d *Driver) SwitchTo(ctx context.Context, handle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tabs[handle]; !ok {
		return fmt.Errorf("%w: unknown tab %q", browser.ErrWindowClosed, handle)
	}
	d.current = handle
	d.frameCtx = 0
	return nil
}

// CloseCurrent closes the current tab's page. The first tab's context is
// kept alive because canceling it would end the browser.
func (d *Driver) CloseCurrent(ctx context.Context) error {
	t, err := d.currentTab()
	if err != nil {
		return err
	}
	closeErr := d.runOn(ctx, t, page.Close())
	if t.cancel != nil {
		t.cancel()
	}
	d.mu.Lock()
	delete(d.tabs, d.current)
	d.order = slices.DeleteFunc(d.order, func(h string) bool { return h == d.current })
	d.current = ""
	d.frameCtx = 0
	d.mu.Unlock()
	return closeErr
}

// Quit closes the browser. The shutdown is given a few seconds even if ctx
// has already expired.
func (d *Driver) Quit(ctx context.Context) error {
	quitCtx, cancel := context.WithTimeout(detach(ctx), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(d.browserCtx) }()
	var err error
	select {
	case err = <-done:
	case <-quitCtx.Done():
		err = quitCtx.Err()
	}
	d.shutdown()

	d.mu.Lock()
	d.tabs = map[string]*tab{}
	d.order = nil
	d.current = ""
	d.mu.Unlock()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *Driver) Reload(ctx context.Context) error {
	return d.run(ctx, chromedp.Reload())
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := d.run(ctx, chromedp.Location(&u))
	return u, err
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	var title string
	err := d.run(ctx, chromedp.Title(&title))
	return title, err
}

func (d *Driver) PageSource(ctx context.Context) (string, error) {
	var src string
	err := d.Execute(ctx, browser.Script{Name: "page_source", Source: "return document.documentElement.outerHTML;"}, nil, &src)
	return src, err
}

// Execute wraps the script in a function applied to the JSON encoded
// arguments and evaluates it in the current tab, or the current frame's
// isolated world.
func (d *Driver) Execute(ctx context.Context, script browser.Script, args []any, out any) error {
	if args == nil {
		args = []any{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode arguments of %s: %w", script.Name, err)
	}
	expr := "(function(){\n" + script.Source + "\n}).apply(null, " + string(encoded) + ")"

	d.mu.Lock()
	frame := d.frameCtx
	d.mu.Unlock()

	var (
		res *runtime.RemoteObject
		exc *runtime.ExceptionDetails
	)
	err = d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		p := runtime.Evaluate(expr).WithReturnByValue(true).WithAwaitPromise(true)
		if frame != 0 {
			p = p.WithContextID(frame)
		}
		var err error
		res, exc, err = p.Do(ctx)
		return err
	}))

	if msg := d.takeDialog(); msg != "" {
		return fmt.Errorf("%w: %s", browser.ErrUnexpectedAlert, msg)
	}
	if err != nil {
		return err
	}
	if exc != nil {
		return fmt.Errorf("%w: %s: %s", browser.ErrJavascript, script.Name, exceptionText(exc))
	}
	if out == nil || res == nil || res.Type == runtime.TypeUndefined || len(res.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Value, out); err != nil {
		return fmt.Errorf("failed to decode result of %s: %w", script.Name, err)
	}
	return nil
}

func (d *Driver) takeDialog() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	msg := d.dialog
	d.dialog = ""
	return msg
}

// AddScriptOnNewDocument installs source in every open tab and in every tab
// opened later.
func (d *Driver) AddScriptOnNewDocument(ctx context.Context, source string) error {
	d.mu.Lock()
	d.preload = append(d.preload, source)
	tabs := make([]*tab, 0, len(d.tabs))
	for _, h := range d.order {
		tabs = append(tabs, d.tabs[h])
	}
	d.mu.Unlock()

	for _, t := range tabs {
		if err := d.runOn(ctx, t, addScript(source)); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) ConsoleMessages() []browser.ConsoleMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	msgs := d.console
	d.console = nil
	return msgs
}

func (d *Driver) Screenshot(ctx context.Context, clip *schemas.Rectangle) ([]byte, error) {
	var buf []byte
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		p := page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng)
		if clip != nil {
			p = p.WithClip(&page.Viewport{
				X:      clip.X(),
				Y:      clip.Y(),
				Width:  clip.Width(),
				Height: clip.Height(),
				Scale:  1,
			}).WithCaptureBeyondViewport(true)
		}
		var err error
		buf, err = p.Do(ctx)
		return err
	}))
	return buf, err
}

func (d *Driver) MHTML(ctx context.Context) ([]byte, error) {
	var data string
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		data, err = page.CaptureSnapshot().WithFormat(page.CaptureSnapshotFormatMhtml).Do(ctx)
		return err
	}))
	return []byte(data), err
}

// SwitchToFrame evaluates later scripts in an isolated world of the named
// iframe. The isolated world shares the frame's DOM but not its globals.
func (d *Driver) SwitchToFrame(ctx context.Context, name string) error {
	var id runtime.ExecutionContextID
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return err
		}
		frame := findFrame(tree, name)
		if frame == nil {
			return fmt.Errorf("%w: no frame named %q", browser.ErrElementNotFound, name)
		}
		id, err = page.CreateIsolatedWorld(frame.ID).WithWorldName(isolatedWorldName).Do(ctx)
		return err
	}))
	if err != nil {
		if errors.Is(err, browser.ErrElementNotFound) {
			return fmt.Errorf("%w: no frame named %q", browser.ErrElementNotFound, name)
		}
		return err
	}
	d.mu.Lock()
	d.frameCtx = id
	d.mu.Unlock()
	return nil
}

func findFrame(tree *page.FrameTree, name string) *cdptypes.Frame {
	if tree == nil {
		return nil
	}
	for _, child := range tree.ChildFrames {
		if child.Frame != nil && child.Frame.Name == name {
			return child.Frame
		}
		if f := findFrame(child, name); f != nil {
			return f
		}
	}
	return nil
}

func (d *Driver) SwitchToDefault(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frameCtx = 0
	return nil
}

func (d *Driver) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	var raw []*network.Cookie
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	cookies := make([]browser.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, browser.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return cookies, nil
}

// SetCookies replaces every browser cookie with cookies.
func (d *Driver) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.ClearBrowserCookies().Do(ctx); err != nil {
			return err
		}
		for _, c := range cookies {
			p := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithHTTPOnly(c.HTTPOnly).
				WithSecure(c.Secure)
			if c.Expires > 0 {
				expires := cdptypes.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				p = p.WithExpires(&expires)
			}
			if err := p.Do(ctx); err != nil {
				return fmt.Errorf("failed to set cookie %q: %w", c.Name, err)
			}
		}
		return nil
	}))
}
