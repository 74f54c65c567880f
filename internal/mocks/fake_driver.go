// File: internal/mocks/fake_driver.go
package mocks

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/webtraversal/api/schemas"
	"github.com/xkilldash9x/webtraversal/internal/browser"
	"github.com/xkilldash9x/webtraversal/internal/browser/jsexec"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BlankPage is served for URLs the FakeDriver has no page for.
const BlankPage = "<html><head><title></title></head><body></body></html>"

// Layout of fake pages: every element is a full width row of this height,
// stacked in document order.
const fakeRowHeight = 20

// ScriptFunc overrides the FakeDriver's handling of a named script.
type ScriptFunc func(args []any) (any, error)

type fakeTab struct {
	url     string
	doc     *goquery.Document
	scrollY float64
}

// FakeDriver is an in-memory browser.Driver serving static HTML. It
// understands the bundled scripts well enough to drive full traversals:
// element metadata is derived from the parsed page, clicking a link
// navigates and drawing calls are recorded.
type FakeDriver struct {
	mu sync.Mutex

	pages   map[string]string
	scripts map[string]ScriptFunc
	width   int
	height  int

	tabs    map[string]*fakeTab
	order   []string
	current string
	nextTab int
	frame   string

	console []browser.ConsoleMessage
	preload []string
	calls   []string
	cookies []browser.Cookie
}

var _ browser.Driver = (*FakeDriver)(nil)

// NewFakeDriver creates a driver with a single blank tab. pages maps URLs to
// the HTML served when they are loaded.
func NewFakeDriver(pages map[string]string) *FakeDriver {
	f := &FakeDriver{
		pages:   map[string]string{},
		scripts: map[string]ScriptFunc{},
		width:   800,
		height:  600,
		tabs:    map[string]*fakeTab{},
	}
	for u, p := range pages {
		f.pages[u] = p
	}
	f.openTab()
	f.current = f.order[0]
	return f
}

// SetViewport changes the simulated viewport size.
func (f *FakeDriver) SetViewport(width, height int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.width, f.height = width, height
}

// SetPage registers or replaces the HTML served for u.
func (f *FakeDriver) SetPage(u, page string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[u] = page
}

// HandleScript overrides the handling of the named script.
func (f *FakeDriver) HandleScript(name string, fn ScriptFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[name] = fn
}

// PushConsole queues a console message for the next ConsoleMessages call.
func (f *FakeDriver) PushConsole(severity, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.console = append(f.console, browser.ConsoleMessage{Severity: severity, Text: text})
}

// Calls returns the commands received so far, e.g. "navigate http://a",
// "script click_element #go" or "switch tab-1".
func (f *FakeDriver) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallsWithPrefix filters Calls.
func (f *FakeDriver) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// PreloadScripts returns the sources installed with AddScriptOnNewDocument.
func (f *FakeDriver) PreloadScripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.preload)
}

// URLOf returns the URL loaded in the tab with the given handle.
func (f *FakeDriver) URLOf(handle string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tabs[handle]; ok {
		return t.url
	}
	return ""
}

func (f *FakeDriver) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *FakeDriver) openTab() {
	handle := "tab-" + strconv.Itoa(f.nextTab)
	f.nextTab++
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(BlankPage))
	f.tabs[handle] = &fakeTab{url: "about:blank", doc: doc}
	f.order = append(f.order, handle)
}

func (f *FakeDriver) tab() (*fakeTab, error) {
	t, ok := f.tabs[f.current]
	if !ok {
		return nil, fmt.Errorf("%w: no current tab", browser.ErrWindowClosed)
	}
	return t, nil
}

func (f *FakeDriver) Name() string { return "fake" }

func (f *FakeDriver) Handles(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.order), nil
}

func (f *FakeDriver) CurrentHandle() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *FakeDriver) OpenTab(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openTab()
	f.record("open %s", f.order[len(f.order)-1])
	return nil
}

func (f *FakeDriver) SwitchTo(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tabs[handle]; !ok {
		return fmt.Errorf("%w: unknown handle %q", browser.ErrWindowClosed, handle)
	}
	f.current = handle
	f.frame = ""
	f.record("switch %s", handle)
	return nil
}

func (f *FakeDriver) CloseCurrent(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.tab(); err != nil {
		return err
	}
	f.record("close %s", f.current)
	delete(f.tabs, f.current)
	f.order = slices.DeleteFunc(f.order, func(h string) bool { return h == f.current })
	f.current = ""
	return nil
}

func (f *FakeDriver) Quit(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("quit")
	f.tabs = map[string]*fakeTab{}
	f.order = nil
	f.current = ""
	return nil
}

func (f *FakeDriver) load(t *fakeTab, u string) error {
	page, ok := f.pages[u]
	if !ok {
		page = BlankPage
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return err
	}
	t.url, t.doc, t.scrollY = u, doc, 0
	return nil
}

func (f *FakeDriver) Navigate(ctx context.Context, u string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.tab()
	if err != nil {
		return err
	}
	f.record("navigate %s", u)
	return f.load(t, u)
}

func (f *FakeDriver) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.tab()
	if err != nil {
		return err
	}
	f.record("reload %s", t.url)
	return f.load(t, t.url)
}

func (f *FakeDriver) CurrentURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.tab()
	if err != nil {
		return "", err
	}
	return t.url, nil
}

func (f *FakeDriver) Title(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.tab()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(t.doc.Find("title").First().Text()), nil
}

func (f *FakeDriver) PageSource(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.tab()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, t.doc.Nodes[0]); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Execute dispatches on the script name. Results are round tripped through
// JSON like a real driver's, so numbers decode as float64 into maps.
func (f *FakeDriver) Execute(ctx context.Context, script browser.Script, args []any, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.tab()
	if err != nil {
		return err
	}
	f.record("%s", strings.TrimSpace("script "+script.Name+" "+joinArgs(args)))

	var result any
	if fn, ok := f.scripts[script.Name]; ok {
		result, err = fn(args)
	} else {
		result, err = f.run(t, script.Name, args)
	}
	if err != nil {
		return err
	}
	if out == nil || result == nil {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func joinArgs(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	return strings.Join(parts, " ")
}

func argString(args []any, i int) string {
	if i >= len(args) {
		return ""
	}
	return fmt.Sprint(args[i])
}

func (f *FakeDriver) run(t *fakeTab, name string, args []any) (any, error) {
	switch name {
	case "":
		return nil, nil
	case jsexec.ScriptElementMetadata:
		return f.elementMetadata(t), nil
	case jsexec.ScriptFindActiveElements:
		uids := []int{}
		t.doc.Find("a, button, input, select").Each(func(_ int, s *goquery.Selection) {
			if raw, ok := s.Attr("wtl-uid"); ok {
				if uid, err := strconv.Atoi(raw); err == nil {
					uids = append(uids, uid)
				}
			}
		})
		return uids, nil
	case jsexec.ScriptIsPageLoaded:
		return true, nil
	case jsexec.ScriptFindViewport:
		return map[string]float64{"x": 0, "y": t.scrollY, "w": float64(f.width), "h": float64(f.height)}, nil
	case jsexec.ScriptPageSize:
		rows := t.doc.Find("body").Find("*").Length() + 1
		return map[string]float64{
			"width":       float64(f.width),
			"height":      float64(max(f.height, rows*fakeRowHeight)),
			"pixel_ratio": 1,
		}, nil
	case jsexec.ScriptFindIFrameName:
		return f.iframeName(t, argString(args, 0)), nil
	case jsexec.ScriptElementExists:
		return t.doc.Find(argString(args, 0)).Length() > 0, nil
	case jsexec.ScriptClickElement:
		return f.click(t, argString(args, 0))
	case jsexec.ScriptFillText, jsexec.ScriptSelect:
		s := t.doc.Find(argString(args, 0)).First()
		if s.Length() == 0 {
			return false, nil
		}
		s.SetAttr("value", argString(args, 1))
		return true, nil
	case jsexec.ScriptDeleteElement:
		s := t.doc.Find(argString(args, 0)).First()
		s.Remove()
		return s.Length() > 0, nil
	case jsexec.ScriptScrollTo:
		if len(args) > 1 {
			if y, ok := args[1].(float64); ok {
				t.scrollY = y
			}
		}
		return nil, nil
	}
	return true, nil
}

func (f *FakeDriver) click(t *fakeTab, css string) (any, error) {
	s := t.doc.Find(css).First()
	if s.Length() == 0 {
		f.console = append(f.console, browser.ConsoleMessage{Severity: browser.ConsoleSevere, Text: "click: no element matches " + css})
		return false, nil
	}
	href, ok := s.Attr("href")
	if goquery.NodeName(s) != "a" || !ok {
		return true, nil
	}
	target := href
	if base, err := url.Parse(t.url); err == nil {
		if ref, err := base.Parse(href); err == nil {
			target = ref.String()
		}
	}
	return true, f.load(t, target)
}

func (f *FakeDriver) iframeName(t *fakeTab, identifier string) string {
	var name string
	t.doc.Find("iframe").EachWithBreak(func(i int, s *goquery.Selection) bool {
		n, _ := s.Attr("name")
		id, _ := s.Attr("id")
		if n != identifier && id != identifier && !s.HasClass(identifier) {
			return true
		}
		if n == "" {
			n = "wtl-frame-" + strconv.Itoa(i)
			s.SetAttr("name", n)
		}
		name = n
		return false
	})
	return name
}

func (f *FakeDriver) elementMetadata(t *fakeTab) []map[string]any {
	out := []map[string]any{}
	body := t.doc.Find("body").First()
	if body.Length() == 0 {
		return out
	}
	next := 0
	t.doc.Find("[wtl-uid]").Each(func(_ int, s *goquery.Selection) {
		if uid, err := strconv.Atoi(s.AttrOr("wtl-uid", "")); err == nil && uid > next {
			next = uid
		}
	})
	body.SetAttr("wtl-uid", "0")
	body.SetAttr("wtl-parent-uid", "-1")

	var visit func(s *goquery.Selection, parentUID string)
	visit = func(s *goquery.Selection, parentUID string) {
		if _, ok := s.Attr("wtl-uid"); !ok {
			next++
			s.SetAttr("wtl-uid", strconv.Itoa(next))
			s.SetAttr("wtl-parent-uid", parentUID)
		}
		out = append(out, f.describe(s, len(out)))
		uid := s.AttrOr("wtl-uid", "")
		s.Children().Each(func(_ int, c *goquery.Selection) { visit(c, uid) })
	}
	visit(body, "-1")
	return out
}

func (f *FakeDriver) describe(s *goquery.Selection, row int) map[string]any {
	attrs := map[string]any{}
	for _, a := range s.Nodes[0].Attr {
		attrs[a.Key] = a.Val
	}
	uid, _ := strconv.Atoi(s.AttrOr("wtl-uid", ""))
	parent, _ := strconv.Atoi(s.AttrOr("wtl-parent-uid", "-1"))
	return map[string]any{
		"tag":            goquery.NodeName(s),
		"id":             s.AttrOr("id", ""),
		"class":          s.AttrOr("class", ""),
		"href":           s.AttrOr("href", ""),
		"attributes":     attrs,
		"text":           strings.TrimSpace(s.Text()),
		"wtl_uid":        uid,
		"wtl_parent_uid": parent,
		"location":       map[string]float64{"x": 0, "y": float64(row * fakeRowHeight)},
		"size":           map[string]float64{"width": float64(f.width), "height": fakeRowHeight},
		"fixed_pos":      false,
		"font_size":      "16px",
	}
}

func (f *FakeDriver) AddScriptOnNewDocument(ctx context.Context, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preload = append(f.preload, source)
	f.record("preload")
	return nil
}

func (f *FakeDriver) ConsoleMessages() []browser.ConsoleMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.console
	f.console = nil
	return msgs
}

// Screenshot renders a white PNG of the viewport or clip size.
func (f *FakeDriver) Screenshot(ctx context.Context, clip *schemas.Rectangle) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.tab(); err != nil {
		return nil, err
	}
	w, h := f.width, f.height
	if clip != nil {
		w, h = int(clip.Width()), int(clip.Height())
		f.record("screenshot %dx%d", w, h)
	} else {
		f.record("screenshot viewport")
	}
	img := image.NewNRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *FakeDriver) MHTML(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.tab()
	if err != nil {
		return nil, err
	}
	return []byte("MIME-Version: 1.0\r\nSnapshot-Content-Location: " + t.url + "\r\n"), nil
}

func (f *FakeDriver) SwitchToFrame(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.tab()
	if err != nil {
		return err
	}
	if t.doc.Find(fmt.Sprintf("iframe[name=%q]", name)).Length() == 0 {
		return fmt.Errorf("%w: no frame named %q", browser.ErrElementNotFound, name)
	}
	f.frame = name
	f.record("frame %s", name)
	return nil
}

func (f *FakeDriver) SwitchToDefault(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame = ""
	f.record("frame default")
	return nil
}

// Frame returns the name of the frame scripts currently run in.
func (f *FakeDriver) Frame() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame
}

func (f *FakeDriver) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.cookies), nil
}

func (f *FakeDriver) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies = slices.Clone(cookies)
	return nil
}
