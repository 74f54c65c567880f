// internal/browser/driver.go
package browser

import (
	"context"

	"github.com/xkilldash9x/webtraversal/api/schemas"
)

// Script is a snippet of JavaScript executed as a function body. Arguments are
// exposed through the `arguments` array and the function's return value is
// decoded into the caller's destination. Name identifies bundled scripts so
// that alternative drivers can recognize them; ad hoc snippets leave it empty.
type Script struct {
	Name   string
	Source string
}

// Cookie is a browser cookie as seen by the current tab.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
}

// Console severities, mirroring the javascript.* configuration keys.
const (
	ConsoleInfo    = "info"
	ConsoleWarning = "warning"
	ConsoleSevere  = "severe"
)

// ConsoleMessage is a line of browser console output captured by a Driver.
type ConsoleMessage struct {
	Severity string
	Text     string
}

// Driver is the low level browser collaborator backing a single window. A
// Driver owns a set of tabs identified by opaque handles and has exactly one
// current tab (and optionally one current frame within it) that every
// page-level command applies to. Drivers are not safe for concurrent use.
type Driver interface {
	// Name identifies the browser implementation, e.g. "chrome".
	Name() string

	// Handles lists the handles of every tab currently open in the window.
	Handles(ctx context.Context) ([]string, error)
	// CurrentHandle returns the handle of the tab that commands apply to.
	CurrentHandle() string
	// OpenTab opens a new blank tab. The new handle appears in Handles but
	// focus stays on the current tab.
	OpenTab(ctx context.Context) error
	SwitchTo(ctx context.Context, handle string) error
	// CloseCurrent closes the current tab.
	CloseCurrent(ctx context.Context) error
	// Quit closes every tab and releases the browser.
	Quit(ctx context.Context) error

	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	PageSource(ctx context.Context) (string, error)

	// Execute runs script with args in the current tab (and frame) and decodes
	// the result into out, which may be nil. Exceptions thrown by the page are
	// reported as ErrJavascript, open dialogs as ErrUnexpectedAlert.
	Execute(ctx context.Context, script Script, args []any, out any) error
	// AddScriptOnNewDocument installs source to run before any page script
	// on every document subsequently loaded in every tab.
	AddScriptOnNewDocument(ctx context.Context, source string) error
	// ConsoleMessages drains the console output captured since the last call.
	ConsoleMessages() []ConsoleMessage

	// Screenshot returns a PNG of the viewport, or of clip in page
	// coordinates when clip is non-nil.
	Screenshot(ctx context.Context, clip *schemas.Rectangle) ([]byte, error)
	// MHTML returns a single file archive of the current page.
	MHTML(ctx context.Context) ([]byte, error)

	// SwitchToFrame directs subsequent script execution into the named iframe.
	SwitchToFrame(ctx context.Context, name string) error
	SwitchToDefault(ctx context.Context) error

	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
}
