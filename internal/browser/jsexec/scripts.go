// internal/browser/jsexec/scripts.go
package jsexec

import (
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/xkilldash9x/webtraversal/internal/browser"
)

//go:embed scripts/*.js
var bundled embed.FS

// Names of the bundled scripts. Drivers that cannot run real JavaScript
// dispatch on these.
const (
	ScriptElementMetadata         = "element_metadata"
	ScriptFindActiveElements      = "find_active_elements"
	ScriptIsPageLoaded            = "is_page_loaded"
	ScriptFindViewport            = "find_viewport"
	ScriptPageSize                = "page_size"
	ScriptFindIFrameName          = "find_iframe_name"
	ScriptElementExists           = "element_exists"
	ScriptDisableAnimations       = "disable_animations"
	ScriptClickElement            = "click_element"
	ScriptFillText                = "fill_text"
	ScriptSelect                  = "select"
	ScriptDeleteElement           = "delete_element"
	ScriptMakeCanvas              = "make_canvas"
	ScriptHighlight               = "highlight"
	ScriptAnnotate                = "annotate"
	ScriptClearHighlights         = "clear_highlights"
	ScriptScrollTo                = "scroll_to"
	ScriptInterceptEventListeners = "intercept_event_listeners"
)

// Bundled looks up a bundled script by name.
func Bundled(name string) (browser.Script, error) {
	src, err := bundled.ReadFile(path.Join("scripts", name+".js"))
	if err != nil {
		return browser.Script{}, fmt.Errorf("no bundled script named %q: %w", name, err)
	}
	return browser.Script{Name: name, Source: string(src)}, nil
}

// BundledNames lists every bundled script.
func BundledNames() []string {
	entries, _ := bundled.ReadDir("scripts")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".js"))
	}
	return names
}

func mustBundled(name string) browser.Script {
	s, err := Bundled(name)
	if err != nil {
		panic(err)
	}
	return s
}
