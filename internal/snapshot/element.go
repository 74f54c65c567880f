// internal/snapshot/element.go
package snapshot

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"weak"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/webtraversal/api/schemas"
	"github.com/xkilldash9x/webtraversal/internal/browser/dom"
)

// Metadata keys produced by the element metadata script.
const (
	KeyUID       = "wtl_uid"
	KeyParentUID = "wtl_parent_uid"
	KeyLocation  = "location"
	KeySize      = "size"
	KeyRawScores = "raw_scores"
	KeyFixedPos  = "fixed_pos"
	KeyFontSize  = "font_size"
	KeyTag       = "tag"
)

// PageElement is one element of a PageSnapshot together with its metadata.
// Classifier scores are written into the metadata map, which is shared with
// the snapshot's elements metadata so they are persisted on save.
//
// The element refers back to its snapshot weakly: holding an element (for
// example as an action target) does not keep an obsolete snapshot alive.
type PageElement struct {
	metadata map[string]any
	page     weak.Pointer[PageSnapshot]
}

// NewElement creates an element that belongs to no snapshot. Page, Parent,
// Tag and Selector are unavailable on detached elements.
func NewElement(metadata map[string]any) *PageElement {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &PageElement{metadata: metadata}
}

// Metadata returns the mutable metadata map of the element.
func (e *PageElement) Metadata() map[string]any { return e.metadata }

// Page returns the owning snapshot, or nil once it has been collected.
func (e *PageElement) Page() *PageSnapshot { return e.page.Value() }

// UID returns the wtl_uid assigned by the metadata script.
func (e *PageElement) UID() int {
	v, _ := toInt(e.metadata[KeyUID])
	return v
}

// ParentUID returns the wtl_parent_uid, -1 for <body>.
func (e *PageElement) ParentUID() int {
	v, ok := toInt(e.metadata[KeyParentUID])
	if !ok {
		return -1
	}
	return v
}

// Parent returns the element's parent within the same snapshot, or nil.
func (e *PageElement) Parent() *PageElement {
	p := e.Page()
	if p == nil {
		return nil
	}
	return p.elements.ByUID(e.ParentUID())
}

// Tag returns the parsed DOM node of this element, or nil.
func (e *PageElement) Tag() *html.Node {
	p := e.Page()
	if p == nil {
		return nil
	}
	n, _ := p.doc.NodeByUID(e.UID())
	return n
}

// Selector returns the fully qualified selector of this element. It is
// computed once per snapshot and cached by uid.
func (e *PageElement) Selector() dom.Selector {
	p := e.Page()
	if p == nil {
		return dom.NoMatch
	}
	return p.selectorFor(e.UID())
}

// Location returns the top left corner of the element in page coordinates.
func (e *PageElement) Location() schemas.Point {
	m, _ := e.metadata[KeyLocation].(map[string]any)
	x, _ := toFloat(m["x"])
	y, _ := toFloat(m["y"])
	return schemas.Point{X: x, Y: y}
}

// Size returns the (width, height) of the element.
func (e *PageElement) Size() schemas.Point {
	m, _ := e.metadata[KeySize].(map[string]any)
	w, _ := toFloat(m["width"])
	h, _ := toFloat(m["height"])
	return schemas.Point{X: w, Y: h}
}

// Bounds returns the bounding box of the element in page coordinates.
func (e *PageElement) Bounds() schemas.Rectangle {
	loc, size := e.Location(), e.Size()
	return schemas.Rect(loc.X, loc.Y, size.X, size.Y)
}

// FixedPosition reports whether the element or one of its ancestors is fixed or sticky.
func (e *PageElement) FixedPosition() bool {
	b, _ := e.metadata[KeyFixedPos].(bool)
	return b
}

var resolvedSize = regexp.MustCompile(`^\d+(\.\d*)?px$`)

// FontSize parses the resolved CSS font size, which must be in pixels.
func (e *PageElement) FontSize() (float64, error) {
	raw, _ := e.metadata[KeyFontSize].(string)
	raw = strings.TrimSpace(raw)
	if !resolvedSize.MatchString(raw) {
		return 0, fmt.Errorf("expected a number followed by px, got %q", raw)
	}
	return strconv.ParseFloat(strings.TrimSuffix(raw, "px"), 64)
}

// Score returns the (scaled) classifier value stored under name.
func (e *PageElement) Score(name string) (float64, bool) {
	v, ok := e.metadata[name]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// RawScores returns the mutable map of unscaled classifier scores, creating it on first use.
func (e *PageElement) RawScores() map[string]float64 {
	switch rs := e.metadata[KeyRawScores].(type) {
	case map[string]float64:
		return rs
	case map[string]any:
		// Loaded from JSON; convert once and keep the typed map.
		typed := make(map[string]float64, len(rs))
		for k, v := range rs {
			f, _ := toFloat(v)
			typed[k] = f
		}
		e.metadata[KeyRawScores] = typed
		return typed
	}
	rs := map[string]float64{}
	e.metadata[KeyRawScores] = rs
	return rs
}

func (e *PageElement) String() string {
	tag, _ := e.metadata[KeyTag].(string)
	return fmt.Sprintf("PageElement(uid=%d, tag=%s, bounds=%s)", e.UID(), tag, e.Bounds())
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) {
		return 0, false
	}
	return int(f), true
}
