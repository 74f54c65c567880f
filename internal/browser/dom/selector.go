// internal/browser/dom/selector.go
package dom

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// Selector locates an element by CSS and XPath, optionally inside an iframe
// identified by name, id or class. A Selector makes no promise that it is
// unique or that it matches anything at all.
type Selector struct {
	CSS    string `json:"css"`
	XPath  string `json:"xpath"`
	IFrame string `json:"iframe,omitempty"`
}

// NoMatch is returned by selector construction when the element cannot be identified.
var NoMatch = Selector{CSS: "bad_wtl_uid_no_matches", XPath: "bad_wtl_uid_no_matches"}

// ByCSS returns a Selector for a CSS expression with the catch-all XPath "/".
func ByCSS(css string) Selector {
	return Selector{CSS: css, XPath: "/"}
}

// InFrame returns a copy of s scoped to the given iframe.
func (s Selector) InFrame(iframe string) Selector {
	s.IFrame = iframe
	return s
}

// IsZero reports whether s is the zero Selector.
func (s Selector) IsZero() bool { return s == Selector{} }

// Compare orders selectors by CSS length first, then lexically by XPath.
// Shorter CSS sorts first, so the least specific selector comes first.
func Compare(a, b Selector) int {
	if c := cmp.Compare(len(a.CSS), len(b.CSS)); c != 0 {
		return c
	}
	return strings.Compare(a.XPath, b.XPath)
}

// Less reports whether s sorts before o under Compare.
func (s Selector) Less(o Selector) bool { return Compare(s, o) < 0 }

// Sort orders selectors in place by Compare. The sort is stable.
func Sort(selectors []Selector) {
	slices.SortStableFunc(selectors, Compare)
}

func (s Selector) String() string {
	if s.IFrame != "" {
		return fmt.Sprintf("Selector(css=%q, xpath=%q, iframe=%q)", s.CSS, s.XPath, s.IFrame)
	}
	return fmt.Sprintf("Selector(css=%q, xpath=%q)", s.CSS, s.XPath)
}

// Build computes a verbose, fully qualified CSS and XPath for node by walking
// up to the document root. A step carries a sibling index only when the
// element shares its tag with at least one sibling.
func Build(node *html.Node) Selector {
	if node == nil {
		return NoMatch
	}
	child := node
	if child.Type != html.ElementNode {
		child = child.Parent
	}
	if child == nil || child.Type != html.ElementNode {
		return NoMatch
	}

	var css, xpath []string
	for parent := child.Parent; parent != nil; child, parent = parent, parent.Parent {
		tag := strings.ToLower(child.Data)
		name := safeTagName(tag)

		// 1. Find the position among same-tag element siblings (1-based).
		index, count := 0, 0
		for sib := parent.FirstChild; sib != nil; sib = sib.NextSibling {
			if sib.Type != html.ElementNode || strings.ToLower(sib.Data) != tag {
				continue
			}
			count++
			if sib == child {
				index = count
			}
		}

		// 2. Only disambiguate when the tag is not unique under this parent.
		if count == 1 {
			css = append(css, name)
			xpath = append(xpath, name)
		} else {
			css = append(css, fmt.Sprintf("%s:nth-of-type(%d)", name, index))
			xpath = append(xpath, fmt.Sprintf("%s[%d]", name, index))
		}
	}

	slices.Reverse(css)
	slices.Reverse(xpath)
	return Selector{
		CSS:   strings.Join(css, ">"),
		XPath: "/" + strings.Join(xpath, "/"),
	}
}

// safeTagName replaces namespaced or otherwise unselectable tag names with a wildcard.
func safeTagName(name string) string {
	if strings.ContainsAny(name, ":=") {
		return "*"
	}
	return name
}
