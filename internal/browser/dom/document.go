// internal/browser/dom/document.go
package dom

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Attribute names stamped on every element below <body> by the metadata script.
const (
	UIDAttr       = "wtl-uid"
	ParentUIDAttr = "wtl-parent-uid"
)

// Document is a parsed page source with an index from wtl-uid to node.
type Document struct {
	root  *html.Node
	query *goquery.Document
	byUID map[int][]*html.Node
}

// Parse builds a Document from serialized page source.
func Parse(source string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page source: %w", err)
	}
	return NewDocument(root), nil
}

// NewDocument wraps an already parsed tree.
func NewDocument(root *html.Node) *Document {
	d := &Document{
		root:  root,
		query: goquery.NewDocumentFromNode(root),
		byUID: make(map[int][]*html.Node),
	}
	for n := range root.Descendants() {
		if uid, ok := UIDOf(n); ok {
			d.byUID[uid] = append(d.byUID[uid], n)
		}
	}
	return d
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// NodeByUID returns the element carrying uid. It reports false unless exactly one element does.
func (d *Document) NodeByUID(uid int) (*html.Node, bool) {
	nodes := d.byUID[uid]
	if len(nodes) != 1 {
		return nil, false
	}
	return nodes[0], true
}

// BuildSelector computes the selector of the element carrying uid, or NoMatch.
func (d *Document) BuildSelector(uid int) Selector {
	node, ok := d.NodeByUID(uid)
	if !ok {
		return NoMatch
	}
	return Build(node)
}

// Select returns every element matching a CSS expression, in document order.
// An invalid expression matches nothing.
func (d *Document) Select(css string) []*html.Node {
	return d.query.Find(css).Nodes
}

// SelectXPath returns every node matching an XPath expression, in document order.
func (d *Document) SelectXPath(expr string) ([]*html.Node, error) {
	nodes, err := htmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
	}
	return nodes, nil
}

// Matches returns the elements matched by s, preferring CSS and falling back
// to XPath when the CSS expression matches nothing.
func (d *Document) Matches(s Selector) []*html.Node {
	if nodes := d.Select(s.CSS); len(nodes) > 0 {
		return nodes
	}
	if s.XPath == "" || s.XPath == "/" {
		return nil
	}
	nodes, err := d.SelectXPath(s.XPath)
	if err != nil {
		return nil
	}
	return nodes
}

// UIDsOf collects the wtl-uid of every node that carries one.
func UIDsOf(nodes []*html.Node) map[int]struct{} {
	uids := make(map[int]struct{}, len(nodes))
	for _, n := range nodes {
		if uid, ok := UIDOf(n); ok {
			uids[uid] = struct{}{}
		}
	}
	return uids
}

// Descendants returns every element below n, excluding n.
func Descendants(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := range n.Descendants() {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// UIDOf reads the wtl-uid attribute of an element.
func UIDOf(n *html.Node) (int, bool) {
	if n == nil || n.Type != html.ElementNode {
		return 0, false
	}
	raw := htmlquery.SelectAttr(n, UIDAttr)
	if raw == "" {
		return 0, false
	}
	uid, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return uid, true
}

// Render serializes the document back to HTML.
func (d *Document) Render() (string, error) {
	var sb strings.Builder
	if err := html.Render(&sb, d.root); err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return sb.String(), nil
}
