// internal/snapshot/snapshot.go
package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"weak"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/webtraversal/internal/browser/dom"
)

// Files written by Save.
const (
	SourceFile           = "source.html"
	PageMetadataFile     = "page_metadata.json"
	ElementsMetadataFile = "elements_metadata.json"
	MHTMLFile            = "page.mhtml"
)

// KeyScreenshots is the page metadata entry listing the screenshot names.
const KeyScreenshots = "screenshots"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PageSnapshot is the state of one tab at one instant. Apart from the element
// metadata maps, which classifiers annotate in place, it is never modified
// after creation.
type PageSnapshot struct {
	source           string
	doc              *dom.Document
	pageMetadata     map[string]any
	elementsMetadata []map[string]any
	elements         Elements
	mhtml            []byte

	shotsMu     sync.RWMutex
	screenshots map[string]*Screenshot
	shotOrder   []string

	selMu     sync.Mutex
	selectors map[int]dom.Selector
}

// New parses source and builds one element per entry of elementsMetadata.
// The metadata maps are retained, not copied.
func New(source string, pageMetadata map[string]any, elementsMetadata []map[string]any, screenshots []*Screenshot, mhtml []byte) (*PageSnapshot, error) {
	doc, err := dom.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page source: %w", err)
	}
	if pageMetadata == nil {
		pageMetadata = map[string]any{}
	}
	p := &PageSnapshot{
		source:           source,
		doc:              doc,
		pageMetadata:     pageMetadata,
		elementsMetadata: elementsMetadata,
		mhtml:            mhtml,
		screenshots:      make(map[string]*Screenshot, len(screenshots)),
		selectors:        map[int]dom.Selector{},
	}
	for _, s := range screenshots {
		p.addScreenshot(s)
	}

	self := weak.Make(p)
	p.elements = make(Elements, 0, len(elementsMetadata))
	for _, md := range elementsMetadata {
		p.elements = append(p.elements, &PageElement{metadata: md, page: self})
	}
	return p, nil
}

func (p *PageSnapshot) Document() *dom.Document { return p.doc }
func (p *PageSnapshot) Source() string          { return p.source }
func (p *PageSnapshot) MHTML() []byte           { return p.mhtml }

// PageMetadata returns the mutable page level metadata.
func (p *PageSnapshot) PageMetadata() map[string]any { return p.pageMetadata }

// ElementsMetadata returns the per element metadata maps in scrape order.
func (p *PageSnapshot) ElementsMetadata() []map[string]any { return p.elementsMetadata }

// Elements returns a copy of the element collection. The elements themselves are shared.
func (p *PageSnapshot) Elements() Elements { return slices.Clone(p.elements) }

// Screenshot returns the named screenshot, or nil.
func (p *PageSnapshot) Screenshot(name string) *Screenshot {
	p.shotsMu.RLock()
	defer p.shotsMu.RUnlock()
	return p.screenshots[name]
}

// ScreenshotNames lists the screenshots in the order they were added.
func (p *PageSnapshot) ScreenshotNames() []string {
	p.shotsMu.RLock()
	defer p.shotsMu.RUnlock()
	return slices.Clone(p.shotOrder)
}

// NewScreenshot copies the screenshot of under name and stores it, replacing
// any screenshot already called name.
func (p *PageSnapshot) NewScreenshot(name, of string) (*Screenshot, error) {
	src := p.Screenshot(of)
	if src == nil {
		return nil, fmt.Errorf("no screenshot named %q", of)
	}
	s := src.Copy(name)
	p.addScreenshot(s)
	return s, nil
}

// AddScreenshot stores s, replacing any screenshot with the same name.
func (p *PageSnapshot) AddScreenshot(s *Screenshot) { p.addScreenshot(s) }

func (p *PageSnapshot) addScreenshot(s *Screenshot) {
	p.shotsMu.Lock()
	defer p.shotsMu.Unlock()
	if _, ok := p.screenshots[s.Name]; !ok {
		p.shotOrder = append(p.shotOrder, s.Name)
	}
	p.screenshots[s.Name] = s
}

func (p *PageSnapshot) selectorFor(uid int) dom.Selector {
	p.selMu.Lock()
	defer p.selMu.Unlock()
	if s, ok := p.selectors[uid]; ok {
		return s
	}
	s := p.doc.BuildSelector(uid)
	p.selectors[uid] = s
	return s
}

// Save writes the snapshot into dir, creating it if needed.
func (p *PageSnapshot) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	names := p.ScreenshotNames()
	shots := make([]any, len(names))
	for i, n := range names {
		shots[i] = n
	}
	p.pageMetadata[KeyScreenshots] = shots

	if err := os.WriteFile(filepath.Join(dir, SourceFile), []byte(p.source), 0o644); err != nil {
		return fmt.Errorf("failed to write page source: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, PageMetadataFile), p.pageMetadata); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, ElementsMetadataFile), p.elementsMetadata); err != nil {
		return err
	}
	for _, n := range names {
		if err := p.Screenshot(n).Save(dir); err != nil {
			return err
		}
	}
	if len(p.mhtml) > 0 {
		if err := os.WriteFile(filepath.Join(dir, MHTMLFile), p.mhtml, 0o644); err != nil {
			return fmt.Errorf("failed to write mhtml: %w", err)
		}
	}
	return nil
}

// Load reads a snapshot written by Save.
func Load(dir string) (*PageSnapshot, error) {
	source, err := os.ReadFile(filepath.Join(dir, SourceFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read page source: %w", err)
	}
	var pageMetadata map[string]any
	if err := readJSON(filepath.Join(dir, PageMetadataFile), &pageMetadata); err != nil {
		return nil, err
	}
	var elementsMetadata []map[string]any
	if err := readJSON(filepath.Join(dir, ElementsMetadataFile), &elementsMetadata); err != nil {
		return nil, err
	}

	var shots []*Screenshot
	names, _ := pageMetadata[KeyScreenshots].([]any)
	for _, n := range names {
		name, ok := n.(string)
		if !ok {
			return nil, fmt.Errorf("invalid screenshot name %v", n)
		}
		s, err := LoadScreenshot(name, filepath.Join(dir, name+".png"))
		if err != nil {
			return nil, err
		}
		shots = append(shots, s)
	}

	mhtml, err := os.ReadFile(filepath.Join(dir, MHTMLFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read mhtml: %w", err)
	}
	return New(string(source), pageMetadata, elementsMetadata, shots, mhtml)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
