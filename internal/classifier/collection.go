// internal/classifier/collection.go
package classifier

import (
	"fmt"
	"slices"
)

// Collection holds classifiers by name in registration order. Adding a
// classifier under an existing name replaces it in place.
type Collection struct {
	order []string
	byKey map[string]Classifier
}

// NewCollection registers cs in order.
func NewCollection(cs ...Classifier) *Collection {
	c := &Collection{byKey: map[string]Classifier{}}
	for _, cl := range cs {
		c.Add(cl)
	}
	return c
}

func (c *Collection) Add(cl Classifier) {
	name := cl.ClassifierName()
	if _, ok := c.byKey[name]; !ok {
		c.order = append(c.order, name)
	}
	c.byKey[name] = cl
}

// Get returns the classifier registered under name, or nil.
func (c *Collection) Get(name string) Classifier { return c.byKey[name] }

func (c *Collection) Contains(name string) bool {
	_, ok := c.byKey[name]
	return ok
}

func (c *Collection) Len() int { return len(c.order) }

// Start enables the named classifier.
func (c *Collection) Start(name string) error { return c.setEnabled(name, true) }

// Stop disables the named classifier.
func (c *Collection) Stop(name string) error { return c.setEnabled(name, false) }

func (c *Collection) setEnabled(name string, on bool) error {
	cl, ok := c.byKey[name]
	if !ok {
		return fmt.Errorf("no classifier named %q", name)
	}
	cl.SetEnabled(on)
	return nil
}

// All returns every classifier in registration order.
func (c *Collection) All() []Classifier {
	out := make([]Classifier, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.byKey[name])
	}
	return out
}

// ActiveElementClassifiers returns the enabled element classifiers that have a callback.
func (c *Collection) ActiveElementClassifiers() []*ElementClassifier {
	var out []*ElementClassifier
	for _, cl := range c.All() {
		if ec, ok := cl.(*ElementClassifier); ok && ec.Enabled() && ec.Callback != nil {
			out = append(out, ec)
		}
	}
	return out
}

// ActiveViewClassifiers returns the enabled view classifiers that have a callback.
func (c *Collection) ActiveViewClassifiers() []*ViewClassifier {
	var out []*ViewClassifier
	for _, cl := range c.All() {
		if vc, ok := cl.(*ViewClassifier); ok && vc.Enabled() && vc.Callback != nil {
			out = append(out, vc)
		}
	}
	return out
}

// Names lists the registered names in order.
func (c *Collection) Names() []string { return slices.Clone(c.order) }
