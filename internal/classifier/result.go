// internal/classifier/result.go
package classifier

import "github.com/xkilldash9x/webtraversal/internal/snapshot"

// Result is the output of an element classifier callback: Binary, Scores or MultiClass.
type Result interface {
	isResult()
}

// Binary lists the members of the class. Every other element of the subset
// scores 0.
type Binary snapshot.Elements

// Scored pairs an element with a raw score.
type Scored struct {
	Element *snapshot.PageElement
	Score   float64
}

// Scores assigns raw scores to elements.
type Scores []Scored

// MultiClass maps class names to Binary or Scores results. Scores are stored
// under "<classifier>__<class>".
type MultiClass map[string]Result

func (Binary) isResult()     {}
func (Scores) isResult()     {}
func (MultiClass) isResult() {}

func isEmpty(r Result) bool {
	switch r := r.(type) {
	case nil:
		return true
	case Binary:
		return len(r) == 0
	case Scores:
		return len(r) == 0
	case MultiClass:
		return len(r) == 0
	}
	return false
}
