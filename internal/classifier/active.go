// internal/classifier/active.go
package classifier

import (
	"context"

	"github.com/xkilldash9x/webtraversal/internal/snapshot"
)

// ActiveElementName is the metadata key set by ActiveElementFilter.
const ActiveElementName = "is_active"

// ActiveElementFilter returns a classifier marking elements the page reports
// as interactable with a boolean "is_active" entry.
func ActiveElementFilter() *ElementClassifier {
	return &ElementClassifier{
		Name:       ActiveElementName,
		Callback:   activeElements,
		ResultType: Bool,
	}
}

func activeElements(ctx context.Context, subset snapshot.Elements, env Env) (Result, error) {
	uids, err := env.FindActiveElements(ctx)
	if err != nil {
		return nil, err
	}
	active := make(map[int]struct{}, len(uids))
	for _, uid := range uids {
		active[uid] = struct{}{}
	}
	out := Binary{}
	for _, e := range subset {
		if _, ok := active[e.UID()]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}
