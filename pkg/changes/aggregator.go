package changes

import (
	"errors"
	"fmt"
	"log"

	"gedcom-review/pkg/db"
	"gedcom-review/pkg/record"
)

// Aggregator fetches all pending changes, classifies each row by its record
// type, instantiates the in-memory record via the matching factory, and
// groups the results for display.
type Aggregator struct {
	changes   db.IChangeStore
	trees     db.ITreeStore
	factories *record.Registry
}

// NewAggregator wires the aggregator. The factory registry is an explicit
// parameter so the aggregator is testable without any request plumbing.
func NewAggregator(changes db.IChangeStore, trees db.ITreeStore, factories *record.Registry) *Aggregator {
	return &Aggregator{
		changes:   changes,
		trees:     trees,
		factories: factories,
	}
}

// Result is the outcome of one aggregation pass.
type Result struct {
	// Grouped holds the well-formed rows, tree → xref → arrival order.
	Grouped *Grouped
	// ActiveTreeName is the tree whose tab should be initially shown:
	// the current tree if it has entries, otherwise the first grouped
	// tree, otherwise empty.
	ActiveTreeName string
	// Malformed collects rows that failed classification or tree
	// resolution. They are excluded from Grouped, never fatal.
	Malformed []*db.PendingChange
}

// Aggregate runs one pass over every pending change across all trees. The
// current tree only influences active-tab selection; changes from every
// tree are included.
func (a *Aggregator) Aggregate(currentTree *db.Tree) (*Result, error) {
	if currentTree == nil {
		return nil, errors.New("aggregate: current tree is required")
	}

	rows, err := a.changes.ListPendingChanges()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending changes: %w", err)
	}

	grouped := NewGrouped()
	var malformed []*db.PendingChange
	resolved := make(map[string]*db.Tree)

	for _, change := range rows {
		tree, ok := resolved[change.TreeName]
		if !ok {
			tree, err = a.trees.GetTreeByName(change.TreeName)
			if err != nil {
				log.Printf("pending change %d: cannot resolve tree %q: %v", change.ChangeID, change.TreeName, err)
				malformed = append(malformed, change)
				continue
			}
			resolved[change.TreeName] = tree
		}

		typ, err := record.Classify(text(change.OldText), text(change.NewText))
		if err != nil {
			// One bad stored row must not take down the whole
			// listing; flag it and keep going.
			log.Printf("pending change %d (%s in %s): %v", change.ChangeID, change.Xref, change.TreeName, err)
			malformed = append(malformed, change)
			continue
		}

		rec := a.factories.ForType(typ).New(change.Xref, text(change.OldText), text(change.NewText), tree)
		grouped.Add(&Row{PendingChange: change, Record: rec})
	}

	return &Result{
		Grouped:        grouped,
		ActiveTreeName: activeTreeName(grouped, currentTree),
		Malformed:      malformed,
	}, nil
}

// activeTreeName picks the initially shown tree tab. Degrades to "" when
// there are no pending changes at all.
func activeTreeName(g *Grouped, current *db.Tree) string {
	if g.HasTree(current.Name) {
		return current.Name
	}
	if names := g.TreeNames(); len(names) > 0 {
		return names[0]
	}
	return ""
}

func text(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
