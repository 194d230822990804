package changes

import (
	"encoding/json"

	"gedcom-review/pkg/db"
	"gedcom-review/pkg/record"
)

// Row is one pending change enriched with its classified in-memory record.
type Row struct {
	*db.PendingChange
	Record *record.Record `json:"record"`
}

// Grouped holds pending changes grouped by tree name, then by record xref.
// Both levels iterate in first-encountered order and leaf slices keep
// arrival order; nothing is ever re-sorted here — the store's query order
// is the only ordering.
type Grouped struct {
	treeNames []string
	trees     map[string]*treeGroup
}

type treeGroup struct {
	xrefs   []string
	records map[string][]*Row
}

// NewGrouped creates an empty grouping.
func NewGrouped() *Grouped {
	return &Grouped{trees: make(map[string]*treeGroup)}
}

// Add appends a row under its tree and xref, registering the tree and xref
// the first time they are seen.
func (g *Grouped) Add(row *Row) {
	tg, ok := g.trees[row.TreeName]
	if !ok {
		tg = &treeGroup{records: make(map[string][]*Row)}
		g.trees[row.TreeName] = tg
		g.treeNames = append(g.treeNames, row.TreeName)
	}

	if _, ok := tg.records[row.Xref]; !ok {
		tg.xrefs = append(tg.xrefs, row.Xref)
	}
	tg.records[row.Xref] = append(tg.records[row.Xref], row)
}

// TreeNames returns the tree names in first-encountered order.
func (g *Grouped) TreeNames() []string {
	return g.treeNames
}

// HasTree reports whether any change was grouped under the tree name.
func (g *Grouped) HasTree(name string) bool {
	_, ok := g.trees[name]
	return ok
}

// Xrefs returns the record identifiers under a tree in first-encountered
// order, or nil for an unknown tree.
func (g *Grouped) Xrefs(treeName string) []string {
	if tg, ok := g.trees[treeName]; ok {
		return tg.xrefs
	}
	return nil
}

// Changes returns the rows for one record of one tree, in arrival order.
func (g *Grouped) Changes(treeName, xref string) []*Row {
	if tg, ok := g.trees[treeName]; ok {
		return tg.records[xref]
	}
	return nil
}

// Len returns the total number of grouped rows.
func (g *Grouped) Len() int {
	n := 0
	for _, tg := range g.trees {
		for _, rows := range tg.records {
			n += len(rows)
		}
	}
	return n
}

// MarshalJSON emits the grouping as nested arrays so the encounter order of
// trees and records survives serialization; JSON objects would not
// guarantee it.
func (g *Grouped) MarshalJSON() ([]byte, error) {
	type recordGroup struct {
		Xref    string `json:"xref"`
		Changes []*Row `json:"changes"`
	}
	type treeChanges struct {
		Tree    string        `json:"tree"`
		Records []recordGroup `json:"records"`
	}

	out := make([]treeChanges, 0, len(g.treeNames))
	for _, name := range g.treeNames {
		tg := g.trees[name]
		records := make([]recordGroup, 0, len(tg.xrefs))
		for _, xref := range tg.xrefs {
			records = append(records, recordGroup{Xref: xref, Changes: tg.records[xref]})
		}
		out = append(out, treeChanges{Tree: name, Records: records})
	}
	return json.Marshal(out)
}
