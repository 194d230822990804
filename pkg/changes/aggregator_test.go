package changes

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gedcom-review/pkg/db"
	"gedcom-review/pkg/record"
)

type fakeChangeStore struct {
	rows []*db.PendingChange
	err  error
}

func (f *fakeChangeStore) ListPendingChanges() ([]*db.PendingChange, error) {
	return f.rows, f.err
}

func (f *fakeChangeStore) GetChange(int) (*db.PendingChange, error) {
	return nil, db.ErrChangeNotFound
}

func (f *fakeChangeStore) SubmitChange(int, string, *string, *string, int) (*db.PendingChange, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeChangeStore) AcceptChange(int) error { return db.ErrChangeNotFound }
func (f *fakeChangeStore) RejectChange(int) error { return db.ErrChangeNotFound }

type fakeTreeStore struct {
	trees []*db.Tree
}

func (f *fakeTreeStore) GetTreeByName(name string) (*db.Tree, error) {
	for _, tree := range f.trees {
		if tree.Name == name {
			return tree, nil
		}
	}
	return nil, db.ErrTreeNotFound
}

func (f *fakeTreeStore) ListTrees() ([]*db.Tree, error) {
	return f.trees, nil
}

func newTestAggregator(t *testing.T, changeStore db.IChangeStore, treeStore db.ITreeStore) *Aggregator {
	t.Helper()
	cache, err := record.NewCache(64)
	require.NoError(t, err)
	return NewAggregator(changeStore, treeStore, record.NewRegistry(cache))
}

func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func pendingRow(changeID, treeID int, treeName, xref, oldText, newText string) *db.PendingChange {
	return &db.PendingChange{
		ChangeID:   changeID,
		TreeID:     treeID,
		TreeName:   treeName,
		Xref:       xref,
		OldText:    ptr(oldText),
		NewText:    ptr(newText),
		UserName:   "editor",
		RealName:   "An Editor",
		ChangeTime: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Status:     db.StatusPending,
	}
}

var (
	alpha = &db.Tree{ID: 1, Name: "alpha"}
	beta  = &db.Tree{ID: 2, Name: "beta"}
)

func TestAggregateGroupsInQueryOrder(t *testing.T) {
	// rows arrive ordered by (tree, xref, change id); the grouping must
	// keep exactly that order at every level
	rows := []*db.PendingChange{
		pendingRow(3, 1, "alpha", "I1", "0 @I1@ INDI\n1 NAME A", "0 @I1@ INDI\n1 NAME B"),
		pendingRow(5, 1, "alpha", "I1", "0 @I1@ INDI\n1 NAME B", "0 @I1@ INDI\n1 NAME C"),
		pendingRow(2, 1, "alpha", "I2", "", "0 @I2@ INDI\n1 NAME D"),
		pendingRow(9, 2, "beta", "F1", "0 @F1@ FAM", ""),
	}

	agg := newTestAggregator(t, &fakeChangeStore{rows: rows}, &fakeTreeStore{trees: []*db.Tree{alpha, beta}})
	result, err := agg.Aggregate(alpha)
	require.NoError(t, err)

	assert.Equal(t, len(rows), result.Grouped.Len(), "no rows dropped under well-formed input")
	assert.Empty(t, result.Malformed)

	assert.Equal(t, []string{"alpha", "beta"}, result.Grouped.TreeNames())
	assert.Equal(t, []string{"I1", "I2"}, result.Grouped.Xrefs("alpha"))

	leaf := result.Grouped.Changes("alpha", "I1")
	require.Len(t, leaf, 2)
	assert.Equal(t, 3, leaf[0].ChangeID)
	assert.Equal(t, 5, leaf[1].ChangeID)

	// the factories attached classified records
	assert.Equal(t, record.TypeIndividual, leaf[0].Record.Type)
	require.Len(t, result.Grouped.Changes("beta", "F1"), 1)
	assert.Equal(t, record.TypeFamily, result.Grouped.Changes("beta", "F1")[0].Record.Type)
}

func TestAggregateClassification(t *testing.T) {
	rows := []*db.PendingChange{
		pendingRow(1, 1, "alpha", "X1", "", "0 @X1@ INDI"),
		pendingRow(2, 1, "alpha", "F1", "", "0 @F1@ FAM"),
		pendingRow(3, 1, "alpha", "S1", "", "0 @S1@ SOUR"),
		pendingRow(4, 1, "alpha", "Z1", "", "0 @Z1@ _CUSTOM"),
	}

	agg := newTestAggregator(t, &fakeChangeStore{rows: rows}, &fakeTreeStore{trees: []*db.Tree{alpha}})
	result, err := agg.Aggregate(alpha)
	require.NoError(t, err)

	assert.Equal(t, record.TypeIndividual, result.Grouped.Changes("alpha", "X1")[0].Record.Type)
	assert.Equal(t, record.TypeFamily, result.Grouped.Changes("alpha", "F1")[0].Record.Type)
	assert.Equal(t, record.TypeSource, result.Grouped.Changes("alpha", "S1")[0].Record.Type)
	assert.Equal(t, record.TypeGeneric, result.Grouped.Changes("alpha", "Z1")[0].Record.Type)
}

func TestAggregateActiveTree(t *testing.T) {
	betaOnly := []*db.PendingChange{
		pendingRow(1, 2, "beta", "I1", "", "0 @I1@ INDI"),
	}
	both := []*db.PendingChange{
		pendingRow(1, 1, "alpha", "I1", "", "0 @I1@ INDI"),
		pendingRow(2, 2, "beta", "I2", "", "0 @I2@ INDI"),
	}

	tests := []struct {
		name    string
		rows    []*db.PendingChange
		current *db.Tree
		want    string
	}{
		{
			name:    "current tree empty, first grouped tree wins",
			rows:    betaOnly,
			current: alpha,
			want:    "beta",
		},
		{
			name:    "current tree with changes wins over others",
			rows:    both,
			current: beta,
			want:    "beta",
		},
		{
			name:    "no pending changes at all degrades to no active tree",
			rows:    nil,
			current: alpha,
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := newTestAggregator(t, &fakeChangeStore{rows: tt.rows}, &fakeTreeStore{trees: []*db.Tree{alpha, beta}})
			result, err := agg.Aggregate(tt.current)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.ActiveTreeName)
		})
	}
}

func TestAggregateMalformedRowsAreFlaggedNotFatal(t *testing.T) {
	rows := []*db.PendingChange{
		pendingRow(1, 1, "alpha", "I1", "", "0 @I1@ INDI"),
		pendingRow(2, 1, "alpha", "I2", "", "no leading tag here"),
		pendingRow(3, 1, "alpha", "I3", "", ""),
		pendingRow(4, 3, "ghost", "I4", "", "0 @I4@ INDI"),
	}

	agg := newTestAggregator(t, &fakeChangeStore{rows: rows}, &fakeTreeStore{trees: []*db.Tree{alpha}})
	result, err := agg.Aggregate(alpha)
	require.NoError(t, err, "one bad row must not abort the listing")

	assert.Equal(t, 1, result.Grouped.Len())
	require.Len(t, result.Malformed, 3)
	assert.Equal(t, 2, result.Malformed[0].ChangeID)
	assert.Equal(t, 3, result.Malformed[1].ChangeID)
	assert.Equal(t, 4, result.Malformed[2].ChangeID)
}

func TestAggregateRequiresCurrentTree(t *testing.T) {
	agg := newTestAggregator(t, &fakeChangeStore{}, &fakeTreeStore{})
	_, err := agg.Aggregate(nil)
	require.Error(t, err)
}

func TestAggregateStoreErrorPropagates(t *testing.T) {
	storeErr := errors.New("connection reset")
	agg := newTestAggregator(t, &fakeChangeStore{err: storeErr}, &fakeTreeStore{trees: []*db.Tree{alpha}})
	_, err := agg.Aggregate(alpha)
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
}
