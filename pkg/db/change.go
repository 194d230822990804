package db

import (
	"errors"
	"time"
)

// Change status lifecycle. A change is created pending and moves to
// accepted or rejected exactly once.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

var (
	ErrChangeNotFound = errors.New("change not found")
	ErrTreeNotFound   = errors.New("tree not found")
)

// PendingChange is one proposed edit to a genealogical record, awaiting
// moderator approval. OldText nil means the record is newly created;
// NewText nil means it was deleted. User and tree display fields are
// populated via JOIN.
type PendingChange struct {
	ChangeID   int       `json:"change_id"`
	TreeID     int       `json:"tree_id"`
	TreeName   string    `json:"tree_name"`
	Xref       string    `json:"xref"`
	OldText    *string   `json:"old_gedcom"`
	NewText    *string   `json:"new_gedcom"`
	UserName   string    `json:"user_name"`
	RealName   string    `json:"real_name"`
	ChangeTime time.Time `json:"change_time"`
	Status     string    `json:"status"`
}

// ChangeStore interface for pending-change persistence.
type IChangeStore interface {
	// ListPendingChanges returns every pending row across all trees,
	// ordered by (tree id, xref, change id) ascending. Callers rely on
	// this ordering and must not re-sort.
	ListPendingChanges() ([]*PendingChange, error)
	GetChange(changeID int) (*PendingChange, error)
	SubmitChange(treeID int, xref string, oldText, newText *string, userID int) (*PendingChange, error)
	AcceptChange(changeID int) error
	RejectChange(changeID int) error
}
