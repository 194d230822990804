package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore implements the change and tree stores using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the database and bootstraps the schema.
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}

	if err := store.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const changeColumns = `
	c.change_id, c.gedcom_id, g.gedcom_name, c.xref,
	c.old_gedcom, c.new_gedcom,
	u.user_name, u.real_name, c.change_time, c.status
`

func scanChange(row interface{ Scan(...interface{}) error }) (*PendingChange, error) {
	change := &PendingChange{}
	err := row.Scan(
		&change.ChangeID,
		&change.TreeID,
		&change.TreeName,
		&change.Xref,
		&change.OldText,
		&change.NewText,
		&change.UserName,
		&change.RealName,
		&change.ChangeTime,
		&change.Status,
	)
	if err != nil {
		return nil, err
	}
	return change, nil
}

// ListPendingChanges returns all pending rows across every tree, ordered by
// (gedcom_id, xref, change_id) ascending. This ordering is the contract the
// aggregation layer builds on.
func (s *PostgresStore) ListPendingChanges() ([]*PendingChange, error) {
	query := `
		SELECT ` + changeColumns + `
		FROM change c
		JOIN "user" u ON u.user_id = c.user_id
		JOIN gedcom g ON g.gedcom_id = c.gedcom_id
		WHERE c.status = $1
		ORDER BY c.gedcom_id, c.xref, c.change_id
	`

	rows, err := s.db.Query(query, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending changes: %w", err)
	}
	defer rows.Close()

	var changes []*PendingChange
	for rows.Next() {
		change, err := scanChange(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		changes = append(changes, change)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return changes, nil
}

func (s *PostgresStore) GetChange(changeID int) (*PendingChange, error) {
	query := `
		SELECT ` + changeColumns + `
		FROM change c
		JOIN "user" u ON u.user_id = c.user_id
		JOIN gedcom g ON g.gedcom_id = c.gedcom_id
		WHERE c.change_id = $1
	`

	change, err := scanChange(s.db.QueryRow(query, changeID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrChangeNotFound
		}
		return nil, fmt.Errorf("failed to get change: %w", err)
	}

	return change, nil
}

// SubmitChange records a proposed edit with pending status. oldText nil means
// a newly created record, newText nil means a deletion; at least one side
// must be populated.
func (s *PostgresStore) SubmitChange(treeID int, xref string, oldText, newText *string, userID int) (*PendingChange, error) {
	if oldText == nil && newText == nil {
		return nil, fmt.Errorf("change for %s has neither old nor new text", xref)
	}

	query := `
		INSERT INTO change (gedcom_id, xref, old_gedcom, new_gedcom, user_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING change_id
	`

	var changeID int
	err := s.db.QueryRow(query, treeID, xref, oldText, newText, userID, StatusPending).Scan(&changeID)
	if err != nil {
		return nil, fmt.Errorf("failed to submit change: %w", err)
	}

	return s.GetChange(changeID)
}

// AcceptChange marks a pending change accepted. Returns ErrChangeNotFound if
// the row does not exist or was already decided.
func (s *PostgresStore) AcceptChange(changeID int) error {
	return s.decideChange(changeID, StatusAccepted)
}

// RejectChange marks a pending change rejected. Returns ErrChangeNotFound if
// the row does not exist or was already decided.
func (s *PostgresStore) RejectChange(changeID int) error {
	return s.decideChange(changeID, StatusRejected)
}

func (s *PostgresStore) decideChange(changeID int, status string) error {
	query := `UPDATE change SET status = $1 WHERE change_id = $2 AND status = $3`

	result, err := s.db.Exec(query, status, changeID, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to update change: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrChangeNotFound
	}

	return nil
}

func (s *PostgresStore) GetTreeByName(name string) (*Tree, error) {
	query := `SELECT gedcom_id, gedcom_name FROM gedcom WHERE gedcom_name = $1`

	tree := &Tree{}
	err := s.db.QueryRow(query, name).Scan(&tree.ID, &tree.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTreeNotFound
		}
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}

	return tree, nil
}

func (s *PostgresStore) ListTrees() ([]*Tree, error) {
	query := `SELECT gedcom_id, gedcom_name FROM gedcom ORDER BY gedcom_name`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list trees: %w", err)
	}
	defer rows.Close()

	var trees []*Tree
	for rows.Next() {
		tree := &Tree{}
		if err := rows.Scan(&tree.ID, &tree.Name); err != nil {
			return nil, fmt.Errorf("failed to scan tree: %w", err)
		}
		trees = append(trees, tree)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return trees, nil
}

// Compile-time checks to ensure PostgresStore implements the store interfaces.
// These will cause a compilation error if any interface methods are missing
// or have wrong signatures.
var (
	_ IChangeStore = (*PostgresStore)(nil)
	_ ITreeStore   = (*PostgresStore)(nil)
)
