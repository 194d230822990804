package db

// createTables creates the gedcom, user, and change tables if they don't exist
func (s *PostgresStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS gedcom (
		gedcom_id SERIAL PRIMARY KEY,
		gedcom_name VARCHAR(255) NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS "user" (
		user_id SERIAL PRIMARY KEY,
		user_name VARCHAR(64) NOT NULL UNIQUE,
		real_name VARCHAR(255) NOT NULL
	);

	CREATE TABLE IF NOT EXISTS change (
		change_id SERIAL PRIMARY KEY,
		gedcom_id INTEGER NOT NULL REFERENCES gedcom(gedcom_id),
		xref VARCHAR(20) NOT NULL,
		old_gedcom TEXT,
		new_gedcom TEXT,
		user_id INTEGER NOT NULL REFERENCES "user"(user_id),
		change_time TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
		status VARCHAR(8) NOT NULL DEFAULT 'pending'
	);

	CREATE INDEX IF NOT EXISTS idx_change_status ON change(status);
	CREATE INDEX IF NOT EXISTS idx_change_gedcom_xref ON change(gedcom_id, xref);
	`

	_, err := s.db.Exec(query)
	return err
}
