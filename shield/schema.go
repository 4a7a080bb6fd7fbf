package shield

import "database/sql"

// Schema is the table read by MaintenanceMode when it is backed by a
// database. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS maintenance (
    id      INTEGER PRIMARY KEY CHECK (id = 1),
    active  INTEGER NOT NULL DEFAULT 0,
    message TEXT NOT NULL DEFAULT 'Maintenance in progress, please check back shortly.'
);

INSERT OR IGNORE INTO maintenance (id, active, message)
VALUES (1, 0, 'Maintenance in progress, please check back shortly.');
`

// Init creates the maintenance table if it doesn't exist.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
