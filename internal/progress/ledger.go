package progress

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// FailureLedger mirrors failed items into a queryable SQLite database
// when config.FailureLedger is enabled. The progress file remains
// authoritative; this is purely an operational convenience for ad hoc
// SQL over failures across runs.
type FailureLedger struct {
	db *sql.DB
}

// OpenFailureLedger opens (creating if needed) the failures database at
// path and ensures its schema exists.
func OpenFailureLedger(path string) (*FailureLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open failure ledger: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS failed_items (
	book_id     TEXT NOT NULL,
	topic       TEXT NOT NULL,
	kind        TEXT NOT NULL,
	message     TEXT NOT NULL,
	occurred_at TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create failure ledger schema: %w", err)
	}

	return &FailureLedger{db: db}, nil
}

// Record inserts one failed-item row.
func (l *FailureLedger) Record(bookID, topic, kind, message string) error {
	_, err := l.db.Exec(
		`INSERT INTO failed_items (book_id, topic, kind, message, occurred_at) VALUES (?, ?, ?, ?, ?)`,
		bookID, topic, kind, message, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// CountByKind returns the number of recorded failures for each kind,
// the SQL query an operator would otherwise have to hand-write.
func (l *FailureLedger) CountByKind() (map[string]int, error) {
	rows, err := l.db.Query(`SELECT kind, COUNT(*) FROM failed_items GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		counts[kind] = count
	}
	return counts, rows.Err()
}

// Close closes the underlying database handle.
func (l *FailureLedger) Close() error {
	return l.db.Close()
}
