package pipeline

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Ledger appends well state transitions to a SQLite file for later audit. A
// nil *Ledger is a valid no-op ledger, so callers never branch on whether
// one was configured.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens or creates the ledger database at path.
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS well_runs (
			run_id TEXT,
			h5 TEXT,
			stream TEXT,
			state TEXT,
			detail TEXT,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger %s: %w", path, err)
	}
	return &Ledger{db: db}, nil
}

// Record appends one state transition.
func (l *Ledger) Record(runID, h5, stream string, state WellState, detail string) error {
	if l == nil {
		return nil
	}
	_, err := l.db.Exec(
		"INSERT INTO well_runs (run_id, h5, stream, state, detail) VALUES (?, ?, ?, ?, ?)",
		runID, h5, stream, state.String(), detail,
	)
	if err != nil {
		return fmt.Errorf("ledger record %s %s: %w", stream, state, err)
	}
	return nil
}

// Transition is one recorded state change.
type Transition struct {
	RunID  string
	Stream string
	State  string
	Detail string
}

// History returns the transitions recorded for a file, in insertion order.
func (l *Ledger) History(h5 string) ([]Transition, error) {
	if l == nil {
		return nil, nil
	}
	rows, err := l.db.Query(
		"SELECT run_id, stream, state, detail FROM well_runs WHERE h5 = ? ORDER BY rowid",
		h5,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ts []Transition
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.RunID, &t.Stream, &t.State, &t.Detail); err != nil {
			return nil, err
		}
		ts = append(ts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ts, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}
