// Package history records finished backup runs and transfers in the
// shell-local database so the activity view survives restarts.
package history

import (
	"database/sql"
	"fmt"
	"time"
)

// Kind distinguishes activity entries.
type Kind string

const (
	KindRun      Kind = "run"
	KindTransfer Kind = "transfer"
)

// Entry is one row in the activity journal.
type Entry struct {
	ID         int64     `json:"id"`
	Kind       Kind      `json:"kind"`
	Subject    string    `json:"subject"` // backup set id or transfer target path
	Label      string    `json:"label"`   // set name or file name
	Status     string    `json:"status"`
	Files      uint64    `json:"files"`
	Bytes      uint64    `json:"bytes"`
	Detail     string    `json:"detail,omitempty"` // error message on failure
	OccurredAt time.Time `json:"occurred_at"`
}

type Journal struct {
	db *sql.DB
}

func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Record appends one entry. OccurredAt defaults to now when zero.
func (j *Journal) Record(e Entry) error {
	at := e.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := j.db.Exec(
		`INSERT INTO activity (kind, subject, label, status, files, bytes, detail, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.Kind), e.Subject, e.Label, e.Status, e.Files, e.Bytes, e.Detail, at,
	)
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first.
func (j *Journal) List(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.Query(
		`SELECT id, kind, subject, label, status, files, bytes, detail, occurred_at
		 FROM activity ORDER BY occurred_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Subject, &e.Label, &e.Status,
			&e.Files, &e.Bytes, &e.Detail, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan activity entry: %w", err)
		}
		e.Kind = Kind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries older than the cutoff and returns how many went.
func (j *Journal) Prune(olderThan time.Time) (int64, error) {
	res, err := j.db.Exec(`DELETE FROM activity WHERE occurred_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune activity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune activity: %w", err)
	}
	return n, nil
}
