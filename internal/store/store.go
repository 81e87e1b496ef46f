// Package store provides SQLite-backed persistence for workflow
// outcomes, so operators can review what the engine did and when.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hochfrequenz/triagebot/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	repo        TEXT NOT NULL,
	item_number INTEGER NOT NULL,
	is_pr       INTEGER NOT NULL DEFAULT 0,
	trigger     TEXT NOT NULL,
	status      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outcomes_repo_item ON outcomes(repo, item_number);
CREATE INDEX IF NOT EXISTS idx_outcomes_created ON outcomes(created_at);

CREATE TABLE IF NOT EXISTS passes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	items       INTEGER NOT NULL DEFAULT 0,
	errors      INTEGER NOT NULL DEFAULT 0
);
`

// Store provides SQLite-backed outcome persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Single writer; the engine is sequential anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// OutcomeRecord is one persisted workflow outcome.
type OutcomeRecord struct {
	ID         int64
	Repo       string
	ItemNumber int
	IsPR       bool
	Trigger    domain.TriggerKind
	Status     domain.OutcomeStatus
	Detail     string
	CreatedAt  time.Time
}

// RecordOutcome persists the outcome of one workflow invocation.
func (s *Store) RecordOutcome(repo domain.Repo, item domain.Item, out domain.Outcome) error {
	detail := out.Reason
	if out.Err != nil {
		detail = out.Err.Error()
	}
	_, err := s.db.Exec(`
		INSERT INTO outcomes (repo, item_number, is_pr, trigger, status, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, repo.String(), item.Number, item.IsPR, string(out.Kind), string(out.Status), detail, time.Now().UTC())
	return err
}

// ListOptions specifies filters for listing outcomes
type ListOptions struct {
	Repo   string
	Status domain.OutcomeStatus
	Limit  int
}

// ListOutcomes returns outcomes matching the given options, newest
// first.
func (s *Store) ListOutcomes(opts ListOptions) ([]OutcomeRecord, error) {
	query := `SELECT id, repo, item_number, is_pr, trigger, status, detail, created_at FROM outcomes WHERE 1=1`
	var args []interface{}

	if opts.Repo != "" {
		query += " AND repo = ?"
		args = append(args, opts.Repo)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	query += " ORDER BY created_at DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []OutcomeRecord
	for rows.Next() {
		var r OutcomeRecord
		var trig, status string
		if err := rows.Scan(&r.ID, &r.Repo, &r.ItemNumber, &r.IsPR, &trig, &status, &r.Detail, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Trigger = domain.TriggerKind(trig)
		r.Status = domain.OutcomeStatus(status)
		records = append(records, r)
	}
	return records, rows.Err()
}

// LastOutcome returns the most recent outcome for an item, if any.
func (s *Store) LastOutcome(repo domain.Repo, number int) (*OutcomeRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, repo, item_number, is_pr, trigger, status, detail, created_at
		FROM outcomes WHERE repo = ? AND item_number = ?
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, repo.String(), number)

	var r OutcomeRecord
	var trig, status string
	err := row.Scan(&r.ID, &r.Repo, &r.ItemNumber, &r.IsPR, &trig, &status, &r.Detail, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Trigger = domain.TriggerKind(trig)
	r.Status = domain.OutcomeStatus(status)
	return &r, nil
}

// StartPass records the beginning of a processing pass and returns its
// id.
func (s *Store) StartPass() (int64, error) {
	res, err := s.db.Exec(`INSERT INTO passes (started_at) VALUES (?)`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinishPass closes a processing pass with its item and error counts.
func (s *Store) FinishPass(id int64, items, errors int) error {
	_, err := s.db.Exec(`
		UPDATE passes SET finished_at = ?, items = ?, errors = ? WHERE id = ?
	`, time.Now().UTC(), items, errors, id)
	return err
}
