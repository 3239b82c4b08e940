// Package sqlite persists scores in a single-file SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lizardjazz1/morning-quiz-bot/internal/ledger"
)

const schema = `
CREATE TABLE IF NOT EXISTS quiz_scores (
    chat_id        INTEGER NOT NULL,
    user_id        INTEGER NOT NULL,
    display_name   TEXT    NOT NULL DEFAULT '',
    score          INTEGER NOT NULL DEFAULT 0,
    answered_polls TEXT    NOT NULL DEFAULT '[]',
    milestones     TEXT    NOT NULL DEFAULT '[]',
    updated_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (chat_id, user_id)
);`

const upsertScore = `
INSERT INTO quiz_scores (chat_id, user_id, display_name, score, answered_polls, milestones, updated_at)
VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (chat_id, user_id) DO UPDATE SET
    display_name   = excluded.display_name,
    score          = excluded.score,
    answered_polls = excluded.answered_polls,
    milestones     = excluded.milestones,
    updated_at     = CURRENT_TIMESTAMP`

// Store implements ledger.Store on top of SQLite.
type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

// Open creates the database file and schema if missing.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database file is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Load(ctx context.Context) (ledger.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT chat_id, user_id, display_name, score, answered_polls, milestones
FROM quiz_scores ORDER BY chat_id, user_id`)
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var snap ledger.Snapshot
	for rows.Next() {
		var (
			e                    ledger.Entry
			answered, milestones string
		)
		if err := rows.Scan(&e.ChatID, &e.UserID, &e.Name, &e.Score, &answered, &milestones); err != nil {
			return ledger.Snapshot{}, fmt.Errorf("scan score: %w", err)
		}
		if err := json.Unmarshal([]byte(answered), &e.AnsweredPolls); err != nil {
			return ledger.Snapshot{}, fmt.Errorf("decode answered polls for %d/%d: %w", e.ChatID, e.UserID, err)
		}
		if err := json.Unmarshal([]byte(milestones), &e.Milestones); err != nil {
			return ledger.Snapshot{}, fmt.Errorf("decode milestones for %d/%d: %w", e.ChatID, e.UserID, err)
		}
		snap.Entries = append(snap.Entries, e)
	}
	return snap, rows.Err()
}

func (s *Store) Save(ctx context.Context, snap ledger.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertScore)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range snap.Entries {
		answered, err := json.Marshal(nonNil(e.AnsweredPolls))
		if err != nil {
			return err
		}
		milestones, err := json.Marshal(nonNilInts(e.Milestones))
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, e.ChatID, e.UserID, e.Name, e.Score, string(answered), string(milestones)); err != nil {
			return fmt.Errorf("upsert %d/%d: %w", e.ChatID, e.UserID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
