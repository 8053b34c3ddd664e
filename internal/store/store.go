// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store is the transactional boundary of the orchestrator. Every
// remote procedure the components consume (claim_item, decide_item,
// append_audit, submit bookkeeping, evidence, stats) is a method here,
// backed by SQLite. Mutations are conditional updates inside a single
// transaction so concurrent reviewers cannot lose updates.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/logging"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

const (
	indexDir = "index"
	dbFile   = "curation.db"
)

// Store manages the orchestrator SQLite database.
type Store struct {
	db      *sql.DB
	dataDir string
	log     *zap.Logger
}

// Open opens or creates the database at dataDir/index/curation.db and
// creates the schema if it does not exist.
func Open(cfg types.StoreConfig, logger *zap.Logger) (*Store, error) {
	dbDir := filepath.Join(cfg.DataDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	// _txlock=immediate takes the write lock at BEGIN, so a read followed by
	// a guarded update inside one transaction cannot interleave with another
	// writer.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=%d&_txlock=immediate",
		filepath.Join(dbDir, dbFile), busy.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:      db,
		dataDir: cfg.DataDir,
		log:     logging.OrNop(logger),
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DataDir returns the base directory the store was opened with.
func (s *Store) DataDir() string {
	return s.dataDir
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS staging_extractions (
			id TEXT PRIMARY KEY,
			candidate_key TEXT NOT NULL,
			candidate_type TEXT NOT NULL,
			payload TEXT,
			confidence_score REAL NOT NULL DEFAULT 0,
			ecosystem TEXT NOT NULL DEFAULT '',
			evidence TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at INTEGER NOT NULL,
			reviewed_at INTEGER,
			claimed_by TEXT,
			claim_expires_at INTEGER,
			source TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_staging_status_created ON staging_extractions(status, created_at)`,
		`CREATE TABLE IF NOT EXISTS review_decisions (
			rev_id TEXT PRIMARY KEY,
			entity TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			decision TEXT NOT NULL,
			reviewer TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			changes TEXT,
			notes TEXT,
			corrects TEXT REFERENCES review_decisions(rev_id),
			UNIQUE(entity, timestamp, reviewer)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_review_decisions_ts ON review_decisions(timestamp)`,
		`CREATE TRIGGER IF NOT EXISTS review_decisions_no_update BEFORE UPDATE ON review_decisions BEGIN
			SELECT RAISE(ABORT, 'review decisions are append-only');
		END`,
		`CREATE TRIGGER IF NOT EXISTS review_decisions_no_delete BEFORE DELETE ON review_decisions BEGIN
			SELECT RAISE(ABORT, 'review decisions are append-only');
		END`,
		`CREATE TABLE IF NOT EXISTS discovery_tasks (
			task_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			seed_url TEXT NOT NULL,
			max_pages INTEGER NOT NULL,
			instructions TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS discovered_urls (
			task_id TEXT NOT NULL REFERENCES discovery_tasks(task_id),
			url TEXT NOT NULL,
			quality_score REAL NOT NULL DEFAULT 0,
			summary TEXT NOT NULL DEFAULT '',
			keywords TEXT,
			consumed INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (task_id, url)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_discovered_quality ON discovered_urls(quality_score DESC)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS evidence_sources (
			message_id TEXT NOT NULL REFERENCES messages(id),
			position INTEGER NOT NULL,
			type TEXT NOT NULL CHECK (type IN ('collective', 'notebook', 'external')),
			source_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			excerpt TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			relevance_score REAL,
			PRIMARY KEY (message_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS answer_metadata (
			message_id TEXT PRIMARY KEY REFERENCES messages(id),
			confidence REAL NOT NULL,
			freshness_days INTEGER NOT NULL,
			model_info TEXT,
			recorded_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS library_entities (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			ecosystem TEXT NOT NULL DEFAULT '',
			payload TEXT,
			confidence REAL NOT NULL DEFAULT 0,
			extraction_id TEXT NOT NULL,
			promoted_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ingest_status (
			file TEXT PRIMARY KEY,
			file_mod_time TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 index over the library with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='library_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE library_fts USING fts5(key, payload, content=library_entities, content_rowid=rowid)`,
			`CREATE TRIGGER library_ai AFTER INSERT ON library_entities BEGIN
				INSERT INTO library_fts(rowid, key, payload) VALUES (new.rowid, new.key, new.payload);
			END`,
			`CREATE TRIGGER library_ad AFTER DELETE ON library_entities BEGIN
				INSERT INTO library_fts(library_fts, rowid, key, payload) VALUES('delete', old.rowid, old.key, old.payload);
			END`,
			`CREATE TRIGGER library_au AFTER UPDATE ON library_entities BEGIN
				INSERT INTO library_fts(library_fts, rowid, key, payload) VALUES('delete', old.rowid, old.key, old.payload);
				INSERT INTO library_fts(rowid, key, payload) VALUES (new.rowid, new.key, new.payload);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// withTx runs fn inside a transaction, committing on success. Lock
// contention surfaces as types.ErrTransientStore.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("committing transaction: %w", err))
	}
	return nil
}

// classify marks SQLite busy and locked errors as transient.
func classify(err error) error {
	if err == nil || errors.Is(err, types.ErrTransientStore) {
		return err
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", types.ErrTransientStore, err)
	}
	return err
}

// Timestamps are stored as Unix nanoseconds so range comparisons happen
// in SQL.

func nanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
