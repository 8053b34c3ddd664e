// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

// AppendAudit writes one review decision. Appends are idempotent on
// (entity, timestamp, reviewer): a retry carrying the same entry returns the
// rev id already written, and a different entry under that key fails with
// types.ErrAuditConflict.
func (s *Store) AppendAudit(ctx context.Context, d types.ReviewDecision) (string, error) {
	var revID string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		revID, err = appendAuditTx(ctx, tx, d)
		return err
	})
	return revID, err
}

func appendAuditTx(ctx context.Context, tx *sql.Tx, d types.ReviewDecision) (string, error) {
	if d.Corrects != "" {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT count(*) FROM review_decisions WHERE rev_id = ?`, d.Corrects,
		).Scan(&exists); err != nil {
			return "", fmt.Errorf("checking corrected entry: %w", err)
		}
		if exists == 0 {
			return "", fmt.Errorf("corrected entry %s: %w", d.Corrects, types.ErrNotFound)
		}
	}

	changes := d.Changes
	if changes == nil {
		changes = []types.FieldChange{}
	}
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return "", fmt.Errorf("encoding changes: %w", err)
	}

	revID := d.RevID
	if revID == "" {
		revID = uuid.NewString()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO review_decisions (rev_id, entity, type, decision, reviewer, timestamp, changes, notes, corrects)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(entity, timestamp, reviewer) DO NOTHING`,
		revID, d.Entity, string(d.Type), string(d.Decision), d.Reviewer, nanos(d.Timestamp),
		string(changesJSON), nullString(d.Notes), nullString(d.Corrects),
	)
	if err != nil {
		return "", fmt.Errorf("appending audit entry: %w", err)
	}

	var (
		stored                      string
		typ, decision               string
		storedChanges               sql.NullString
		storedNotes, storedCorrects sql.NullString
	)
	if err := tx.QueryRowContext(ctx,
		`SELECT rev_id, type, decision, changes, notes, corrects
		 FROM review_decisions WHERE entity = ? AND timestamp = ? AND reviewer = ?`,
		d.Entity, nanos(d.Timestamp), d.Reviewer,
	).Scan(&stored, &typ, &decision, &storedChanges, &storedNotes, &storedCorrects); err != nil {
		return "", fmt.Errorf("reading audit entry: %w", err)
	}

	if typ != string(d.Type) ||
		decision != string(d.Decision) ||
		storedChanges.String != string(changesJSON) ||
		storedNotes.String != d.Notes ||
		storedCorrects.String != d.Corrects {
		return "", fmt.Errorf("entry %s already recorded for %s by %s at %s: %w",
			stored, d.Entity, d.Reviewer, d.Timestamp.UTC().Format(time.RFC3339Nano), types.ErrAuditConflict)
	}
	return stored, nil
}

// GetAudit returns one audit entry by rev id.
func (s *Store) GetAudit(ctx context.Context, revID string) (types.ReviewDecision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rev_id, entity, type, decision, reviewer, timestamp, changes, notes, corrects
		 FROM review_decisions WHERE rev_id = ?`, revID)
	if err != nil {
		return types.ReviewDecision{}, classify(fmt.Errorf("looking up audit entry: %w", err))
	}
	entries, err := collectAudit(rows)
	if err != nil {
		return types.ReviewDecision{}, err
	}
	if len(entries) == 0 {
		return types.ReviewDecision{}, fmt.Errorf("audit entry %s: %w", revID, types.ErrNotFound)
	}
	return entries[0], nil
}

// QueryAudit returns entries matching f, newest first.
func (s *Store) QueryAudit(ctx context.Context, f types.AuditFilter) ([]types.ReviewDecision, error) {
	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(
		`SELECT rev_id, entity, type, decision, reviewer, timestamp, changes, notes, corrects
		 FROM review_decisions WHERE 1=1`)

	if f.Decision != "" {
		qb.WriteString(` AND decision = ?`)
		args = append(args, string(f.Decision))
	}
	if f.Reviewer != "" {
		qb.WriteString(` AND reviewer = ?`)
		args = append(args, f.Reviewer)
	}
	if f.Entity != "" {
		qb.WriteString(` AND entity = ?`)
		args = append(args, f.Entity)
	}
	if !f.From.IsZero() {
		qb.WriteString(` AND timestamp >= ?`)
		args = append(args, nanos(f.From))
	}
	if !f.To.IsZero() {
		qb.WriteString(` AND timestamp < ?`)
		args = append(args, nanos(f.To))
	}

	qb.WriteString(` ORDER BY timestamp DESC, rev_id DESC`)
	if f.Limit > 0 {
		qb.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, classify(fmt.Errorf("querying audit log: %w", err))
	}
	return collectAudit(rows)
}

func collectAudit(rows *sql.Rows) ([]types.ReviewDecision, error) {
	defer rows.Close()

	var entries []types.ReviewDecision
	for rows.Next() {
		var (
			d           types.ReviewDecision
			entityType  string
			decision    string
			ts          int64
			changesJSON sql.NullString
			notes       sql.NullString
			corrects    sql.NullString
		)
		if err := rows.Scan(&d.RevID, &d.Entity, &entityType, &decision, &d.Reviewer,
			&ts, &changesJSON, &notes, &corrects); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		d.Type = types.CandidateType(entityType)
		d.Decision = types.Decision(decision)
		d.Timestamp = fromNanos(ts)
		d.Notes = notes.String
		d.Corrects = corrects.String
		if changesJSON.Valid {
			json.Unmarshal([]byte(changesJSON.String), &d.Changes)
		}
		entries = append(entries, d)
	}
	return entries, classify(rows.Err())
}
