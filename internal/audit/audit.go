// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package audit is the append-only record of review decisions. Entries are
// never updated or deleted; a correction is a new entry that references
// the one it amends.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/logging"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

// Store is the persistence the audit log needs.
type Store interface {
	AppendAudit(ctx context.Context, d types.ReviewDecision) (string, error)
	GetAudit(ctx context.Context, revID string) (types.ReviewDecision, error)
	QueryAudit(ctx context.Context, f types.AuditFilter) ([]types.ReviewDecision, error)
}

// Log appends and queries review decisions.
type Log struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

// New returns a Log over store.
func New(store Store, logger *zap.Logger) *Log {
	return &Log{
		store: store,
		log:   logging.OrNop(logger).Named("audit"),
		now:   time.Now,
	}
}

// Append records d and returns its rev id. Retrying an identical entry
// returns the original rev id. A different entry with the same entity,
// timestamp and reviewer fails with types.ErrAuditConflict.
func (l *Log) Append(ctx context.Context, d types.ReviewDecision) (string, error) {
	if d.Entity == "" || d.Reviewer == "" {
		return "", errors.New("audit entry requires entity and reviewer")
	}
	if d.Decision == "" {
		return "", errors.New("audit entry requires a decision")
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = l.now()
	}

	revID, err := l.store.AppendAudit(ctx, d)
	if err != nil {
		return "", fmt.Errorf("appending audit entry for %s: %w", d.Entity, err)
	}
	l.log.Debug("audit appended",
		zap.String("rev_id", revID),
		zap.String("entity", d.Entity),
		zap.String("decision", string(d.Decision)))
	return revID, nil
}

// Query returns entries matching f, newest first.
func (l *Log) Query(ctx context.Context, f types.AuditFilter) ([]types.ReviewDecision, error) {
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return nil, fmt.Errorf("empty date range %s to %s", f.From.Format(time.RFC3339), f.To.Format(time.RFC3339))
	}
	entries, err := l.store.QueryAudit(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	return entries, nil
}

// Correct appends an entry amending revID. The corrected entry stays as it
// was written.
func (l *Log) Correct(ctx context.Context, revID, reviewer, notes string) (string, error) {
	if strings.TrimSpace(notes) == "" {
		return "", fmt.Errorf("correcting %s: %w", revID, types.ErrMissingReason)
	}

	orig, err := l.store.GetAudit(ctx, revID)
	if err != nil {
		return "", fmt.Errorf("loading entry %s: %w", revID, err)
	}

	return l.Append(ctx, types.ReviewDecision{
		Entity:    orig.Entity,
		Type:      orig.Type,
		Decision:  types.DecisionCorrection,
		Reviewer:  reviewer,
		Timestamp: l.now(),
		Notes:     notes,
		Corrects:  orig.RevID,
	})
}
