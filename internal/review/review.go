// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package review governs staging item status transitions.
//
//	pending -> claimed -> accepted | rejected
//	claimed -> pending (release or lease expiry)
//	accepted -> promoted (library merge)
//
// Rejected and promoted are terminal. A decision and its audit entry are
// written in one store transaction.
package review

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/logging"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/store"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

const defaultBulkConcurrency = 4

// fieldName limits change targets to plain identifiers; they become JSON
// paths inside the payload.
var fieldName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Store is the persistence the state machine needs.
type Store interface {
	DecideItem(ctx context.Context, req store.DecideRequest) (types.ReviewDecision, error)
	ListPending(ctx context.Context, now time.Time, limit int) ([]types.StagingExtraction, error)
	PromoteItem(ctx context.Context, itemID string, now time.Time) (types.LibraryEntity, error)
}

// Machine applies reviewer decisions under the configured policy.
type Machine struct {
	store Store
	cfg   types.ReviewConfig
	log   *zap.Logger
	now   func() time.Time
}

// New returns a Machine enforcing cfg.
func New(s Store, cfg types.ReviewConfig, logger *zap.Logger) *Machine {
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = defaultBulkConcurrency
	}
	return &Machine{
		store: s,
		cfg:   cfg,
		log:   logging.OrNop(logger).Named("review"),
		now:   time.Now,
	}
}

// Request is one reviewer decision.
type Request struct {
	ItemID     string
	ReviewerID string
	Decision   types.Decision
	Changes    []types.FieldChange
	Notes      string
}

// Decide moves a claimed item to accepted or rejected and appends the
// audit entry. The caller must hold the active claim.
func (m *Machine) Decide(ctx context.Context, req Request) (types.ReviewDecision, error) {
	if err := m.validate(req); err != nil {
		return types.ReviewDecision{}, err
	}

	d, err := m.store.DecideItem(ctx, store.DecideRequest{
		ItemID:     req.ItemID,
		ReviewerID: req.ReviewerID,
		Decision:   req.Decision,
		Changes:    req.Changes,
		Notes:      strings.TrimSpace(req.Notes),
		Now:        m.now(),
	})
	if err != nil {
		return types.ReviewDecision{}, err
	}

	m.log.Info("item decided",
		zap.String("item", req.ItemID),
		zap.String("reviewer", req.ReviewerID),
		zap.String("decision", string(req.Decision)),
		zap.String("rev_id", d.RevID),
		zap.Int("changes", len(req.Changes)))
	return d, nil
}

func (m *Machine) validate(req Request) error {
	if req.ItemID == "" || req.ReviewerID == "" {
		return fmt.Errorf("decision requires item and reviewer")
	}
	if !req.Decision.Valid() {
		return fmt.Errorf("unknown decision %q: must be approve or reject", req.Decision)
	}
	if req.Decision == types.DecisionReject && m.cfg.RequireRejectionReason && strings.TrimSpace(req.Notes) == "" {
		return fmt.Errorf("rejecting %s: %w", req.ItemID, types.ErrMissingReason)
	}
	for _, c := range req.Changes {
		if !fieldName.MatchString(c.Field) {
			return fmt.Errorf("invalid change field %q", c.Field)
		}
	}
	return nil
}

// BulkRequest applies one decision, with the same edits, to many items.
type BulkRequest struct {
	ItemIDs    []string
	ReviewerID string
	Decision   types.Decision
	Changes    []types.FieldChange
	Notes      string
}

// DecideMany applies the single-item contract to each id independently.
// A failure on one id never undoes another; results are returned in input
// order.
func (m *Machine) DecideMany(ctx context.Context, req BulkRequest) ([]types.ItemResult, error) {
	if !m.cfg.EnableBulkActions {
		return nil, types.ErrBulkActionsDisabled
	}

	results := make([]types.ItemResult, len(req.ItemIDs))

	var g errgroup.Group
	g.SetLimit(m.cfg.BulkConcurrency)
	for i, id := range req.ItemIDs {
		g.Go(func() error {
			d, err := m.Decide(ctx, Request{
				ItemID:     id,
				ReviewerID: req.ReviewerID,
				Decision:   req.Decision,
				Changes:    req.Changes,
				Notes:      req.Notes,
			})
			results[i] = types.ItemResult{ItemID: id, Err: err}
			if err == nil {
				results[i].Decision = &d
			}
			return nil
		})
	}
	g.Wait()

	var failed int
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	m.log.Info("bulk decision applied",
		zap.String("decision", string(req.Decision)),
		zap.Int("items", len(results)),
		zap.Int("failed", failed))
	return results, nil
}

// Queue returns reviewable items oldest first. Items whose lease lapsed are
// included.
func (m *Machine) Queue(ctx context.Context, limit int) ([]types.StagingExtraction, error) {
	items, err := m.store.ListPending(ctx, m.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("listing review queue: %w", err)
	}
	return items, nil
}

// Promote moves an accepted item into the library. Any other status fails
// with types.ErrInvalidTransition.
func (m *Machine) Promote(ctx context.Context, itemID string) (types.LibraryEntity, error) {
	e, err := m.store.PromoteItem(ctx, itemID, m.now())
	if err != nil {
		return types.LibraryEntity{}, err
	}
	m.log.Info("item promoted", zap.String("item", itemID), zap.String("key", e.Key))
	return e, nil
}
