// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package library is the canonical store of promoted entities. Accepted
// staging items merge into it; each merge moves the item to promoted in
// the same transaction.
package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/logging"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/store"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

const defaultMaxResults = 20

// Store is the persistence the library needs.
type Store interface {
	ListAcceptedIDs(ctx context.Context) ([]string, error)
	PromoteItem(ctx context.Context, itemID string, now time.Time) (types.LibraryEntity, error)
	RetrieveLibrary(ctx context.Context, q store.LibraryQuery) ([]types.LibraryEntity, error)
}

// Library merges accepted items and serves promoted entities.
type Library struct {
	store   Store
	dataDir string
	log     *zap.Logger
	now     func() time.Time
}

// New returns a Library exporting under dataDir/export.
func New(s Store, dataDir string, logger *zap.Logger) *Library {
	return &Library{
		store:   s,
		dataDir: dataDir,
		log:     logging.OrNop(logger).Named("library"),
		now:     time.Now,
	}
}

// MergeSummary holds counts from one merge run.
type MergeSummary struct {
	Promoted int
	Skipped  int
	Failed   int
}

// Merge promotes every accepted item. Items that left the accepted state
// since they were listed are skipped. Other failures are collected and
// returned together after the remaining items are merged.
func (l *Library) Merge(ctx context.Context) (MergeSummary, error) {
	ids, err := l.store.ListAcceptedIDs(ctx)
	if err != nil {
		return MergeSummary{}, fmt.Errorf("listing accepted items: %w", err)
	}

	var (
		summary MergeSummary
		errs    []error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		e, err := l.store.PromoteItem(ctx, id, l.now())
		switch {
		case err == nil:
			summary.Promoted++
			l.log.Debug("entity merged", zap.String("item", id), zap.String("key", e.Key))
		case errors.Is(err, types.ErrInvalidTransition), errors.Is(err, types.ErrNotFound):
			summary.Skipped++
		default:
			summary.Failed++
			errs = append(errs, fmt.Errorf("promoting %s: %w", id, err))
		}
	}

	l.log.Info("library merge finished",
		zap.Int("promoted", summary.Promoted),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return summary, errors.Join(errs...)
}

// QueryOptions holds parameters for library queries.
type QueryOptions struct {
	// Query is an FTS5 search over keys and payloads.
	Query string

	Type      types.CandidateType
	Ecosystem string

	// MaxResults limits result count. Zero uses the default of 20.
	MaxResults int
}

// Retrieve returns promoted entities matching opts, ranked by relevance
// for full-text queries and sorted by key otherwise.
func (l *Library) Retrieve(ctx context.Context, opts QueryOptions) ([]types.LibraryEntity, error) {
	if opts.Type != "" && !opts.Type.Valid() {
		return nil, fmt.Errorf("unknown entity type %q", opts.Type)
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	entities, err := l.store.RetrieveLibrary(ctx, store.LibraryQuery{
		Query:      opts.Query,
		Type:       opts.Type,
		Ecosystem:  opts.Ecosystem,
		MaxResults: maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieving library entities: %w", err)
	}
	return entities, nil
}
