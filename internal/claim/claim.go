// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package claim grants, renews, releases, and expires time-boxed exclusive
// leases on staging items so at most one reviewer acts on an item at a time.
//
// Expiry is evaluated whenever an item is read: a lease whose expiry is at
// or before now reads as pending. A periodic sweep resets lapsed leases in
// the store so queue depth reflects them too.
package claim

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/logging"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

// DefaultTTL applies when the configuration leaves the claim TTL unset.
const DefaultTTL = 120 * time.Minute

// Store is the persistence the claim manager needs. ClaimItem must grant
// the lease in one conditional update.
type Store interface {
	ClaimItem(ctx context.Context, itemID, reviewerID string, now, expiresAt time.Time) (types.Claim, error)
	ReleaseItem(ctx context.Context, itemID, reviewerID string, now time.Time) error
	SweepClaims(ctx context.Context, now time.Time) (int, error)
	GetItem(ctx context.Context, id string, now time.Time) (*types.StagingExtraction, error)
}

// Manager coordinates reviewer leases.
type Manager struct {
	store Store
	ttl   time.Duration
	log   *zap.Logger

	// now is the clock; tests replace it.
	now func() time.Time
}

// New returns a Manager using cfg.ClaimTTL as the default lease duration.
func New(store Store, cfg types.ReviewConfig, logger *zap.Logger) *Manager {
	ttl := cfg.ClaimTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store: store,
		ttl:   ttl,
		log:   logging.OrNop(logger).Named("claim"),
		now:   time.Now,
	}
}

// TTL returns the default lease duration.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Claim leases itemID to reviewerID for ttl, or the default TTL when ttl is
// not positive. A reviewer re-claiming an item they hold extends the lease.
// Another reviewer's unexpired lease yields types.ErrAlreadyClaimed.
func (m *Manager) Claim(ctx context.Context, itemID, reviewerID string, ttl time.Duration) (types.Claim, error) {
	if reviewerID == "" {
		return types.Claim{}, fmt.Errorf("claiming %s: reviewer id is required", itemID)
	}
	if ttl <= 0 {
		ttl = m.ttl
	}

	now := m.now()
	c, err := m.store.ClaimItem(ctx, itemID, reviewerID, now, now.Add(ttl))
	if err != nil {
		return types.Claim{}, err
	}

	m.log.Info("claim granted",
		zap.String("item", itemID),
		zap.String("reviewer", reviewerID),
		zap.Time("expires_at", c.ExpiresAt),
		zap.Bool("renewed", c.Renewed))
	return c, nil
}

// Release returns itemID to the pending queue. Only the holder of the
// active lease may release it.
func (m *Manager) Release(ctx context.Context, itemID, reviewerID string) error {
	if err := m.store.ReleaseItem(ctx, itemID, reviewerID, m.now()); err != nil {
		return err
	}
	m.log.Info("claim released", zap.String("item", itemID), zap.String("reviewer", reviewerID))
	return nil
}

// Get returns the item as it reads now; a lapsed lease reads as pending.
func (m *Manager) Get(ctx context.Context, itemID string) (*types.StagingExtraction, error) {
	return m.store.GetItem(ctx, itemID, m.now())
}

// Sweep resets every lapsed lease and reports how many were reclaimed.
// Sweeping again is a no-op.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	n, err := m.store.SweepClaims(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("sweeping expired claims: %w", err)
	}
	if n > 0 {
		m.log.Info("expired claims reclaimed", zap.Int("count", n))
	}
	return n, nil
}

// RunSweeper sweeps every interval until ctx is cancelled. Sweep errors are
// logged and the loop keeps running.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				m.log.Warn("claim sweep failed", zap.Error(err))
			}
		}
	}
}
