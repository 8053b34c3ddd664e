// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package review

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/store"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

var t0 = time.Date(2026, 7, 20, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store   *store.Store
	machine *Machine
	now     time.Time
}

func newFixture(t *testing.T, cfg types.ReviewConfig) *fixture {
	t.Helper()
	s, err := store.Open(types.StoreConfig{DataDir: t.TempDir()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{store: s, now: t0}
	f.machine = New(s, cfg, zaptest.NewLogger(t))
	f.machine.now = func() time.Time { return f.now }
	return f
}

func defaultPolicy() types.ReviewConfig {
	return types.ReviewConfig{
		ClaimTTL:               time.Hour,
		RequireRejectionReason: true,
		EnableBulkActions:      true,
		BulkConcurrency:        2,
	}
}

// seedClaimed inserts an item and claims it for reviewer through the store
// so the claim is evaluated against the fixture clock.
func (f *fixture) seedClaimed(t *testing.T, key, reviewer string) string {
	t.Helper()
	id := f.seed(t, key)
	_, err := f.store.ClaimItem(context.Background(), id, reviewer, f.now, f.now.Add(time.Hour))
	require.NoError(t, err)
	return id
}

func (f *fixture) seed(t *testing.T, key string) string {
	t.Helper()
	id, _, err := f.store.InsertExtraction(context.Background(), types.ExtractionRecord{
		CandidateKey: key, CandidateType: types.CandidateTelemetry, ConfidenceScore: 0.7,
		Payload: map[string]any{"units": "degC"},
	}, "review-test", f.now.Add(-time.Hour))
	require.NoError(t, err)
	return id
}

func TestDecideApprove(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	id := f.seedClaimed(t, "panel_temp", "alice")

	d, err := f.machine.Decide(ctx, Request{
		ItemID: id, ReviewerID: "alice", Decision: types.DecisionApprove,
		Changes: []types.FieldChange{{Field: "units", From: "degC", To: "K"}},
	})
	require.NoError(t, err)
	assert.Equal(t, types.DecisionApprove, d.Decision)
	assert.Equal(t, types.CandidateTelemetry, d.Type)

	item, err := f.store.GetItem(ctx, id, f.now)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAccepted, item.Status)
	require.NotNil(t, item.ReviewedAt)
	assert.JSONEq(t, `{"units":"K"}`, string(item.Payload))

	entries, err := f.store.QueryAudit(ctx, types.AuditFilter{Entity: id})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDecideRejectPolicy(t *testing.T) {
	tests := []struct {
		name          string
		requireReason bool
		notes         string
		wantErr       error
	}{
		{"reason required and missing", true, "", types.ErrMissingReason},
		{"reason required and blank", true, "   ", types.ErrMissingReason},
		{"reason required and given", true, "duplicate of EPS entry", nil},
		{"reason optional and missing", false, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultPolicy()
			cfg.RequireRejectionReason = tt.requireReason
			f := newFixture(t, cfg)
			id := f.seedClaimed(t, "bus_current", "alice")

			_, err := f.machine.Decide(context.Background(), Request{
				ItemID: id, ReviewerID: "alice", Decision: types.DecisionReject, Notes: tt.notes,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				item, gerr := f.store.GetItem(context.Background(), id, f.now)
				require.NoError(t, gerr)
				assert.Equal(t, types.StatusClaimed, item.Status)
				return
			}
			require.NoError(t, err)
			item, err := f.store.GetItem(context.Background(), id, f.now)
			require.NoError(t, err)
			assert.Equal(t, types.StatusRejected, item.Status)
		})
	}
}

func TestDecideValidation(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	id := f.seedClaimed(t, "x", "alice")

	tests := []struct {
		name string
		req  Request
	}{
		{"unknown decision", Request{ItemID: id, ReviewerID: "alice", Decision: "maybe"}},
		{"correction is not a review decision", Request{ItemID: id, ReviewerID: "alice", Decision: types.DecisionCorrection}},
		{"missing reviewer", Request{ItemID: id, Decision: types.DecisionApprove}},
		{"field path injection", Request{ItemID: id, ReviewerID: "alice", Decision: types.DecisionApprove,
			Changes: []types.FieldChange{{Field: "a.b", To: "c"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.machine.Decide(context.Background(), tt.req)
			assert.Error(t, err)
		})
	}
}

func TestDecideWithoutClaim(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	id := f.seed(t, "unclaimed")
	held := f.seedClaimed(t, "held", "bob")

	_, err := f.machine.Decide(ctx, Request{ItemID: id, ReviewerID: "alice", Decision: types.DecisionApprove})
	assert.ErrorIs(t, err, types.ErrNotClaimHolder)

	_, err = f.machine.Decide(ctx, Request{ItemID: held, ReviewerID: "alice", Decision: types.DecisionApprove})
	assert.ErrorIs(t, err, types.ErrNotClaimHolder)

	entries, err := f.store.QueryAudit(ctx, types.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExpiredClaimCannotDecide(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	id := f.seed(t, "reaction_wheel")

	_, err := f.store.ClaimItem(ctx, id, "alice", f.now, f.now.Add(time.Second))
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Second)
	_, err = f.store.ClaimItem(ctx, id, "bob", f.now, f.now.Add(time.Hour))
	require.NoError(t, err)

	_, err = f.machine.Decide(ctx, Request{ItemID: id, ReviewerID: "alice", Decision: types.DecisionApprove})
	assert.ErrorIs(t, err, types.ErrNotClaimHolder)

	_, err = f.machine.Decide(ctx, Request{ItemID: id, ReviewerID: "bob", Decision: types.DecisionApprove})
	assert.NoError(t, err)
}

func TestDecideManyPartialSuccess(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	a := f.seedClaimed(t, "a", "alice")
	b := f.seed(t, "b")
	c := f.seedClaimed(t, "c", "alice")

	results, err := f.machine.DecideMany(ctx, BulkRequest{
		ItemIDs: []string{a, b, c}, ReviewerID: "alice", Decision: types.DecisionApprove,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, a, results[0].ItemID)
	assert.True(t, results[0].OK())
	require.NotNil(t, results[0].Decision)
	assert.Equal(t, types.DecisionApprove, results[0].Decision.Decision)

	assert.Equal(t, b, results[1].ItemID)
	assert.ErrorIs(t, results[1].Err, types.ErrNotClaimHolder)
	assert.Nil(t, results[1].Decision)

	assert.True(t, results[2].OK())

	item, err := f.store.GetItem(ctx, a, f.now)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAccepted, item.Status)
}

func TestDecideManyAppliesChanges(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	a := f.seedClaimed(t, "panel_temp_x", "alice")
	b := f.seedClaimed(t, "panel_temp_y", "alice")
	changes := []types.FieldChange{{Field: "units", From: "degC", To: "K"}}

	results, err := f.machine.DecideMany(ctx, BulkRequest{
		ItemIDs: []string{a, b}, ReviewerID: "alice", Decision: types.DecisionApprove, Changes: changes,
	})
	require.NoError(t, err)

	for _, r := range results {
		require.True(t, r.OK(), r.ItemID)
		assert.Equal(t, changes, r.Decision.Changes)

		item, err := f.store.GetItem(ctx, r.ItemID, f.now)
		require.NoError(t, err)
		assert.JSONEq(t, `{"units":"K"}`, string(item.Payload))

		entries, err := f.store.QueryAudit(ctx, types.AuditFilter{Entity: r.ItemID})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, changes, entries[0].Changes)
	}
}

func TestDecideManyDisabled(t *testing.T) {
	cfg := defaultPolicy()
	cfg.EnableBulkActions = false
	f := newFixture(t, cfg)

	_, err := f.machine.DecideMany(context.Background(), BulkRequest{
		ItemIDs: []string{"a"}, ReviewerID: "alice", Decision: types.DecisionApprove,
	})
	assert.ErrorIs(t, err, types.ErrBulkActionsDisabled)
}

func TestQueueOldestFirst(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()

	older, _, err := f.store.InsertExtraction(ctx, types.ExtractionRecord{
		CandidateKey: "older", CandidateType: types.CandidateComponent,
	}, "q", f.now.Add(-2*time.Hour))
	require.NoError(t, err)
	newer, _, err := f.store.InsertExtraction(ctx, types.ExtractionRecord{
		CandidateKey: "newer", CandidateType: types.CandidateComponent,
	}, "q", f.now.Add(-time.Hour))
	require.NoError(t, err)
	claimed := f.seedClaimed(t, "claimed", "alice")

	items, err := f.machine.Queue(ctx, 10)
	require.NoError(t, err)

	var ids []string
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{older, newer}, ids)
	assert.NotContains(t, ids, claimed)
}

func TestPromote(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	id := f.seedClaimed(t, "imu", "alice")

	_, err := f.machine.Promote(ctx, id)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	_, err = f.machine.Decide(ctx, Request{ItemID: id, ReviewerID: "alice", Decision: types.DecisionApprove})
	require.NoError(t, err)

	e, err := f.machine.Promote(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "imu", e.Key)

	_, err = f.machine.Promote(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}
