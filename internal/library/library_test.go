// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package library

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"go.yaml.in/yaml/v3"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/store"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

var t0 = time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)

func testLibrary(t *testing.T) (*Library, *store.Store) {
	t.Helper()
	s, err := store.Open(types.StoreConfig{DataDir: t.TempDir()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	l := New(s, s.DataDir(), zaptest.NewLogger(t))
	l.now = func() time.Time { return t0.Add(time.Hour) }
	return l, s
}

// accept stages an item and approves it through a claim.
func accept(t *testing.T, s *store.Store, key string, typ types.CandidateType, payload map[string]any) string {
	t.Helper()
	ctx := context.Background()
	id, _, err := s.InsertExtraction(ctx, types.ExtractionRecord{
		CandidateKey:    key,
		CandidateType:   typ,
		Payload:         payload,
		ConfidenceScore: 0.9,
		Ecosystem:       "fprime",
	}, "library-test", t0)
	require.NoError(t, err)

	_, err = s.ClaimItem(ctx, id, "reviewer-1", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	_, err = s.DecideItem(ctx, store.DecideRequest{
		ItemID: id, ReviewerID: "reviewer-1", Decision: types.DecisionApprove, Now: t0.Add(time.Minute),
	})
	require.NoError(t, err)
	return id
}

func TestMergePromotesAcceptedItems(t *testing.T) {
	l, s := testLibrary(t)
	ctx := context.Background()

	a := accept(t, s, "eps_bus_voltage", types.CandidateTelemetry, map[string]any{"units": "V"})
	b := accept(t, s, "reaction_wheel", types.CandidateComponent, nil)

	summary, err := l.Merge(ctx)
	require.NoError(t, err)
	assert.Equal(t, MergeSummary{Promoted: 2}, summary)

	for _, id := range []string{a, b} {
		item, err := s.GetItem(ctx, id, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, types.StatusPromoted, item.Status)
	}

	again, err := l.Merge(ctx)
	require.NoError(t, err)
	assert.Equal(t, MergeSummary{}, again, "promoted items are not merged twice")
}

type racingStore struct {
	Store
	ids []string
	err map[string]error
}

func (r racingStore) ListAcceptedIDs(context.Context) ([]string, error) { return r.ids, nil }

func (r racingStore) PromoteItem(_ context.Context, id string, _ time.Time) (types.LibraryEntity, error) {
	if err, ok := r.err[id]; ok {
		return types.LibraryEntity{}, err
	}
	return types.LibraryEntity{Key: id}, nil
}

func TestMergeSkipsRacesAndCollectsFailures(t *testing.T) {
	diskErr := errors.New("disk I/O error")
	l := New(racingStore{
		ids: []string{"a", "b", "c", "d"},
		err: map[string]error{
			"b": types.ErrInvalidTransition,
			"c": diskErr,
		},
	}, t.TempDir(), nil)

	summary, err := l.Merge(context.Background())
	assert.ErrorIs(t, err, diskErr)
	assert.Contains(t, err.Error(), "promoting c")
	assert.Equal(t, MergeSummary{Promoted: 2, Skipped: 1, Failed: 1}, summary)
}

func TestRetrieve(t *testing.T) {
	l, s := testLibrary(t)
	ctx := context.Background()

	accept(t, s, "star_tracker_quaternion", types.CandidateTelemetry, map[string]any{"frame": "ECI"})
	accept(t, s, "magnetorquer", types.CandidateComponent, map[string]any{"axis": "z"})
	_, err := l.Merge(ctx)
	require.NoError(t, err)

	all, err := l.Retrieve(ctx, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "magnetorquer", all[0].Key, "unranked results sort by key")

	byText, err := l.Retrieve(ctx, QueryOptions{Query: "quaternion*"})
	require.NoError(t, err)
	require.Len(t, byText, 1)
	assert.Equal(t, "star_tracker_quaternion", byText[0].Key)

	byType, err := l.Retrieve(ctx, QueryOptions{Type: types.CandidateComponent})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "magnetorquer", byType[0].Key)

	limited, err := l.Retrieve(ctx, QueryOptions{MaxResults: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = l.Retrieve(ctx, QueryOptions{Type: "spacecraft"})
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	l, s := testLibrary(t)
	ctx := context.Background()

	id := accept(t, s, "eps_bus_voltage", types.CandidateTelemetry, map[string]any{"units": "V"})
	_, err := l.Merge(ctx)
	require.NoError(t, err)

	yamlPath, err := l.ExportYAML(ctx, QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.DataDir(), "export", "library.yaml"), yamlPath)

	data, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	var fromYAML []ExportEntry
	require.NoError(t, yaml.Unmarshal(data, &fromYAML))
	require.Len(t, fromYAML, 1)
	assert.Equal(t, "eps_bus_voltage", fromYAML[0].Key)
	assert.Equal(t, "telemetry", fromYAML[0].Type)
	assert.Equal(t, id, fromYAML[0].ExtractionID)
	assert.Equal(t, "V", fromYAML[0].Attributes["units"])

	jsonPath, err := l.ExportJSON(ctx, QueryOptions{Ecosystem: "fprime"})
	require.NoError(t, err)

	data, err = os.ReadFile(jsonPath)
	require.NoError(t, err)
	var fromJSON []ExportEntry
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	require.Len(t, fromJSON, 1)
	assert.Equal(t, 0.9, fromJSON[0].Confidence)
	assert.True(t, fromJSON[0].PromotedAt.Equal(t0.Add(time.Hour)))
}

func TestExportEmptyLibrary(t *testing.T) {
	l, _ := testLibrary(t)

	path, err := l.ExportJSON(context.Background(), QueryOptions{})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}
