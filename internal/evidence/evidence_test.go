// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package evidence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/store"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

func init() {
	RetryDelay = time.Millisecond
}

var defaultCfg = types.EvidenceConfig{HighThreshold: 0.75, MediumThreshold: 0.4, EnrichmentRetries: 2}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(types.StoreConfig{DataDir: t.TempDir()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// flakyStore fails selected writes a fixed number of times before
// delegating to the real store.
type flakyStore struct {
	Store

	mu            sync.Mutex
	sourceFails   map[int]int
	metadataFails int
	readErr       error
}

func (f *flakyStore) AddEvidenceSource(ctx context.Context, messageID string, position int, src types.EvidenceSource) error {
	f.mu.Lock()
	if f.sourceFails[position] > 0 {
		f.sourceFails[position]--
		f.mu.Unlock()
		return fmt.Errorf("%w: database is locked", types.ErrTransientStore)
	}
	f.mu.Unlock()
	return f.Store.AddEvidenceSource(ctx, messageID, position, src)
}

func (f *flakyStore) PutAnswerMetadata(ctx context.Context, messageID string, meta types.AnswerMetadata) error {
	f.mu.Lock()
	if f.metadataFails > 0 {
		f.metadataFails--
		f.mu.Unlock()
		return errors.New("disk I/O error")
	}
	f.mu.Unlock()
	return f.Store.PutAnswerMetadata(ctx, messageID, meta)
}

func (f *flakyStore) GetAnswerEvidence(ctx context.Context, messageID string) (types.RawEvidence, error) {
	if f.readErr != nil {
		return types.RawEvidence{}, f.readErr
	}
	return f.Store.GetAnswerEvidence(ctx, messageID)
}

func sampleAnswer() Answer {
	score := 0.9
	return Answer{
		ConversationID: "conv-42",
		Content:        "The radio downlinks at 9600 baud.",
		Sources: []types.EvidenceSource{
			{Type: types.SourceCollective, Title: "Comms ICD"},
			{Type: types.SourceNotebook, Title: "Bench notes", Excerpt: "9600 baud verified"},
			{Type: types.SourceExternal, Title: "Vendor datasheet", URL: "https://vendor.example.com/radio.pdf", RelevanceScore: &score},
			{Type: types.SourceCollective, Title: "Link budget"},
		},
		Confidence:    0.82,
		FreshnessDays: 3,
		ModelInfo:     map[string]any{"model": "retriever-v2"},
	}
}

func TestRecordAndGetEvidence(t *testing.T) {
	a := New(openStore(t), defaultCfg, nil)
	ctx := context.Background()

	msgID, err := a.RecordAnswer(ctx, sampleAnswer())
	require.NoError(t, err)

	ev, err := a.GetEvidence(ctx, msgID)
	require.NoError(t, err)

	want := &types.AnswerEvidence{
		MessageID:       msgID,
		CollectiveCount: 2,
		NotebookCount:   1,
		ExternalCount:   1,
		Confidence:      types.ConfidenceHigh,
		FreshnessLabel:  "3 days ago",
		Sources:         sampleAnswer().Sources,
	}
	if diff := cmp.Diff(want, ev); diff != "" {
		t.Errorf("evidence mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordAnswerRetriesEnrichment(t *testing.T) {
	fs := &flakyStore{
		Store:         openStore(t),
		sourceFails:   map[int]int{1: 2},
		metadataFails: 1,
	}
	a := New(fs, defaultCfg, nil)
	ctx := context.Background()

	msgID, err := a.RecordAnswer(ctx, sampleAnswer())
	require.NoError(t, err)

	ev, err := a.GetEvidence(ctx, msgID)
	require.NoError(t, err)
	assert.Len(t, ev.Sources, 4)
	assert.False(t, ev.Partial)
}

func TestRecordAnswerEnrichmentFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	fs := &flakyStore{
		Store:         openStore(t),
		sourceFails:   map[int]int{2: 10},
		metadataFails: 10,
	}
	a := New(fs, defaultCfg, zap.New(core))
	ctx := context.Background()

	msgID, err := a.RecordAnswer(ctx, sampleAnswer())
	require.NoError(t, err, "enrichment failures must not fail the answer")
	assert.NotEmpty(t, msgID)

	assert.Equal(t, 1, logs.FilterMessage("evidence source not recorded").Len())
	assert.Equal(t, 1, logs.FilterMessage("answer metadata not recorded").Len())

	ev, err := a.GetEvidence(ctx, msgID)
	require.NoError(t, err)
	assert.Len(t, ev.Sources, 3)
	assert.Zero(t, ev.ExternalCount)
	assert.Equal(t, types.ConfidenceLow, ev.Confidence)
	assert.Equal(t, FreshnessUnknown, ev.FreshnessLabel)
	assert.True(t, ev.Partial)
}

func TestRecordAnswerDropsUnknownSourceType(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	a := New(openStore(t), defaultCfg, zap.New(core))
	ctx := context.Background()

	ans := sampleAnswer()
	ans.Sources = append(ans.Sources, types.EvidenceSource{Type: "forum", Title: "Mailing list thread"})

	msgID, err := a.RecordAnswer(ctx, ans)
	require.NoError(t, err)

	dropped := logs.FilterMessage("evidence source dropped")
	require.Equal(t, 1, dropped.Len())
	assert.Equal(t, "forum", dropped.All()[0].ContextMap()["type"])

	ev, err := a.GetEvidence(ctx, msgID)
	require.NoError(t, err)
	assert.Len(t, ev.Sources, 4)
	assert.Equal(t, len(ev.Sources), ev.CollectiveCount+ev.NotebookCount+ev.ExternalCount)
}

func TestRecordAnswerPrimaryFailure(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Close())

	a := New(s, defaultCfg, nil)
	_, err := a.RecordAnswer(context.Background(), sampleAnswer())
	assert.Error(t, err)
}

func TestGetEvidenceZeroSources(t *testing.T) {
	a := New(openStore(t), defaultCfg, nil)
	ctx := context.Background()

	msgID, err := a.RecordAnswer(ctx, Answer{ConversationID: "c", Content: "no citations", Confidence: 0.5, FreshnessDays: 0})
	require.NoError(t, err)

	ev, err := a.GetEvidence(ctx, msgID)
	require.NoError(t, err)
	assert.Zero(t, ev.CollectiveCount)
	assert.Zero(t, ev.NotebookCount)
	assert.Zero(t, ev.ExternalCount)
	assert.Equal(t, types.ConfidenceMedium, ev.Confidence)
	assert.Equal(t, "today", ev.FreshnessLabel)
	assert.NotNil(t, ev.Sources)
}

func TestGetEvidenceUnknownMessage(t *testing.T) {
	a := New(openStore(t), defaultCfg, nil)
	_, err := a.GetEvidence(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestGetEvidenceTransientDegrades(t *testing.T) {
	fs := &flakyStore{Store: openStore(t), readErr: fmt.Errorf("%w: database is locked", types.ErrTransientStore)}
	a := New(fs, defaultCfg, nil)

	ev, err := a.GetEvidence(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.True(t, ev.Partial)
	assert.Equal(t, "msg-1", ev.MessageID)
	assert.Equal(t, types.ConfidenceLow, ev.Confidence)
}

func TestBucket(t *testing.T) {
	tests := []struct {
		cfg  types.EvidenceConfig
		in   float64
		want types.ConfidenceLevel
	}{
		{defaultCfg, 0.75, types.ConfidenceHigh},
		{defaultCfg, 0.7499, types.ConfidenceMedium},
		{defaultCfg, 0.4, types.ConfidenceMedium},
		{defaultCfg, 0.39, types.ConfidenceLow},
		{types.EvidenceConfig{}, 0.8, types.ConfidenceHigh},
		{types.EvidenceConfig{HighThreshold: 0.9, MediumThreshold: 0.6}, 0.8, types.ConfidenceMedium},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, New(nil, tt.cfg, nil).Bucket(tt.in))
		})
	}
}

func TestFreshnessLabel(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{-1, FreshnessUnknown},
		{0, "today"},
		{1, "yesterday"},
		{5, "5 days ago"},
		{7, "1 week ago"},
		{21, "3 weeks ago"},
		{45, "1 month ago"},
		{95, "3 months ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FreshnessLabel(tt.days), "days=%d", tt.days)
	}
}
