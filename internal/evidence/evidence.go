// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package evidence records the sources behind produced answers and derives
// the aggregated confidence and freshness view shown next to them.
//
// The message is the primary write. Sources and the metadata summary are
// enrichment: each is retried independently and a failure is logged, never
// returned to the caller.
package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/logging"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

// FreshnessUnknown labels answers without recorded metadata.
const FreshnessUnknown = "unknown"

const enrichmentConcurrency = 4

// RetryDelay is the pause between enrichment attempts. Tests shorten it.
var RetryDelay = 100 * time.Millisecond

// Store is the persistence the aggregator needs.
type Store interface {
	CreateMessage(ctx context.Context, conversationID, content string, now time.Time) (string, error)
	AddEvidenceSource(ctx context.Context, messageID string, position int, src types.EvidenceSource) error
	PutAnswerMetadata(ctx context.Context, messageID string, meta types.AnswerMetadata) error
	GetAnswerEvidence(ctx context.Context, messageID string) (types.RawEvidence, error)
}

// Aggregator records and summarizes answer evidence.
type Aggregator struct {
	store Store
	cfg   types.EvidenceConfig
	log   *zap.Logger
	now   func() time.Time
}

// New returns an Aggregator bucketing confidence with cfg's thresholds.
func New(s Store, cfg types.EvidenceConfig, logger *zap.Logger) *Aggregator {
	if cfg.HighThreshold == 0 && cfg.MediumThreshold == 0 {
		cfg.HighThreshold, cfg.MediumThreshold = 0.75, 0.4
	}
	if cfg.EnrichmentRetries < 0 {
		cfg.EnrichmentRetries = 0
	}
	return &Aggregator{
		store: s,
		cfg:   cfg,
		log:   logging.OrNop(logger).Named("evidence"),
		now:   time.Now,
	}
}

// Answer is a produced answer with its citations.
type Answer struct {
	ConversationID string
	Content        string
	Sources        []types.EvidenceSource
	Confidence     float64
	FreshnessDays  int
	ModelInfo      map[string]any
}

// RecordAnswer stores the answer and returns its message id. Once the
// message exists the call succeeds even if some sources or the metadata
// could not be written. Sources of an unknown type are logged and dropped.
func (a *Aggregator) RecordAnswer(ctx context.Context, ans Answer) (string, error) {
	now := a.now()
	msgID, err := a.store.CreateMessage(ctx, ans.ConversationID, ans.Content, now)
	if err != nil {
		return "", fmt.Errorf("recording answer: %w", err)
	}

	log := a.log.With(zap.String("message", msgID))

	var modelInfo json.RawMessage
	if len(ans.ModelInfo) > 0 {
		if modelInfo, err = json.Marshal(ans.ModelInfo); err != nil {
			log.Warn("model info dropped", zap.Error(err))
			modelInfo = nil
		}
	}

	var g errgroup.Group
	g.SetLimit(enrichmentConcurrency)
	for i, src := range ans.Sources {
		if !src.Type.Valid() {
			log.Warn("evidence source dropped",
				zap.Int("position", i),
				zap.String("type", string(src.Type)))
			continue
		}
		g.Go(func() error {
			err := a.retry(ctx, func() error {
				return a.store.AddEvidenceSource(ctx, msgID, i, src)
			})
			if err != nil {
				log.Warn("evidence source not recorded",
					zap.Int("position", i),
					zap.String("type", string(src.Type)),
					zap.Error(err))
			}
			return nil
		})
	}
	g.Go(func() error {
		meta := types.AnswerMetadata{
			Confidence:    ans.Confidence,
			FreshnessDays: ans.FreshnessDays,
			ModelInfo:     modelInfo,
			RecordedAt:    now,
		}
		if err := a.retry(ctx, func() error {
			return a.store.PutAnswerMetadata(ctx, msgID, meta)
		}); err != nil {
			log.Warn("answer metadata not recorded", zap.Error(err))
		}
		return nil
	})
	g.Wait()

	log.Debug("answer recorded", zap.Int("sources", len(ans.Sources)))
	return msgID, nil
}

// retry runs fn up to 1+EnrichmentRetries times, stopping early when ctx
// is done.
func (a *Aggregator) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= a.cfg.EnrichmentRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(err, ctx.Err())
			case <-time.After(RetryDelay):
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

// GetEvidence returns the aggregated evidence for a message. Missing
// metadata yields low confidence and an unknown freshness label. A
// transient store failure yields a partial result instead of an error;
// an unknown message yields types.ErrNotFound.
func (a *Aggregator) GetEvidence(ctx context.Context, messageID string) (*types.AnswerEvidence, error) {
	raw, err := a.store.GetAnswerEvidence(ctx, messageID)
	switch {
	case errors.Is(err, types.ErrTransientStore):
		a.log.Warn("evidence read degraded", zap.String("message", messageID), zap.Error(err))
		return &types.AnswerEvidence{
			MessageID:      messageID,
			Confidence:     types.ConfidenceLow,
			FreshnessLabel: FreshnessUnknown,
			Sources:        []types.EvidenceSource{},
			Partial:        true,
		}, nil
	case err != nil:
		return nil, fmt.Errorf("reading evidence for %s: %w", messageID, err)
	}
	return a.Summarize(raw), nil
}

// Summarize tallies source types and buckets the recorded confidence.
func (a *Aggregator) Summarize(raw types.RawEvidence) *types.AnswerEvidence {
	ev := &types.AnswerEvidence{
		MessageID: raw.MessageID,
		Sources:   raw.Sources,
	}
	if ev.Sources == nil {
		ev.Sources = []types.EvidenceSource{}
	}

	for _, src := range raw.Sources {
		switch src.Type {
		case types.SourceCollective:
			ev.CollectiveCount++
		case types.SourceNotebook:
			ev.NotebookCount++
		case types.SourceExternal:
			ev.ExternalCount++
		}
	}

	if raw.Metadata == nil {
		ev.Confidence = types.ConfidenceLow
		ev.FreshnessLabel = FreshnessUnknown
		ev.Partial = true
		return ev
	}
	ev.Confidence = a.Bucket(raw.Metadata.Confidence)
	ev.FreshnessLabel = FreshnessLabel(raw.Metadata.FreshnessDays)
	return ev
}

// Bucket maps a producer-supplied confidence to a level.
func (a *Aggregator) Bucket(confidence float64) types.ConfidenceLevel {
	switch {
	case confidence >= a.cfg.HighThreshold:
		return types.ConfidenceHigh
	case confidence >= a.cfg.MediumThreshold:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}

// FreshnessLabel renders the age of the newest source in days.
func FreshnessLabel(days int) string {
	switch {
	case days < 0:
		return FreshnessUnknown
	case days == 0:
		return "today"
	case days == 1:
		return "yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	case days < 14:
		return "1 week ago"
	case days < 30:
		return fmt.Sprintf("%d weeks ago", days/7)
	case days < 60:
		return "1 month ago"
	default:
		return fmt.Sprintf("%d months ago", days/30)
	}
}
