// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

// CreateMessage stores an answer and returns its message id.
func (s *Store) CreateMessage(ctx context.Context, conversationID, content string, now time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, content, created_at) VALUES (?, ?, ?, ?)`,
		id, conversationID, content, nanos(now))
	if err != nil {
		return "", classify(fmt.Errorf("creating message: %w", err))
	}
	return id, nil
}

// AddEvidenceSource records the source at position for a message. A retry
// with the same position is a no-op.
func (s *Store) AddEvidenceSource(ctx context.Context, messageID string, position int, src types.EvidenceSource) error {
	var relevance sql.NullFloat64
	if src.RelevanceScore != nil {
		relevance = sql.NullFloat64{Float64: *src.RelevanceScore, Valid: true}
	}
	if !src.Type.Valid() {
		return fmt.Errorf("recording source %d for %s: unknown source type %q", position, messageID, src.Type)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evidence_sources
			(message_id, position, type, source_id, title, excerpt, url, relevance_score)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(message_id, position) DO NOTHING`,
		messageID, position, string(src.Type), src.SourceID, src.Title, src.Excerpt, src.URL, relevance)
	if err != nil {
		return classify(fmt.Errorf("recording source %d for %s: %w", position, messageID, err))
	}
	return nil
}

// PutAnswerMetadata records the confidence and freshness summary.
func (s *Store) PutAnswerMetadata(ctx context.Context, messageID string, meta types.AnswerMetadata) error {
	var modelInfo sql.NullString
	if len(meta.ModelInfo) > 0 {
		modelInfo = sql.NullString{String: string(meta.ModelInfo), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO answer_metadata (message_id, confidence, freshness_days, model_info, recorded_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(message_id) DO NOTHING`,
		messageID, meta.Confidence, meta.FreshnessDays, modelInfo, nanos(meta.RecordedAt))
	if err != nil {
		return classify(fmt.Errorf("recording metadata for %s: %w", messageID, err))
	}
	return nil
}

// GetAnswerEvidence returns the raw sources and metadata of a message.
func (s *Store) GetAnswerEvidence(ctx context.Context, messageID string) (types.RawEvidence, error) {
	raw := types.RawEvidence{MessageID: messageID}

	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM messages WHERE id = ?`, messageID,
	).Scan(&exists); err != nil {
		return raw, classify(fmt.Errorf("looking up message: %w", err))
	}
	if exists == 0 {
		return raw, fmt.Errorf("message %s: %w", messageID, types.ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT type, source_id, title, excerpt, url, relevance_score
		 FROM evidence_sources WHERE message_id = ? ORDER BY position`, messageID)
	if err != nil {
		return raw, classify(fmt.Errorf("reading sources: %w", err))
	}
	for rows.Next() {
		var (
			src       types.EvidenceSource
			srcType   string
			relevance sql.NullFloat64
		)
		if err := rows.Scan(&srcType, &src.SourceID, &src.Title, &src.Excerpt, &src.URL, &relevance); err != nil {
			rows.Close()
			return raw, fmt.Errorf("scanning source: %w", err)
		}
		src.Type = types.SourceType(srcType)
		if relevance.Valid {
			r := relevance.Float64
			src.RelevanceScore = &r
		}
		raw.Sources = append(raw.Sources, src)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return raw, classify(err)
	}

	var (
		meta       types.AnswerMetadata
		modelInfo  sql.NullString
		recordedAt int64
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT confidence, freshness_days, model_info, recorded_at FROM answer_metadata WHERE message_id = ?`,
		messageID,
	).Scan(&meta.Confidence, &meta.FreshnessDays, &modelInfo, &recordedAt)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return raw, classify(fmt.Errorf("reading metadata: %w", err))
	default:
		if modelInfo.Valid {
			meta.ModelInfo = json.RawMessage(modelInfo.String)
		}
		meta.RecordedAt = fromNanos(recordedAt)
		raw.Metadata = &meta
	}

	return raw, nil
}
