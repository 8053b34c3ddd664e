// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

// ListAcceptedIDs returns accepted items awaiting promotion, oldest first.
func (s *Store) ListAcceptedIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM staging_extractions WHERE status = 'accepted' ORDER BY reviewed_at ASC, id ASC`)
	if err != nil {
		return nil, classify(fmt.Errorf("listing accepted items: %w", err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, classify(rows.Err())
}

// PromoteItem merges an accepted item into the library and marks it
// promoted in one transaction. An existing entity with the same key is
// replaced by the newer promotion.
func (s *Store) PromoteItem(ctx context.Context, itemID string, now time.Time) (types.LibraryEntity, error) {
	var entity types.LibraryEntity
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			status   string
			itemType string
			payload  sql.NullString
		)
		err := tx.QueryRowContext(ctx,
			`SELECT status, candidate_key, candidate_type, ecosystem, payload, confidence_score
			 FROM staging_extractions WHERE id = ?`, itemID,
		).Scan(&status, &entity.Key, &itemType, &entity.Ecosystem, &payload, &entity.Confidence)
		if err == sql.ErrNoRows {
			return fmt.Errorf("item %s: %w", itemID, types.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("reading item %s: %w", itemID, err)
		}
		if types.StagingStatus(status) != types.StatusAccepted {
			return fmt.Errorf("promoting item %s in status %s: %w", itemID, status, types.ErrInvalidTransition)
		}

		entity.Type = types.CandidateType(itemType)
		entity.ExtractionID = itemID
		entity.PromotedAt = fromNanos(nanos(now))
		if payload.Valid {
			entity.Payload = json.RawMessage(payload.String)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO library_entities (key, type, ecosystem, payload, confidence, extraction_id, promoted_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET
				type=excluded.type, ecosystem=excluded.ecosystem, payload=excluded.payload,
				confidence=excluded.confidence, extraction_id=excluded.extraction_id,
				promoted_at=excluded.promoted_at`,
			entity.Key, itemType, entity.Ecosystem, payload, entity.Confidence, itemID, nanos(now),
		); err != nil {
			return fmt.Errorf("merging %s into library: %w", entity.Key, err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE staging_extractions SET status = 'promoted' WHERE id = ? AND status = 'accepted'`, itemID,
		); err != nil {
			return fmt.Errorf("marking %s promoted: %w", itemID, err)
		}
		return nil
	})
	return entity, err
}

// LibraryQuery holds parameters for library retrieval.
type LibraryQuery struct {
	// Query is an FTS5 search over entity keys and payloads.
	Query string

	Type      types.CandidateType
	Ecosystem string

	// MaxResults limits result count. Zero means no limit.
	MaxResults int
}

// RetrieveLibrary returns library entities, ranked by relevance for
// full-text queries and by key otherwise.
func (s *Store) RetrieveLibrary(ctx context.Context, q LibraryQuery) ([]types.LibraryEntity, error) {
	var (
		qb     strings.Builder
		args   []any
		useFTS = q.Query != ""
	)

	if useFTS {
		qb.WriteString(
			`SELECT l.key, l.type, l.ecosystem, l.payload, l.confidence, l.extraction_id, l.promoted_at
			FROM library_fts
			JOIN library_entities l ON l.rowid = library_fts.rowid
			WHERE library_fts MATCH ?`)
		args = append(args, q.Query)
	} else {
		qb.WriteString(
			`SELECT l.key, l.type, l.ecosystem, l.payload, l.confidence, l.extraction_id, l.promoted_at
			FROM library_entities l
			WHERE 1=1`)
	}

	if q.Type != "" {
		qb.WriteString(` AND l.type = ?`)
		args = append(args, string(q.Type))
	}
	if q.Ecosystem != "" {
		qb.WriteString(` AND l.ecosystem = ?`)
		args = append(args, q.Ecosystem)
	}

	if useFTS {
		qb.WriteString(` ORDER BY library_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY l.key`)
	}
	if q.MaxResults > 0 {
		qb.WriteString(` LIMIT ?`)
		args = append(args, q.MaxResults)
	}

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, classify(fmt.Errorf("querying library: %w", err))
	}
	defer rows.Close()

	var out []types.LibraryEntity
	for rows.Next() {
		var (
			e          types.LibraryEntity
			entityType string
			payload    sql.NullString
			promotedAt int64
		)
		if err := rows.Scan(&e.Key, &entityType, &e.Ecosystem, &payload, &e.Confidence,
			&e.ExtractionID, &promotedAt); err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		e.Type = types.CandidateType(entityType)
		e.PromotedAt = fromNanos(promotedAt)
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		out = append(out, e)
	}
	return out, classify(rows.Err())
}
