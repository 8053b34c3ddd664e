// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

const stagingColumns = `id, candidate_key, candidate_type, payload, confidence_score,
	ecosystem, evidence, status, created_at, reviewed_at, claimed_by, claim_expires_at`

// InsertExtraction adds a pending candidate. Records without an id get a
// stable one derived from source, type, and key, so re-ingesting the same
// batch does not duplicate candidates. It reports false when the id
// already exists.
func (s *Store) InsertExtraction(ctx context.Context, rec types.ExtractionRecord, source string, now time.Time) (string, bool, error) {
	var (
		id       string
		inserted bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, inserted, err = insertExtractionTx(ctx, tx, rec, source, now)
		return err
	})
	return id, inserted, err
}

func insertExtractionTx(ctx context.Context, tx *sql.Tx, rec types.ExtractionRecord, source string, now time.Time) (string, bool, error) {
	if strings.TrimSpace(rec.CandidateKey) == "" {
		return "", false, fmt.Errorf("candidate_key is required")
	}
	if !rec.CandidateType.Valid() {
		return "", false, fmt.Errorf("unknown candidate_type %q", rec.CandidateType)
	}
	if rec.ConfidenceScore < 0 || rec.ConfidenceScore > 1 {
		return "", false, fmt.Errorf("confidence_score %.3f outside [0, 1]", rec.ConfidenceScore)
	}

	id := rec.ID
	if id == "" {
		name := source + "\x00" + string(rec.CandidateType) + "\x00" + rec.CandidateKey
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
	}

	payload, err := marshalOptional(rec.Payload)
	if err != nil {
		return "", false, fmt.Errorf("encoding payload: %w", err)
	}
	evidence, err := marshalOptional(rec.Evidence)
	if err != nil {
		return "", false, fmt.Errorf("encoding evidence: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO staging_extractions
			(id, candidate_key, candidate_type, payload, confidence_score, ecosystem, evidence, status, created_at, source)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)`,
		id, rec.CandidateKey, string(rec.CandidateType), payload, rec.ConfidenceScore,
		rec.Ecosystem, evidence, nanos(now), source,
	)
	if err != nil {
		return "", false, fmt.Errorf("inserting extraction %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return id, n > 0, nil
}

func marshalOptional(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// GetItem returns one staging extraction as it reads at now: a lapsed
// claim is presented as pending.
func (s *Store) GetItem(ctx context.Context, id string, now time.Time) (*types.StagingExtraction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stagingColumns+` FROM staging_extractions WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("item %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("looking up item %s: %w", id, err))
	}
	item.Normalize(now)
	return item, nil
}

// ListPending returns reviewable items oldest first. Items whose claim
// lapsed before now are included as pending.
func (s *Store) ListPending(ctx context.Context, now time.Time, limit int) ([]types.StagingExtraction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stagingColumns+` FROM staging_extractions
		 WHERE status = 'pending'
		    OR (status = 'claimed' AND (claim_expires_at IS NULL OR claim_expires_at <= ?))
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`, nanos(now), limit)
	if err != nil {
		return nil, classify(fmt.Errorf("listing pending items: %w", err))
	}
	return collectItems(rows, now)
}

// ListByStatus returns items currently in status, oldest first. Status is
// evaluated after lapsed claims are normalized.
func (s *Store) ListByStatus(ctx context.Context, status types.StagingStatus, now time.Time, limit int) ([]types.StagingExtraction, error) {
	if status == types.StatusPending {
		return s.ListPending(ctx, now, limit)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + stagingColumns + ` FROM staging_extractions WHERE status = ?`
	args := []any{string(status)}
	if status == types.StatusClaimed {
		query += ` AND claim_expires_at > ?`
		args = append(args, nanos(now))
	}
	query += ` ORDER BY created_at ASC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("listing %s items: %w", status, err))
	}
	return collectItems(rows, now)
}

// ClaimItem grants reviewerID an exclusive lease until expiresAt. The
// guard admits pending items, lapsed claims, and renewals by the holder.
func (s *Store) ClaimItem(ctx context.Context, itemID, reviewerID string, now, expiresAt time.Time) (types.Claim, error) {
	var claim types.Claim
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		prior, err := lockState(ctx, tx, itemID)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE staging_extractions
			 SET status = 'claimed', claimed_by = ?, claim_expires_at = ?
			 WHERE id = ?
			   AND (status = 'pending'
			        OR (status = 'claimed'
			            AND (claimed_by = ? OR claim_expires_at IS NULL OR claim_expires_at <= ?)))`,
			reviewerID, nanos(expiresAt), itemID, reviewerID, nanos(now))
		if err != nil {
			return fmt.Errorf("claiming item %s: %w", itemID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if prior.status != types.StatusClaimed {
				return fmt.Errorf("claiming item %s in status %s: %w", itemID, prior.status, types.ErrInvalidTransition)
			}
			return fmt.Errorf("claiming item %s: %w", itemID, types.ErrAlreadyClaimed)
		}

		claim = types.Claim{
			ItemID:     itemID,
			ReviewerID: reviewerID,
			ExpiresAt:  fromNanos(nanos(expiresAt)),
			Renewed:    prior.activeHolder(now) == reviewerID,
		}
		return nil
	})
	return claim, err
}

// ReleaseItem returns a claimed item to pending. Only the holder of an
// unexpired lease may release it.
func (s *Store) ReleaseItem(ctx context.Context, itemID, reviewerID string, now time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE staging_extractions
			 SET status = 'pending', claimed_by = NULL, claim_expires_at = NULL
			 WHERE id = ? AND status = 'claimed' AND claimed_by = ? AND claim_expires_at > ?`,
			itemID, reviewerID, nanos(now))
		if err != nil {
			return fmt.Errorf("releasing item %s: %w", itemID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if _, err := lockState(ctx, tx, itemID); err != nil {
				return err
			}
			return fmt.Errorf("releasing item %s: %w", itemID, types.ErrNotClaimHolder)
		}
		return nil
	})
}

// SweepClaims resets every lease that lapsed at or before now. Running it
// again is a no-op.
func (s *Store) SweepClaims(ctx context.Context, now time.Time) (int, error) {
	var swept int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE staging_extractions
			 SET status = 'pending', claimed_by = NULL, claim_expires_at = NULL
			 WHERE status = 'claimed' AND (claim_expires_at IS NULL OR claim_expires_at <= ?)`,
			nanos(now))
		if err != nil {
			return fmt.Errorf("sweeping claims: %w", err)
		}
		n, _ := res.RowsAffected()
		swept = int(n)
		return nil
	})
	return swept, err
}

// DecideRequest carries one review decision to DecideItem.
type DecideRequest struct {
	ItemID     string
	ReviewerID string
	Decision   types.Decision
	Changes    []types.FieldChange
	Notes      string
	Now        time.Time
}

// DecideItem moves a claimed item to its terminal review state and appends
// the audit entry in the same transaction: either both persist or neither.
func (s *Store) DecideItem(ctx context.Context, req DecideRequest) (types.ReviewDecision, error) {
	var decision types.ReviewDecision
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE staging_extractions
			 SET status = ?, reviewed_at = ?, claimed_by = NULL, claim_expires_at = NULL
			 WHERE id = ? AND status = 'claimed' AND claimed_by = ? AND claim_expires_at > ?`,
			string(req.Decision.TargetStatus()), nanos(req.Now), req.ItemID, req.ReviewerID, nanos(req.Now))
		if err != nil {
			return fmt.Errorf("deciding item %s: %w", req.ItemID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if _, err := lockState(ctx, tx, req.ItemID); err != nil {
				return err
			}
			return fmt.Errorf("deciding item %s: %w", req.ItemID, types.ErrNotClaimHolder)
		}

		if err := applyChanges(ctx, tx, req.ItemID, req.Changes); err != nil {
			return err
		}

		var candidateType string
		if err := tx.QueryRowContext(ctx,
			`SELECT candidate_type FROM staging_extractions WHERE id = ?`, req.ItemID,
		).Scan(&candidateType); err != nil {
			return fmt.Errorf("reading candidate type: %w", err)
		}

		decision = types.ReviewDecision{
			Entity:    req.ItemID,
			Type:      types.CandidateType(candidateType),
			Decision:  req.Decision,
			Reviewer:  req.ReviewerID,
			Timestamp: fromNanos(nanos(req.Now)),
			Changes:   req.Changes,
			Notes:     req.Notes,
		}
		revID, err := appendAuditTx(ctx, tx, decision)
		if err != nil {
			return err
		}
		decision.RevID = revID
		return nil
	})
	return decision, err
}

// applyChanges writes reviewer edits onto the item. Top-level columns are
// updated directly; any other field lands in the payload object.
func applyChanges(ctx context.Context, tx *sql.Tx, itemID string, changes []types.FieldChange) error {
	for _, c := range changes {
		var err error
		switch c.Field {
		case "candidate_key", "ecosystem":
			_, err = tx.ExecContext(ctx,
				`UPDATE staging_extractions SET `+c.Field+` = ? WHERE id = ?`, c.To, itemID)
		case "candidate_type":
			if !types.CandidateType(c.To).Valid() {
				return fmt.Errorf("change to candidate_type: unknown type %q", c.To)
			}
			_, err = tx.ExecContext(ctx,
				`UPDATE staging_extractions SET candidate_type = ? WHERE id = ?`, c.To, itemID)
		default:
			_, err = tx.ExecContext(ctx,
				`UPDATE staging_extractions SET payload = json_set(COALESCE(payload, '{}'), ?, ?) WHERE id = ?`,
				"$."+c.Field, c.To, itemID)
		}
		if err != nil {
			return fmt.Errorf("applying change to %s: %w", c.Field, err)
		}
	}
	return nil
}

type itemState struct {
	status    types.StagingStatus
	claimedBy sql.NullString
	expiresAt sql.NullInt64
}

func (st itemState) activeHolder(now time.Time) string {
	if st.status == types.StatusClaimed && st.claimedBy.Valid &&
		st.expiresAt.Valid && st.expiresAt.Int64 > nanos(now) {
		return st.claimedBy.String
	}
	return ""
}

// lockState reads the guard columns inside tx. Missing items map to
// types.ErrNotFound.
func lockState(ctx context.Context, tx *sql.Tx, itemID string) (itemState, error) {
	var (
		st     itemState
		status string
	)
	err := tx.QueryRowContext(ctx,
		`SELECT status, claimed_by, claim_expires_at FROM staging_extractions WHERE id = ?`, itemID,
	).Scan(&status, &st.claimedBy, &st.expiresAt)
	if err == sql.ErrNoRows {
		return st, fmt.Errorf("item %s: %w", itemID, types.ErrNotFound)
	}
	if err != nil {
		return st, fmt.Errorf("reading item %s: %w", itemID, err)
	}
	st.status = types.StagingStatus(status)
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*types.StagingExtraction, error) {
	var (
		item       types.StagingExtraction
		itemType   string
		status     string
		payload    sql.NullString
		evidence   sql.NullString
		createdAt  int64
		reviewedAt sql.NullInt64
		claimedBy  sql.NullString
		expiresAt  sql.NullInt64
	)
	if err := row.Scan(
		&item.ID, &item.CandidateKey, &itemType, &payload, &item.ConfidenceScore,
		&item.Ecosystem, &evidence, &status, &createdAt, &reviewedAt, &claimedBy, &expiresAt,
	); err != nil {
		return nil, err
	}
	item.CandidateType = types.CandidateType(itemType)
	item.Status = types.StagingStatus(status)
	item.CreatedAt = fromNanos(createdAt)
	item.ReviewedAt = nullNanos(reviewedAt)
	item.ClaimExpiresAt = nullNanos(expiresAt)
	if claimedBy.Valid {
		item.ClaimedBy = claimedBy.String
	}
	if payload.Valid {
		item.Payload = json.RawMessage(payload.String)
	}
	if evidence.Valid {
		item.Evidence = json.RawMessage(evidence.String)
	}
	return &item, nil
}

func collectItems(rows *sql.Rows, now time.Time) ([]types.StagingExtraction, error) {
	defer rows.Close()
	var items []types.StagingExtraction
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		item.Normalize(now)
		items = append(items, *item)
	}
	return items, classify(rows.Err())
}
