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

// statusRank mirrors types.TaskState.Rank in SQL.
const statusRank = `CASE status WHEN 'queued' THEN 1 WHEN 'running' THEN 2 WHEN 'completed' THEN 3 WHEN 'failed' THEN 3 ELSE 0 END`

// InsertTask records a newly submitted discovery task.
func (s *Store) InsertTask(ctx context.Context, t types.DiscoveryTask) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO discovery_tasks (task_id, status, seed_url, max_pages, instructions, detail, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TaskID, string(t.Status), t.SeedURL, t.MaxPages, t.Instructions, t.Detail,
		nanos(t.CreatedAt), nanos(t.UpdatedAt))
	if err != nil {
		return classify(fmt.Errorf("inserting task %s: %w", t.TaskID, err))
	}
	return nil
}

// GetTask returns a discovery task by id.
func (s *Store) GetTask(ctx context.Context, taskID string) (types.DiscoveryTask, error) {
	return getTask(ctx, s.db, taskID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTask(ctx context.Context, q queryRower, taskID string) (types.DiscoveryTask, error) {
	var (
		t         types.DiscoveryTask
		status    string
		createdAt int64
		updatedAt int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT task_id, status, seed_url, max_pages, instructions, detail, created_at, updated_at
		 FROM discovery_tasks WHERE task_id = ?`, taskID,
	).Scan(&t.TaskID, &status, &t.SeedURL, &t.MaxPages, &t.Instructions, &t.Detail, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return t, fmt.Errorf("task %s: %w", taskID, types.ErrNotFound)
	}
	if err != nil {
		return t, classify(fmt.Errorf("looking up task %s: %w", taskID, err))
	}
	t.Status = types.TaskState(status)
	t.CreatedAt = fromNanos(createdAt)
	t.UpdatedAt = fromNanos(updatedAt)
	return t, nil
}

// ListTasks returns tasks newest first.
func (s *Store) ListTasks(ctx context.Context, limit int) ([]types.DiscoveryTask, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id FROM discovery_tasks ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("listing tasks: %w", err))
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning task id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	tasks := make([]types.DiscoveryTask, 0, len(ids))
	for _, id := range ids {
		t, err := s.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// AdvanceTask moves a task to state when that is forward progress. It
// returns the stored task and whether it changed. Completion goes through
// CompleteTask so the URLs land with the state change.
func (s *Store) AdvanceTask(ctx context.Context, taskID string, state types.TaskState, detail string, now time.Time) (types.DiscoveryTask, bool, error) {
	var (
		task    types.DiscoveryTask
		changed bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		changed, err = advanceTx(ctx, tx, taskID, state, detail, now)
		if err != nil {
			return err
		}
		task, err = getTask(ctx, tx, taskID)
		return err
	})
	return task, changed, err
}

func advanceTx(ctx context.Context, tx *sql.Tx, taskID string, state types.TaskState, detail string, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE discovery_tasks SET status = ?, detail = ?, updated_at = ?
		 WHERE task_id = ? AND `+statusRank+` < ?`,
		string(state), detail, nanos(now), taskID, state.Rank())
	if err != nil {
		return false, fmt.Errorf("advancing task %s: %w", taskID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CompleteTask materializes discovered URLs and marks the task completed
// in one transaction. URLs already recorded for the task are skipped.
func (s *Store) CompleteTask(ctx context.Context, taskID string, urls []types.DiscoveredURL, now time.Time) (types.DiscoveryTask, int, error) {
	var (
		task     types.DiscoveryTask
		inserted int
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			task = current
			return nil
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR IGNORE INTO discovered_urls (task_id, url, quality_score, summary, keywords, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()

		for _, u := range urls {
			keywords := u.Keywords
			if keywords == nil {
				keywords = []string{}
			}
			kwJSON, _ := json.Marshal(keywords)
			res, err := stmt.ExecContext(ctx, taskID, u.URL, u.QualityScore, u.Summary, string(kwJSON), nanos(now))
			if err != nil {
				return fmt.Errorf("inserting url %s: %w", u.URL, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
		}

		if _, err := advanceTx(ctx, tx, taskID, types.TaskCompleted, "", now); err != nil {
			return err
		}
		task, err = getTask(ctx, tx, taskID)
		return err
	})
	return task, inserted, err
}

// CountDiscoveredURLs returns how many URLs a task produced.
func (s *Store) CountDiscoveredURLs(ctx context.Context, taskID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM discovered_urls WHERE task_id = ?`, taskID,
	).Scan(&n); err != nil {
		return 0, classify(fmt.Errorf("counting urls: %w", err))
	}
	return n, nil
}

// ListDiscoveredURLs returns URLs matching f, best quality first.
func (s *Store) ListDiscoveredURLs(ctx context.Context, f types.URLFilter) ([]types.DiscoveredURL, error) {
	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(
		`SELECT task_id, url, quality_score, summary, keywords, consumed, created_at
		 FROM discovered_urls WHERE 1=1`)
	if f.TaskID != "" {
		qb.WriteString(` AND task_id = ?`)
		args = append(args, f.TaskID)
	}
	if f.MinQuality > 0 {
		qb.WriteString(` AND quality_score >= ?`)
		args = append(args, f.MinQuality)
	}
	if !f.IncludeConsumed {
		qb.WriteString(` AND consumed = 0`)
	}
	qb.WriteString(` ORDER BY quality_score DESC, url ASC`)
	if f.Limit > 0 {
		qb.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, classify(fmt.Errorf("listing discovered urls: %w", err))
	}
	defer rows.Close()

	var out []types.DiscoveredURL
	for rows.Next() {
		var (
			u         types.DiscoveredURL
			kwJSON    sql.NullString
			consumed  int
			createdAt int64
		)
		if err := rows.Scan(&u.TaskID, &u.URL, &u.QualityScore, &u.Summary, &kwJSON, &consumed, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning url: %w", err)
		}
		if kwJSON.Valid {
			json.Unmarshal([]byte(kwJSON.String), &u.Keywords)
		}
		u.Consumed = consumed != 0
		u.CreatedAt = fromNanos(createdAt)
		out = append(out, u)
	}
	return out, classify(rows.Err())
}

// MarkURLsConsumed flags URLs that were converted into staging candidates.
func (s *Store) MarkURLsConsumed(ctx context.Context, taskID string, urls []string) (int, error) {
	var marked int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, u := range urls {
			res, err := tx.ExecContext(ctx,
				`UPDATE discovered_urls SET consumed = 1 WHERE task_id = ? AND url = ? AND consumed = 0`,
				taskID, u)
			if err != nil {
				return fmt.Errorf("marking %s consumed: %w", u, err)
			}
			n, _ := res.RowsAffected()
			marked += int(n)
		}
		return nil
	})
	return marked, err
}
