// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package discovery launches crawl tasks on the crawler service and tracks
// them to completion by polling. Task state only moves forward:
//
//	queued -> running -> completed | failed
//
// Once a task is terminal its status is answered from the store and the
// backend is no longer contacted. On completion the discovered URLs are
// fetched and materialized in the same store transaction as the status
// change.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/logging"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultMaxPages     = 50
)

// Store is the persistence the coordinator needs.
type Store interface {
	InsertTask(ctx context.Context, t types.DiscoveryTask) error
	GetTask(ctx context.Context, taskID string) (types.DiscoveryTask, error)
	ListTasks(ctx context.Context, limit int) ([]types.DiscoveryTask, error)
	AdvanceTask(ctx context.Context, taskID string, state types.TaskState, detail string, now time.Time) (types.DiscoveryTask, bool, error)
	CompleteTask(ctx context.Context, taskID string, urls []types.DiscoveredURL, now time.Time) (types.DiscoveryTask, int, error)
	CountDiscoveredURLs(ctx context.Context, taskID string) (int, error)
	ListDiscoveredURLs(ctx context.Context, f types.URLFilter) ([]types.DiscoveredURL, error)
	MarkURLsConsumed(ctx context.Context, taskID string, urls []string) (int, error)
}

// Coordinator submits and tracks discovery tasks.
type Coordinator struct {
	store   Store
	backend Backend
	cfg     types.DiscoveryConfig
	log     *zap.Logger
	now     func() time.Time
}

// New returns a Coordinator. Unset page budgets and poll interval fall back
// to 50 pages and 2 seconds; the ceiling never exceeds types.MaxPagesCeiling.
func New(s Store, b Backend, cfg types.DiscoveryConfig, logger *zap.Logger) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPagesCeiling <= 0 || cfg.MaxPagesCeiling > types.MaxPagesCeiling {
		cfg.MaxPagesCeiling = types.MaxPagesCeiling
	}
	if cfg.DefaultMaxPages <= 0 {
		cfg.DefaultMaxPages = defaultMaxPages
	}
	cfg.DefaultMaxPages = min(cfg.DefaultMaxPages, cfg.MaxPagesCeiling)

	return &Coordinator{
		store:   s,
		backend: b,
		cfg:     cfg,
		log:     logging.OrNop(logger).Named("discovery"),
		now:     time.Now,
	}
}

// ValidateSeedURL checks that raw is an absolute http or https URL with a
// host.
func ValidateSeedURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidSeedURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q must use http or https", types.ErrInvalidSeedURL, raw)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q has no host", types.ErrInvalidSeedURL, raw)
	}
	return u, nil
}

// ClampPages maps a requested page budget into [1, ceiling]. Zero selects
// the configured default.
func (c *Coordinator) ClampPages(maxPages int) int {
	switch {
	case maxPages == 0:
		return c.cfg.DefaultMaxPages
	case maxPages < 1:
		return 1
	case maxPages > c.cfg.MaxPagesCeiling:
		return c.cfg.MaxPagesCeiling
	}
	return maxPages
}

// Submit starts a crawl of seedURL. Out-of-range page budgets are clamped,
// not rejected. A malformed URL fails with types.ErrInvalidSeedURL; an
// unreachable crawler fails with types.ErrServiceUnavailable.
func (c *Coordinator) Submit(ctx context.Context, seedURL string, maxPages int, instructions string) (types.DiscoveryTask, error) {
	u, err := ValidateSeedURL(seedURL)
	if err != nil {
		return types.DiscoveryTask{}, err
	}

	pages := c.ClampPages(maxPages)
	if pages != maxPages && maxPages != 0 {
		c.log.Info("page budget clamped", zap.Int("requested", maxPages), zap.Int("max_pages", pages))
	}

	req := TaskRequest{SeedURL: u.String(), MaxPages: pages, Instructions: strings.TrimSpace(instructions)}
	taskID, err := c.backend.CreateTask(ctx, req)
	if err != nil {
		return types.DiscoveryTask{}, fmt.Errorf("submitting %s: %w", req.SeedURL, err)
	}

	now := c.now()
	task := types.DiscoveryTask{
		TaskID:       taskID,
		Status:       types.TaskQueued,
		SeedURL:      req.SeedURL,
		MaxPages:     pages,
		Instructions: req.Instructions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.store.InsertTask(ctx, task); err != nil {
		return types.DiscoveryTask{}, fmt.Errorf("recording task %s: %w", taskID, err)
	}

	c.log.Info("discovery submitted",
		zap.String("task", taskID),
		zap.String("seed_url", req.SeedURL),
		zap.Int("max_pages", pages))
	return task, nil
}

// PollStatus returns the current status of taskID, consulting the crawler
// only while the task is not terminal. Backend reports that would move the
// task backwards are ignored.
//
// When the crawler reports completion but its URLs cannot be fetched, the
// task stays at its previous state so the next poll tries again.
func (c *Coordinator) PollStatus(ctx context.Context, taskID string) (types.TaskStatus, error) {
	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return types.TaskStatus{}, err
	}
	if task.Status.Terminal() {
		return c.status(ctx, task)
	}

	remote, err := c.backend.TaskStatus(ctx, taskID)
	if err != nil {
		return types.TaskStatus{}, fmt.Errorf("polling task %s: %w", taskID, err)
	}
	if remote.Status.Rank() == 0 {
		return types.TaskStatus{}, fmt.Errorf("polling task %s: unknown backend status %q", taskID, remote.Status)
	}
	if remote.Status.Rank() <= task.Status.Rank() {
		if remote.Status != task.Status {
			c.log.Debug("backend status regression ignored",
				zap.String("task", taskID),
				zap.String("stored", string(task.Status)),
				zap.String("reported", string(remote.Status)))
		}
		return c.status(ctx, task)
	}

	now := c.now()
	switch remote.Status {
	case types.TaskCompleted:
		urls, err := c.backend.TaskURLs(ctx, taskID)
		if err != nil {
			c.log.Warn("completed task urls not fetched", zap.String("task", taskID), zap.Error(err))
			return types.TaskStatus{}, fmt.Errorf("fetching urls for %s: %w", taskID, err)
		}
		var inserted int
		task, inserted, err = c.store.CompleteTask(ctx, taskID, cleanURLs(taskID, urls), now)
		if err != nil {
			return types.TaskStatus{}, fmt.Errorf("completing task %s: %w", taskID, err)
		}
		c.log.Info("discovery completed", zap.String("task", taskID), zap.Int("urls", inserted))
	default:
		task, _, err = c.store.AdvanceTask(ctx, taskID, remote.Status, remote.Detail, now)
		if err != nil {
			return types.TaskStatus{}, fmt.Errorf("advancing task %s: %w", taskID, err)
		}
		if task.Status == types.TaskFailed {
			c.log.Warn("discovery failed", zap.String("task", taskID), zap.String("detail", task.Detail))
		} else {
			c.log.Debug("discovery progressed", zap.String("task", taskID), zap.String("status", string(task.Status)))
		}
	}
	return c.status(ctx, task)
}

func (c *Coordinator) status(ctx context.Context, task types.DiscoveryTask) (types.TaskStatus, error) {
	st := types.TaskStatus{TaskID: task.TaskID, Status: task.Status, Detail: task.Detail}
	if task.Status == types.TaskCompleted {
		n, err := c.store.CountDiscoveredURLs(ctx, task.TaskID)
		if err != nil {
			return st, err
		}
		st.Discovered = n
	}
	return st, nil
}

// cleanURLs drops entries without a URL and clamps quality into [0, 1].
func cleanURLs(taskID string, urls []types.DiscoveredURL) []types.DiscoveredURL {
	out := urls[:0]
	for _, u := range urls {
		u.URL = strings.TrimSpace(u.URL)
		if u.URL == "" {
			continue
		}
		u.TaskID = taskID
		u.QualityScore = max(0, min(1, u.QualityScore))
		out = append(out, u)
	}
	return out
}

// Watch polls taskID every interval (the configured poll interval when
// interval is not positive) until the task is terminal or ctx is done.
// onUpdate, if set, is called whenever the observed status changes.
// Cancelling ctx stops polling only; the crawl keeps running server-side.
// An unreachable crawler is logged and polled again on the next tick.
func (c *Coordinator) Watch(ctx context.Context, taskID string, interval time.Duration, onUpdate func(types.TaskStatus)) (types.TaskStatus, error) {
	if interval <= 0 {
		interval = c.cfg.PollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last types.TaskStatus
	for {
		st, err := c.PollStatus(ctx, taskID)
		switch {
		case err == nil:
			if st.Status != last.Status && onUpdate != nil {
				onUpdate(st)
			}
			last = st
			if st.Status.Terminal() {
				return st, nil
			}
		case errors.Is(err, types.ErrServiceUnavailable):
			c.log.Warn("poll failed, retrying", zap.String("task", taskID), zap.Error(err))
		default:
			return last, err
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tasks returns recently submitted tasks, newest first.
func (c *Coordinator) Tasks(ctx context.Context, limit int) ([]types.DiscoveryTask, error) {
	return c.store.ListTasks(ctx, limit)
}

// ListDiscoveredURLs returns materialized URLs ordered by quality score,
// highest first.
func (c *Coordinator) ListDiscoveredURLs(ctx context.Context, f types.URLFilter) ([]types.DiscoveredURL, error) {
	urls, err := c.store.ListDiscoveredURLs(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing discovered urls: %w", err)
	}
	return urls, nil
}

// MarkConsumed flags URLs of taskID that were turned into staging
// candidates and reports how many changed.
func (c *Coordinator) MarkConsumed(ctx context.Context, taskID string, urls []string) (int, error) {
	n, err := c.store.MarkURLsConsumed(ctx, taskID, urls)
	if err != nil {
		return 0, fmt.Errorf("marking urls consumed: %w", err)
	}
	c.log.Info("discovered urls consumed", zap.String("task", taskID), zap.Int("count", n))
	return n, nil
}
