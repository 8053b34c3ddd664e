// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/httputil"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

// FeedResult reports what SubmitFeed did with each entry.
type FeedResult struct {
	Feed      string
	Submitted []types.DiscoveryTask
	Skipped   []string
}

// SubmitFeed reads an RSS or Atom feed and submits one discovery task per
// distinct entry link. The fetch retries while the feed host answers 429 or
// 503. Links that are not valid seed URLs are skipped. An unreachable
// crawler stops the run and returns the tasks submitted so far.
func (c *Coordinator) SubmitFeed(ctx context.Context, feedURL string, maxPages int, instructions string) (FeedResult, error) {
	if _, err := ValidateSeedURL(feedURL); err != nil {
		return FeedResult{}, err
	}

	feed, err := c.fetchFeed(ctx, feedURL)
	if err != nil {
		return FeedResult{}, err
	}

	result := FeedResult{Feed: strings.TrimSpace(feed.Title)}
	seen := make(map[string]bool, len(feed.Items))
	for _, item := range feed.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" || seen[link] {
			continue
		}
		seen[link] = true

		task, err := c.Submit(ctx, link, maxPages, instructions)
		switch {
		case err == nil:
			result.Submitted = append(result.Submitted, task)
		case errors.Is(err, types.ErrInvalidSeedURL):
			c.log.Debug("feed entry skipped", zap.String("link", link), zap.Error(err))
			result.Skipped = append(result.Skipped, link)
		default:
			return result, err
		}
	}

	c.log.Info("feed seeded",
		zap.String("feed", feedURL),
		zap.Int("submitted", len(result.Submitted)),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

func (c *Coordinator) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building feed request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	client := &http.Client{Timeout: c.cfg.Timeout}
	resp, err := httputil.DoWithRetry(ctx, client, req, c.cfg.MaxRetries, c.log)
	if err != nil {
		return nil, fmt.Errorf("fetching feed %s: %w", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching feed %s: status %d", feedURL, resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", feedURL, err)
	}
	return feed, nil
}
