// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/httputil"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/logging"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

// Backend is the crawler service that runs discovery tasks out of process.
type Backend interface {
	// CreateTask starts a crawl and returns the backend task id.
	CreateTask(ctx context.Context, req TaskRequest) (string, error)

	// TaskStatus reports the backend's view of a task.
	TaskStatus(ctx context.Context, taskID string) (RemoteStatus, error)

	// TaskURLs returns the URLs a completed task discovered.
	TaskURLs(ctx context.Context, taskID string) ([]types.DiscoveredURL, error)
}

// TaskRequest is the body of a crawl submission.
type TaskRequest struct {
	SeedURL      string `json:"seed_url"`
	MaxPages     int    `json:"max_pages"`
	Instructions string `json:"instructions,omitempty"`
}

// RemoteStatus is a backend status report.
type RemoteStatus struct {
	TaskID string          `json:"task_id"`
	Status types.TaskState `json:"status"`
	Detail string          `json:"detail,omitempty"`
}

type createResponse struct {
	TaskID string `json:"task_id"`
}

type urlsResponse struct {
	URLs []remoteURL `json:"urls"`
}

type remoteURL struct {
	URL          string   `json:"url"`
	QualityScore float64  `json:"quality_score"`
	Summary      string   `json:"summary"`
	Keywords     []string `json:"keywords"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HTTPBackend talks to the crawler service over its JSON API:
//
//	POST /tasks             -> {"task_id"}
//	GET  /tasks/{id}        -> {"task_id", "status", "detail"}
//	GET  /tasks/{id}/urls   -> {"urls": [...]}
type HTTPBackend struct {
	baseURL    string
	token      string
	userAgent  string
	maxRetries int
	client     *http.Client
	log        *zap.Logger
}

// NewHTTPBackend returns a client for the crawler at cfg.BackendURL. A
// non-empty token is sent as a bearer credential.
func NewHTTPBackend(cfg types.DiscoveryConfig, token string, logger *zap.Logger) *HTTPBackend {
	return &HTTPBackend{
		baseURL:    strings.TrimRight(cfg.BackendURL, "/"),
		token:      token,
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		client:     &http.Client{Timeout: cfg.Timeout},
		log:        logging.OrNop(logger).Named("crawler"),
	}
}

// CreateTask submits a crawl.
func (b *HTTPBackend) CreateTask(ctx context.Context, req TaskRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding task request: %w", err)
	}

	var out createResponse
	if err := b.do(ctx, http.MethodPost, "/tasks", body, &out); err != nil {
		return "", err
	}
	if out.TaskID == "" {
		return "", fmt.Errorf("crawler accepted task without an id")
	}
	return out.TaskID, nil
}

// TaskStatus fetches the backend state of taskID.
func (b *HTTPBackend) TaskStatus(ctx context.Context, taskID string) (RemoteStatus, error) {
	var out RemoteStatus
	if err := b.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID), nil, &out); err != nil {
		return RemoteStatus{}, err
	}
	return out, nil
}

// TaskURLs fetches the discovered URLs of taskID.
func (b *HTTPBackend) TaskURLs(ctx context.Context, taskID string) ([]types.DiscoveredURL, error) {
	var out urlsResponse
	if err := b.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID)+"/urls", nil, &out); err != nil {
		return nil, err
	}

	urls := make([]types.DiscoveredURL, 0, len(out.URLs))
	for _, u := range out.URLs {
		urls = append(urls, types.DiscoveredURL{
			TaskID:       taskID,
			URL:          u.URL,
			QualityScore: u.QualityScore,
			Summary:      u.Summary,
			Keywords:     u.Keywords,
		})
	}
	return urls, nil
}

// do sends one request and decodes a JSON response into out. Transport
// failures and 5xx answers map to types.ErrServiceUnavailable; 404 maps to
// types.ErrNotFound.
func (b *HTTPBackend) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building crawler request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.userAgent != "" {
		req.Header.Set("User-Agent", b.userAgent)
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := httputil.DoWithRetry(ctx, b.client, req, b.maxRetries, b.log)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", types.ErrServiceUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", types.ErrServiceUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("crawler %s: %w", path, types.ErrNotFound)
	case resp.StatusCode >= 500 || httputil.Retryable(resp.StatusCode):
		return fmt.Errorf("%w: crawler returned %d", types.ErrServiceUnavailable, resp.StatusCode)
	case resp.StatusCode >= 300:
		var e errorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("crawler rejected request (%d): %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("crawler rejected request (%d)", resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding crawler response: %w", err)
	}
	return nil
}
