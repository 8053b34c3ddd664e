// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discovery

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/store"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

// fakeBackend scripts crawler responses. Each task walks through its
// status script one poll at a time and repeats the last entry.
type fakeBackend struct {
	mu          sync.Mutex
	next        int
	created     []TaskRequest
	scripts     map[string][]RemoteStatus
	urls        map[string][]types.DiscoveredURL
	createErr   error
	statusErr   error
	urlErrs     int
	statusCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		scripts: map[string][]RemoteStatus{},
		urls:    map[string][]types.DiscoveredURL{},
	}
}

func (f *fakeBackend) CreateTask(_ context.Context, req TaskRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.next++
	f.created = append(f.created, req)
	return fmt.Sprintf("task-%d", f.next), nil
}

func (f *fakeBackend) TaskStatus(_ context.Context, taskID string) (RemoteStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return RemoteStatus{}, f.statusErr
	}
	script := f.scripts[taskID]
	if len(script) == 0 {
		return RemoteStatus{TaskID: taskID, Status: types.TaskQueued}, nil
	}
	st := script[0]
	if len(script) > 1 {
		f.scripts[taskID] = script[1:]
	}
	return st, nil
}

func (f *fakeBackend) TaskURLs(_ context.Context, taskID string) ([]types.DiscoveredURL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.urlErrs > 0 {
		f.urlErrs--
		return nil, fmt.Errorf("%w: connection reset", types.ErrServiceUnavailable)
	}
	return append([]types.DiscoveredURL(nil), f.urls[taskID]...), nil
}

func (f *fakeBackend) script(taskID string, states ...types.TaskState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range states {
		f.scripts[taskID] = append(f.scripts[taskID], RemoteStatus{TaskID: taskID, Status: s})
	}
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func newCoordinator(t *testing.T, b Backend) (*Coordinator, *store.Store) {
	t.Helper()
	s, err := store.Open(types.StoreConfig{DataDir: t.TempDir()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	c := New(s, b, types.DiscoveryConfig{PollInterval: 5 * time.Millisecond}, zaptest.NewLogger(t))
	return c, s
}

func TestSubmitClampsPageBudget(t *testing.T) {
	tests := []struct {
		requested int
		want      int
	}{
		{500, 200},
		{200, 200},
		{0, 50},
		{-3, 1},
		{1, 1},
		{75, 75},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.requested), func(t *testing.T) {
			fb := newFakeBackend()
			c, s := newCoordinator(t, fb)

			task, err := c.Submit(context.Background(), "https://docs.example.com", tt.requested, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, task.MaxPages)
			assert.Equal(t, tt.want, fb.created[0].MaxPages)

			stored, err := s.GetTask(context.Background(), task.TaskID)
			require.NoError(t, err)
			assert.Equal(t, types.TaskQueued, stored.Status)
			assert.Equal(t, tt.want, stored.MaxPages)
		})
	}
}

func TestSubmitCustomCeiling(t *testing.T) {
	s, err := store.Open(types.StoreConfig{DataDir: t.TempDir()}, nil)
	require.NoError(t, err)
	defer s.Close()

	c := New(s, newFakeBackend(), types.DiscoveryConfig{MaxPagesCeiling: 100, DefaultMaxPages: 150}, nil)
	assert.Equal(t, 100, c.ClampPages(500))
	assert.Equal(t, 100, c.ClampPages(0))

	c = New(s, newFakeBackend(), types.DiscoveryConfig{MaxPagesCeiling: 1000}, nil)
	assert.Equal(t, types.MaxPagesCeiling, c.ClampPages(500))
}

func TestSubmitInvalidSeedURL(t *testing.T) {
	fb := newFakeBackend()
	c, _ := newCoordinator(t, fb)

	for _, raw := range []string{
		"", "docs.example.com", "ftp://docs.example.com", "https://", "mailto:ops@example.com", "http://[::1",
	} {
		_, err := c.Submit(context.Background(), raw, 10, "")
		assert.ErrorIs(t, err, types.ErrInvalidSeedURL, "url %q", raw)
	}
	assert.Empty(t, fb.created, "invalid urls never reach the crawler")
}

func TestSubmitServiceUnavailable(t *testing.T) {
	fb := newFakeBackend()
	fb.createErr = fmt.Errorf("%w: connection refused", types.ErrServiceUnavailable)
	c, s := newCoordinator(t, fb)

	_, err := c.Submit(context.Background(), "https://docs.example.com", 10, "")
	assert.ErrorIs(t, err, types.ErrServiceUnavailable)

	tasks, err := s.ListTasks(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestPollStatusLifecycle(t *testing.T) {
	fb := newFakeBackend()
	c, _ := newCoordinator(t, fb)
	ctx := context.Background()

	task, err := c.Submit(ctx, "https://docs.example.com", 20, "only datasheets")
	require.NoError(t, err)
	assert.Equal(t, "only datasheets", fb.created[0].Instructions)

	fb.script(task.TaskID, types.TaskRunning, types.TaskQueued, types.TaskCompleted, types.TaskRunning)
	fb.urls[task.TaskID] = []types.DiscoveredURL{
		{URL: "https://docs.example.com/b", QualityScore: 0.4},
		{URL: "https://docs.example.com/a", QualityScore: 0.9, Keywords: []string{"eps"}},
		{URL: " ", QualityScore: 1},
		{URL: "https://docs.example.com/c", QualityScore: 1.7},
	}

	st, err := c.PollStatus(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskRunning, st.Status)

	st, err = c.PollStatus(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskRunning, st.Status, "backend regression is ignored")

	st, err = c.PollStatus(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatus{TaskID: task.TaskID, Status: types.TaskCompleted, Discovered: 3}, st)

	calls := fb.calls()
	for range 3 {
		st, err = c.PollStatus(ctx, task.TaskID)
		require.NoError(t, err)
		assert.Equal(t, types.TaskCompleted, st.Status)
	}
	assert.Equal(t, calls, fb.calls(), "terminal tasks are answered from the store")

	urls, err := c.ListDiscoveredURLs(ctx, types.URLFilter{TaskID: task.TaskID})
	require.NoError(t, err)
	var got []string
	for _, u := range urls {
		got = append(got, u.URL)
	}
	want := []string{"https://docs.example.com/c", "https://docs.example.com/a", "https://docs.example.com/b"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("url order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1.0, urls[0].QualityScore)
}

func TestPollStatusFailedDetail(t *testing.T) {
	fb := newFakeBackend()
	c, _ := newCoordinator(t, fb)
	ctx := context.Background()

	task, err := c.Submit(ctx, "https://docs.example.com", 20, "")
	require.NoError(t, err)
	fb.scripts[task.TaskID] = []RemoteStatus{
		{TaskID: task.TaskID, Status: types.TaskFailed, Detail: "seed returned 403 Forbidden"},
		{TaskID: task.TaskID, Status: types.TaskCompleted},
	}

	st, err := c.PollStatus(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, st.Status)
	assert.Equal(t, "seed returned 403 Forbidden", st.Detail)

	st, err = c.PollStatus(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, st.Status)
	assert.Equal(t, "seed returned 403 Forbidden", st.Detail)
}

func TestPollStatusRetriesURLFetch(t *testing.T) {
	fb := newFakeBackend()
	fb.urlErrs = 1
	c, _ := newCoordinator(t, fb)
	ctx := context.Background()

	task, err := c.Submit(ctx, "https://docs.example.com", 20, "")
	require.NoError(t, err)
	fb.script(task.TaskID, types.TaskCompleted)
	fb.urls[task.TaskID] = []types.DiscoveredURL{{URL: "https://docs.example.com/x", QualityScore: 0.5}}

	_, err = c.PollStatus(ctx, task.TaskID)
	assert.ErrorIs(t, err, types.ErrServiceUnavailable)

	tasks, err := c.Tasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, types.TaskQueued, tasks[0].Status)

	st, err := c.PollStatus(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, st.Status)
	assert.Equal(t, 1, st.Discovered)
}

func TestPollStatusUnknownTask(t *testing.T) {
	c, _ := newCoordinator(t, newFakeBackend())
	_, err := c.PollStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestWatchStopsAtTerminal(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	fb := newFakeBackend()
	c, _ := newCoordinator(t, fb)
	ctx := context.Background()

	task, err := c.Submit(ctx, "https://docs.example.com", 20, "")
	require.NoError(t, err)
	fb.script(task.TaskID, types.TaskQueued, types.TaskRunning, types.TaskRunning, types.TaskCompleted)

	var seen []types.TaskState
	st, err := c.Watch(ctx, task.TaskID, 0, func(s types.TaskStatus) { seen = append(seen, s.Status) })
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, st.Status)
	assert.Equal(t, []types.TaskState{types.TaskQueued, types.TaskRunning, types.TaskCompleted}, seen)
}

func TestWatchKeepsPollingWhenUnavailable(t *testing.T) {
	fb := newFakeBackend()
	c, _ := newCoordinator(t, fb)
	ctx := context.Background()

	task, err := c.Submit(ctx, "https://docs.example.com", 20, "")
	require.NoError(t, err)
	fb.statusErr = fmt.Errorf("%w: 503", types.ErrServiceUnavailable)

	go func() {
		time.Sleep(20 * time.Millisecond)
		fb.mu.Lock()
		fb.statusErr = nil
		fb.mu.Unlock()
		fb.script(task.TaskID, types.TaskFailed)
	}()

	st, err := c.Watch(ctx, task.TaskID, time.Millisecond, nil)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, st.Status)
}

func TestWatchCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	fb := newFakeBackend()
	c, s := newCoordinator(t, fb)
	task, err := c.Submit(context.Background(), "https://docs.example.com", 20, "")
	require.NoError(t, err)
	fb.script(task.TaskID, types.TaskRunning)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	st, err := c.Watch(ctx, task.TaskID, 5*time.Millisecond, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, types.TaskRunning, st.Status)

	stored, err := s.GetTask(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskRunning, stored.Status, "cancelling the watch leaves the task untouched")
}

func TestMarkConsumed(t *testing.T) {
	fb := newFakeBackend()
	c, _ := newCoordinator(t, fb)
	ctx := context.Background()

	task, err := c.Submit(ctx, "https://docs.example.com", 20, "")
	require.NoError(t, err)
	fb.script(task.TaskID, types.TaskCompleted)
	fb.urls[task.TaskID] = []types.DiscoveredURL{
		{URL: "https://docs.example.com/a", QualityScore: 0.9},
		{URL: "https://docs.example.com/b", QualityScore: 0.3},
	}
	_, err = c.PollStatus(ctx, task.TaskID)
	require.NoError(t, err)

	n, err := c.MarkConsumed(ctx, task.TaskID, []string{"https://docs.example.com/a", "https://docs.example.com/missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	open, err := c.ListDiscoveredURLs(ctx, types.URLFilter{TaskID: task.TaskID})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "https://docs.example.com/b", open[0].URL)

	all, err := c.ListDiscoveredURLs(ctx, types.URLFilter{TaskID: task.TaskID, IncludeConsumed: true})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].Consumed)
}
