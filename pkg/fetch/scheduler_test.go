package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/batch-fetcher/internal/testutil"
	"github.com/Sternrassler/batch-fetcher/pkg/cache"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	eventually = 5 * time.Second
	tick       = 10 * time.Millisecond
)

func newTestScheduler(t *testing.T, origin *testutil.MockOrigin, maxParallel int) *Scheduler {
	t.Helper()
	s, err := NewScheduler(SchedulerConfig{
		MaxParallel: maxParallel,
		HTTPClient:  origin.Client(),
		DownloadDir: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func makeTasks(origin *testutil.MockOrigin, prefix string, n int) []Task {
	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = Task{
			ID:  TaskID(fmt.Sprintf("%s-%d", prefix, i)),
			URL: fmt.Sprintf("%s/%s/%d.png", origin.URL(), prefix, i),
		}
	}
	return tasks
}

func batchConfig(maxParallel int) BatchConfig {
	cfg := DefaultBatchConfig()
	cfg.MaxParallel = maxParallel
	return cfg
}

func wait(t *testing.T, b *Batch) (BatchState, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	state, err := b.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "batch did not finish")
	return state, err
}

// recorder collects observer calls.
type recorder struct {
	mu           sync.Mutex
	progress     []BatchState
	succeeded    []BatchState
	failed       []BatchState
	taskProgress []TaskProgress
}

func (r *recorder) options() []Option {
	return []Option{
		WithProgress(func(s BatchState) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.progress = append(r.progress, s)
		}),
		WithAllSucceeded(func(s BatchState) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.succeeded = append(r.succeeded, s)
		}),
		WithAllFailed(func(s BatchState) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.failed = append(r.failed, s)
		}),
		WithTaskProgress(func(p TaskProgress) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.taskProgress = append(r.taskProgress, p)
		}),
	}
}

func (r *recorder) counts() (progress, succeeded, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.progress), len(r.succeeded), len(r.failed)
}

func TestScheduler_EveryTaskRecordedOnce(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	s := newTestScheduler(t, origin, 3)

	rec := &recorder{}
	tasks := makeTasks(origin, "icons", 12)
	b, err := s.Submit(context.Background(), tasks, batchConfig(3), rec.options()...)
	require.NoError(t, err)

	state, err := wait(t, b)
	require.NoError(t, err)

	assert.Equal(t, 12, state.Total)
	assert.Equal(t, 12, state.Completed)
	assert.Equal(t, 0, state.Failed)
	assert.Len(t, state.Outcomes, 12)

	seen := make(map[TaskID]int)
	for _, o := range state.Outcomes {
		seen[o.TaskID]++
		assert.Equal(t, StatusSuccess, o.Status)
		assert.NotNil(t, o.Image)
	}
	for _, task := range tasks {
		assert.Equal(t, 1, seen[task.ID], "task %s", task.ID)
	}

	progress, succeeded, failed := rec.counts()
	assert.Equal(t, 12, progress, "one progress event per outcome")
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, failed)
	assert.LessOrEqual(t, origin.Peak(), 3)
	assert.Equal(t, PhaseDestroyed, b.Phase())
}

func TestScheduler_ProgressCountersStayConsistent(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	s := newTestScheduler(t, origin, 2)

	rec := &recorder{}
	b, err := s.Submit(context.Background(), makeTasks(origin, "p", 6), batchConfig(2), rec.options()...)
	require.NoError(t, err)
	_, err = wait(t, b)
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i, st := range rec.progress {
		assert.Equal(t, i+1, st.Completed)
		assert.Equal(t, st.Total, st.Queued+st.InFlight+st.Completed, "event %d: %+v", i, st)
	}
}

func TestScheduler_GlobalCapAcrossBatches(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.Hold()
	s := newTestScheduler(t, origin, 3)

	var batches []*Batch
	for _, prefix := range []string{"a", "b", "c"} {
		b, err := s.Submit(context.Background(), makeTasks(origin, prefix, 5), batchConfig(3))
		require.NoError(t, err)
		batches = append(batches, b)
	}

	require.Eventually(t, func() bool { return origin.Active() == 3 }, eventually, tick)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, origin.RequestCount())

	stats := s.Stats()
	assert.Equal(t, 3, stats.InFlight)
	assert.Equal(t, 12, stats.Queued)
	assert.Equal(t, 3, stats.Batches)

	origin.Open()
	for _, b := range batches {
		state, err := wait(t, b)
		require.NoError(t, err)
		assert.Equal(t, 5, state.Completed)
		assert.Equal(t, 0, state.Failed)
	}
	assert.LessOrEqual(t, origin.Peak(), 3)
	assert.Equal(t, 15, origin.RequestCount())
}

func TestScheduler_AdmissionAndRefill(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.Hold()
	s := newTestScheduler(t, origin, 5)

	b, err := s.Submit(context.Background(), makeTasks(origin, "r", 7), batchConfig(5))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return origin.Active() == 5 }, eventually, tick)
	assert.Equal(t, 5, origin.RequestCount())
	assert.Equal(t, Stats{Limit: 5, InFlight: 5, Queued: 2, Batches: 1}, s.Stats())

	state := b.State()
	assert.Equal(t, 2, state.Queued)
	assert.Equal(t, 5, state.InFlight)

	origin.Release(1)
	require.Eventually(t, func() bool { return origin.RequestCount() == 6 }, eventually, tick)
	require.Eventually(t, func() bool {
		st := s.Stats()
		return st.InFlight == 5 && st.Queued == 1
	}, eventually, tick)

	origin.Open()
	state, err = wait(t, b)
	require.NoError(t, err)
	assert.Equal(t, 7, state.Completed)
	assert.Equal(t, Stats{Limit: 5}, s.Stats())
}

func TestScheduler_RefillIsGlobalFIFO(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.Hold()
	s := newTestScheduler(t, origin, 1)

	a, err := s.Submit(context.Background(), makeTasks(origin, "a", 2), batchConfig(1))
	require.NoError(t, err)
	b, err := s.Submit(context.Background(), makeTasks(origin, "b", 2), batchConfig(1))
	require.NoError(t, err)

	origin.Open()
	_, err = wait(t, a)
	require.NoError(t, err)
	_, err = wait(t, b)
	require.NoError(t, err)

	assert.Equal(t, []string{"/a/0.png", "/a/1.png", "/b/0.png", "/b/1.png"}, origin.Paths())
}

func TestScheduler_CancelReleasesOnlyOwnSlots(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.Hold()
	s := newTestScheduler(t, origin, 6)

	recA, recB := &recorder{}, &recorder{}
	a, err := s.Submit(context.Background(), makeTasks(origin, "a", 4), batchConfig(6), recA.options()...)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return origin.Active() == 4 }, eventually, tick)

	b, err := s.Submit(context.Background(), makeTasks(origin, "b", 4), batchConfig(6), recB.options()...)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return origin.Active() == 6 }, eventually, tick)
	assert.Equal(t, Stats{Limit: 6, InFlight: 6, Queued: 2, Batches: 2}, s.Stats())

	a.Cancel()

	// A's four slots are returned and B's two queued tasks take them.
	assert.Equal(t, Stats{Limit: 6, InFlight: 4, Queued: 0, Batches: 1}, s.Stats())
	stateB := b.State()
	assert.Equal(t, 4, stateB.InFlight)
	assert.Equal(t, 0, stateB.Queued)

	_, err = wait(t, a)
	assert.ErrorIs(t, err, ErrBatchCancelled)
	assert.Equal(t, PhaseDestroyed, a.Phase())
	require.Eventually(t, func() bool { return origin.Cancelled() == 4 }, eventually, tick)

	origin.Open()
	state, err := wait(t, b)
	require.NoError(t, err)
	assert.Equal(t, 4, state.Completed)
	assert.Equal(t, 0, state.Failed)

	progress, succeeded, failed := recA.counts()
	assert.Zero(t, progress+succeeded+failed, "cancelled batch observers must not fire")
	_, succeeded, _ = recB.counts()
	assert.Equal(t, 1, succeeded)

	a.Cancel()
	assert.Equal(t, Stats{Limit: 6}, s.Stats())
}

func TestScheduler_ContextLossDestroysBatch(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.Hold()
	s := newTestScheduler(t, origin, 2)

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	b, err := s.Submit(ctx, makeTasks(origin, "ctx", 5), batchConfig(2), rec.options()...)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return origin.Active() == 2 }, eventually, tick)

	cancel()

	_, err = wait(t, b)
	assert.ErrorIs(t, err, ErrContextInvalidated)
	assert.Equal(t, Stats{Limit: 2}, s.Stats())

	origin.Open()
	time.Sleep(50 * time.Millisecond)
	progress, succeeded, failed := rec.counts()
	assert.Zero(t, progress+succeeded+failed)
}

func TestScheduler_CacheHitSkipsNetwork(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	s := newTestScheduler(t, origin, 5)

	slot, err := s.Slots().Open(context.Background(), "")
	require.NoError(t, err)
	tasks := makeTasks(origin, "cached", 3)
	for _, task := range tasks {
		slot.Add(cache.NewEntry(string(task.ID), task.URL, testutil.PNG(3, 3)))
	}

	rec := &recorder{}
	b, err := s.Submit(context.Background(), tasks, batchConfig(5), rec.options()...)
	require.NoError(t, err)
	state, err := wait(t, b)
	require.NoError(t, err)

	assert.Equal(t, 0, origin.RequestCount())
	assert.Equal(t, 3, state.Completed)
	for _, o := range state.Outcomes {
		assert.Equal(t, SourceStore, o.Source)
		require.NotNil(t, o.Image)
		assert.Equal(t, 3, o.Image.Width)
	}
	_, succeeded, _ := rec.counts()
	assert.Equal(t, 1, succeeded)

	rec.mu.Lock()
	assert.Empty(t, rec.taskProgress, "cache hits report no byte progress")
	rec.mu.Unlock()
}

func TestScheduler_WriteBackServesLaterBatches(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	s := newTestScheduler(t, origin, 5)

	dir := t.TempDir()
	cfg := batchConfig(5)
	cfg.CachePolicy = cache.PolicyBoth
	cfg.DownloadDir = dir
	tasks := makeTasks(origin, "wb", 2)

	first, err := s.Submit(context.Background(), tasks, cfg)
	require.NoError(t, err)
	state, err := wait(t, first)
	require.NoError(t, err)
	assert.Equal(t, 0, state.Failed)
	assert.Equal(t, 2, origin.RequestCount())

	flushed := first.Flushed()
	require.NotNil(t, flushed)
	assert.NoError(t, <-flushed)

	for _, task := range tasks {
		_, err := os.Stat(filepath.Join(dir, string(task.ID)))
		assert.NoError(t, err, "file tier should hold %s", task.ID)
	}

	second, err := s.Submit(context.Background(), tasks, cfg)
	require.NoError(t, err)
	state, err = wait(t, second)
	require.NoError(t, err)
	assert.Equal(t, 2, origin.RequestCount(), "second batch must be served from cache")
	for _, o := range state.Outcomes {
		assert.Equal(t, SourceFile, o.Source)
	}
}

func TestScheduler_FailuresStillComplete(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/mixed/1.png", testutil.MockResponse{StatusCode: http.StatusOK})
	origin.SetResponse("/mixed/2.png", testutil.MockResponse{StatusCode: http.StatusInternalServerError})
	s := newTestScheduler(t, origin, 5)

	rec := &recorder{}
	b, err := s.Submit(context.Background(), makeTasks(origin, "mixed", 4), batchConfig(5), rec.options()...)
	require.NoError(t, err)
	state, err := wait(t, b)
	require.NoError(t, err, "task failures are reported in the state")

	assert.Equal(t, 4, state.Completed)
	assert.Equal(t, 2, state.Failed)

	byID := make(map[TaskID]Outcome)
	for _, o := range state.Outcomes {
		byID[o.TaskID] = o
	}
	assert.ErrorIs(t, byID["mixed-1"].Err, ErrEmptyResponse)
	assert.ErrorIs(t, byID["mixed-2"].Err, ErrNetworkFailure)
	assert.Equal(t, StatusSuccess, byID["mixed-0"].Status)
	assert.Equal(t, StatusSuccess, byID["mixed-3"].Status)

	progress, succeeded, failed := rec.counts()
	assert.Equal(t, 4, progress)
	assert.Equal(t, 0, succeeded)
	assert.Equal(t, 1, failed)

	slot, err := s.Slots().Open(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, slot.Has("mixed-1"), "failed tasks are not cached")
	assert.True(t, slot.Has("mixed-0"))
}

func TestScheduler_TaskProgress(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	s := newTestScheduler(t, origin, 2)

	rec := &recorder{}
	b, err := s.Submit(context.Background(), makeTasks(origin, "tp", 1), batchConfig(2), rec.options()...)
	require.NoError(t, err)
	_, err = wait(t, b)
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.taskProgress)
	last := rec.taskProgress[len(rec.taskProgress)-1]
	assert.Equal(t, TaskID("tp-0"), last.TaskID)
	assert.Equal(t, b.ID(), last.BatchID)
	assert.Equal(t, float64(100), last.Percent)
}

func TestScheduler_EmptyBatchSucceedsImmediately(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	s := newTestScheduler(t, origin, 5)

	rec := &recorder{}
	b, err := s.Submit(context.Background(), nil, DefaultBatchConfig(), rec.options()...)
	require.NoError(t, err)
	state, err := wait(t, b)
	require.NoError(t, err)

	assert.Equal(t, 0, state.Total)
	_, succeeded, failed := rec.counts()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, failed)
}

func TestScheduler_NewBatchValidation(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	s := newTestScheduler(t, origin, 5)

	t.Run("duplicate ids", func(t *testing.T) {
		tasks := []Task{{ID: "x", URL: origin.URL() + "/1"}, {ID: "x", URL: origin.URL() + "/2"}}
		_, err := s.NewBatch(context.Background(), tasks, DefaultBatchConfig())
		assert.ErrorIs(t, err, ErrDuplicateTask)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.NewBatch(ctx, makeTasks(origin, "v", 1), DefaultBatchConfig())
		assert.ErrorIs(t, err, ErrContextInvalidated)
	})

	t.Run("start twice", func(t *testing.T) {
		b, err := s.NewBatch(context.Background(), makeTasks(origin, "twice", 1), DefaultBatchConfig())
		require.NoError(t, err)
		assert.Equal(t, PhaseInitialized, b.Phase())
		require.NoError(t, b.Start())
		assert.ErrorIs(t, b.Start(), ErrBatchStarted)
		_, err = wait(t, b)
		require.NoError(t, err)
	})

	t.Run("file policy without directory", func(t *testing.T) {
		bare, err := NewScheduler(SchedulerConfig{HTTPClient: origin.Client()})
		require.NoError(t, err)
		defer bare.Close(context.Background())

		cfg := DefaultBatchConfig()
		cfg.CachePolicy = cache.PolicyFile
		_, err = bare.NewBatch(context.Background(), makeTasks(origin, "f", 1), cfg)
		assert.Error(t, err)
	})
}

func TestScheduler_CloseAbortsRunningBatches(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.Hold()

	s, err := NewScheduler(SchedulerConfig{MaxParallel: 2, HTTPClient: origin.Client()})
	require.NoError(t, err)

	b, err := s.Submit(context.Background(), makeTasks(origin, "close", 4), batchConfig(2))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return origin.Active() == 2 }, eventually, tick)

	require.NoError(t, s.Close(context.Background()))

	_, err = wait(t, b)
	assert.ErrorIs(t, err, ErrSchedulerClosed)

	_, err = s.Submit(context.Background(), makeTasks(origin, "late", 1), DefaultBatchConfig())
	assert.True(t, errors.Is(err, ErrSchedulerClosed))
}

func TestScheduler_SetMaxParallel(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.Hold()
	s := newTestScheduler(t, origin, 2)

	b, err := s.Submit(context.Background(), makeTasks(origin, "grow", 6), DefaultBatchConfig())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return origin.Active() == 2 }, eventually, tick)

	s.SetMaxParallel(4)
	require.Eventually(t, func() bool { return origin.Active() == 4 }, eventually, tick)
	assert.Equal(t, 4, s.Stats().Limit)

	origin.Open()
	_, err = wait(t, b)
	require.NoError(t, err)
}

func TestScheduler_DefaultBatchKeepsSchedulerCap(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.Hold()
	s := newTestScheduler(t, origin, 2)

	b, err := s.Submit(context.Background(), makeTasks(origin, "inherit", 3), BatchConfig{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return origin.Active() == 2 }, eventually, tick)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, Stats{Limit: 2, InFlight: 2, Queued: 1, Batches: 1}, s.Stats())

	origin.Open()
	_, err = wait(t, b)
	require.NoError(t, err)
	assert.LessOrEqual(t, origin.Peak(), 2)
}

func TestScheduler_BatchCapNeverMovesGlobalCap(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.Hold()
	s := newTestScheduler(t, origin, 8)

	wide, err := s.Submit(context.Background(), makeTasks(origin, "wide", 8), BatchConfig{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return origin.Active() == 8 }, eventually, tick)

	narrow, err := s.Submit(context.Background(), makeTasks(origin, "narrow", 3), batchConfig(2))
	require.NoError(t, err)
	assert.Equal(t, Stats{Limit: 8, InFlight: 8, Queued: 3, Batches: 2}, s.Stats())

	origin.Open()
	_, err = wait(t, wide)
	require.NoError(t, err)
	state, err := wait(t, narrow)
	require.NoError(t, err)
	assert.Equal(t, 3, state.Completed)
	assert.LessOrEqual(t, origin.Peak(), 8)
}

func TestScheduler_BatchCapLetsLaterBatchesAdmit(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.Hold()
	s := newTestScheduler(t, origin, 4)

	capped, err := s.Submit(context.Background(), makeTasks(origin, "capped", 3), batchConfig(1))
	require.NoError(t, err)
	open, err := s.Submit(context.Background(), makeTasks(origin, "open", 3), BatchConfig{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return origin.Active() == 4 }, eventually, tick)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, Stats{Limit: 4, InFlight: 4, Queued: 2, Batches: 2}, s.Stats())
	assert.Equal(t, 1, capped.State().InFlight)
	assert.Equal(t, 3, open.State().InFlight)

	origin.Open()
	_, err = wait(t, capped)
	require.NoError(t, err)
	_, err = wait(t, open)
	require.NoError(t, err)
}

func TestScheduler_LoweringCapHoldsAdmissions(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.Hold()
	s := newTestScheduler(t, origin, 4)

	b, err := s.Submit(context.Background(), makeTasks(origin, "shrink", 6), DefaultBatchConfig())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return origin.Active() == 4 }, eventually, tick)

	s.SetMaxParallel(2)
	assert.Equal(t, Stats{Limit: 2, InFlight: 4, Queued: 2, Batches: 1}, s.Stats())

	origin.Release(2)
	require.Eventually(t, func() bool { return s.Stats().InFlight == 2 }, eventually, tick)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 4, origin.RequestCount(), "no admission while at the lowered cap")

	origin.Release(1)
	require.Eventually(t, func() bool { return origin.RequestCount() == 5 }, eventually, tick)
	assert.LessOrEqual(t, s.Stats().InFlight, 2)

	origin.Open()
	_, err = wait(t, b)
	require.NoError(t, err)
}

func TestScheduler_QueueAnomaliesAreCountedNotFatal(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	s := newTestScheduler(t, origin, 2)

	t.Run("queued task without a batch", func(t *testing.T) {
		before := promtest.ToFloat64(queueAnomalies)

		s.mu.Lock()
		s.queue.enqueue(queuedTask{batchID: "gone", task: Task{ID: "orphan", URL: origin.URL() + "/orphan.png"}})
		s.mu.Unlock()

		require.NotPanics(t, s.pump)
		assert.Equal(t, before+1, promtest.ToFloat64(queueAnomalies))
		assert.Equal(t, Stats{Limit: 2}, s.Stats())
		assert.Equal(t, 0, origin.RequestCount())
	})

	t.Run("batch counts tasks the queue lost", func(t *testing.T) {
		b, err := s.NewBatch(context.Background(), makeTasks(origin, "drift", 1), DefaultBatchConfig())
		require.NoError(t, err)

		s.mu.Lock()
		b.phase = PhaseRunning
		s.batches[b.id] = b
		s.mu.Unlock()

		before := promtest.ToFloat64(queueAnomalies)
		require.NotPanics(t, s.pump)
		assert.Equal(t, before+1, promtest.ToFloat64(queueAnomalies))
		assert.Equal(t, Stats{Limit: 2, Batches: 1}, s.Stats())

		b.Cancel()
		_, err = wait(t, b)
		assert.ErrorIs(t, err, ErrBatchCancelled)
		assert.Equal(t, Stats{Limit: 2}, s.Stats())
		assert.Equal(t, before+1, promtest.ToFloat64(queueAnomalies))
	})
}
