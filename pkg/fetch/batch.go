package fetch

import (
	"context"
	"sync"

	"github.com/Sternrassler/batch-fetcher/pkg/cache"
	"github.com/rs/zerolog"
)

// Batch is one submitted group of tasks. Create it with Scheduler.NewBatch or
// Scheduler.Submit.
type Batch struct {
	id       string
	sched    *Scheduler
	ctx      context.Context
	cfg      BatchConfig
	tasks    []Task
	resolver *cache.Resolver
	logger   zerolog.Logger

	// Guarded by sched.mu.
	phase    Phase
	agg      *aggregator
	inflight map[TaskID]*inflightTask
	err      error

	obsMu          sync.Mutex
	onProgress     []func(BatchState)
	onAllSucceeded []func(BatchState)
	onAllFailed    []func(BatchState)
	onTaskProgress []func(TaskProgress)

	stopWatch func() bool
	flushed   <-chan error
	final     BatchState
	done      chan struct{}
}

// inflightTask is an admitted task holding one governor slot.
type inflightTask struct {
	seq    uint64
	cancel context.CancelFunc
}

// Option configures a batch before it starts.
type Option func(*Batch)

// WithProgress registers a progress observer.
func WithProgress(fn func(BatchState)) Option {
	return func(b *Batch) { b.OnProgress(fn) }
}

// WithAllSucceeded registers an observer for a batch without failures.
func WithAllSucceeded(fn func(BatchState)) Option {
	return func(b *Batch) { b.OnAllSucceeded(fn) }
}

// WithAllFailed registers an observer for a batch with at least one failure.
func WithAllFailed(fn func(BatchState)) Option {
	return func(b *Batch) { b.OnAllFailed(fn) }
}

// WithTaskProgress registers a byte-level progress observer.
func WithTaskProgress(fn func(TaskProgress)) Option {
	return func(b *Batch) { b.OnTaskProgress(fn) }
}

// ID returns the batch id.
func (b *Batch) ID() string {
	return b.id
}

// Config returns the normalized batch configuration.
func (b *Batch) Config() BatchConfig {
	return b.cfg
}

// OnProgress registers fn to run after every recorded outcome.
func (b *Batch) OnProgress(fn func(BatchState)) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	b.onProgress = append(b.onProgress, fn)
}

// OnAllSucceeded registers fn to run once if the batch ends with no failures.
func (b *Batch) OnAllSucceeded(fn func(BatchState)) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	b.onAllSucceeded = append(b.onAllSucceeded, fn)
}

// OnAllFailed registers fn to run once if the batch ends with any failure.
func (b *Batch) OnAllFailed(fn func(BatchState)) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	b.onAllFailed = append(b.onAllFailed, fn)
}

// OnTaskProgress registers fn for byte-level progress of network fetches.
func (b *Batch) OnTaskProgress(fn func(TaskProgress)) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	b.onTaskProgress = append(b.onTaskProgress, fn)
}

// Start enqueues the batch's tasks. It may be called once.
func (b *Batch) Start() error {
	return b.sched.start(b)
}

// Cancel destroys the batch. Queued tasks are dropped, in-flight fetches are
// cancelled and no terminal event fires. Cancelling a finished batch is a no-op.
func (b *Batch) Cancel() {
	b.sched.abort(b, ErrBatchCancelled)
}

// Phase returns the lifecycle phase.
func (b *Batch) Phase() Phase {
	b.sched.mu.Lock()
	defer b.sched.mu.Unlock()
	return b.phase
}

// State returns a snapshot of the batch's counters and outcomes.
func (b *Batch) State() BatchState {
	b.sched.mu.Lock()
	defer b.sched.mu.Unlock()
	return b.agg.snapshot()
}

// Done is closed when the batch reaches Destroyed.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Err returns why the batch was destroyed early, or nil.
func (b *Batch) Err() error {
	b.sched.mu.Lock()
	defer b.sched.mu.Unlock()
	return b.err
}

// Wait blocks until the batch is destroyed or ctx ends. It returns the final
// state and a non-nil error only when the batch was cut short. Task failures
// are reported in the state, not as an error.
func (b *Batch) Wait(ctx context.Context) (BatchState, error) {
	select {
	case <-b.done:
		b.sched.mu.Lock()
		defer b.sched.mu.Unlock()
		return b.final, b.err
	case <-ctx.Done():
		return b.State(), ctx.Err()
	}
}

// Flushed returns the result channel of the slot flush started during
// finalization, or nil when the batch did not persist a slot.
func (b *Batch) Flushed() <-chan error {
	b.sched.mu.Lock()
	defer b.sched.mu.Unlock()
	return b.flushed
}

func (b *Batch) emitProgress(state BatchState) {
	b.obsMu.Lock()
	observers := append([]func(BatchState){}, b.onProgress...)
	b.obsMu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}

func (b *Batch) emitTaskProgress(p TaskProgress) {
	b.obsMu.Lock()
	observers := append([]func(TaskProgress){}, b.onTaskProgress...)
	b.obsMu.Unlock()

	for _, fn := range observers {
		fn(p)
	}
}

func (b *Batch) emitTerminal(state BatchState) {
	b.obsMu.Lock()
	var observers []func(BatchState)
	if state.Failed > 0 {
		observers = append(observers, b.onAllFailed...)
	} else {
		observers = append(observers, b.onAllSucceeded...)
	}
	b.obsMu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}
