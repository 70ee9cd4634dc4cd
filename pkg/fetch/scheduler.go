package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Sternrassler/batch-fetcher/pkg/cache"
	"github.com/Sternrassler/batch-fetcher/pkg/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Scheduler admits tasks from every batch through one queue and one governor.
type Scheduler struct {
	config    SchedulerConfig
	slots     *cache.Slots
	ownsSlots bool
	logger    zerolog.Logger

	mu      sync.Mutex
	queue   *taskQueue
	gov     *governor
	batches map[string]*Batch
	seq     uint64
	closed  bool

	mailbox     *mailbox
	workers     *workerPool
	dispatching sync.WaitGroup
	stop        chan struct{}
	loopDone    chan struct{}
	closeOnce   sync.Once
}

// Stats is a snapshot of scheduler-wide counters.
type Stats struct {
	Limit    int `json:"limit"`
	InFlight int `json:"in_flight"`
	Queued   int `json:"queued"`
	Batches  int `json:"batches"`
}

// dispatchItem is a task admitted under the lock, resolved outside it.
type dispatchItem struct {
	batch *Batch
	task  Task
	seq   uint64
	ctx   context.Context
}

// NewScheduler creates a scheduler and starts its workers.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.MaxParallel == 0 {
		cfg.MaxParallel = DefaultMaxParallel
	}
	cfg.MaxParallel = clamp(cfg.MaxParallel, MinMaxParallel, MaxParallelLimit)
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Decoder == nil {
		cfg.Decoder = imaging.StdDecoder{}
	}

	ownsSlots := false
	if cfg.Slots == nil {
		backend, err := cache.OpenBadgerBackend("")
		if err != nil {
			return nil, fmt.Errorf("open in-memory cache: %w", err)
		}
		cfg.Slots = cache.NewSlots(backend, "")
		ownsSlots = true
	}

	s := &Scheduler{
		config:    cfg,
		slots:     cfg.Slots,
		ownsSlots: ownsSlots,
		logger:    log.With().Str("component", "scheduler").Logger(),
		queue:     newTaskQueue(),
		gov:       newGovernor(cfg.MaxParallel),
		batches:   make(map[string]*Batch),
		mailbox:   newMailbox(),
		stop:      make(chan struct{}),
		loopDone:  make(chan struct{}),
	}
	s.workers = newWorkerPool(cfg.HTTPClient, cfg.UserAgent, cfg.Decoder, s.mailbox.post,
		log.With().Str("component", "fetch-worker").Logger())
	s.workers.start(MaxParallelLimit)
	go s.loop()

	s.logger.Info().
		Int("max_parallel", cfg.MaxParallel).
		Int("workers", MaxParallelLimit).
		Str("default_slot", s.slots.DefaultName()).
		Msg("Scheduler started")

	return s, nil
}

// Slots returns the store registry used by the scheduler.
func (s *Scheduler) Slots() *cache.Slots {
	return s.slots
}

// Stats returns scheduler-wide counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Limit:    s.gov.limit,
		InFlight: s.gov.inFlight,
		Queued:   s.queue.len(),
		Batches:  len(s.batches),
	}
}

// SetMaxParallel changes the global cap (clamped to 1-8). Lowering it below
// the current in-flight count only holds back new admissions until enough
// tasks complete; running fetches are not cancelled.
func (s *Scheduler) SetMaxParallel(n int) {
	s.mu.Lock()
	s.gov.setLimit(n)
	s.mu.Unlock()
	s.pump()
}

// NewBatch validates tasks and returns an Initialized batch. Attach observers,
// then call Start. The batch is destroyed without terminal events if ctx ends
// before it finishes.
func (s *Scheduler) NewBatch(ctx context.Context, tasks []Task, cfg BatchConfig) (*Batch, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrSchedulerClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContextInvalidated, err)
	}

	normalized := cfg.Normalize()
	s.logClamps(cfg, normalized)

	seen := make(map[TaskID]struct{}, len(tasks))
	for _, t := range tasks {
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
		}
		seen[t.ID] = struct{}{}
	}

	resolver, err := s.newResolver(ctx, normalized)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	b := &Batch{
		id:       id,
		sched:    s,
		ctx:      ctx,
		cfg:      normalized,
		tasks:    append([]Task(nil), tasks...),
		resolver: resolver,
		logger:   s.logger.With().Str("batch_id", id).Logger(),
		phase:    PhaseInitialized,
		agg:      newAggregator(id, len(tasks)),
		inflight: make(map[TaskID]*inflightTask),
		done:     make(chan struct{}),
	}
	b.agg.state.Queued = len(tasks)
	return b, nil
}

// Submit creates a batch, applies opts and starts it.
func (s *Scheduler) Submit(ctx context.Context, tasks []Task, cfg BatchConfig, opts ...Option) (*Batch, error) {
	b, err := s.NewBatch(ctx, tasks, cfg)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.Start(); err != nil {
		return nil, err
	}
	return b, nil
}

// Close destroys every live batch, stops the workers and waits for pending
// slot flushes until ctx ends. Observers must not call Close.
func (s *Scheduler) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		var aborted []*Batch
		for _, b := range s.batches {
			if b.phase == PhaseRunning && s.destroyLocked(b, ErrSchedulerClosed) {
				aborted = append(aborted, b)
			}
		}
		s.mu.Unlock()

		for _, b := range aborted {
			s.teardown(b)
			batchesTotal.WithLabelValues("aborted").Inc()
		}

		s.dispatching.Wait()
		close(s.stop)
		<-s.loopDone
		s.workers.stop()

		flushed := make(chan struct{})
		go func() {
			s.slots.Wait()
			close(flushed)
		}()
		select {
		case <-flushed:
		case <-ctx.Done():
			err = fmt.Errorf("waiting for cache flush: %w", ctx.Err())
			return
		}

		if s.ownsSlots {
			if cerr := s.slots.Close(); cerr != nil {
				err = fmt.Errorf("close cache: %w", cerr)
			}
		}
		s.logger.Info().Int("aborted_batches", len(aborted)).Msg("Scheduler closed")
	})
	return err
}

func (s *Scheduler) newResolver(ctx context.Context, cfg BatchConfig) (*cache.Resolver, error) {
	var slot *cache.Slot
	if cfg.CachePolicy.UsesStore() {
		var err error
		slot, err = s.slots.Open(ctx, cfg.SlotName)
		if err != nil {
			return nil, fmt.Errorf("open cache slot: %w", err)
		}
	}

	var files *cache.FileTier
	if cfg.CachePolicy.UsesFiles() {
		dir := cfg.DownloadDir
		if dir == "" {
			dir = s.config.DownloadDir
		}
		if dir == "" {
			return nil, fmt.Errorf("cache policy %q requires a download directory", cfg.CachePolicy)
		}
		files = cache.NewFileTier(dir)
	}

	return cache.NewResolver(cfg.CachePolicy, slot, files, s.config.Decoder)
}

func (s *Scheduler) logClamps(requested, normalized BatchConfig) {
	if requested.MaxParallel != 0 && requested.MaxParallel != normalized.MaxParallel {
		s.logger.Warn().
			Int("requested", requested.MaxParallel).
			Int("applied", normalized.MaxParallel).
			Msg("max_parallel clamped")
	}
	if requested.Timeout != 0 && requested.Timeout != normalized.Timeout {
		s.logger.Warn().
			Dur("requested", requested.Timeout).
			Dur("applied", normalized.Timeout).
			Msg("timeout clamped")
	}
	if requested.MaxRetries != 0 {
		s.logger.Debug().
			Int("max_retries", normalized.MaxRetries).
			Msg("max_retries accepted, failed tasks are not retried")
	}
}

// start moves b to Running and enqueues its tasks.
func (s *Scheduler) start(b *Batch) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	if b.phase != PhaseInitialized {
		s.mu.Unlock()
		return ErrBatchStarted
	}
	if err := b.ctx.Err(); err != nil {
		destroyed := s.destroyLocked(b, ErrContextInvalidated)
		s.mu.Unlock()
		if destroyed {
			s.teardown(b)
		}
		return fmt.Errorf("%w: %v", ErrContextInvalidated, err)
	}

	b.phase = PhaseRunning
	s.batches[b.id] = b
	for _, t := range b.tasks {
		s.queue.enqueue(queuedTask{batchID: b.id, task: t})
	}
	b.stopWatch = context.AfterFunc(b.ctx, func() {
		s.abort(b, ErrContextInvalidated)
	})
	s.updateGaugesLocked()
	s.mu.Unlock()

	b.logger.Info().
		Int("tasks", len(b.tasks)).
		Int("max_parallel", b.cfg.MaxParallel).
		Str("policy", string(b.cfg.CachePolicy)).
		Msg("Batch started")

	if len(b.tasks) == 0 {
		s.mailbox.post(message{kind: msgSweep, batchID: b.id})
		return nil
	}
	s.pump()
	return nil
}

// abort destroys a batch that has not begun finalizing.
func (s *Scheduler) abort(b *Batch, cause error) {
	s.mu.Lock()
	if b.phase != PhaseInitialized && b.phase != PhaseRunning {
		s.mu.Unlock()
		return
	}
	destroyed := s.destroyLocked(b, cause)
	s.mu.Unlock()

	if destroyed {
		s.teardown(b)
		batchesTotal.WithLabelValues("aborted").Inc()
	}
	s.pump()
}

// destroyLocked drops the batch's queued tasks, cancels its in-flight tasks,
// returns exactly their slots and unregisters it.
func (s *Scheduler) destroyLocked(b *Batch, cause error) bool {
	if b.phase == PhaseDestroyed {
		return false
	}

	dropped := s.queue.removeBatch(b.id)
	released := 0
	for id, it := range b.inflight {
		it.cancel()
		delete(b.inflight, id)
		released++
	}
	s.gov.release(released)

	b.agg.state.Queued = 0
	b.agg.state.InFlight = 0
	b.phase = PhaseDestroyed
	b.err = cause
	b.final = b.agg.snapshot()
	delete(s.batches, b.id)
	s.updateGaugesLocked()

	if cause != nil {
		b.logger.Warn().
			Err(cause).
			Int("dropped", dropped).
			Int("released", released).
			Int("completed", b.final.Completed).
			Msg("Batch destroyed early")
	}
	return true
}

// teardown runs once per batch after destroyLocked, outside the lock.
func (s *Scheduler) teardown(b *Batch) {
	if b.stopWatch != nil {
		b.stopWatch()
	}
	close(b.done)
}

// pump admits queued tasks while slots are free, in queue order, skipping
// entries whose batch is at its own cap.
func (s *Scheduler) pump() {
	s.mu.Lock()
	admitted := s.admitLocked()
	if len(admitted) > 0 {
		s.dispatching.Add(1)
	}
	s.mu.Unlock()

	if len(admitted) == 0 {
		return
	}
	defer s.dispatching.Done()
	for _, d := range admitted {
		s.dispatch(d)
	}
}

func (s *Scheduler) admitLocked() []dispatchItem {
	if s.closed {
		return nil
	}

	var out []dispatchItem
	for s.gov.free() > 0 {
		if s.queue.len() == 0 {
			s.checkDrainedLocked()
			break
		}
		qt, ok := s.queue.takeFirst(s.admissibleLocked)
		if !ok {
			// Every queued batch is at its own cap.
			break
		}

		b, ok := s.batches[qt.batchID]
		if !ok || b.phase != PhaseRunning {
			s.anomalyLocked(qt.batchID, qt.task.ID, "Queued task has no running batch")
			continue
		}

		s.gov.tryAdmit()
		s.seq++
		ctx, cancel := context.WithCancel(b.ctx)
		b.inflight[qt.task.ID] = &inflightTask{seq: s.seq, cancel: cancel}
		b.agg.state.Queued--
		b.agg.state.InFlight++
		out = append(out, dispatchItem{batch: b, task: qt.task, seq: s.seq, ctx: ctx})
	}
	s.updateGaugesLocked()
	return out
}

// admissibleLocked reports whether qt may be admitted now. Entries without a
// running batch are taken too, so admitLocked can flag them.
func (s *Scheduler) admissibleLocked(qt queuedTask) bool {
	b, ok := s.batches[qt.batchID]
	if !ok || b.phase != PhaseRunning {
		return true
	}
	return b.cfg.MaxParallel == 0 || b.agg.state.InFlight < b.cfg.MaxParallel
}

// checkDrainedLocked flags running batches that still count queued tasks
// after the queue ran dry.
func (s *Scheduler) checkDrainedLocked() {
	for id, b := range s.batches {
		if b.phase == PhaseRunning && b.agg.state.Queued > 0 {
			s.anomalyLocked(id, "", "Batch expects queued tasks but the queue is empty")
		}
	}
}

func (s *Scheduler) anomalyLocked(batchID string, taskID TaskID, msg string) {
	queueAnomalies.Inc()
	s.logger.Warn().
		Err(ErrQueueAnomaly).
		Str("batch_id", batchID).
		Str("task_id", string(taskID)).
		Msg(msg)
}

// dispatch resolves an admitted task against the cache. Hits complete
// without a fetch worker; misses go to the pool.
func (s *Scheduler) dispatch(d dispatchItem) {
	b := d.batch
	hit, err := b.resolver.Resolve(d.ctx, string(d.task.ID), d.task.URL)

	switch {
	case err == nil:
		s.mailbox.post(message{
			kind:    msgOutcome,
			batchID: b.id,
			taskID:  d.task.ID,
			seq:     d.seq,
			outcome: Outcome{
				TaskID:      d.task.ID,
				URL:         d.task.URL,
				Status:      StatusSuccess,
				Source:      sourceOf(hit.Tier),
				Data:        hit.Entry.Data,
				Image:       hit.Image,
				CompletedAt: time.Now(),
			},
		})

	case errors.Is(err, cache.ErrCacheMiss):
		s.workers.submit(job{
			ctx:     d.ctx,
			batchID: b.id,
			seq:     d.seq,
			task:    d.task,
			timeout: b.cfg.Timeout,
		})

	default:
		class := ErrorClassNetwork
		if d.ctx.Err() != nil {
			class = ErrorClassContextInvalidated
		}
		fe := &FetchError{TaskID: d.task.ID, Class: class, Message: "cache lookup", Err: err}
		s.mailbox.post(message{
			kind:    msgOutcome,
			batchID: b.id,
			taskID:  d.task.ID,
			seq:     d.seq,
			outcome: Outcome{
				TaskID:       d.task.ID,
				URL:          d.task.URL,
				Status:       StatusFailed,
				Err:          fe,
				ErrorMessage: fe.Error(),
				CompletedAt:  time.Now(),
			},
		})
	}
}

func sourceOf(t cache.Tier) Source {
	if t == cache.TierFile {
		return SourceFile
	}
	return SourceStore
}

// loop is the completion goroutine. Every outcome is recorded here, so
// aggregation, cache write-back and observer calls are serialized.
func (s *Scheduler) loop() {
	defer close(s.loopDone)

	for {
		select {
		case <-s.stop:
			return
		case <-s.mailbox.notify:
			for _, m := range s.mailbox.drain() {
				s.handle(m)
			}
		}
	}
}

func (s *Scheduler) handle(m message) {
	switch m.kind {
	case msgOutcome:
		s.handleOutcome(m)
	case msgProgress:
		s.handleProgress(m)
	case msgSweep:
		s.handleSweep(m)
	}
}

func (s *Scheduler) handleOutcome(m message) {
	s.mu.Lock()
	b, ok := s.batches[m.batchID]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug().
			Str("batch_id", m.batchID).
			Str("task_id", string(m.taskID)).
			Msg("Dropping outcome of destroyed batch")
		return
	}
	it, ok := b.inflight[m.taskID]
	if !ok || it.seq != m.seq {
		s.mu.Unlock()
		return
	}

	delete(b.inflight, m.taskID)
	it.cancel()
	s.gov.release(1)
	b.agg.state.InFlight--

	if b.ctx.Err() != nil {
		destroyed := s.destroyLocked(b, ErrContextInvalidated)
		s.mu.Unlock()
		if destroyed {
			s.teardown(b)
			batchesTotal.WithLabelValues("aborted").Inc()
		}
		s.pump()
		return
	}

	state := b.agg.record(m.outcome)
	terminal := state.Terminal()
	if terminal {
		b.phase = PhaseFinalizing
	}
	s.updateGaugesLocked()
	s.mu.Unlock()

	if m.outcome.Succeeded() && m.outcome.Source == SourceNetwork {
		entry := cache.NewEntry(string(m.outcome.TaskID), m.outcome.URL, m.outcome.Data)
		if err := b.resolver.Store(b.ctx, entry); err != nil {
			b.logger.Warn().Err(err).Str("task_id", string(m.outcome.TaskID)).Msg("Cache write-back failed")
		}
	}

	s.pump()

	b.emitProgress(state)
	if terminal {
		s.finalize(b, state)
	}
}

func (s *Scheduler) handleProgress(m message) {
	s.mu.Lock()
	b, ok := s.batches[m.batchID]
	if ok {
		it, live := b.inflight[m.taskID]
		ok = live && it.seq == m.seq
	}
	s.mu.Unlock()

	if ok {
		b.emitTaskProgress(m.progress)
	}
}

// handleSweep finalizes a running batch with nothing left to do.
func (s *Scheduler) handleSweep(m message) {
	s.mu.Lock()
	b, ok := s.batches[m.batchID]
	if !ok || b.phase != PhaseRunning || !b.agg.state.Terminal() {
		s.mu.Unlock()
		return
	}
	b.phase = PhaseFinalizing
	state := b.agg.snapshot()
	s.mu.Unlock()

	s.finalize(b, state)
}

// finalize flushes the slot, emits exactly one terminal event and destroys
// the batch. A context lost by now suppresses the event.
func (s *Scheduler) finalize(b *Batch, state BatchState) {
	var flushed <-chan error
	if b.resolver.Policy().UsesStore() {
		flushed = s.slots.SaveAsync(b.resolver.Slot())
	}

	if b.ctx.Err() != nil {
		s.mu.Lock()
		b.flushed = flushed
		destroyed := s.destroyLocked(b, ErrContextInvalidated)
		s.mu.Unlock()
		if destroyed {
			s.teardown(b)
			batchesTotal.WithLabelValues("aborted").Inc()
		}
		return
	}

	result := "succeeded"
	if state.Failed > 0 {
		result = "failed"
	}
	b.logger.Info().
		Str("result", result).
		Int("total", state.Total).
		Int("failed", state.Failed).
		Msg("Batch finished")

	b.emitTerminal(state)
	batchesTotal.WithLabelValues(result).Inc()

	s.mu.Lock()
	b.flushed = flushed
	destroyed := s.destroyLocked(b, nil)
	s.mu.Unlock()
	if destroyed {
		s.teardown(b)
	}
}

func (s *Scheduler) updateGaugesLocked() {
	inFlightGauge.Set(float64(s.gov.inFlight))
	queueDepthGauge.Set(float64(s.queue.len()))
}
