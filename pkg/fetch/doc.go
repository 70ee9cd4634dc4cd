// Package fetch schedules batches of HTTP fetches under one global
// concurrency cap, resolving every task against the cache before touching the
// network.
//
// A single Scheduler is shared by every batch in the process. It owns:
//
//   - the task queue: a global FIFO of pending tasks from all running batches
//   - the governor: the in-flight counter and its cap (default 5, range 1-8),
//     owned by the scheduler; a batch MaxParallel only limits that batch
//   - a fixed pool of fetch workers
//   - one completion goroutine that receives every outcome as a message
//
// The queue and governor share one mutex, so dequeue-and-admit is atomic.
// When a slot frees up, the oldest queued task in the process is admitted,
// whichever batch owns it.
//
// # Basic Usage
//
//	sched, err := fetch.NewScheduler(fetch.SchedulerConfig{MaxParallel: 5})
//	if err != nil {
//		return err
//	}
//	defer sched.Close(ctx)
//
//	batch, err := sched.Submit(ctx, tasks, fetch.DefaultBatchConfig(),
//		fetch.WithProgress(func(s fetch.BatchState) { ... }),
//		fetch.WithAllFailed(func(s fetch.BatchState) { ... }),
//	)
//	state, err := batch.Wait(ctx)
//
// # Batch Lifecycle
//
// Initialized -> Running -> Finalizing -> Destroyed. Observers are attached
// while Initialized. A batch finalizes once nothing of it is queued or in
// flight: the cache slot is flushed asynchronously, then exactly one of
// OnAllSucceeded or OnAllFailed fires. Cancelling the batch, or losing the
// context it was created with, moves it straight to Destroyed: its queued
// tasks are dropped, its in-flight fetches are cancelled, their slots are
// released, and no terminal event fires.
//
// # Metrics
//
//   - batchfetch_fetches_total{status} - Network fetches by outcome
//   - batchfetch_fetch_duration_seconds - Network fetch latency
//   - batchfetch_inflight - Tasks currently holding a governor slot
//   - batchfetch_queue_depth - Tasks waiting in the global queue
//   - batchfetch_batches_total{result} - Finished batches by result
//   - batchfetch_queue_anomalies_total - Benign queue/batch drift detections
package fetch
