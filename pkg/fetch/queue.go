package fetch

import "container/list"

// queuedTask is one pending task, owned by the batch with batchID.
type queuedTask struct {
	batchID string
	task    Task
}

// taskQueue is the global FIFO shared by all batches.
// Callers hold the scheduler mutex.
type taskQueue struct {
	items *list.List
}

func newTaskQueue() *taskQueue {
	return &taskQueue{items: list.New()}
}

func (q *taskQueue) enqueue(qt queuedTask) {
	q.items.PushBack(qt)
}

// takeFirst removes and returns the oldest entry accepted by ok.
func (q *taskQueue) takeFirst(ok func(queuedTask) bool) (queuedTask, bool) {
	for e := q.items.Front(); e != nil; e = e.Next() {
		qt := e.Value.(queuedTask)
		if ok(qt) {
			q.items.Remove(e)
			return qt, true
		}
	}
	return queuedTask{}, false
}

// removeBatch drops every entry owned by batchID, keeping the order of the
// rest, and returns how many were dropped.
func (q *taskQueue) removeBatch(batchID string) int {
	removed := 0
	for e := q.items.Front(); e != nil; {
		next := e.Next()
		if e.Value.(queuedTask).batchID == batchID {
			q.items.Remove(e)
			removed++
		}
		e = next
	}
	return removed
}

func (q *taskQueue) len() int {
	return q.items.Len()
}
