package fetch

import "sync"

type messageKind int

const (
	msgOutcome messageKind = iota
	msgProgress
	msgSweep
)

// message is posted by workers and dispatchers to the completion goroutine.
type message struct {
	kind     messageKind
	batchID  string
	taskID   TaskID
	seq      uint64
	outcome  Outcome
	progress TaskProgress
}

// mailbox is an unbounded queue of messages. post never blocks, so the
// completion goroutine can post to itself while it dispatches.
type mailbox struct {
	mu     sync.Mutex
	items  []message
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) post(msg message) {
	m.mu.Lock()
	m.items = append(m.items, msg)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []message {
	m.mu.Lock()
	items := m.items
	m.items = nil
	m.mu.Unlock()
	return items
}
