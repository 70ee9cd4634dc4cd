package fetch

import (
	"time"

	"github.com/Sternrassler/batch-fetcher/pkg/imaging"
)

// TaskID identifies a task within a batch.
type TaskID string

// Task is one resource to retrieve.
type Task struct {
	ID  TaskID `json:"id" yaml:"id"`
	URL string `json:"url" yaml:"url"`
}

// Status is the terminal status of a task.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Source records where a successful outcome's bytes came from.
type Source string

const (
	SourceNetwork Source = "network"
	SourceStore   Source = "store"
	SourceFile    Source = "file"
)

// Outcome is the result recorded once per task.
type Outcome struct {
	TaskID       TaskID         `json:"task_id"`
	URL          string         `json:"url"`
	Status       Status         `json:"status"`
	Source       Source         `json:"source,omitempty"`
	ErrorMessage string         `json:"error,omitempty"`
	Err          error          `json:"-"`
	Data         []byte         `json:"-"`
	Image        *imaging.Image `json:"-"`
	CompletedAt  time.Time      `json:"completed_at"`
}

// Succeeded reports whether the outcome is a success.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// BatchState is a point-in-time view of a batch.
//
// Queued + InFlight + Completed == Total while the batch is live.
type BatchState struct {
	BatchID   string    `json:"batch_id"`
	Total     int       `json:"total"`
	Queued    int       `json:"queued"`
	InFlight  int       `json:"in_flight"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	Outcomes  []Outcome `json:"outcomes"`
}

// Terminal reports whether nothing of the batch is queued or in flight.
func (s BatchState) Terminal() bool {
	return s.Queued == 0 && s.InFlight == 0
}

// Progress returns the completed fraction in [0,1].
func (s BatchState) Progress() float64 {
	if s.Total == 0 {
		return 1
	}
	return float64(s.Completed) / float64(s.Total)
}

// TaskProgress reports bytes received for one in-flight fetch.
type TaskProgress struct {
	BatchID       string  `json:"batch_id"`
	TaskID        TaskID  `json:"task_id"`
	BytesReceived int64   `json:"bytes_received"`
	BytesTotal    int64   `json:"bytes_total"`
	Percent       float64 `json:"percent"`
}

// Phase is a batch lifecycle state.
type Phase int

const (
	PhaseInitialized Phase = iota
	PhaseRunning
	PhaseFinalizing
	PhaseDestroyed
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialized:
		return "initialized"
	case PhaseRunning:
		return "running"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}
