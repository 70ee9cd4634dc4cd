package fetch

import (
	"errors"
	"fmt"
)

// ErrorClass classifies task and batch failures.
type ErrorClass string

const (
	// ErrorClassNetwork is a transport failure, timeout or non-2xx status.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassEmptyResponse is a successful response with a zero-length body.
	ErrorClassEmptyResponse ErrorClass = "empty_response"

	// ErrorClassContextInvalidated means the owning context went away.
	ErrorClassContextInvalidated ErrorClass = "context_invalidated"

	// ErrorClassQueueAnomaly is queue/batch drift; logged only.
	ErrorClassQueueAnomaly ErrorClass = "queue_anomaly"
)

var (
	// ErrNetworkFailure matches every network-class FetchError.
	ErrNetworkFailure = errors.New("network failure")

	// ErrEmptyResponse matches every empty-response FetchError.
	ErrEmptyResponse = errors.New("empty response")

	// ErrContextInvalidated is returned by Batch.Wait when the batch's context
	// ended before it finished.
	ErrContextInvalidated = errors.New("context invalidated")

	// ErrQueueAnomaly is logged when queue and batch bookkeeping disagree.
	ErrQueueAnomaly = errors.New("queue anomaly")

	// ErrBatchCancelled is returned by Batch.Wait after Batch.Cancel.
	ErrBatchCancelled = errors.New("batch cancelled")

	// ErrBatchStarted is returned when Start is called twice.
	ErrBatchStarted = errors.New("batch already started")

	// ErrDuplicateTask is returned when a batch repeats a task id.
	ErrDuplicateTask = errors.New("duplicate task id")

	// ErrSchedulerClosed is returned for work submitted after Close.
	ErrSchedulerClosed = errors.New("scheduler closed")
)

// FetchError describes why one task failed.
type FetchError struct {
	TaskID     TaskID
	Class      ErrorClass
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	msg := fmt.Sprintf("task %s: %s", e.TaskID, e.Class)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's class.
func (e *FetchError) Is(target error) bool {
	return target != nil && target == classSentinel(e.Class)
}

func classSentinel(class ErrorClass) error {
	switch class {
	case ErrorClassNetwork:
		return ErrNetworkFailure
	case ErrorClassEmptyResponse:
		return ErrEmptyResponse
	case ErrorClassContextInvalidated:
		return ErrContextInvalidated
	case ErrorClassQueueAnomaly:
		return ErrQueueAnomaly
	default:
		return nil
	}
}

// ClassOf returns the class of err, or "" when err is not a FetchError.
func ClassOf(err error) ErrorClass {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Class
	}
	return ""
}
