package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Sternrassler/batch-fetcher/pkg/cache"
	"github.com/Sternrassler/batch-fetcher/pkg/fetch"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// maxTracked bounds how many finished batches stay queryable.
const maxTracked = 256

var validate = validator.New()

// Response is the envelope of every JSON response.
type Response struct {
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// SubmitRequest is the body of POST /batches.
type SubmitRequest struct {
	Tasks []TaskRequest `json:"tasks" validate:"dive"`

	MaxParallel int    `json:"max_parallel,omitempty" validate:"omitempty,min=1"`
	Timeout     string `json:"timeout,omitempty"`
	CachePolicy string `json:"cache_policy,omitempty"`
	Slot        string `json:"slot,omitempty"`

	// Wait ties the batch to the request: the response carries the final
	// state and a client disconnect destroys the batch.
	Wait bool `json:"wait,omitempty"`
}

// TaskRequest is one task in a SubmitRequest.
type TaskRequest struct {
	ID  string `json:"id" validate:"required"`
	URL string `json:"url" validate:"required,url"`
}

// BatchResponse describes one batch.
type BatchResponse struct {
	ID    string           `json:"id"`
	Phase string           `json:"phase"`
	State fetch.BatchState `json:"state"`
	Error string           `json:"error,omitempty"`
}

// API holds the handlers and the batches they created.
type API struct {
	sched     *fetch.Scheduler
	defaults  fetch.BatchConfig
	baseCtx   context.Context
	startTime time.Time

	mu      sync.Mutex
	batches map[string]*fetch.Batch
	order   []string
}

// NewAPI creates the handler set.
func NewAPI(sched *fetch.Scheduler, defaults fetch.BatchConfig, baseCtx context.Context) *API {
	return &API{
		sched:     sched,
		defaults:  defaults,
		baseCtx:   baseCtx,
		startTime: time.Now(),
		batches:   make(map[string]*fetch.Batch),
	}
}

// Health handles GET /health.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(a.startTime)
	writeJSON(w, http.StatusOK, Response{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data: map[string]interface{}{
			"service":    "batch-fetcher",
			"uptime":     uptime.Round(time.Second).String(),
			"scheduler":  a.sched.Stats(),
			"started_at": a.startTime.UTC().Format(time.RFC3339),
		},
	})
}

// SubmitBatch handles POST /batches.
func (a *API) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg, err := a.batchConfig(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tasks := make([]fetch.Task, len(req.Tasks))
	for i, t := range req.Tasks {
		tasks[i] = fetch.Task{ID: fetch.TaskID(t.ID), URL: t.URL}
	}

	ctx := a.baseCtx
	if req.Wait {
		ctx = r.Context()
	}

	batch, err := a.sched.Submit(ctx, tasks, cfg)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, fetch.ErrSchedulerClosed) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	a.track(batch)

	if !req.Wait {
		writeJSON(w, http.StatusAccepted, Response{
			Status:    "accepted",
			Timestamp: time.Now().UTC(),
			Data:      describe(batch),
		})
		return
	}

	if _, err := batch.Wait(r.Context()); err != nil && !errors.Is(err, fetch.ErrContextInvalidated) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Data:      describe(batch),
	})
}

// GetBatch handles GET /batches/{id}.
func (a *API) GetBatch(w http.ResponseWriter, r *http.Request) {
	batch, ok := a.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Data:      describe(batch),
	})
}

// CancelBatch handles DELETE /batches/{id}.
func (a *API) CancelBatch(w http.ResponseWriter, r *http.Request) {
	batch, ok := a.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	batch.Cancel()
	writeJSON(w, http.StatusOK, Response{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Data:      describe(batch),
	})
}

func (a *API) batchConfig(req SubmitRequest) (fetch.BatchConfig, error) {
	cfg := a.defaults
	if req.MaxParallel != 0 {
		cfg.MaxParallel = req.MaxParallel
	}
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil {
			return cfg, err
		}
		cfg.Timeout = d
	}
	if req.CachePolicy != "" {
		p, err := cache.ParsePolicy(req.CachePolicy)
		if err != nil {
			return cfg, err
		}
		cfg.CachePolicy = p
	}
	if req.Slot != "" {
		cfg.SlotName = req.Slot
	}
	return cfg, nil
}

// track remembers batch, forgetting the oldest finished ones past maxTracked.
func (a *API) track(batch *fetch.Batch) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.batches[batch.ID()] = batch
	a.order = append(a.order, batch.ID())

	for len(a.order) > maxTracked {
		oldest := a.batches[a.order[0]]
		if oldest != nil && oldest.Phase() != fetch.PhaseDestroyed {
			break
		}
		delete(a.batches, a.order[0])
		a.order = a.order[1:]
	}
}

func (a *API) lookup(id string) (*fetch.Batch, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.batches[id]
	return b, ok
}

func describe(b *fetch.Batch) BatchResponse {
	resp := BatchResponse{
		ID:    b.ID(),
		Phase: b.Phase().String(),
		State: b.State(),
	}
	if err := b.Err(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{
		Status:    "error",
		Timestamp: time.Now().UTC(),
		Error:     msg,
	})
}
