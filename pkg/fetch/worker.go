package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Sternrassler/batch-fetcher/pkg/imaging"
	"github.com/rs/zerolog"
)

// Request headers identifying the task on the wire.
const (
	HeaderTaskID  = "X-Fetch-Task-ID"
	HeaderTaskURL = "X-Fetch-Task-URL"
)

// Doer performs HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// job is one admitted cache miss handed to a fetch worker.
type job struct {
	ctx     context.Context
	batchID string
	seq     uint64
	task    Task
	timeout time.Duration
}

// workerPool runs a fixed number of fetch workers. Results are posted, never
// returned, so workers never wait on the completion goroutine.
type workerPool struct {
	doer      Doer
	userAgent string
	decoder   imaging.Decoder
	post      func(message)
	logger    zerolog.Logger

	jobs chan job
	wg   sync.WaitGroup
}

func newWorkerPool(doer Doer, userAgent string, decoder imaging.Decoder, post func(message), logger zerolog.Logger) *workerPool {
	return &workerPool{
		doer:      doer,
		userAgent: userAgent,
		decoder:   decoder,
		post:      post,
		logger:    logger,
		// Admissions never exceed MaxParallelLimit, but cancelled jobs may
		// still occupy workers briefly.
		jobs: make(chan job, 2*MaxParallelLimit),
	}
}

func (p *workerPool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *workerPool) submit(j job) {
	p.jobs <- j
}

// stop closes the job channel and waits for workers to exit.
func (p *workerPool) stop() {
	close(p.jobs)
	p.wg.Wait()
}

func (p *workerPool) worker(id int) {
	defer p.wg.Done()

	for j := range p.jobs {
		outcome := p.fetch(j)
		p.post(message{
			kind:    msgOutcome,
			batchID: j.batchID,
			taskID:  j.task.ID,
			seq:     j.seq,
			outcome: outcome,
		})
	}

	p.logger.Debug().Int("worker_id", id).Msg("Worker stopped")
}

// fetch performs one GET and classifies the result.
func (p *workerPool) fetch(j job) Outcome {
	start := time.Now()
	outcome := Outcome{TaskID: j.task.ID, URL: j.task.URL}

	ctx, cancel := context.WithTimeout(j.ctx, j.timeout)
	defer cancel()

	fail := func(fe *FetchError) Outcome {
		fetchesTotal.WithLabelValues(string(StatusFailed)).Inc()
		fetchDuration.Observe(time.Since(start).Seconds())
		outcome.Status = StatusFailed
		outcome.Err = fe
		outcome.ErrorMessage = fe.Error()
		outcome.CompletedAt = time.Now()
		return outcome
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.task.URL, nil)
	if err != nil {
		return fail(&FetchError{TaskID: j.task.ID, Class: ErrorClassNetwork, Message: "invalid request", Err: err})
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set(HeaderTaskID, string(j.task.ID))
	req.Header.Set(HeaderTaskURL, j.task.URL)

	resp, err := p.doer.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && j.ctx.Err() == nil {
			return fail(&FetchError{TaskID: j.task.ID, Class: ErrorClassNetwork, Message: fmt.Sprintf("timeout after %s", j.timeout), Err: err})
		}
		return fail(&FetchError{TaskID: j.task.ID, Class: ErrorClassNetwork, Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return fail(&FetchError{TaskID: j.task.ID, Class: ErrorClassNetwork, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)})
	}

	body, err := io.ReadAll(&progressReader{
		r:     resp.Body,
		total: resp.ContentLength,
		report: func(received, total int64) {
			p.post(message{
				kind:    msgProgress,
				batchID: j.batchID,
				taskID:  j.task.ID,
				seq:     j.seq,
				progress: TaskProgress{
					BatchID:       j.batchID,
					TaskID:        j.task.ID,
					BytesReceived: received,
					BytesTotal:    total,
					Percent:       percent(received, total),
				},
			})
		},
	})
	if err != nil {
		return fail(&FetchError{TaskID: j.task.ID, Class: ErrorClassNetwork, StatusCode: resp.StatusCode, Message: "reading body", Err: err})
	}
	if len(body) == 0 {
		return fail(&FetchError{TaskID: j.task.ID, Class: ErrorClassEmptyResponse, StatusCode: resp.StatusCode})
	}

	fetchesTotal.WithLabelValues(string(StatusSuccess)).Inc()
	fetchDuration.Observe(time.Since(start).Seconds())
	fetchBytes.Add(float64(len(body)))

	outcome.Status = StatusSuccess
	outcome.Source = SourceNetwork
	outcome.Data = body
	outcome.CompletedAt = time.Now()

	// A body that is not an image still counts as a successful fetch.
	img, err := p.decoder.Decode(body)
	if err != nil {
		p.logger.Warn().
			Err(err).
			Str("task_id", string(j.task.ID)).
			Str("url", j.task.URL).
			Msg("Fetched body is not a decodable image")
	} else {
		outcome.Image = img
	}

	p.logger.Debug().
		Str("task_id", string(j.task.ID)).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return outcome
}

// progressReader reports cumulative bytes read, at most once per whole
// percent when the length is known and once per chunk otherwise.
type progressReader struct {
	r        io.Reader
	total    int64
	received int64
	lastPct  int
	report   func(received, total int64)
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	if n > 0 {
		pr.received += int64(n)
		if pr.total > 0 {
			pct := int(percent(pr.received, pr.total))
			if pct > pr.lastPct {
				pr.lastPct = pct
				pr.report(pr.received, pr.total)
			}
		} else {
			pr.report(pr.received, pr.total)
		}
	}
	return n, err
}

func percent(received, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(received) / float64(total) * 100
	if p > 100 {
		p = 100
	}
	return p
}
