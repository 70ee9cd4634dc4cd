package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/batch-fetcher/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "batchfetch_http_requests_total",
	Help: "Total API requests by route and status code",
}, []string{"route", "code"})

// NewRouter wires the API routes and middleware.
func NewRouter(api *API) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", api.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/batches", func(r chi.Router) {
		r.Post("/", api.SubmitBatch)
		r.Get("/{id}", api.GetBatch)
		r.Delete("/{id}", api.CancelBatch)
	})

	return r
}

// requestLogger logs every request with zerolog and counts it.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpRequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()

		log.Info().
			Str("component", "http-server").
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("API request completed")
	})
}
