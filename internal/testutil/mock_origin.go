// Package testutil provides testing utilities for batch-fetcher.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock origin path.
type MockResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
	Delay      time.Duration
}

// MockOrigin is a configurable origin server for fetch tests. Requests can be
// held at a gate so tests observe exactly how many are in flight.
type MockOrigin struct {
	server   *httptest.Server
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc

	gated  bool
	tokens chan struct{}
	opened chan struct{}

	requests      int
	active        int
	peak          int
	cancelled     int
	lastHeader    http.Header
	requestedPath []string
}

// NewMockOrigin creates a running origin. Unknown paths answer 200 with a
// 2x2 PNG.
func NewMockOrigin() *MockOrigin {
	m := &MockOrigin{
		handlers: make(map[string]http.HandlerFunc),
		tokens:   make(chan struct{}, 1024),
		opened:   make(chan struct{}),
	}

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requests++
		m.active++
		if m.active > m.peak {
			m.peak = m.active
		}
		m.lastHeader = r.Header.Clone()
		m.requestedPath = append(m.requestedPath, r.URL.Path)
		gated := m.gated
		handler, exists := m.handlers[r.URL.Path]
		m.mu.Unlock()

		defer func() {
			m.mu.Lock()
			m.active--
			m.mu.Unlock()
		}()

		if gated {
			select {
			case <-m.tokens:
			case <-m.opened:
			case <-r.Context().Done():
				m.mu.Lock()
				m.cancelled++
				m.mu.Unlock()
				return
			}
		}

		if exists {
			handler(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(PNG(2, 2))
	}))

	return m
}

// URL returns the origin base URL.
func (m *MockOrigin) URL() string {
	return m.server.URL
}

// Client returns an HTTP client for the origin.
func (m *MockOrigin) Client() *http.Client {
	return m.server.Client()
}

// Close releases held requests and shuts the server down.
func (m *MockOrigin) Close() {
	m.Open()
	m.server.Close()
}

// SetHandler sets a custom handler for a path.
func (m *MockOrigin) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockOrigin) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if len(resp.Body) > 0 {
			_, _ = w.Write(resp.Body)
		}
	})
}

// Hold makes subsequent requests wait until Release or Open.
// Call it before the requests arrive.
func (m *MockOrigin) Hold() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gated = true
}

// Release lets n held requests proceed.
func (m *MockOrigin) Release(n int) {
	for i := 0; i < n; i++ {
		m.tokens <- struct{}{}
	}
}

// Open releases every held request, now and later.
func (m *MockOrigin) Open() {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.opened:
	default:
		close(m.opened)
	}
}

// RequestCount returns the number of requests received.
func (m *MockOrigin) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// Active returns the number of requests currently being served.
func (m *MockOrigin) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Peak returns the highest number of concurrent requests seen.
func (m *MockOrigin) Peak() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// Cancelled returns how many held requests were abandoned by the client.
func (m *MockOrigin) Cancelled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled
}

// LastRequestHeader returns the headers of the latest request.
func (m *MockOrigin) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeader
}

// Paths returns the requested paths in arrival order.
func (m *MockOrigin) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requestedPath...)
}

// PNG returns an encoded w x h opaque PNG.
func PNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 40), G: uint8(y * 40), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
