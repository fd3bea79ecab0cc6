// Package testdata provides a mock Mini Program platform server for
// SDK tests.
package testdata

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultToken is the access token the mock platform issues unless a
// custom token handler is registered.
const DefaultToken = "mock-access-token-0001"

// MockPlatform is a configurable fake of the platform API. It serves
// /cgi-bin/token with a counting default handler and lets tests
// register handlers for any other method and path.
type MockPlatform struct {
	*httptest.Server
	mu         sync.RWMutex
	handlers   map[string]HandlerFunc
	tokenCalls atomic.Int32
	requests   []RecordedRequest
}

// HandlerFunc produces a status code and a JSON-encodable body.
// Returning a []byte body serves raw bytes with an image content type,
// the way the code image endpoints answer.
type HandlerFunc func(r *http.Request) (int, interface{})

// RecordedRequest stores information about a received request
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Time   time.Time
}

// NewMockPlatform creates a mock platform server with a default token
// handler. Close it when the test is done.
func NewMockPlatform() *MockPlatform {
	mp := &MockPlatform{
		handlers: make(map[string]HandlerFunc),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", mp.handleRequest)
	mp.Server = httptest.NewServer(mux)

	mp.Handle("GET /cgi-bin/token", func(r *http.Request) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{
			"access_token": DefaultToken,
			"expires_in":   7200,
		}
	})

	return mp
}

// Handle registers a handler for "METHOD /path". Registering the same
// key again replaces the previous handler.
func (mp *MockPlatform) Handle(key string, handler HandlerFunc) {
	mp.mu.Lock()
	mp.handlers[key] = handler
	mp.mu.Unlock()
}

// HandleError registers a handler answering with a platform errcode
// envelope and HTTP 200, the way the real platform reports failures.
func (mp *MockPlatform) HandleError(key string, errcode int, errmsg string) {
	mp.Handle(key, func(r *http.Request) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{
			"errcode": errcode,
			"errmsg":  errmsg,
		}
	})
}

// TokenCalls reports how many times the token endpoint was hit
func (mp *MockPlatform) TokenCalls() int {
	return int(mp.tokenCalls.Load())
}

// Requests returns a copy of all recorded requests
func (mp *MockPlatform) Requests() []RecordedRequest {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return append([]RecordedRequest(nil), mp.requests...)
}

// LastRequest returns the most recent recorded request, or nil
func (mp *MockPlatform) LastRequest() *RecordedRequest {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	if len(mp.requests) == 0 {
		return nil
	}
	last := mp.requests[len(mp.requests)-1]
	return &last
}

func (mp *MockPlatform) handleRequest(w http.ResponseWriter, r *http.Request) {
	mp.mu.Lock()
	mp.requests = append(mp.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Time:   time.Now(),
	})
	handler, ok := mp.handlers[r.Method+" "+r.URL.Path]
	mp.mu.Unlock()

	if r.URL.Path == "/cgi-bin/token" {
		mp.tokenCalls.Add(1)
	}

	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"errcode": 404,
			"errmsg":  "no handler for " + r.Method + " " + r.URL.Path,
		})
		return
	}

	status, body := handler(r)

	if raw, isRaw := body.([]byte); isRaw {
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(status)
		_, _ = w.Write(raw)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}
