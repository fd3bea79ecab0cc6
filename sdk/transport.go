package sdk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// httpTransport performs the actual HTTP exchange with the platform.
// It is the innermost stage of the interceptor pipeline: everything
// above it (logging, retry, credential injection, circuit breaking)
// is composed around its roundTrip method.
type httpTransport struct {
	// client is the underlying HTTP client
	client *http.Client
	// baseURL is the parsed base URL for the platform API
	baseURL *url.URL
	// userAgent is sent on every request
	userAgent string
}

// newHTTPTransport creates the HTTP transport from a validated config
func newHTTPTransport(config *Config) (*httpTransport, error) {
	baseURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("base URL must have a scheme and host")
	}

	transport := &http.Transport{
		MaxIdleConns:    config.TransportConfig.MaxIdleConns,
		MaxConnsPerHost: config.TransportConfig.MaxConnsPerHost,
		IdleConnTimeout: config.TransportConfig.IdleConnTimeout,
		DialContext: (&net.Dialer{
			Timeout:   config.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   config.RequestTimeout,
	}

	return &httpTransport{
		client:    client,
		baseURL:   baseURL,
		userAgent: config.UserAgent,
	}, nil
}

// roundTrip executes one request against the platform. It is the base
// Handler of the pipeline.
//
// Error mapping:
//   - connection and read failures become NetworkError (transport class)
//   - exceeded deadlines become TimeoutError (transport class)
//   - non-2xx statuses become transport errors; the Response is still
//     returned alongside so upper stages can observe the status code
//
// A 2xx response is returned as-is; the platform's errcode envelope is
// decoded by the caller, not here.
func (t *httpTransport) roundTrip(ctx context.Context, req *Request) (*Response, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader(req.Body)
	}

	ref, err := url.Parse(req.Path)
	if err != nil {
		return nil, NewError(ErrorTypeConfig, req.Method+" "+pathOnly(req.Path), fmt.Sprintf("invalid request path: %v", err))
	}
	fullURL := t.baseURL.ResolveReference(ref)

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL.String(), bodyReader)
	if err != nil {
		return nil, WrapError(ErrorTypeConfig, req.Method+" "+pathOnly(req.Path), err)
	}

	op := req.Method + " " + pathOnly(req.Path)

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", t.userAgent)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			timeoutErr := &TimeoutError{Op: op}
			return nil, timeoutErr.ToError()
		}
		netErr := &NetworkError{Op: op, Err: err}
		return nil, netErr.ToError()
	}

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		netErr := &NetworkError{Op: op, Err: err}
		return nil, netErr.ToError()
	}

	result := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, NewError(ErrorTypeTransport, op, fmt.Sprintf("platform returned HTTP %d", resp.StatusCode))
	}
	return result, nil
}

// close releases idle connections
func (t *httpTransport) close() {
	t.client.CloseIdleConnections()
}

// isTimeout reports whether a transport error is a timeout rather than
// a hard connection failure. Both are transient, but timeouts get a
// distinct error type so callers can tell them apart.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
