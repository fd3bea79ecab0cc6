package sdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Request describes one platform call as it flows through the
// interceptor pipeline. Interceptors that change a request work on a
// copy, so a retried request re-enters the pipeline exactly as the
// caller built it.
type Request struct {
	// Method is the HTTP method
	Method string

	// Path is the URL path relative to the base URL. It may already
	// carry a query string, e.g. "/sns/jscode2session?grant_type=...".
	Path string

	// Body is the request payload; nil for bodyless methods
	Body []byte

	// Header holds additional request headers
	Header http.Header
}

// clone returns a copy safe to mutate. The body is shared because the
// pipeline never modifies it.
func (r *Request) clone() *Request {
	copied := *r
	if r.Header != nil {
		copied.Header = r.Header.Clone()
	}
	return &copied
}

// Response is the raw result of one platform call before decoding
type Response struct {
	// StatusCode is the HTTP status code
	StatusCode int

	// Header holds the response headers
	Header http.Header

	// Body is the full response payload
	Body []byte
}

// Handler executes a request and produces a response. The base handler
// performs the actual HTTP exchange; interceptors wrap it.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Interceptor wraps a handler with additional behavior. Interceptors
// compose: the first interceptor in a chain sees the request first and
// the response last.
type Interceptor func(next Handler) Handler

// chainInterceptors builds the pipeline. The first interceptor listed
// becomes the outermost layer.
func chainInterceptors(base Handler, interceptors ...Interceptor) Handler {
	handler := base
	for i := len(interceptors) - 1; i >= 0; i-- {
		handler = interceptors[i](handler)
	}
	return handler
}

// newCredentialInterceptor attaches the current access token to
// outgoing requests. When no token can be obtained the request is
// passed through unmodified; the platform then rejects it with a
// credential error the caller can inspect, which carries more
// information than failing locally would.
func newCredentialInterceptor(tokens *TokenManager, mode InjectionMode) Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			token, err := tokens.GetToken(ctx)
			if err != nil {
				return next(ctx, req)
			}

			injected := req.clone()
			switch mode {
			case InjectHeader:
				if injected.Header == nil {
					injected.Header = make(http.Header)
				}
				injected.Header.Set("Authorization", "Bearer "+token)
			default:
				sep := "?"
				if strings.Contains(injected.Path, "?") {
					sep = "&"
				}
				injected.Path += sep + "access_token=" + encodeQueryValue(token)
			}
			return next(ctx, injected)
		}
	}
}

// encodeQueryValue percent-encodes a query parameter value.
// url.QueryEscape encodes spaces as "+", which some platform endpoints
// reject, so they are rewritten to "%20".
func encodeQueryValue(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}
