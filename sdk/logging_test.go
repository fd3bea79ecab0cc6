package sdk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactURL(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{
			name:     "access token",
			in:       "/cgi-bin/token?access_token=abc123&grant_type=x",
			expected: "/cgi-bin/token?access_token=[REDACTED]&grant_type=x",
		},
		{
			name:     "secret and appid",
			in:       "/sns/jscode2session?appid=wx123&secret=s3cr3t&js_code=c0de",
			expected: "/sns/jscode2session?appid=wx123&secret=[REDACTED]&js_code=c0de",
		},
		{
			name:     "case insensitive keys",
			in:       "/x?Access_Token=abc&SESSION_KEY=k",
			expected: "/x?Access_Token=[REDACTED]&SESSION_KEY=[REDACTED]",
		},
		{
			name:     "no query",
			in:       "/cgi-bin/get_api_domain_ip",
			expected: "/cgi-bin/get_api_domain_ip",
		},
		{
			name:     "no sensitive params",
			in:       "/x?page=1&limit=20",
			expected: "/x?page=1&limit=20",
		},
		{
			name:     "param without value",
			in:       "/x?flag&token=abc",
			expected: "/x?flag&token=[REDACTED]",
		},
		{
			name:     "order preserved",
			in:       "/x?a=1&password=hunter2&b=2",
			expected: "/x?a=1&password=[REDACTED]&b=2",
		},
		{
			name:     "full url",
			in:       "https://api.weixin.qq.com/cgi-bin/token?access_token=abc123&grant_type=x",
			expected: "https://api.weixin.qq.com/cgi-bin/token?access_token=[REDACTED]&grant_type=x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RedactURL(tt.in))
		})
	}
}

// capturingObserver records observer callbacks for assertions
type capturingObserver struct {
	NoopObserver
	mu     sync.Mutex
	starts []string
	ends   []string
}

func (o *capturingObserver) OnRequestStart(method, url string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts = append(o.starts, method+" "+url)
}

func (o *capturingObserver) OnRequestEnd(method, url string, statusCode int, duration time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ends = append(o.ends, method+" "+url)
}

func TestLoggingInterceptor_RedactsBeforeObserving(t *testing.T) {
	observer := &capturingObserver{}
	interceptor := newLoggingInterceptor(observer)

	handler := interceptor(func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{StatusCode: 200}, nil
	})

	_, err := handler(context.Background(), &Request{
		Method: "GET",
		Path:   "/cgi-bin/token?access_token=abc123&grant_type=x",
	})
	require.NoError(t, err)

	require.Len(t, observer.starts, 1)
	require.Len(t, observer.ends, 1)
	assert.Equal(t, "GET /cgi-bin/token?access_token=[REDACTED]&grant_type=x", observer.starts[0])
	assert.Equal(t, "GET /cgi-bin/token?access_token=[REDACTED]&grant_type=x", observer.ends[0])
}

func TestLogrusObserver_RedactionInBothModes(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		name := "normal"
		if verbose {
			name = "verbose"
		}
		t.Run(name, func(t *testing.T) {
			logger, hook := logrustest.NewNullLogger()
			logger.SetLevel(logrus.DebugLevel)
			observer := NewLogrusObserver(logger, verbose)

			interceptor := newLoggingInterceptor(observer)
			handler := interceptor(func(ctx context.Context, req *Request) (*Response, error) {
				return &Response{StatusCode: 200}, nil
			})

			_, err := handler(context.Background(), &Request{
				Method: "GET",
				Path:   "/cgi-bin/token?credential=abc123&access_token=abc123&grant_type=x",
			})
			require.NoError(t, err)

			require.NotEmpty(t, hook.Entries)
			for _, entry := range hook.AllEntries() {
				if url, ok := entry.Data["url"]; ok {
					assert.NotContains(t, url.(string), "abc123", "credential material must never reach the log")
					assert.Contains(t, url.(string), "access_token=[REDACTED]")
				}
			}
		})
	}
}

func TestLogrusObserver_VerboseGatesDebugEvents(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	quiet := NewLogrusObserver(logger, false)
	quiet.OnRequestStart("GET", "/x")
	quiet.OnTokenCacheHit("wx1")
	quiet.OnTokenCacheMiss("wx1")
	assert.Empty(t, hook.Entries, "normal mode suppresses debug-level events")

	verbose := NewLogrusObserver(logger, true)
	verbose.OnRequestStart("GET", "/x")
	verbose.OnTokenCacheHit("wx1")
	verbose.OnTokenCacheMiss("wx1")
	assert.Len(t, hook.AllEntries(), 3)
}

func TestLogrusObserver_TokenRefresh(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	observer := NewLogrusObserver(logger, false)

	observer.OnTokenRefresh("wx1234567890abcdef", 2*time.Hour, nil)
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, "wx1234567890abcdef", hook.LastEntry().Data["app_id"])

	observer.OnTokenRefresh("wx1234567890abcdef", 0, assert.AnError)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}
