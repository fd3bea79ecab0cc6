package sdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport(t *testing.T, baseURL string, opts ...func(*Config)) *httpTransport {
	t.Helper()

	config := DefaultConfig().
		WithCredentials(testAppID, testSecret).
		WithBaseURL(baseURL)
	for _, opt := range opts {
		opt(config)
	}
	require.NoError(t, config.Validate())

	transport, err := newHTTPTransport(config)
	require.NoError(t, err)
	t.Cleanup(transport.close)
	return transport
}

func TestRoundTrip_Success(t *testing.T) {
	var gotMethod, gotPath, gotAccept, gotAgent, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		gotAgent = r.Header.Get("User-Agent")
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"errcode":0}`))
	}))
	defer server.Close()

	transport := newTestTransport(t, server.URL)

	resp, err := transport.roundTrip(context.Background(), &Request{
		Method: "POST",
		Path:   "/wxa/msg_sec_check",
		Body:   []byte(`{"content":"x"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte(`{"errcode":0}`), resp.Body)

	assert.Equal(t, "POST", gotMethod)
	assert.Equal(t, "/wxa/msg_sec_check", gotPath)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, defaultUserAgent, gotAgent)
	assert.Equal(t, "application/json", gotContentType)
}

func TestRoundTrip_NoBodyHasNoContentType(t *testing.T) {
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"errcode":0}`))
	}))
	defer server.Close()

	transport := newTestTransport(t, server.URL)

	_, err := transport.roundTrip(context.Background(), &Request{Method: "GET", Path: "/cgi-bin/token"})
	require.NoError(t, err)
	assert.Empty(t, gotContentType)
}

func TestRoundTrip_Non2xxReturnsResponseAndError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	transport := newTestTransport(t, server.URL)

	resp, err := transport.roundTrip(context.Background(), &Request{Method: "GET", Path: "/cgi-bin/token"})
	require.Error(t, err)

	var sdkErr *Error
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, ErrorTypeTransport, sdkErr.Type)
	assert.True(t, IsTransient(err))

	// The response travels with the error so upper stages can log the status
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, []byte("upstream unavailable"), resp.Body)
}

func TestRoundTrip_ConnectionRefused(t *testing.T) {
	// Grab a port nothing is listening on
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := server.URL
	server.Close()

	transport := newTestTransport(t, deadURL)

	resp, err := transport.roundTrip(context.Background(), &Request{Method: "GET", Path: "/cgi-bin/token"})
	require.Error(t, err)
	assert.Nil(t, resp)

	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
	assert.True(t, IsTransient(err))
}

func TestRoundTrip_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	transport := newTestTransport(t, server.URL, func(c *Config) {
		c.RequestTimeout = 20 * time.Millisecond
	})

	_, err := transport.roundTrip(context.Background(), &Request{Method: "GET", Path: "/cgi-bin/token"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsTransient(err))
}

func TestRoundTrip_ContextCancellation(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(time.Second)
	}))
	defer server.Close()

	transport := newTestTransport(t, server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := transport.roundTrip(ctx, &Request{Method: "GET", Path: "/cgi-bin/token"})
	assert.Error(t, err)
}

func TestRoundTrip_ResolvesPathsAgainstBase(t *testing.T) {
	var gotURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	transport := newTestTransport(t, server.URL)

	_, err := transport.roundTrip(context.Background(), &Request{
		Method: "GET",
		Path:   "/cgi-bin/token?grant_type=client_credential&appid=wx1",
	})
	require.NoError(t, err)
	assert.Equal(t, "/cgi-bin/token?grant_type=client_credential&appid=wx1", gotURL)
}
