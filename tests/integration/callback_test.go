package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featherline/weapp-bridge/internal/callback"
	"github.com/featherline/weapp-bridge/internal/relay"
	"github.com/featherline/weapp-bridge/sdk"
)

const testCallbackToken = "integration-callback-token"

// stubAuth stands in for the platform login endpoint
type stubAuth struct {
	session *sdk.SessionInfo
}

func (s *stubAuth) Code2Session(ctx context.Context, jsCode string) (*sdk.SessionInfo, error) {
	return s.session, nil
}

func newCallbackApp(t *testing.T) (*fiber.App, *callback.AsyncWriter) {
	t.Helper()

	cfg := &callback.Config{
		CallbackToken: testCallbackToken,
		RateLimit:     10000,
	}

	writer := callback.NewAsyncWriter(testRepo, 100, 2)
	t.Cleanup(writer.Shutdown)

	auth := &stubAuth{session: &sdk.SessionInfo{
		OpenID:     "openid-login",
		SessionKey: "login-session-key",
		UnionID:    "union-login",
	}}

	handler := callback.NewHandler(cfg, testStore, testRelay, auth, writer, "wx-test-appid")

	app := fiber.New()
	callback.SetupRoutes(app, handler, cfg)
	return app, writer
}

func signedPath(path string) string {
	timestamp := "1724900000"
	nonce := "13579"
	sig := callback.ComputeSignature(testCallbackToken, timestamp, nonce)
	return path + "?signature=" + sig + "&timestamp=" + timestamp + "&nonce=" + nonce
}

func TestCallback_URLVerification(t *testing.T) {
	app, _ := newCallbackApp(t)

	req := httptest.NewRequest("GET", signedPath("/callback")+"&echostr=echo-123", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestCallback_EventFlowsToStream(t *testing.T) {
	resetSessions(t)
	app, _ := newCallbackApp(t)

	before, err := testRelay.StreamInfo("TEST_WEAPP_EVENTS")
	require.NoError(t, err)

	event := relay.CallbackEvent{
		ToUserName:   "gh_test",
		FromUserName: "openid-callback",
		CreateTime:   time.Now().Unix(),
		MsgType:      "event",
		Event:        "subscribe",
	}
	body, _ := json.Marshal(event)

	req := httptest.NewRequest("POST", signedPath("/callback"), bytes.NewReader(body))
	resp, err := app.Test(req, 15000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	after, err := testRelay.StreamInfo("TEST_WEAPP_EVENTS")
	require.NoError(t, err)
	assert.Equal(t, before.State.Msgs+1, after.State.Msgs)
}

func TestCallback_LoginPersistsSession(t *testing.T) {
	resetSessions(t)
	app, _ := newCallbackApp(t)

	body, _ := json.Marshal(callback.LoginRequest{Code: "fresh-js-code"})
	req := httptest.NewRequest("POST", "/v1/sessions/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 15000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var sr callback.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sr))
	assert.Equal(t, "openid-login", sr.OpenID)

	// The hot copy is written synchronously
	ctx := context.Background()
	cached, err := testCache.Get(ctx, "openid-login")
	require.NoError(t, err)
	assert.Equal(t, "login-session-key", cached.SessionKey)

	// The durable row follows through the async writer
	assert.Eventually(t, func() bool {
		sess, err := testRepo.Get(context.Background(), "openid-login")
		return err == nil && sess.SessionKey == "login-session-key"
	}, 10*time.Second, 100*time.Millisecond)
}

func TestCallback_SessionLifecycleOverHTTP(t *testing.T) {
	resetSessions(t)
	app, _ := newCallbackApp(t)
	ctx := context.Background()

	// Seed through the store directly
	require.NoError(t, testStore.Put(ctx, newSession("openid-http")))

	// GET
	resp, err := app.Test(httptest.NewRequest("GET", "/v1/sessions/openid-http", nil), 15000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// DELETE
	resp, err = app.Test(httptest.NewRequest("DELETE", "/v1/sessions/openid-http", nil), 15000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	// GET again is a 404
	resp, err = app.Test(httptest.NewRequest("GET", "/v1/sessions/openid-http", nil), 15000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestCallback_HealthAgainstRealBackends(t *testing.T) {
	app, _ := newCallbackApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil), 15000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var hr callback.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hr))
	assert.Equal(t, "healthy", hr.Status)
}
