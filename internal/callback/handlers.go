package callback

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/featherline/weapp-bridge/internal/relay"
	"github.com/featherline/weapp-bridge/internal/sessionstore"
	"github.com/featherline/weapp-bridge/internal/telemetry"
	"github.com/featherline/weapp-bridge/sdk"
)

// SessionStore is the layered session store as the handlers need it
type SessionStore interface {
	Get(ctx context.Context, openID string) (*sessionstore.Session, error)
	Put(ctx context.Context, sess *sessionstore.Session) error
	Touch(ctx context.Context, openID string) error
	Delete(ctx context.Context, openID string) error
	Health(ctx context.Context) error
}

// EventPublisher publishes callback events to the relay stream
type EventPublisher interface {
	PublishEvent(ctx context.Context, msg *relay.EventMessage) error
	Health() error
}

// Authenticator exchanges login codes with the platform
type Authenticator interface {
	Code2Session(ctx context.Context, jsCode string) (*sdk.SessionInfo, error)
}

// Handler holds all dependencies for the callback handlers
type Handler struct {
	config   *Config
	sessions SessionStore
	relay    EventPublisher
	auth     Authenticator
	writer   *AsyncWriter
	appID    string
}

// NewHandler creates a new handler instance
func NewHandler(config *Config, sessions SessionStore, publisher EventPublisher, auth Authenticator, writer *AsyncWriter, appID string) *Handler {
	return &Handler{
		config:   config,
		sessions: sessions,
		relay:    publisher,
		auth:     auth,
		writer:   writer,
		appID:    appID,
	}
}

// VerifyURL handles GET /callback, the WeChat server URL check. A
// valid signature echoes echostr back verbatim.
func (h *Handler) VerifyURL(c *fiber.Ctx) error {
	signature := c.Query("signature")
	timestamp := c.Query("timestamp")
	nonce := c.Query("nonce")
	echostr := c.Query("echostr")

	if !VerifySignature(h.config.CallbackToken, timestamp, nonce, signature) {
		telemetry.RecordSignatureFailure()
		return c.Status(fiber.StatusForbidden).JSON(
			NewErrorResponse("signature mismatch", ErrCodeForbidden),
		)
	}

	return c.SendString(echostr)
}

// ReceiveEvent handles POST /callback. Events are acknowledged with
// "success" once queued; the platform retries a push it does not see
// acknowledged, so failures past the signature check must not 5xx.
func (h *Handler) ReceiveEvent(c *fiber.Ctx) error {
	ctx := c.UserContext()

	signature := c.Query("signature")
	timestamp := c.Query("timestamp")
	nonce := c.Query("nonce")

	if !VerifySignature(h.config.CallbackToken, timestamp, nonce, signature) {
		telemetry.RecordSignatureFailure()
		return c.Status(fiber.StatusForbidden).JSON(
			NewErrorResponse("signature mismatch", ErrCodeForbidden),
		)
	}

	body := c.Body()

	var event relay.CallbackEvent
	if err := json.Unmarshal(body, &event); err != nil {
		telemetry.WithError(err).Warn("undecodable callback event")
		// Acknowledge anyway; the platform would only resend the
		// same bytes.
		return c.SendString("success")
	}

	telemetry.RecordCallbackEvent(event.Type())

	if event.FromUserName != "" {
		if err := h.sessions.Touch(ctx, event.FromUserName); err != nil &&
			!errors.Is(err, sessionstore.ErrSessionNotFound) {
			telemetry.WithError(err).Warn("failed to touch session")
		}
	}

	payload := make(json.RawMessage, len(body))
	copy(payload, body)

	msg := relay.NewEventMessage(h.appID, &event, payload)
	if err := h.relay.PublishEvent(ctx, msg); err != nil {
		telemetry.WithError(err).WithFields(logrus.Fields{
			"event_type": event.Type(),
			"open_id":    event.FromUserName,
		}).Error("failed to publish callback event")
	}

	return c.SendString("success")
}

// Login handles POST /v1/sessions: exchange a wx.login() code for a
// session. Redis gets the session synchronously; the Postgres row is
// written by the async writer.
func (h *Handler) Login(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse("invalid request body", ErrCodeInvalidRequest),
		)
	}
	if req.Code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse("code is required", ErrCodeInvalidRequest),
		)
	}

	info, err := h.auth.Code2Session(ctx, req.Code)
	if err != nil {
		var platformErr *sdk.PlatformError
		if errors.As(err, &platformErr) {
			return c.Status(fiber.StatusBadRequest).JSON(
				NewErrorResponse(platformErr.Error(), ErrCodeUpstream),
			)
		}
		telemetry.WithError(err).Error("code2session failed")
		return c.Status(fiber.StatusBadGateway).JSON(
			NewErrorResponse("login upstream failed", ErrCodeUpstream),
		)
	}

	now := time.Now().UTC()
	sess := &sessionstore.Session{
		OpenID:       string(info.OpenID),
		SessionKey:   string(info.SessionKey),
		UnionID:      string(info.UnionID),
		CreatedAt:    now,
		LastActiveAt: now,
	}

	if err := h.putSessionFast(ctx, sess); err != nil {
		telemetry.WithError(err).Error("failed to store session")
		return c.Status(fiber.StatusInternalServerError).JSON(
			NewErrorResponse("failed to store session", ErrCodeInternalError),
		)
	}

	return c.Status(fiber.StatusCreated).JSON(toSessionResponse(sess))
}

// putSessionFast writes the hot copy and queues the durable write
func (h *Handler) putSessionFast(ctx context.Context, sess *sessionstore.Session) error {
	type cacheSaver interface {
		SaveToCache(ctx context.Context, sess *sessionstore.Session) error
	}

	if cs, ok := h.sessions.(cacheSaver); ok {
		if err := cs.SaveToCache(ctx, sess); err != nil {
			return err
		}
		h.writer.Write(ctx, sess)
		return nil
	}

	// Store without a split fast path: write through both layers
	return h.sessions.Put(ctx, sess)
}

// GetSession handles GET /v1/sessions/:openid
func (h *Handler) GetSession(c *fiber.Ctx) error {
	ctx := c.UserContext()
	openID := c.Params("openid")

	sess, err := h.sessions.Get(ctx, openID)
	if err != nil {
		if errors.Is(err, sessionstore.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(
				NewErrorResponse("session not found", ErrCodeNotFound),
			)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(
			NewErrorResponse("failed to retrieve session", ErrCodeInternalError),
		)
	}

	return c.JSON(toSessionResponse(sess))
}

// DeleteSession handles DELETE /v1/sessions/:openid
func (h *Handler) DeleteSession(c *fiber.Ctx) error {
	ctx := c.UserContext()
	openID := c.Params("openid")

	if err := h.sessions.Delete(ctx, openID); err != nil {
		if errors.Is(err, sessionstore.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(
				NewErrorResponse("session not found", ErrCodeNotFound),
			)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(
			NewErrorResponse("failed to delete session", ErrCodeInternalError),
		)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Health handles GET /health
func (h *Handler) Health(c *fiber.Ctx) error {
	ctx := c.UserContext()

	checks := make(map[string]string)

	if err := h.sessions.Health(ctx); err != nil {
		checks["sessions"] = "unhealthy: " + err.Error()
	} else {
		checks["sessions"] = "healthy"
	}

	if err := h.relay.Health(); err != nil {
		checks["nats"] = "unhealthy: " + err.Error()
	} else {
		checks["nats"] = "healthy"
	}

	status := "healthy"
	for _, check := range checks {
		if check != "healthy" {
			status = "unhealthy"
			break
		}
	}

	response := &HealthResponse{
		Status:  status,
		Service: "weapp-bridge-callback",
		Version: "1.0.0",
		Uptime:  time.Since(startTime).String(),
		Checks:  checks,
	}

	statusCode := fiber.StatusOK
	if status == "unhealthy" {
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(response)
}

func toSessionResponse(sess *sessionstore.Session) *SessionResponse {
	return &SessionResponse{
		OpenID:       sess.OpenID,
		UnionID:      sess.UnionID,
		CreatedAt:    sess.CreatedAt,
		LastActiveAt: sess.LastActiveAt,
	}
}

var startTime = time.Now()
