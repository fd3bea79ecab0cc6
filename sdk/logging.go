package sdk

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// sensitiveParams are query parameter names whose values never appear
// in logs or observer callbacks. Matching is case-insensitive.
var sensitiveParams = map[string]struct{}{
	"access_token":  {},
	"appsecret":     {},
	"credential":    {},
	"secret":        {},
	"session_key":   {},
	"password":      {},
	"token":         {},
	"authorization": {},
}

const redactedPlaceholder = "[REDACTED]"

// RedactURL masks the values of sensitive query parameters in a URL or
// path. Parameter order and all other values are preserved, so redacted
// URLs stay recognizable in logs.
//
// Example:
//
//	sdk.RedactURL("/cgi-bin/token?access_token=abc123&grant_type=x")
//	// "/cgi-bin/token?access_token=[REDACTED]&grant_type=x"
func RedactURL(rawURL string) string {
	base, query, found := strings.Cut(rawURL, "?")
	if !found || query == "" {
		return rawURL
	}

	params := strings.Split(query, "&")
	for i, param := range params {
		key, _, hasValue := strings.Cut(param, "=")
		if !hasValue {
			continue
		}
		if _, sensitive := sensitiveParams[strings.ToLower(key)]; sensitive {
			params[i] = key + "=" + redactedPlaceholder
		}
	}
	return base + "?" + strings.Join(params, "&")
}

// newLoggingInterceptor reports request lifecycle events through the
// observer. The URL is redacted before it leaves the pipeline, so no
// observer ever sees credential material. Request and response bodies
// are never reported.
func newLoggingInterceptor(observer Observer) Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			redacted := RedactURL(req.Path)
			observer.OnRequestStart(req.Method, redacted)

			start := time.Now()
			resp, err := next(ctx, req)
			duration := time.Since(start)

			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			observer.OnRequestEnd(req.Method, redacted, status, duration, err)
			return resp, err
		}
	}
}

// LogrusObserver writes observer events to a logrus logger. In normal
// mode it logs one line per completed request plus retries, token
// refreshes and circuit breaker transitions. Verbose mode adds request
// starts and token cache activity at debug level.
//
// Example:
//
//	logger := logrus.New()
//	config := sdk.DefaultConfig().
//	    WithObserver(sdk.NewLogrusObserver(logger, false))
type LogrusObserver struct {
	logger  logrus.FieldLogger
	verbose bool
}

// NewLogrusObserver creates an observer that logs through logrus
func NewLogrusObserver(logger logrus.FieldLogger, verbose bool) *LogrusObserver {
	return &LogrusObserver{logger: logger, verbose: verbose}
}

// OnRequestStart logs request initiation in verbose mode
func (o *LogrusObserver) OnRequestStart(method, url string) {
	if !o.verbose {
		return
	}
	o.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    url,
	}).Debug("request started")
}

// OnRequestEnd logs one line per completed request
func (o *LogrusObserver) OnRequestEnd(method, url string, statusCode int, duration time.Duration, err error) {
	entry := o.logger.WithFields(logrus.Fields{
		"method":      method,
		"url":         url,
		"status":      statusCode,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("request failed")
		return
	}
	entry.Info("request completed")
}

// OnRetryAttempt logs each retry with its delay
func (o *LogrusObserver) OnRetryAttempt(op string, attempt int, delay time.Duration, err error) {
	o.logger.WithFields(logrus.Fields{
		"op":       op,
		"attempt":  attempt,
		"delay_ms": delay.Milliseconds(),
	}).WithError(err).Warn("retrying after transient failure")
}

// OnTokenRefresh logs token refresh outcomes
func (o *LogrusObserver) OnTokenRefresh(appID string, lifetime time.Duration, err error) {
	entry := o.logger.WithField("app_id", appID)
	if err != nil {
		entry.WithError(err).Error("access token refresh failed")
		return
	}
	entry.WithField("lifetime", lifetime.String()).Info("access token refreshed")
}

// OnTokenCacheHit logs cache hits in verbose mode
func (o *LogrusObserver) OnTokenCacheHit(appID string) {
	if !o.verbose {
		return
	}
	o.logger.WithField("app_id", appID).Debug("access token served from cache")
}

// OnTokenCacheMiss logs cache misses in verbose mode
func (o *LogrusObserver) OnTokenCacheMiss(appID string) {
	if !o.verbose {
		return
	}
	o.logger.WithField("app_id", appID).Debug("access token cache miss")
}

// OnCircuitBreakerStateChange logs circuit transitions
func (o *LogrusObserver) OnCircuitBreakerStateChange(endpoint string, oldState, newState CircuitState) {
	o.logger.WithFields(logrus.Fields{
		"endpoint":  endpoint,
		"old_state": oldState.String(),
		"new_state": newState.String(),
	}).Warn("circuit breaker state changed")
}
