package sdk

import (
	"testing"
	"time"

	"github.com/featherline/weapp-bridge/sdk/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAppID  = AppID("wx1234567890abcdef")
	testSecret = AppSecret("test-app-secret")
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, DefaultBaseURL, config.BaseURL)
	assert.Equal(t, 30*time.Second, config.RequestTimeout)
	assert.Equal(t, 10*time.Second, config.ConnectTimeout)
	assert.Equal(t, 3, config.RetryConfig.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, config.RetryConfig.RetryDelay)
	assert.Equal(t, 30*time.Second, config.RetryConfig.MaxDelay)
	assert.False(t, config.RetryConfig.RetryPost)
	assert.Equal(t, 5*time.Minute, config.RefreshBuffer)
	assert.Equal(t, InjectQuery, config.TokenInjection)
	assert.IsType(t, &NoopObserver{}, config.Observer)
	assert.Nil(t, config.CircuitBreakerConfig)
}

func TestConfig_FluentBuilder(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	observer := NewMetricsCollector()

	config := DefaultConfig().
		WithCredentials(testAppID, testSecret).
		WithBaseURL("https://proxy.example.com").
		WithRequestTimeout(10 * time.Second).
		WithConnectTimeout(2 * time.Second).
		WithRetries(5).
		WithRetryDelay(50 * time.Millisecond).
		WithRetryPost().
		WithRefreshBuffer(time.Minute).
		WithTokenInjection(InjectHeader).
		WithCircuitBreaker(DefaultCircuitBreakerConfig()).
		WithRetryStrategy(NewConstantBackoff(time.Second)).
		WithObserver(observer).
		WithTokenStore(store).
		WithVerboseLogging()

	assert.Equal(t, testAppID, config.AppID)
	assert.Equal(t, testSecret, config.AppSecret)
	assert.Equal(t, "https://proxy.example.com", config.BaseURL)
	assert.Equal(t, 10*time.Second, config.RequestTimeout)
	assert.Equal(t, 2*time.Second, config.ConnectTimeout)
	assert.Equal(t, 5, config.RetryConfig.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, config.RetryConfig.RetryDelay)
	assert.True(t, config.RetryConfig.RetryPost)
	assert.Equal(t, time.Minute, config.RefreshBuffer)
	assert.Equal(t, InjectHeader, config.TokenInjection)
	assert.NotNil(t, config.CircuitBreakerConfig)
	assert.IsType(t, &ConstantBackoff{}, config.RetryStrategy)
	assert.Equal(t, observer, config.Observer)
	assert.Equal(t, store, config.TokenStore)
	assert.True(t, config.Verbose)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return DefaultConfig().WithCredentials(testAppID, testSecret)
	}

	t.Run("valid config passes", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("missing app ID", func(t *testing.T) {
		config := DefaultConfig()
		config.AppSecret = testSecret
		assert.Error(t, config.Validate())
	})

	t.Run("malformed app ID", func(t *testing.T) {
		config := valid()
		config.AppID = "not-an-appid"
		assert.Error(t, config.Validate())
	})

	t.Run("missing secret", func(t *testing.T) {
		config := valid()
		config.AppSecret = ""
		assert.Error(t, config.Validate())
	})

	t.Run("empty base URL", func(t *testing.T) {
		config := valid()
		config.BaseURL = ""
		assert.ErrorIs(t, config.Validate(), ErrInvalidConfig)
	})

	t.Run("relative base URL", func(t *testing.T) {
		config := valid()
		config.BaseURL = "api.weixin.qq.com"
		assert.Error(t, config.Validate())
	})

	t.Run("negative retries", func(t *testing.T) {
		config := valid()
		config.RetryConfig.MaxRetries = -1
		assert.Error(t, config.Validate())
	})

	t.Run("negative refresh buffer", func(t *testing.T) {
		config := valid()
		config.RefreshBuffer = -time.Second
		assert.Error(t, config.Validate())
	})

	t.Run("unknown injection mode", func(t *testing.T) {
		config := valid()
		config.TokenInjection = "cookie"
		assert.Error(t, config.Validate())
	})

	t.Run("defaults are filled", func(t *testing.T) {
		config := valid()
		config.RequestTimeout = 0
		config.ConnectTimeout = 0
		config.RetryConfig.RetryDelay = 0
		config.RetryConfig.MaxDelay = 0
		config.TokenInjection = ""
		config.Observer = nil
		config.UserAgent = ""

		require.NoError(t, config.Validate())
		assert.Equal(t, 30*time.Second, config.RequestTimeout)
		assert.Equal(t, 10*time.Second, config.ConnectTimeout)
		assert.Equal(t, 100*time.Millisecond, config.RetryConfig.RetryDelay)
		assert.Equal(t, 30*time.Second, config.RetryConfig.MaxDelay)
		assert.Equal(t, InjectQuery, config.TokenInjection)
		assert.NotNil(t, config.Observer)
		assert.NotEmpty(t, config.UserAgent)
	})

	t.Run("circuit breaker defaults are filled", func(t *testing.T) {
		config := valid()
		config.CircuitBreakerConfig = &CircuitBreakerConfig{}

		require.NoError(t, config.Validate())
		assert.Equal(t, 5, config.CircuitBreakerConfig.FailureThreshold)
		assert.Equal(t, 2, config.CircuitBreakerConfig.SuccessThreshold)
		assert.Equal(t, 30*time.Second, config.CircuitBreakerConfig.Timeout)
		assert.Equal(t, 3, config.CircuitBreakerConfig.HalfOpenRequests)
	})
}
