package sdk

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/featherline/weapp-bridge/sdk/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, platform *testdata.MockPlatform, opts ...func(*Config)) Client {
	t.Helper()

	config := DefaultConfig().
		WithCredentials(testAppID, testSecret).
		WithBaseURL(platform.URL).
		WithRetryStrategy(NewConstantBackoff(0))
	for _, opt := range opts {
		opt(config)
	}

	client, err := NewClient(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewClient_Validation(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := NewClient(nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("missing credentials", func(t *testing.T) {
		_, err := NewClient(DefaultConfig())
		assert.Error(t, err)
	})
}

func TestClient_Token(t *testing.T) {
	platform := testdata.NewMockPlatform()
	defer platform.Close()

	client := newTestClient(t, platform)

	token, err := client.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testdata.DefaultToken, token)
	assert.Equal(t, 1, platform.TokenCalls())

	// Cached on the second ask
	_, err = client.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, platform.TokenCalls())

	// Invalidation forces a refetch
	client.InvalidateToken()
	_, err = client.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, platform.TokenCalls())
}

func TestClient_Code2Session(t *testing.T) {
	platform := testdata.NewMockPlatform()
	defer platform.Close()

	platform.Handle("GET /sns/jscode2session", func(r *http.Request) (int, interface{}) {
		q := r.URL.Query()
		if q.Get("appid") != string(testAppID) || q.Get("secret") != string(testSecret) {
			return http.StatusOK, map[string]interface{}{"errcode": 40013, "errmsg": "invalid appid"}
		}
		if q.Get("js_code") != "the-js-code" || q.Get("grant_type") != "authorization_code" {
			return http.StatusOK, map[string]interface{}{"errcode": 40029, "errmsg": "invalid code"}
		}
		return http.StatusOK, map[string]interface{}{
			"openid":      "o6_bmjrPTlm6_2sgVt7hMZOPfL2M",
			"session_key": "tiihtNczf5v6AKRyjwEUhQ==",
			"unionid":     "o6_bmasdasdsad6_2sgVt7hMZOPfL",
		}
	})

	client := newTestClient(t, platform)

	session, err := client.Code2Session(context.Background(), "the-js-code")
	require.NoError(t, err)
	assert.Equal(t, OpenID("o6_bmjrPTlm6_2sgVt7hMZOPfL2M"), session.OpenID)
	assert.Equal(t, SessionKey("tiihtNczf5v6AKRyjwEUhQ=="), session.SessionKey)
	assert.Equal(t, UnionID("o6_bmasdasdsad6_2sgVt7hMZOPfL"), session.UnionID)

	// The identity endpoint must not consume an access token
	assert.Equal(t, 0, platform.TokenCalls())
}

func TestClient_Code2Session_EmptyCode(t *testing.T) {
	platform := testdata.NewMockPlatform()
	defer platform.Close()

	client := newTestClient(t, platform)

	_, err := client.Code2Session(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClient_FacadesInjectToken(t *testing.T) {
	platform := testdata.NewMockPlatform()
	defer platform.Close()

	platform.Handle("GET /cgi-bin/getcallbackip", func(r *http.Request) (int, interface{}) {
		if r.URL.Query().Get("access_token") != testdata.DefaultToken {
			return http.StatusOK, map[string]interface{}{"errcode": 40001, "errmsg": "invalid credential"}
		}
		return http.StatusOK, map[string]interface{}{"ip_list": []string{"101.226.62.77", "101.226.62.78"}}
	})

	client := newTestClient(t, platform)

	ips, err := client.GetCallbackIP(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"101.226.62.77", "101.226.62.78"}, ips)
	assert.Equal(t, 1, platform.TokenCalls())
}

func TestClient_HeaderInjectionMode(t *testing.T) {
	platform := testdata.NewMockPlatform()
	defer platform.Close()

	platform.Handle("GET /cgi-bin/get_api_domain_ip", func(r *http.Request) (int, interface{}) {
		if r.Header.Get("Authorization") != "Bearer "+testdata.DefaultToken {
			return http.StatusOK, map[string]interface{}{"errcode": 40001, "errmsg": "invalid credential"}
		}
		return http.StatusOK, map[string]interface{}{"ip_list": []string{"10.0.0.1"}}
	})

	client := newTestClient(t, platform, func(c *Config) {
		c.TokenInjection = InjectHeader
	})

	ips, err := client.GetAPIDomainIP(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1"}, ips)

	last := platform.LastRequest()
	require.NotNil(t, last)
	assert.NotContains(t, last.Query, "access_token", "header mode must keep the token out of the query")
}

func TestClient_GetPhoneNumber(t *testing.T) {
	platform := testdata.NewMockPlatform()
	defer platform.Close()

	platform.Handle("POST /wxa/business/getuserphonenumber", func(r *http.Request) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{
			"phone_info": map[string]interface{}{
				"phoneNumber":     "+8613800138000",
				"purePhoneNumber": "13800138000",
				"countryCode":     "86",
				"watermark": map[string]interface{}{
					"timestamp": 1658832970,
					"appid":     string(testAppID),
				},
			},
		}
	})

	client := newTestClient(t, platform)

	info, err := client.GetPhoneNumber(context.Background(), "phone-code")
	require.NoError(t, err)
	assert.Equal(t, "13800138000", info.PurePhoneNumber)
	assert.Equal(t, string(testAppID), info.Watermark.AppID)
}

func TestClient_GetWxaCode_Binary(t *testing.T) {
	platform := testdata.NewMockPlatform()
	defer platform.Close()

	image := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01, 0x02}
	platform.Handle("POST /wxa/getwxacode", func(r *http.Request) (int, interface{}) {
		return http.StatusOK, image
	})

	client := newTestClient(t, platform)

	got, err := client.GetWxaCode(context.Background(), &WxaCodeRequest{Path: "pages/index/index"})
	require.NoError(t, err)
	assert.Equal(t, image, got)
}

func TestClient_GetWxaCode_JSONBodyIsError(t *testing.T) {
	platform := testdata.NewMockPlatform()
	defer platform.Close()

	platform.HandleError("POST /wxa/getwxacode", 41030, "invalid page path")

	client := newTestClient(t, platform)

	_, err := client.GetWxaCode(context.Background(), &WxaCodeRequest{Path: "pages/missing"})
	require.Error(t, err)

	code, ok := PlatformCode(err)
	require.True(t, ok, "a JSON body on a binary endpoint is a platform rejection")
	assert.Equal(t, 41030, code)
}

func TestClient_GetWxaCodeUnlimit_SceneValidation(t *testing.T) {
	platform := testdata.NewMockPlatform()
	defer platform.Close()

	client := newTestClient(t, platform)

	_, err := client.GetWxaCodeUnlimit(context.Background(), &WxaCodeUnlimitRequest{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = client.GetWxaCodeUnlimit(context.Background(), &WxaCodeUnlimitRequest{
		Scene: strings.Repeat("x", 33),
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClient_GenerateURLLink(t *testing.T) {
	platform := testdata.NewMockPlatform()
	defer platform.Close()

	platform.Handle("POST /wxa/generate_urllink", func(r *http.Request) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"url_link": "https://wxaurl.cn/AbCdEf"}
	})

	client := newTestClient(t, platform)

	link, err := client.GenerateURLLink(context.Background(), &URLLinkRequest{Path: "pages/index/index"})
	require.NoError(t, err)
	assert.Equal(t, "https://wxaurl.cn/AbCdEf", link)
}

func TestClient_MsgSecCheck(t *testing.T) {
	platform := testdata.NewMockPlatform()
	defer platform.Close()

	platform.Handle("POST /wxa/msg_sec_check", func(r *http.Request) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{
			"result": map[string]interface{}{"suggest": "risky", "label": 20001},
		}
	})

	client := newTestClient(t, platform)

	result, err := client.MsgSecCheck(context.Background(), &MsgSecCheckRequest{
		OpenID:  "o6_bmjrPTlm6_2sgVt7hMZOPfL2M",
		Scene:   SceneComment,
		Content: "some user comment",
	})
	require.NoError(t, err)
	assert.Equal(t, "risky", result.Suggest)
	assert.Equal(t, 20001, result.Label)
}

func TestClient_SendSubscribeMessage(t *testing.T) {
	platform := testdata.NewMockPlatform()
	defer platform.Close()

	platform.Handle("POST /cgi-bin/message/subscribe/send", func(r *http.Request) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"errcode": 0, "errmsg": "ok"}
	})

	client := newTestClient(t, platform)

	err := client.SendSubscribeMessage(context.Background(), &SubscribeMessage{
		ToUser:     "o6_bmjrPTlm6_2sgVt7hMZOPfL2M",
		TemplateID: "tmpl-001",
		Data:       map[string]SubscribeValue{"thing1": {Value: "order shipped"}},
	})
	require.NoError(t, err)
}

func TestClient_GetAPIQuota(t *testing.T) {
	platform := testdata.NewMockPlatform()
	defer platform.Close()

	platform.Handle("POST /cgi-bin/openapi/quota/get", func(r *http.Request) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{
			"quota": map[string]interface{}{"daily_limit": 100000, "used": 7, "remain": 99993},
		}
	})

	client := newTestClient(t, platform)

	quota, err := client.GetAPIQuota(context.Background(), "/wxa/getwxacode")
	require.NoError(t, err)
	assert.Equal(t, int64(100000), quota.DailyLimit)
	assert.Equal(t, int64(99993), quota.Remain)
}

func TestClient_PlatformRejectionSurfacesUnchanged(t *testing.T) {
	platform := testdata.NewMockPlatform()
	defer platform.Close()

	platform.HandleError("POST /cgi-bin/clear_quota", 48006, "forbid to clear quota because of reaching the limit")

	client := newTestClient(t, platform)

	err := client.ClearQuota(context.Background())
	require.Error(t, err)

	var platErr *PlatformError
	require.ErrorAs(t, err, &platErr)
	assert.Equal(t, 48006, platErr.Code)
	assert.Equal(t, "forbid to clear quota because of reaching the limit", platErr.Message)
}

func TestClient_UseAfterClose(t *testing.T) {
	platform := testdata.NewMockPlatform()
	defer platform.Close()

	client := newTestClient(t, platform)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close(), "close is idempotent")

	_, err := client.Token(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	_, err = client.GetCallbackIP(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
