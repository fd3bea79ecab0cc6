package sdk

import "context"

// SessionInfo is the result of exchanging a login code
type SessionInfo struct {
	// OpenID identifies the user within this Mini Program
	OpenID OpenID `json:"openid"`
	// SessionKey decrypts the user's encrypted data for this login
	SessionKey SessionKey `json:"session_key"`
	// UnionID identifies the user across the platform account's apps.
	// Empty unless the app is bound to an open platform account.
	UnionID UnionID `json:"unionid,omitempty"`
}

// Code2Session exchanges a wx.login() code for the user's identity and
// session key. Login codes are single-use and expire after five
// minutes; a consumed or expired code comes back as an application
// error.
//
// The endpoint authenticates with appid and secret directly, so the
// call bypasses access-token injection.
func (c *client) Code2Session(ctx context.Context, jsCode string) (*SessionInfo, error) {
	const op = "GET /sns/jscode2session"

	if jsCode == "" {
		return nil, NewError(ErrorTypeConfig, op, "js code must not be empty")
	}

	path := "/sns/jscode2session?grant_type=authorization_code" +
		"&appid=" + encodeQueryValue(string(c.config.AppID)) +
		"&secret=" + encodeQueryValue(string(c.config.AppSecret)) +
		"&js_code=" + encodeQueryValue(jsCode)

	var session SessionInfo
	if err := c.callIdentityJSON(ctx, "GET", path, nil, &session); err != nil {
		return nil, err
	}
	if session.OpenID == "" || session.SessionKey == "" {
		return nil, NewError(ErrorTypeDecode, op, "response carries no openid or session_key")
	}
	return &session, nil
}
