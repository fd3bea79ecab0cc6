package sdk

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"
)

// AppID identifies a Mini Program. Platform app IDs start with "wx"
// and are 18 characters long.
type AppID string

// Validate checks that the app ID has the platform shape
func (id AppID) Validate() error {
	s := string(id)
	if !strings.HasPrefix(s, "wx") {
		return NewError(ErrorTypeConfig, "appid", fmt.Sprintf("app ID must start with \"wx\", got %q", s))
	}
	if len(s) != 18 {
		return NewError(ErrorTypeConfig, "appid", fmt.Sprintf("app ID must be 18 characters, got %d", len(s)))
	}
	return nil
}

// String returns the app ID as a plain string
func (id AppID) String() string {
	return string(id)
}

// AppSecret is the long-lived credential paired with an AppID. It is
// redacted when formatted so it never leaks through logs by accident.
type AppSecret string

// Validate checks that the secret is plausibly usable
func (s AppSecret) Validate() error {
	v := string(s)
	switch {
	case v == "":
		return NewError(ErrorTypeConfig, "appsecret", "app secret must not be empty")
	case isWhitespaceOnly(v):
		return NewError(ErrorTypeConfig, "appsecret", "app secret must not be whitespace-only")
	case containsControlChars(v):
		return NewError(ErrorTypeConfig, "appsecret", "app secret must not contain control characters")
	}
	return nil
}

// String returns a redacted placeholder, never the secret itself
func (s AppSecret) String() string {
	return "***"
}

// OpenID identifies a Mini Program user within a single app.
// Platform open IDs are 20 to 40 characters long.
type OpenID string

// Validate checks that the open ID has the platform shape
func (id OpenID) Validate() error {
	n := len(string(id))
	if n < 20 || n > 40 {
		return NewError(ErrorTypeConfig, "openid", fmt.Sprintf("open ID must be 20-40 characters, got %d", n))
	}
	return nil
}

// String returns the open ID as a plain string
func (id OpenID) String() string {
	return string(id)
}

// UnionID identifies a user across all apps of one platform account
type UnionID string

// Validate checks that the union ID is non-empty and printable
func (id UnionID) Validate() error {
	v := string(id)
	switch {
	case v == "":
		return NewError(ErrorTypeConfig, "unionid", "union ID must not be empty")
	case isWhitespaceOnly(v):
		return NewError(ErrorTypeConfig, "unionid", "union ID must not be whitespace-only")
	case containsControlChars(v):
		return NewError(ErrorTypeConfig, "unionid", "union ID must not contain control characters")
	}
	return nil
}

// String returns the union ID as a plain string
func (id UnionID) String() string {
	return string(id)
}

// SessionKey is the per-login decryption key returned by the code2session
// endpoint. It is standard base64 and must decode to 16 bytes, the AES-128
// key size used by the encrypted data envelope. Like AppSecret it is
// redacted when formatted.
type SessionKey string

// Validate checks the base64 shape and the decoded key size
func (k SessionKey) Validate() error {
	v := string(k)
	switch {
	case v == "":
		return NewError(ErrorTypeConfig, "session_key", "session key must not be empty")
	case isWhitespaceOnly(v):
		return NewError(ErrorTypeConfig, "session_key", "session key must not be whitespace-only")
	case v != strings.TrimSpace(v):
		return NewError(ErrorTypeConfig, "session_key", "session key must not have leading or trailing whitespace")
	case containsControlChars(v):
		return NewError(ErrorTypeConfig, "session_key", "session key must not contain control characters")
	}
	raw, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return NewError(ErrorTypeConfig, "session_key", fmt.Sprintf("session key is not valid base64: %v", err))
	}
	if len(raw) != 16 {
		return NewError(ErrorTypeConfig, "session_key", fmt.Sprintf("session key must decode to 16 bytes, got %d", len(raw)))
	}
	return nil
}

// Bytes decodes the key for use as an AES-128 key
func (k SessionKey) Bytes() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(string(k))
	if err != nil {
		return nil, NewError(ErrorTypeConfig, "session_key", fmt.Sprintf("session key is not valid base64: %v", err))
	}
	return raw, nil
}

// String returns a redacted placeholder, never the key itself
func (k SessionKey) String() string {
	return "***"
}

// AccessToken is the short-lived bearer credential attached to API calls
type AccessToken string

// Validate checks that the token is printable and trimmed
func (t AccessToken) Validate() error {
	v := string(t)
	switch {
	case v == "":
		return NewError(ErrorTypeConfig, "access_token", "access token must not be empty")
	case isWhitespaceOnly(v):
		return NewError(ErrorTypeConfig, "access_token", "access token must not be whitespace-only")
	case containsControlChars(v):
		return NewError(ErrorTypeConfig, "access_token", "access token must not contain control characters")
	case v != strings.TrimSpace(v):
		return NewError(ErrorTypeConfig, "access_token", "access token must not have leading or trailing whitespace")
	}
	return nil
}

// String returns the token as a plain string
func (t AccessToken) String() string {
	return string(t)
}

func containsControlChars(s string) bool {
	for _, r := range s {
		if r < 0x80 && unicode.IsControl(r) {
			return true
		}
	}
	return false
}

func isWhitespaceOnly(s string) bool {
	if s == "" {
		return false
	}
	return strings.TrimSpace(s) == ""
}
