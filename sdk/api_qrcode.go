package sdk

import "context"

// LineColor is an RGB color for code image lines
type LineColor struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// WxaCodeRequest describes a Mini Program code image for a fixed page.
// Only Path is required.
type WxaCodeRequest struct {
	// Path is the page path to open, with optional query, e.g.
	// "pages/index/index?id=42"
	Path string `json:"path"`
	// Width is the image width in pixels, 280-1280. Zero means the
	// platform default of 430.
	Width int `json:"width,omitempty"`
	// AutoColor lets the platform pick the line color
	AutoColor bool `json:"auto_color,omitempty"`
	// LineColor sets the line color when AutoColor is off
	LineColor *LineColor `json:"line_color,omitempty"`
	// IsHyaline requests a transparent background
	IsHyaline bool `json:"is_hyaline,omitempty"`
}

// WxaCodeUnlimitRequest describes a Mini Program code image with a
// free-form scene value. Only Scene is required.
type WxaCodeUnlimitRequest struct {
	// Scene is up to 32 visible characters, delivered to the opened
	// page as a query parameter
	Scene string `json:"scene"`
	// Page is the page to open; empty means the home page. Must be a
	// published page without a query string.
	Page string `json:"page,omitempty"`
	// CheckPath verifies that Page exists in the published release.
	// The platform default is true; the field is always sent so the
	// zero value is explicit.
	CheckPath bool `json:"check_path"`
	// EnvVersion selects release, trial or develop
	EnvVersion string `json:"env_version,omitempty"`
	// Width is the image width in pixels, 280-1280
	Width int `json:"width,omitempty"`
	// AutoColor lets the platform pick the line color
	AutoColor bool `json:"auto_color,omitempty"`
	// LineColor sets the line color when AutoColor is off
	LineColor *LineColor `json:"line_color,omitempty"`
	// IsHyaline requests a transparent background
	IsHyaline bool `json:"is_hyaline,omitempty"`
}

// URLSchemeRequest describes a scheme URL that opens the Mini Program
type URLSchemeRequest struct {
	// JumpWxa is the target page; nil opens the home page
	JumpWxa *JumpWxa `json:"jump_wxa,omitempty"`
	// IsExpire makes the scheme expire
	IsExpire bool `json:"is_expire,omitempty"`
	// ExpireTime is the Unix expiry time when IsExpire is set and
	// ExpireType is 0
	ExpireTime int64 `json:"expire_time,omitempty"`
	// ExpireType selects absolute time (0) or days from now (1)
	ExpireType int `json:"expire_type,omitempty"`
	// ExpireInterval is the number of days when ExpireType is 1
	ExpireInterval int `json:"expire_interval,omitempty"`
}

// URLLinkRequest describes an HTTPS link that opens the Mini Program
type URLLinkRequest struct {
	// Path is the page path to open; empty means the home page
	Path string `json:"path,omitempty"`
	// Query is the query string passed to the page
	Query string `json:"query,omitempty"`
	// EnvVersion selects release, trial or develop
	EnvVersion string `json:"env_version,omitempty"`
	// IsExpire makes the link expire
	IsExpire bool `json:"is_expire,omitempty"`
	// ExpireTime is the Unix expiry time when IsExpire is set and
	// ExpireType is 0
	ExpireTime int64 `json:"expire_time,omitempty"`
	// ExpireType selects absolute time (0) or days from now (1)
	ExpireType int `json:"expire_type,omitempty"`
	// ExpireInterval is the number of days when ExpireType is 1
	ExpireInterval int `json:"expire_interval,omitempty"`
}

// JumpWxa is the target page of a scheme URL
type JumpWxa struct {
	// Path is the page path; empty means the home page
	Path string `json:"path,omitempty"`
	// Query is the query string passed to the page
	Query string `json:"query,omitempty"`
	// EnvVersion selects release, trial or develop
	EnvVersion string `json:"env_version,omitempty"`
}

// createQRCodeRequest is the body of the classic QR code endpoint
type createQRCodeRequest struct {
	Path  string `json:"path"`
	Width int    `json:"width,omitempty"`
}

// urlSchemeResponse wraps a generated scheme URL
type urlSchemeResponse struct {
	OpenLink string `json:"openlink"`
}

// urlLinkResponse wraps a generated link
type urlLinkResponse struct {
	URLLink string `json:"url_link"`
}

// shortLinkRequest is the body of the short link endpoint
type shortLinkRequest struct {
	PageURL     string `json:"page_url"`
	PageTitle   string `json:"page_title,omitempty"`
	IsPermanent bool   `json:"is_permanent,omitempty"`
}

// shortLinkResponse wraps a generated short link
type shortLinkResponse struct {
	Link string `json:"link"`
}

// GetWxaCode generates a Mini Program code image for a fixed page
// path. The response is the raw image; generation failures come back
// as application errors.
func (c *client) GetWxaCode(ctx context.Context, req *WxaCodeRequest) ([]byte, error) {
	const op = "POST /wxa/getwxacode"

	if req == nil || req.Path == "" {
		return nil, NewError(ErrorTypeConfig, op, "page path must not be empty")
	}
	return c.callBinary(ctx, "POST", "/wxa/getwxacode", req)
}

// GetWxaCodeUnlimit generates a Mini Program code image with a
// free-form scene string. Unlike GetWxaCode there is no total
// generation quota, which makes this the right endpoint for per-user
// or per-order codes.
func (c *client) GetWxaCodeUnlimit(ctx context.Context, req *WxaCodeUnlimitRequest) ([]byte, error) {
	const op = "POST /wxa/getwxacodeunlimit"

	if req == nil || req.Scene == "" {
		return nil, NewError(ErrorTypeConfig, op, "scene must not be empty")
	}
	if len(req.Scene) > 32 {
		return nil, NewError(ErrorTypeConfig, op, "scene must be at most 32 characters")
	}
	return c.callBinary(ctx, "POST", "/wxa/getwxacodeunlimit", req)
}

// CreateQRCode generates a classic square QR code for a page path. A
// width of zero uses the platform default of 430 pixels.
func (c *client) CreateQRCode(ctx context.Context, path string, width int) ([]byte, error) {
	const op = "POST /cgi-bin/wxaapp/createwxaqrcode"

	if path == "" {
		return nil, NewError(ErrorTypeConfig, op, "page path must not be empty")
	}
	return c.callBinary(ctx, "POST", "/cgi-bin/wxaapp/createwxaqrcode", createQRCodeRequest{Path: path, Width: width})
}

// GenerateURLScheme creates a scheme URL that opens the Mini Program
// from outside the host app, e.g. from an SMS or email.
func (c *client) GenerateURLScheme(ctx context.Context, req *URLSchemeRequest) (string, error) {
	const op = "POST /wxa/generatescheme"

	if req == nil {
		req = &URLSchemeRequest{}
	}
	var resp urlSchemeResponse
	if err := c.callJSON(ctx, "POST", "/wxa/generatescheme", req, &resp); err != nil {
		return "", err
	}
	if resp.OpenLink == "" {
		return "", NewError(ErrorTypeDecode, op, "response carries no openlink")
	}
	return resp.OpenLink, nil
}

// GenerateURLLink creates an HTTPS link that opens the Mini Program
func (c *client) GenerateURLLink(ctx context.Context, req *URLLinkRequest) (string, error) {
	const op = "POST /wxa/generate_urllink"

	if req == nil {
		req = &URLLinkRequest{}
	}
	var resp urlLinkResponse
	if err := c.callJSON(ctx, "POST", "/wxa/generate_urllink", req, &resp); err != nil {
		return "", err
	}
	if resp.URLLink == "" {
		return "", NewError(ErrorTypeDecode, op, "response carries no url_link")
	}
	return resp.URLLink, nil
}

// GenerateShortLink creates a short link usable inside the host app.
// Non-permanent links expire after 30 days.
func (c *client) GenerateShortLink(ctx context.Context, pageURL, pageTitle string, isPermanent bool) (string, error) {
	const op = "POST /wxa/genwxashortlink"

	if pageURL == "" {
		return "", NewError(ErrorTypeConfig, op, "page URL must not be empty")
	}
	var resp shortLinkResponse
	err := c.callJSON(ctx, "POST", "/wxa/genwxashortlink", shortLinkRequest{
		PageURL:     pageURL,
		PageTitle:   pageTitle,
		IsPermanent: isPermanent,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Link == "" {
		return "", NewError(ErrorTypeDecode, op, "response carries no link")
	}
	return resp.Link, nil
}
