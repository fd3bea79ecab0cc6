package sdk

import "context"

// Quota is the daily usage of one endpoint
type Quota struct {
	// DailyLimit is the daily call allowance
	DailyLimit int64 `json:"daily_limit"`
	// Used is the number of calls consumed today
	Used int64 `json:"used"`
	// Remain is the number of calls left today
	Remain int64 `json:"remain"`
}

// RidInfo is the stored detail of one failed request, looked up by the
// rid the platform attaches to error responses
type RidInfo struct {
	// InvokeTime is the Unix time of the request
	InvokeTime int64 `json:"invoke_time"`
	// CostInMs is the platform-side processing time
	CostInMs int64 `json:"cost_in_ms"`
	// RequestURL is the path and query of the request, as the platform
	// stored it
	RequestURL string `json:"request_url"`
	// RequestBody is the stored request body
	RequestBody string `json:"request_body"`
	// ResponseBody is the stored response body
	ResponseBody string `json:"response_body"`
	// ClientIP is the caller's IP address
	ClientIP string `json:"client_ip"`
}

// clearQuotaRequest is the body of the token-authenticated reset
type clearQuotaRequest struct {
	AppID string `json:"appid"`
}

// quotaGetRequest selects the endpoint to report on
type quotaGetRequest struct {
	CgiPath string `json:"cgi_path"`
}

// quotaGetResponse wraps the quota report
type quotaGetResponse struct {
	Quota *Quota `json:"quota"`
}

// ridGetRequest selects the rid to look up
type ridGetRequest struct {
	Rid string `json:"rid"`
}

// ridGetResponse wraps the stored request detail
type ridGetResponse struct {
	Request *RidInfo `json:"request"`
}

// ipListResponse is shared by the domain and callback IP endpoints
type ipListResponse struct {
	IPList []string `json:"ip_list"`
}

// ClearQuota resets the daily API usage counters for the app. The
// platform allows ten resets per month.
func (c *client) ClearQuota(ctx context.Context) error {
	return c.callJSON(ctx, "POST", "/cgi-bin/clear_quota", clearQuotaRequest{AppID: string(c.config.AppID)}, nil)
}

// GetAPIQuota returns the daily quota and usage for one endpoint path,
// e.g. "/wxa/getwxacode"
func (c *client) GetAPIQuota(ctx context.Context, cgiPath string) (*Quota, error) {
	const op = "POST /cgi-bin/openapi/quota/get"

	if cgiPath == "" {
		return nil, NewError(ErrorTypeConfig, op, "cgi path must not be empty")
	}

	var resp quotaGetResponse
	if err := c.callJSON(ctx, "POST", "/cgi-bin/openapi/quota/get", quotaGetRequest{CgiPath: cgiPath}, &resp); err != nil {
		return nil, err
	}
	if resp.Quota == nil {
		return nil, NewError(ErrorTypeDecode, op, "response carries no quota")
	}
	return resp.Quota, nil
}

// ClearQuotaByAppSecret resets the daily API usage counters using the
// app secret directly. Because it does not consume an access token it
// still works when quota exhaustion blocks the token fetch itself.
func (c *client) ClearQuotaByAppSecret(ctx context.Context) error {
	path := "/cgi-bin/openapi/quota/clear" +
		"?appid=" + encodeQueryValue(string(c.config.AppID)) +
		"&appsecret=" + encodeQueryValue(string(c.config.AppSecret))

	return c.callIdentityJSON(ctx, "POST", path, nil, nil)
}

// GetRidInfo returns the stored request details for a rid
func (c *client) GetRidInfo(ctx context.Context, rid string) (*RidInfo, error) {
	const op = "POST /cgi-bin/openapi/rid/get"

	if rid == "" {
		return nil, NewError(ErrorTypeConfig, op, "rid must not be empty")
	}

	var resp ridGetResponse
	if err := c.callJSON(ctx, "POST", "/cgi-bin/openapi/rid/get", ridGetRequest{Rid: rid}, &resp); err != nil {
		return nil, err
	}
	if resp.Request == nil {
		return nil, NewError(ErrorTypeDecode, op, "response carries no request detail")
	}
	return resp.Request, nil
}

// GetAPIDomainIP returns the IP addresses of the platform API domain
func (c *client) GetAPIDomainIP(ctx context.Context) ([]string, error) {
	var resp ipListResponse
	if err := c.callJSON(ctx, "GET", "/cgi-bin/get_api_domain_ip", nil, &resp); err != nil {
		return nil, err
	}
	return resp.IPList, nil
}

// GetCallbackIP returns the IP addresses the platform pushes callbacks
// from
func (c *client) GetCallbackIP(ctx context.Context) ([]string, error) {
	var resp ipListResponse
	if err := c.callJSON(ctx, "GET", "/cgi-bin/getcallbackip", nil, &resp); err != nil {
		return nil, err
	}
	return resp.IPList, nil
}
