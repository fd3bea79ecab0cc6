package sdk

import "context"

// Moderation scenes accepted by MsgSecCheck and MediaCheckAsync
const (
	// SceneProfile is user profile content
	SceneProfile = 1
	// SceneComment is comment content
	SceneComment = 2
	// SceneForum is forum content
	SceneForum = 3
	// SceneSocialLog is social log content
	SceneSocialLog = 4
)

// MsgSecCheckRequest is a piece of user-generated text to moderate
type MsgSecCheckRequest struct {
	// OpenID is the author; the user must have used the Mini Program
	// within the last two hours
	OpenID OpenID `json:"openid"`
	// Scene is where the content appears (SceneProfile et al.)
	Scene int `json:"scene"`
	// Content is the text to check, up to 2500 characters
	Content string `json:"content"`
	// Nickname is the author's nickname, checked together with Content
	Nickname string `json:"nickname,omitempty"`
	// Title is the title of the content, if any
	Title string `json:"title,omitempty"`
	// Signature is the author's signature; profile scene only
	Signature string `json:"signature,omitempty"`
}

// msgSecCheckRequest is the wire form, which additionally pins the
// moderation model version
type msgSecCheckRequest struct {
	Version int `json:"version"`
	MsgSecCheckRequest
}

// MsgSecCheckResult is the aggregated moderation verdict
type MsgSecCheckResult struct {
	// Suggest is the aggregated suggestion: "pass", "review" or "risky"
	Suggest string `json:"suggest"`
	// Label is the category behind the suggestion, 100 for normal
	Label int `json:"label"`
}

// msgSecCheckResponse is the full moderation response
type msgSecCheckResponse struct {
	Result *MsgSecCheckResult `json:"result"`
}

// MediaCheckRequest is an image or audio URL to moderate
type MediaCheckRequest struct {
	// MediaURL is the URL of the media to check
	MediaURL string `json:"media_url"`
	// MediaType is MediaTypeAudio or MediaTypeImage
	MediaType int `json:"media_type"`
	// OpenID is the user submitting the media
	OpenID OpenID `json:"openid"`
	// Scene is where the content appears (SceneProfile et al.)
	Scene int `json:"scene"`
}

// Media types accepted by MediaCheckAsync
const (
	// MediaTypeAudio is an audio clip
	MediaTypeAudio = 1
	// MediaTypeImage is an image
	MediaTypeImage = 2
)

// mediaCheckRequest is the wire form, which additionally pins the
// moderation model version
type mediaCheckRequest struct {
	Version int `json:"version"`
	MediaCheckRequest
}

// mediaCheckResponse carries the trace ID of the asynchronous check
type mediaCheckResponse struct {
	TraceID string `json:"trace_id"`
}

// RiskRankRequest describes a user action to score
type RiskRankRequest struct {
	// OpenID is the acting user
	OpenID OpenID `json:"openid"`
	// Scene is the action: 0 registration, 1 cheat detection
	Scene int `json:"scene"`
	// ClientIP is the user's IP address, if known
	ClientIP string `json:"client_ip,omitempty"`
	// MobileNo is the user's phone number, if known
	MobileNo string `json:"mobile_no,omitempty"`
	// EmailAddress is the user's email, if known
	EmailAddress string `json:"email_address,omitempty"`
	// ExtendedInfo is free-form context for the scoring model
	ExtendedInfo string `json:"extended_info,omitempty"`
}

// riskRankRequest is the wire form, which additionally carries the
// app ID the platform requires in the body
type riskRankRequest struct {
	AppID string `json:"appid"`
	RiskRankRequest
}

// riskRankResponse carries the computed risk rank
type riskRankResponse struct {
	RiskRank *int `json:"risk_rank"`
}

// MsgSecCheck checks a piece of user-generated text against the
// platform's content policy. A "risky" suggestion means the content
// must not be published; "review" means it needs human review.
func (c *client) MsgSecCheck(ctx context.Context, req *MsgSecCheckRequest) (*MsgSecCheckResult, error) {
	const op = "POST /wxa/msg_sec_check"

	if req == nil || req.Content == "" {
		return nil, NewError(ErrorTypeConfig, op, "content must not be empty")
	}
	if err := req.OpenID.Validate(); err != nil {
		return nil, err
	}

	var resp msgSecCheckResponse
	err := c.callJSON(ctx, "POST", "/wxa/msg_sec_check", msgSecCheckRequest{
		Version:            2,
		MsgSecCheckRequest: *req,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, NewError(ErrorTypeDecode, op, "response carries no result")
	}
	return resp.Result, nil
}

// MediaCheckAsync submits an image or audio URL for asynchronous
// moderation. The verdict arrives on the message push callback; the
// returned trace ID correlates the two.
func (c *client) MediaCheckAsync(ctx context.Context, req *MediaCheckRequest) (string, error) {
	const op = "POST /wxa/media_check_async"

	if req == nil || req.MediaURL == "" {
		return "", NewError(ErrorTypeConfig, op, "media URL must not be empty")
	}
	if req.MediaType != MediaTypeAudio && req.MediaType != MediaTypeImage {
		return "", NewError(ErrorTypeConfig, op, "media type must be audio or image")
	}
	if err := req.OpenID.Validate(); err != nil {
		return "", err
	}

	var resp mediaCheckResponse
	err := c.callJSON(ctx, "POST", "/wxa/media_check_async", mediaCheckRequest{
		Version:           2,
		MediaCheckRequest: *req,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.TraceID == "" {
		return "", NewError(ErrorTypeDecode, op, "response carries no trace_id")
	}
	return resp.TraceID, nil
}

// GetUserRiskRank scores the risk of a user action from 0 (safe) to 4
// (high risk)
func (c *client) GetUserRiskRank(ctx context.Context, req *RiskRankRequest) (int, error) {
	const op = "POST /wxa/getuserriskrank"

	if req == nil {
		return 0, NewError(ErrorTypeConfig, op, "request is required")
	}
	if err := req.OpenID.Validate(); err != nil {
		return 0, err
	}

	var resp riskRankResponse
	err := c.callJSON(ctx, "POST", "/wxa/getuserriskrank", riskRankRequest{
		AppID:           string(c.config.AppID),
		RiskRankRequest: *req,
	}, &resp)
	if err != nil {
		return 0, err
	}
	if resp.RiskRank == nil {
		return 0, NewError(ErrorTypeDecode, op, "response carries no risk_rank")
	}
	return *resp.RiskRank, nil
}
