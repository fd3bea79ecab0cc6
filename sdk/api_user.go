package sdk

import "context"

// PhoneInfo is a user's phone number as released by the platform
type PhoneInfo struct {
	// PhoneNumber is the full number, with country code for non-CN numbers
	PhoneNumber string `json:"phoneNumber"`
	// PurePhoneNumber is the number without country code
	PurePhoneNumber string `json:"purePhoneNumber"`
	// CountryCode is the country calling code
	CountryCode string `json:"countryCode"`
	// Watermark carries the issuing app ID and timestamp
	Watermark Watermark `json:"watermark"`
}

// Watermark ties released user data to the app and time it was
// released for
type Watermark struct {
	// Timestamp is the Unix time the data was generated
	Timestamp int64 `json:"timestamp"`
	// AppID is the app the data was released to
	AppID string `json:"appid"`
}

// getPhoneNumberRequest is the body of the phone number exchange
type getPhoneNumberRequest struct {
	Code string `json:"code"`
}

// getPhoneNumberResponse wraps the released phone info
type getPhoneNumberResponse struct {
	PhoneInfo *PhoneInfo `json:"phone_info"`
}

// GetPhoneNumber exchanges a phone-number authorization code for the
// user's phone number. Codes come from the getPhoneNumber button event
// in the Mini Program and are single-use.
func (c *client) GetPhoneNumber(ctx context.Context, code string) (*PhoneInfo, error) {
	const op = "POST /wxa/business/getuserphonenumber"

	if code == "" {
		return nil, NewError(ErrorTypeConfig, op, "authorization code must not be empty")
	}

	var resp getPhoneNumberResponse
	err := c.callJSON(ctx, "POST", "/wxa/business/getuserphonenumber", getPhoneNumberRequest{Code: code}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.PhoneInfo == nil {
		return nil, NewError(ErrorTypeDecode, op, "response carries no phone_info")
	}
	return resp.PhoneInfo, nil
}
