package sdk

import (
	"context"
	"time"
)

// tokenEndpointFetcher obtains access tokens from /cgi-bin/token. It
// talks to the transport directly, below the interceptor pipeline:
// the pipeline's credential-injection stage calls into the token
// manager, so routing the fetch through the pipeline would recurse.
type tokenEndpointFetcher struct {
	transport *httpTransport
	appID     AppID
	secret    AppSecret
}

// tokenResponse is the body of a successful token issuance
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// FetchToken performs exactly one issuance request. Retrying on
// transient failure is the token manager's job, not the fetcher's.
func (f *tokenEndpointFetcher) FetchToken(ctx context.Context) (string, time.Duration, error) {
	const op = "token.fetch"

	path := "/cgi-bin/token?grant_type=client_credential" +
		"&appid=" + encodeQueryValue(string(f.appID)) +
		"&secret=" + encodeQueryValue(string(f.secret))

	resp, err := f.transport.roundTrip(ctx, &Request{Method: "GET", Path: path})
	if err != nil {
		return "", 0, err
	}

	var body tokenResponse
	if err := decodeEnvelope(op, resp.Body, &body); err != nil {
		return "", 0, err
	}

	// The envelope was clean, so missing fields mean the body does not
	// have the documented shape
	if body.AccessToken == "" {
		return "", 0, NewError(ErrorTypeDecode, op, "response carries no access_token")
	}
	if body.ExpiresIn <= 0 {
		return "", 0, NewError(ErrorTypeDecode, op, "response carries no usable expires_in")
	}

	return body.AccessToken, time.Duration(body.ExpiresIn) * time.Second, nil
}
