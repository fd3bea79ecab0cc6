package sdk

import (
	"encoding/json"
	"strings"
)

// apiEnvelope is the result envelope every platform endpoint shares.
// Success responses carry errcode 0 (or omit it entirely); failures
// carry a non-zero errcode and a diagnostic errmsg alongside whatever
// payload fields the endpoint defines.
//
// Example failure body:
//
//	{"errcode": 40001, "errmsg": "invalid credential"}
type apiEnvelope struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// encodeBody marshals a request payload
func encodeBody(op string, payload interface{}) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(ErrorTypeDecode, op, err)
	}
	return body, nil
}

// decodeEnvelope decodes a 2xx response body. The envelope is checked
// first: a non-zero errcode is a platform rejection regardless of what
// else the body contains. Only clean responses are decoded into target,
// which may be nil for endpoints whose success carries no payload.
func decodeEnvelope(op string, body []byte, target interface{}) error {
	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return WrapError(ErrorTypeDecode, op, err)
	}
	if env.ErrCode != CodeOK {
		platErr := &PlatformError{Code: env.ErrCode, Message: env.ErrMsg}
		return platErr.ToError(op)
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return WrapError(ErrorTypeDecode, op, err)
	}
	return nil
}

// decodeBinary interprets a response that should be raw bytes, such as
// a QR code image. The platform reports failures on these endpoints by
// switching the content type to JSON, so a JSON body is decoded as an
// error envelope instead of being returned as image data.
func decodeBinary(op string, resp *Response) ([]byte, error) {
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") || strings.Contains(contentType, "text/plain") {
		var env apiEnvelope
		if err := json.Unmarshal(resp.Body, &env); err != nil {
			return nil, WrapError(ErrorTypeDecode, op, err)
		}
		if env.ErrCode != CodeOK {
			platErr := &PlatformError{Code: env.ErrCode, Message: env.ErrMsg}
			return nil, platErr.ToError(op)
		}
		return nil, NewError(ErrorTypeDecode, op, "expected binary body, got JSON")
	}
	return resp.Body, nil
}
