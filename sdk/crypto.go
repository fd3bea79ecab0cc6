package sdk

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrWatermarkMismatch is returned when decrypted user data carries a
// watermark for a different app, meaning the payload was not issued
// for this Mini Program.
var ErrWatermarkMismatch = errors.New("user data watermark does not match app ID")

// DecryptUserData decrypts an encrypted user data envelope from the
// Mini Program client. The client hands the envelope to wx.getUserInfo
// callbacks and similar APIs as base64 ciphertext plus a base64 IV;
// the session key from Code2Session is the AES-128 key.
//
// The plaintext is JSON. Callers should verify its watermark with
// VerifyWatermark before trusting it.
//
// Example:
//
//	plaintext, err := sdk.DecryptUserData(session.SessionKey, encryptedData, iv)
//	if err != nil {
//	    return err
//	}
//	if err := sdk.VerifyWatermark(plaintext, appID); err != nil {
//	    return err
//	}
func DecryptUserData(sessionKey SessionKey, encryptedData, iv string) ([]byte, error) {
	const op = "crypto.decrypt"

	key, err := sessionKey.Bytes()
	if err != nil {
		return nil, err
	}
	if len(key) != 16 {
		return nil, NewError(ErrorTypeConfig, op, fmt.Sprintf("session key must be 16 bytes, got %d", len(key)))
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		return nil, NewError(ErrorTypeDecode, op, fmt.Sprintf("encrypted data is not valid base64: %v", err))
	}
	rawIV, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return nil, NewError(ErrorTypeDecode, op, fmt.Sprintf("iv is not valid base64: %v", err))
	}
	if len(rawIV) != aes.BlockSize {
		return nil, NewError(ErrorTypeDecode, op, fmt.Sprintf("iv must be %d bytes, got %d", aes.BlockSize, len(rawIV)))
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, NewError(ErrorTypeDecode, op, fmt.Sprintf("ciphertext length %d is not a positive multiple of the block size", len(ciphertext)))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, WrapError(ErrorTypeDecode, op, err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, rawIV).CryptBlocks(plaintext, ciphertext)

	return stripPKCS7(op, plaintext)
}

// stripPKCS7 removes and validates PKCS#7 padding. A malformed pad
// means the key or IV was wrong, so the whole decryption is rejected.
func stripPKCS7(op string, data []byte) ([]byte, error) {
	pad := int(data[len(data)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(data) {
		return nil, NewError(ErrorTypeDecode, op, "invalid padding, wrong session key or iv")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, NewError(ErrorTypeDecode, op, "invalid padding, wrong session key or iv")
		}
	}
	return data[:len(data)-pad], nil
}

// watermarkEnvelope is the part of decrypted user data the SDK reads
type watermarkEnvelope struct {
	Watermark Watermark `json:"watermark"`
}

// VerifyWatermark checks that decrypted user data was issued for the
// given app. The platform embeds the app ID in every encrypted
// payload; a mismatch means the envelope belongs to another app and
// must not be trusted.
func VerifyWatermark(plaintext []byte, appID AppID) error {
	const op = "crypto.watermark"

	var env watermarkEnvelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return WrapError(ErrorTypeDecode, op, err)
	}
	if env.Watermark.AppID == "" {
		return NewError(ErrorTypeDecode, op, "decrypted data carries no watermark")
	}
	if env.Watermark.AppID != string(appID) {
		return WrapError(ErrorTypeApplication, op, ErrWatermarkMismatch)
	}
	return nil
}
