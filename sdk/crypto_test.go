package sdk

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encryptUserData builds an envelope the way the platform does:
// AES-128-CBC with PKCS#7 padding, everything base64.
func encryptUserData(t *testing.T, key []byte, plaintext []byte) (encryptedData, iv string) {
	t.Helper()

	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := make([]byte, len(plaintext)+pad)
	copy(padded, plaintext)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(pad)
	}

	rawIV := make([]byte, aes.BlockSize)
	_, err := rand.Read(rawIV)
	require.NoError(t, err)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, rawIV).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(ciphertext), base64.StdEncoding.EncodeToString(rawIV)
}

func testSessionKey(t *testing.T) (SessionKey, []byte) {
	t.Helper()
	key := make([]byte, 16)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return SessionKey(base64.StdEncoding.EncodeToString(key)), key
}

func TestDecryptUserData_Roundtrip(t *testing.T) {
	sessionKey, key := testSessionKey(t)
	payload := []byte(`{"phoneNumber":"+8613800138000","watermark":{"appid":"wx1234567890abcdef","timestamp":1658832970}}`)

	encryptedData, iv := encryptUserData(t, key, payload)

	plaintext, err := DecryptUserData(sessionKey, encryptedData, iv)
	require.NoError(t, err)
	assert.Equal(t, payload, plaintext)
}

func TestDecryptUserData_BlockAlignedPayload(t *testing.T) {
	sessionKey, key := testSessionKey(t)

	// Exactly one block, so the pad is a full extra block
	payload := []byte("0123456789abcdef")
	encryptedData, iv := encryptUserData(t, key, payload)

	plaintext, err := DecryptUserData(sessionKey, encryptedData, iv)
	require.NoError(t, err)
	assert.Equal(t, payload, plaintext)
}

func TestDecryptUserData_WrongKeyRejected(t *testing.T) {
	_, key := testSessionKey(t)
	otherKey, _ := testSessionKey(t)

	encryptedData, iv := encryptUserData(t, key, []byte(`{"openId":"x"}`))

	_, err := DecryptUserData(otherKey, encryptedData, iv)
	require.Error(t, err)

	var sdkErr *Error
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, ErrorTypeDecode, sdkErr.Type)
}

func TestDecryptUserData_InputValidation(t *testing.T) {
	sessionKey, key := testSessionKey(t)
	encryptedData, iv := encryptUserData(t, key, []byte(`{"openId":"x"}`))

	tests := []struct {
		name          string
		sessionKey    SessionKey
		encryptedData string
		iv            string
	}{
		{"bad session key base64", SessionKey("not base64!!"), encryptedData, iv},
		{"bad ciphertext base64", sessionKey, "not base64!!", iv},
		{"bad iv base64", sessionKey, encryptedData, "not base64!!"},
		{"short iv", sessionKey, encryptedData, base64.StdEncoding.EncodeToString([]byte("short"))},
		{"empty ciphertext", sessionKey, "", iv},
		{"unaligned ciphertext", sessionKey, base64.StdEncoding.EncodeToString([]byte("123")), iv},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecryptUserData(tt.sessionKey, tt.encryptedData, tt.iv)
			assert.Error(t, err)
		})
	}
}

func TestDecryptUserData_MalformedPadding(t *testing.T) {
	sessionKey, key := testSessionKey(t)

	// Encrypt a block whose final byte is not a valid pad length
	raw := make([]byte, aes.BlockSize)
	raw[aes.BlockSize-1] = 0

	rawIV := make([]byte, aes.BlockSize)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	ciphertext := make([]byte, len(raw))
	cipher.NewCBCEncrypter(block, rawIV).CryptBlocks(ciphertext, raw)

	_, err = DecryptUserData(
		sessionKey,
		base64.StdEncoding.EncodeToString(ciphertext),
		base64.StdEncoding.EncodeToString(rawIV),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid padding")
}

func TestVerifyWatermark(t *testing.T) {
	appID := AppID("wx1234567890abcdef")

	t.Run("match", func(t *testing.T) {
		plaintext := []byte(`{"openId":"x","watermark":{"appid":"wx1234567890abcdef","timestamp":1658832970}}`)
		assert.NoError(t, VerifyWatermark(plaintext, appID))
	})

	t.Run("mismatch", func(t *testing.T) {
		plaintext := []byte(`{"openId":"x","watermark":{"appid":"wxffffffffffffffff","timestamp":1658832970}}`)
		err := VerifyWatermark(plaintext, appID)
		assert.ErrorIs(t, err, ErrWatermarkMismatch)
	})

	t.Run("missing watermark", func(t *testing.T) {
		err := VerifyWatermark([]byte(`{"openId":"x"}`), appID)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrWatermarkMismatch)
	})

	t.Run("not json", func(t *testing.T) {
		err := VerifyWatermark([]byte("not json"), appID)
		var sdkErr *Error
		require.ErrorAs(t, err, &sdkErr)
		assert.Equal(t, ErrorTypeDecode, sdkErr.Type)
	})
}
