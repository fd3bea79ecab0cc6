package callback

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
)

// ComputeSignature returns the WeChat callback signature: the SHA1 of
// the token, timestamp and nonce sorted lexicographically and
// concatenated.
func ComputeSignature(token, timestamp, nonce string) string {
	parts := []string{token, timestamp, nonce}
	sort.Strings(parts)

	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

// VerifySignature checks a callback signature in constant time
func VerifySignature(token, timestamp, nonce, signature string) bool {
	if timestamp == "" || nonce == "" || signature == "" {
		return false
	}

	expected := ComputeSignature(token, timestamp, nonce)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(signature))) == 1
}
