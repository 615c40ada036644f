package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignPayload returns the base64 HMAC-SHA256 of payload under key.
func SignPayload(payload []byte, key string) string {
	h := hmac.New(sha256.New, []byte(key))
	h.Write(payload)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// VerifyPayload reports whether signature is a valid SignPayload output for payload.
func VerifyPayload(payload []byte, signature, key string) bool {
	want, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	h := hmac.New(sha256.New, []byte(key))
	h.Write(payload)
	return hmac.Equal(h.Sum(nil), want)
}
