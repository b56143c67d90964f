package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// VerifyWebhookSignature checks a Shopify webhook signature:
// base64(HMAC-SHA256(rawBody, secret)) against the X-Shopify-Hmac-Sha256
// header. The comparison runs over the exact raw request bytes, never a
// re-serialized form, and must happen before the body is JSON-parsed.
// Missing inputs return false; the function never panics.
func VerifyWebhookSignature(rawBody []byte, hmacHeader, secret string) bool {
	if rawBody == nil || hmacHeader == "" || secret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	computed := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	// hmac.Equal needs equal lengths; a length mismatch can short-circuit
	// without leaking anything about the digest content.
	if len(hmacHeader) != len(computed) {
		return false
	}
	return hmac.Equal([]byte(hmacHeader), []byte(computed))
}
