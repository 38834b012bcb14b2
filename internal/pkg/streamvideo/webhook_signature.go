package streamvideo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifyWebhook checks the hex HMAC-SHA256 signature the platform sends with
// every webhook. The MAC is computed over the raw request body.
func (c *Client) VerifyWebhook(body []byte, signature string) bool {
	return VerifyWebhookSignature(body, signature, c.cfg.Secret)
}

func VerifyWebhookSignature(payload []byte, signatureHeader, secret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret = strings.TrimSpace(secret)
	if sig == "" || secret == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decodedSig)
}

// SignWebhook returns the signature the platform would send for payload
func SignWebhook(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(strings.TrimSpace(secret)))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
