package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SignatureHeader carries the webhook HMAC.
const SignatureHeader = "X-Square-Hmacsha256-Signature"

// ComputeSignature returns the base64 HMAC-SHA256 of the notification URL
// followed by the raw body.
func ComputeSignature(secret, notificationURL string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook delivery against the signing secret.
func VerifySignature(secret, notificationURL string, body []byte, header string) bool {
	header = strings.TrimSpace(header)
	if secret == "" || header == "" {
		return false
	}
	expected := ComputeSignature(secret, notificationURL, body)
	return hmac.Equal([]byte(expected), []byte(header))
}

// VerifyWebhook checks a delivery with the client's configured secret and URL.
func (c *Client) VerifyWebhook(body []byte, header string) bool {
	if c == nil {
		return false
	}
	return VerifySignature(c.webhookSecret, c.webhookURL, body, header)
}
