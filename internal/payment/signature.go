package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// sign computes the hex HMAC-SHA256 of msg under key.
func sign(key []byte, msg string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the expected signature over
// "<gatewayOrderID>.<gatewayPaymentID>" with the key secret and compares it
// to the presented signature in constant time.
func (c *Client) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	expected := sign([]byte(c.cfg.KeySecret), gatewayOrderID+"."+gatewayPaymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhook checks the gateway's HMAC over the raw webhook body against
// the signature header value, using the dedicated webhook secret.
func (c *Client) VerifyWebhook(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
