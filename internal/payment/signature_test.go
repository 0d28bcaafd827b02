package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return NewClient(Config{
		KeySecret:     "key-secret",
		WebhookSecret: "webhook-secret",
	})
}

func hexHMAC(key, msg string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	c := newTestClient()

	good := hexHMAC("key-secret", "gw_order_1.gw_pay_1")
	assert.True(t, c.VerifySignature("gw_order_1", "gw_pay_1", good))

	// Any single moved part invalidates the signature.
	assert.False(t, c.VerifySignature("gw_order_2", "gw_pay_1", good))
	assert.False(t, c.VerifySignature("gw_order_1", "gw_pay_2", good))
	assert.False(t, c.VerifySignature("gw_order_1", "gw_pay_1", good[:len(good)-1]+"0"))
	assert.False(t, c.VerifySignature("gw_order_1", "gw_pay_1", ""))

	// Signed with the wrong key.
	forged := hexHMAC("other-secret", "gw_order_1.gw_pay_1")
	assert.False(t, c.VerifySignature("gw_order_1", "gw_pay_1", forged))
}

func TestVerifyWebhook(t *testing.T) {
	c := newTestClient()
	body := []byte(`{"event":"payment.captured"}`)

	good := hexHMAC("webhook-secret", string(body))
	assert.True(t, c.VerifyWebhook(body, good))
	assert.False(t, c.VerifyWebhook([]byte(`{"event":"tampered"}`), good))
	assert.False(t, c.VerifyWebhook(body, hexHMAC("key-secret", string(body))))
}

func TestParseEvent(t *testing.T) {
	body := []byte(`{
		"event": "payment.captured",
		"unknown": {"nested": true},
		"payload": {"order_id": "gw_order_1", "payment_id": "gw_pay_1", "amount": 85000}
	}`)

	ev, err := ParseEvent(body)
	require.NoError(t, err)
	assert.Equal(t, EventCaptured, ev.Type)
	assert.Equal(t, "gw_order_1", ev.GatewayOrderID)
	assert.Equal(t, "gw_pay_1", ev.GatewayPaymentID)
}

func TestParseEvent_Malformed(t *testing.T) {
	_, err := ParseEvent([]byte(`{"payload": {}}`))
	require.Error(t, err)

	_, err = ParseEvent([]byte(`not json`))
	require.Error(t, err)
}

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"850.00", 85000},
		{"0.01", 1},
		{"1234.56", 123456},
		{"0", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toMinorUnits(decimal.RequireFromString(tt.amount)))
	}
}
