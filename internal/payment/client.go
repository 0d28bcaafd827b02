// Package payment is the external payment gateway collaborator: order
// registration over HTTP and HMAC signature verification for confirmations
// and webhooks.
package payment

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Config holds gateway credentials and endpoints.
type Config struct {
	BaseURL       string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	// Timeout bounds the gateway round trip. A timed-out call must leave the
	// local order retryable, so the client never blocks past it.
	Timeout time.Duration
}

// Client talks to the payment gateway.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a gateway Client. The embedded http.Client carries the
// configured timeout as a hard upper bound in addition to per-call contexts.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// CreateOrder registers an order for the given amount with the gateway and
// returns the gateway's order identifier. Amounts are sent in minor units.
func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal, currency string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var body bytes.Buffer
	enc := jx.NewStreamingEncoder(&body, -1)
	enc.Obj(func(e *jx.Encoder) {
		e.Field("amount", func(e *jx.Encoder) { e.Int64(toMinorUnits(amount)) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(currency) })
	})
	if err := enc.Close(); err != nil {
		return "", errors.Wrap(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/orders", &body)
	if err != nil {
		return "", errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "gateway request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", errors.Errorf("gateway returned status %d", resp.StatusCode)
	}

	id, err := decodeOrderID(raw)
	if err != nil {
		return "", errors.Wrap(err, "decode response")
	}
	return id, nil
}

func decodeOrderID(raw []byte) (string, error) {
	var id string
	d := jx.DecodeBytes(raw)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key == "id" {
			v, err := d.Str()
			if err != nil {
				return err
			}
			id = v
			return nil
		}
		return d.Skip()
	}); err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.New("gateway response missing order id")
	}
	return id, nil
}

// toMinorUnits converts a major-unit decimal amount to integer minor units
// (paise for INR).
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
