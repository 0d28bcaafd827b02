// Package download issues and consumes signed, time-limited authorization
// claims for purchased design files.
package download

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the download authorization claim: which order grants access to
// which product option. It is never persisted; validity is purely a function
// of signature and expiry at presentation time.
type Claims struct {
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	OptionID  string `json:"option_id"`
	jwt.RegisteredClaims
}

// Signer mints and verifies download claims with a shared secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a Signer. ttl is the claim lifetime; tokens stay valid
// for every request within it (they are not single-use).
func NewSigner(secret []byte, ttl time.Duration) *Signer {
	return &Signer{secret: secret, ttl: ttl, now: time.Now}
}

// Sign mints a claim for the given order/product/option triple.
func (s *Signer) Sign(orderID, productID, optionID string) (string, error) {
	now := s.now()
	claims := Claims{
		OrderID:   orderID,
		ProductID: productID,
		OptionID:  optionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign claim")
	}
	return signed, nil
}

// Verify parses the token, checks signature and expiry, and returns the
// claim. Any failure collapses into a single opaque error for the caller.
func (s *Signer) Verify(token string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrNotVerified
	}
	return &claims, nil
}
