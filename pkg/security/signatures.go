package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer verifies payment-gateway callback signatures. The gateway signs
// "orderID|paymentID" with HMAC-SHA256 over a shared secret and sends the
// hex digest alongside the callback.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign computes the hex HMAC-SHA256 digest for an order/payment pair.
func (s *Signer) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a callback signature in constant time.
func (s *Signer) Verify(orderID, paymentID, signature string) bool {
	expected := s.Sign(orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
