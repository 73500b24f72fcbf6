package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignAndVerify(t *testing.T) {
	s := NewSigner("shared-secret")

	sig := s.Sign("order_123", "pay_456")
	assert.Len(t, sig, 64) // hex sha256
	assert.True(t, s.Verify("order_123", "pay_456", sig))
}

func TestVerifyRejectsTampering(t *testing.T) {
	s := NewSigner("shared-secret")
	sig := s.Sign("order_123", "pay_456")

	assert.False(t, s.Verify("order_999", "pay_456", sig))
	assert.False(t, s.Verify("order_123", "pay_999", sig))
	assert.False(t, s.Verify("order_123", "pay_456", sig+"00"))
	assert.False(t, NewSigner("other-secret").Verify("order_123", "pay_456", sig))
}
