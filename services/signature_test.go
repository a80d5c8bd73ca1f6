package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureVerifier_AcceptsValidSignature(t *testing.T) {
	v := NewSignatureVerifier("test-secret")
	sig := v.Sign("order_123", "pay_456")

	assert.True(t, v.Verify("order_123", "pay_456", sig))
}

func TestSignatureVerifier_RejectsSingleCharacterFlip(t *testing.T) {
	v := NewSignatureVerifier("test-secret")
	sig := v.Sign("order_123", "pay_456")

	for i := 0; i < len(sig); i += 7 {
		flipped := []byte(sig)
		if flipped[i] == 'a' {
			flipped[i] = 'b'
		} else {
			flipped[i] = 'a'
		}
		assert.False(t, v.Verify("order_123", "pay_456", string(flipped)),
			"flipping character %d must invalidate the signature", i)
	}
}

func TestSignatureVerifier_RejectsWrongPair(t *testing.T) {
	v := NewSignatureVerifier("test-secret")
	sig := v.Sign("order_123", "pay_456")

	assert.False(t, v.Verify("order_999", "pay_456", sig))
	assert.False(t, v.Verify("order_123", "pay_999", sig))
}

func TestSignatureVerifier_RejectsWrongSecret(t *testing.T) {
	sig := NewSignatureVerifier("secret-a").Sign("order_123", "pay_456")
	assert.False(t, NewSignatureVerifier("secret-b").Verify("order_123", "pay_456", sig))
}

func TestSignatureVerifier_MalformedInputIsNotValid(t *testing.T) {
	v := NewSignatureVerifier("test-secret")

	tests := []struct {
		name      string
		orderID   string
		paymentID string
		signature string
	}{
		{"empty signature", "order_123", "pay_456", ""},
		{"non-hex signature", "order_123", "pay_456", "zzzz-not-hex"},
		{"truncated signature", "order_123", "pay_456", "abcd12"},
		{"empty order id", "", "pay_456", v.Sign("", "pay_456")[:10]},
		{"empty payment id", "order_123", "", "deadbeef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, v.Verify(tt.orderID, tt.paymentID, tt.signature))
		})
	}
}

func TestSignatureVerifier_AcceptsUppercaseHex(t *testing.T) {
	v := NewSignatureVerifier("test-secret")
	sig := v.Sign("order_123", "pay_456")

	upper := ""
	for _, r := range sig {
		if r >= 'a' && r <= 'f' {
			upper += string(r - 32)
		} else {
			upper += string(r)
		}
	}
	assert.True(t, v.Verify("order_123", "pay_456", upper))
}
