package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureVerifier checks gateway payment confirmations. The gateway signs
// orderID + "|" + paymentID with the shared secret using HMAC-SHA256 and
// sends the hex digest back with the redirect.
type SignatureVerifier struct {
	secret []byte
}

// NewSignatureVerifier creates a verifier for the given shared secret.
func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret)}
}

// Sign computes the expected signature for an order/payment pair.
func (v *SignatureVerifier) Sign(orderID, paymentID string) string {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether the supplied signature matches the order/payment
// pair. Malformed input is simply not valid; Verify never fails.
func (v *SignatureVerifier) Verify(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}

	supplied, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(signature)))
	if err != nil {
		return false
	}

	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(orderID + "|" + paymentID))
	return hmac.Equal(h.Sum(nil), supplied)
}
