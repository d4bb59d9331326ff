package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// SignatureValidator verifies webhook payload authenticity against a shared
// secret. It is a pure value; a zero secret is rejected at construction so a
// misconfigured deployment fails at startup rather than per request.
type SignatureValidator struct {
	secret []byte
}

func NewSignatureValidator(secret string) *SignatureValidator {
	return &SignatureValidator{secret: []byte(secret)}
}

// Validate computes HMAC-SHA256 over body and compares it, constant-time,
// against the "sha256=<hex>" signature header. Any missing or malformed
// header fails closed.
func (v *SignatureValidator) Validate(body []byte, signatureHeader string) bool {
	if len(v.secret) == 0 {
		return false
	}
	if !strings.HasPrefix(signatureHeader, signaturePrefix) {
		return false
	}

	want, err := hex.DecodeString(strings.TrimPrefix(signatureHeader, signaturePrefix))
	if err != nil || len(want) != sha256.Size {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// Sign produces the signature header value for body. Used by tests and by
// the delivery replay tooling.
func (v *SignatureValidator) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
