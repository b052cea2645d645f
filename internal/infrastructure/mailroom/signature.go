package mailroom

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries the webhook body's HMAC on inbound deliveries.
const SignatureHeader = "X-Signature"

var (
	// ErrMissingSignature is returned when the header is absent.
	ErrMissingSignature = errors.New("missing webhook signature")
	// ErrInvalidSignature is returned when the HMAC does not match.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// VerifySignature checks the hex encoded HMAC-SHA256 of the raw body against
// the shared secret. The comparison is constant time.
func VerifySignature(signature string, body []byte, secret string) error {
	signature = strings.TrimSpace(strings.TrimPrefix(signature, "sha256="))
	if signature == "" {
		return ErrMissingSignature
	}

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}
