// Package signing implements the HMAC helper behind expiring media URLs.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the hex signature for an object path and expiry.
func (s *Signer) Sign(objectPath string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	// The canonical payload fixes the ordering of values.
	fmt.Fprintf(mac, "%s:%d", objectPath, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate compares the provided signature with the expected one.
func (s *Signer) Validate(objectPath, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	expected := s.Sign(objectPath, exp)
	// hmac.Equal performs constant-time comparison.
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ValidateFresh is Validate plus an expiry check against the current time.
func (s *Signer) ValidateFresh(objectPath, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	if time.Unix(exp, 0).Before(s.now()) {
		return false
	}
	return s.Validate(objectPath, expires, signature)
}
