package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

var ErrInvalidToken = errors.New("invalid CSRF token")

// TokenManager issues and checks double-submit CSRF tokens.
// The same random value goes into a cookie and into the page or response
// body; a state-changing request must echo it back in a header or form field.
type TokenManager struct{}

// NewTokenManager creates a new CSRF token manager.
func NewTokenManager() *TokenManager {
	return &TokenManager{}
}

// Generate creates a 256-bit random token as a 64-character hex string.
func (tm *TokenManager) Generate() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(randomBytes), nil
}

// Verify compares the cookie value with the submitted value in constant time.
// Both must be present.
func (tm *TokenManager) Verify(cookieValue, submitted string) error {
	if cookieValue == "" || submitted == "" {
		return ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(cookieValue), []byte(submitted)) != 1 {
		return ErrInvalidToken
	}
	return nil
}
