// Package token decodes the claims of access tokens issued by the auth API.
// Tokens are never verified here: the auth API owns the signing keys and this
// server only needs the expiry to schedule refreshes.
package token

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access token claims this server cares about.
type Claims struct {
	jwt.RegisteredClaims
}

var parser = jwt.NewParser(jwt.WithoutClaimsValidation())

// DecodeClaims parses the payload of a three-segment base64url token.
// It returns false for anything that is not a decodable token.
func DecodeClaims(accessToken string) (*Claims, bool) {
	if accessToken == "" {
		return nil, false
	}

	claims := &Claims{}
	_, _, err := parser.ParseUnverified(accessToken, claims)
	// An unknown or missing alg only matters for verification; the payload
	// has already been decoded when the parser reports it.
	if err != nil && !errors.Is(err, jwt.ErrTokenUnverifiable) {
		return nil, false
	}
	return claims, true
}

// ExpiryMillis returns the exp claim in epoch milliseconds, or 0 when the
// token has no decodable exp. Zero is always due for refresh.
func ExpiryMillis(accessToken string) int64 {
	claims, ok := DecodeClaims(accessToken)
	if !ok || claims.ExpiresAt == nil {
		return 0
	}
	return claims.ExpiresAt.UnixMilli()
}
