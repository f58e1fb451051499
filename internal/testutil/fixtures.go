package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"aetheris-web/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// nextID generates a unique ID for test fixtures
func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// signingKey signs minted test tokens. Nothing in the server verifies them.
var signingKey = []byte("aetheris-test-signing-key")

// AccessTokenExpiringAt mints an HS256 access token whose exp claim is exp.
func AccessTokenExpiringAt(exp time.Time) string {
	return MintAccessToken(jwt.MapClaims{
		"sub": nextID("user"),
		"exp": exp.Unix(),
	})
}

// MintAccessToken signs arbitrary claims.
func MintAccessToken(claims jwt.MapClaims) string {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	return s
}

// TokenOptions allows customizing session token fixture creation
type TokenOptions struct {
	ID           string
	Name         string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Error        domain.SessionError
}

// NewTestToken creates a session token whose access token is valid for an
// hour. The expiry field and the token's exp claim always agree.
func NewTestToken(opts ...func(*TokenOptions)) domain.Token {
	o := &TokenOptions{
		ID:           nextID("user"),
		Name:         "Test User",
		RefreshToken: nextID("refresh"),
		ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.Email == "" {
		o.Email = o.ID + "@example.com"
	}
	if o.AccessToken == "" {
		o.AccessToken = AccessTokenExpiringAt(o.ExpiresAt)
	}

	var expires int64
	if !o.ExpiresAt.IsZero() {
		expires = o.ExpiresAt.UnixMilli()
	}

	return domain.Token{
		ID:                 o.ID,
		Name:               o.Name,
		Email:              o.Email,
		AccessToken:        o.AccessToken,
		RefreshToken:       o.RefreshToken,
		AccessTokenExpires: expires,
		Error:              o.Error,
	}
}

// WithTokenUserID sets the user ID
func WithTokenUserID(id string) func(*TokenOptions) {
	return func(o *TokenOptions) {
		o.ID = id
	}
}

// WithTokenEmail sets the email
func WithTokenEmail(email string) func(*TokenOptions) {
	return func(o *TokenOptions) {
		o.Email = email
	}
}

// WithAccessToken sets a raw access token. The expiry is left as configured.
func WithAccessToken(accessToken string) func(*TokenOptions) {
	return func(o *TokenOptions) {
		o.AccessToken = accessToken
	}
}

// WithRefreshToken sets the refresh token
func WithRefreshToken(refreshToken string) func(*TokenOptions) {
	return func(o *TokenOptions) {
		o.RefreshToken = refreshToken
	}
}

// WithTokenExpiresAt sets the access token expiry
func WithTokenExpiresAt(t time.Time) func(*TokenOptions) {
	return func(o *TokenOptions) {
		o.ExpiresAt = t.Truncate(time.Second)
	}
}

// WithExpiredAccessToken makes the access token expire an hour before now.
// Pass the clock the code under test uses.
func WithExpiredAccessToken(now time.Time) func(*TokenOptions) {
	return WithTokenExpiresAt(now.Add(-time.Hour))
}

// WithUnknownExpiry leaves AccessTokenExpires at zero and uses a token
// with no decodable exp.
func WithUnknownExpiry() func(*TokenOptions) {
	return func(o *TokenOptions) {
		o.ExpiresAt = time.Time{}
		o.AccessToken = "not-a-jwt"
	}
}

// WithRefreshError flags the token as errored
func WithRefreshError() func(*TokenOptions) {
	return func(o *TokenOptions) {
		o.Error = domain.RefreshAccessTokenError
	}
}

// NewTestIdentity creates an authenticated identity whose access token
// expires in an hour.
func NewTestIdentity() *domain.Identity {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	id := nextID("user")
	return &domain.Identity{
		ID:                 id,
		Name:               "Test User",
		Email:              id + "@example.com",
		AccessToken:        AccessTokenExpiringAt(exp),
		RefreshToken:       nextID("refresh"),
		AccessTokenExpires: exp.UnixMilli(),
	}
}

// NewTestUser creates an auth API user record
func NewTestUser() *domain.User {
	id := nextID("user")
	return &domain.User{
		ID:        id,
		Email:     id + "@example.com",
		FirstName: "Test",
		LastName:  "User",
	}
}
