package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrRefreshAccessToken = errors.New(string(RefreshAccessTokenError))
	ErrUnauthorized       = errors.New("unauthorized")
)

// SessionError flags a session whose access token can no longer be trusted.
// The zero value means no error.
type SessionError string

const RefreshAccessTokenError SessionError = "RefreshAccessTokenError"

// Token is the session-carrying record persisted between requests.
// AccessTokenExpires is an epoch-millisecond timestamp taken from the access
// token's own exp claim; zero means the claim could not be decoded.
type Token struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name,omitempty"`
	Email              string       `json:"email,omitempty"`
	AccessToken        string       `json:"accessToken"`
	RefreshToken       string       `json:"refreshToken"`
	AccessTokenExpires int64        `json:"accessTokenExpires"`
	Error              SessionError `json:"error,omitempty"`
}

// NewToken builds the initial session record from a freshly authenticated identity.
func NewToken(id *Identity) Token {
	return Token{
		ID:                 id.ID,
		Name:               id.Name,
		Email:              id.Email,
		AccessToken:        id.AccessToken,
		RefreshToken:       id.RefreshToken,
		AccessTokenExpires: id.AccessTokenExpires,
	}
}

// ExpiresAt returns the access token expiry, or the zero time when unknown.
func (t Token) ExpiresAt() time.Time {
	if t.AccessTokenExpires == 0 {
		return time.Time{}
	}
	return time.UnixMilli(t.AccessTokenExpires)
}

// Errored reports whether the token carries a session error.
func (t Token) Errored() bool {
	return t.Error != ""
}

// Outcome is the result of materializing a session: either a valid token or
// the last known token of a session that failed to refresh.
type Outcome struct {
	token   Token
	errored bool
}

// Valid wraps a usable token.
func Valid(t Token) Outcome {
	return Outcome{token: t}
}

// Errored wraps the last known token of a session that must not be trusted.
func Errored(t Token) Outcome {
	if t.Error == "" {
		t.Error = RefreshAccessTokenError
	}
	return Outcome{token: t, errored: true}
}

// OutcomeOf classifies a stored token by its error flag.
func OutcomeOf(t Token) Outcome {
	if t.Errored() {
		return Errored(t)
	}
	return Valid(t)
}

// Token returns the token only when the session is valid.
func (o Outcome) Token() (Token, bool) {
	if o.errored {
		return Token{}, false
	}
	return o.token, true
}

// LastKnown returns the stored record regardless of state.
func (o Outcome) LastKnown() Token {
	return o.token
}

// IsErrored reports whether the session failed to refresh.
func (o Outcome) IsErrored() bool {
	return o.errored
}

// Err returns ErrRefreshAccessToken for errored sessions and nil otherwise.
func (o Outcome) Err() error {
	if o.errored {
		return ErrRefreshAccessToken
	}
	return nil
}

// SessionUser is the user part of the exposed session view.
type SessionUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SessionView is what page handlers and the session endpoint expose.
type SessionView struct {
	User        SessionUser  `json:"user"`
	AccessToken string       `json:"accessToken"`
	Expires     string       `json:"expires,omitempty"`
	Error       SessionError `json:"error,omitempty"`
}

// View renders the outcome for consumers. The error field is set for errored sessions.
func (o Outcome) View() SessionView {
	t := o.token
	v := SessionView{
		User:        SessionUser{ID: t.ID, Name: t.Name, Email: t.Email},
		AccessToken: t.AccessToken,
		Error:       t.Error,
	}
	if exp := t.ExpiresAt(); !exp.IsZero() {
		v.Expires = exp.UTC().Format(time.RFC3339)
	}
	if o.errored && v.Error == "" {
		v.Error = RefreshAccessTokenError
	}
	return v
}

// SessionStore persists session tokens between requests. The key is whatever
// the session cookie carries; Put returns the key to write back to the cookie.
// An empty key on Put asks the store to allocate one.
type SessionStore interface {
	Get(ctx context.Context, key string) (*Token, error)
	Put(ctx context.Context, key string, token *Token, expiresAt time.Time) (string, error)
	Delete(ctx context.Context, key string) error
}
