package domain

import (
	"errors"
	"strings"
)

var (
	ErrAuthenticationDenied = errors.New("invalid credentials")
	ErrInvalidInput         = errors.New("invalid input")
)

// Identity is the result of a successful credential authentication.
type Identity struct {
	ID                 string
	Name               string
	Email              string
	AccessToken        string
	RefreshToken       string
	AccessTokenExpires int64
}

// User mirrors the user record returned by the auth API.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// DisplayName joins first and last name, skipping empty parts.
func (u User) DisplayName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// TokenPair is an access/refresh token pair issued by the auth API.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Credentials is the input of credential authentication.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the input of account creation.
type Registration struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}
