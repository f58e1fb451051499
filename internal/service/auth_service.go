package service

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"aetheris-web/internal/authapi"
	"aetheris-web/internal/domain"
	"aetheris-web/internal/observability"
	"aetheris-web/internal/token"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// CredentialAPI is the part of the auth API used for login.
type CredentialAPI interface {
	Login(ctx context.Context, email, password string) (*authapi.LoginResult, error)
}

// AccountAPI is the part of the auth API used for account flows.
type AccountAPI interface {
	Register(ctx context.Context, reg domain.Registration) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, password string) error
}

// AuthAPI is everything AuthService needs from the auth API.
type AuthAPI interface {
	CredentialAPI
	AccountAPI
}

type AuthService struct {
	api AuthAPI
}

func NewAuthService(api AuthAPI) *AuthService {
	return &AuthService{api: api}
}

// Authorize exchanges credentials for an identity. Every failure collapses
// into domain.ErrAuthenticationDenied; the cause is only logged.
func (s *AuthService) Authorize(ctx context.Context, email, password string) (*domain.Identity, error) {
	log := observability.FromContext(ctx)

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		observability.LoginAttempts.WithLabelValues("invalid_input").Inc()
		return nil, domain.ErrAuthenticationDenied
	}

	res, err := s.api.Login(ctx, email, password)
	if err != nil {
		log.Warn("credential authentication failed",
			slog.String("email", email),
			slog.String("error", err.Error()))
		observability.LoginAttempts.WithLabelValues("denied").Inc()
		return nil, domain.ErrAuthenticationDenied
	}

	if res == nil || res.User == nil || res.Tokens == nil ||
		res.User.ID == "" || res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		log.Error("auth API login response missing user or tokens",
			slog.String("email", email))
		observability.LoginAttempts.WithLabelValues("malformed").Inc()
		return nil, domain.ErrAuthenticationDenied
	}

	observability.LoginAttempts.WithLabelValues("success").Inc()

	return &domain.Identity{
		ID:                 res.User.ID,
		Name:               res.User.DisplayName(),
		Email:              res.User.Email,
		AccessToken:        res.Tokens.AccessToken,
		RefreshToken:       res.Tokens.RefreshToken,
		AccessTokenExpires: token.ExpiryMillis(res.Tokens.AccessToken),
	}, nil
}

func (s *AuthService) Register(ctx context.Context, reg domain.Registration) error {
	reg.Email = strings.TrimSpace(reg.Email)
	reg.FirstName = strings.TrimSpace(reg.FirstName)
	reg.LastName = strings.TrimSpace(reg.LastName)

	if !validEmail(reg.Email) {
		return domain.ErrInvalidInput
	}
	if len(reg.Password) < 8 || len(reg.Password) > 100 {
		return domain.ErrInvalidInput
	}
	if reg.FirstName == "" || len(reg.FirstName) > 100 || len(reg.LastName) > 100 {
		return domain.ErrInvalidInput
	}

	return s.api.Register(ctx, reg)
}

// ForgotPassword never reports whether the address exists; API failures are
// logged and swallowed.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if !validEmail(email) {
		return domain.ErrInvalidInput
	}

	if err := s.api.ForgotPassword(ctx, email); err != nil {
		observability.FromContext(ctx).Warn("forgot-password request failed",
			slog.String("error", err.Error()))
	}
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, resetToken, password string) error {
	if resetToken == "" {
		return domain.ErrInvalidInput
	}
	if len(password) < 8 || len(password) > 100 {
		return domain.ErrInvalidInput
	}
	return s.api.ResetPassword(ctx, resetToken, password)
}

func validEmail(email string) bool {
	return len(email) <= 255 && emailRegex.MatchString(email)
}
