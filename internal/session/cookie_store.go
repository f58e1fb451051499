package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"aetheris-web/internal/domain"
	"aetheris-web/internal/security"
)

// sealed is what travels inside the cookie.
type sealed struct {
	Token     domain.Token `json:"t"`
	ExpiresAt int64        `json:"e"`
}

// CookieStore keeps the whole session in the cookie value. The key it
// returns from Put is the sealed token itself, so there is nothing to
// delete server-side.
type CookieStore struct {
	sealer *security.Sealer
	aad    []byte
	now    func() time.Time
}

// NewCookieStore binds sealed values to cookieName so they cannot be
// replayed under another cookie.
func NewCookieStore(sealer *security.Sealer, cookieName string) *CookieStore {
	return &CookieStore{
		sealer: sealer,
		aad:    []byte(cookieName),
		now:    time.Now,
	}
}

func (s *CookieStore) Get(ctx context.Context, key string) (*domain.Token, error) {
	if key == "" {
		return nil, domain.ErrSessionNotFound
	}

	plaintext, err := s.sealer.Open(key, s.aad)
	if err != nil {
		return nil, domain.ErrSessionNotFound
	}

	var v sealed
	if err := json.Unmarshal(plaintext, &v); err != nil {
		return nil, domain.ErrSessionNotFound
	}
	if s.now().Unix() >= v.ExpiresAt {
		return nil, domain.ErrSessionNotFound
	}
	return &v.Token, nil
}

func (s *CookieStore) Put(ctx context.Context, _ string, tok *domain.Token, expiresAt time.Time) (string, error) {
	plaintext, err := json.Marshal(sealed{Token: *tok, ExpiresAt: expiresAt.Unix()})
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}
	return s.sealer.Seal(plaintext, s.aad)
}

func (s *CookieStore) Delete(ctx context.Context, key string) error {
	return nil
}
