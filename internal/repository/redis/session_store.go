// Package redis stores session tokens as JSON values with a TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aetheris-web/internal/domain"
	"aetheris-web/internal/observability"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "aetheris:session:"

var ErrRedisUnavailable = errors.New("session redis unavailable")

type SessionStore struct {
	client *goredis.Client
	now    func() time.Time
}

func NewSessionStore(client *goredis.Client) *SessionStore {
	return &SessionStore{client: client, now: time.Now}
}

func (s *SessionStore) key(id string) string {
	return keyPrefix + id
}

func (s *SessionStore) Get(ctx context.Context, key string) (*domain.Token, error) {
	defer observe("get", time.Now())

	if _, err := uuid.Parse(key); err != nil {
		return nil, domain.ErrSessionNotFound
	}

	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var tok domain.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &tok, nil
}

// Put writes the session with a TTL ending at expiresAt. An empty or
// malformed key gets a fresh UUID.
func (s *SessionStore) Put(ctx context.Context, key string, tok *domain.Token, expiresAt time.Time) (string, error) {
	defer observe("put", time.Now())

	if _, err := uuid.Parse(key); err != nil {
		key = uuid.NewString()
	}

	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return "", domain.ErrSessionExpired
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return key, nil
}

func (s *SessionStore) Delete(ctx context.Context, key string) error {
	defer observe("delete", time.Now())

	if _, err := uuid.Parse(key); err != nil {
		return nil
	}
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping checks the redis connection.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func observe(op string, start time.Time) {
	observability.SessionStoreDuration.WithLabelValues("redis", op).Observe(time.Since(start).Seconds())
}
