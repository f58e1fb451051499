package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aetheris-web/internal/domain"
	"aetheris-web/internal/observability"

	"github.com/google/uuid"
)

const (
	getSessionQuery = `
		SELECT data
		FROM sessions
		WHERE id = $1 AND expires_at > $2
	`
	upsertSessionQuery = `
		INSERT INTO sessions (id, user_id, data, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
			data = EXCLUDED.data,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`
	deleteSessionQuery = `DELETE FROM sessions WHERE id = $1`
	deleteExpiredQuery = `DELETE FROM sessions WHERE expires_at <= $1`
)

// SessionStore keeps session tokens in the sessions table, keyed by a
// random UUID that travels in the session cookie.
type SessionStore struct {
	db                *sql.DB
	getStmt           *sql.Stmt
	upsertStmt        *sql.Stmt
	deleteStmt        *sql.Stmt
	deleteExpiredStmt *sql.Stmt
	now               func() time.Time
}

// NewSessionStore creates a new SessionStore with prepared statements.
// Returns an error if statement preparation fails.
func NewSessionStore(db *sql.DB) (*SessionStore, error) {
	s := &SessionStore{db: db, now: time.Now}

	var err error
	s.getStmt, err = db.Prepare(getSessionQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare get statement: %w", err)
	}

	s.upsertStmt, err = db.Prepare(upsertSessionQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare upsert statement: %w", err)
	}

	s.deleteStmt, err = db.Prepare(deleteSessionQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	s.deleteExpiredStmt, err = db.Prepare(deleteExpiredQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare deleteExpired statement: %w", err)
	}

	return s, nil
}

func (s *SessionStore) Get(ctx context.Context, key string) (*domain.Token, error) {
	defer observe("get", time.Now())

	if _, err := uuid.Parse(key); err != nil {
		return nil, domain.ErrSessionNotFound
	}

	var data []byte
	err := s.getStmt.QueryRowContext(ctx, key, s.now()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var tok domain.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &tok, nil
}

// Put inserts or replaces the session under key. An empty or malformed key
// gets a fresh UUID.
func (s *SessionStore) Put(ctx context.Context, key string, tok *domain.Token, expiresAt time.Time) (string, error) {
	defer observe("put", time.Now())

	if _, err := uuid.Parse(key); err != nil {
		key = uuid.NewString()
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}

	if _, err := s.upsertStmt.ExecContext(ctx, key, tok.ID, data, expiresAt); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}
	return key, nil
}

func (s *SessionStore) Delete(ctx context.Context, key string) error {
	defer observe("delete", time.Now())

	if _, err := uuid.Parse(key); err != nil {
		return nil
	}
	if _, err := s.deleteStmt.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	defer observe("delete_expired", time.Now())

	result, err := s.deleteExpiredStmt.ExecContext(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}

// StartCleanup deletes expired sessions every interval until ctx is done.
func (s *SessionStore) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				count, err := s.DeleteExpired(ctx)
				if err != nil {
					observability.Error("session cleanup failed", "error", err)
					continue
				}
				if count > 0 {
					observability.Info("expired sessions deleted", "count", count)
				}
			}
		}
	}()
}

// Ping checks the database connection.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// HealthMetadata reports connection pool statistics.
func (s *SessionStore) HealthMetadata() map[string]any {
	stats := s.db.Stats()
	return map[string]any{
		"connections_open":   stats.OpenConnections,
		"connections_in_use": stats.InUse,
		"connections_idle":   stats.Idle,
		"max_open":           stats.MaxOpenConnections,
	}
}

// Close releases the prepared statements. The *sql.DB is owned by the caller.
func (s *SessionStore) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{s.getStmt, s.upsertStmt, s.deleteStmt, s.deleteExpiredStmt} {
		if stmt != nil {
			errs = append(errs, stmt.Close())
		}
	}
	return errors.Join(errs...)
}

func observe(op string, start time.Time) {
	observability.SessionStoreDuration.WithLabelValues("postgres", op).Observe(time.Since(start).Seconds())
}
