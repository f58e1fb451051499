// Package session ties the session cookie, the session store and the
// token refresher together.
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"aetheris-web/internal/domain"
	"aetheris-web/internal/observability"

	"github.com/google/uuid"
)

const (
	DefaultCookieName = "aetheris.session-token"
	DefaultMaxAge     = 30 * 24 * time.Hour
)

// Refresher brings a stored token up to date.
type Refresher interface {
	Refresh(ctx context.Context, tok domain.Token) domain.Outcome
}

type Config struct {
	CookieName string
	MaxAge     time.Duration
	Secure     bool
}

type Manager struct {
	store      domain.SessionStore
	refresher  Refresher
	events     domain.EventPublisher
	cookieName string
	maxAge     time.Duration
	secure     bool
	now        func() time.Time
}

func NewManager(store domain.SessionStore, refresher Refresher, events domain.EventPublisher, cfg Config) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	return &Manager{
		store:      store,
		refresher:  refresher,
		events:     events,
		cookieName: cfg.CookieName,
		maxAge:     cfg.MaxAge,
		secure:     cfg.Secure,
		now:        time.Now,
	}
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string {
	return m.cookieName
}

// Begin stores a new session for id and sets the session cookie.
func (m *Manager) Begin(ctx context.Context, w http.ResponseWriter, id *domain.Identity) (domain.Token, error) {
	tok := domain.NewToken(id)

	key, err := m.store.Put(ctx, "", &tok, m.now().Add(m.maxAge))
	if err != nil {
		return domain.Token{}, err
	}
	m.setCookie(w, key)

	m.publish(ctx, domain.SessionEvent{Type: domain.EventLogin, UserID: tok.ID, Email: tok.Email})
	return tok, nil
}

// Read materializes the session carried by r. It returns false when the
// request has no usable session. A token that needed refreshing is
// persisted and the cookie re-issued.
func (m *Manager) Read(ctx context.Context, w http.ResponseWriter, r *http.Request) (domain.Outcome, bool) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return domain.Outcome{}, false
	}

	stored, err := m.store.Get(ctx, cookie.Value)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			m.clearCookie(w)
		} else {
			observability.FromContext(ctx).Error("failed to load session", slog.String("error", err.Error()))
		}
		return domain.Outcome{}, false
	}

	out := m.refresher.Refresh(ctx, *stored)
	next := out.LastKnown()
	if next == *stored {
		return out, true
	}

	key, err := m.store.Put(ctx, cookie.Value, &next, m.now().Add(m.maxAge))
	if err != nil {
		// The refreshed token is still good for this request.
		observability.FromContext(ctx).Error("failed to persist refreshed session", slog.String("error", err.Error()))
	} else {
		m.setCookie(w, key)
	}

	if out.IsErrored() && !stored.Errored() {
		m.publish(ctx, domain.SessionEvent{
			Type:   domain.EventRefreshFailed,
			UserID: next.ID,
			Email:  next.Email,
			Reason: string(next.Error),
			Path:   r.URL.Path,
		})
	}
	return out, true
}

// End deletes the stored session and clears the cookie.
func (m *Manager) End(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	defer m.clearCookie(w)

	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	var userID, email string
	if tok, err := m.store.Get(ctx, cookie.Value); err == nil {
		userID, email = tok.ID, tok.Email
	}

	if err := m.store.Delete(ctx, cookie.Value); err != nil {
		return err
	}

	m.publish(ctx, domain.SessionEvent{Type: domain.EventLogout, UserID: userID, Email: email})
	return nil
}

// LoginFailed records a denied credential authentication.
func (m *Manager) LoginFailed(ctx context.Context, email string) {
	m.publish(ctx, domain.SessionEvent{
		Type:   domain.EventLoginFailed,
		Email:  email,
		Reason: domain.ErrAuthenticationDenied.Error(),
	})
}

func (m *Manager) publish(ctx context.Context, event domain.SessionEvent) {
	if m.events == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = m.now().UTC()

	if err := m.events.PublishSessionEvent(ctx, event); err != nil {
		observability.FromContext(ctx).Warn("failed to publish session event",
			slog.String("type", string(event.Type)),
			slog.String("error", err.Error()))
	}
}

func (m *Manager) setCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(m.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
