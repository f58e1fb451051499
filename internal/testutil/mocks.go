// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the aetheris-web server.
package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"aetheris-web/internal/authapi"
	"aetheris-web/internal/domain"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrMockUnavailable    = errors.New("mock: upstream unavailable")
)

// MockAuthAPI stands in for the external auth API client.
type MockAuthAPI struct {
	// Function overrides - set these to customize behavior
	LoginFunc          func(ctx context.Context, email, password string) (*authapi.LoginResult, error)
	RefreshFunc        func(ctx context.Context, refreshToken string) (*authapi.RefreshResult, error)
	RegisterFunc       func(ctx context.Context, reg domain.Registration) error
	ForgotPasswordFunc func(ctx context.Context, email string) error
	ResetPasswordFunc  func(ctx context.Context, resetToken, password string) error
	PingFunc           func(ctx context.Context) error

	LoginCalls   atomic.Int32
	RefreshCalls atomic.Int32

	mu            sync.Mutex
	refreshTokens []string
}

func (m *MockAuthAPI) Login(ctx context.Context, email, password string) (*authapi.LoginResult, error) {
	m.LoginCalls.Add(1)
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockAuthAPI) Refresh(ctx context.Context, refreshToken string) (*authapi.RefreshResult, error) {
	m.RefreshCalls.Add(1)
	m.mu.Lock()
	m.refreshTokens = append(m.refreshTokens, refreshToken)
	m.mu.Unlock()
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	return nil, ErrMockNotImplemented
}

// RefreshedWith returns the refresh tokens sent so far, in call order.
func (m *MockAuthAPI) RefreshedWith() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.refreshTokens))
	copy(out, m.refreshTokens)
	return out
}

func (m *MockAuthAPI) Register(ctx context.Context, reg domain.Registration) error {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, reg)
	}
	return nil
}

func (m *MockAuthAPI) ForgotPassword(ctx context.Context, email string) error {
	if m.ForgotPasswordFunc != nil {
		return m.ForgotPasswordFunc(ctx, email)
	}
	return nil
}

func (m *MockAuthAPI) ResetPassword(ctx context.Context, resetToken, password string) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, resetToken, password)
	}
	return nil
}

func (m *MockAuthAPI) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// LoginSucceeds configures Login to return user and a token pair whose
// access token expires at exp.
func (m *MockAuthAPI) LoginSucceeds(user *domain.User, exp time.Time) *domain.TokenPair {
	pair := &domain.TokenPair{
		AccessToken:  AccessTokenExpiringAt(exp),
		RefreshToken: nextID("refresh"),
	}
	m.LoginFunc = func(ctx context.Context, email, password string) (*authapi.LoginResult, error) {
		return &authapi.LoginResult{User: user, Tokens: pair}, nil
	}
	return pair
}

// MockSessionStore implements domain.SessionStore in memory
type MockSessionStore struct {
	mu sync.RWMutex

	GetFunc    func(ctx context.Context, key string) (*domain.Token, error)
	PutFunc    func(ctx context.Context, key string, token *domain.Token, expiresAt time.Time) (string, error)
	DeleteFunc func(ctx context.Context, key string) error

	Sessions map[string]domain.Token
	Puts     int
}

// NewMockSessionStore creates a new MockSessionStore with initialized maps
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{
		Sessions: make(map[string]domain.Token),
	}
}

func (m *MockSessionStore) Get(ctx context.Context, key string) (*domain.Token, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	tok, ok := m.Sessions[key]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &tok, nil
}

func (m *MockSessionStore) Put(ctx context.Context, key string, token *domain.Token, expiresAt time.Time) (string, error) {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, key, token, expiresAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Sessions == nil {
		m.Sessions = make(map[string]domain.Token)
	}
	if key == "" {
		key = nextID("session")
	}
	m.Sessions[key] = *token
	m.Puts++
	return key, nil
}

func (m *MockSessionStore) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.Sessions, key)
	return nil
}

// Stored returns a copy of the token under key
func (m *MockSessionStore) Stored(key string) (domain.Token, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.Sessions[key]
	return tok, ok
}

// MockEventPublisher records published session events
type MockEventPublisher struct {
	mu sync.Mutex

	PublishFunc func(ctx context.Context, event domain.SessionEvent) error

	events []domain.SessionEvent
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) PublishSessionEvent(ctx context.Context, event domain.SessionEvent) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, event)
	}
	return nil
}

// Events returns a copy of the recorded events
func (m *MockEventPublisher) Events() []domain.SessionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SessionEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Types returns the recorded event types in order
func (m *MockEventPublisher) Types() []domain.SessionEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SessionEventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

// Reset clears all recorded events
func (m *MockEventPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
