package domain

import (
	"context"
	"time"
)

type SessionEventType string

const (
	EventLogin         SessionEventType = "login"
	EventLoginFailed   SessionEventType = "login_failed"
	EventRefreshFailed SessionEventType = "refresh_failed"
	EventLogout        SessionEventType = "logout"
)

// SessionEvent records a session lifecycle transition.
type SessionEvent struct {
	ID        string           `json:"id"`
	Type      SessionEventType `json:"type"`
	UserID    string           `json:"userId,omitempty"`
	Email     string           `json:"email,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Path      string           `json:"path,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// EventPublisher delivers session events. Publishing is best effort:
// callers log failures and carry on.
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, event SessionEvent) error
}
