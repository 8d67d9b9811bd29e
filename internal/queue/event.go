// Package queue defines the audit events exchanged over the message broker
// and the publisher/consumer that move them.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// EventType names an authentication event.
type EventType string

const (
	EventLoginSuccess   EventType = "auth.login.success"
	EventLoginFailure   EventType = "auth.login.failure"
	EventRefreshSuccess EventType = "auth.refresh.success"
	EventRefreshFailure EventType = "auth.refresh.failure"
	EventLogout         EventType = "auth.logout"
	EventLogoutAll      EventType = "auth.logout.all"
)

// AuthEvent is published for every session transition.  It never carries
// a password or a full token; TokenPrefix holds at most the first 8
// characters of a refresh token for correlation.
type AuthEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	UserID      string    `json:"user_id,omitempty"`
	Email       string    `json:"email,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	TokenPrefix string    `json:"token_prefix,omitempty"`
	ClientIP    string    `json:"client_ip,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewAuthEvent stamps an event with a fresh id and the current time.
func NewAuthEvent(typ EventType, at time.Time) AuthEvent {
	return AuthEvent{ID: uuid.NewString(), Type: typ, OccurredAt: at.UTC()}
}

// TokenPrefix returns the first 8 characters of token, for diagnostics.
func TokenPrefix(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
