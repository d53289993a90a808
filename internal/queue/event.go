// Package queue defines the session events exchanged over RabbitMQ, the
// publisher that emits them, and the audit consumer that records them.
package queue

import "time"

// Event types.
const (
	EventAccountRegistered = "account.registered"
	EventAccountActivated  = "account.activated"
	EventAccountDisabled   = "account.disabled"
	EventSessionLogin      = "session.login"
	EventSessionRefresh    = "session.refresh"
	EventSessionLogout     = "session.logout"
	EventSessionLogoutAll  = "session.logout_all"
)

// AuthEvent is published after a session or account state change commits.
// It never carries secrets: no passwords, hashes or raw tokens.
type AuthEvent struct {
	Type      string    `json:"type"`
	AccountID uint64    `json:"account_id"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	ActorID   uint64    `json:"actor_id,omitempty"`
	TokenID   string    `json:"token_id,omitempty"` // jti of the token involved
	Revoked   int64     `json:"revoked,omitempty"`  // rows revoked by logout_all / disable
	IP        string    `json:"ip,omitempty"`
	At        time.Time `json:"at"`
}
