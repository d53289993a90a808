package model

import "time"

// RefreshToken models an entry in the `refresh_tokens` table.  JTI matches the
// jti claim of the signed refresh token handed to the client.  Rows are never
// deleted and Revoked only ever goes from false to true.
type RefreshToken struct {
	ID        uint64
	JTI       string
	AccountID uint64
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Usable reports whether the row can still back a refresh at instant now.
func (r RefreshToken) Usable(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// RevokedAccessToken is an append-only record in `revoked_access_tokens`.
// Its existence alone invalidates the access token with the same jti.
type RevokedAccessToken struct {
	ID        uint64
	JTI       string
	Reason    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Revocation reasons recorded in the ledger.
const (
	ReasonLogout    = "logout"
	ReasonLogoutAll = "logout_all"
)
