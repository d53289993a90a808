// Package identity describes who is making a request and the guards that
// decide whether they may proceed.
package identity

import (
	"time"

	"github.com/iliyamo/school-management/internal/model"
)

// Identity is the resolved caller.  The zero value is the anonymous caller.
// It is passed by value and never mutated after resolution.
type Identity struct {
	AccountID      uint64
	Email          string
	Status         model.AccountStatus
	Role           string
	Active         bool
	TokenID        string
	TokenExpiresAt time.Time
}

// Anonymous is the identity of a request without valid credentials.
var Anonymous = Identity{}

// FromAccount builds an identity from the stored account and the access
// token that named it.
func FromAccount(a *model.Account, tokenID string, tokenExp time.Time) Identity {
	return Identity{
		AccountID:      a.ID,
		Email:          a.Email,
		Status:         a.Status,
		Role:           a.RoleName,
		Active:         a.IsActive,
		TokenID:        tokenID,
		TokenExpiresAt: tokenExp,
	}
}

// Authenticated reports whether an account was resolved.
func (i Identity) Authenticated() bool { return i.AccountID != 0 }

// Onboarded reports whether the account finished onboarding and is enabled.
func (i Identity) Onboarded() bool {
	return i.Status == model.StatusActive && i.Active
}
