package model

import "time"

// AccountStatus is the onboarding lifecycle state of an account.
type AccountStatus string

const (
	// StatusPendingOnboarding is assigned at registration.
	StatusPendingOnboarding AccountStatus = "PENDING_ONBOARDING"
	// StatusActive is set exactly once by onboarding and never reverted.
	StatusActive AccountStatus = "ACTIVE"
)

// Role names seeded by the migrations.
const (
	RoleAdmin   = "ADMIN"
	RoleTeacher = "TEACHER"
	RoleStudent = "STUDENT"
	RoleParent  = "PARENT"
)

// Account represents a row of the `accounts` table joined with its role
// name.  PasswordHash is a bcrypt digest; the plaintext never reaches this
// struct.
//
// IsActive is the enabled flag (an administrator can disable an account);
// Status tracks onboarding.  The two are independent.
type Account struct {
	ID           uint64        // accounts.id
	Email        string        // accounts.email (lowercased, trimmed)
	PasswordHash string        // accounts.password_hash
	FullName     string        // accounts.full_name
	Phone        *string       // accounts.phone (E.164, nullable)
	RoleID       uint8         // accounts.role_id
	RoleName     string        // roles.name
	Status       AccountStatus // accounts.account_status
	IsActive     bool          // accounts.is_active
	LastLoginAt  *time.Time    // accounts.last_login_at
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Onboarded reports whether the account finished onboarding and is enabled.
func (a Account) Onboarded() bool {
	return a.Status == StatusActive && a.IsActive
}

// Role represents a row in the `roles` table.
type Role struct {
	ID   uint8  // roles.id
	Name string // roles.name
}
