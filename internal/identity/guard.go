package identity

import "errors"

var (
	ErrNotAuthenticated = errors.New("authentication required")
	ErrAccountNotActive = errors.New("account not active")
	ErrForbidden        = errors.New("insufficient role")
)

// Guard inspects an identity and returns nil to allow or a denial error.
type Guard func(Identity) error

// RequireAuthenticated denies anonymous callers.
func RequireAuthenticated(id Identity) error {
	if !id.Authenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

// RequireActiveAccount denies accounts that are still onboarding or disabled.
// It does not check authentication; place RequireAuthenticated before it.
func RequireActiveAccount(id Identity) error {
	if !id.Onboarded() {
		return ErrAccountNotActive
	}
	return nil
}

// RequireAnyRole allows identities whose role is one of roles.
func RequireAnyRole(roles ...string) Guard {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(id Identity) error {
		if id.Role == "" {
			return ErrForbidden
		}
		if _, ok := allowed[id.Role]; !ok {
			return ErrForbidden
		}
		return nil
	}
}

// Check runs guards in order; the first denial wins.
func Check(id Identity, guards ...Guard) error {
	for _, g := range guards {
		if err := g(id); err != nil {
			return err
		}
	}
	return nil
}
