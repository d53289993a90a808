package service

import (
	"errors"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRole        = errors.New("invalid user type")
	ErrInvalidTokenType   = errors.New("invalid token type")
	ErrRefreshRevoked     = errors.New("refresh token revoked or unknown")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAlreadyOnboarded   = errors.New("account already onboarded")
	ErrSelfDeactivation   = errors.New("cannot deactivate own account")
	ErrValidation         = errors.New("validation failed")
)

// ValidationError lists the offending request fields.  It matches
// ErrValidation under errors.Is.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// fieldError builds a single-field ValidationError.
func fieldError(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// fromValidation converts the result of validation.ValidateStruct.
func fromValidation(err error) error {
	if err == nil {
		return nil
	}
	var ve validation.Errors
	if !errors.As(err, &ve) {
		return err
	}
	fields := make(map[string]string, len(ve))
	for k, v := range ve {
		fields[k] = v.Error()
	}
	return &ValidationError{Fields: fields}
}
