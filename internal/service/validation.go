package service

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// RegisterInput is the self-registration request.
type RegisterInput struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName string  `json:"full_name"`
	Phone    *string `json:"phone"`
	UserType string  `json:"user_type"`
}

// Validate checks field shapes.  Role and phone semantics are resolved later.
func (r RegisterInput) Validate() error {
	return fromValidation(validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 255), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(&r.FullName, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.UserType, validation.Required),
	))
}

// LoginInput is the credential pair presented at login.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginInput) Validate() error {
	return fromValidation(validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	))
}

// normalizePhone returns the E.164 form of raw, or nil when raw is empty.
func normalizePhone(raw *string, region string) (*string, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	num, err := phonenumbers.Parse(strings.TrimSpace(*raw), region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return nil, fieldError("phone", "must be a valid phone number")
	}
	e164 := phonenumbers.Format(num, phonenumbers.E164)
	return &e164, nil
}
