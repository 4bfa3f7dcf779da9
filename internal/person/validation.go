package person

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode"
)

const (
	PasswordMinLength = 8
	// PasswordMaxLength is the bcrypt input limit in bytes.
	PasswordMaxLength = 72
)

var (
	ErrPasswordTooShort           = fmt.Errorf("password should be at least %d characters", PasswordMinLength)
	ErrPasswordTooLong            = fmt.Errorf("password should be at most %d bytes", PasswordMaxLength)
	ErrPasswordNotAlphanumeric    = errors.New("password must contain letters and digits")
	ErrPasswordMissingSpecialChar = errors.New("password must contain a special character")
	ErrInvalidEmailFormat         = errors.New("invalid email format")
	ErrNameRequired               = errors.New("first and last name are required")
	ErrUnknownRole                = errors.New("unknown role")
)

const specialCharacters = "!@#$%^&*()-_=+[]{}|;:'\",.<>?/`~"

// CheckPassword enforces the password policy for new credentials.
func CheckPassword(password string) error {
	if len(password) < PasswordMinLength {
		return ErrPasswordTooShort
	}
	if len(password) > PasswordMaxLength {
		return ErrPasswordTooLong
	}

	var hasLetter, hasDigit, hasSpecial bool
	for _, c := range password {
		switch {
		case unicode.IsLetter(c):
			hasLetter = true
		case unicode.IsDigit(c):
			hasDigit = true
		case strings.ContainsRune(specialCharacters, c):
			hasSpecial = true
		}
	}
	if !hasLetter || !hasDigit {
		return ErrPasswordNotAlphanumeric
	}
	if !hasSpecial {
		return ErrPasswordMissingSpecialChar
	}
	return nil
}

func CheckEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmailFormat
	}
	return nil
}

func CheckName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrNameRequired
	}
	return nil
}

func CheckRole(role Role) error {
	if role == "" || role.Valid() {
		return nil
	}
	return ErrUnknownRole
}
