package authentication

import (
	"errors"
	"net/http"
)

var (
	ErrDuplicateEmail           = errors.New("user with this email already exists")
	ErrInvalidCredentials       = errors.New("invalid email or password")
	ErrAccountDeactivated       = errors.New("account is deactivated")
	ErrUserNotFound             = errors.New("user not found")
	ErrInvalidRefreshToken      = errors.New("invalid or expired refresh token")
	ErrCurrentPasswordIncorrect = errors.New("current password is incorrect")
	ErrNoFieldsProvided         = errors.New("no fields to update")
	ErrValidationFailure        = errors.New("validation failed")
	ErrInternal                 = errors.New("internal error")
)

// HTTPStatus maps a service error to its transport status.
// ErrAccountDeactivated never leaves the service; it is listed so the mapping stays total.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountDeactivated),
		errors.Is(err, ErrInvalidRefreshToken),
		errors.Is(err, ErrCurrentPasswordIncorrect):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNoFieldsProvided), errors.Is(err, ErrValidationFailure):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-facing message for err. Unknown errors collapse to
// the internal error message so nothing from the store or codec is echoed.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrAccountDeactivated):
		return ErrInvalidCredentials.Error()
	case errors.Is(err, ErrValidationFailure):
		return err.Error()
	}
	for _, known := range []error{
		ErrDuplicateEmail,
		ErrInvalidCredentials,
		ErrUserNotFound,
		ErrInvalidRefreshToken,
		ErrCurrentPasswordIncorrect,
		ErrNoFieldsProvided,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return ErrInternal.Error()
}
