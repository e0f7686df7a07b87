package services

import (
	"errors"
	"fmt"
)

// Domain errors. Controllers map these to HTTP statuses; store
// implementations translate driver errors into them so nothing
// storage-specific leaks upward.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrAccountInactive    = errors.New("account disabled")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrDuplicate          = errors.New("already exists")
	ErrLicenseLimit       = errors.New("license user limit reached")
	ErrLastSuperAdmin     = errors.New("cannot remove the last super admin")
	ErrLastOrgAdmin       = errors.New("cannot remove the last organization admin")
	ErrValidation         = errors.New("validation failed")
	ErrTxAborted          = errors.New("transaction aborted")
)

// ConflictError carries a user-facing message for duplicate/limit
// conflicts while staying errors.Is-comparable to its kind.
type ConflictError struct {
	Kind error
	Msg  string
}

func (e *ConflictError) Error() string { return e.Msg }
func (e *ConflictError) Unwrap() error { return e.Kind }

func conflictf(kind error, format string, args ...any) error {
	return &ConflictError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// CredentialsError reports a failed password check along with how many
// attempts remain before lockout.
type CredentialsError struct {
	AttemptsRemaining int
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("invalid credentials, %d attempts remaining", e.AttemptsRemaining)
}
func (e *CredentialsError) Unwrap() error { return ErrInvalidCredentials }

// ValidationError reports malformed input detected past the binding layer.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }
func (e *ValidationError) Unwrap() error { return ErrValidation }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
