package domain

import "errors"

// ErrorCode classifies a failure independently of the transport that reports it.
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalid      ErrorCode = "INVALID"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeUnavailable  ErrorCode = "UNAVAILABLE"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// Error is a classified planner failure, optionally carrying its cause.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err == nil:
		return e.Message
	default:
		return e.Message + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost Error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var dErr *Error
	if !errors.As(err, &dErr) {
		return "", false
	}
	return dErr.Code, true
}

// IsDomainError reports whether err is classified as code.
func IsDomainError(err error, code ErrorCode) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}

// Lookups.
var (
	ErrActivityNotFound = NewError(ErrCodeNotFound, "activity not found")
	ErrSessionNotFound  = NewError(ErrCodeNotFound, "session not found")
	ErrUndoNotFound     = NewError(ErrCodeNotFound, "no pending operation")
)

// Input and caller identity.
var (
	ErrInvalidPayload = NewError(ErrCodeInvalid, "invalid payload")
	ErrUnauthorized   = NewError(ErrCodeUnauthorized, "unauthorized")
)

// ErrNotPersisted wraps every write the persistence service did not confirm. The local
// state has already been resynchronized when it is returned.
var ErrNotPersisted = NewError(ErrCodeUnavailable, "change not persisted")
