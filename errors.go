package lscauth

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// ErrorKind is the stable machine-readable code of an [Error].
type ErrorKind string

const (
	// KindInvalidCredentials covers a wrong password and an unknown email alike.
	KindInvalidCredentials ErrorKind = "INVALID_CREDENTIALS"
	KindEmailExists        ErrorKind = "EMAIL_EXISTS"
	KindAccountSuspended   ErrorKind = "ACCOUNT_SUSPENDED"
	KindAccountDeleted     ErrorKind = "ACCOUNT_DELETED"
	KindEmailNotVerified   ErrorKind = "EMAIL_NOT_VERIFIED"
	// KindInvalidToken covers bad signatures, wrong token types, unknown and malformed tokens.
	KindInvalidToken ErrorKind = "INVALID_TOKEN"
	// KindTokenRevoked means reuse detection fired and every session of the user was revoked.
	KindTokenRevoked        ErrorKind = "TOKEN_REVOKED"
	KindWeakPassword        ErrorKind = "WEAK_PASSWORD"
	KindVerificationExpired ErrorKind = "VERIFICATION_EXPIRED"
	KindAlreadyVerified     ErrorKind = "ALREADY_VERIFIED"
	KindRateLimited         ErrorKind = "RATE_LIMITED"
	KindValidation          ErrorKind = "VALIDATION_ERROR"
	KindUserNotFound        ErrorKind = "USER_NOT_FOUND"
	KindInternal            ErrorKind = "INTERNAL_ERROR"
)

var kindStatus = map[ErrorKind]int{
	KindInvalidCredentials:  http.StatusUnauthorized,
	KindEmailExists:         http.StatusConflict,
	KindAccountSuspended:    http.StatusForbidden,
	KindAccountDeleted:      http.StatusForbidden,
	KindEmailNotVerified:    http.StatusForbidden,
	KindInvalidToken:        http.StatusUnauthorized,
	KindTokenRevoked:        http.StatusUnauthorized,
	KindWeakPassword:        http.StatusBadRequest,
	KindVerificationExpired: http.StatusBadRequest,
	KindAlreadyVerified:     http.StatusBadRequest,
	KindRateLimited:         http.StatusTooManyRequests,
	KindValidation:          http.StatusBadRequest,
	KindUserNotFound:        http.StatusNotFound,
	KindInternal:            http.StatusInternalServerError,
}

// HTTPStatus maps an error kind to its response status. Unknown kinds map to 500.
func HTTPStatus(kind ErrorKind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Error is the only error type the Engine returns to callers.
//
// Message is generic and safe to show to clients. Err holds the internal cause, if any,
// and must not be exposed.
type Error struct {
	Kind       ErrorKind
	Message    string
	Violations []string
	RetryAfter time.Duration
	Limit      int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so errors.Is(err, ErrInvalidToken)
// matches every INVALID_TOKEN error regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Status is HTTPStatus(e.Kind).
func (e *Error) Status() int {
	return HTTPStatus(e.Kind)
}

var (
	// ErrInvalidCredentials is returned by Login for a wrong password or an unknown email.
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "Invalid email or password"}
	// ErrEmailExists is the public form of a duplicate email. Register never returns it.
	ErrEmailExists = &Error{Kind: KindEmailExists, Message: "Email is already registered"}
	// ErrAccountSuspended is returned for operations on suspended accounts.
	ErrAccountSuspended = &Error{Kind: KindAccountSuspended, Message: "Account is suspended"}
	// ErrAccountDeleted is returned for operations on deleted accounts.
	ErrAccountDeleted = &Error{Kind: KindAccountDeleted, Message: "Account has been deleted"}
	// ErrEmailNotVerified is returned by Login until the email is verified.
	ErrEmailNotVerified = &Error{Kind: KindEmailNotVerified, Message: "Email address has not been verified"}
	// ErrInvalidToken is returned for any token that fails verification or lookup.
	ErrInvalidToken = &Error{Kind: KindInvalidToken, Message: "Invalid or expired token"}
	// ErrTokenRevoked is returned when a revoked refresh token is presented.
	ErrTokenRevoked = &Error{Kind: KindTokenRevoked, Message: "Token has been revoked"}
	// ErrWeakPassword is the kind sentinel for password policy failures.
	ErrWeakPassword = &Error{Kind: KindWeakPassword, Message: "Password does not meet requirements"}
	// ErrVerificationExpired is returned for verification and reset tokens past their expiry.
	ErrVerificationExpired = &Error{Kind: KindVerificationExpired, Message: "Token has expired"}
	// ErrAlreadyVerified is returned when a verification token targets a verified account.
	ErrAlreadyVerified = &Error{Kind: KindAlreadyVerified, Message: "Email address is already verified"}
	// ErrRateLimited is the kind sentinel for rate limit rejections.
	ErrRateLimited = &Error{Kind: KindRateLimited, Message: "Too many requests, please try again later"}
	// ErrValidation is returned for malformed input.
	ErrValidation = &Error{Kind: KindValidation, Message: "Invalid request"}
	// ErrUserNotFound is returned by administrative operations on unknown user ids.
	ErrUserNotFound = &Error{Kind: KindUserNotFound, Message: "User not found"}
	// ErrInternal is the kind sentinel for store, crypto and other internal failures.
	ErrInternal = &Error{Kind: KindInternal, Message: "Internal server error"}
)

// KindOf returns the kind of err, KindInternal for foreign errors and "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func internalError(err error) *Error {
	return &Error{Kind: KindInternal, Message: ErrInternal.Message, Err: err}
}

func validationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func weakPasswordError(violations []string) *Error {
	return &Error{
		Kind:       KindWeakPassword,
		Message:    ErrWeakPassword.Message,
		Violations: append([]string(nil), violations...),
	}
}

func rateLimitedError(limit int, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Message:    ErrRateLimited.Message,
		Limit:      limit,
		RetryAfter: retryAfter,
	}
}
