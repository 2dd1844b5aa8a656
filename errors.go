package holocrypt

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

// ErrorKind tells the view layer how a failure has to be presented
type ErrorKind string

const (
	KindUnknown        ErrorKind = ""
	KindConfiguration  ErrorKind = "configuration"
	KindAuthentication ErrorKind = "authentication"
	KindValidation     ErrorKind = "validation"
	KindTransient      ErrorKind = "transient"
	KindThrottled      ErrorKind = "throttled"
)

const (
	TextCodeNotConfigured   = "SESSION_STORE_NOT_CONFIGURED"
	TextCodeAuthentication  = "AUTHENTICATION_FAILED"
	TextCodeValidation      = "VALIDATION_FAILED"
	TextCodeUnavailable     = "SESSION_STORE_UNAVAILABLE"
	TextCodeTooManyAttempts = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeSubmitInFlight  = "SUBMIT_IN_FLIGHT"
)

var kindByTextCode = map[string]ErrorKind{
	TextCodeNotConfigured:   KindConfiguration,
	TextCodeAuthentication:  KindAuthentication,
	TextCodeValidation:      KindValidation,
	TextCodeUnavailable:     KindTransient,
	TextCodeTooManyAttempts: KindThrottled,
	TextCodeSubmitInFlight:  KindThrottled,
}

// ErrUnableToFindClient is returned when a handler runs outside ClientScope
var ErrUnableToFindClient = errors.New("unable to find client scope")

// ErrRegistryClosed is returned by Acquire after Close
var ErrRegistryClosed = errors.New("client registry closed")

// NewConfigurationError reports missing or unusable session store settings,
// including endpoints that cannot be reached at all.
func NewConfigurationError(message string, cause error) *goerrors.Error {
	return withCause(goerrors.New(message, goerrors.CategoryInternal), cause).
		WithTextCode(TextCodeNotConfigured).
		WithCode(goerrors.CodeInternal)
}

// NewAuthenticationError reports credentials or policy rejected by the store
func NewAuthenticationError(message string, cause error) *goerrors.Error {
	return withCause(goerrors.New(message, goerrors.CategoryAuth), cause).
		WithTextCode(TextCodeAuthentication).
		WithCode(goerrors.CodeUnauthorized)
}

// NewValidationError reports local pre-flight failures
func NewValidationError(message string, cause error) *goerrors.Error {
	return withCause(goerrors.New(message, goerrors.CategoryValidation), cause).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest)
}

// NewTransientError reports network failures that may go away on retry
func NewTransientError(message string, cause error) *goerrors.Error {
	return withCause(goerrors.New(message, goerrors.CategoryOperation), cause).
		WithTextCode(TextCodeUnavailable).
		WithCode(goerrors.CodeInternal)
}

// NewTooManyAttemptsError is returned by the login throttle once exhausted
func NewTooManyAttemptsError(max int) *goerrors.Error {
	return goerrors.New("maximum login attempts reached", goerrors.CategoryRateLimit).
		WithTextCode(TextCodeTooManyAttempts).
		WithMetadata(map[string]any{"max_attempts": max})
}

// NewSubmitInFlightError is returned while a submit from the same client runs
func NewSubmitInFlightError() *goerrors.Error {
	return goerrors.New("a request is already in progress", goerrors.CategoryRateLimit).
		WithTextCode(TextCodeSubmitInFlight)
}

func withCause(err *goerrors.Error, cause error) *goerrors.Error {
	if cause != nil {
		err.Source = cause
	}
	return err
}

// KindOf returns the kind attached to err by the adapter that produced it
func KindOf(err error) ErrorKind {
	if r := richError(err); r != nil {
		return kindByTextCode[r.TextCode]
	}
	return KindUnknown
}

// IsKind is a shortcut for KindOf(err) == kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// ErrorMessage returns the user facing message carried by err
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if r := richError(err); r != nil && r.Message != "" {
		return r.Message
	}
	return err.Error()
}

func richError(err error) *goerrors.Error {
	for e := err; e != nil; e = errors.Unwrap(e) {
		r, ok := e.(*goerrors.Error)
		if !ok || r == nil {
			continue
		}
		if _, known := kindByTextCode[r.TextCode]; known {
			return r
		}
	}
	return nil
}
