package holocrypt

import "fmt"

const (
	MsgConfiguration      = "Session store not configured. Add your credentials to the environment and restart the server."
	MsgConnection         = "Connection error. Please try again in a moment."
	MsgMaxAttemptsReached = "Maximum login attempts reached. Please try again later."
	MsgSubmitInFlight     = "A request is already in progress. Please wait."
	MsgPasswordMismatch   = "Passwords do not match"
	MsgPasswordTooShort   = "Password must be at least 6 characters long"
	MsgInvalidEmail       = "Please enter a valid email address"
	MsgMissingCredentials = "Email and password are required"
	MsgRegistered         = "Registration successful!"
	MsgConfirmEmail       = "Check your email for a confirmation link before logging in."
)

// MinPasswordLength is the shortest password the register form accepts
const MinPasswordLength = 6

// MaxAttemptsMessage is shown when a submit hits an exhausted throttle
func MaxAttemptsMessage(max int) string {
	return fmt.Sprintf("Maximum login attempts (%d) reached. Please try again later.", max)
}

// CountsAsAttempt reports whether a failed sign in uses up a login attempt.
// Only rejections by the store count; a store that cannot be reached or is
// not configured does not cost the user an attempt.
func CountsAsAttempt(err error) bool {
	switch KindOf(err) {
	case KindAuthentication, KindValidation:
		return true
	}
	return false
}

// LoginErrorMessage renders a failed sign in. remaining is the attempt
// count left after the failure was recorded.
func LoginErrorMessage(err error, remaining int) string {
	switch KindOf(err) {
	case KindConfiguration:
		return MsgConfiguration
	case KindThrottled:
		return throttleMessage(err)
	case KindAuthentication, KindValidation:
		if remaining > 0 {
			return fmt.Sprintf("%s. %d attempt(s) remaining.", ErrorMessage(err), remaining)
		}
		return MsgMaxAttemptsReached
	}
	return MsgConnection
}

// RegisterErrorMessage renders a failed sign up
func RegisterErrorMessage(err error) string {
	switch KindOf(err) {
	case KindConfiguration:
		return MsgConfiguration
	case KindThrottled:
		return throttleMessage(err)
	case KindAuthentication, KindValidation:
		return ErrorMessage(err)
	}
	return MsgConnection
}

func throttleMessage(err error) string {
	r := richError(err)
	if r == nil {
		return MsgMaxAttemptsReached
	}
	if r.TextCode == TextCodeSubmitInFlight {
		return MsgSubmitInFlight
	}
	if max, ok := r.Metadata["max_attempts"].(int); ok {
		return MaxAttemptsMessage(max)
	}
	return MsgMaxAttemptsReached
}

// IsTooManyAttempts reports a rejection by an exhausted throttle
func IsTooManyAttempts(err error) bool {
	r := richError(err)
	return r != nil && r.TextCode == TextCodeTooManyAttempts
}
