package holocrypt

import (
	"context"
	"time"
)

// Logger is the logging surface used across the package
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// User holds the attributes the session store reports for a signed in account
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	CreatedAt    *time.Time     `json:"created_at,omitempty"`
	LastSignInAt *time.Time     `json:"last_sign_in_at,omitempty"`
	ConfirmedAt  *time.Time     `json:"confirmed_at,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Session is the token set issued by the session store
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         *User     `json:"user"`
}

// Expired reports whether the access token is past its expiration, with an
// optional margin subtracted from the expiration time.
func (s *Session) Expired(now time.Time, margin time.Duration) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt.Add(-margin))
}

// GetUser returns the session user or nil
func (s *Session) GetUser() *User {
	if s == nil {
		return nil
	}
	return s.User
}

// AuthResponse is returned by sign in and sign up calls
type AuthResponse struct {
	User    *User    `json:"user,omitempty"`
	Session *Session `json:"session,omitempty"`
}

// SessionEventType names a session change
type SessionEventType string

const (
	EventSignedIn       SessionEventType = "SIGNED_IN"
	EventSignedOut      SessionEventType = "SIGNED_OUT"
	EventTokenRefreshed SessionEventType = "TOKEN_REFRESHED"
	EventUserUpdated    SessionEventType = "USER_UPDATED"
)

// SessionEvent is delivered to OnSessionChange subscribers. Session is nil
// for EventSignedOut.
type SessionEvent struct {
	Type    SessionEventType
	Session *Session
}

// SessionStore is the per client handle to the external session service.
type SessionStore interface {
	GetSession(ctx context.Context) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*AuthResponse, error)
	SignUp(ctx context.Context, email, password string) (*AuthResponse, error)
	SignOut(ctx context.Context) error
	// OnSessionChange registers fn and returns a handle that removes it.
	OnSessionChange(fn func(SessionEvent)) (unsubscribe func())
}

// StoreFactory builds the SessionStore handle for a client scope
type StoreFactory interface {
	New(clientID string) (SessionStore, error)
}

// StoreFactoryFunc adapts a function to StoreFactory
type StoreFactoryFunc func(clientID string) (SessionStore, error)

// New implements StoreFactory
func (f StoreFactoryFunc) New(clientID string) (SessionStore, error) {
	return f(clientID)
}
