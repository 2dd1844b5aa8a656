package sessionstore

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-holocrypt"
	"github.com/goliatone/go-holocrypt/middleware/jwtware"
)

// Claims is the access token payload shared by the adapters. It follows
// the GoTrue layout so tokens from either store read the same.
type Claims struct {
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

var _ jwtware.AuthClaims = (*Claims)(nil)

func (c *Claims) UserID() string {
	return c.Subject
}

func (c *Claims) UserEmail() string {
	return c.Email
}

// Expiry returns the exp claim or the zero time
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// User builds the minimal user the token describes
func (c *Claims) User() *holocrypt.User {
	return &holocrypt.User{ID: c.Subject, Email: c.Email}
}
