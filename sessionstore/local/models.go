package local

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-holocrypt"
)

// UserModel is a locally registered account
type UserModel struct {
	bun.BaseModel `bun:"table:holocrypt_users,alias:hu"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Email         string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	ConfirmedAt   *time.Time `bun:"confirmed_at,nullzero" json:"confirmed_at,omitempty"`
	LastSignInAt  *time.Time `bun:"last_sign_in_at,nullzero" json:"last_sign_in_at,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
}

// Confirmed reports whether the account may sign in
func (u *UserModel) Confirmed() bool {
	return u.ConfirmedAt != nil
}

func (u *UserModel) toUser() *holocrypt.User {
	created := u.CreatedAt
	return &holocrypt.User{
		ID:           u.ID.String(),
		Email:        u.Email,
		CreatedAt:    &created,
		LastSignInAt: u.LastSignInAt,
		ConfirmedAt:  u.ConfirmedAt,
	}
}

// RefreshTokenModel is an issued refresh token. Tokens rotate on use.
type RefreshTokenModel struct {
	bun.BaseModel `bun:"table:holocrypt_refresh_tokens,alias:hrt"`
	Token         string     `bun:"token,pk" json:"-"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id"`
	SessionID     string     `bun:"session_id,notnull" json:"session_id"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	RevokedAt     *time.Time `bun:"revoked_at,nullzero" json:"revoked_at,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
}

// Usable reports whether the token can still be exchanged at now
func (t *RefreshTokenModel) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
