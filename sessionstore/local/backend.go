package local

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-holocrypt"
	"github.com/goliatone/go-holocrypt/sessionstore"
)

const (
	DefaultIssuer     = "holocrypt-local"
	DefaultTokenTTL   = time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour

	roleAuthenticated = "authenticated"
)

// Messages mirror the hosted store so the views read the same
const (
	MsgInvalidCredentials = "Invalid login credentials"
	MsgEmailNotConfirmed  = "Email not confirmed"
	MsgAlreadyRegistered  = "User already registered"
	MsgInvalidRefresh     = "Invalid Refresh Token: Refresh Token Not Found"
)

// Config holds the local store options
type Config struct {
	// DB is used as is when set, otherwise DSN is opened with sqliteshim
	DB          *bun.DB
	DSN         string
	JWTSecret   string
	Issuer      string
	TokenTTL    time.Duration
	RefreshTTL  time.Duration
	AutoConfirm bool
	// BcryptCost defaults to bcrypt.DefaultCost
	BcryptCost int
	Logger     holocrypt.Logger
	Now        func() time.Time
}

// Backend keeps accounts and refresh tokens in SQLite and signs HS256
// access tokens. It implements sessionstore.Backend.
type Backend struct {
	db          *bun.DB
	ownsDB      bool
	secret      []byte
	issuer      string
	tokenTTL    time.Duration
	refreshTTL  time.Duration
	autoConfirm bool
	cost        int
	decoy       *decoyHash
	logger      holocrypt.Logger
	now         func() time.Time
}

var _ sessionstore.Backend = (*Backend)(nil)

// Open connects to the database and creates the tables
func Open(ctx context.Context, cfg Config) (*Backend, error) {
	b := &Backend{
		db:          cfg.DB,
		issuer:      cfg.Issuer,
		tokenTTL:    cfg.TokenTTL,
		refreshTTL:  cfg.RefreshTTL,
		autoConfirm: cfg.AutoConfirm,
		cost:        cfg.BcryptCost,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}

	if b.issuer == "" {
		b.issuer = DefaultIssuer
	}
	if b.tokenTTL <= 0 {
		b.tokenTTL = DefaultTokenTTL
	}
	if b.refreshTTL <= 0 {
		b.refreshTTL = DefaultRefreshTTL
	}
	if b.cost == 0 {
		b.cost = bcrypt.DefaultCost
	}
	b.decoy = &decoyHash{cost: b.cost}
	if b.logger == nil {
		b.logger = holocrypt.NopLogger{}
	}
	if b.now == nil {
		b.now = time.Now
	}

	if cfg.JWTSecret != "" {
		b.secret = []byte(cfg.JWTSecret)
	} else {
		b.secret = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, b.secret); err != nil {
			return nil, fmt.Errorf("local store secret: %w", err)
		}
		b.logger.Warn("local store has no jwt secret, using a random one")
	}

	if b.db == nil {
		if cfg.DSN == "" {
			return nil, holocrypt.NewConfigurationError("local store DSN is empty", nil)
		}
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return nil, holocrypt.NewConfigurationError("unable to open local store database", err)
		}
		sqldb.SetMaxOpenConns(1)
		b.db = bun.NewDB(sqldb, sqlitedialect.New())
		b.ownsDB = true
	}

	if err := b.Migrate(ctx); err != nil {
		b.Close()
		return nil, err
	}

	return b, nil
}

// Migrate creates the tables and indexes when missing
func (b *Backend) Migrate(ctx context.Context) error {
	models := []any{(*UserModel)(nil), (*RefreshTokenModel)(nil)}
	for _, model := range models {
		if _, err := b.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("local store migrate: %w", err)
		}
	}

	_, err := b.db.NewCreateIndex().
		Model((*RefreshTokenModel)(nil)).
		Index("idx_holocrypt_refresh_tokens_session").
		Column("session_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("local store migrate: %w", err)
	}
	return nil
}

// Close closes the database when Open created it
func (b *Backend) Close() error {
	if b.ownsDB && b.db != nil {
		return b.db.Close()
	}
	return nil
}

// DB exposes the underlying database
func (b *Backend) DB() *bun.DB {
	return b.db
}

// Factory returns a store factory using this backend
func (b *Backend) Factory(cfg sessionstore.ManagerConfig) *sessionstore.Manager {
	cfg.Backend = b
	if cfg.Logger == nil {
		cfg.Logger = b.logger
	}
	if cfg.Now == nil {
		cfg.Now = b.now
	}
	return sessionstore.NewManager(cfg)
}

// Verifier returns a verifier for the access tokens this backend signs
func (b *Backend) Verifier() (*sessionstore.Verifier, error) {
	return sessionstore.NewVerifier(sessionstore.VerifierConfig{
		Secret: string(b.secret),
		Issuer: b.issuer,
	})
}

// SignUp implements sessionstore.Backend
func (b *Backend) SignUp(ctx context.Context, email, password string) (*holocrypt.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, holocrypt.NewAuthenticationError("Signup requires a valid password", nil)
	}

	exists, err := b.db.NewSelect().Model((*UserModel)(nil)).Where("email = ?", email).Exists(ctx)
	if err != nil {
		return nil, holocrypt.NewTransientError("Unable to read accounts", err)
	}
	if exists {
		return nil, holocrypt.NewAuthenticationError(MsgAlreadyRegistered, nil)
	}

	hash, err := HashPassword(password, b.cost)
	if err != nil {
		return nil, holocrypt.NewAuthenticationError("Signup requires a valid password", err)
	}

	id, err := hashid.NewUUID(email)
	if err != nil {
		return nil, fmt.Errorf("local store user id: %w", err)
	}

	now := b.now().UTC()
	user := &UserModel{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
	}
	if b.autoConfirm {
		user.ConfirmedAt = &now
	}

	if _, err := b.db.NewInsert().Model(user).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, holocrypt.NewAuthenticationError(MsgAlreadyRegistered, err)
		}
		return nil, holocrypt.NewTransientError("Unable to store the account", err)
	}

	b.logger.Info("local account registered", "user_id", user.ID, "confirmed", user.Confirmed())
	return user.toUser(), nil
}

// SignIn implements sessionstore.Backend
func (b *Backend) SignIn(ctx context.Context, email, password string) (*holocrypt.Session, error) {
	user, err := b.findUser(ctx, b.db, "email = ?", normalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = ComparePasswordAndHash(password, b.decoy.get())
			return nil, holocrypt.NewAuthenticationError(MsgInvalidCredentials, nil)
		}
		return nil, holocrypt.NewTransientError("Unable to read accounts", err)
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		return nil, holocrypt.NewAuthenticationError(MsgInvalidCredentials, nil)
	}

	if !user.Confirmed() {
		return nil, holocrypt.NewAuthenticationError(MsgEmailNotConfirmed, nil).
			WithMetadata(map[string]any{"error_code": "email_not_confirmed"})
	}

	now := b.now().UTC()
	user.LastSignInAt = &now
	if _, err := b.db.NewUpdate().Model(user).Column("last_sign_in_at").WherePK().Exec(ctx); err != nil {
		return nil, holocrypt.NewTransientError("Unable to update the account", err)
	}

	return b.issue(ctx, b.db, user, uuid.NewString())
}

// Refresh implements sessionstore.Backend. The presented token is revoked
// and a new pair is issued for the same session.
func (b *Backend) Refresh(ctx context.Context, refreshToken string) (*holocrypt.Session, error) {
	var session *holocrypt.Session

	err := b.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := b.now().UTC()

		row := new(RefreshTokenModel)
		err := tx.NewSelect().Model(row).Where("token = ?", refreshToken).Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return holocrypt.NewAuthenticationError(MsgInvalidRefresh, nil)
			}
			return holocrypt.NewTransientError("Unable to read refresh tokens", err)
		}
		if !row.Usable(now) {
			return holocrypt.NewAuthenticationError(MsgInvalidRefresh, nil)
		}

		res, err := tx.NewUpdate().
			Model((*RefreshTokenModel)(nil)).
			Set("revoked_at = ?", now).
			Where("token = ?", row.Token).
			Where("revoked_at IS NULL").
			Exec(ctx)
		if err != nil {
			return holocrypt.NewTransientError("Unable to rotate refresh token", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return holocrypt.NewAuthenticationError(MsgInvalidRefresh, nil)
		}

		user, err := b.findUser(ctx, tx, "id = ?", row.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return holocrypt.NewAuthenticationError(MsgInvalidRefresh, nil)
			}
			return holocrypt.NewTransientError("Unable to read accounts", err)
		}

		session, err = b.issue(ctx, tx, user, row.SessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// SignOut implements sessionstore.Backend. Every refresh token of the
// session is revoked.
func (b *Backend) SignOut(ctx context.Context, session *holocrypt.Session) error {
	if session == nil || session.RefreshToken == "" {
		return nil
	}

	row := new(RefreshTokenModel)
	err := b.db.NewSelect().Model(row).Where("token = ?", session.RefreshToken).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return holocrypt.NewTransientError("Unable to read refresh tokens", err)
	}

	_, err = b.db.NewUpdate().
		Model((*RefreshTokenModel)(nil)).
		Set("revoked_at = ?", b.now().UTC()).
		Where("session_id = ?", row.SessionID).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return holocrypt.NewTransientError("Unable to revoke the session", err)
	}
	return nil
}

// Confirm marks the account as confirmed
func (b *Backend) Confirm(ctx context.Context, email string) error {
	now := b.now().UTC()
	res, err := b.db.NewUpdate().
		Model((*UserModel)(nil)).
		Set("confirmed_at = ?", now).
		Where("email = ?", normalizeEmail(email)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("confirm account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("confirm account %s: %w", email, sql.ErrNoRows)
	}
	return nil
}

func (b *Backend) findUser(ctx context.Context, db bun.IDB, where string, arg any) (*UserModel, error) {
	user := new(UserModel)
	if err := db.NewSelect().Model(user).Where(where, arg).Limit(1).Scan(ctx); err != nil {
		return nil, err
	}
	return user, nil
}

func (b *Backend) issue(ctx context.Context, db bun.IDB, user *UserModel, sessionID string) (*holocrypt.Session, error) {
	now := b.now().UTC()
	expires := now.Add(b.tokenTTL)

	claims := &sessionstore.Claims{
		Email:     user.Email,
		Role:      roleAuthenticated,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    b.issuer,
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings{roleAuthenticated},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		return nil, fmt.Errorf("local store sign token: %w", err)
	}

	refresh := &RefreshTokenModel{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		SessionID: sessionID,
		ExpiresAt: now.Add(b.refreshTTL),
		CreatedAt: now,
	}
	if _, err := db.NewInsert().Model(refresh).Exec(ctx); err != nil {
		return nil, holocrypt.NewTransientError("Unable to store refresh token", err)
	}

	return &holocrypt.Session{
		AccessToken:  access,
		RefreshToken: refresh.Token,
		TokenType:    "bearer",
		ExpiresAt:    time.Unix(expires.Unix(), 0).UTC(),
		User:         user.toUser(),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
