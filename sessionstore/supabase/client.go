package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-holocrypt"
	"github.com/goliatone/go-holocrypt/sessionstore"
)

const (
	tokenPath  = "/auth/v1/token"
	signUpPath = "/auth/v1/signup"
	logoutPath = "/auth/v1/logout"

	clientInfo = "holocrypt-go/1.0.0"
)

// Config holds the adapter options
type Config struct {
	URL string
	Key string
	// HTTPClient defaults to a client with a 10s timeout
	HTTPClient *http.Client
	// Storage defaults to an in-memory storage
	Storage sessionstore.TokenStorage
	// Verifier decodes access tokens, defaults to decode only
	Verifier      *sessionstore.Verifier
	Logger        holocrypt.Logger
	RefreshMargin time.Duration
	Now           func() time.Time
}

// Client speaks the GoTrue REST API. It implements sessionstore.Backend.
type Client struct {
	base      *url.URL
	key       string
	http      *http.Client
	verifier  *sessionstore.Verifier
	now       func() time.Time
	configErr error
}

var _ sessionstore.Backend = (*Client)(nil)

// Factory builds one store per client scope on top of a shared Client
type Factory struct {
	*sessionstore.Manager
	client *Client
}

var _ holocrypt.StoreFactory = (*Factory)(nil)

// NewFactory validates cfg. Missing or placeholder credentials do not fail:
// the factory runs degraded and every call reports a configuration error.
func NewFactory(cfg Config) *Factory {
	client := NewClient(cfg)
	return &Factory{
		client: client,
		Manager: sessionstore.NewManager(sessionstore.ManagerConfig{
			Backend:       client,
			Storage:       cfg.Storage,
			Logger:        cfg.Logger,
			RefreshMargin: cfg.RefreshMargin,
			Now:           cfg.Now,
		}),
	}
}

// Configured reports whether the factory can reach a store
func (f *Factory) Configured() bool {
	return f.client.ConfigError() == nil
}

// NewClient builds the REST client alone
func NewClient(cfg Config) *Client {
	c := &Client{
		key:      strings.TrimSpace(cfg.Key),
		http:     cfg.HTTPClient,
		verifier: cfg.Verifier,
		now:      cfg.Now,
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: 10 * time.Second}
	}
	if c.verifier == nil {
		c.verifier, _ = sessionstore.NewVerifier(sessionstore.VerifierConfig{})
	}
	if c.now == nil {
		c.now = time.Now
	}

	if holocrypt.IsPlaceholder(cfg.URL) || holocrypt.IsPlaceholder(cfg.Key) {
		c.configErr = holocrypt.NewConfigurationError("session store URL or key is missing or a placeholder", nil)
		return c
	}

	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.URL), "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		c.configErr = holocrypt.NewConfigurationError("session store URL is invalid", err)
		return c
	}
	c.base = base

	return c
}

// ConfigError implements sessionstore.ConfigChecker
func (c *Client) ConfigError() error {
	return c.configErr
}

type userResponse struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	CreatedAt        *time.Time     `json:"created_at"`
	LastSignInAt     *time.Time     `json:"last_sign_in_at"`
	ConfirmedAt      *time.Time     `json:"confirmed_at"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at"`
	UserMetadata     map[string]any `json:"user_metadata"`
}

func (u *userResponse) toUser() *holocrypt.User {
	if u == nil || u.ID == "" {
		return nil
	}
	confirmed := u.ConfirmedAt
	if confirmed == nil {
		confirmed = u.EmailConfirmedAt
	}
	return &holocrypt.User{
		ID:           u.ID,
		Email:        u.Email,
		CreatedAt:    u.CreatedAt,
		LastSignInAt: u.LastSignInAt,
		ConfirmedAt:  confirmed,
		Metadata:     u.UserMetadata,
	}
}

type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	RefreshToken string        `json:"refresh_token"`
	User         *userResponse `json:"user"`
}

// signUpResponse is either a bare user, when confirmation is pending, or a
// token response carrying the user.
type signUpResponse struct {
	tokenResponse
	userResponse
}

func (c *Client) sessionFrom(res tokenResponse) (*holocrypt.Session, error) {
	if res.AccessToken == "" {
		return nil, holocrypt.NewTransientError(msgUnavailable, fmt.Errorf("token response without access token"))
	}

	session := &holocrypt.Session{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		TokenType:    res.TokenType,
		User:         res.User.toUser(),
	}

	switch {
	case res.ExpiresAt > 0:
		session.ExpiresAt = time.Unix(res.ExpiresAt, 0).UTC()
	case res.ExpiresIn > 0:
		session.ExpiresAt = c.now().Add(time.Duration(res.ExpiresIn) * time.Second).UTC()
	}

	if session.ExpiresAt.IsZero() || session.User == nil {
		claims, err := c.verifier.Parse(res.AccessToken)
		if err != nil {
			return nil, holocrypt.NewAuthenticationError("Invalid access token", err)
		}
		if session.ExpiresAt.IsZero() {
			session.ExpiresAt = claims.Expiry()
		}
		if session.User == nil {
			session.User = claims.User()
		}
	}

	return session, nil
}

// do sends one JSON request. bearer defaults to the public key.
func (c *Client) do(ctx context.Context, path string, query url.Values, body any, bearer string, out any) error {
	endpoint := c.base.JoinPath(path)
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("supabase: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), reader)
	if err != nil {
		return holocrypt.NewConfigurationError(msgUnreachable, err)
	}

	if bearer == "" {
		bearer = c.key
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Client-Info", clientInfo)

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return classifyTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus(resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return holocrypt.NewTransientError(msgUnavailable, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn implements sessionstore.Backend
func (c *Client) SignIn(ctx context.Context, email, password string) (*holocrypt.Session, error) {
	var res tokenResponse
	err := c.do(ctx, tokenPath, url.Values{"grant_type": {"password"}}, credentials{email, password}, "", &res)
	if err != nil {
		return nil, err
	}
	return c.sessionFrom(res)
}

// SignUp implements sessionstore.Backend. The response is a bare user
// while confirmation is pending, a token response otherwise.
func (c *Client) SignUp(ctx context.Context, email, password string) (*holocrypt.User, error) {
	var res signUpResponse
	if err := c.do(ctx, signUpPath, nil, credentials{email, password}, "", &res); err != nil {
		return nil, err
	}
	if u := res.tokenResponse.User.toUser(); u != nil {
		return u, nil
	}
	return res.userResponse.toUser(), nil
}

// Refresh implements sessionstore.Backend
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*holocrypt.Session, error) {
	var res tokenResponse
	err := c.do(ctx, tokenPath, url.Values{"grant_type": {"refresh_token"}}, map[string]string{
		"refresh_token": refreshToken,
	}, "", &res)
	if err != nil {
		return nil, err
	}
	return c.sessionFrom(res)
}

// SignOut implements sessionstore.Backend
func (c *Client) SignOut(ctx context.Context, session *holocrypt.Session) error {
	return c.do(ctx, logoutPath, nil, nil, session.AccessToken, nil)
}
