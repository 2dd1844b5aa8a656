package holocrypt

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var clientCtxKey = &contextKey{"client"}

type contextKey struct {
	name string
}

// ClientLocalsKey is the fiber locals key holding the *Client
const ClientLocalsKey = "holocrypt_client"

// WithClientContext sets the client scope in the given context
func WithClientContext(ctx context.Context, client *Client) context.Context {
	return context.WithValue(ctx, clientCtxKey, client)
}

// ClientFromContext finds the client scope in the context
func ClientFromContext(ctx context.Context) (*Client, bool) {
	raw, ok := ctx.Value(clientCtxKey).(*Client)
	return raw, ok && raw != nil
}

// ClientFromCtx returns the client scope attached by ClientScope
func ClientFromCtx(c *fiber.Ctx) (*Client, error) {
	raw := c.Locals(ClientLocalsKey)
	if raw == nil {
		return nil, ErrUnableToFindClient
	}
	client, ok := raw.(*Client)
	if !ok || client == nil {
		return nil, ErrUnableToFindClient
	}
	return client, nil
}

// ClientScopeConfig configures ClientScope
type ClientScopeConfig struct {
	Registry   *Registry
	CookieName string
	// MaxAge is the cookie lifetime, zero keeps a browser session cookie
	MaxAge time.Duration
	Secure bool
	Logger Logger
	// Skip lets requests through without a client scope
	Skip func(*fiber.Ctx) bool
}

// ClientScope attaches the client scope of the caller to the request,
// issuing a new client id cookie when the caller has none or an invalid one.
func ClientScope(cfg ClientScopeConfig) fiber.Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultConfig().Client.CookieName
	}
	cfg.Logger = normalizeLogger(cfg.Logger)

	return func(c *fiber.Ctx) error {
		if cfg.Skip != nil && cfg.Skip(c) {
			return c.Next()
		}

		id := c.Cookies(cfg.CookieName)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}

		client, err := cfg.Registry.Acquire(id)
		if err != nil {
			cfg.Logger.Error("acquire client scope", "client_id", id, "error", err)
			return err
		}

		cookie := &fiber.Cookie{
			Name:     cfg.CookieName,
			Value:    id,
			Path:     "/",
			HTTPOnly: true,
			Secure:   cfg.Secure,
			SameSite: fiber.CookieSameSiteLaxMode,
		}
		if cfg.MaxAge > 0 {
			cookie.MaxAge = int(cfg.MaxAge.Seconds())
		}
		c.Cookie(cookie)

		c.Locals(ClientLocalsKey, client)
		c.SetUserContext(WithClientContext(c.UserContext(), client))
		return c.Next()
	}
}
