package holocrypt

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// GuardDecision is the outcome of the route guard for one request
type GuardDecision int

const (
	GuardRender GuardDecision = iota
	GuardLoading
	GuardRedirect
)

func (d GuardDecision) String() string {
	switch d {
	case GuardRender:
		return "render"
	case GuardLoading:
		return "loading"
	case GuardRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decide maps an AuthState to a guard decision. Loading wins over a user
// being present.
func Decide(s AuthState) GuardDecision {
	switch {
	case s.Loading:
		return GuardLoading
	case s.Session == nil:
		return GuardRedirect
	default:
		return GuardRender
	}
}

// GuardConfig configures ProtectedRoute
type GuardConfig struct {
	// LoginPath is where unauthenticated requests go
	LoginPath string
	// LoadingView is rendered while the client session is unresolved
	LoadingView string
	// Grace is how long a request waits for the first resolution before the
	// loading view is used. Zero renders it right away.
	Grace   time.Duration
	Metrics *Metrics
	Logger  Logger
}

// AuthStateLocalsKey holds the AuthState the guard decided on
const AuthStateLocalsKey = "auth_state"

// ProtectedRoute gates the handlers after it on the client auth state. It
// must run after ClientScope.
func ProtectedRoute(cfg GuardConfig) fiber.Handler {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.LoadingView == "" {
		cfg.LoadingView = "loading"
	}
	cfg.Logger = normalizeLogger(cfg.Logger)

	return func(c *fiber.Ctx) error {
		client, err := ClientFromCtx(c)
		if err != nil {
			return err
		}

		if cfg.Grace > 0 {
			waitCtx, cancel := context.WithTimeout(c.UserContext(), cfg.Grace)
			client.Auth.WaitLoaded(waitCtx)
			cancel()
		}

		state := client.Auth.Revalidate(c.UserContext())
		decision := Decide(state)
		cfg.Metrics.guard(decision)

		switch decision {
		case GuardLoading:
			c.Set(fiber.HeaderCacheControl, "no-store")
			return c.Render(cfg.LoadingView, ViewContext(c, fiber.Map{
				"path": c.OriginalURL(),
			}))
		case GuardRedirect:
			cfg.Logger.Debug("guard redirect", "client_id", client.ID, "path", c.Path())
			return c.Redirect(cfg.LoginPath, fiber.StatusSeeOther)
		}

		c.Locals(AuthStateLocalsKey, state)
		return c.Next()
	}
}
