package holocrypt

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/goliatone/go-holocrypt/middleware/jwtware"
)

const (
	ServiceName    = "HoloCrypt API"
	ServiceVersion = "1.0.0"
)

type PagesViews struct {
	Landing   string
	About     string
	Dashboard string
	Profile   string
}

// PagesController serves the public pages, the guarded pages and the small
// JSON API.
type PagesController struct {
	Views  *PagesViews
	Logger Logger
	// ClaimsKey is the locals key the bearer middleware stores claims under
	ClaimsKey string
}

func NewPagesController(logger Logger) *PagesController {
	return &PagesController{
		Logger:    normalizeLogger(logger),
		ClaimsKey: "user",
		Views: &PagesViews{
			Landing:   "landing",
			About:     "about",
			Dashboard: "dashboard",
			Profile:   "profile",
		},
	}
}

// RegisterPageRoutes mounts the public pages and, behind guard, the
// dashboard and profile.
func RegisterPageRoutes(app fiber.Router, p *PagesController, guard fiber.Handler) {
	app.Get("/", p.Landing).Name("landing")
	app.Get("/about", p.About).Name("about")
	app.Get("/dashboard", guard, p.Dashboard).Name("dashboard")
	app.Get("/profile", guard, p.Profile).Name("profile")
}

// RegisterAPIRoutes mounts the JSON endpoints. bearer protects /me and may
// be nil when no token verifier is configured.
func RegisterAPIRoutes(api fiber.Router, p *PagesController, bearer fiber.Handler) {
	api.Get("/health", p.Health).Name("api.health")
	api.Get("/session", p.Session).Name("api.session")
	if bearer != nil {
		api.Get("/me", bearer, p.Me).Name("api.me")
	}
}

func (p *PagesController) Landing(c *fiber.Ctx) error {
	return c.Render(p.Views.Landing, ViewContext(c, fiber.Map{"active": "/"}))
}

func (p *PagesController) About(c *fiber.Ctx) error {
	return c.Render(p.Views.About, ViewContext(c, fiber.Map{"active": "/about"}))
}

// Dashboard shows the signed in email and a shortened user id
func (p *PagesController) Dashboard(c *fiber.Ctx) error {
	state, _ := c.Locals(AuthStateLocalsKey).(AuthState)
	return c.Render(p.Views.Dashboard, ViewContext(c, fiber.Map{
		"active": "/dashboard",
		"user":   NewUserView(state.User()),
	}))
}

// Profile shows every user attribute the store reported
func (p *PagesController) Profile(c *fiber.Ctx) error {
	state, _ := c.Locals(AuthStateLocalsKey).(AuthState)
	return c.Render(p.Views.Profile, ViewContext(c, fiber.Map{
		"active": "/profile",
		"user":   NewUserView(state.User()),
	}))
}

func (p *PagesController) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": ServiceName,
		"version": ServiceVersion,
	})
}

// SessionResponse is the JSON form of an AuthState
type SessionResponse struct {
	Loading       bool       `json:"loading"`
	Authenticated bool       `json:"authenticated"`
	User          *User      `json:"user"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// NewSessionResponse projects s without exposing any token
func NewSessionResponse(s AuthState) SessionResponse {
	out := SessionResponse{
		Loading:       s.Loading,
		Authenticated: s.Authenticated(),
		User:          s.User(),
	}
	if s.Session != nil && !s.Session.ExpiresAt.IsZero() {
		exp := s.Session.ExpiresAt
		out.ExpiresAt = &exp
	}
	return out
}

// Session reports the auth state of the calling client scope
func (p *PagesController) Session(c *fiber.Ctx) error {
	client, err := ClientFromCtx(c)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(NewSessionResponse(client.Auth.Revalidate(c.UserContext())))
}

// Me echoes the identity carried by a verified bearer token
func (p *PagesController) Me(c *fiber.Ctx) error {
	claims, ok := jwtware.ClaimsFromCtx(c, p.ClaimsKey)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "missing token claims")
	}
	return c.JSON(fiber.Map{
		"id":    claims.UserID(),
		"email": claims.UserEmail(),
	})
}
