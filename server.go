package holocrypt

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/django/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-holocrypt/middleware/csrf"
	"github.com/goliatone/go-holocrypt/middleware/jwtware"
)

// ShutdownTimeout bounds graceful shutdown of the HTTP server
const ShutdownTimeout = 5 * time.Second

// ServerOptions wires the collaborators of a Server
type ServerOptions struct {
	Config  Config
	Factory StoreFactory
	Logger  Logger
	// Metrics and Gatherer enable /metrics when both are set
	Metrics  *Metrics
	Gatherer prometheus.Gatherer
	Activity ActivitySink
	// TokenValidator enables the bearer protected /api/v1/me
	TokenValidator jwtware.TokenValidator
	// CSRFKey signs form tokens, a random key is used when empty
	CSRFKey []byte
}

// Server is the HTTP front-end: one fiber app plus the client registry
type Server struct {
	app      *fiber.App
	registry *Registry
	config   Config
	logger   Logger
}

// NewServer builds the fiber app and mounts every route
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("server: config is required")
	}
	if opts.Factory == nil {
		return nil, errors.New("server: session store factory is required")
	}

	cfg := opts.Config
	logger := normalizeLogger(opts.Logger)

	engine := django.NewFileSystem(http.FS(ViewsFS()), ".html")
	engine.Debug(cfg.GetDebug())

	app := fiber.New(fiber.Config{
		AppName:               AppName,
		Views:                 engine,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: cfg.GetDebug()}))
	app.Use(requestLogger(logger))

	app.Use("/static", filesystem.New(filesystem.Config{
		Root:   http.FS(PublicFS()),
		MaxAge: 3600,
	}))

	if opts.Metrics != nil && opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(
			promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}),
		)).Name("metrics")
	}

	registry := NewRegistry(opts.Factory,
		WithRegistryLogger(logger),
		WithRegistryMetrics(opts.Metrics),
		WithClientTTL(cfg.GetClientTTL()),
		WithSweepInterval(cfg.GetSweepInterval()),
		WithMaxLoginAttempts(cfg.GetMaxLoginAttempts()),
		WithMaxClients(cfg.GetMaxClientScopes()),
	)

	app.Use(ClientScope(ClientScopeConfig{
		Registry:   registry,
		CookieName: cfg.GetClientCookieName(),
		MaxAge:     cfg.GetClientTTL(),
		Secure:     cfg.GetSecureCookies(),
		Logger:     logger,
		Skip:       isHealthCheck,
	}))

	if cfg.GetCSRFEnabled() {
		app.Use(csrf.New(csrf.Config{
			SecureKey:    opts.CSRFKey,
			SessionKey:   clientSessionKey,
			Skip:         isAPIRequest,
			ErrorHandler: csrfErrorHandler(logger),
		}))
		csrf.RegisterRoutes(app)
	}

	guard := ProtectedRoute(GuardConfig{
		LoginPath: "/login",
		Grace:     cfg.GetLoadingGrace(),
		Metrics:   opts.Metrics,
		Logger:    logger,
	})

	pages := NewPagesController(logger)
	RegisterPageRoutes(app, pages, guard)

	controller := NewAuthController(
		WithControllerDebug(cfg.GetDebug()),
		WithControllerLogger(logger),
		WithControllerMetrics(opts.Metrics),
		WithControllerActivity(opts.Activity),
		WithControllerTimeout(cfg.GetRequestTimeout()),
	)
	RegisterAuthRoutes(app, controller)

	var bearer fiber.Handler
	if opts.TokenValidator != nil {
		bearer = jwtware.New(jwtware.Config{
			TokenValidator: opts.TokenValidator,
			ContextKey:     pages.ClaimsKey,
		})
	}
	RegisterAPIRoutes(app.Group("/api/v1"), pages, bearer)

	return &Server{
		app:      app,
		registry: registry,
		config:   cfg,
		logger:   logger,
	}, nil
}

// App exposes the fiber app, mostly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Registry returns the client registry
func (s *Server) Registry() *Registry {
	return s.registry
}

// Run serves on the configured address and sweeps idle clients until ctx
// is done, then shuts both down.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.registry.Run(gctx)
	})

	g.Go(func() error {
		s.logger.Info("http server listening", "addr", s.config.GetAddr())
		return s.app.Listen(s.config.GetAddr())
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("http server shutting down")
		return s.app.ShutdownWithTimeout(ShutdownTimeout)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases every client scope
func (s *Server) Close() error {
	s.registry.Close()
	return nil
}

func clientSessionKey(c *fiber.Ctx) string {
	client, err := ClientFromCtx(c)
	if err != nil {
		return "ip_" + strings.ReplaceAll(c.IP(), ":", "_")
	}
	return "client_" + client.ID
}

// health checks get no client scope
func isHealthCheck(c *fiber.Ctx) bool {
	return c.Path() == "/api/v1/health"
}

func isAPIRequest(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Path(), "/api/")
}

func csrfErrorHandler(logger Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		logger.Warn("csrf rejected", "path", c.Path(), "error", err)
		return fiber.NewError(fiber.StatusForbidden, "Your form expired. Please reload the page and try again.")
	}
}

func requestLogger(logger Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Debug("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration", time.Since(start),
		)
		return err
	}
}

func errorHandler(logger Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Something went wrong. Please try again in a moment."

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else {
			logger.Error("unhandled error", "path", c.Path(), "error", err)
		}

		if isAPIRequest(c) {
			return c.Status(code).JSON(fiber.Map{"error": message})
		}

		if rerr := c.Status(code).Render("errors/500", ViewContext(c, fiber.Map{
			"status":  code,
			"message": message,
		})); rerr != nil {
			logger.Error("render error page", "error", rerr)
			return c.Status(code).SendString(message)
		}
		return nil
	}
}
