package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/linktoolkit/linktoolkit/internal/app/service"
	inthttp "github.com/linktoolkit/linktoolkit/internal/http/handler"
	"github.com/linktoolkit/linktoolkit/internal/http/middleware"
	"github.com/linktoolkit/linktoolkit/internal/infra/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies bundles everything the HTTP server needs wired in.
type Dependencies struct {
	Logger    *zap.Logger
	Redis     *redis.Client
	Links     service.LinkService
	Analytics service.AnalyticsService
	Clicks    *service.ClickPublisher
	Metrics   *metrics.Metrics
	BaseURL   string
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with default routes.
func New(deps Dependencies) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerRoutes()
	return s
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the underlying fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) registerRoutes() {
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.CORS())
	s.app.Use(middleware.OwnerIdentity())

	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:    s.deps.Logger,
		Links:     s.deps.Links,
		Analytics: s.deps.Analytics,
		Metrics:   s.deps.Metrics,
		BaseURL:   s.deps.BaseURL,
	})
	if s.deps.Redis != nil {
		s.app.Use("/api", middleware.RateLimit(s.deps.Redis, middleware.DefaultRateLimitConfig(), s.deps.Logger))
	}
	apiHandler.Register(s.app)

	// Registered last: /:alias would otherwise shadow /api and /health.
	redirectHandler := inthttp.NewRedirectHandler(inthttp.RedirectDeps{
		Logger:  s.deps.Logger,
		Links:   s.deps.Links,
		Clicks:  s.deps.Clicks,
		Metrics: s.deps.Metrics,
	})
	redirectHandler.Register(s.app)
}
