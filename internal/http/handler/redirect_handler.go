package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/linktoolkit/linktoolkit/internal/app/repository"
	"github.com/linktoolkit/linktoolkit/internal/app/service"
	"github.com/linktoolkit/linktoolkit/internal/infra/metrics"
	"go.uber.org/zap"
)

// RedirectDeps groups dependencies required by the redirect handler.
type RedirectDeps struct {
	Logger  *zap.Logger
	Links   service.LinkService
	Clicks  *service.ClickPublisher
	Metrics *metrics.Metrics
}

// RedirectHandler serves the hot path: alias in, Location header out.
type RedirectHandler struct {
	logger  *zap.Logger
	links   service.LinkService
	clicks  *service.ClickPublisher
	metrics *metrics.Metrics
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger:  logger,
		links:   deps.Links,
		clicks:  deps.Clicks,
		metrics: deps.Metrics,
	}
}

// Register wires the redirect routes onto the provided router.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
	router.Get("/:alias", h.Resolve)
}

// Health is a simple root endpoint so we know the service is running.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "linktoolkit",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Resolve handles GET /:alias. Expired and unknown aliases produce the same
// 404 so the two cases cannot be told apart from outside. A hit dispatches
// the click event to the ingestion pipeline without waiting on it.
func (h *RedirectHandler) Resolve(c *fiber.Ctx) error {
	alias := c.Params("alias")
	if alias == "" {
		return c.SendStatus(fiber.StatusNotFound)
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	link, err := h.links.Resolve(ctx, alias)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return c.SendStatus(fiber.StatusNotFound)
		}
		h.logger.Error("failed to resolve alias", zap.String("alias", alias), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	if h.clicks != nil {
		h.clicks.Publish(link.ID, c.IP(), c.Get(fiber.HeaderUserAgent), c.Get(fiber.HeaderReferer))
	}
	if h.metrics != nil {
		h.metrics.Redirects.Inc()
	}

	// Expiry and ownership must be re-evaluated on every visit.
	c.Set(fiber.HeaderCacheControl, "no-cache, no-store, must-revalidate")
	c.Set(fiber.HeaderPragma, "no-cache")
	c.Set(fiber.HeaderExpires, "0")

	return c.Redirect(link.LongURL, fiber.StatusFound)
}
