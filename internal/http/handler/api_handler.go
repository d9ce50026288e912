package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/linktoolkit/linktoolkit/internal/app/model"
	"github.com/linktoolkit/linktoolkit/internal/app/repository"
	"github.com/linktoolkit/linktoolkit/internal/app/service"
	"github.com/linktoolkit/linktoolkit/internal/http/middleware"
	"github.com/linktoolkit/linktoolkit/internal/infra/metrics"
	"go.uber.org/zap"
)

// APIDeps groups dependencies required by the management API handlers.
type APIDeps struct {
	Logger    *zap.Logger
	Links     service.LinkService
	Analytics service.AnalyticsService
	Metrics   *metrics.Metrics
	BaseURL   string
}

// APIHandler implements link creation, listing, claiming, and analytics.
type APIHandler struct {
	logger    *zap.Logger
	links     service.LinkService
	analytics service.AnalyticsService
	metrics   *metrics.Metrics
	baseURL   string
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:    logger,
		links:     deps.Links,
		analytics: deps.Analytics,
		metrics:   deps.Metrics,
		baseURL:   strings.TrimRight(deps.BaseURL, "/"),
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	{
		links := api.Group("/links")
		{
			links.Post("/", h.CreateLink)
			links.Get("/", h.ListLinks)
			links.Post("/claim", h.ClaimLinks)
			links.Get("/:alias/analytics", h.LinkAnalytics)
		}
	}
}

// CreateLinkRequest represents the request body for shortening a URL.
type CreateLinkRequest struct {
	LongURL string `json:"long_url"`
	Alias   string `json:"alias,omitempty"`
	Expiry  string `json:"expiry,omitempty"`
}

// CreateLinkResponse represents the response for a created link.
type CreateLinkResponse struct {
	ShortURL  string    `json:"short_url"`
	LongURL   string    `json:"long_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateLink handles POST /api/links.
func (h *APIHandler) CreateLink(c *fiber.Ctx) error {
	var req CreateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.LongURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "long_url is required",
		})
	}

	input := service.CreateLinkInput{
		LongURL: req.LongURL,
		Alias:   req.Alias,
		Expiry:  req.Expiry,
	}
	if userID, ok := middleware.OwnerUserID(c); ok {
		input.UserID = &userID
	} else if sessionID, ok := middleware.OwnerSessionID(c); ok {
		input.SessionID = &sessionID
	}

	ctx := requestContext(c)
	link, err := h.links.CreateLink(ctx, input)
	if err != nil {
		return h.createError(c, err)
	}

	if h.metrics != nil {
		h.metrics.LinksCreated.Inc()
	}

	return c.Status(fiber.StatusCreated).JSON(CreateLinkResponse{
		ShortURL:  h.shortURL(link.ShortAlias),
		LongURL:   link.LongURL,
		ExpiresAt: link.ExpiresAt,
	})
}

func (h *APIHandler) createError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrReservedAlias),
		errors.Is(err, service.ErrInvalidAlias),
		errors.Is(err, service.ErrInvalidExpiry):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, repository.ErrAliasTaken):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "alias already taken",
		})
	default:
		h.logger.Error("failed to create link", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create link",
		})
	}
}

// LinkListEntry is one row of the owner's link listing.
type LinkListEntry struct {
	ShortURL    string    `json:"short_url"`
	LongURL     string    `json:"long_url"`
	TotalClicks int64     `json:"total_clicks"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ListLinks handles GET /api/links for the authenticated owner.
func (h *APIHandler) ListLinks(c *fiber.Ctx) error {
	userID, ok := middleware.OwnerUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "owner identity required",
		})
	}

	summaries, err := h.links.ListLinksForUser(requestContext(c), userID)
	if err != nil {
		h.logger.Error("failed to list links", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list links",
		})
	}

	entries := make([]LinkListEntry, len(summaries))
	for i, s := range summaries {
		entries[i] = LinkListEntry{
			ShortURL:    h.shortURL(s.Link.ShortAlias),
			LongURL:     s.Link.LongURL,
			TotalClicks: s.TotalClicks,
			CreatedAt:   s.Link.CreatedAt,
			ExpiresAt:   s.Link.ExpiresAt,
		}
	}

	return c.JSON(fiber.Map{
		"links": entries,
		"count": len(entries),
	})
}

// ClaimLinksRequest represents the bulk claim of anonymous-session links.
type ClaimLinksRequest struct {
	UserID    uuid.UUID `json:"user_id"`
	SessionID uuid.UUID `json:"session_id"`
}

// ClaimLinks handles POST /api/links/claim, invoked by the boundary layer
// when an anonymous visitor registers or logs in. Idempotent.
func (h *APIHandler) ClaimLinks(c *fiber.Ctx) error {
	var req ClaimLinksRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.UserID == uuid.Nil || req.SessionID == uuid.Nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id and session_id are required",
		})
	}

	claimed, err := h.links.ClaimLinks(requestContext(c), req.UserID, req.SessionID)
	if err != nil {
		h.logger.Error("failed to claim links", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to claim links",
		})
	}

	return c.JSON(fiber.Map{
		"claimed": claimed,
	})
}

// LinkAnalytics handles GET /api/links/:alias/analytics. Only the owning
// identity may view; an expired alias 404s like an unknown one.
func (h *APIHandler) LinkAnalytics(c *fiber.Ctx) error {
	alias := c.Params("alias")
	ctx := requestContext(c)

	link, err := h.links.Resolve(ctx, alias)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return c.SendStatus(fiber.StatusNotFound)
		}
		h.logger.Error("failed to load link for analytics", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	if !h.ownsLink(c, link) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "not the owner of this link",
		})
	}

	analytics, err := h.analytics.AnalyticsFor(ctx, link.ID)
	if err != nil {
		h.logger.Error("failed to compute analytics", zap.String("alias", alias), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to compute analytics",
		})
	}

	return c.JSON(analytics)
}

// ownsLink checks the requesting identity against the link's owner. Orphaned
// links (no owner, no session) are viewable by nobody.
func (h *APIHandler) ownsLink(c *fiber.Ctx, link *model.Link) bool {
	if link.UserID != nil {
		userID, ok := middleware.OwnerUserID(c)
		return ok && userID == *link.UserID
	}
	if link.AnonymousSessionID != nil {
		sessionID, ok := middleware.OwnerSessionID(c)
		return ok && sessionID == *link.AnonymousSessionID
	}
	return false
}

func (h *APIHandler) shortURL(alias string) string {
	return fmt.Sprintf("%s/%s", h.baseURL, alias)
}

func requestContext(c *fiber.Ctx) context.Context {
	if ctx := c.UserContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}
