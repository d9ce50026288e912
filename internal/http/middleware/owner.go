package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// The core treats ownership as opaque: an authenticated user id or an
// anonymous session id, both minted by the boundary layer. This middleware
// only parses them off the request; it performs no authentication.
const (
	UserIDHeader      = "X-User-ID"
	SessionCookieName = "session_id"

	localUserID    = "owner_user_id"
	localSessionID = "owner_session_id"
)

// OwnerIdentity extracts the opaque owner identity from the request and
// stashes it in locals for handlers.
func OwnerIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if raw := c.Get(UserIDHeader); raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				c.Locals(localUserID, id)
			}
		}
		if raw := c.Cookies(SessionCookieName); raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				c.Locals(localSessionID, id)
			}
		}
		return c.Next()
	}
}

// OwnerUserID returns the authenticated user id, if the request carried one.
func OwnerUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, ok := c.Locals(localUserID).(uuid.UUID)
	return id, ok
}

// OwnerSessionID returns the anonymous session id, if the request carried one.
func OwnerSessionID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, ok := c.Locals(localSessionID).(uuid.UUID)
	return id, ok
}
