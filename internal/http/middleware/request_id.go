package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"

	localRequestID = "request_id"
)

// RequestID propagates or mints a unique id per request so one redirect can
// be traced through the log, the click pipeline, and back.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid := c.Get(RequestIDHeader)
		if rid == "" {
			rid = uuid.New().String()
		}
		c.Set(RequestIDHeader, rid)
		c.Locals(localRequestID, rid)
		return c.Next()
	}
}

// RequestIDFrom returns the request id minted for this request, if any.
func RequestIDFrom(c *fiber.Ctx) (string, bool) {
	rid, ok := c.Locals(localRequestID).(string)
	return rid, ok
}
