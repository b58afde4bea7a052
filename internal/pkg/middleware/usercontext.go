package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayFox/internal/pkg/usercontext"
)

const maxUserIDLength = 191

// UserContextMiddleware reads the optional owner reference from the X-User-ID
// header. Identity is asserted by the upstream gateway, not verified here.
func UserContextMiddleware(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Get(usercontext.HeaderUserID))
	if len(id) > maxUserIDLength {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "X-User-ID header is too long",
		})
	}
	usercontext.Set(c, usercontext.UserContext{UserID: id})
	return c.Next()
}
