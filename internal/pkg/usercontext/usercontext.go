package usercontext

import "github.com/gofiber/fiber/v2"

// HeaderUserID carries the caller supplied owner reference for a payment.
const HeaderUserID = "X-User-ID"

const localsKey = "USER_CONTEXT"

// UserContext represents the caller of a request
type UserContext struct {
	UserID string `json:"user_id"`
}

// Set stores the user context for the current request
func Set(c *fiber.Ctx, uc UserContext) {
	c.Locals(localsKey, uc)
}

// GetUserContext retrieves the user context from fiber context
// Returns an anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(localsKey).(UserContext); ok {
		return ctx
	}
	return UserContext{}
}

// OwnerID returns the caller's user id or nil for anonymous requests
func OwnerID(c *fiber.Ctx) *string {
	id := GetUserContext(c).UserID
	if id == "" {
		return nil
	}
	return &id
}
