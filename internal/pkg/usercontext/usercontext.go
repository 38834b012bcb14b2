package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext represents the authenticated caller of an API request
type UserContext struct {
	UserID          string `json:"user_id"`
	Username        string `json:"username"`
	IsAuthenticated bool   `json:"is_authenticated"`
}

// GetUserContext retrieves the user context from fiber context
// Returns an anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{}
}

// Set stores the authenticated user on the request
func Set(c *fiber.Ctx, userCtx UserContext) {
	c.Locals(KeyUserContext, userCtx)
	c.Locals(KeyUserID, userCtx.UserID)
	c.Locals(KeyUsername, userCtx.Username)
}

// IsAuthenticated checks if the request carries a verified user
func IsAuthenticated(c *fiber.Ctx) bool {
	return GetUserContext(c).IsAuthenticated
}

// GetUserID returns the current user's ID, or "" if anonymous
func GetUserID(c *fiber.Ctx) string {
	return GetUserContext(c).UserID
}

// GetUsername returns the current user's name, or empty string if anonymous
func GetUsername(c *fiber.Ctx) string {
	return GetUserContext(c).Username
}
