package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ApexAgent/internal/pkg/constants"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/usercontext"
)

var validate = validator.New()

// pageResponse is the envelope of every paginated listing
type pageResponse struct {
	Items      interface{} `json:"items"`
	Total      int64       `json:"total"`
	TotalPages int64       `json:"totalPages"`
}

// parsePaging reads page and pageSize, clamped to the allowed range
func parsePaging(c *fiber.Ctx) (int, int) {
	page := c.QueryInt("page", constants.DefaultPage)
	if page < 1 {
		page = constants.DefaultPage
	}
	pageSize := c.QueryInt("pageSize", constants.DefaultPageSize)
	if pageSize < constants.MinPageSize {
		pageSize = constants.MinPageSize
	}
	if pageSize > constants.MaxPageSize {
		pageSize = constants.MaxPageSize
	}
	return page, pageSize
}

func totalPages(total int64, pageSize int) int64 {
	if pageSize <= 0 || total == 0 {
		return 0
	}
	return (total + int64(pageSize) - 1) / int64(pageSize)
}

// requireUser returns the authenticated user id or writes a 401
func requireUser(c *fiber.Ctx) (string, bool) {
	userID := usercontext.GetUserID(c)
	if userID == "" || !usercontext.IsAuthenticated(c) {
		return "", false
	}
	return userID, true
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
}

// validationError flattens validator errors into "field: rule" messages
func validationError(c *fiber.Ctx, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, lowerFirst(fe.Field())+": "+fe.Tag())
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request", "fields": fields})
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
