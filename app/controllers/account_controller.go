package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ApexAgent/app/repository"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/usercontext"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/utils"
)

// HandleGetAccount returns account information for the API key's owner.
func HandleGetAccount(c *fiber.Ctx) error {
	return getAccount(c, repository.GetGlobalFactory().GetUserRepository())
}

func getAccount(c *fiber.Ctx, users repository.UserRepository) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsAuthenticated {
		return unauthorized(c)
	}

	account, err := users.GetByID(c.UserContext(), userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	return c.JSON(fiber.Map{
		"id":                   account.ID,
		"name":                 account.Name,
		"email":                account.Email,
		"image":                utils.AvatarURL(account.Image, account.Email),
		"status":               account.Status,
		"created_at":           account.CreatedAt.UTC().Format(time.RFC3339),
		"api_key_prefix":       account.APIKeyPrefix,
		"api_key_created_at":   formatTimePtr(account.APIKeyCreatedAt),
		"api_key_last_used_at": formatTimePtr(account.APIKeyLastUsedAt),
	})
}
