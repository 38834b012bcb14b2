package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/ApexAgent/app/controllers"
	"github.com/ManuelReschke/ApexAgent/app/repository"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/constants"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/env"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/middleware"
)

type ApiRouter struct {
	// Storage holds limiter counters. Nil keeps them in process memory.
	Storage fiber.Storage
	// Users resolves API keys. Nil falls back to the global repository factory.
	Users middleware.APIKeyUsers
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// The platform retries webhooks on its own schedule, so the webhook route
	// is registered ahead of the rate limited group.
	app.Post(constants.WebhookRoute, controllers.HandleWebhook)

	api := app.Group(constants.APIRoute, limiter.New(limiter.Config{
		Max:        env.GetEnvInt("API_RATE_LIMIT", 120),
		Expiration: time.Minute,
		Storage:    h.Storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many requests"})
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	users := h.Users
	if users == nil {
		users = repository.GetGlobalFactory().GetUserRepository()
	}

	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware(users))
	v1.Get("/account", controllers.HandleGetAccount)

	meetings := v1.Group("/meetings")
	meetings.Get("/", controllers.HandleListMeetings)
	meetings.Post("/", controllers.HandleCreateMeeting)
	meetings.Post("/token", controllers.HandleGenerateToken)
	meetings.Get("/:id", controllers.HandleGetMeeting)
	meetings.Patch("/:id", controllers.HandleUpdateMeeting)
	meetings.Delete("/:id", controllers.HandleDeleteMeeting)
	meetings.Post("/:id/cancel", controllers.HandleCancelMeeting)

	agents := v1.Group("/agents")
	agents.Get("/", controllers.HandleListAgents)
	agents.Post("/", controllers.HandleCreateAgent)
	agents.Get("/:id", controllers.HandleGetAgent)
	agents.Patch("/:id", controllers.HandleUpdateAgent)
	agents.Delete("/:id", controllers.HandleDeleteAgent)
}

func NewApiRouter(storage fiber.Storage) *ApiRouter {
	return &ApiRouter{Storage: storage}
}
