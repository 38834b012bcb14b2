package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/ApexAgent/app/controllers"
	"github.com/ManuelReschke/ApexAgent/app/repository"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/cache"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/constants"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/database"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/env"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/router"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/streamvideo"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/webhook"
)

const openAPIFile = "public/docs/v1/openapi.yml"

func main() {
	app, shutdown := NewApplication()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("[Server] Shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Errorf("[Server] Shutdown: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	shutdown()
	if err != nil {
		log.Fatal(err)
	}
}

// NewApplication wires the process and returns the HTTP app together with a
// function releasing the background workers and live agent connections.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	repository.InitializeFactory(database.GetDB())
	cache.SetupCache()

	factory := repository.GetGlobalFactory()
	platform := streamvideo.NewClient(streamvideo.NewConfigFromEnv())

	// background jobs
	manager := jobqueue.GetManager()
	queue := manager.GetQueue()
	processor := jobqueue.NewMeetingProcessor(
		factory.GetMeetingRepository(),
		factory.GetAgentRepository(),
		factory.GetUserRepository(),
		nil,
	)
	queue.Handle(jobqueue.JobTypeMeetingProcessing, processor.Handle)
	reconcileEvery := time.Duration(env.GetEnvInt("PROCESSING_RECONCILE_MINUTES", 30)) * time.Minute
	manager.SetReconciler(jobqueue.NewReconciler(queue, factory.GetMeetingRepository(), reconcileEvery))
	manager.Start()

	// controllers
	dispatcher := webhook.NewDispatcher(webhook.Dependencies{
		Meetings: factory.GetMeetingRepository(),
		Agents:   factory.GetAgentRepository(),
		Platform: webhook.NewStreamPlatform(platform),
		Notifier: jobqueue.NewNotifier(queue),
	})
	controllers.InitializeWebhookController(platform, dispatcher, webhook.NewDeliveries(factory.GetWebhookDeliveryRepository()))
	controllers.InitializeMeetingController(platform)
	controllers.InitializeAgentController()

	basePath := findBasePath()

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 4 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get(constants.MetricsRoute, basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	if basePath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: constants.DocsRoute,
			FilePath: basePath + openAPIFile,
			Path:     "v1",
		}))
	} else {
		log.Warnf("[Server] %s not found, API docs disabled", openAPIFile)
	}

	// ROUTER
	router.InstallRouter(app, limiterStorage())

	shutdown := func() {
		manager.Stop()
		platform.Sessions().CloseAll()
	}
	return app, shutdown
}

func findBasePath() string {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/apexagent to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		if _, err := os.Stat(path + openAPIFile); err == nil {
			return path
		}
	}
	return ""
}

// limiterStorage shares rate limit counters through Redis when it is
// reachable and keeps them in memory otherwise.
func limiterStorage() fiber.Storage {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cache.GetClient().Ping(ctx).Err(); err != nil {
		log.Warnf("[Server] Redis unavailable, rate limits are per process: %v", err)
		return nil
	}
	return cache.NewLimiterStorage()
}
