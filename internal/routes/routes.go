package routes

import (
	"context"
	"time"

	"github.com/chaweee/BEventique-sub000/internal/config"
	"github.com/chaweee/BEventique-sub000/internal/handlers"
	"github.com/chaweee/BEventique-sub000/internal/middleware"
	"github.com/chaweee/BEventique-sub000/internal/realtime"
	"github.com/chaweee/BEventique-sub000/internal/services"
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const readyTimeout = 2 * time.Second

type Dependencies struct {
	Store    services.InquiryStore
	Hub      *realtime.Hub
	Notifier services.Notifier
	Storage  services.StorageService
	Ready    func(ctx context.Context) error
	Logger   *zap.Logger
}

func RegisterRoutes(app *fiber.App, cfg *config.Config, deps Dependencies) error {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = deps.Hub
	}

	assignment, err := services.NewAssignmentPolicy(cfg.Assignment.Strategy, cfg.Assignment.Designers)
	if err != nil {
		return err
	}

	messageService := services.NewMessageService(deps.Store, notifier, logger, cfg.MaxAttachmentBytes)
	threadService := services.NewThreadService(deps.Store, messageService, notifier, assignment, logger)
	attachmentService := services.NewAttachmentService(deps.Storage, deps.Store, int64(cfg.MaxAttachmentBytes), logger)

	inquiryHandler := handlers.NewInquiryHandler(threadService, messageService)
	attachmentHandler := handlers.NewAttachmentHandler(attachmentService)
	realtimeHandler := handlers.NewRealtimeHandler(
		deps.Hub,
		threadService,
		cfg.JWTSecret,
		realtime.ClientOptions{RateLimit: cfg.WSRateLimit, RateBurst: cfg.WSRateBurst},
		logger,
	)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	app.Get("/ready", func(c *fiber.Ctx) error {
		if deps.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Context(), readyTimeout)
			defer cancel()
			if err := deps.Ready(ctx); err != nil {
				logger.Warn("readiness check failed", zap.Error(err))
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
			}
		}
		return c.JSON(fiber.Map{"status": "ready"})
	})
	if cfg.EnableMetrics {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := app.Group("/api")
	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	threads := authProtected.Group("/threads")
	threads.Get("", inquiryHandler.ListThreads)
	threads.Post("", inquiryHandler.CreateThread)
	threads.Post("/escalate", inquiryHandler.EscalateThread)
	threads.Get("/:id", inquiryHandler.GetThread)
	threads.Get("/:id/messages", inquiryHandler.ListMessages)
	threads.Post("/:id/messages", inquiryHandler.SendMessage)
	threads.Put("/:id/status", inquiryHandler.UpdateStatus)
	threads.Put("/:id/designer", inquiryHandler.AssignDesigner)
	threads.Post("/:id/read", inquiryHandler.MarkRead)

	attachments := authProtected.Group("/attachments")
	attachments.Post("", attachmentHandler.Upload)
	attachments.Get("/url", attachmentHandler.SignedURL)

	app.Use("/ws", realtimeHandler.WebSocketAuth)
	app.Get("/ws", websocket.New(realtimeHandler.HandleWebSocket))

	return nil
}
