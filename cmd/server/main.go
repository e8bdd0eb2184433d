package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaweee/BEventique-sub000/internal/config"
	"github.com/chaweee/BEventique-sub000/internal/database"
	"github.com/chaweee/BEventique-sub000/internal/logger"
	"github.com/chaweee/BEventique-sub000/internal/realtime"
	"github.com/chaweee/BEventique-sub000/internal/repository"
	"github.com/chaweee/BEventique-sub000/internal/routes"
	"github.com/chaweee/BEventique-sub000/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database
	if cfg.DBUrl == "" {
		appLogger.Fatal("DB_URL is required")
	}
	pool, err := database.ConnectDB(ctx, cfg.DBUrl)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()
	appLogger.Info("Connected to PostgreSQL")

	// 3. Realtime fanout, optionally relayed through Redis
	hub := realtime.NewHub(appLogger.Named("hub"))
	var notifier services.Notifier = hub
	relayDone := make(chan struct{})
	if cfg.RelayEnabled() {
		redisClient, err := realtime.InitRedis(cfg.RedisURL)
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()

		relay := realtime.NewRedisRelay(redisClient, cfg.RedisChannelPrefix, hub, appLogger.Named("relay"))
		notifier = relay
		go func() {
			defer close(relayDone)
			relay.Run(ctx)
		}()
	} else {
		close(relayDone)
	}

	// 4. Attachment storage
	var storage services.StorageService
	if cfg.StorageEnabled() {
		minioStorage, err := services.NewMinioStorageService(
			cfg.MinioEndpoint,
			cfg.MinioAccessKey,
			cfg.MinioSecretKey,
			cfg.MinioBucket,
			cfg.MinioUseSSL,
		)
		if err != nil {
			appLogger.Fatal("Failed to configure attachment storage", zap.Error(err))
		}
		if err := minioStorage.EnsureBucket(ctx); err != nil {
			appLogger.Fatal("Failed to prepare attachment bucket", zap.Error(err))
		}
		storage = minioStorage
	}

	// 5. Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(cors.New())
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	// Routes
	store := repository.NewInquiryStore(pool)
	if err := routes.RegisterRoutes(app, cfg, routes.Dependencies{
		Store:    store,
		Hub:      hub,
		Notifier: notifier,
		Storage:  storage,
		Ready:    store.Ping,
		Logger:   appLogger,
	}); err != nil {
		appLogger.Fatal("Failed to register routes", zap.Error(err))
	}

	// 6. Start Server
	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Server starting", zap.String("port", cfg.Port))
		serverErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			appLogger.Error("Server failed", zap.Error(err))
		}
	case <-ctx.Done():
		appLogger.Info("Shutting down")
	}

	stop()
	hub.Shutdown()
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	<-relayDone
}
