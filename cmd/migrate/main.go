package main

import (
	"log"
	"os"

	"github.com/chaweee/BEventique-sub000/internal/database"
	"github.com/chaweee/BEventique-sub000/internal/logger"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// usage: migrate [up|down|steps N|version|force N]
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	appLogger, err := logger.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	dbUrl := os.Getenv("DB_URL")
	if dbUrl == "" {
		appLogger.Fatal("DB_URL environment variable is required")
	}

	cwd, err := os.Getwd()
	if err != nil {
		appLogger.Fatal("Failed to read working directory", zap.Error(err))
	}
	migrationsPath, err := database.FindMigrationsDir(cwd)
	if err != nil {
		appLogger.Fatal("Migrations directory not found", zap.String("cwd", cwd))
	}

	cmd, arg := "up", ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	if len(os.Args) > 2 {
		arg = os.Args[2]
	}

	version, dirty, err := database.Migrate(dbUrl, migrationsPath, cmd, arg)
	if err != nil {
		appLogger.Fatal("Migration failed", zap.String("cmd", cmd), zap.Error(err))
	}
	appLogger.Info("Migration finished",
		zap.String("cmd", cmd),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
}
