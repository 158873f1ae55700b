package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/flexprice/pullpay/internal/config"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/postgres"
)

func main() {
	// Parse command line flags
	dryRun := flag.Bool("dry-run", false, "List pending migrations without applying them")
	flag.Parse()

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	logger.Infow("Connecting to database", "host", cfg.Postgres.Host, "dbname", cfg.Postgres.DBName)
	db, err := postgres.NewDB(cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to connect to postgres", "error", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *dryRun {
		logger.Info("Dry run mode - listing pending migrations")
		pending, err := db.PendingMigrations(ctx)
		if err != nil {
			logger.Fatalw("Failed to list pending migrations", "error", err)
		}
		for _, version := range pending {
			fmt.Println(version)
		}
		return
	}

	logger.Info("Running database migrations...")
	if err := db.Migrate(ctx); err != nil {
		logger.Fatalw("Failed to apply migrations", "error", err)
	}
	logger.Info("Migration completed successfully")

	fmt.Println("Migration process completed")
}
