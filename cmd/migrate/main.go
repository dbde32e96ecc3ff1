// Package main applies the database migrations.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/jnst/theshop-core/internal/config"
	"github.com/jnst/theshop-core/internal/db"
	"github.com/jnst/theshop-core/internal/logger"
)

const exitCode = 1

func main() {
	direction := flag.String("direction", db.DirectionUp, "migration direction: up or down")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	log := logger.Setup(logger.Options{
		Service: "theshop-migrate",
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	if err := db.Migrate(cfg.DatabaseURL, *direction); err != nil {
		log.Error("migration failed", slog.String("direction", *direction), slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	log.Info("migration complete", slog.String("direction", *direction))
}
