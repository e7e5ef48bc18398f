package main

import (
	"context"
	"log"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"swiftbase/infrastructure/config"
	"swiftbase/infrastructure/persistence/sqlite"
)

func main() {
	var (
		configPath = pflag.String("config", "", "path to YAML config file")
		rollback   = pflag.Bool("rollback", false, "revert the last applied migration instead of migrating forward")
	)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer logger.Sync()

	kernel, err := sqlite.Open(cfg.DatabasePath, logger)
	if err != nil {
		logger.Fatal("opening database", zap.Error(err))
	}
	defer kernel.Close()

	ctx := context.Background()
	if *rollback {
		if err := kernel.Rollback(ctx); err != nil {
			logger.Fatal("rollback failed", zap.Error(err))
		}
	} else {
		if err := kernel.Migrate(ctx); err != nil {
			logger.Fatal("migration failed", zap.Error(err))
		}
	}

	version, err := kernel.SchemaVersion(ctx)
	if err != nil {
		logger.Fatal("reading schema version", zap.Error(err))
	}
	logger.Info("done", zap.Int("schema_version", version))
}
