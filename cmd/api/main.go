package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"swiftbase/application/services"
	"swiftbase/infrastructure/config"
	"swiftbase/infrastructure/di"
	apperrors "swiftbase/pkg/errors"
)

func main() {
	var (
		configPath = pflag.String("config", "", "path to YAML config file")
		addr       = pflag.String("addr", "", "listen address (overrides config)")
		seed       = pflag.Bool("seed", false, "create the default admin and a demo collection, then continue serving")
	)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}
	if *addr != "" {
		cfg.ServerAddress = *addr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("initializing container: %v", err)
	}

	if *seed {
		if err := runSeed(ctx, container); err != nil {
			container.Logger.Fatal("seeding failed", zap.Error(err))
		}
	}

	container.FileService.StartSweeper(cfg.SweepInterval)

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      container.Handler,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		container.Logger.Info("starting server",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment),
			zap.String("database", cfg.DatabasePath),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			container.Logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	container.Logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		container.Logger.Error("server shutdown", zap.Error(err))
	}

	container.Shutdown()
}

// runSeed ensures the default admin and a demo collection exist. It is
// idempotent; rerunning against a seeded database changes nothing.
func runSeed(ctx context.Context, container *di.Container) error {
	cfg := container.Config
	password := cfg.AdminPassword
	if password == "" {
		password = "changeme-admin"
		container.Logger.Warn("seeding admin with the default password; set SWIFTBASE_ADMIN_PASSWORD")
	}
	if err := container.AuthService.EnsureAdmin(ctx, cfg.AdminUsername, password); err != nil {
		return err
	}

	_, err := container.CollectionService.Create(ctx, services.CreateInput{
		Name:     "demo",
		Metadata: map[string]any{"description": "seeded demo collection"},
	}, nil)
	if err != nil {
		if apperrors.IsConflict(err) {
			return nil
		}
		return err
	}
	container.Logger.Info("seeded demo collection")
	return nil
}
