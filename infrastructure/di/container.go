package di

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"swiftbase/application/services"
	"swiftbase/infrastructure/config"
	"swiftbase/infrastructure/persistence/sqlite"
	"swiftbase/interfaces/http/rest"
	"swiftbase/interfaces/websocket"
	"swiftbase/pkg/auth"
	"swiftbase/pkg/observability"
)

// Container holds the wired object graph for one server process.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Kernel  *sqlite.Kernel
	Metrics *observability.Metrics

	AuthService       *services.AuthService
	QueryService      *services.QueryService
	CollectionService *services.CollectionService
	FileService       *services.FileService
	AuditRecorder     *services.AuditRecorder
	CustomRegistry    *services.CustomRegistry

	Hub     *websocket.Hub
	Handler http.Handler
}

// ProvideLogger builds the process logger for the configured environment.
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideKernel opens the database and applies pending migrations.
func ProvideKernel(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sqlite.Kernel, error) {
	kernel, err := sqlite.Open(cfg.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	if err := kernel.Migrate(ctx); err != nil {
		kernel.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}
	return kernel, nil
}

// ProvideTokenService builds the JWT signer/verifier.
func ProvideTokenService(cfg *config.Config) *auth.TokenService {
	return auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
}

// NewContainer wires every component from configuration down to the HTTP
// handler.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	kernel, err := ProvideKernel(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics()

	userRepo := sqlite.NewUserRepository()
	adminRepo := sqlite.NewAdminRepository()
	collectionRepo := sqlite.NewCollectionRepository()
	documentRepo := sqlite.NewDocumentRepository()
	fileRepo := sqlite.NewFileRepository()
	auditRepo := sqlite.NewAuditRepository()
	customRepo := sqlite.NewCustomQueryRepository()

	audit := services.NewAuditRecorder(kernel, auditRepo, logger)
	tokens := ProvideTokenService(cfg)
	authsvc := services.NewAuthService(kernel, userRepo, adminRepo, tokens, audit, logger)

	registry := services.NewCustomRegistry()
	services.RegisterBuiltins(registry, collectionRepo, documentRepo)
	if err := registry.Persist(ctx, kernel, customRepo); err != nil {
		kernel.Close()
		return nil, fmt.Errorf("persisting custom query catalog: %w", err)
	}

	hub := websocket.NewHub(logger, metrics)
	queries := services.NewQueryService(kernel, documentRepo, collectionRepo, registry, hub, logger)
	collections := services.NewCollectionService(kernel, collectionRepo, documentRepo, audit, logger)
	files, err := services.NewFileService(kernel, fileRepo, audit, cfg.StorageDir, logger)
	if err != nil {
		kernel.Close()
		return nil, err
	}

	ws := websocket.NewServer(hub, authsvc, logger)
	router := rest.NewRouter(kernel, authsvc, queries, collections, files, registry,
		audit, hub, ws, metrics, cfg.CORSOrigins, logger)

	return &Container{
		Config:            cfg,
		Logger:            logger,
		Kernel:            kernel,
		Metrics:           metrics,
		AuthService:       authsvc,
		QueryService:      queries,
		CollectionService: collections,
		FileService:       files,
		AuditRecorder:     audit,
		CustomRegistry:    registry,
		Hub:               hub,
		Handler:           router.Setup(),
	}, nil
}

// Shutdown tears the container down in dependency order: realtime
// connections, the sweeper, then the database. The HTTP server is drained by
// the caller before this runs.
func (c *Container) Shutdown() {
	c.Hub.Shutdown()
	c.FileService.Stop()
	if err := c.Kernel.Close(); err != nil {
		c.Logger.Error("closing database", zap.Error(err))
	}
	c.Logger.Sync()
}
