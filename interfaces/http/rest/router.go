package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"swiftbase/application/services"
	"swiftbase/infrastructure/persistence/sqlite"
	"swiftbase/interfaces/http/rest/handlers"
	"swiftbase/interfaces/http/rest/middleware"
	"swiftbase/interfaces/websocket"
	"swiftbase/pkg/observability"
)

// Router assembles the middleware stack and every route of the HTTP surface.
type Router struct {
	kernel      *sqlite.Kernel
	authsvc     *services.AuthService
	queries     *services.QueryService
	collections *services.CollectionService
	files       *services.FileService
	registry    *services.CustomRegistry
	audit       *services.AuditRecorder
	hub         *websocket.Hub
	ws          *websocket.Server
	metrics     *observability.Metrics
	corsOrigins []string
	logger      *zap.Logger
}

func NewRouter(
	kernel *sqlite.Kernel,
	authsvc *services.AuthService,
	queries *services.QueryService,
	collections *services.CollectionService,
	files *services.FileService,
	registry *services.CustomRegistry,
	audit *services.AuditRecorder,
	hub *websocket.Hub,
	ws *websocket.Server,
	metrics *observability.Metrics,
	corsOrigins []string,
	logger *zap.Logger,
) *Router {
	return &Router{
		kernel:      kernel,
		authsvc:     authsvc,
		queries:     queries,
		collections: collections,
		files:       files,
		registry:    registry,
		audit:       audit,
		hub:         hub,
		ws:          ws,
		metrics:     metrics,
		corsOrigins: corsOrigins,
		logger:      logger,
	}
}

// Setup wires middleware and routes and returns the root handler.
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	origins := rt.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestContext)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	router.Use(middleware.Logger(rt.logger))
	router.Use(middleware.Metrics(rt.metrics))
	router.Use(middleware.Recoverer(rt.logger))
	router.Use(middleware.Versioning)
	router.Use(middleware.Validation)

	healthHandler := handlers.NewHealthHandler(rt.kernel, rt.logger)
	authHandler := handlers.NewAuthHandler(rt.authsvc, rt.logger)
	queryHandler := handlers.NewQueryHandler(rt.queries, rt.collections, rt.logger)
	collectionHandler := handlers.NewCollectionHandler(rt.collections, rt.logger)
	storageHandler := handlers.NewStorageHandler(rt.files, rt.logger)
	adminHandler := handlers.NewAdminHandler(rt.registry, rt.hub, rt.audit, rt.logger)

	authenticate := middleware.Authenticate(rt.authsvc)

	router.Get("/health", healthHandler.Health)
	router.Get("/health/db", healthHandler.HealthDB)
	router.Handle("/metrics", rt.metrics.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Get("/", healthHandler.Info)

		// The websocket endpoint does its own token handling; an invalid
		// token yields an anonymous connection instead of a 401.
		r.Get("/realtime", rt.ws.HandleConnection)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
			r.Group(func(r chi.Router) {
				r.Use(authenticate)
				r.Post("/logout", authHandler.Logout)
				r.Get("/me", authHandler.Me)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/query", queryHandler.Execute)
			r.Post("/bulk", queryHandler.Bulk)
		})

		r.Route("/storage", func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/upload", storageHandler.Upload)
			r.Get("/files", storageHandler.List)
			r.Get("/files/{id}", storageHandler.Download)
			r.Get("/files/{id}/info", storageHandler.Info)
			r.Delete("/files/{id}", storageHandler.Delete)
			r.Get("/search", storageHandler.Search)
			r.Get("/stats", storageHandler.Stats)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", authHandler.AdminLogin)

			r.Group(func(r chi.Router) {
				r.Use(authenticate)

				// Collection reads are open to any authenticated principal.
				r.Get("/collections", collectionHandler.List)
				r.Get("/collections/{name}", collectionHandler.Get)
				r.Get("/collections/{name}/stats", collectionHandler.Stats)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireAdmin)
					r.Get("/me", authHandler.AdminMe)
					r.Post("/collections", collectionHandler.Create)
					r.Put("/collections/{name}", collectionHandler.Update)
					r.Delete("/collections/{name}", collectionHandler.Delete)
					r.Post("/storage/cleanup", storageHandler.Cleanup)
					r.Get("/queries", adminHandler.CustomQueries)
					r.Get("/realtime/stats", adminHandler.RealtimeStats)
					r.Get("/audit", adminHandler.AuditLog)
				})
			})
		})
	})

	return router
}
