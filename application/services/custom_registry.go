package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/google/uuid"

	"swiftbase/domain/query"
	"swiftbase/infrastructure/persistence/sqlite"
	apperrors "swiftbase/pkg/errors"
)

// CustomQueryHandler executes one named query inside a read scope.
type CustomQueryHandler func(ctx context.Context, tx *sql.Tx, params map[string]any) (any, error)

// CustomQueryInfo describes a registered custom query for the admin catalog.
type CustomQueryInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CustomRegistry holds the named query handlers dispatched by the custom
// action. Registration happens at startup; execution is concurrent.
type CustomRegistry struct {
	mu       sync.RWMutex
	handlers map[string]CustomQueryHandler
	info     map[string]string
}

func NewCustomRegistry() *CustomRegistry {
	return &CustomRegistry{
		handlers: make(map[string]CustomQueryHandler),
		info:     make(map[string]string),
	}
}

// Register adds or replaces a named handler.
func (r *CustomRegistry) Register(name, description string, handler CustomQueryHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
	r.info[name] = description
}

// Get looks up a handler by name.
func (r *CustomRegistry) Get(name string) (CustomQueryHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[name]
	return handler, ok
}

// List returns the catalog sorted by name.
func (r *CustomRegistry) List() []CustomQueryInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CustomQueryInfo, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, CustomQueryInfo{Name: name, Description: r.info[name]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Persist records the catalog in the database so it survives restarts and is
// listable without the process's registration order.
func (r *CustomRegistry) Persist(ctx context.Context, kernel *sqlite.Kernel, repo *sqlite.CustomQueryRepository) error {
	catalog := r.List()
	return kernel.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, info := range catalog {
			if err := repo.Upsert(ctx, tx, uuid.New().String(), info.Name, info.Description); err != nil {
				return err
			}
		}
		return nil
	})
}

// RegisterBuiltins installs the queries every instance ships with.
func RegisterBuiltins(registry *CustomRegistry, cols *sqlite.CollectionRepository, docs *sqlite.DocumentRepository) {
	registry.Register("collection_stats", "per-collection document counts and sizes",
		func(ctx context.Context, tx *sql.Tx, params map[string]any) (any, error) {
			name, err := requireStringParam(params, "collection")
			if err != nil {
				return nil, err
			}
			col, err := cols.GetByName(ctx, tx, name)
			if err != nil {
				return nil, err
			}
			return cols.Stats(ctx, tx, col)
		})

	registry.Register("recent_documents", "latest documents of a collection",
		func(ctx context.Context, tx *sql.Tx, params map[string]any) (any, error) {
			name, err := requireStringParam(params, "collection")
			if err != nil {
				return nil, err
			}
			limit := 10
			if raw, ok := params["limit"].(float64); ok {
				if raw < 1 || raw > float64(query.DefaultLimit) {
					return nil, apperrors.NewInvalidInputf("invalid query: limit must be in [1, %d]", query.DefaultLimit)
				}
				limit = int(raw)
			}
			col, err := cols.GetByName(ctx, tx, name)
			if err != nil {
				return nil, err
			}
			return docs.Recent(ctx, tx, col.ID, limit)
		})
}

func requireStringParam(params map[string]any, key string) (string, error) {
	value, ok := params[key].(string)
	if !ok || value == "" {
		return "", apperrors.NewInvalidInputf("invalid query: param %q is required", key)
	}
	return value, nil
}
