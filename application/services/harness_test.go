package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"swiftbase/domain/events"
	"swiftbase/infrastructure/persistence/sqlite"
	"swiftbase/pkg/auth"
)

// capturePublisher records published change events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []events.ChangeEvent
}

func (p *capturePublisher) PublishChange(event events.ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) all() []events.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.ChangeEvent(nil), p.events...)
}

// harness wires every service over a throwaway database.
type harness struct {
	kernel      *sqlite.Kernel
	tokens      *auth.TokenService
	audit       *AuditRecorder
	auth        *AuthService
	registry    *CustomRegistry
	queries     *QueryService
	collections *CollectionService
	files       *FileService
	storageDir  string
	published   *capturePublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()

	kernel, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { kernel.Close() })
	require.NoError(t, kernel.Migrate(context.Background()))

	users := sqlite.NewUserRepository()
	admins := sqlite.NewAdminRepository()
	cols := sqlite.NewCollectionRepository()
	docs := sqlite.NewDocumentRepository()
	fileRepo := sqlite.NewFileRepository()

	audit := NewAuditRecorder(kernel, sqlite.NewAuditRepository(), logger)
	tokens := auth.NewTokenService("test-secret", 0, 0)
	authsvc := NewAuthService(kernel, users, admins, tokens, audit, logger)

	registry := NewCustomRegistry()
	RegisterBuiltins(registry, cols, docs)

	published := &capturePublisher{}
	queries := NewQueryService(kernel, docs, cols, registry, published, logger)
	collections := NewCollectionService(kernel, cols, docs, audit, logger)

	storageDir := filepath.Join(t.TempDir(), "storage")
	files, err := NewFileService(kernel, fileRepo, audit, storageDir, logger)
	require.NoError(t, err)

	return &harness{
		kernel:      kernel,
		tokens:      tokens,
		audit:       audit,
		auth:        authsvc,
		registry:    registry,
		queries:     queries,
		collections: collections,
		files:       files,
		storageDir:  storageDir,
		published:   published,
	}
}

func (h *harness) mustCreateCollection(t *testing.T, name string) {
	t.Helper()
	_, err := h.collections.Create(context.Background(), CreateInput{Name: name},
		&auth.Principal{ID: "admin-1", Type: auth.PrincipalAdmin})
	require.NoError(t, err)
}
