package services

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"swiftbase/domain/entities"
	"swiftbase/infrastructure/persistence/sqlite"
	"swiftbase/pkg/auth"
)

// AuditRecorder appends audit entries inside the caller's write scope, so the
// audit row commits or rolls back together with the operation it describes.
type AuditRecorder struct {
	kernel *sqlite.Kernel
	repo   *sqlite.AuditRepository
	logger *zap.Logger
}

func NewAuditRecorder(kernel *sqlite.Kernel, repo *sqlite.AuditRepository, logger *zap.Logger) *AuditRecorder {
	return &AuditRecorder{kernel: kernel, repo: repo, logger: logger}
}

func (a *AuditRecorder) record(ctx context.Context, tx *sql.Tx, eventType, entityType, entityID string, actor *auth.Principal, data map[string]any) error {
	entry := &entities.AuditEntry{
		EventType:  eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Data:       data,
	}
	if actor != nil {
		if actor.IsAdmin() {
			entry.AdminID = actor.ID
		} else {
			entry.UserID = actor.ID
		}
	}
	if meta, ok := RequestMetaFromContext(ctx); ok {
		entry.IP = meta.IP
		entry.UserAgent = meta.UserAgent
	}
	return a.repo.Insert(ctx, tx, entry)
}

// List returns a page of audit entries for the admin surface.
func (a *AuditRecorder) List(ctx context.Context, limit, offset int) ([]*entities.AuditEntry, int64, error) {
	var (
		entries []*entities.AuditEntry
		total   int64
	)
	err := a.kernel.Read(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		entries, total, err = a.repo.List(ctx, tx, limit, offset)
		return err
	})
	return entries, total, err
}

// RequestMeta carries client attribution the HTTP layer attaches to the
// context for audit purposes.
type RequestMeta struct {
	IP        string
	UserAgent string
}

type requestMetaKey struct{}

// WithRequestMeta attaches client attribution to the context.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext extracts client attribution, if present.
func RequestMetaFromContext(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta, ok
}
