package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"swiftbase/domain/entities"
	"swiftbase/domain/query"
	"swiftbase/infrastructure/persistence/sqlite"
	"swiftbase/pkg/auth"
	apperrors "swiftbase/pkg/errors"
)

// CollectionService manages the collection catalog. Schema and indexes are
// advisory metadata; nothing here validates documents against them.
type CollectionService struct {
	kernel *sqlite.Kernel
	cols   *sqlite.CollectionRepository
	docs   *sqlite.DocumentRepository
	audit  *AuditRecorder
	logger *zap.Logger
}

func NewCollectionService(
	kernel *sqlite.Kernel,
	cols *sqlite.CollectionRepository,
	docs *sqlite.DocumentRepository,
	audit *AuditRecorder,
	logger *zap.Logger,
) *CollectionService {
	return &CollectionService{
		kernel: kernel,
		cols:   cols,
		docs:   docs,
		audit:  audit,
		logger: logger,
	}
}

// List returns all collections with derived document counts.
func (s *CollectionService) List(ctx context.Context) ([]*entities.Collection, error) {
	var cols []*entities.Collection
	err := s.kernel.Read(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		cols, err = s.cols.List(ctx, tx)
		return err
	})
	return cols, err
}

// Get returns one collection by name.
func (s *CollectionService) Get(ctx context.Context, name string) (*entities.Collection, error) {
	if err := entities.ValidateCollectionName(name); err != nil {
		return nil, err
	}
	var col *entities.Collection
	err := s.kernel.Read(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		col, err = s.cols.GetByName(ctx, tx, name)
		return err
	})
	return col, err
}

// Stats returns the derived statistics for one collection.
func (s *CollectionService) Stats(ctx context.Context, name string) (*entities.CollectionStats, error) {
	if err := entities.ValidateCollectionName(name); err != nil {
		return nil, err
	}
	var stats *entities.CollectionStats
	err := s.kernel.Read(ctx, func(ctx context.Context, tx *sql.Tx) error {
		col, err := s.cols.GetByName(ctx, tx, name)
		if err != nil {
			return err
		}
		stats, err = s.cols.Stats(ctx, tx, col)
		return err
	})
	return stats, err
}

// CreateInput is the collection creation body.
type CreateInput struct {
	Name     string         `json:"name" validate:"required"`
	Schema   map[string]any `json:"schema,omitempty"`
	Indexes  []string       `json:"indexes,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Create registers a new collection; a taken name is a conflict.
func (s *CollectionService) Create(ctx context.Context, input CreateInput, actor *auth.Principal) (*entities.Collection, error) {
	if err := entities.ValidateCollectionName(input.Name); err != nil {
		return nil, err
	}
	col := &entities.Collection{
		ID:       uuid.New().String(),
		Name:     input.Name,
		Schema:   input.Schema,
		Indexes:  input.Indexes,
		Metadata: input.Metadata,
	}

	var created *entities.Collection
	err := s.kernel.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.cols.Insert(ctx, tx, col); err != nil {
			return err
		}
		var err error
		created, err = s.cols.GetByName(ctx, tx, col.Name)
		if err != nil {
			return err
		}
		return s.audit.record(ctx, tx, entities.AuditCollectionCreated, "collection", col.ID, actor, nil)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("collection created", zap.String("name", created.Name))
	return created, nil
}

// UpdateInput is the collection update body. The name is immutable.
type UpdateInput struct {
	Schema   map[string]any `json:"schema,omitempty"`
	Indexes  []string       `json:"indexes,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Update rewrites the advisory fields of an existing collection.
func (s *CollectionService) Update(ctx context.Context, name string, input UpdateInput, actor *auth.Principal) (*entities.Collection, error) {
	if err := entities.ValidateCollectionName(name); err != nil {
		return nil, err
	}
	var updated *entities.Collection
	err := s.kernel.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		col, err := s.cols.GetByName(ctx, tx, name)
		if err != nil {
			return err
		}
		if input.Schema != nil {
			col.Schema = input.Schema
		}
		if input.Indexes != nil {
			col.Indexes = input.Indexes
		}
		if input.Metadata != nil {
			col.Metadata = input.Metadata
		}
		if err := s.cols.Update(ctx, tx, col); err != nil {
			return err
		}
		updated, err = s.cols.GetByName(ctx, tx, name)
		if err != nil {
			return err
		}
		return s.audit.record(ctx, tx, entities.AuditCollectionUpdated, "collection", col.ID, actor, nil)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a collection. Without cascade a non-empty collection is a
// conflict carrying the document count; with cascade the documents and the
// collection go in one write scope.
func (s *CollectionService) Delete(ctx context.Context, name string, cascade bool, actor *auth.Principal) error {
	if err := entities.ValidateCollectionName(name); err != nil {
		return err
	}
	err := s.kernel.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		col, err := s.cols.GetByName(ctx, tx, name)
		if err != nil {
			return err
		}
		count, err := s.cols.DocumentCount(ctx, tx, col.ID)
		if err != nil {
			return err
		}
		if count > 0 && !cascade {
			return apperrors.NewConflict(
				fmt.Sprintf("collection %q holds %d documents; pass cascade=true to delete them", name, count)).
				WithDetails(map[string]any{"document_count": count})
		}
		// The foreign key cascade removes the documents with the row.
		if err := s.cols.Delete(ctx, tx, col.ID); err != nil {
			return err
		}
		return s.audit.record(ctx, tx, entities.AuditCollectionDeleted, "collection", col.ID, actor,
			map[string]any{"documents_removed": count})
	})
	if err != nil {
		return err
	}
	s.logger.Info("collection deleted", zap.String("name", name), zap.Bool("cascade", cascade))
	return nil
}

// BulkItem is one entry of the bulk endpoint body.
type BulkItem struct {
	Type       string         `json:"type"`
	Collection string         `json:"collection"`
	Data       map[string]any `json:"data,omitempty"`
	Where      map[string]any `json:"where,omitempty"`
}

// BulkItemResult reports one item's outcome.
type BulkItemResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ExecuteBulk runs each item independently through the query service; one
// failure never aborts the rest.
func (s *CollectionService) ExecuteBulk(ctx context.Context, items []BulkItem, queries *QueryService, actor string) ([]BulkItemResult, bool) {
	results := make([]BulkItemResult, 0, len(items))
	allOK := true

	for _, item := range items {
		req := &query.Request{
			Action:     item.Type,
			Collection: item.Collection,
			Data:       item.Data,
		}
		if item.Where != nil {
			req.Query = &query.Spec{Where: item.Where}
		}
		switch item.Type {
		case "create", "update", "delete":
		default:
			allOK = false
			results = append(results, BulkItemResult{
				Success: false,
				Error:   fmt.Sprintf("unknown bulk item type %q", item.Type),
			})
			continue
		}

		data, err := queries.Execute(ctx, req, actor)
		if err != nil {
			allOK = false
			results = append(results, BulkItemResult{Success: false, Error: err.Error()})
			continue
		}
		results = append(results, BulkItemResult{Success: true, Data: data})
	}
	return results, allOK
}
