package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"swiftbase/application/ports"
	"swiftbase/domain/entities"
	"swiftbase/domain/events"
	"swiftbase/domain/query"
	"swiftbase/infrastructure/persistence/sqlite"
	apperrors "swiftbase/pkg/errors"
)

// QueryService executes query envelopes against the document store. Change
// events are published only after the owning transaction commits, so
// subscribers never see a change that later rolled back.
type QueryService struct {
	kernel    *sqlite.Kernel
	docs      *sqlite.DocumentRepository
	cols      *sqlite.CollectionRepository
	registry  *CustomRegistry
	publisher ports.EventPublisher
	logger    *zap.Logger
}

func NewQueryService(
	kernel *sqlite.Kernel,
	docs *sqlite.DocumentRepository,
	cols *sqlite.CollectionRepository,
	registry *CustomRegistry,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *QueryService {
	return &QueryService{
		kernel:    kernel,
		docs:      docs,
		cols:      cols,
		registry:  registry,
		publisher: publisher,
		logger:    logger,
	}
}

// Execute validates and runs one envelope on behalf of actor (empty when
// anonymous).
func (s *QueryService) Execute(ctx context.Context, req *query.Request, actor string) (any, error) {
	parsed, err := query.Parse(req)
	if err != nil {
		return nil, err
	}

	switch parsed.Action {
	case query.ActionFind:
		return s.find(ctx, parsed)
	case query.ActionFindOne:
		return s.findOne(ctx, parsed)
	case query.ActionCount:
		return s.count(ctx, parsed)
	case query.ActionCreate:
		return s.create(ctx, parsed, actor)
	case query.ActionUpdate:
		return s.update(ctx, parsed, actor)
	case query.ActionDelete:
		return s.delete(ctx, parsed)
	case query.ActionCustom:
		return s.custom(ctx, parsed)
	case query.ActionAggregate:
		return nil, apperrors.NewInvalidInput("invalid query: aggregate is not supported")
	}
	return nil, apperrors.NewInternal(fmt.Sprintf("unhandled action %q", parsed.Action))
}

func (s *QueryService) find(ctx context.Context, parsed *query.Parsed) (any, error) {
	var (
		docs   []*entities.Document
		values []any
	)
	err := s.kernel.Read(ctx, func(ctx context.Context, tx *sql.Tx) error {
		col, err := s.cols.GetByName(ctx, tx, parsed.Collection)
		if err != nil {
			return err
		}
		if parsed.Distinct != "" {
			values, err = s.docs.Distinct(ctx, tx, col.ID, parsed)
			return err
		}
		docs, err = s.docs.Find(ctx, tx, col.ID, parsed)
		return err
	})
	if err != nil {
		return nil, err
	}

	if parsed.Distinct != "" {
		return map[string]any{"values": values}, nil
	}
	if docs == nil {
		docs = []*entities.Document{}
	}
	for _, doc := range docs {
		doc.Collection = parsed.Collection
		if len(parsed.Select) > 0 {
			doc.Data = projectData(doc.Data, parsed.Select)
		}
	}
	return docs, nil
}

func (s *QueryService) findOne(ctx context.Context, parsed *query.Parsed) (any, error) {
	one := *parsed
	one.Limit = 1
	one.Offset = parsed.Offset

	var docs []*entities.Document
	err := s.kernel.Read(ctx, func(ctx context.Context, tx *sql.Tx) error {
		col, err := s.cols.GetByName(ctx, tx, parsed.Collection)
		if err != nil {
			return err
		}
		docs, err = s.docs.Find(ctx, tx, col.ID, &one)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, apperrors.NewNotFound("document")
	}

	doc := docs[0]
	doc.Collection = parsed.Collection
	if len(parsed.Select) > 0 {
		doc.Data = projectData(doc.Data, parsed.Select)
	}
	return doc, nil
}

func (s *QueryService) count(ctx context.Context, parsed *query.Parsed) (any, error) {
	var count int64
	err := s.kernel.Read(ctx, func(ctx context.Context, tx *sql.Tx) error {
		col, err := s.cols.GetByName(ctx, tx, parsed.Collection)
		if err != nil {
			return err
		}
		count, err = s.docs.Count(ctx, tx, col.ID, parsed)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"count": count}, nil
}

func (s *QueryService) create(ctx context.Context, parsed *query.Parsed, actor string) (any, error) {
	// A caller-provided _id is honored; otherwise a fresh one is generated.
	// Row id and data._id always agree.
	id, ok := parsed.Data["_id"].(string)
	if !ok || id == "" {
		id = uuid.New().String()
	}
	var created *entities.Document

	err := s.kernel.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		col, err := s.cols.GetByName(ctx, tx, parsed.Collection)
		if err != nil {
			return err
		}
		data := parsed.Data
		data["_id"] = id
		doc := &entities.Document{
			ID:        id,
			Data:      data,
			CreatedBy: actor,
			UpdatedBy: actor,
		}
		if err := s.docs.Insert(ctx, tx, col.ID, doc); err != nil {
			return err
		}
		// Read the row back so version and timestamps come from the store.
		created, err = s.docs.GetByID(ctx, tx, col.ID, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	created.Collection = parsed.Collection
	s.publisher.PublishChange(events.ChangeEvent{
		Kind:       events.ChangeCreate,
		Collection: parsed.Collection,
		DocumentID: created.ID,
		Document:   created.Data,
		Timestamp:  time.Now().UTC(),
	})
	return created, nil
}

func (s *QueryService) update(ctx context.Context, parsed *query.Parsed, actor string) (any, error) {
	ops, err := query.NormalizeUpdate(parsed.Data)
	if err != nil {
		return nil, err
	}

	var ids []string
	err = s.kernel.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		col, err := s.cols.GetByName(ctx, tx, parsed.Collection)
		if err != nil {
			return err
		}
		ids, err = s.docs.FindIDs(ctx, tx, col.ID, parsed)
		if err != nil || len(ids) == 0 {
			return err
		}
		for _, op := range sortedOps(ops) {
			if op == "$pull" {
				err = s.docs.ApplyPull(ctx, tx, col.ID, ids, ops[op], actor)
			} else {
				err = s.docs.ApplyUpdate(ctx, tx, col.ID, ids, op, ops[op], actor)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The event carries the operator delta, not the resulting document;
	// subscribers needing the full state re-fetch it.
	delta := make(map[string]any, len(ops))
	for op, fields := range ops {
		delta[op] = fields
	}
	now := time.Now().UTC()
	for _, id := range ids {
		s.publisher.PublishChange(events.ChangeEvent{
			Kind:       events.ChangeUpdate,
			Collection: parsed.Collection,
			DocumentID: id,
			Document:   delta,
			Timestamp:  now,
		})
	}
	return map[string]any{"updated": len(ids)}, nil
}

func (s *QueryService) delete(ctx context.Context, parsed *query.Parsed) (any, error) {
	var (
		ids     []string
		deleted int64
	)
	err := s.kernel.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		col, err := s.cols.GetByName(ctx, tx, parsed.Collection)
		if err != nil {
			return err
		}
		ids, err = s.docs.FindIDs(ctx, tx, col.ID, parsed)
		if err != nil || len(ids) == 0 {
			return err
		}
		deleted, err = s.docs.DeleteByIDs(ctx, tx, col.ID, ids)
		return err
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, id := range ids {
		s.publisher.PublishChange(events.ChangeEvent{
			Kind:       events.ChangeDelete,
			Collection: parsed.Collection,
			DocumentID: id,
			Timestamp:  now,
		})
	}
	return map[string]any{"deleted": deleted}, nil
}

func (s *QueryService) custom(ctx context.Context, parsed *query.Parsed) (any, error) {
	handler, ok := s.registry.Get(parsed.Custom)
	if !ok {
		return nil, apperrors.NewNotFound(fmt.Sprintf("custom query %q", parsed.Custom))
	}
	var result any
	err := s.kernel.Read(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		result, err = handler(ctx, tx, parsed.Params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// projectData copies only the selected paths (plus _id) into a fresh map.
func projectData(data map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields)+1)
	if id, ok := data["_id"]; ok {
		out["_id"] = id
	}
	for _, field := range fields {
		copyPath(out, data, field)
	}
	return out
}

func copyPath(dst, src map[string]any, path string) {
	segments := strings.Split(path, ".")
	for i, segment := range segments {
		value, ok := src[segment]
		if !ok {
			return
		}
		if i == len(segments)-1 {
			dst[segment] = value
			return
		}
		next, ok := value.(map[string]any)
		if !ok {
			return
		}
		child, ok := dst[segment].(map[string]any)
		if !ok {
			child = make(map[string]any)
			dst[segment] = child
		}
		dst = child
		src = next
	}
}

func sortedOps(ops map[string]map[string]any) []string {
	keys := make([]string, 0, len(ops))
	for op := range ops {
		keys = append(keys, op)
	}
	sort.Strings(keys)
	return keys
}
