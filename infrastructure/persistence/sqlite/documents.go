package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"swiftbase/domain/entities"
	"swiftbase/domain/query"
	apperrors "swiftbase/pkg/errors"
)

// DocumentRepository reads and writes document rows. It is stateless; every
// method runs inside a kernel Read or Write scope passed in as tx.
type DocumentRepository struct{}

func NewDocumentRepository() *DocumentRepository {
	return &DocumentRepository{}
}

// Insert stores a new document. Version and timestamps come from column
// defaults; the caller has already placed the id into data._id.
func (r *DocumentRepository) Insert(ctx context.Context, tx *sql.Tx, collectionID string, doc *entities.Document) error {
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return apperrors.NewInvalidInputf("document data is not encodable: %v", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, collection_id, data, created_by, updated_by) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, collectionID, string(raw), doc.CreatedBy, doc.UpdatedBy)
	if err != nil {
		return apperrors.NewStorage("insert document", err)
	}
	return nil
}

// GetByID fetches one document row.
func (r *DocumentRepository) GetByID(ctx context.Context, tx *sql.Tx, collectionID, id string) (*entities.Document, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE collection_id = ? AND id = ?`,
		collectionID, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound(fmt.Sprintf("document %q", id))
	}
	if err != nil {
		return nil, apperrors.NewStorage("read document", err)
	}
	return doc, nil
}

// Find returns the documents matching a parsed query, in its order.
func (r *DocumentRepository) Find(ctx context.Context, tx *sql.Tx, collectionID string, p *query.Parsed) ([]*entities.Document, error) {
	stmt, args, err := BuildSelect(collectionID, p)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, apperrors.NewStorage("query documents", err)
	}
	defer rows.Close()

	var docs []*entities.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, apperrors.NewStorage("scan document", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Recent returns the newest documents of a collection by insertion time.
func (r *DocumentRepository) Recent(ctx context.Context, tx *sql.Tx, collectionID string, limit int) ([]*entities.Document, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE collection_id = ?
		 ORDER BY created_at DESC, id LIMIT ?`, collectionID, limit)
	if err != nil {
		return nil, apperrors.NewStorage("query recent documents", err)
	}
	defer rows.Close()

	docs := []*entities.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, apperrors.NewStorage("scan document", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// FindIDs pins the id set a filtered update will touch.
func (r *DocumentRepository) FindIDs(ctx context.Context, tx *sql.Tx, collectionID string, p *query.Parsed) ([]string, error) {
	stmt, args, err := BuildIDSelect(collectionID, p)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, apperrors.NewStorage("query document ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.NewStorage("scan document id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Distinct returns the distinct values of the query's distinct field.
func (r *DocumentRepository) Distinct(ctx context.Context, tx *sql.Tx, collectionID string, p *query.Parsed) ([]any, error) {
	stmt, args, err := BuildDistinct(collectionID, p)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, apperrors.NewStorage("query distinct values", err)
	}
	defer rows.Close()

	values := []any{}
	for rows.Next() {
		var value any
		if err := rows.Scan(&value); err != nil {
			return nil, apperrors.NewStorage("scan distinct value", err)
		}
		values = append(values, value)
	}
	return values, rows.Err()
}

// Count returns the number of documents matching the query.
func (r *DocumentRepository) Count(ctx context.Context, tx *sql.Tx, collectionID string, p *query.Parsed) (int64, error) {
	stmt, args, err := BuildCount(collectionID, p)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := tx.QueryRowContext(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, apperrors.NewStorage("count documents", err)
	}
	return count, nil
}

// DeleteByIDs removes a pinned id set and reports how many rows went away.
// Deletes pin their ids first so the published events name exactly the
// removed documents.
func (r *DocumentRepository) DeleteByIDs(ctx context.Context, tx *sql.Tx, collectionID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, collectionID)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE collection_id = ? AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, apperrors.NewStorage("delete documents", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.NewStorage("delete documents", err)
	}
	return n, nil
}

// ApplyUpdate rewrites the pinned rows with one update operator's SQL lowering.
func (r *DocumentRepository) ApplyUpdate(ctx context.Context, tx *sql.Tx, collectionID string, ids []string, op string, fields map[string]any, updatedBy string) error {
	stmt, args, err := BuildUpdate(collectionID, ids, op, fields, updatedBy)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return apperrors.NewStorage("apply "+op, err)
	}
	return nil
}

// ApplyPull removes matching elements from array fields. There is no SQL
// lowering for element removal, so the affected rows are read, filtered in
// memory and written back inside the same write scope. Only the touched array
// field is rewritten, so an update that removes nothing leaves the row (and
// its version) alone.
func (r *DocumentRepository) ApplyPull(ctx context.Context, tx *sql.Tx, collectionID string, ids []string, fields map[string]any, updatedBy string) error {
	for _, id := range ids {
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT data FROM documents WHERE collection_id = ? AND id = ?`, collectionID, id).Scan(&raw)
		if err != nil {
			return apperrors.NewStorage("read document for $pull", err)
		}
		var data map[string]any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return apperrors.NewStorage("decode document for $pull", err)
		}

		for field, operand := range fields {
			current, ok := lookupPath(data, field).([]any)
			if !ok {
				continue
			}
			kept := make([]any, 0, len(current))
			for _, elem := range current {
				if !pullMatches(elem, operand) {
					kept = append(kept, elem)
				}
			}
			if len(kept) == len(current) {
				continue
			}
			arr, err := json.Marshal(kept)
			if err != nil {
				return apperrors.NewStorage("encode array for $pull", err)
			}
			_, err = tx.ExecContext(ctx,
				`UPDATE documents SET data = json_set(data, ?, json(?)), updated_by = ? WHERE collection_id = ? AND id = ?`,
				jsonPath(field), string(arr), updatedBy, collectionID, id)
			if err != nil {
				return apperrors.NewStorage("apply $pull", err)
			}
		}
	}
	return nil
}

// pullMatches reports whether an array element matches a $pull operand. An
// operand carrying operators is evaluated as a condition; anything else is
// compared by deep equality.
func pullMatches(elem, operand any) bool {
	ops, isOps := operand.(map[string]any)
	if !isOps || !hasDollarKey(ops) {
		return reflect.DeepEqual(elem, operand)
	}
	for op, value := range ops {
		switch op {
		case "$eq":
			if !reflect.DeepEqual(elem, value) {
				return false
			}
		case "$ne":
			if reflect.DeepEqual(elem, value) {
				return false
			}
		case "$gt", "$gte", "$lt", "$lte":
			if !compareOrdered(elem, value, op) {
				return false
			}
		case "$in":
			items, ok := value.([]any)
			if !ok || !containsDeep(items, elem) {
				return false
			}
		case "$nin":
			items, ok := value.([]any)
			if !ok || containsDeep(items, elem) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func compareOrdered(a, b any, op string) bool {
	an, aok := a.(float64)
	bn, bok := b.(float64)
	if aok && bok {
		switch op {
		case "$gt":
			return an > bn
		case "$gte":
			return an >= bn
		case "$lt":
			return an < bn
		case "$lte":
			return an <= bn
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch op {
		case "$gt":
			return as > bs
		case "$gte":
			return as >= bs
		case "$lt":
			return as < bs
		case "$lte":
			return as <= bs
		}
	}
	return false
}

func containsDeep(items []any, elem any) bool {
	for _, item := range items {
		if reflect.DeepEqual(item, elem) {
			return true
		}
	}
	return false
}

func lookupPath(data map[string]any, path string) any {
	current := any(data)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '.' {
			continue
		}
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = obj[path[start:i]]
		if !ok {
			return nil
		}
		start = i + 1
	}
	return current
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*entities.Document, error) {
	var (
		doc       entities.Document
		raw       string
		createdBy sql.NullString
		updatedBy sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&doc.ID, &raw, &doc.Version, &createdBy, &updatedBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &doc.Data); err != nil {
		return nil, fmt.Errorf("decoding document data: %w", err)
	}
	doc.CreatedBy = createdBy.String
	doc.UpdatedBy = updatedBy.String
	doc.CreatedAt = parseTime(createdAt)
	doc.UpdatedAt = parseTime(updatedAt)
	return &doc, nil
}

// parseTime decodes the stored UTC timestamp format; a zero time comes back
// for anything unparseable rather than an error, since the column is
// trigger-maintained and trusted.
func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
