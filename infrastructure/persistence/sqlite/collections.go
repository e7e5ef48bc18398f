package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"swiftbase/domain/entities"
	apperrors "swiftbase/pkg/errors"
)

// CollectionRepository reads and writes collection rows. Schema, indexes and
// metadata are stored as JSON text; document_count is always derived.
type CollectionRepository struct{}

func NewCollectionRepository() *CollectionRepository {
	return &CollectionRepository{}
}

const collectionColumns = `c.id, c.name, c.schema, c.indexes, c.metadata, c.created_at, c.updated_at,
	(SELECT COUNT(*) FROM documents d WHERE d.collection_id = c.id) AS document_count`

// Insert stores a new collection. A duplicate name surfaces as a conflict.
func (r *CollectionRepository) Insert(ctx context.Context, tx *sql.Tx, col *entities.Collection) error {
	schema, indexes, metadata, err := encodeCollectionFields(col)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO collections (id, name, schema, indexes, metadata) VALUES (?, ?, ?, ?, ?)`,
		col.ID, col.Name, schema, indexes, metadata)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflict(fmt.Sprintf("collection %q already exists", col.Name))
		}
		return apperrors.NewStorage("insert collection", err)
	}
	return nil
}

// GetByName fetches one collection with its derived document count.
func (r *CollectionRepository) GetByName(ctx context.Context, tx *sql.Tx, name string) (*entities.Collection, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections c WHERE c.name = ?`, name)
	col, err := scanCollection(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound(fmt.Sprintf("collection %q", name))
	}
	if err != nil {
		return nil, apperrors.NewStorage("read collection", err)
	}
	return col, nil
}

// List returns all collections ordered by name.
func (r *CollectionRepository) List(ctx context.Context, tx *sql.Tx) ([]*entities.Collection, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+collectionColumns+` FROM collections c ORDER BY c.name`)
	if err != nil {
		return nil, apperrors.NewStorage("list collections", err)
	}
	defer rows.Close()

	cols := []*entities.Collection{}
	for rows.Next() {
		col, err := scanCollection(rows)
		if err != nil {
			return nil, apperrors.NewStorage("scan collection", err)
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// Update rewrites the mutable collection fields. The name is immutable.
func (r *CollectionRepository) Update(ctx context.Context, tx *sql.Tx, col *entities.Collection) error {
	schema, indexes, metadata, err := encodeCollectionFields(col)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE collections SET schema = ?, indexes = ?, metadata = ? WHERE id = ?`,
		schema, indexes, metadata, col.ID)
	if err != nil {
		return apperrors.NewStorage("update collection", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFound(fmt.Sprintf("collection %q", col.Name))
	}
	return nil
}

// Delete removes a collection row; documents follow through the cascade.
func (r *CollectionRepository) Delete(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return apperrors.NewStorage("delete collection", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFound(fmt.Sprintf("collection %q", id))
	}
	return nil
}

// DocumentCount returns the number of documents in a collection.
func (r *CollectionRepository) DocumentCount(ctx context.Context, tx *sql.Tx, id string) (int64, error) {
	var count int64
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection_id = ?`, id).Scan(&count)
	if err != nil {
		return 0, apperrors.NewStorage("count documents", err)
	}
	return count, nil
}

// Stats computes the derived statistics for one collection.
func (r *CollectionRepository) Stats(ctx context.Context, tx *sql.Tx, col *entities.Collection) (*entities.CollectionStats, error) {
	var (
		count  int64
		total  int64
		oldest sql.NullString
		newest sql.NullString
	)
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(data)), 0), MIN(created_at), MAX(created_at)
		 FROM documents WHERE collection_id = ?`, col.ID).
		Scan(&count, &total, &oldest, &newest)
	if err != nil {
		return nil, apperrors.NewStorage("compute collection stats", err)
	}

	stats := &entities.CollectionStats{
		DocumentCount:     count,
		TotalSizeEstimate: total,
		IndexCount:        len(col.Indexes),
	}
	if count > 0 {
		stats.AverageDocumentSize = total / count
	}
	if oldest.Valid {
		t := parseTime(oldest.String)
		stats.OldestCreatedAt = &t
	}
	if newest.Valid {
		t := parseTime(newest.String)
		stats.NewestCreatedAt = &t
	}
	return stats, nil
}

func encodeCollectionFields(col *entities.Collection) (schema, indexes, metadata sql.NullString, err error) {
	encode := func(v any, present bool) (sql.NullString, error) {
		if !present {
			return sql.NullString{}, nil
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return sql.NullString{}, apperrors.NewInvalidInputf("collection field is not encodable: %v", err)
		}
		return sql.NullString{String: string(raw), Valid: true}, nil
	}
	if schema, err = encode(col.Schema, col.Schema != nil); err != nil {
		return
	}
	if indexes, err = encode(col.Indexes, col.Indexes != nil); err != nil {
		return
	}
	metadata, err = encode(col.Metadata, col.Metadata != nil)
	return
}

func scanCollection(row rowScanner) (*entities.Collection, error) {
	var (
		col       entities.Collection
		schema    sql.NullString
		indexes   sql.NullString
		metadata  sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&col.ID, &col.Name, &schema, &indexes, &metadata, &createdAt, &updatedAt, &col.DocumentCount)
	if err != nil {
		return nil, err
	}
	if schema.Valid {
		if err := json.Unmarshal([]byte(schema.String), &col.Schema); err != nil {
			return nil, fmt.Errorf("decoding collection schema: %w", err)
		}
	}
	if indexes.Valid {
		if err := json.Unmarshal([]byte(indexes.String), &col.Indexes); err != nil {
			return nil, fmt.Errorf("decoding collection indexes: %w", err)
		}
	}
	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &col.Metadata); err != nil {
			return nil, fmt.Errorf("decoding collection metadata: %w", err)
		}
	}
	col.CreatedAt = parseTime(createdAt)
	col.UpdatedAt = parseTime(updatedAt)
	return &col, nil
}
