package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"swiftbase/domain/entities"
	apperrors "swiftbase/pkg/errors"
)

// FileRepository reads and writes file metadata rows. Payload bytes live on
// disk under the storage directory; this repository only tracks them.
type FileRepository struct{}

func NewFileRepository() *FileRepository {
	return &FileRepository{}
}

const fileColumns = `id, stored_name, original_name, content_type, size_bytes, path, metadata, uploaded_by, created_at`

// Insert stores a file metadata row.
func (r *FileRepository) Insert(ctx context.Context, tx *sql.Tx, meta *entities.FileMetadata) error {
	metadata, err := encodeNullableJSON(meta.Metadata)
	if err != nil {
		return err
	}
	uploadedBy := sql.NullString{String: meta.UploadedBy, Valid: meta.UploadedBy != ""}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO files (id, stored_name, original_name, content_type, size_bytes, path, metadata, uploaded_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.StoredName, meta.OriginalName, meta.ContentType, meta.SizeBytes,
		meta.Path, metadata, uploadedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflict("stored file name already exists")
		}
		return apperrors.NewStorage("insert file metadata", err)
	}
	return nil
}

// GetByID fetches one file metadata row.
func (r *FileRepository) GetByID(ctx context.Context, tx *sql.Tx, id string) (*entities.FileMetadata, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	meta, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound(fmt.Sprintf("file %q", id))
	}
	if err != nil {
		return nil, apperrors.NewStorage("read file metadata", err)
	}
	return meta, nil
}

// Delete removes a file metadata row.
func (r *FileRepository) Delete(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return apperrors.NewStorage("delete file metadata", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFound(fmt.Sprintf("file %q", id))
	}
	return nil
}

// FileFilter scopes a listing. Empty UploadedBy means no owner restriction
// (admin view); Search matches a substring of the original name.
type FileFilter struct {
	UploadedBy  string
	ContentType string
	Search      string
	Limit       int
	Offset      int
}

// List returns a page of file metadata matching the filter, newest first,
// plus the total count under the same filter.
func (r *FileRepository) List(ctx context.Context, tx *sql.Tx, filter FileFilter) ([]*entities.FileMetadata, int64, error) {
	where := "1=1"
	args := []any{}
	if filter.UploadedBy != "" {
		where += " AND uploaded_by = ?"
		args = append(args, filter.UploadedBy)
	}
	if filter.ContentType != "" {
		where += " AND content_type = ?"
		args = append(args, filter.ContentType)
	}
	if filter.Search != "" {
		where += ` AND original_name LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(filter.Search)+"%")
	}

	var total int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, apperrors.NewStorage("count files", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE `+where+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, apperrors.NewStorage("list files", err)
	}
	defer rows.Close()

	files, err := collectFiles(rows)
	return files, total, err
}

// Stats returns aggregate totals, scoped to one uploader when uploadedBy is
// non-empty.
func (r *FileRepository) Stats(ctx context.Context, tx *sql.Tx, uploadedBy string) (*entities.FileStats, error) {
	stats := &entities.FileStats{}
	var err error
	if uploadedBy == "" {
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM files`).
			Scan(&stats.TotalFiles, &stats.TotalBytes)
	} else {
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM files WHERE uploaded_by = ?`, uploadedBy).
			Scan(&stats.TotalFiles, &stats.TotalBytes)
	}
	if err != nil {
		return nil, apperrors.NewStorage("compute file stats", err)
	}
	return stats, nil
}

// DeleteByStoredNames removes metadata rows by on-disk name. The sweep uses
// it for rows whose payload has gone missing.
func (r *FileRepository) DeleteByStoredNames(ctx context.Context, tx *sql.Tx, names []string) error {
	if len(names) == 0 {
		return nil
	}
	args := make([]any, 0, len(names))
	marks := make([]string, 0, len(names))
	for _, name := range names {
		args = append(args, name)
		marks = append(marks, "?")
	}
	_, err := tx.ExecContext(ctx,
		`DELETE FROM files WHERE stored_name IN (`+strings.Join(marks, ", ")+`)`, args...)
	if err != nil {
		return apperrors.NewStorage("delete orphaned file rows", err)
	}
	return nil
}

// StoredNames returns every tracked on-disk name; the sweep deletes payloads
// not in this set.
func (r *FileRepository) StoredNames(ctx context.Context, tx *sql.Tx) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT stored_name FROM files`)
	if err != nil {
		return nil, apperrors.NewStorage("list stored names", err)
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperrors.NewStorage("scan stored name", err)
		}
		names[name] = true
	}
	return names, rows.Err()
}

func collectFiles(rows *sql.Rows) ([]*entities.FileMetadata, error) {
	files := []*entities.FileMetadata{}
	for rows.Next() {
		meta, err := scanFile(rows)
		if err != nil {
			return nil, apperrors.NewStorage("scan file metadata", err)
		}
		files = append(files, meta)
	}
	return files, rows.Err()
}

func scanFile(row rowScanner) (*entities.FileMetadata, error) {
	var (
		meta       entities.FileMetadata
		metadata   sql.NullString
		uploadedBy sql.NullString
		createdAt  string
	)
	err := row.Scan(&meta.ID, &meta.StoredName, &meta.OriginalName, &meta.ContentType,
		&meta.SizeBytes, &meta.Path, &metadata, &uploadedBy, &createdAt)
	if err != nil {
		return nil, err
	}
	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &meta.Metadata); err != nil {
			return nil, fmt.Errorf("decoding file metadata: %w", err)
		}
	}
	meta.UploadedBy = uploadedBy.String
	meta.CreatedAt = parseTime(createdAt)
	return &meta, nil
}

func escapeLike(term string) string {
	out := make([]byte, 0, len(term))
	for i := 0; i < len(term); i++ {
		switch term[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, term[i])
	}
	return string(out)
}
