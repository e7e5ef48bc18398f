package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	apperrors "swiftbase/pkg/errors"
)

// CustomQueryRow is the persisted descriptor of a registered custom query.
// The handler itself lives in the in-memory registry; this table keeps the
// catalog listable across restarts.
type CustomQueryRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// CustomQueryRepository persists the custom query catalog.
type CustomQueryRepository struct{}

func NewCustomQueryRepository() *CustomQueryRepository {
	return &CustomQueryRepository{}
}

// Upsert records a custom query descriptor by name.
func (r *CustomQueryRepository) Upsert(ctx context.Context, tx *sql.Tx, id, name, description string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO custom_queries (id, name, description) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET description = excluded.description`,
		id, name, description)
	if err != nil {
		return apperrors.NewStorage("upsert custom query", err)
	}
	return nil
}

// List returns all registered custom queries ordered by name.
func (r *CustomQueryRepository) List(ctx context.Context, tx *sql.Tx) ([]*CustomQueryRow, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, name, description, created_at, updated_at FROM custom_queries ORDER BY name`)
	if err != nil {
		return nil, apperrors.NewStorage("list custom queries", err)
	}
	defer rows.Close()

	out := []*CustomQueryRow{}
	for rows.Next() {
		var row CustomQueryRow
		var description sql.NullString
		if err := rows.Scan(&row.ID, &row.Name, &description, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, apperrors.NewStorage("scan custom query", err)
		}
		row.Description = description.String
		out = append(out, &row)
	}
	return out, rows.Err()
}

// Delete removes a custom query descriptor by name.
func (r *CustomQueryRepository) Delete(ctx context.Context, tx *sql.Tx, name string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM custom_queries WHERE name = ?`, name)
	if err != nil {
		return apperrors.NewStorage("delete custom query", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFound(fmt.Sprintf("custom query %q", name))
	}
	return nil
}
