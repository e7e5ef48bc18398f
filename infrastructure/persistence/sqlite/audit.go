package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"swiftbase/domain/entities"
	apperrors "swiftbase/pkg/errors"
)

// AuditRepository appends and lists audit records.
type AuditRepository struct{}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

// Insert appends one audit entry.
func (r *AuditRepository) Insert(ctx context.Context, tx *sql.Tx, entry *entities.AuditEntry) error {
	data, err := encodeNullableJSON(entry.Data)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_log (event_type, entity_type, entity_id, user_id, admin_id, data, ip, user_agent)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.EventType, entry.EntityType, entry.EntityID,
		nullable(entry.UserID), nullable(entry.AdminID), data,
		nullable(entry.IP), nullable(entry.UserAgent))
	if err != nil {
		return apperrors.NewStorage("insert audit entry", err)
	}
	return nil
}

// List returns a page of audit entries, newest first, plus the total count.
func (r *AuditRepository) List(ctx context.Context, tx *sql.Tx, limit, offset int) ([]*entities.AuditEntry, int64, error) {
	var total int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&total); err != nil {
		return nil, 0, apperrors.NewStorage("count audit entries", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, event_type, entity_type, entity_id, user_id, admin_id, data, ip, user_agent, created_at
		 FROM audit_log ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, apperrors.NewStorage("list audit entries", err)
	}
	defer rows.Close()

	entries := []*entities.AuditEntry{}
	for rows.Next() {
		var (
			entry     entities.AuditEntry
			userID    sql.NullString
			adminID   sql.NullString
			data      sql.NullString
			ip        sql.NullString
			userAgent sql.NullString
			createdAt string
		)
		err := rows.Scan(&entry.ID, &entry.EventType, &entry.EntityType, &entry.EntityID,
			&userID, &adminID, &data, &ip, &userAgent, &createdAt)
		if err != nil {
			return nil, 0, apperrors.NewStorage("scan audit entry", err)
		}
		if data.Valid {
			if err := json.Unmarshal([]byte(data.String), &entry.Data); err != nil {
				return nil, 0, apperrors.NewStorage("decode audit data", err)
			}
		}
		entry.UserID = userID.String
		entry.AdminID = adminID.String
		entry.IP = ip.String
		entry.UserAgent = userAgent.String
		entry.CreatedAt = parseTime(createdAt)
		entries = append(entries, &entry)
	}
	return entries, total, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
