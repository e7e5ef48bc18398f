package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"swiftbase/domain/entities"
	apperrors "swiftbase/pkg/errors"
)

// UserRepository reads and writes end-user principal rows. The refresh token
// session set rides on the row as JSON, so session mutations commit atomically
// with everything else in the same write scope.
type UserRepository struct{}

func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

const userColumns = `id, email, password_hash, refresh_tokens, metadata, last_login, email_verified, last_revoked_at, created_at, updated_at`

// Insert stores a new user. Emails are stored lowercased; a duplicate surfaces
// as a conflict.
func (r *UserRepository) Insert(ctx context.Context, tx *sql.Tx, user *entities.User) error {
	metadata, err := encodeNullableJSON(user.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, metadata) VALUES (?, ?, ?, ?)`,
		user.ID, strings.ToLower(user.Email), user.PasswordHash, metadata)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflict("email already registered")
		}
		return apperrors.NewStorage("insert user", err)
	}
	return nil
}

// GetByEmail fetches a user by lowercased email.
func (r *UserRepository) GetByEmail(ctx context.Context, tx *sql.Tx, email string) (*entities.User, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(email))
	return r.scan(row, email)
}

// GetByID fetches a user by id.
func (r *UserRepository) GetByID(ctx context.Context, tx *sql.Tx, id string) (*entities.User, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return r.scan(row, id)
}

// SaveSessions persists the user's refresh token set.
func (r *UserRepository) SaveSessions(ctx context.Context, tx *sql.Tx, id string, sessions entities.SessionSet) error {
	return saveSessions(ctx, tx, "users", id, sessions)
}

// SetLastLogin records a successful login.
func (r *UserRepository) SetLastLogin(ctx context.Context, tx *sql.Tx, id string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET last_login = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return apperrors.NewStorage("record login", err)
	}
	return nil
}

// Revoke empties the session set and stamps the revocation tombstone, which
// invalidates every outstanding token for the user.
func (r *UserRepository) Revoke(ctx context.Context, tx *sql.Tx, id string, at time.Time) error {
	return revokeSessions(ctx, tx, "users", id, at)
}

func (r *UserRepository) scan(row *sql.Row, ref string) (*entities.User, error) {
	var (
		user      entities.User
		sessions  string
		metadata  sql.NullString
		lastLogin sql.NullString
		revokedAt sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &sessions, &metadata,
		&lastLogin, &user.EmailVerified, &revokedAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound(fmt.Sprintf("user %q", ref))
	}
	if err != nil {
		return nil, apperrors.NewStorage("read user", err)
	}
	if err := json.Unmarshal([]byte(sessions), &user.RefreshTokens); err != nil {
		return nil, apperrors.NewStorage("decode session set", err)
	}
	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &user.Metadata); err != nil {
			return nil, apperrors.NewStorage("decode user metadata", err)
		}
	}
	user.LastLogin = parseNullableTime(lastLogin)
	user.LastRevokedAt = parseNullableTime(revokedAt)
	user.CreatedAt = parseTime(createdAt)
	user.UpdatedAt = parseTime(updatedAt)
	return &user, nil
}

// AdminRepository reads and writes administrative principal rows.
type AdminRepository struct{}

func NewAdminRepository() *AdminRepository {
	return &AdminRepository{}
}

const adminColumns = `id, username, password_hash, refresh_tokens, last_login, last_revoked_at, created_at, updated_at`

// Insert stores a new admin.
func (r *AdminRepository) Insert(ctx context.Context, tx *sql.Tx, admin *entities.Admin) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO admins (id, username, password_hash) VALUES (?, ?, ?)`,
		admin.ID, admin.Username, admin.PasswordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflict(fmt.Sprintf("admin %q already exists", admin.Username))
		}
		return apperrors.NewStorage("insert admin", err)
	}
	return nil
}

// GetByUsername fetches an admin by username (case-insensitive).
func (r *AdminRepository) GetByUsername(ctx context.Context, tx *sql.Tx, username string) (*entities.Admin, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+adminColumns+` FROM admins WHERE username = ?`, username)
	return r.scan(row, username)
}

// GetByID fetches an admin by id.
func (r *AdminRepository) GetByID(ctx context.Context, tx *sql.Tx, id string) (*entities.Admin, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+adminColumns+` FROM admins WHERE id = ?`, id)
	return r.scan(row, id)
}

// Count reports how many admins exist; zero means the instance needs seeding.
func (r *AdminRepository) Count(ctx context.Context, tx *sql.Tx) (int64, error) {
	var count int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&count); err != nil {
		return 0, apperrors.NewStorage("count admins", err)
	}
	return count, nil
}

// SaveSessions persists the admin's refresh token set.
func (r *AdminRepository) SaveSessions(ctx context.Context, tx *sql.Tx, id string, sessions entities.SessionSet) error {
	return saveSessions(ctx, tx, "admins", id, sessions)
}

// SetLastLogin records a successful login.
func (r *AdminRepository) SetLastLogin(ctx context.Context, tx *sql.Tx, id string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE admins SET last_login = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return apperrors.NewStorage("record login", err)
	}
	return nil
}

// Revoke empties the session set and stamps the revocation tombstone.
func (r *AdminRepository) Revoke(ctx context.Context, tx *sql.Tx, id string, at time.Time) error {
	return revokeSessions(ctx, tx, "admins", id, at)
}

func (r *AdminRepository) scan(row *sql.Row, ref string) (*entities.Admin, error) {
	var (
		admin     entities.Admin
		sessions  string
		lastLogin sql.NullString
		revokedAt sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&admin.ID, &admin.Username, &admin.PasswordHash, &sessions,
		&lastLogin, &revokedAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound(fmt.Sprintf("admin %q", ref))
	}
	if err != nil {
		return nil, apperrors.NewStorage("read admin", err)
	}
	if err := json.Unmarshal([]byte(sessions), &admin.RefreshTokens); err != nil {
		return nil, apperrors.NewStorage("decode session set", err)
	}
	admin.LastLogin = parseNullableTime(lastLogin)
	admin.LastRevokedAt = parseNullableTime(revokedAt)
	admin.CreatedAt = parseTime(createdAt)
	admin.UpdatedAt = parseTime(updatedAt)
	return &admin, nil
}

func saveSessions(ctx context.Context, tx *sql.Tx, table, id string, sessions entities.SessionSet) error {
	if sessions == nil {
		sessions = entities.SessionSet{}
	}
	raw, err := json.Marshal(sessions)
	if err != nil {
		return apperrors.NewStorage("encode session set", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE `+table+` SET refresh_tokens = ? WHERE id = ?`, string(raw), id)
	if err != nil {
		return apperrors.NewStorage("save session set", err)
	}
	return nil
}

func revokeSessions(ctx context.Context, tx *sql.Tx, table, id string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE `+table+` SET refresh_tokens = '[]', last_revoked_at = ? WHERE id = ?`,
		formatTime(at), id)
	if err != nil {
		return apperrors.NewStorage("revoke sessions", err)
	}
	return nil
}

func encodeNullableJSON(v map[string]any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, apperrors.NewInvalidInputf("metadata is not encodable: %v", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func parseNullableTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t := parseTime(v.String)
	return &t
}
