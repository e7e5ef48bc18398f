package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// sqliteNow is the timestamp expression used everywhere; millisecond precision
// keeps updated_at strictly ordered across quick successive writes.
const sqliteNow = `strftime('%Y-%m-%dT%H:%M:%fZ','now')`

// Migration is one forward/backward schema step. A migration applied
// successfully records its version in the same transaction as its effects.
type Migration struct {
	Version int
	Name    string
	Up      []string
	Down    []string
}

var migrations = []Migration{
	{
		Version: 1,
		Name:    "core tables",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS collections (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL UNIQUE,
				schema     TEXT,
				indexes    TEXT,
				metadata   TEXT,
				created_at TEXT NOT NULL DEFAULT (` + sqliteNow + `),
				updated_at TEXT NOT NULL DEFAULT (` + sqliteNow + `)
			)`,
			`CREATE TABLE IF NOT EXISTS documents (
				id            TEXT NOT NULL,
				collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
				data          TEXT NOT NULL CHECK (json_valid(data)),
				version       INTEGER NOT NULL DEFAULT 1,
				created_by    TEXT,
				updated_by    TEXT,
				created_at    TEXT NOT NULL DEFAULT (` + sqliteNow + `),
				updated_at    TEXT NOT NULL DEFAULT (` + sqliteNow + `),
				PRIMARY KEY (collection_id, id)
			)`,
			`CREATE TABLE IF NOT EXISTS users (
				id              TEXT PRIMARY KEY,
				email           TEXT NOT NULL UNIQUE,
				password_hash   TEXT NOT NULL,
				refresh_tokens  TEXT NOT NULL DEFAULT '[]',
				metadata        TEXT,
				last_login      TEXT,
				email_verified  INTEGER NOT NULL DEFAULT 0,
				last_revoked_at TEXT,
				created_at      TEXT NOT NULL DEFAULT (` + sqliteNow + `),
				updated_at      TEXT NOT NULL DEFAULT (` + sqliteNow + `)
			)`,
			`CREATE TABLE IF NOT EXISTS admins (
				id              TEXT PRIMARY KEY,
				username        TEXT NOT NULL UNIQUE COLLATE NOCASE,
				password_hash   TEXT NOT NULL,
				refresh_tokens  TEXT NOT NULL DEFAULT '[]',
				last_login      TEXT,
				last_revoked_at TEXT,
				created_at      TEXT NOT NULL DEFAULT (` + sqliteNow + `),
				updated_at      TEXT NOT NULL DEFAULT (` + sqliteNow + `)
			)`,
		},
		Down: []string{
			`DROP TABLE IF EXISTS documents`,
			`DROP TABLE IF EXISTS collections`,
			`DROP TABLE IF EXISTS users`,
			`DROP TABLE IF EXISTS admins`,
		},
	},
	{
		Version: 2,
		Name:    "files, custom queries, audit log",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS files (
				id            TEXT PRIMARY KEY,
				stored_name   TEXT NOT NULL UNIQUE,
				original_name TEXT NOT NULL,
				content_type  TEXT NOT NULL,
				size_bytes    INTEGER NOT NULL,
				path          TEXT NOT NULL,
				metadata      TEXT,
				uploaded_by   TEXT REFERENCES users(id) ON DELETE SET NULL,
				created_at    TEXT NOT NULL DEFAULT (` + sqliteNow + `)
			)`,
			`CREATE TABLE IF NOT EXISTS custom_queries (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL UNIQUE,
				description TEXT,
				created_at  TEXT NOT NULL DEFAULT (` + sqliteNow + `),
				updated_at  TEXT NOT NULL DEFAULT (` + sqliteNow + `)
			)`,
			`CREATE TABLE IF NOT EXISTS audit_log (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				event_type  TEXT NOT NULL,
				entity_type TEXT NOT NULL,
				entity_id   TEXT NOT NULL,
				user_id     TEXT,
				admin_id    TEXT,
				data        TEXT,
				ip          TEXT,
				user_agent  TEXT,
				created_at  TEXT NOT NULL DEFAULT (` + sqliteNow + `)
			)`,
		},
		Down: []string{
			`DROP TABLE IF EXISTS audit_log`,
			`DROP TABLE IF EXISTS custom_queries`,
			`DROP TABLE IF EXISTS files`,
		},
	},
	{
		Version: 3,
		Name:    "audit timestamps and version triggers",
		Up: []string{
			// updated_at bumps are trigger-enforced so the application cannot
			// double-step them. Recursive triggers are off, so the inner
			// UPDATE does not re-fire.
			`CREATE TRIGGER IF NOT EXISTS trg_users_touch AFTER UPDATE ON users
			BEGIN
				UPDATE users SET updated_at = ` + sqliteNow + ` WHERE id = NEW.id;
			END`,
			`CREATE TRIGGER IF NOT EXISTS trg_admins_touch AFTER UPDATE ON admins
			BEGIN
				UPDATE admins SET updated_at = ` + sqliteNow + ` WHERE id = NEW.id;
			END`,
			`CREATE TRIGGER IF NOT EXISTS trg_collections_touch AFTER UPDATE ON collections
			BEGIN
				UPDATE collections SET updated_at = ` + sqliteNow + ` WHERE id = NEW.id;
			END`,
			`CREATE TRIGGER IF NOT EXISTS trg_custom_queries_touch AFTER UPDATE ON custom_queries
			BEGIN
				UPDATE custom_queries SET updated_at = ` + sqliteNow + ` WHERE id = NEW.id;
			END`,
			// Documents: updated_at always, version only when data changed.
			`CREATE TRIGGER IF NOT EXISTS trg_documents_touch AFTER UPDATE ON documents
			BEGIN
				UPDATE documents
				SET updated_at = ` + sqliteNow + `,
				    version = version + (CASE WHEN OLD.data IS NOT NEW.data THEN 1 ELSE 0 END)
				WHERE collection_id = NEW.collection_id AND id = NEW.id;
			END`,
			`CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection_id)`,
			`CREATE INDEX IF NOT EXISTS idx_files_uploaded_by ON files(uploaded_by)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id)`,
		},
		Down: []string{
			`DROP TRIGGER IF EXISTS trg_users_touch`,
			`DROP TRIGGER IF EXISTS trg_admins_touch`,
			`DROP TRIGGER IF EXISTS trg_collections_touch`,
			`DROP TRIGGER IF EXISTS trg_custom_queries_touch`,
			`DROP TRIGGER IF EXISTS trg_documents_touch`,
			`DROP INDEX IF EXISTS idx_documents_collection`,
			`DROP INDEX IF EXISTS idx_files_uploaded_by`,
			`DROP INDEX IF EXISTS idx_audit_entity`,
		},
	},
}

// Migrate applies all pending forward migrations, each inside its own write
// scope so the version record commits atomically with the migration's effects.
func (k *Kernel) Migrate(ctx context.Context) error {
	if err := k.ensureMigrationTable(ctx); err != nil {
		return err
	}
	current, err := k.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		err := k.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
			for _, stmt := range m.Up {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
				}
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, `+sqliteNow+`)`,
				m.Version, m.Name)
			return err
		})
		if err != nil {
			return err
		}
		k.logger.Info("applied migration",
			zap.Int("version", m.Version),
			zap.String("name", m.Name),
		)
	}
	return nil
}

// Rollback reverses the last applied migration.
func (k *Kernel) Rollback(ctx context.Context) error {
	if err := k.ensureMigrationTable(ctx); err != nil {
		return err
	}
	current, err := k.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current == 0 {
		return fmt.Errorf("no migrations to roll back")
	}

	var target *Migration
	for i := range migrations {
		if migrations[i].Version == current {
			target = &migrations[i]
		}
	}
	if target == nil {
		return fmt.Errorf("unknown schema version %d", current)
	}

	err = k.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range target.Down {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("rollback of migration %d (%s): %w", target.Version, target.Name, err)
			}
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = ?`, target.Version)
		return err
	})
	if err != nil {
		return err
	}
	k.logger.Info("rolled back migration",
		zap.Int("version", target.Version),
		zap.String("name", target.Name),
	)
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (k *Kernel) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := k.Read(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	})
	return version, err
}

func (k *Kernel) ensureMigrationTable(ctx context.Context) error {
	return k.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`)
		return err
	})
}
