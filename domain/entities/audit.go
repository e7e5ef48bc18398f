package entities

import "time"

// Audit event types recorded by the services.
const (
	AuditUserRegistered    = "user.registered"
	AuditUserLogin         = "user.login"
	AuditUserLogout        = "user.logout"
	AuditAdminLogin        = "admin.login"
	AuditAdminLogout       = "admin.logout"
	AuditCollectionCreated = "collection.created"
	AuditCollectionUpdated = "collection.updated"
	AuditCollectionDeleted = "collection.deleted"
	AuditFileUploaded      = "file.uploaded"
	AuditFileDeleted       = "file.deleted"
)

// AuditEntry is an append-only audit record. Entries are never mutated after
// insert.
type AuditEntry struct {
	ID         int64          `json:"id"`
	EventType  string         `json:"event_type"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	UserID     string         `json:"user_id,omitempty"`
	AdminID    string         `json:"admin_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	IP         string         `json:"ip,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
