package entities

import "time"

// Document is a stored JSON record owned by exactly one collection. Version
// starts at 1 and is bumped by a database trigger whenever data changes; the
// application never sets version or updated_at on mutation.
type Document struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Data       map[string]any `json:"data"`
	Version    int64          `json:"version"`
	CreatedBy  string         `json:"created_by,omitempty"`
	UpdatedBy  string         `json:"updated_by,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
