package events

import "time"

// Change kinds published by the query service after a committed write.
const (
	ChangeCreate = "create"
	ChangeUpdate = "update"
	ChangeDelete = "delete"
)

// ChangeEvent is a per-document change notification fanned out to realtime
// subscribers. For creates Document holds the full document data; for updates
// it holds the update delta (the operator map); for deletes it is nil.
type ChangeEvent struct {
	Kind       string         `json:"event"`
	Collection string         `json:"collection"`
	DocumentID string         `json:"documentId"`
	Document   map[string]any `json:"document,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
