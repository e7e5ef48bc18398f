package entities

import (
	"regexp"
	"time"

	apperrors "swiftbase/pkg/errors"
)

// collectionNamePattern is the restricted character set collection names are
// drawn from. It doubles as the injection guard for the collection identifier.
var collectionNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

// Collection is a named container of documents. Its schema and indexes are
// advisory metadata only and are never enforced against document writes.
type Collection struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Schema    map[string]any `json:"schema,omitempty"`
	Indexes   []string       `json:"indexes,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	// DocumentCount is derived on read; it is not a stored column.
	DocumentCount int64 `json:"document_count"`
}

// ValidateCollectionName rejects names outside the restricted character set.
func ValidateCollectionName(name string) error {
	if name == "" {
		return apperrors.NewInvalidInput("collection name is required")
	}
	if !collectionNamePattern.MatchString(name) {
		return apperrors.NewInvalidInputf("invalid collection name %q", name)
	}
	return nil
}

// CollectionStats are the derived statistics returned by the stats operation.
type CollectionStats struct {
	DocumentCount       int64      `json:"document_count"`
	TotalSizeEstimate   int64      `json:"total_size_estimate"`
	AverageDocumentSize int64      `json:"average_document_size"`
	IndexCount          int        `json:"index_count"`
	OldestCreatedAt     *time.Time `json:"oldest_created_at,omitempty"`
	NewestCreatedAt     *time.Time `json:"newest_created_at,omitempty"`
}
