package entities

import "time"

// MaxFileSize bounds any stored file payload (100 MiB).
const MaxFileSize = 100 * 1024 * 1024

// FileMetadata describes a stored file payload. Deleting the row removes the
// payload in the same logical operation; a payload without a row is an orphan
// cleaned up by the sweep.
type FileMetadata struct {
	ID           string         `json:"id"`
	StoredName   string         `json:"stored_name"`
	OriginalName string         `json:"original_name"`
	ContentType  string         `json:"content_type"`
	SizeBytes    int64          `json:"size_bytes"`
	Path         string         `json:"-"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	UploadedBy   string         `json:"uploaded_by,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// FileStats are aggregate totals over stored files.
type FileStats struct {
	TotalFiles int64 `json:"total_files"`
	TotalBytes int64 `json:"total_bytes"`
}
