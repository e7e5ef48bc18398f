package services

import (
	"context"
	"database/sql"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"swiftbase/domain/entities"
	"swiftbase/infrastructure/persistence/sqlite"
	"swiftbase/pkg/auth"
	apperrors "swiftbase/pkg/errors"
)

// sweepBatchSize bounds how many orphaned rows one write scope removes, so
// the sweep yields the writer lease to request handlers.
const sweepBatchSize = 50

// FileService stores file payloads on disk and their metadata in the
// database. Payload bytes are only ever addressed through metadata rows; a
// payload without a row is an orphan the periodic sweep removes.
type FileService struct {
	kernel *sqlite.Kernel
	files  *sqlite.FileRepository
	audit  *AuditRecorder
	dir    string
	logger *zap.Logger

	sweepStop chan struct{}
	sweepDone chan struct{}
}

func NewFileService(
	kernel *sqlite.Kernel,
	files *sqlite.FileRepository,
	audit *AuditRecorder,
	storageDir string,
	logger *zap.Logger,
) (*FileService, error) {
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, apperrors.NewInternal("creating storage directory").WithCause(err)
	}
	return &FileService{
		kernel: kernel,
		files:  files,
		audit:  audit,
		dir:    storageDir,
		logger: logger,
	}, nil
}

// Upload validates and stores one payload with its metadata row.
func (s *FileService) Upload(ctx context.Context, payload []byte, originalName, contentType string, metadata map[string]any, principal *auth.Principal) (*entities.FileMetadata, error) {
	if len(payload) == 0 {
		return nil, apperrors.NewInvalidInput("file payload is empty")
	}
	if int64(len(payload)) > entities.MaxFileSize {
		return nil, apperrors.NewPayloadTooLarge("file exceeds the 100 MiB limit")
	}
	if originalName == "" {
		return nil, apperrors.NewInvalidInput("file name is required")
	}
	originalName = filepath.Base(originalName)

	if contentType == "" {
		contentType = detectContentType(payload, originalName)
	}

	id := uuid.New().String()
	storedName := id + strings.ToLower(filepath.Ext(originalName))
	path := filepath.Join(s.dir, storedName)

	// Bytes land on disk before the row exists; if the insert fails the
	// payload is removed again (and the sweep would catch it regardless).
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return nil, apperrors.NewInternal("writing file payload").WithCause(err)
	}

	meta := &entities.FileMetadata{
		ID:           id,
		StoredName:   storedName,
		OriginalName: originalName,
		ContentType:  contentType,
		SizeBytes:    int64(len(payload)),
		Path:         path,
		Metadata:     metadata,
		UploadedBy:   principal.ID,
	}
	err := s.kernel.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.files.Insert(ctx, tx, meta); err != nil {
			return err
		}
		return s.audit.record(ctx, tx, entities.AuditFileUploaded, "file", id, principal,
			map[string]any{"name": originalName, "size": meta.SizeBytes})
	})
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	stored, err := s.GetMetadata(ctx, id, principal)
	if err != nil {
		return meta, nil
	}
	return stored, nil
}

// GetMetadata returns one file's descriptor; the caller must be its uploader
// or an admin.
func (s *FileService) GetMetadata(ctx context.Context, id string, principal *auth.Principal) (*entities.FileMetadata, error) {
	var meta *entities.FileMetadata
	err := s.kernel.Read(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		meta, err = s.files.GetByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := s.authorize(meta, principal); err != nil {
		return nil, err
	}
	return meta, nil
}

// Open returns the descriptor and an open payload handle for serving bytes.
// The caller owns closing the handle.
func (s *FileService) Open(ctx context.Context, id string, principal *auth.Principal) (*entities.FileMetadata, *os.File, error) {
	meta, err := s.GetMetadata(ctx, id, principal)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(meta.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, apperrors.NewNotFound("file payload")
		}
		return nil, nil, apperrors.NewInternal("opening file payload").WithCause(err)
	}
	return meta, f, nil
}

// ListInput filters a listing; non-admins only ever see their own files.
type ListInput struct {
	ContentType string
	Search      string
	Limit       int
	Offset      int
}

// List returns the caller's files (all files for admins) plus the total.
func (s *FileService) List(ctx context.Context, input ListInput, principal *auth.Principal) ([]*entities.FileMetadata, int64, error) {
	filter := sqlite.FileFilter{
		ContentType: input.ContentType,
		Search:      input.Search,
		Limit:       input.Limit,
		Offset:      input.Offset,
	}
	if !principal.IsAdmin() {
		filter.UploadedBy = principal.ID
	}

	var (
		files []*entities.FileMetadata
		total int64
	)
	err := s.kernel.Read(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		files, total, err = s.files.List(ctx, tx, filter)
		return err
	})
	return files, total, err
}

// Delete removes payload and metadata as one logical operation. The row goes
// first; payload removal failure leaves an orphan for the sweep.
func (s *FileService) Delete(ctx context.Context, id string, principal *auth.Principal) error {
	var path string
	err := s.kernel.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		meta, err := s.files.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.authorize(meta, principal); err != nil {
			return err
		}
		path = meta.Path
		if err := s.files.Delete(ctx, tx, id); err != nil {
			return err
		}
		return s.audit.record(ctx, tx, entities.AuditFileDeleted, "file", id, principal, nil)
	})
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("deleting file payload", zap.String("path", path), zap.Error(err))
	}
	return nil
}

// Stats returns totals for the caller; admins get the global totals.
func (s *FileService) Stats(ctx context.Context, principal *auth.Principal) (*entities.FileStats, error) {
	uploadedBy := principal.ID
	if principal.IsAdmin() {
		uploadedBy = ""
	}
	var stats *entities.FileStats
	err := s.kernel.Read(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		stats, err = s.files.Stats(ctx, tx, uploadedBy)
		return err
	})
	return stats, err
}

// SweepResult reports what one sweep removed.
type SweepResult struct {
	OrphanedPayloads int `json:"orphaned_payloads"`
	OrphanedRows     int `json:"orphaned_rows"`
}

// Sweep reconciles disk and database: payloads without rows are deleted, rows
// without payloads are deleted, in small batches so the writer lease is never
// held long.
func (s *FileService) Sweep(ctx context.Context) (*SweepResult, error) {
	var tracked map[string]bool
	err := s.kernel.Read(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		tracked, err = s.files.StoredNames(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &SweepResult{}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, apperrors.NewInternal("reading storage directory").WithCause(err)
	}
	onDisk := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		onDisk[entry.Name()] = true
		if tracked[entry.Name()] {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
			result.OrphanedPayloads++
		}
	}

	var missing []string
	for name := range tracked {
		if !onDisk[name] {
			missing = append(missing, name)
		}
	}
	for start := 0; start < len(missing); start += sweepBatchSize {
		end := start + sweepBatchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]
		err := s.kernel.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
			return s.files.DeleteByStoredNames(ctx, tx, batch)
		})
		if err != nil {
			return result, err
		}
		result.OrphanedRows += len(batch)
	}

	if result.OrphanedPayloads > 0 || result.OrphanedRows > 0 {
		s.logger.Info("storage sweep",
			zap.Int("orphaned_payloads", result.OrphanedPayloads),
			zap.Int("orphaned_rows", result.OrphanedRows),
		)
	}
	return result, nil
}

// StartSweeper runs Sweep on the given interval until Stop is called.
func (s *FileService) StartSweeper(interval time.Duration) {
	if s.sweepStop != nil {
		return
	}
	s.sweepStop = make(chan struct{})
	s.sweepDone = make(chan struct{})

	go func() {
		defer close(s.sweepDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := s.Sweep(context.Background()); err != nil {
					s.logger.Warn("storage sweep failed", zap.Error(err))
				}
			case <-s.sweepStop:
				return
			}
		}
	}()
}

// Stop halts the periodic sweep and waits for an in-flight run.
func (s *FileService) Stop() {
	if s.sweepStop == nil {
		return
	}
	close(s.sweepStop)
	<-s.sweepDone
	s.sweepStop = nil
}

func (s *FileService) authorize(meta *entities.FileMetadata, principal *auth.Principal) error {
	if principal.IsAdmin() || meta.UploadedBy == principal.ID {
		return nil
	}
	return apperrors.NewForbidden("you do not have access to this file")
}

// detectContentType sniffs magic numbers first and falls back to the file
// extension, defaulting to an opaque byte stream.
func detectContentType(payload []byte, name string) string {
	detected := mimetype.Detect(payload).String()
	if detected != "application/octet-stream" {
		return detected
	}
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}
