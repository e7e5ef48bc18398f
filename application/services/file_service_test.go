package services

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swiftbase/domain/entities"
	"swiftbase/pkg/auth"
	apperrors "swiftbase/pkg/errors"
)

var (
	uploader = &auth.Principal{ID: "user-1", Type: auth.PrincipalUser}
	stranger = &auth.Principal{ID: "user-2", Type: auth.PrincipalUser}
)

func TestUploadAndOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payload := []byte("hello, file storage")

	meta, err := h.files.Upload(ctx, payload, "notes.txt", "text/plain", map[string]any{"topic": "testing"}, uploader)
	require.NoError(t, err)
	assert.NotEmpty(t, meta.ID)
	assert.Equal(t, "notes.txt", meta.OriginalName)
	assert.Equal(t, "text/plain", meta.ContentType)
	assert.Equal(t, int64(len(payload)), meta.SizeBytes)
	assert.Equal(t, "user-1", meta.UploadedBy)
	// The stored name is the id plus the original extension.
	assert.Equal(t, meta.ID+".txt", meta.StoredName)

	got, f, err := h.files.Open(ctx, meta.ID, uploader)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, meta.ID, got.ID)
	read, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, payload, read)
}

func TestUploadValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.files.Upload(ctx, nil, "empty.txt", "", nil, uploader)
	assert.True(t, apperrors.IsInvalid(err))

	_, err = h.files.Upload(ctx, []byte("x"), "", "", nil, uploader)
	assert.True(t, apperrors.IsInvalid(err))

	oversized := make([]byte, entities.MaxFileSize+1)
	_, err = h.files.Upload(ctx, oversized, "big.bin", "", nil, uploader)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindPayloadTooLarge))
}

func TestUploadDetectsContentType(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// PNG magic bytes sniff regardless of the file name.
	png := []byte("\x89PNG\r\n\x1a\n" + "0000000000000000")
	meta, err := h.files.Upload(ctx, png, "picture.dat", "", nil, uploader)
	require.NoError(t, err)
	assert.Equal(t, "image/png", meta.ContentType)
}

func TestUploadStripsDirectoryFromName(t *testing.T) {
	h := newHarness(t)

	meta, err := h.files.Upload(context.Background(), []byte("x"), "../../etc/passwd", "text/plain", nil, uploader)
	require.NoError(t, err)
	assert.Equal(t, "passwd", meta.OriginalName)
}

func TestFileAccessIsOwnerOrAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	meta, err := h.files.Upload(ctx, []byte("private"), "secret.txt", "text/plain", nil, uploader)
	require.NoError(t, err)

	_, err = h.files.GetMetadata(ctx, meta.ID, stranger)
	require.Error(t, err)
	assert.True(t, apperrors.IsForbidden(err))

	admin := &auth.Principal{ID: "admin-1", Type: auth.PrincipalAdmin}
	_, err = h.files.GetMetadata(ctx, meta.ID, admin)
	assert.NoError(t, err)

	err = h.files.Delete(ctx, meta.ID, stranger)
	assert.True(t, apperrors.IsForbidden(err))
}

func TestFileListIsScopedToCaller(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.files.Upload(ctx, []byte("a"), "mine.txt", "text/plain", nil, uploader)
	require.NoError(t, err)
	_, err = h.files.Upload(ctx, []byte("b"), "theirs.txt", "text/plain", nil, stranger)
	require.NoError(t, err)

	files, total, err := h.files.List(ctx, ListInput{Limit: 10}, uploader)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, files, 1)
	assert.Equal(t, "mine.txt", files[0].OriginalName)

	admin := &auth.Principal{ID: "admin-1", Type: auth.PrincipalAdmin}
	_, total, err = h.files.List(ctx, ListInput{Limit: 10}, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestFileSearchFiltersByName(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.files.Upload(ctx, []byte("a"), "quarterly-report.pdf", "application/pdf", nil, uploader)
	require.NoError(t, err)
	_, err = h.files.Upload(ctx, []byte("b"), "holiday.jpg", "image/jpeg", nil, uploader)
	require.NoError(t, err)

	files, total, err := h.files.List(ctx, ListInput{Search: "report", Limit: 10}, uploader)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, files, 1)
	assert.Equal(t, "quarterly-report.pdf", files[0].OriginalName)

	files, _, err = h.files.List(ctx, ListInput{ContentType: "image/jpeg", Limit: 10}, uploader)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "holiday.jpg", files[0].OriginalName)
}

func TestFileDeleteRemovesPayload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	meta, err := h.files.Upload(ctx, []byte("bye"), "gone.txt", "text/plain", nil, uploader)
	require.NoError(t, err)
	require.FileExists(t, meta.Path)

	require.NoError(t, h.files.Delete(ctx, meta.ID, uploader))
	assert.NoFileExists(t, meta.Path)

	_, err = h.files.GetMetadata(ctx, meta.ID, uploader)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestFileStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.files.Upload(ctx, []byte("12345"), "a.txt", "text/plain", nil, uploader)
	require.NoError(t, err)
	_, err = h.files.Upload(ctx, []byte("123"), "b.txt", "text/plain", nil, uploader)
	require.NoError(t, err)

	stats, err := h.files.Stats(ctx, uploader)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalFiles)
	assert.Equal(t, int64(8), stats.TotalBytes)
}

func TestSweepReconcilesDiskAndRows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	meta, err := h.files.Upload(ctx, []byte("kept"), "kept.txt", "text/plain", nil, uploader)
	require.NoError(t, err)

	// An orphaned payload: bytes on disk with no row.
	orphan := filepath.Join(h.storageDir, "orphan.bin")
	require.NoError(t, os.WriteFile(orphan, []byte("stray"), 0o644))

	// An orphaned row: metadata whose payload disappeared.
	ghost, err := h.files.Upload(ctx, []byte("ghost"), "ghost.txt", "text/plain", nil, uploader)
	require.NoError(t, err)
	require.NoError(t, os.Remove(ghost.Path))

	result, err := h.files.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.OrphanedPayloads)
	assert.Equal(t, 1, result.OrphanedRows)

	assert.NoFileExists(t, orphan)
	require.FileExists(t, meta.Path)
	_, err = h.files.GetMetadata(ctx, ghost.ID, uploader)
	assert.True(t, apperrors.IsNotFound(err))

	// A clean tree sweeps to zero.
	result, err = h.files.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.OrphanedPayloads)
	assert.Zero(t, result.OrphanedRows)
}
