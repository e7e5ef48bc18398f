package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swiftbase/domain/query"
	"swiftbase/pkg/auth"
	apperrors "swiftbase/pkg/errors"
)

var testAdmin = &auth.Principal{ID: "admin-1", Type: auth.PrincipalAdmin}

func TestCollectionCreateAndGet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.collections.Create(ctx, CreateInput{
		Name:    "articles",
		Schema:  map[string]any{"title": "string"},
		Indexes: []string{"title"},
	}, testAdmin)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "articles", created.Name)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := h.collections.Get(ctx, "articles")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, []string{"title"}, got.Indexes)

	_, err = h.collections.Get(ctx, "nonexistent")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = h.collections.Get(ctx, "bad name!")
	assert.True(t, apperrors.IsInvalid(err))
}

func TestCollectionCreateDuplicateConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.collections.Create(ctx, CreateInput{Name: "articles"}, testAdmin)
	require.NoError(t, err)

	_, err = h.collections.Create(ctx, CreateInput{Name: "articles"}, testAdmin)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestCollectionListCarriesDocumentCounts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mustCreateCollection(t, "posts")
	h.mustCreateCollection(t, "empty")

	for i := 0; i < 3; i++ {
		_, err := h.queries.Execute(ctx, &query.Request{
			Action:     "create",
			Collection: "posts",
			Data:       map[string]any{"n": float64(i)},
		}, "")
		require.NoError(t, err)
	}

	cols, err := h.collections.List(ctx)
	require.NoError(t, err)
	counts := make(map[string]int64, len(cols))
	for _, col := range cols {
		counts[col.Name] = col.DocumentCount
	}
	assert.Equal(t, int64(3), counts["posts"])
	assert.Equal(t, int64(0), counts["empty"])
}

func TestCollectionUpdateRewritesAdvisoryFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mustCreateCollection(t, "posts")

	updated, err := h.collections.Update(ctx, "posts", UpdateInput{
		Schema:   map[string]any{"title": "string"},
		Metadata: map[string]any{"owner": "content-team"},
	}, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, "string", updated.Schema["title"])
	assert.Equal(t, "content-team", updated.Metadata["owner"])

	// Omitted fields keep their previous value.
	updated, err = h.collections.Update(ctx, "posts", UpdateInput{
		Indexes: []string{"title"},
	}, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, "string", updated.Schema["title"])
	assert.Equal(t, []string{"title"}, updated.Indexes)
}

func TestCollectionDeleteRefusesNonEmptyWithoutCascade(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mustCreateCollection(t, "posts")

	for i := 0; i < 2; i++ {
		_, err := h.queries.Execute(ctx, &query.Request{
			Action:     "create",
			Collection: "posts",
			Data:       map[string]any{"n": float64(i)},
		}, "")
		require.NoError(t, err)
	}

	err := h.collections.Delete(ctx, "posts", false, testAdmin)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, int64(2), appErr.Details["document_count"])

	// With cascade the documents go with the collection.
	require.NoError(t, h.collections.Delete(ctx, "posts", true, testAdmin))
	_, err = h.collections.Get(ctx, "posts")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCollectionDeleteEmptyNeedsNoCascade(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mustCreateCollection(t, "posts")

	require.NoError(t, h.collections.Delete(ctx, "posts", false, testAdmin))
}

func TestCollectionStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mustCreateCollection(t, "posts")

	for i := 0; i < 2; i++ {
		_, err := h.queries.Execute(ctx, &query.Request{
			Action:     "create",
			Collection: "posts",
			Data:       map[string]any{"title": "some content here"},
		}, "")
		require.NoError(t, err)
	}

	stats, err := h.collections.Stats(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.DocumentCount)
	assert.Greater(t, stats.TotalSizeEstimate, int64(0))
	assert.NotNil(t, stats.OldestCreatedAt)
}
