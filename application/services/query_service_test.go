package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swiftbase/domain/entities"
	"swiftbase/domain/events"
	"swiftbase/domain/query"
	apperrors "swiftbase/pkg/errors"
)

func TestExecuteCreateHonorsProvidedID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mustCreateCollection(t, "posts")

	result, err := h.queries.Execute(ctx, &query.Request{
		Action:     "create",
		Collection: "posts",
		Data:       map[string]any{"_id": "my-id", "title": "hello"},
	}, "user-1")
	require.NoError(t, err)

	doc, ok := result.(*entities.Document)
	require.True(t, ok)
	assert.Equal(t, "my-id", doc.ID)
	assert.Equal(t, "my-id", doc.Data["_id"])
	assert.Equal(t, "user-1", doc.CreatedBy)
	assert.Equal(t, int64(1), doc.Version)

	// Without a caller id the store generates one, and it lands in data too.
	result, err = h.queries.Execute(ctx, &query.Request{
		Action:     "create",
		Collection: "posts",
		Data:       map[string]any{"title": "second"},
	}, "user-1")
	require.NoError(t, err)
	doc = result.(*entities.Document)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, doc.ID, doc.Data["_id"])

	published := h.published.all()
	require.Len(t, published, 2)
	assert.Equal(t, events.ChangeCreate, published[0].Kind)
	assert.Equal(t, "posts", published[0].Collection)
	assert.Equal(t, "my-id", published[0].DocumentID)
}

func TestExecuteCreateUnknownCollection(t *testing.T) {
	h := newHarness(t)

	_, err := h.queries.Execute(context.Background(), &query.Request{
		Action:     "create",
		Collection: "missing",
		Data:       map[string]any{"a": float64(1)},
	}, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Empty(t, h.published.all(), "nothing may be published for a failed write")
}

func TestExecuteFindAndFindOne(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mustCreateCollection(t, "posts")

	for _, data := range []map[string]any{
		{"_id": "a", "status": "live", "views": float64(10)},
		{"_id": "b", "status": "draft", "views": float64(2)},
		{"_id": "c", "status": "live", "views": float64(5)},
	} {
		_, err := h.queries.Execute(ctx, &query.Request{Action: "create", Collection: "posts", Data: data}, "")
		require.NoError(t, err)
	}

	result, err := h.queries.Execute(ctx, &query.Request{
		Action:     "find",
		Collection: "posts",
		Query: &query.Spec{
			Where:   map[string]any{"status": "live"},
			OrderBy: map[string]string{"views": "desc"},
		},
	}, "")
	require.NoError(t, err)
	docs := result.([]*entities.Document)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "c", docs[1].ID)
	assert.Equal(t, "posts", docs[0].Collection)

	result, err = h.queries.Execute(ctx, &query.Request{
		Action:     "findOne",
		Collection: "posts",
		Query:      &query.Spec{Where: map[string]any{"_id": "b"}},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "b", result.(*entities.Document).ID)

	_, err = h.queries.Execute(ctx, &query.Request{
		Action:     "findOne",
		Collection: "posts",
		Query:      &query.Spec{Where: map[string]any{"_id": "nope"}},
	}, "")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestExecuteFindProjectsSelectedFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mustCreateCollection(t, "posts")

	_, err := h.queries.Execute(ctx, &query.Request{
		Action:     "create",
		Collection: "posts",
		Data: map[string]any{
			"_id":    "a",
			"title":  "hello",
			"body":   "long text",
			"author": map[string]any{"name": "ada", "email": "ada@example.com"},
		},
	}, "")
	require.NoError(t, err)

	result, err := h.queries.Execute(ctx, &query.Request{
		Action:     "find",
		Collection: "posts",
		Query:      &query.Spec{Select: []string{"title", "author.name"}},
	}, "")
	require.NoError(t, err)

	docs := result.([]*entities.Document)
	require.Len(t, docs, 1)
	data := docs[0].Data
	assert.Equal(t, "a", data["_id"])
	assert.Equal(t, "hello", data["title"])
	assert.NotContains(t, data, "body")
	author := data["author"].(map[string]any)
	assert.Equal(t, "ada", author["name"])
	assert.NotContains(t, author, "email")
}

func TestExecuteCountAndDistinct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mustCreateCollection(t, "posts")

	for _, status := range []string{"live", "live", "draft"} {
		_, err := h.queries.Execute(ctx, &query.Request{
			Action:     "create",
			Collection: "posts",
			Data:       map[string]any{"status": status},
		}, "")
		require.NoError(t, err)
	}

	result, err := h.queries.Execute(ctx, &query.Request{
		Action:     "count",
		Collection: "posts",
		Query:      &query.Spec{Where: map[string]any{"status": "live"}},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": int64(2)}, result)

	result, err = h.queries.Execute(ctx, &query.Request{
		Action:     "find",
		Collection: "posts",
		Query:      &query.Spec{Distinct: "status", OrderBy: map[string]string{"status": "asc"}},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"values": []any{"draft", "live"}}, result)
}

func TestExecuteUpdatePublishesDeltaPerDocument(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mustCreateCollection(t, "posts")

	for _, id := range []string{"a", "b"} {
		_, err := h.queries.Execute(ctx, &query.Request{
			Action:     "create",
			Collection: "posts",
			Data:       map[string]any{"_id": id, "status": "draft", "views": float64(0)},
		}, "")
		require.NoError(t, err)
	}

	result, err := h.queries.Execute(ctx, &query.Request{
		Action:     "update",
		Collection: "posts",
		Query:      &query.Spec{Where: map[string]any{"status": "draft"}},
		Data:       map[string]any{"$set": map[string]any{"status": "live"}, "$inc": map[string]any{"views": float64(1)}},
	}, "editor")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"updated": 2}, result)

	var updates []events.ChangeEvent
	for _, event := range h.published.all() {
		if event.Kind == events.ChangeUpdate {
			updates = append(updates, event)
		}
	}
	require.Len(t, updates, 2)
	// The event carries the operator delta, not the document.
	delta := updates[0].Document
	assert.Contains(t, delta, "$set")
	assert.Contains(t, delta, "$inc")

	// Matched set is pinned before the first operator runs: both documents
	// received both operators even though $set changed the matching field.
	result, err = h.queries.Execute(ctx, &query.Request{
		Action:     "find",
		Collection: "posts",
		Query:      &query.Spec{Where: map[string]any{"views": float64(1)}},
	}, "")
	require.NoError(t, err)
	assert.Len(t, result.([]*entities.Document), 2)
}

func TestExecuteUpdateWithoutMatchesIsZero(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mustCreateCollection(t, "posts")

	result, err := h.queries.Execute(ctx, &query.Request{
		Action:     "update",
		Collection: "posts",
		Query:      &query.Spec{Where: map[string]any{"_id": "ghost"}},
		Data:       map[string]any{"title": "x"},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"updated": 0}, result)
	assert.Empty(t, h.published.all())
}

func TestExecuteDeletePublishesPerDocument(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mustCreateCollection(t, "posts")

	for _, id := range []string{"a", "b", "c"} {
		_, err := h.queries.Execute(ctx, &query.Request{
			Action:     "create",
			Collection: "posts",
			Data:       map[string]any{"_id": id, "status": "old"},
		}, "")
		require.NoError(t, err)
	}

	result, err := h.queries.Execute(ctx, &query.Request{
		Action:     "delete",
		Collection: "posts",
		Query:      &query.Spec{Where: map[string]any{"status": "old"}},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"deleted": int64(3)}, result)

	var deletes int
	for _, event := range h.published.all() {
		if event.Kind == events.ChangeDelete {
			deletes++
			assert.Empty(t, event.Document)
		}
	}
	assert.Equal(t, 3, deletes)
}

func TestExecuteAggregateIsRejected(t *testing.T) {
	h := newHarness(t)
	h.mustCreateCollection(t, "posts")

	_, err := h.queries.Execute(context.Background(), &query.Request{
		Action:     "aggregate",
		Collection: "posts",
	}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aggregate is not supported")
}

func TestExecuteCustomQuery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mustCreateCollection(t, "posts")

	_, err := h.queries.Execute(ctx, &query.Request{
		Action:     "create",
		Collection: "posts",
		Data:       map[string]any{"title": "one"},
	}, "")
	require.NoError(t, err)

	result, err := h.queries.Execute(ctx, &query.Request{
		Action: "custom",
		Custom: "collection_stats",
		Params: map[string]any{"collection": "posts"},
	}, "")
	require.NoError(t, err)
	assert.NotNil(t, result)

	_, err = h.queries.Execute(ctx, &query.Request{Action: "custom", Custom: "no_such_query"}, "")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestExecuteBulkKeepsGoingAfterFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mustCreateCollection(t, "posts")

	items := []BulkItem{
		{Type: "create", Collection: "posts", Data: map[string]any{"_id": "a", "n": float64(1)}},
		{Type: "create", Collection: "missing", Data: map[string]any{"n": float64(2)}},
		{Type: "upsert", Collection: "posts"},
		{Type: "delete", Collection: "posts", Where: map[string]any{"_id": "a"}},
	}
	results, allOK := h.collections.ExecuteBulk(ctx, items, h.queries, "user-1")

	require.Len(t, results, 4)
	assert.False(t, allOK)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.False(t, results[2].Success)
	assert.Contains(t, results[2].Error, "upsert")
	assert.True(t, results[3].Success)
}
