package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"swiftbase/domain/events"
	"swiftbase/pkg/auth"
	"swiftbase/pkg/observability"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	return NewHub(zap.NewNop(), observability.NewMetrics())
}

// addClient registers a pumpless client; tests read frames straight off the
// send channel.
func addClient(t *testing.T, hub *Hub, principal *auth.Principal) *Client {
	t.Helper()
	c := newClient(hub, nil, principal, zap.NewNop())
	require.True(t, hub.register(c))
	return c
}

func nextFrame(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case frame := <-c.send:
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(frame, &decoded))
		return decoded
	case <-time.After(time.Second):
		t.Fatal("no frame arrived")
		return nil
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame := <-c.send:
		t.Fatalf("unexpected frame: %s", frame)
	default:
	}
}

func TestSubscribeAcknowledges(t *testing.T) {
	hub := newTestHub(t)
	c := addClient(t, hub, nil)

	c.dispatch(clientMessage{Action: "subscribe", Collection: "posts", DocumentID: "d1"})

	ack := nextFrame(t, c)
	assert.Equal(t, "subscribed", ack["type"])
	assert.NotEmpty(t, ack["subscriptionId"])
	assert.Equal(t, "posts", ack["collection"])
	assert.Equal(t, "d1", ack["documentId"])
	assert.Equal(t, 1, c.subscriptionCount())
}

func TestSubscribeRejectsInvalidCollection(t *testing.T) {
	hub := newTestHub(t)
	c := addClient(t, hub, nil)

	c.dispatch(clientMessage{Action: "subscribe", Collection: "not valid!"})

	assert.Equal(t, "error", nextFrame(t, c)["type"])
	assert.Zero(t, c.subscriptionCount())
}

func TestDispatchPingAndUnknownAction(t *testing.T) {
	hub := newTestHub(t)
	c := addClient(t, hub, nil)

	c.dispatch(clientMessage{Action: "ping"})
	assert.Equal(t, "pong", nextFrame(t, c)["type"])

	c.dispatch(clientMessage{Action: "teleport"})
	errFrame := nextFrame(t, c)
	assert.Equal(t, "error", errFrame["type"])
	assert.Contains(t, errFrame["message"], "teleport")
}

func TestUnsubscribeClearsEverything(t *testing.T) {
	hub := newTestHub(t)
	c := addClient(t, hub, nil)

	c.dispatch(clientMessage{Action: "subscribe", Collection: "posts"})
	c.dispatch(clientMessage{Action: "subscribe", Collection: "users"})
	nextFrame(t, c)
	nextFrame(t, c)

	c.dispatch(clientMessage{Action: "unsubscribe"})
	assert.Equal(t, "unsubscribed", nextFrame(t, c)["type"])
	assert.Zero(t, c.subscriptionCount())
}

func TestPublishReachesOnlyMatchingSubscriptions(t *testing.T) {
	hub := newTestHub(t)

	wholeCollection := addClient(t, hub, nil)
	wholeCollection.dispatch(clientMessage{Action: "subscribe", Collection: "posts"})
	nextFrame(t, wholeCollection)

	oneDocument := addClient(t, hub, nil)
	oneDocument.dispatch(clientMessage{Action: "subscribe", Collection: "posts", DocumentID: "d1"})
	nextFrame(t, oneDocument)

	elsewhere := addClient(t, hub, nil)
	elsewhere.dispatch(clientMessage{Action: "subscribe", Collection: "users"})
	nextFrame(t, elsewhere)

	hub.PublishChange(events.ChangeEvent{
		Kind:       events.ChangeUpdate,
		Collection: "posts",
		DocumentID: "d2",
		Timestamp:  time.Now().UTC(),
	})

	frame := nextFrame(t, wholeCollection)
	assert.Equal(t, "posts", frame["collection"])
	assert.Equal(t, "d2", frame["documentId"])
	// The document-scoped subscription does not cover d2.
	assertNoFrame(t, oneDocument)
	assertNoFrame(t, elsewhere)

	hub.PublishChange(events.ChangeEvent{
		Kind:       events.ChangeDelete,
		Collection: "posts",
		DocumentID: "d1",
		Timestamp:  time.Now().UTC(),
	})
	nextFrame(t, wholeCollection)
	assert.Equal(t, "d1", nextFrame(t, oneDocument)["documentId"])
}

func TestPublishDeliversOncePerConnection(t *testing.T) {
	hub := newTestHub(t)
	c := addClient(t, hub, nil)

	// Two overlapping subscriptions still yield a single frame.
	c.dispatch(clientMessage{Action: "subscribe", Collection: "posts"})
	c.dispatch(clientMessage{Action: "subscribe", Collection: "posts", DocumentID: "d1"})
	nextFrame(t, c)
	nextFrame(t, c)

	hub.PublishChange(events.ChangeEvent{
		Kind:       events.ChangeCreate,
		Collection: "posts",
		DocumentID: "d1",
		Timestamp:  time.Now().UTC(),
	})
	nextFrame(t, c)
	assertNoFrame(t, c)
}

func TestSlowConsumerIsClosed(t *testing.T) {
	hub := newTestHub(t)
	c := addClient(t, hub, nil)
	c.dispatch(clientMessage{Action: "subscribe", Collection: "posts"})

	// Fill the queue without draining it, then overflow it.
	for i := 0; i < sendBufferSize+2; i++ {
		hub.PublishChange(events.ChangeEvent{
			Kind:       events.ChangeCreate,
			Collection: "posts",
			DocumentID: "d1",
			Timestamp:  time.Now().UTC(),
		})
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	assert.True(t, closed)
	assert.Zero(t, hub.Stats().TotalConnections)

	// Publishing after the close is a no-op, not a panic.
	hub.PublishChange(events.ChangeEvent{
		Kind:       events.ChangeCreate,
		Collection: "posts",
		DocumentID: "d1",
		Timestamp:  time.Now().UTC(),
	})
}

func TestHubStats(t *testing.T) {
	hub := newTestHub(t)

	authed := addClient(t, hub, &auth.Principal{ID: "user-1", Type: auth.PrincipalUser})
	authed.dispatch(clientMessage{Action: "subscribe", Collection: "posts"})
	authed.dispatch(clientMessage{Action: "subscribe", Collection: "posts", DocumentID: "d1"})

	anonymous := addClient(t, hub, nil)
	anonymous.dispatch(clientMessage{Action: "subscribe", Collection: "users"})

	stats := hub.Stats()
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Equal(t, 1, stats.AuthenticatedConnections)
	assert.Equal(t, 3, stats.TotalSubscriptions)
	assert.Equal(t, 2, stats.SubscriptionsByCollection["posts"])
	assert.Equal(t, 1, stats.SubscriptionsByCollection["users"])
}

func TestShutdownClosesAndRefusesClients(t *testing.T) {
	hub := newTestHub(t)
	c := addClient(t, hub, nil)

	hub.Shutdown()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	assert.True(t, closed)

	late := newClient(hub, nil, nil, zap.NewNop())
	assert.False(t, hub.register(late))
}
