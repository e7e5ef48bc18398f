package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"swiftbase/domain/entities"
	"swiftbase/pkg/auth"
)

const (
	// writeWait bounds how long one frame write may take.
	writeWait = 10 * time.Second

	// pongWait closes connections that miss their heartbeat response.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = 30 * time.Second

	// maxMessageSize bounds inbound control messages; clients only ever send
	// small JSON commands.
	maxMessageSize = 4 * 1024

	// sendBufferSize is the per-client outbound queue. A client that cannot
	// drain it is closed rather than allowed to stall the hub.
	sendBufferSize = 64
)

// subscription is one client's interest in a collection, optionally narrowed
// to a single document.
type subscription struct {
	ID         string
	Collection string
	DocumentID string
}

// clientMessage is the inbound command format.
type clientMessage struct {
	Action     string `json:"action"`
	Collection string `json:"collection"`
	DocumentID string `json:"documentId"`
}

// Client is one websocket connection with its subscriptions. The hub reads
// subscriptions during fan-out; the read pump mutates them; mu covers both.
type Client struct {
	id        string
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	principal *auth.Principal
	logger    *zap.Logger

	// mu covers subs and closed. The closed flag keeps enqueue from sending
	// on the channel once close has run.
	mu     sync.Mutex
	subs   map[string]subscription
	closed bool

	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, principal *auth.Principal, logger *zap.Logger) *Client {
	return &Client{
		id:        uuid.New().String(),
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		principal: principal,
		logger:    logger,
		subs:      make(map[string]subscription),
	}
}

// enqueue hands a frame to the write pump without blocking. A full queue
// means a slow consumer; the client is closed and the frame dropped.
func (c *Client) enqueue(frame []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.send <- frame:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		c.logger.Warn("closing slow websocket consumer", zap.String("connection_id", c.id))
		c.close()
	}
}

func (c *Client) enqueueJSON(v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("encoding websocket frame", zap.Error(err))
		return
	}
	c.enqueue(frame)
}

// close unregisters the client and shuts the connection down exactly once.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.hub.unregister(c)
		close(c.send)
	})
}

// matches reports whether any of the client's subscriptions covers the event.
func (c *Client) matches(collection, documentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		if sub.Collection != collection {
			continue
		}
		if sub.DocumentID == "" || sub.DocumentID == documentID {
			return true
		}
	}
	return false
}

func (c *Client) subscriptionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Client) subscriptionCollections() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	collections := make([]string, 0, len(c.subs))
	for _, sub := range c.subs {
		collections = append(collections, sub.Collection)
	}
	return collections
}

// readPump consumes commands until the connection drops. It owns the read
// side of the connection and the subscription map.
func (c *Client) readPump() {
	defer func() {
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", zap.String("connection_id", c.id), zap.Error(err))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.enqueueJSON(map[string]any{"type": "error", "message": "invalid message"})
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg clientMessage) {
	switch msg.Action {
	case "subscribe":
		c.subscribe(msg.Collection, msg.DocumentID)
	case "unsubscribe":
		c.unsubscribeAll()
	case "ping":
		c.enqueueJSON(map[string]any{"type": "pong"})
	default:
		c.enqueueJSON(map[string]any{"type": "error", "message": "unknown action: " + msg.Action})
	}
}

func (c *Client) subscribe(collection, documentID string) {
	if err := entities.ValidateCollectionName(collection); err != nil {
		c.enqueueJSON(map[string]any{"type": "error", "message": "invalid collection name"})
		return
	}

	sub := subscription{
		ID:         uuid.New().String(),
		Collection: collection,
		DocumentID: documentID,
	}
	c.mu.Lock()
	c.subs[sub.ID] = sub
	c.mu.Unlock()
	c.hub.metrics.WSSubscriptions.Inc()

	c.enqueueJSON(map[string]any{
		"type":           "subscribed",
		"subscriptionId": sub.ID,
		"collection":     sub.Collection,
		"documentId":     sub.DocumentID,
	})
}

func (c *Client) unsubscribeAll() {
	c.mu.Lock()
	dropped := len(c.subs)
	c.subs = make(map[string]subscription)
	c.mu.Unlock()
	c.hub.metrics.WSSubscriptions.Sub(float64(dropped))

	c.enqueueJSON(map[string]any{"type": "unsubscribed"})
}

// writePump owns the write side of the connection: queued frames and the
// heartbeat ping. It exits when the send channel closes or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
