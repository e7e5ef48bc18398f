package websocket

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"swiftbase/domain/events"
	"swiftbase/pkg/observability"
)

// Hub tracks every open connection and fans committed change events out to
// the connections whose subscriptions cover them. It implements
// ports.EventPublisher; the query service hands it events after commit.
type Hub struct {
	logger  *zap.Logger
	metrics *observability.Metrics

	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
}

func NewHub(logger *zap.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		logger:  logger,
		metrics: metrics,
		clients: make(map[*Client]struct{}),
	}
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.metrics.WSConnections.Inc()
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.metrics.WSConnections.Dec()
	h.metrics.WSSubscriptions.Sub(float64(c.subscriptionCount()))
}

// PublishChange fans one event out. Enqueueing never blocks; a client whose
// queue is full is closed instead of stalling the publisher. Events enqueue
// in publish order, so each subscription observes writes in commit order.
func (h *Hub) PublishChange(event events.ChangeEvent) {
	frame, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encoding change event", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.matches(event.Collection, event.DocumentID) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(frame)
	}
	h.metrics.EventsPublished.Inc()
}

// Stats is the admin view of the hub.
type Stats struct {
	TotalConnections          int            `json:"totalConnections"`
	AuthenticatedConnections  int            `json:"authenticatedConnections"`
	TotalSubscriptions        int            `json:"totalSubscriptions"`
	SubscriptionsByCollection map[string]int `json:"subscriptionsByCollection"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	stats := Stats{
		TotalConnections:          len(clients),
		SubscriptionsByCollection: make(map[string]int),
	}
	for _, c := range clients {
		if c.principal != nil {
			stats.AuthenticatedConnections++
		}
		for _, collection := range c.subscriptionCollections() {
			stats.TotalSubscriptions++
			stats.SubscriptionsByCollection[collection]++
		}
	}
	return stats
}

// Shutdown closes every connection and refuses new registrations.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
