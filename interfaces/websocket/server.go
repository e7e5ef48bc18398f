package websocket

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"swiftbase/application/services"
	"swiftbase/pkg/auth"
)

// Server upgrades HTTP requests to websocket connections and hands them to
// the hub. Invalid or missing credentials produce an anonymous connection,
// never a rejection, so unauthenticated clients can still subscribe.
type Server struct {
	hub      *Hub
	authsvc  *services.AuthService
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, authsvc *services.AuthService, logger *zap.Logger) *Server {
	return &Server{
		hub:     hub,
		authsvc: authsvc,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from arbitrary origins, matching the
			// wide-open CORS policy on the REST surface.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HandleConnection is the handler for the realtime endpoint.
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	principal := s.authenticate(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(s.hub, conn, principal, s.logger)
	if !s.hub.register(client) {
		conn.Close()
		return
	}

	client.enqueueJSON(map[string]any{
		"type":         "welcome",
		"connectionId": client.id,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})

	go client.writePump()
	go client.readPump()
}

// authenticate resolves the connection's principal from the token query
// parameter or the bearer header. Any failure yields an anonymous principal.
func (s *Server) authenticate(r *http.Request) *auth.Principal {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if token == "" {
		return nil
	}

	principal, err := s.authsvc.ValidateAccess(r.Context(), token)
	if err != nil {
		s.logger.Debug("websocket token rejected, connecting as anonymous", zap.Error(err))
		return nil
	}
	return principal
}
