package ws

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"devcollab/internal/auth"
	"devcollab/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type authenticator interface {
	Authenticate(token string) (models.User, error)
}

type Server struct {
	auth     authenticator
	hub      *Hub
	chat     chatPipeline
	upgrader *websocket.Upgrader
}

func NewServer(auth authenticator, hub *Hub, chat chatPipeline) *Server {
	return &Server{
		auth: auth,
		hub:  hub,
		chat: chat,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}
}

// TokenFromRequest extracts the session token from the query string, the
// Authorization header, the token header or the token cookie, in that order.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && bearer != "" {
		return strings.TrimSpace(bearer)
	}
	if token := r.Header.Get("token"); token != "" {
		return token
	}
	if cookie, err := r.Cookie("token"); err == nil {
		return cookie.Value
	}
	return ""
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Reject before upgrading so a failed handshake never reaches the hub.
	user, err := s.auth.Authenticate(TokenFromRequest(r))
	if err != nil {
		status, reason := http.StatusUnauthorized, auth.Reason(err)
		if !errors.Is(err, auth.ErrMissingToken) && !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrUserNotFound) {
			log.Printf("error authenticating websocket: %v", err)
			status, reason = http.StatusInternalServerError, models.ReasonTransient
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(models.ErrorPayload{Error: reason})
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("error upgrading to websocket: %v", err)
		return
	}

	conn := NewConnection(s.hub, s.chat, ws, uuid.NewString(), user)
	if err := conn.Handle(r.Context()); err != nil {
		log.Printf("websocket connection for user %s ended: %v", user.ID, err)
	}
}
