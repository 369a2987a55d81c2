package http

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"devcollab/internal/api"
	"devcollab/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(apiHandlers *api.API, sockets *ws.Server, addr string) *APIServer {
	mux := http.NewServeMux()

	// Session
	mux.HandleFunc("POST /api/login", api.RequireSameOrigin(apiHandlers.LoginHandler))
	mux.HandleFunc("POST /api/logoff", api.RequireSameOrigin(apiHandlers.LogoffHandler))
	mux.HandleFunc("GET /api/me", apiHandlers.RequireAuth(apiHandlers.MeHandler))

	// Chat history
	mux.HandleFunc("GET /api/projects/{id}/messages", apiHandlers.RequireAuth(apiHandlers.MessagesHandler))

	// Notification inbox
	mux.HandleFunc("GET /api/notifications", apiHandlers.RequireAuth(apiHandlers.NotificationsHandler))
	mux.HandleFunc("GET /api/notifications/unread-count", apiHandlers.RequireAuth(apiHandlers.UnreadCountHandler))
	mux.HandleFunc("PUT /api/notifications/read-all", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.MarkAllReadHandler)))
	mux.HandleFunc("PUT /api/notifications/{id}/read", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.MarkReadHandler)))
	mux.HandleFunc("DELETE /api/notifications/clear-read", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.ClearReadHandler)))
	mux.HandleFunc("DELETE /api/notifications/{id}", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.DeleteNotificationHandler)))

	// Avatars
	mux.HandleFunc("POST /api/users/me/avatar", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.UploadAvatarHandler)))
	mux.HandleFunc("GET /api/images/{id}", apiHandlers.GetImageHandler)

	// Web push
	mux.HandleFunc("POST /api/push/subscribe", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.PushSubscribeHandler)))
	mux.HandleFunc("GET /api/push/vapid-key", apiHandlers.VapidKeyHandler)

	// WebSocket endpoint
	mux.HandleFunc("/ws", sockets.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
