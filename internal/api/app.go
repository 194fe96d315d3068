package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/teris-io/shortid"

	"securechat/internal/auth"
	"securechat/internal/chat"
	"securechat/internal/config"
	"securechat/internal/database"
	"securechat/internal/server"
)

type ChatApp struct {
	log            *log.Logger
	db             database.Repository
	tokens         *auth.TokenService
	store          *chat.MessageStore
	sessions       *chat.SessionManager
	gateway        *server.Gateway
	mux            *http.Server
	allowedOrigins []string
	generateConnId func() (string, error)
}

func NewChatApp(mux *http.ServeMux, logger *log.Logger, gw *server.Gateway, db database.Repository,
	tokens *auth.TokenService, store *chat.MessageStore, sessions *chat.SessionManager, cfg *config.Config) *ChatApp {
	s := &ChatApp{
		log:            logger,
		db:             db,
		tokens:         tokens,
		store:          store,
		sessions:       sessions,
		gateway:        gw,
		allowedOrigins: cfg.AllowedOrigins,
		generateConnId: shortid.Generate,
	}

	mux.HandleFunc("GET /api/healthz", s.healthz)
	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("POST /api/auth/refresh", s.refresh)
	mux.Handle("POST /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("GET /api/auth/me", s.authMiddleware(s.me))
	mux.Handle("PUT /api/profile", s.authMiddleware(s.updateProfile))
	mux.Handle("POST /api/chat/request", s.authMiddleware(s.createChatRequest))
	mux.Handle("GET /api/chat/requests", s.authMiddleware(s.listChatRequests))
	mux.Handle("POST /api/chat/request/{id}/respond", s.authMiddleware(s.respondChatRequest))
	mux.Handle("GET /api/chat/sessions", s.authMiddleware(s.listSessions))
	mux.Handle("GET /api/chat/sessions/{id}/messages", s.authMiddleware(s.getMessages))
	mux.Handle("POST /api/chat/sessions/{id}/messages", s.authMiddleware(s.postMessage))
	mux.Handle("POST /api/chat/sessions/{id}/read", s.authMiddleware(s.markRead))
	mux.Handle("GET /api/chat/sessions/{id}/search", s.authMiddleware(s.searchMessages))
	mux.Handle("PUT /api/chat/messages/{id}", s.authMiddleware(s.editMessage))
	mux.Handle("DELETE /api/chat/messages/{id}", s.authMiddleware(s.deleteMessage))
	mux.Handle("POST /api/chat/messages/{id}/forward", s.authMiddleware(s.forwardMessage))
	mux.Handle("GET /api/chat/online", s.authMiddleware(s.online))
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "X-Auth-Token"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

// Handler exposes the composed middleware chain for tests.
func (s *ChatApp) Handler() http.Handler {
	return s.mux.Handler
}
