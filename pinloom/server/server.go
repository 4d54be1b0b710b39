// Package server exposes the chat orchestrator and the pin feed over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/pinloom/pinloom/config"
	"github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness"
	"github.com/ZanzyTHEbar/pinloom/pinloom/pins"
)

const defaultMaxBodyBytes = 16 << 20

// ChatRunner runs one chat turn.
type ChatRunner interface {
	Run(ctx context.Context, req *harness.ChatRequest) (*harness.ChatResponse, error)
}

// PinStore persists the pin feed.
type PinStore interface {
	Create(ctx context.Context, userID string, in pins.NewPin) (*pins.Pin, error)
	List(ctx context.Context, limit int) ([]pins.Pin, error)
	Get(ctx context.Context, id string) (*pins.Pin, error)
	Delete(ctx context.Context, userID, id string) error
}

// Server holds the HTTP handlers.
type Server struct {
	chat         ChatRunner
	pins         PinStore
	auth         *Authenticator
	maxBodyBytes int64
	logger       zerolog.Logger
}

// New creates a server.
func New(chat ChatRunner, pinStore PinStore, auth *Authenticator, cfg config.ServerConfig, logger zerolog.Logger) *Server {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Server{
		chat:         chat,
		pins:         pinStore,
		auth:         auth,
		maxBodyBytes: maxBody,
		logger:       logger,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(api chi.Router) {
		api.Use(s.auth.Middleware)
		api.Use(s.limitBody)

		api.Post("/api/chat/create", s.handleChatCreate)

		api.Route("/api/images", func(r chi.Router) {
			r.Get("/", s.listPins)
			r.Post("/", s.createPin)
			r.Get("/{id}", s.getPin)
			r.Delete("/{id}", s.deletePin)
		})
	})

	return r
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
