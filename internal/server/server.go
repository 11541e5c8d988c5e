// Package server provides the HTTP API of recollect: media upload, status,
// search, chat and a websocket feed of processing status changes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/scrypster/recollect/internal/config"
	"github.com/scrypster/recollect/internal/engine"
	"github.com/scrypster/recollect/pkg/types"
)

// MediaService is the engine surface the API needs. *engine.MediaEngine satisfies it.
type MediaService interface {
	Ingest(ctx context.Context, rec *types.MediaRecord) (*types.MediaRecord, error)
	Get(ctx context.Context, id string) (*types.MediaRecord, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query string) *types.SearchResult
	SearchWithTrace(ctx context.Context, query string) (*types.SearchResult, *engine.DebugRetrievalResult)
	ReanalyzeAll(ctx context.Context, userID string) (described, total int, err error)
	GetQueueSize() int
	OnStatusChange(observer engine.StatusObserver)
}

// Server wires the router, middleware and websocket hub around a MediaService.
type Server struct {
	cfg     *config.Config
	router  chi.Router
	hub     *Hub
	limiter *RateLimiter
}

// New builds the server and subscribes its websocket hub to status changes.
// The hub runs until Serve returns or Close is called.
func New(cfg *config.Config, media MediaService) *Server {
	s := &Server{
		cfg:     cfg,
		hub:     NewHub(originPatterns(cfg.Server)),
		limiter: NewRateLimiter(cfg.Security.RateLimit, cfg.Security.RateBurst),
	}
	go s.hub.Run()
	media.OnStatusChange(s.hub.PublishStatus)

	maxUpload := int64(cfg.Security.MaxUploadMB) << 20
	if maxUpload <= 0 {
		maxUpload = 100 << 20
	}
	h := &handlers{
		media:     media,
		validate:  validator.New(),
		maxUpload: maxUpload,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(s.limiter.Middleware)

	// Health and websocket endpoints need no token; origin checks guard /ws.
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/ws", s.hub)

	r.Route("/api", func(r chi.Router) {
		r.Use(requireAuth(cfg))

		r.Post("/media", h.Upload)
		r.Get("/media/{id}/status", h.Status)
		r.Delete("/media/{id}", h.Delete)
		r.Post("/search", h.Search)
		r.Post("/chat", h.Chat)
		r.Post("/reanalyze", h.Reanalyze)
		r.Get("/queue", h.Queue)
		r.Post("/debug/search", h.DebugSearch)
	})

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close stops the websocket hub.
func (s *Server) Close() {
	s.hub.Stop()
}

// Listen binds the configured address and serves in the background until ctx
// is cancelled. It returns the actual address (useful with port 0) and a
// channel that receives the serve error, or nil after a clean shutdown.
func (s *Server) Listen(ctx context.Context) (string, <-chan error, error) {
	addr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		err := srv.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		s.hub.Stop()
	}()

	actual := listener.Addr().String()
	log.Printf("HTTP server listening on %s", actual)
	return actual, done, nil
}

// originPatterns lists the browser origins allowed on /ws.
func originPatterns(cfg config.ServerConfig) []string {
	port := strconv.Itoa(cfg.Port)
	patterns := []string{"localhost:" + port, "127.0.0.1:" + port}
	if cfg.Host != "" && cfg.Host != "localhost" && cfg.Host != "127.0.0.1" && cfg.Host != "0.0.0.0" {
		patterns = append(patterns, net.JoinHostPort(cfg.Host, port))
	}
	return patterns
}
