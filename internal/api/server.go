// Package api serves the admin REST API: ban management, usage
// inspection and cache control. It is meant to sit behind a firewall or
// reverse proxy; it carries no authentication of its own.
package api

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jimsug/mtg-signal-bot/internal/storage"
)

// Server represents the admin API server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	addr       string

	usage     *storage.UsageStore
	cache     *storage.CacheStore
	scheduler *storage.PurgeScheduler
}

// Config holds configuration for the admin API server.
type Config struct {
	Addr string
}

// DefaultConfig returns the default admin API configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr: ":8081",
	}
}

// NewServer creates an admin API server over the given stores. The
// scheduler is optional; without one the purge endpoint sweeps inline.
func NewServer(cfg *Config, usage *storage.UsageStore, cache *storage.CacheStore, scheduler *storage.PurgeScheduler) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		router:    chi.NewRouter(),
		addr:      cfg.Addr,
		usage:     usage,
		cache:     cache,
		scheduler: scheduler,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Use(s.jsonContentTypeMiddleware)
}

// jsonContentTypeMiddleware enforces application/json content-type for requests with bodies.
func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			if r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if contentType == "" || (contentType != "application/json" && !strings.HasPrefix(contentType, "application/json;")) {
				http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Start starts the admin API server in a goroutine.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Admin API starting on %s", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Admin API error: %v", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the admin API server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	log.Println("Shutting down admin API...")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the address the server is configured to listen on.
func (s *Server) Addr() string {
	return s.addr
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
