// Package server implements the HTTP JSON API of the Mira website.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/aivoicefromthevoid/mira/catalog"
	"github.com/aivoicefromthevoid/mira/chat"
	"github.com/aivoicefromthevoid/mira/memory"
	"github.com/aivoicefromthevoid/mira/notify"
	"github.com/aivoicefromthevoid/mira/usage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// DefaultMaxBodyBytes caps request bodies at 1 MiB.
const DefaultMaxBodyBytes = 1 << 20

// Memories is the memory repository as seen by the handlers.
type Memories interface {
	Add(ctx context.Context, in memory.Input) (memory.Record, bool, error)
	Get(ctx context.Context, id string) (memory.Record, error)
	Update(ctx context.Context, id string, patch memory.Patch) (memory.Record, error)
	Delete(ctx context.Context, id string, archive bool) error
	Query(ctx context.Context, f memory.Filter) (memory.Page, error)
	ImportLegacy(ctx context.Context, idx memory.LegacyIndex) (memory.ImportResult, error)
	History(ctx context.Context) ([]string, error)
}

// Chat answers chat messages.
type Chat interface {
	Reply(ctx context.Context, req chat.Request) (chat.Outcome, error)
}

// Usage reports usage statistics.
type Usage interface {
	Stats(ctx context.Context) (usage.Snapshot, error)
}

// Models is the model catalog.
type Models interface {
	Select(ctx context.Context, opts catalog.SelectOptions) (catalog.Model, error)
	Free(ctx context.Context) ([]catalog.Model, error)
	Stats(ctx context.Context) (catalog.Stats, error)
}

// Config holds server configuration options.
type Config struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxBodyBytes    int64
	AdminAPIKey     string
	LegacyIndexPath string
	Logger          zerolog.Logger
}

// Deps are the services behind the handlers. Models and Notifier may be nil,
// in which case the matching endpoints answer 503.
type Deps struct {
	Memories Memories
	Chat     Chat
	Usage    Usage
	Models   Models
	Notifier notify.Notifier
}

// Server is the HTTP server for the Mira API.
type Server struct {
	cfg     Config
	deps    Deps
	logger  zerolog.Logger
	router  chi.Router
	httpSrv *http.Server

	startedAt time.Time
	now       func() time.Time
}

// New creates a Server and registers every route.
func New(cfg Config, deps Deps) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.LegacyIndexPath == "" {
		cfg.LegacyIndexPath = "memory_index.json"
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: cfg.Logger.With().Str("component", "http-server").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"X-Requested-With", "Content-Type", "Authorization", "Accept", "Origin"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(s.limitBody)
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	})

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/memory-center", s.handleMemoryGet)
		r.Post("/memory-center", s.handleMemoryCreate)
		r.Put("/memory-center", s.handleMemoryUpdate)
		r.Delete("/memory-center", s.handleMemoryDelete)
		r.Get("/memory-history", s.handleMemoryHistory)
		r.Get("/memories", s.handleLegacyList)
		r.Post("/openrouter", s.handleChat)
		r.Get("/usage-tracker", s.handleUsage)
		r.Get("/model-selector", s.handleModels)
		r.Post("/email-notifier", s.handleEmail)
		r.Post("/admin-migrate", s.handleAdminMigrate)
	})
	return r
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve starts the HTTP server on the given listener.
func (s *Server) Serve(listener net.Listener) error {
	s.startedAt = s.now()
	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	s.logger.Info().Str("address", listener.Addr().String()).Msg("Starting HTTP server")
	err := s.httpSrv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ServeTCP starts the server on a TCP address.
func (s *Server) ServeTCP(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Shutdown stops accepting requests and waits for in-flight ones to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	s.logger.Info().Msg("Stopping HTTP server")
	return s.httpSrv.Shutdown(ctx)
}

// accessLog logs every request with its status and duration.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = s.logger.Error()
		case status >= 400:
			event = s.logger.Warn()
		default:
			event = s.logger.Debug()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("Request completed")
	})
}

// limitBody rejects bodies over the configured cap with 413.
func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > s.cfg.MaxBodyBytes {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Request too large"})
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}
