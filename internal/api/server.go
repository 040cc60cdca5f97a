package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/adverant/nexus/tablescan-worker/internal/processor"
	"github.com/adverant/nexus/tablescan-worker/internal/storage"
)

// Enqueuer submits accepted export requests for processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, req *processor.ExportRequest) error
}

// StatsProvider reports job counts per status.
type StatsProvider interface {
	Stats(ctx context.Context) (map[string]int64, error)
}

// Config holds the HTTP API settings.
type Config struct {
	APIKey       string
	MaxBodyBytes int64
}

// Server is the HTTP API of the table scan worker.
type Server struct {
	router   chi.Router
	store    storage.Store
	enqueuer Enqueuer
	stats    StatsProvider
	log      *slog.Logger
	cfg      Config
}

// NewServer creates and configures the HTTP server. stats may be nil.
func NewServer(store storage.Store, enqueuer Enqueuer, stats StatsProvider, log *slog.Logger, cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	s := &Server{
		store:    store,
		enqueuer: enqueuer,
		stats:    stats,
		log:      log,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/exports", s.handleCreateExport)
		r.Get("/api/exports/{exportID}", s.handleGetExport)
		r.Get("/api/exports/{exportID}/csv", s.handleDownloadCSV)
		r.Delete("/api/exports/{exportID}", s.handleDeleteExport)
		r.Get("/api/stats/queue", s.handleQueueStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
