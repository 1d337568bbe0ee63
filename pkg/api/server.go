package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/malscan/malscan/pkg/artifact"
	"github.com/malscan/malscan/pkg/config"
	"github.com/malscan/malscan/pkg/log"
	"github.com/malscan/malscan/pkg/metrics"
	"github.com/malscan/malscan/pkg/queue"
	"github.com/malscan/malscan/pkg/registry"
)

// Server is the submission and query HTTP frontend
type Server struct {
	cfg       config.Config
	store     registry.Store
	blobs     artifact.Store
	publisher queue.Publisher
	httpSrv   *http.Server
}

// NewServer creates the API server wired to its backing services
func NewServer(cfg config.Config, store registry.Store, blobs artifact.Store, publisher queue.Publisher) *Server {
	s := &Server{
		cfg:       cfg,
		store:     store,
		blobs:     blobs,
		publisher: publisher,
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the full route tree. Exposed separately so tests can
// drive handlers without a listener.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(requestObserver)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: splitOrigins(s.cfg.CORSOrigins),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", handleHealth)
	r.Get("/ready", handleReady)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/files", s.handleUpload)
		r.Get("/jobs/{id}", s.handleJobStatus)
		r.Get("/reports/{id}", s.handleReport)
	})

	return r
}

// Start begins serving and blocks until the listener stops
func (s *Server) Start() error {
	lg := log.WithComponent("api")
	lg.Info().Str("addr", s.cfg.ListenAddr).Msg("api server listening")
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop drains in-flight requests and shuts the listener down
func (s *Server) Stop(ctx context.Context) error {
	lg := log.WithComponent("api")
	lg.Info().Msg("api server stopping")
	return s.httpSrv.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func splitOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
