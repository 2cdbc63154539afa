package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/config"
	"github.com/snarg/scribe/internal/metrics"
	"github.com/snarg/scribe/internal/storage"
)

// Service is everything the HTTP layer needs from the transcription pipeline.
type Service interface {
	Uploader
	HistoryService
}

type ServerOptions struct {
	Config    *config.Config
	DB        HealthChecker
	Service   Service
	Archive   storage.AudioStore    // nil when archiving is disabled
	Checks    map[string]StatusFunc // optional subsystems reported by /healthz
	Watcher   WatcherStats          // nil without a watch folder
	OpenAPI   []byte                // served at /openapi.yaml when set
	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

type Server struct {
	http    *http.Server
	handler http.Handler
	log     zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	log := opts.Log.With().Str("component", "http").Logger()

	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(CORSWithOrigins(cfg.CORSOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteMessage(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// Unauthenticated
	r.Get("/", Root)
	r.Get("/healthz", NewHealthHandler(opts.DB, opts.Checks, opts.Watcher, opts.Version, opts.StartTime).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	if len(opts.OpenAPI) > 0 {
		r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/yaml")
			w.Write(opts.OpenAPI)
		})
	}

	// Authenticated when AUTH_TOKEN is set
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		NewUploadHandler(opts.Service, cfg.MaxUploadBytes(), log).Routes(r)
		NewTranscriptionsHandler(opts.Service, log).Routes(r)
		NewAudioHandler(opts.Archive, log).Routes(r)
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		handler: r,
		log:     log,
	}
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
