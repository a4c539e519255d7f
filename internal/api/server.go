package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/voxpage/voxpage/internal/jobstore"
	"github.com/voxpage/voxpage/internal/metrics"
	"github.com/voxpage/voxpage/internal/pipeline"
)

// Service is the pipeline surface the HTTP layer exposes.
type Service interface {
	Submit(ctx context.Context, filename string, src io.Reader, opts pipeline.SubmitOptions) (*jobstore.Job, error)
	GetJob(ctx context.Context, id string) (*jobstore.Job, error)
	ListJobs(ctx context.Context, limit, offset int) ([]*jobstore.Job, error)
	OpenArtifact(ctx context.Context, id string, kind jobstore.ArtifactKind) (io.ReadCloser, string, error)
}

// Pinger is the liveness check for a backing store.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Options configure the HTTP server.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	AuthToken    string
	MaxUploadMB  int64

	Service   Service
	DB        Pinger
	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// NewServer builds the router and the underlying http.Server.
func NewServer(opts Options) *Server {
	r := NewRouter(opts)
	return &Server{
		http: &http.Server{
			Addr:         opts.Addr,
			Handler:      r,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
		log: opts.Log,
	}
}

// NewRouter builds the chi router. Split out so tests can drive the full
// middleware stack with httptest.
func NewRouter(opts Options) chi.Router {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(metrics.InstrumentHandler)

	health := NewHealthHandler(opts.DB, opts.Version, opts.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	jobs := NewJobsHandler(opts.Service, opts.MaxUploadMB, opts.Log)
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(opts.AuthToken))
		r.Post("/api/v1/jobs", jobs.Submit)
		r.Get("/api/v1/jobs", jobs.List)
		r.Get("/api/v1/jobs/{id}", jobs.Get)
		r.Get("/api/v1/jobs/{id}/artifacts/{kind}", jobs.Artifact)
	})

	return r
}

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
