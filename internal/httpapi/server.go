package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/santhosh-tekuri/jsonschema/v5"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ladiesman540/crane-platform/internal/auth"
	"github.com/ladiesman540/crane-platform/internal/ingest"
	"github.com/ladiesman540/crane-platform/internal/observability"
	"github.com/ladiesman540/crane-platform/internal/ratelimit"
	"github.com/ladiesman540/crane-platform/internal/realtime"
	"github.com/ladiesman540/crane-platform/internal/store"
)

const apiKeyHeader = "X-API-Key"

// Options wires the server. Limiters, Metrics and Tracer are optional.
type Options struct {
	Repo    *store.Repo
	Engine  *ingest.Engine
	Keys    *auth.APIKeyVerifier
	Auth    *auth.Service
	Hub     *realtime.Hub
	Metrics http.Handler
	Tracer  oteltrace.Tracer

	ServiceName    string
	AllowedOrigins []string
	LoginLimiter   ratelimit.Limiter
	IngestLimiter  ratelimit.Limiter
}

type Server struct {
	opts   Options
	schema *jsonschema.Schema
}

func New(opts Options) (*Server, error) {
	schema, err := loadIngestSchema()
	if err != nil {
		return nil, fmt.Errorf("compile ingest schema: %w", err)
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{opts: opts, schema: schema}, nil
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	if s.opts.Tracer != nil {
		r.Use(observability.Middleware(s.opts.Tracer, s.opts.ServiceName))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", apiKeyHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}
	r.Handle("/ws", s.opts.Hub)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.opts.IngestLimiter != nil {
				r.Use(ratelimit.Middleware(s.opts.IngestLimiter, "ingest", ratelimit.KeyByHeader(apiKeyHeader)))
			}
			r.Post("/ingest", s.handleIngest)
		})

		r.Route("/auth", func(r chi.Router) {
			if s.opts.LoginLimiter != nil {
				r.Use(ratelimit.Middleware(s.opts.LoginLimiter, "login", ratelimit.KeyByIP))
			}
			r.Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAccessToken)
			r.Get("/readings", s.handleListReadings)
			r.Get("/readings/{sensor_id}/latest", s.handleLatestReading)
			r.Get("/spectra/{sensor_id}/latest", s.handleLatestSpectrum)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
