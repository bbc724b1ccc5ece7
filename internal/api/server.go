// Package api exposes the HTTP interface for the CRM service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tbakker/linkcrm/internal/config"
	"github.com/tbakker/linkcrm/internal/crm"
	"github.com/tbakker/linkcrm/internal/importer"
	"github.com/tbakker/linkcrm/internal/jobs"
	"github.com/tbakker/linkcrm/internal/metrics"
	"github.com/tbakker/linkcrm/internal/poller"
)

// Server wires HTTP handlers to the job controller, poller, importer, and
// entity store.
type Server struct {
	router     chi.Router
	controller *jobs.Controller
	poller     *poller.Poller
	engine     *importer.Engine
	entities   crm.EntityStore
	cfg        config.Config
	logger     *zap.Logger
	validate   *validator.Validate
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	controller *jobs.Controller,
	jobPoller *poller.Poller,
	engine *importer.Engine,
	entities crm.EntityStore,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		controller: controller,
		poller:     jobPoller,
		engine:     engine,
		entities:   entities,
		cfg:        cfg,
		logger:     logger,
		validate:   validator.New(),
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	if cfg.Server.TimeoutSeconds > 0 {
		// The synchronous fetch endpoint can legitimately block for five
		// minutes, so the outer timeout sits above that ceiling.
		r.Use(timeoutMiddleware(time.Duration(cfg.Server.TimeoutSeconds) * time.Second))
	}
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/scrape", func(r chi.Router) {
			r.Post("/trigger", s.triggerScrape)
			r.Post("/fetch", s.fetchSync)
			r.Route("/jobs", func(r chi.Router) {
				r.Get("/", s.listJobs)
				r.Route("/{job_id}", func(r chi.Router) {
					r.Get("/", s.checkJob)
					r.Post("/import", s.importJob)
				})
			})
		})
		r.Route("/poller", func(r chi.Router) {
			r.Get("/jobs", s.listTrackedJobs)
			r.Delete("/jobs/{job_id}", s.removeTrackedJob)
		})
		r.Route("/people", func(r chi.Router) {
			r.Get("/", s.listPeople)
			r.Post("/", s.createPerson)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getPerson)
				r.Put("/", s.updatePerson)
				r.Delete("/", s.deletePerson)
				r.Get("/positions", s.listPositions)
				r.Get("/interactions", s.listInteractions)
			})
		})
		r.Route("/companies", func(r chi.Router) {
			r.Get("/", s.listCompanies)
			r.Post("/", s.createCompany)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getCompany)
				r.Put("/", s.updateCompany)
				r.Delete("/", s.deleteCompany)
			})
		})
		r.Route("/positions", func(r chi.Router) {
			r.Post("/", s.createPosition)
			r.Delete("/{id}", s.deletePosition)
		})
		r.Route("/interactions", func(r chi.Router) {
			r.Post("/", s.createInteraction)
			r.Delete("/{id}", s.deleteInteraction)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) decodeValid(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return s.validate.Struct(dst)
}

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
