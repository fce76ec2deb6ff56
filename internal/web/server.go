// Package web provides the HTTP API for mapping rule management, rule tests,
// supplier file imports and import history.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/backoffice/internal/config"
	"github.com/JonMunkholm/backoffice/internal/core"
	"github.com/JonMunkholm/backoffice/internal/rules"
	appmw "github.com/JonMunkholm/backoffice/internal/web/middleware"
)

// Server is the HTTP server for the back-office API.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server

	limiter       *rateLimiter
	importLimiter *rateLimiter
}

// NewServer creates a Server with middleware and routes installed.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	if cfg.Rate.Enabled {
		s.limiter = newRateLimiter(cfg.Rate.RequestsPerMinute, time.Minute)
		s.importLimiter = newRateLimiter(cfg.Rate.ImportLimit, time.Minute)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(appmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(appmw.Logger)
	s.router.Use(middleware.Recoverer)

	// Security hardening
	s.router.Use(s.securityHeaders)

	if s.limiter != nil {
		s.router.Use(s.limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(appmw.APIKeyAuth(&s.cfg.Security))
		admin := appmw.AdminKeyAuth(&s.cfg.Security)

		// Everything except imports runs under the request timeout. Imports
		// are bounded by IMPORT_TIMEOUT inside the service.
		r.Group(func(r chi.Router) {
			if s.cfg.Server.RequestTimeout > 0 {
				r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
			}

			r.Route("/mapping-rules", func(r chi.Router) {
				r.Get("/", s.handleListBasicRules)
				r.Get("/suppliers", s.handleListSuppliers)
				r.Get("/export", s.handleExportBasicRules)
				r.Post("/test", s.handleTestBasic)
				r.With(admin).Put("/{supplier}", s.handleReplaceBasicRules)
				r.With(admin).Patch("/rule/{id}", s.handleUpdateBasicRule)
				r.With(admin).Delete("/rule/{id}", s.handleDeleteBasicRule)
			})

			r.Route("/advanced-mapping", func(r chi.Router) {
				r.Get("/", s.handleListAdvancedRules)
				r.Post("/test", s.handleTestAdvanced)
				r.Get("/{id}", s.handleGetAdvancedRule)
				r.With(admin).Post("/value-mapping", s.handleCreateValueMapping)
				r.With(admin).Post("/conditional-skip", s.handleCreateConditionalSkip)
				r.With(admin).Post("/calculation", s.handleCreateCalculation)
				r.With(admin).Post("/text-transform", s.handleCreateTextTransform)
				r.With(admin).Put("/{id}", s.handleUpdateAdvancedRule)
				r.With(admin).Patch("/{id}", s.handleUpdateAdvancedRule)
				r.With(admin).Delete("/{id}", s.handleDeleteAdvancedRule)
			})

			r.Post("/rules/test", s.handleTestRules)

			r.Get("/import/history", s.handleImportHistory)
			r.Get("/import/history/{importNo}", s.handleGetImport)
			r.Get("/import/errors", s.handleImportErrors)
			r.Get("/import/statistics", s.handleImportStatistics)
			r.With(admin).Delete("/import/{importNo}", s.handleDeleteImport)
		})

		r.Group(func(r chi.Router) {
			if s.importLimiter != nil {
				r.Use(s.importLimiter.middleware)
			}
			r.Post("/import", s.handleImport)
			r.Post("/import/preview", s.handlePreviewImport)
		})
	})
}

// Start begins listening for HTTP requests. It blocks until the server
// stops; http.ErrServerClosed means a clean shutdown.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.stop()
	s.importLimiter.stop()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if s.cfg.Security.EnableCSP {
			// The API serves JSON and HTMX fragments only.
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		}
		next.ServeHTTP(w, r)
	})
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status  string                   `json:"status"`
	Imports core.ImportLimiterStatus `json:"imports"`
	Cache   *rules.CacheStats        `json:"rule_cache,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Imports: s.service.Limiter().Status(),
	}
	if st, ok := s.service.CacheStats(); ok {
		resp.Cache = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
