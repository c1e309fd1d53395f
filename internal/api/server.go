package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/metrics"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, svc Services, version string) *Server {
	handler := NewHandler(svc, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(metrics.InstrumentHandler)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Health and metrics (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", metrics.Handler())

	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)
		if cfg.RateLimit > 0 {
			r.Use(NewRateLimiter(cfg.RateLimit, cfg.RateBurst).Handler)
		}
		r.Use(NewIdempotency(cfg.IdempotencyTTL).Handler)

		r.Get("/coverage/tiers", handler.ListTiers)
		r.Post("/coverage/quote", handler.Quote)

		r.Get("/insurers", handler.ListInsurers)
		r.Post("/insurers", handler.RegisterInsurer)

		r.Route("/policies", func(r chi.Router) {
			r.Get("/", handler.ListPolicies)
			r.Post("/", handler.CreatePolicy)
			r.Post("/sweep", handler.SweepPolicies)
			r.Get("/{id}", handler.GetPolicy)
			r.Post("/{id}/status", handler.UpdatePolicyStatus)
			r.Post("/{id}/renew", handler.RenewPolicy)
		})

		r.Route("/claims", func(r chi.Router) {
			r.Get("/", handler.ListClaims)
			r.Post("/", handler.FileClaim)
			r.Get("/{id}", handler.GetClaim)
			r.Get("/{id}/transitions", handler.ClaimTransitions)
			r.Get("/{id}/alerts", handler.ClaimAlerts)
			r.Post("/{id}/advance", handler.AdvanceClaim)
			r.Post("/{id}/assign", handler.AssignClaim)
			r.Post("/{id}/notes", handler.AddNote)
			r.Post("/{id}/documents", handler.AttachDocument)
			r.Post("/{id}/photos", handler.AttachPhoto)
			r.Post("/{id}/investigation/complete", handler.CompleteInvestigation)
			r.Post("/{id}/settlement/offer", handler.OfferSettlement)
			r.Post("/{id}/settlement/accept", handler.AcceptSettlement)
			r.Post("/{id}/reassess", handler.ReassessClaim)
		})

		r.Route("/fraud/alerts", func(r chi.Router) {
			r.Get("/", handler.ListAlerts)
			r.Get("/{id}", handler.GetAlert)
			r.Post("/{id}/resolve", handler.ResolveAlert)
		})

		r.Get("/customers/{id}/risk", handler.GetCustomerRisk)
		r.Post("/customers/{id}/risk", handler.AssessCustomer)

		r.Get("/stats", handler.Stats)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
