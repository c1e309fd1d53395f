package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/opensource-finance/claimguard/internal/claims"
	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/fraud"
	"github.com/opensource-finance/claimguard/internal/policy"
	"github.com/opensource-finance/claimguard/internal/risk"
	"github.com/opensource-finance/claimguard/internal/stats"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Services are the engines the handlers call. Repo, Cache and Bus are only
// used for health checks and may be nil.
type Services struct {
	Policies *policy.Manager
	Claims   *claims.Engine
	Fraud    *fraud.Service
	Risk     *risk.Engine
	Stats    *stats.Service

	Repo  domain.Repository
	Cache domain.Cache
	Bus   domain.EventBus

	// Clock drives renewal decisions. Defaults to time.Now.
	Clock func() time.Time
}

// Handler holds dependencies for API handlers.
type Handler struct {
	svc     Services
	version string
}

// NewHandler creates a new API handler.
func NewHandler(svc Services, version string) *Handler {
	if svc.Clock == nil {
		svc.Clock = time.Now
	}
	return &Handler{svc: svc, version: version}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			status = "degraded"
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}
	if h.svc.Repo != nil {
		check("repository", func() error { return h.svc.Repo.Ping(r.Context()) })
	}
	if h.svc.Cache != nil {
		check("cache", func() error { return h.svc.Cache.Ping(r.Context()) })
	}
	if h.svc.Bus != nil {
		check("eventBus", func() error { return h.svc.Bus.Ping(r.Context()) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.svc.Claims == nil || h.svc.Policies == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ready": "true"})
}

// invalidateStats drops the tenant summary after a write.
func (h *Handler) invalidateStats(r *http.Request) {
	if h.svc.Stats != nil {
		h.svc.Stats.Invalidate(r.Context(), GetTenantID(r.Context()))
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return false
	}
	return true
}

// writeError maps engine errors onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation  *domain.ValidationError
		transition  *domain.InvalidTransitionError
		terminal    *domain.TerminalStateError
		referential *domain.ReferentialError
		storage     *domain.StorageError
	)

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
			"field": validation.Field,
		})
	case errors.As(err, &transition):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
			"from":  string(transition.From),
		})
	case errors.As(err, &terminal):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
			"from":  string(terminal.Status),
		})
	case errors.Is(err, domain.ErrVersionConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &referential):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.As(err, &storage):
		slog.Error("storage failure",
			"path", r.URL.Path,
			"tenant_id", GetTenantID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage unavailable"})
	default:
		slog.Error("request failed",
			"path", r.URL.Path,
			"tenant_id", GetTenantID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
