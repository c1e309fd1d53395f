package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/claimguard/internal/domain"
)

// ListAlerts handles GET /fraud/alerts. Supports claimId, customerId and
// open=true query filters.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	openOnly, _ := strconv.ParseBool(q.Get("open"))
	alerts, err := h.svc.Fraud.ListAlerts(r.Context(), GetTenantID(r.Context()), domain.AlertFilter{
		ClaimID:    q.Get("claimId"),
		CustomerID: q.Get("customerId"),
		OpenOnly:   openOnly,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// ClaimAlerts handles GET /claims/{id}/alerts.
func (h *Handler) ClaimAlerts(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())
	claimID := chi.URLParam(r, "id")
	if _, err := h.svc.Claims.GetClaim(r.Context(), tenantID, claimID); err != nil {
		writeError(w, r, err)
		return
	}
	alerts, err := h.svc.Fraud.ListAlerts(r.Context(), tenantID, domain.AlertFilter{ClaimID: claimID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetAlert handles GET /fraud/alerts/{id}.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Fraud.GetAlert(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ResolveAlertRequest is the request body for POST /fraud/alerts/{id}/resolve.
type ResolveAlertRequest struct {
	ResolvedBy string `json:"resolvedBy"`
	Resolution string `json:"resolution"`
}

// ResolveAlert handles POST /fraud/alerts/{id}/resolve.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	var req ResolveAlertRequest
	if !decode(w, r, &req) {
		return
	}
	a, err := h.svc.Fraud.ResolveAlert(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.ResolvedBy, req.Resolution)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.invalidateStats(r)
	writeJSON(w, http.StatusOK, a)
}

// GetCustomerRisk handles GET /customers/{id}/risk. A customer never
// assessed before is assessed on first request.
func (h *Handler) GetCustomerRisk(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())
	customerID := chi.URLParam(r, "id")

	a, err := h.svc.Risk.Assessment(r.Context(), tenantID, customerID)
	if err == nil && a == nil {
		a, err = h.svc.Risk.AssessCustomer(r.Context(), tenantID, customerID)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// AssessCustomer handles POST /customers/{id}/risk and rebuilds the assessment.
func (h *Handler) AssessCustomer(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Risk.AssessCustomer(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Stats.Stats(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
