package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/policy"
)

// QuoteRequest is the request body for POST /coverage/quote.
type QuoteRequest struct {
	PackageValue float64 `json:"packageValue"`
	CoverageType string  `json:"coverageType"`
}

// ListTiers handles GET /coverage/tiers.
func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	tiers := h.svc.Policies.Catalog().Tiers()
	writeJSON(w, http.StatusOK, map[string]any{
		"tiers": tiers,
		"count": len(tiers),
	})
}

// Quote handles POST /coverage/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !decode(w, r, &req) {
		return
	}
	q, err := h.svc.Policies.Catalog().Quote(req.PackageValue, req.CoverageType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// RegisterInsurer handles POST /insurers.
func (h *Handler) RegisterInsurer(w http.ResponseWriter, r *http.Request) {
	var req domain.Insurer
	if !decode(w, r, &req) {
		return
	}
	insurer, err := h.svc.Policies.RegisterInsurer(r.Context(), GetTenantID(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, insurer)
}

// ListInsurers handles GET /insurers.
func (h *Handler) ListInsurers(w http.ResponseWriter, r *http.Request) {
	insurers, err := h.svc.Policies.ListInsurers(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"insurers": insurers,
		"count":    len(insurers),
	})
}

// CreatePolicy handles POST /policies.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req policy.CreatePolicyInput
	if !decode(w, r, &req) {
		return
	}
	p, err := h.svc.Policies.CreatePolicy(r.Context(), GetTenantID(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.invalidateStats(r)
	writeJSON(w, http.StatusCreated, p)
}

// GetPolicy handles GET /policies/{id}.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Policies.GetPolicy(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListPolicies handles GET /policies. Supports customerId, insuranceCompany
// and status query filters.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	policies, err := h.svc.Policies.ListPolicies(r.Context(), GetTenantID(r.Context()), domain.PolicyFilter{
		CustomerID: q.Get("customerId"),
		InsurerID:  q.Get("insuranceCompany"),
		Status:     domain.PolicyStatus(q.Get("status")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"policies": policies,
		"count":    len(policies),
	})
}

// PolicyStatusRequest is the request body for POST /policies/{id}/status.
type PolicyStatusRequest struct {
	Status domain.PolicyStatus `json:"status"`
}

// UpdatePolicyStatus handles POST /policies/{id}/status.
func (h *Handler) UpdatePolicyStatus(w http.ResponseWriter, r *http.Request) {
	var req PolicyStatusRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.svc.Policies.UpdateStatus(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.invalidateStats(r)
	writeJSON(w, http.StatusOK, p)
}

// RenewPolicy handles POST /policies/{id}/renew. It renews or expires the
// policy as of now and is safe to repeat.
func (h *Handler) RenewPolicy(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Policies.RenewOrExpirePolicy(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), h.svc.Clock())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.Action != domain.RenewalNone {
		h.invalidateStats(r)
	}
	writeJSON(w, http.StatusOK, res)
}

// SweepPolicies handles POST /policies/sweep.
func (h *Handler) SweepPolicies(w http.ResponseWriter, r *http.Request) {
	results, err := h.svc.Policies.SweepPolicies(r.Context(), GetTenantID(r.Context()), h.svc.Clock())
	if err != nil && len(results) == 0 {
		writeError(w, r, err)
		return
	}

	resp := map[string]any{
		"results": results,
		"count":   len(results),
	}
	if err != nil {
		slog.Warn("policy sweep finished with errors",
			"tenant_id", GetTenantID(r.Context()),
			"error", err,
		)
		resp["error"] = err.Error()
	}
	h.invalidateStats(r)
	writeJSON(w, http.StatusOK, resp)
}
