package api

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/claimguard/internal/claims"
	"github.com/opensource-finance/claimguard/internal/domain"
)

// maxUploadBytes caps document and photo uploads.
const maxUploadBytes = 20 << 20

// FileClaim handles POST /claims.
func (h *Handler) FileClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		claims.FileClaimInput
		Actor string `json:"actor"`
	}
	if !decode(w, r, &req) {
		return
	}
	c, err := h.svc.Claims.FileClaim(r.Context(), GetTenantID(r.Context()), req.FileClaimInput, req.Actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.invalidateStats(r)
	writeJSON(w, http.StatusCreated, c)
}

// GetClaim handles GET /claims/{id}.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Claims.GetClaim(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ListClaims handles GET /claims. Supports customerId, policyId and status filters.
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.svc.Claims.ListClaims(r.Context(), GetTenantID(r.Context()), domain.ClaimFilter{
		CustomerID: q.Get("customerId"),
		PolicyID:   q.Get("policyId"),
		Status:     domain.ClaimStatus(q.Get("status")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"claims": list,
		"count":  len(list),
	})
}

// AdvanceClaim handles POST /claims/{id}/advance.
func (h *Handler) AdvanceClaim(w http.ResponseWriter, r *http.Request) {
	var req claims.AdvanceRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.svc.Claims.Advance(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.invalidateStats(r)
	writeJSON(w, http.StatusOK, c)
}

// AssignRequest is the request body for POST /claims/{id}/assign.
type AssignRequest struct {
	AssignedTo string `json:"assignedTo"`
	Actor      string `json:"actor"`
}

// AssignClaim handles POST /claims/{id}/assign.
func (h *Handler) AssignClaim(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.svc.Claims.Assign(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.AssignedTo, req.Actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// NoteRequest is the request body for POST /claims/{id}/notes.
type NoteRequest struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

// AddNote handles POST /claims/{id}/notes.
func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.svc.Claims.AddNote(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Author, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// AttachDocument handles multipart POST /claims/{id}/documents.
func (h *Handler) AttachDocument(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, h.svc.Claims.AttachDocument)
}

// AttachPhoto handles multipart POST /claims/{id}/photos.
func (h *Handler) AttachPhoto(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, h.svc.Claims.AttachPhoto)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request, attach func(ctx context.Context, tenantID, claimID string, blob domain.Blob, actor string) (*domain.InsuranceClaim, error)) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart upload"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read upload"})
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	blob := domain.Blob{Name: header.Filename, ContentType: contentType, Data: data}
	c, err := attach(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), blob, r.FormValue("actor"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// InvestigationRequest is the request body for POST /claims/{id}/investigation/complete.
type InvestigationRequest struct {
	Actor    string `json:"actor"`
	Findings string `json:"findings"`
}

// CompleteInvestigation handles POST /claims/{id}/investigation/complete.
func (h *Handler) CompleteInvestigation(w http.ResponseWriter, r *http.Request) {
	var req InvestigationRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.svc.Claims.CompleteInvestigation(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Actor, req.Findings)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// SettlementRequest is the request body for the settlement endpoints.
type SettlementRequest struct {
	Amount float64 `json:"amount"`
	Actor  string  `json:"actor"`
}

// OfferSettlement handles POST /claims/{id}/settlement/offer.
func (h *Handler) OfferSettlement(w http.ResponseWriter, r *http.Request) {
	var req SettlementRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.svc.Claims.OfferSettlement(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Amount, req.Actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// AcceptSettlement handles POST /claims/{id}/settlement/accept.
func (h *Handler) AcceptSettlement(w http.ResponseWriter, r *http.Request) {
	var req SettlementRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.svc.Claims.AcceptSettlement(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.invalidateStats(r)
	writeJSON(w, http.StatusOK, c)
}

// ReassessClaim handles POST /claims/{id}/reassess.
func (h *Handler) ReassessClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor string `json:"actor"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Claims.ReassessClaim(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.invalidateStats(r)
	writeJSON(w, http.StatusOK, res)
}

// ClaimTransitions handles GET /claims/{id}/transitions.
func (h *Handler) ClaimTransitions(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Claims.GetClaim(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	targets := claims.Targets(c.Status)
	if targets == nil {
		targets = []domain.ClaimStatus{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  c.Status,
		"targets": targets,
	})
}
