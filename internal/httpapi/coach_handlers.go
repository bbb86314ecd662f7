package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"gymstudio.app/internal/audit"
	"gymstudio.app/internal/auth"
	"gymstudio.app/internal/coach"
)

type coachDetail struct {
	Coach          coach.Coach               `json:"coach"`
	Documents      []coach.Document          `json:"documents"`
	Certifications []coach.Certification     `json:"certifications"`
	Verification   coach.VerificationSummary `json:"verification"`
	Contract       *coach.Contract           `json:"contract,omitempty"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type correctionsRequest struct {
	Items []string `json:"items"`
}

type verificationRequest struct {
	Verified bool `json:"verified"`
}

type documentRejectionRequest struct {
	Note string `json:"note"`
}

type contractRequest struct {
	Type               coach.ContractType `json:"contract_type"`
	StartDate          string             `json:"start_date"`
	EndDate            string             `json:"end_date,omitempty"`
	BaseSalary         *int64             `json:"base_salary,omitempty"`
	PerClassCommission *int64             `json:"per_class_commission,omitempty"`
	Notes              string             `json:"notes,omitempty"`
}

func (a *API) handleListCoaches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := a.svc.ListCoaches(r.Context(), coach.CoachFilter{
		State:    coach.State(q.Get("state")),
		Category: coach.Category(q.Get("category")),
		Limit:    queryLimit(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if out == nil {
		out = []coach.Coach{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"coaches": out})
}

func (a *API) handleGetCoach(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	c, err := a.svc.Coach(ctx, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	docs, err := a.svc.Documents(ctx, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	certs, err := a.svc.Certifications(ctx, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	detail := coachDetail{
		Coach:          c,
		Documents:      docs,
		Certifications: certs,
		Verification:   coach.Summarize(docs),
	}
	if detail.Documents == nil {
		detail.Documents = []coach.Document{}
	}
	if detail.Certifications == nil {
		detail.Certifications = []coach.Certification{}
	}
	k, err := a.svc.CurrentContract(ctx, id)
	switch {
	case err == nil:
		detail.Contract = &k
	case coach.KindOf(err) != coach.KindNotFound:
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleApprove(w http.ResponseWriter, r *http.Request) {
	reviewer, _ := auth.UserIDFromContext(r.Context())
	c, err := a.svc.Approve(r.Context(), chi.URLParam(r, "id"), reviewer)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.Record(r.Context(), audit.EventCoachApproved, map[string]any{"coach_id": c.ID})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	reviewer, _ := auth.UserIDFromContext(r.Context())
	c, err := a.svc.Reject(r.Context(), chi.URLParam(r, "id"), reviewer, req.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.Record(r.Context(), audit.EventCoachRejected, map[string]any{"coach_id": c.ID, "reason": c.RejectionReason})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleCorrections(w http.ResponseWriter, r *http.Request) {
	var req correctionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	reviewer, _ := auth.UserIDFromContext(r.Context())
	c, err := a.svc.RequestCorrections(r.Context(), chi.URLParam(r, "id"), reviewer, req.Items)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.Record(r.Context(), audit.EventCorrections, map[string]any{"coach_id": c.ID, "items": len(c.Corrections)})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleDeleteCoach(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.svc.DeleteCoach(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.Record(r.Context(), audit.EventCoachDeleted, map[string]any{"coach_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleVerifyDocument(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	reviewer, _ := auth.UserIDFromContext(r.Context())
	d, err := a.svc.SetDocumentVerified(r.Context(), chi.URLParam(r, "id"), req.Verified, reviewer)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.Record(r.Context(), audit.EventDocumentReviewed, map[string]any{"document_id": d.ID, "status": d.Status})
	writeJSON(w, http.StatusOK, d)
}

func (a *API) handleRejectDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRejectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	reviewer, _ := auth.UserIDFromContext(r.Context())
	d, err := a.svc.RejectDocument(r.Context(), chi.URLParam(r, "id"), reviewer, req.Note)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.Record(r.Context(), audit.EventDocumentReviewed, map[string]any{"document_id": d.ID, "status": d.Status})
	writeJSON(w, http.StatusOK, d)
}

func (a *API) handleVerifyCertification(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	reviewer, _ := auth.UserIDFromContext(r.Context())
	c, err := a.svc.SetCertificationVerified(r.Context(), chi.URLParam(r, "id"), req.Verified, reviewer)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.Record(r.Context(), audit.EventCertReviewed, map[string]any{"certification_id": c.ID, "verified": c.Verified})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleIssueContract(w http.ResponseWriter, r *http.Request) {
	var req contractRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		writeServiceError(w, r, coach.Validationf("start_date: expected YYYY-MM-DD"))
		return
	}
	end, err := optionalDate("end_date", req.EndDate)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	issuer, _ := auth.UserIDFromContext(r.Context())
	k, err := a.svc.IssueOrRenew(r.Context(), chi.URLParam(r, "id"), coach.ContractTerms{
		Type:               req.Type,
		StartDate:          start,
		EndDate:            end,
		BaseSalary:         req.BaseSalary,
		PerClassCommission: req.PerClassCommission,
		Notes:              req.Notes,
	}, issuer)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.Record(r.Context(), audit.EventContractIssued, map[string]any{
		"coach_id":    k.CoachID,
		"contract_id": k.ID,
		"version":     k.Version,
	})
	writeJSON(w, http.StatusCreated, k)
}

func (a *API) handleListContracts(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.Contracts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if out == nil {
		out = []coach.Contract{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"contracts": out})
}
