package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"gymstudio.app/internal/audit"
	"gymstudio.app/internal/auth"
	"gymstudio.app/internal/coach"
)

type createInvitationRequest struct {
	Email      string         `json:"email"`
	Category   coach.Category `json:"category"`
	ExpiryDays int            `json:"expiry_days,omitempty"`
	Message    string         `json:"message,omitempty"`
}

func (a *API) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	var req createInvitationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	res, err := a.svc.CreateInvitation(r.Context(), coach.CreateInvitationInput{
		Email:      req.Email,
		Category:   req.Category,
		ExpiryDays: req.ExpiryDays,
		Message:    req.Message,
		IssuedBy:   userID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.Record(r.Context(), audit.EventInvitationCreated, map[string]any{
		"invitation_id": res.Invitation.ID,
		"email":         res.Invitation.Email,
		"category":      res.Invitation.Category,
		"email_sent":    res.EmailSent,
	})
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := coach.InvitationFilter{
		State: coach.InvitationState(q.Get("state")),
		Email: q.Get("email"),
		Limit: queryLimit(r),
	}
	out, err := a.svc.ListInvitations(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if out == nil {
		out = []coach.Invitation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": out})
}

func (a *API) handleCancelInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := a.svc.CancelInvitation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.Record(r.Context(), audit.EventInvitationCancelled, map[string]any{"invitation_id": inv.ID})
	writeJSON(w, http.StatusOK, inv)
}

func (a *API) handleResendInvitation(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.ResendInvitation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.Record(r.Context(), audit.EventInvitationResent, map[string]any{
		"invitation_id":  res.Invitation.ID,
		"days_remaining": res.DaysRemaining,
		"email_sent":     res.EmailSent,
	})
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleVerifyInvitation(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.VerifyInvitation(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
