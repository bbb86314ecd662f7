package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"gymstudio.app/internal/audit"
	"gymstudio.app/internal/auth"
	"gymstudio.app/internal/coach"
)

type signRequest struct {
	// base64 in JSON
	SignaturePNG []byte `json:"signature_png"`
}

func callerID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

func (a *API) handleAccess(w http.ResponseWriter, r *http.Request) {
	d, err := a.svc.CheckAccess(r.Context(), callerID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var patch coach.ProfilePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.svc.UpdateOwnProfile(r.Context(), callerID(r), patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.Record(r.Context(), audit.EventProfileUpdated, map[string]any{"coach_id": c.ID})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleReuploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeServiceError(w, r, coach.Validationf("file is required"))
		return
	}
	up, err := readUpload(headers[0])
	if err != nil {
		writeServiceError(w, r, coach.Validationf("file: %v", err))
		return
	}
	t := coach.DocumentType(chi.URLParam(r, "type"))
	d, err := a.svc.ReuploadDocument(r.Context(), callerID(r), t, up)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.Record(r.Context(), audit.EventDocumentReuploaded, map[string]any{"document_id": d.ID, "type": d.Type})
	writeJSON(w, http.StatusOK, d)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := a.svc.Dashboard(r.Context(), callerID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) handleMyContracts(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.Contracts(r.Context(), callerID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if out == nil {
		out = []coach.Contract{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"contracts": out})
}

func (a *API) handleSignContract(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	k, err := a.svc.SignContract(r.Context(), callerID(r), coach.Signature{
		ImagePNG: req.SignaturePNG,
		IP:       clientIP(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.Record(r.Context(), audit.EventContractSigned, map[string]any{"contract_id": k.ID, "version": k.Version})
	writeJSON(w, http.StatusCreated, k)
}

func (a *API) handleNotifications(w http.ResponseWriter, r *http.Request) {
	unread := r.URL.Query().Get("unread") == "true"
	out, err := a.svc.Notifications(r.Context(), callerID(r), unread, queryLimit(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if out == nil {
		out = []coach.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

func (a *API) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.MarkNotificationRead(r.Context(), callerID(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
