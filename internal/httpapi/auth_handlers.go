package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"gymstudio.app/internal/audit"
	"gymstudio.app/internal/auth"
	"gymstudio.app/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	acc, err := a.accounts.VerifyCredentials(r.Context(), email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			audit.Record(r.Context(), audit.EventLogin, map[string]any{"email": strings.ToLower(email), "result": "denied"})
			unauthorized(w, r, "invalid credentials")
			return
		}
		obs.Error(r.Context(), "verify credentials failed", err, nil)
		writeError(w, r, http.StatusBadGateway, "identity provider unavailable")
		return
	}

	token, err := auth.GenerateToken(acc.ID, acc.Email, []string{acc.Role}, a.tokenTTL)
	if err != nil {
		obs.Error(r.Context(), "token generation failed", err, nil)
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	audit.Record(auth.ContextWithUser(r.Context(), acc.ID, []string{acc.Role}), audit.EventLogin, map[string]any{
		"result":     "ok",
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		UserID:    acc.ID,
		Role:      acc.Role,
	})
}
