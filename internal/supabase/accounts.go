package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gymstudio.app/internal/auth"
)

var _ auth.Accounts = (*Accounts)(nil)

// Accounts implements auth.Accounts with the GoTrue admin API.
// Email lookups go through the profiles table since GoTrue has no email filter.
type Accounts struct {
	c *Client
}

func NewAccounts(c *Client) *Accounts {
	return &Accounts{c: c}
}

type gotrueUser struct {
	ID           string               `json:"id"`
	Email        string               `json:"email"`
	CreatedAt    time.Time            `json:"created_at"`
	UserMetadata auth.AccountMetadata `json:"user_metadata"`
}

func (u gotrueUser) account() auth.Account {
	return auth.Account{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.UserMetadata.Role,
		FullName:  u.UserMetadata.FullName,
		CreatedAt: u.CreatedAt,
	}
}

func (a *Accounts) CreateAccount(ctx context.Context, email, password string, meta auth.AccountMetadata) (auth.Account, error) {
	if err := auth.ValidatePassword(password); err != nil {
		return auth.Account{}, err
	}
	payload := map[string]any{
		"email":         strings.ToLower(strings.TrimSpace(email)),
		"password":      password,
		"email_confirm": true,
		"user_metadata": meta,
	}
	data, err := a.c.makeRequest(ctx, http.MethodPost, "/auth/v1/admin/users", payload, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnprocessableEntity || apiErr.Status == http.StatusConflict) {
			return auth.Account{}, auth.ErrAlreadyExists
		}
		return auth.Account{}, err
	}
	var u gotrueUser
	if err := json.Unmarshal(data, &u); err != nil {
		return auth.Account{}, fmt.Errorf("decode user: %w", err)
	}
	return u.account(), nil
}

func (a *Accounts) VerifyCredentials(ctx context.Context, email, password string) (auth.Account, error) {
	payload := map[string]string{
		"email":    strings.ToLower(strings.TrimSpace(email)),
		"password": password,
	}
	data, err := a.c.makeRequest(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", payload, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest {
			return auth.Account{}, auth.ErrInvalidCredentials
		}
		return auth.Account{}, err
	}
	var session struct {
		User gotrueUser `json:"user"`
	}
	if err := json.Unmarshal(data, &session); err != nil {
		return auth.Account{}, fmt.Errorf("decode session: %w", err)
	}
	return session.User.account(), nil
}

func (a *Accounts) LookupByEmail(ctx context.Context, email string) (auth.Account, error) {
	q := url.Values{}
	q.Set("email", "eq."+strings.ToLower(strings.TrimSpace(email)))
	q.Set("select", "id,email,role,full_name,created_at")
	data, err := a.c.makeRequest(ctx, http.MethodGet, "/rest/v1/profiles?"+q.Encode(), nil, nil)
	if err != nil {
		return auth.Account{}, err
	}
	var rows []auth.Account
	if err := json.Unmarshal(data, &rows); err != nil {
		return auth.Account{}, fmt.Errorf("decode profiles: %w", err)
	}
	if len(rows) == 0 {
		return auth.Account{}, auth.ErrNotFound
	}
	return rows[0], nil
}

func (a *Accounts) DeleteAccount(ctx context.Context, id string) error {
	_, err := a.c.makeRequest(ctx, http.MethodDelete, "/auth/v1/admin/users/"+url.PathEscape(id), nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return auth.ErrNotFound
	}
	return err
}
