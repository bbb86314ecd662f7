package coach

import (
	"context"
	"errors"
	"math"
	"net/mail"
	"strings"
	"time"

	"gymstudio.app/internal/auth"
	"gymstudio.app/internal/ids"
	mailer "gymstudio.app/internal/mail"
	"gymstudio.app/internal/obs"
)

// CreateInvitationInput is the reviewer's invitation request.
type CreateInvitationInput struct {
	Email      string
	Category   Category
	ExpiryDays int
	Message    string
	IssuedBy   string
}

// CreateInvitationResult carries the onboarding URL, which embeds the secret token.
type CreateInvitationResult struct {
	Invitation Invitation `json:"invitation"`
	URL        string     `json:"url"`
	EmailSent  bool       `json:"email_sent"`
}

// ResendResult reports the re-sent invitation.
type ResendResult struct {
	Invitation    Invitation `json:"invitation"`
	DaysRemaining int        `json:"days_remaining"`
	EmailSent     bool       `json:"email_sent"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, "@")
}

// CreateInvitation issues a single-use onboarding invitation and emails it.
func (s *Service) CreateInvitation(ctx context.Context, in CreateInvitationInput) (CreateInvitationResult, error) {
	if err := requireReviewer(ctx); err != nil {
		return CreateInvitationResult{}, err
	}
	email := normalizeEmail(in.Email)
	if !validEmail(email) {
		return CreateInvitationResult{}, Validationf("invalid email")
	}
	if !in.Category.Valid() {
		return CreateInvitationResult{}, Validationf("invalid category %q", in.Category)
	}
	days := in.ExpiryDays
	if days == 0 {
		days = s.expiryDays
	}
	if days < 1 || days > MaxExpiryDays {
		return CreateInvitationResult{}, Validationf("expiry days must be between 1 and %d", MaxExpiryDays)
	}

	if _, err := s.accounts.LookupByEmail(ctx, email); err == nil {
		obs.RecordInvitation("create", "conflict")
		return CreateInvitationResult{}, Conflictf("an account already exists for %s", email)
	} else if !errors.Is(err, auth.ErrNotFound) {
		return CreateInvitationResult{}, Upstream("", "account lookup failed", err)
	}
	pending, err := s.store.HasPendingInvitation(ctx, email)
	if err != nil {
		return CreateInvitationResult{}, err
	}
	if pending {
		obs.RecordInvitation("create", "conflict")
		return CreateInvitationResult{}, Conflictf("a pending invitation already exists for %s", email)
	}

	token, err := ids.Token(ids.DefaultTokenBytes)
	if err != nil {
		return CreateInvitationResult{}, err
	}
	now := s.now()
	inv := Invitation{
		ID:            ids.New(),
		Email:         email,
		Category:      in.Category,
		State:         InvitationPending,
		Token:         token,
		ExpiresAt:     now.Add(time.Duration(days) * 24 * time.Hour),
		InvitedBy:     in.IssuedBy,
		CustomMessage: strings.TrimSpace(in.Message),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		if KindOf(err) == KindConflict {
			obs.RecordInvitation("create", "conflict")
		}
		return CreateInvitationResult{}, err
	}

	link := s.url("/onboarding/coach/" + token)
	sent := s.sendMail(ctx, mailer.TplInvitation, email, mailer.InvitationData{
		Category:      string(inv.Category),
		URL:           link,
		Message:       inv.CustomMessage,
		ExpiresAt:     inv.ExpiresAt,
		DaysRemaining: days,
	})
	obs.RecordInvitation("create", "ok")
	obs.Info(ctx, "invitation created", map[string]any{"invitation_id": inv.ID, "category": inv.Category, "email_sent": sent})
	return CreateInvitationResult{Invitation: inv, URL: link, EmailSent: sent}, nil
}

// VerifyInvitation resolves a token to its public view if it can still be redeemed.
func (s *Service) VerifyInvitation(ctx context.Context, token string) (InvitationView, error) {
	inv, err := s.redeemable(ctx, token)
	if err != nil {
		obs.RecordInvitation("verify", string(KindOf(err)))
		return InvitationView{}, err
	}
	obs.RecordInvitation("verify", "ok")
	return inv.View(), nil
}

func (s *Service) redeemable(ctx context.Context, token string) (Invitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Invitation{}, NotFoundf("invitation not found")
	}
	inv, err := s.store.InvitationByToken(ctx, token)
	if err != nil {
		return Invitation{}, err
	}
	if err := s.checkPending(ctx, inv); err != nil {
		return Invitation{}, err
	}
	return inv, nil
}

// checkPending fails unless inv is pending and unexpired. A pending invitation past its
// expiry is flipped to expired once.
func (s *Service) checkPending(ctx context.Context, inv Invitation) error {
	switch inv.State {
	case InvitationPending:
	case InvitationExpired:
		return Expiredf("invitation expired")
	default:
		return InvalidStatef("invitation is %s", inv.State)
	}
	now := s.now()
	if now.Before(inv.ExpiresAt) {
		return nil
	}
	flipped, err := s.store.ExpireInvitation(ctx, inv.ID, now)
	if err != nil {
		return err
	}
	if flipped {
		obs.Info(ctx, "invitation expired", map[string]any{"invitation_id": inv.ID})
	}
	return Expiredf("invitation expired")
}

// CancelInvitation withdraws a pending invitation.
func (s *Service) CancelInvitation(ctx context.Context, id string) (Invitation, error) {
	if err := requireReviewer(ctx); err != nil {
		return Invitation{}, err
	}
	inv, err := s.store.CancelInvitation(ctx, id, s.now())
	if err != nil {
		obs.RecordInvitation("cancel", string(KindOf(err)))
		return Invitation{}, err
	}
	obs.RecordInvitation("cancel", "ok")
	return inv, nil
}

// ResendInvitation re-sends the email of a pending invitation. The expiry is unchanged.
func (s *Service) ResendInvitation(ctx context.Context, id string) (ResendResult, error) {
	if err := requireReviewer(ctx); err != nil {
		return ResendResult{}, err
	}
	inv, err := s.store.InvitationByID(ctx, id)
	if err != nil {
		return ResendResult{}, err
	}
	if inv.State != InvitationPending {
		obs.RecordInvitation("resend", string(KindInvalidState))
		return ResendResult{}, InvalidStatef("invitation is %s", inv.State)
	}
	if err := s.checkPending(ctx, inv); err != nil {
		obs.RecordInvitation("resend", string(KindOf(err)))
		return ResendResult{}, err
	}
	days := DaysRemaining(inv.ExpiresAt, s.now())
	sent := s.sendMail(ctx, mailer.TplInvitation, inv.Email, mailer.InvitationData{
		Category:      string(inv.Category),
		URL:           s.url("/onboarding/coach/" + inv.Token),
		Message:       inv.CustomMessage,
		ExpiresAt:     inv.ExpiresAt,
		DaysRemaining: days,
	})
	obs.RecordInvitation("resend", "ok")
	return ResendResult{Invitation: inv, DaysRemaining: days, EmailSent: sent}, nil
}

// DaysRemaining rounds the time left up to whole days.
func DaysRemaining(expiresAt, now time.Time) int {
	left := expiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}

func (s *Service) ListInvitations(ctx context.Context, f InvitationFilter) ([]Invitation, error) {
	if err := requireReviewer(ctx); err != nil {
		return nil, err
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	f.Email = normalizeEmail(f.Email)
	return s.store.ListInvitations(ctx, f)
}
