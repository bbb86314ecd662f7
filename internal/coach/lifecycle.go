package coach

import (
	"context"
	"errors"
	"strings"

	"gymstudio.app/internal/auth"
	mailer "gymstudio.app/internal/mail"
	"gymstudio.app/internal/notify"
	"gymstudio.app/internal/obs"
)

// Action is a reviewer decision on a pending coach.
type Action string

const (
	ActionApprove            Action = "approve"
	ActionReject             Action = "reject"
	ActionRequestCorrections Action = "request_corrections"
)

type transition struct {
	from   State
	to     State
	active bool
}

// active and rejected are terminal: nothing leaves them.
var transitions = map[Action]transition{
	ActionApprove:            {from: StatePending, to: StateActive, active: true},
	ActionReject:             {from: StatePending, to: StateRejected},
	ActionRequestCorrections: {from: StatePending, to: StatePending},
}

// AccessDecision tells the coach area whether to render or redirect.
type AccessDecision struct {
	Allowed  bool   `json:"allowed"`
	State    State  `json:"state,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

func (s *Service) apply(ctx context.Context, coachID string, a Action, t CoachTransition) (Coach, error) {
	tr, ok := transitions[a]
	if !ok {
		return Coach{}, Validationf("unknown action %q", a)
	}
	t.To = tr.to
	t.Active = tr.active
	t.At = s.now()
	c, err := s.store.TransitionCoach(ctx, coachID, tr.from, t)
	if err != nil {
		return Coach{}, err
	}
	obs.RecordCoachTransition(string(a))
	obs.Info(ctx, "coach transition", map[string]any{"coach_id": coachID, "action": a, "state": c.State, "by": t.By})
	return c, nil
}

// Approve activates a pending coach.
func (s *Service) Approve(ctx context.Context, coachID, reviewerID string) (Coach, error) {
	if err := requireReviewer(ctx); err != nil {
		return Coach{}, err
	}
	c, err := s.apply(ctx, coachID, ActionApprove, CoachTransition{By: reviewerID})
	if err != nil {
		return Coach{}, err
	}
	s.notifier.Notify(ctx, Notification{
		UserID:    c.ID,
		Type:      notify.TypeCoachApproved,
		Title:     "Profile approved",
		Message:   "Welcome aboard! Your dashboard is now available.",
		CreatedAt: s.now(),
	})
	s.sendMail(ctx, mailer.TplApproval, c.Email, mailer.CoachData{Name: c.Profile.FullName, URL: s.url("/coach/dashboard")})
	return c, nil
}

// Reject closes a pending application with a reason shown to the coach.
func (s *Service) Reject(ctx context.Context, coachID, reviewerID, reason string) (Coach, error) {
	if err := requireReviewer(ctx); err != nil {
		return Coach{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Coach{}, Validationf("rejection reason is required")
	}
	c, err := s.apply(ctx, coachID, ActionReject, CoachTransition{By: reviewerID, RejectionReason: reason})
	if err != nil {
		return Coach{}, err
	}
	s.notifier.Notify(ctx, Notification{
		UserID:    c.ID,
		Type:      notify.TypeCoachRejected,
		Title:     "Application not approved",
		Message:   reason,
		CreatedAt: s.now(),
	})
	s.sendMail(ctx, mailer.TplRejection, c.Email, mailer.CoachData{Name: c.Profile.FullName, Reason: reason})
	return c, nil
}

// RequestCorrections asks a pending coach to fix the listed items. The state stays pending.
func (s *Service) RequestCorrections(ctx context.Context, coachID, reviewerID string, corrections []string) (Coach, error) {
	if err := requireReviewer(ctx); err != nil {
		return Coach{}, err
	}
	items := make([]string, 0, len(corrections))
	for _, c := range corrections {
		if c = strings.TrimSpace(c); c != "" {
			items = append(items, c)
		}
	}
	if len(items) == 0 {
		return Coach{}, Validationf("at least one correction is required")
	}
	c, err := s.apply(ctx, coachID, ActionRequestCorrections, CoachTransition{By: reviewerID, Corrections: items})
	if err != nil {
		return Coach{}, err
	}
	s.notifier.Notify(ctx, Notification{
		UserID:    c.ID,
		Type:      notify.TypeCorrectionsRequested,
		Title:     "Corrections requested",
		Message:   strings.Join(items, "; "),
		CreatedAt: s.now(),
	})
	s.sendMail(ctx, mailer.TplCorrections, c.Email, mailer.CoachData{
		Name:        c.Profile.FullName,
		Corrections: items,
		URL:         s.url(pendingRedirect),
	})
	return c, nil
}

// CheckAccess re-reads the coach on every call.
func (s *Service) CheckAccess(ctx context.Context, coachID string) (AccessDecision, error) {
	c, err := s.store.CoachByID(ctx, coachID)
	if KindOf(err) == KindNotFound {
		return AccessDecision{Allowed: false, Redirect: pendingRedirect}, nil
	}
	if err != nil {
		return AccessDecision{}, err
	}
	if c.State == StateActive && c.Active {
		return AccessDecision{Allowed: true, State: c.State}, nil
	}
	return AccessDecision{Allowed: false, State: c.State, Redirect: pendingRedirect}, nil
}

// Coach returns one coach.
func (s *Service) Coach(ctx context.Context, coachID string) (Coach, error) {
	return s.store.CoachByID(ctx, coachID)
}

func (s *Service) ListCoaches(ctx context.Context, f CoachFilter) ([]Coach, error) {
	if err := requireReviewer(ctx); err != nil {
		return nil, err
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return s.store.ListCoaches(ctx, f)
}

// UpdateOwnProfile lets a pending coach fix their data.
func (s *Service) UpdateOwnProfile(ctx context.Context, coachID string, patch ProfilePatch) (Coach, error) {
	if patch.FullName != nil && strings.TrimSpace(*patch.FullName) == "" {
		return Coach{}, Validationf("full_name must not be empty")
	}
	if patch.Phone != nil && strings.TrimSpace(*patch.Phone) == "" {
		return Coach{}, Validationf("phone must not be empty")
	}
	if patch.YearsExperience != nil && *patch.YearsExperience < 0 {
		return Coach{}, Validationf("years_experience must not be negative")
	}
	return s.store.UpdateCoachProfile(ctx, coachID, patch, s.now())
}

// DeleteCoach removes the coach with every dependent record, then the identity account.
func (s *Service) DeleteCoach(ctx context.Context, coachID string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.store.DeleteCoach(ctx, coachID); err != nil {
		return err
	}
	if err := s.accounts.DeleteAccount(ctx, coachID); err != nil && !errors.Is(err, auth.ErrNotFound) {
		return markPartial(Upstream("", "identity account deletion failed", err))
	}
	obs.Info(ctx, "coach deleted", map[string]any{"coach_id": coachID})
	return nil
}

// Dashboard is the coach home view.
type Dashboard struct {
	Coach        Coach               `json:"coach"`
	Verification VerificationSummary `json:"verification"`
	Contract     *Contract           `json:"contract,omitempty"`
	Unread       int                 `json:"unread_notifications"`
}

func (s *Service) Dashboard(ctx context.Context, coachID string) (Dashboard, error) {
	c, err := s.store.CoachByID(ctx, coachID)
	if err != nil {
		return Dashboard{}, err
	}
	sum, err := s.Summary(ctx, coachID)
	if err != nil {
		return Dashboard{}, err
	}
	d := Dashboard{Coach: c, Verification: sum}
	if k, err := s.store.CurrentContract(ctx, coachID); err == nil {
		d.Contract = &k
	} else if KindOf(err) != KindNotFound {
		return Dashboard{}, err
	}
	unread, err := s.store.ListNotifications(ctx, coachID, true, 0)
	if err != nil {
		return Dashboard{}, err
	}
	d.Unread = len(unread)
	return d, nil
}
