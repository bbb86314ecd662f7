package coach

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gymstudio.app/internal/auth"
)

func TestCreateInvitation(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.svc.CreateInvitation(reviewerCtx(), CreateInvitationInput{
		Email:    "  Ana@Example.com ",
		Category: CategoryBoth,
		Message:  "Welcome!",
		IssuedBy: "rev-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	inv := res.Invitation
	if inv.Email != "ana@example.com" || inv.State != InvitationPending {
		t.Fatalf("unexpected invitation %+v", inv)
	}
	if want := env.clock.Now().Add(DefaultExpiryDays * 24 * time.Hour); !inv.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", inv.ExpiresAt, want)
	}
	if len(inv.Token) < 43 {
		t.Fatalf("token too short: %q", inv.Token)
	}
	if res.URL != "https://studio.test/onboarding/coach/"+inv.Token {
		t.Fatalf("unexpected url %q", res.URL)
	}
	if !res.EmailSent {
		t.Fatal("expected email to be sent")
	}
	sent := env.mailer.Sent()
	if len(sent) != 1 || sent[0].To[0] != "ana@example.com" || !strings.Contains(sent[0].Text, res.URL) {
		t.Fatalf("unexpected email %+v", sent)
	}
}

func TestCreateInvitationValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		in   CreateInvitationInput
	}{
		{"bad email", CreateInvitationInput{Email: "nope", Category: CategoryCycling}},
		{"display name", CreateInvitationInput{Email: "Ana <ana@example.com>", Category: CategoryCycling}},
		{"bad category", CreateInvitationInput{Email: "a@example.com", Category: "yoga"}},
		{"too long", CreateInvitationInput{Email: "a@example.com", Category: CategoryCycling, ExpiryDays: 91}},
		{"negative", CreateInvitationInput{Email: "a@example.com", Category: CategoryCycling, ExpiryDays: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.CreateInvitation(reviewerCtx(), tc.in)
			assertKind(t, err, KindValidation)
		})
	}
	if n := len(env.mailer.Sent()); n != 0 {
		t.Fatalf("no email expected, got %d", n)
	}
}

func TestCreateInvitationRequiresReviewer(t *testing.T) {
	env := newTestEnv(t)
	ctx := auth.ContextWithUser(context.Background(), "c-1", []string{auth.RoleCoach})
	_, err := env.svc.CreateInvitation(ctx, CreateInvitationInput{Email: "a@example.com", Category: CategoryCycling})
	assertKind(t, err, KindForbidden)
}

func TestCreateInvitationConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.invite(t, "ana@example.com")

	_, err := env.svc.CreateInvitation(reviewerCtx(), CreateInvitationInput{Email: "ANA@example.com", Category: CategoryFunctional})
	assertKind(t, err, KindConflict)

	if _, err := env.accounts.CreateAccount(context.Background(), "bob@example.com", "password1", auth.AccountMetadata{Role: auth.RoleCoach}); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	_, err = env.svc.CreateInvitation(reviewerCtx(), CreateInvitationInput{Email: "bob@example.com", Category: CategoryCycling})
	assertKind(t, err, KindConflict)
}

func TestCreateInvitationEmailFailureKeepsInvitation(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.Err = errors.New("smtp down")
	res, err := env.svc.CreateInvitation(reviewerCtx(), CreateInvitationInput{Email: "ana@example.com", Category: CategoryCycling})
	if err != nil {
		t.Fatalf("create should succeed despite email failure: %v", err)
	}
	if res.EmailSent {
		t.Fatal("EmailSent should be false")
	}
	if _, err := env.store.InvitationByID(context.Background(), res.Invitation.ID); err != nil {
		t.Fatalf("invitation not persisted: %v", err)
	}
}

func TestConcurrentCreateYieldsOnePending(t *testing.T) {
	env := newTestEnv(t)
	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.CreateInvitation(reviewerCtx(), CreateInvitationInput{Email: "race@example.com", Category: CategoryCycling})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case KindOf(err) == KindConflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || conflicts != n-1 {
		t.Fatalf("ok=%d conflicts=%d", ok, conflicts)
	}
	list, _ := env.store.ListInvitations(context.Background(), InvitationFilter{State: InvitationPending, Email: "race@example.com"})
	if len(list) != 1 {
		t.Fatalf("expected exactly one pending invitation, got %d", len(list))
	}
}

func TestVerifyInvitation(t *testing.T) {
	env := newTestEnv(t)
	res := env.invite(t, "ana@example.com")

	view, err := env.svc.VerifyInvitation(context.Background(), res.Invitation.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if view.ID != res.Invitation.ID || view.Email != "ana@example.com" || view.Category != CategoryCycling {
		t.Fatalf("unexpected view %+v", view)
	}

	_, err = env.svc.VerifyInvitation(context.Background(), "unknown")
	assertKind(t, err, KindNotFound)
	_, err = env.svc.VerifyInvitation(context.Background(), "  ")
	assertKind(t, err, KindNotFound)
}

func TestVerifyExpiresOnce(t *testing.T) {
	env := newTestEnv(t)
	res := env.invite(t, "ana@example.com")
	env.clock.Advance(DefaultExpiryDays*24*time.Hour + time.Second)

	_, err := env.svc.VerifyInvitation(context.Background(), res.Invitation.Token)
	assertKind(t, err, KindExpired)
	inv, _ := env.store.InvitationByID(context.Background(), res.Invitation.ID)
	if inv.State != InvitationExpired {
		t.Fatalf("state = %s, want expired", inv.State)
	}
	stamped := inv.UpdatedAt

	env.clock.Advance(time.Hour)
	_, err = env.svc.VerifyInvitation(context.Background(), res.Invitation.Token)
	assertKind(t, err, KindExpired)
	inv, _ = env.store.InvitationByID(context.Background(), res.Invitation.ID)
	if !inv.UpdatedAt.Equal(stamped) {
		t.Fatal("expired invitation was rewritten")
	}

	// An expired invitation no longer blocks a new one for the same email.
	env.invite(t, "ana@example.com")
}

func TestVerifyRejectsUsedAndCancelled(t *testing.T) {
	env := newTestEnv(t)
	used := env.invite(t, "ana@example.com")
	if _, err := env.svc.SubmitOnboarding(context.Background(), submission(used.Invitation.Token)); err != nil {
		t.Fatalf("onboarding: %v", err)
	}
	_, err := env.svc.VerifyInvitation(context.Background(), used.Invitation.Token)
	assertKind(t, err, KindInvalidState)
	if !strings.Contains(err.Error(), "used") {
		t.Fatalf("message should carry state: %v", err)
	}

	cancelled := env.invite(t, "bob@example.com")
	if _, err := env.svc.CancelInvitation(reviewerCtx(), cancelled.Invitation.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err = env.svc.VerifyInvitation(context.Background(), cancelled.Invitation.Token)
	assertKind(t, err, KindInvalidState)
}

func TestCancelInvitation(t *testing.T) {
	env := newTestEnv(t)
	res := env.invite(t, "ana@example.com")

	inv, err := env.svc.CancelInvitation(reviewerCtx(), res.Invitation.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if inv.State != InvitationCancelled {
		t.Fatalf("state = %s", inv.State)
	}
	_, err = env.svc.CancelInvitation(reviewerCtx(), res.Invitation.ID)
	assertKind(t, err, KindInvalidState)
	_, err = env.svc.CancelInvitation(reviewerCtx(), "missing")
	assertKind(t, err, KindNotFound)
}

func TestResendInvitation(t *testing.T) {
	env := newTestEnv(t)
	res := env.invite(t, "ana@example.com")
	env.clock.Advance(36 * time.Hour)

	out, err := env.svc.ResendInvitation(reviewerCtx(), res.Invitation.ID)
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	// 7 days minus 36h is 5.5 days, rounded up.
	if out.DaysRemaining != 6 {
		t.Fatalf("days remaining = %d, want 6", out.DaysRemaining)
	}
	if !out.Invitation.ExpiresAt.Equal(res.Invitation.ExpiresAt) {
		t.Fatal("resend must not move expires_at")
	}
	if n := len(env.mailer.Sent()); n != 2 {
		t.Fatalf("expected 2 emails, got %d", n)
	}
}

func TestResendPastExpiryFlipsToExpired(t *testing.T) {
	env := newTestEnv(t)
	res := env.invite(t, "ana@example.com")
	env.clock.Advance(8 * 24 * time.Hour)

	_, err := env.svc.ResendInvitation(reviewerCtx(), res.Invitation.ID)
	assertKind(t, err, KindExpired)
	inv, _ := env.store.InvitationByID(context.Background(), res.Invitation.ID)
	if inv.State != InvitationExpired {
		t.Fatalf("state = %s, want expired", inv.State)
	}
	_, err = env.svc.ResendInvitation(reviewerCtx(), res.Invitation.ID)
	assertKind(t, err, KindInvalidState)
}

func TestDaysRemaining(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		left time.Duration
		want int
	}{
		{-time.Hour, 0},
		{0, 0},
		{time.Minute, 1},
		{24 * time.Hour, 1},
		{24*time.Hour + time.Second, 2},
		{7 * 24 * time.Hour, 7},
	}
	for _, tc := range cases {
		if got := DaysRemaining(now.Add(tc.left), now); got != tc.want {
			t.Errorf("DaysRemaining(%v) = %d, want %d", tc.left, got, tc.want)
		}
	}
}
