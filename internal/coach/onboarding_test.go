package coach

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gymstudio.app/internal/auth"
	"gymstudio.app/internal/storage"
)

func TestSubmitOnboarding(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invite(t, "ana@example.com")

	res, err := env.svc.SubmitOnboarding(context.Background(), submission(inv.Invitation.Token))
	if err != nil {
		t.Fatalf("onboarding: %v", err)
	}
	if len(res.MissingUploads) != 0 {
		t.Fatalf("unexpected missing uploads %+v", res.MissingUploads)
	}

	acct, err := env.accounts.LookupByEmail(context.Background(), "ana@example.com")
	if err != nil {
		t.Fatalf("account not created: %v", err)
	}
	if acct.ID != res.CoachID || acct.Role != auth.RoleCoach {
		t.Fatalf("unexpected account %+v", acct)
	}
	if _, err := env.accounts.VerifyCredentials(context.Background(), "ana@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("password not set: %v", err)
	}

	c, err := env.store.CoachByID(context.Background(), res.CoachID)
	if err != nil {
		t.Fatalf("coach: %v", err)
	}
	if c.State != StatePending || c.Active || c.Category != CategoryCycling {
		t.Fatalf("unexpected coach %+v", c)
	}
	if key := objectKey(t, storage.BucketAvatars, c.Profile.AvatarURL); !strings.HasPrefix(key, res.CoachID+"/avatar/") || !strings.HasSuffix(key, "/me.png") {
		t.Fatalf("avatar url = %q", c.Profile.AvatarURL)
	}
	p, ok := env.store.ProfileByID(res.CoachID)
	if !ok || p.Role != auth.RoleCoach {
		t.Fatalf("profile not upserted: %+v", p)
	}

	docs, _ := env.store.ListDocuments(context.Background(), res.CoachID)
	if len(docs) != len(RequiredDocuments) {
		t.Fatalf("documents = %d", len(docs))
	}
	for _, d := range docs {
		if d.Status != DocumentPending || d.Verified {
			t.Fatalf("new document should be pending: %+v", d)
		}
	}
	for _, d := range docs {
		key := objectKey(t, storage.BucketDocuments, d.FileURL)
		if key != res.CoachID+"/"+string(d.Type)+"/"+d.ID+"/"+string(d.Type)+".pdf" {
			t.Fatalf("document key = %q", key)
		}
		if _, err := env.objects.Get(storage.BucketDocuments, key); err != nil {
			t.Fatalf("document object missing: %v", err)
		}
	}
	certs, _ := env.store.ListCertifications(context.Background(), res.CoachID)
	if len(certs) != 1 || certs[0].FileURL == "" {
		t.Fatalf("certifications = %+v", certs)
	}

	stored, _ := env.store.InvitationByID(context.Background(), inv.Invitation.ID)
	if stored.State != InvitationUsed || stored.UsedBy != res.CoachID || stored.UsedAt == nil {
		t.Fatalf("invitation not marked used: %+v", stored)
	}
	if len(env.published) != 1 || env.published[0].UserID != res.CoachID {
		t.Fatalf("expected submission notification, got %+v", env.published)
	}
}

func TestSubmitOnboardingTwiceFails(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invite(t, "ana@example.com")
	if _, err := env.svc.SubmitOnboarding(context.Background(), submission(inv.Invitation.Token)); err != nil {
		t.Fatalf("first onboarding: %v", err)
	}
	_, err := env.svc.SubmitOnboarding(context.Background(), submission(inv.Invitation.Token))
	assertKind(t, err, KindInvalidInvitation)
	if StepOf(err) != StepVerifyInvitation {
		t.Fatalf("step = %s", StepOf(err))
	}
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("cause should be invalid state: %v", err)
	}
	coaches, _ := env.store.ListCoaches(context.Background(), CoachFilter{})
	if len(coaches) != 1 {
		t.Fatalf("expected one coach, got %d", len(coaches))
	}
}

func TestSubmitOnboardingExpiredInvitation(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invite(t, "ana@example.com")
	env.clock.Advance(10 * 24 * time.Hour)

	_, err := env.svc.SubmitOnboarding(context.Background(), submission(inv.Invitation.Token))
	assertKind(t, err, KindInvalidInvitation)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("cause should be expired: %v", err)
	}
	if _, err := env.accounts.LookupByEmail(context.Background(), "ana@example.com"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatal("no account should be created for an expired invitation")
	}
}

func TestSubmitOnboardingValidation(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invite(t, "ana@example.com")

	cases := map[string]func(*OnboardingSubmission){
		"short password":   func(s *OnboardingSubmission) { s.Password = "short" },
		"missing name":     func(s *OnboardingSubmission) { s.Profile.FullName = " " },
		"missing document": func(s *OnboardingSubmission) { delete(s.Documents, DocTaxCertificate) },
		"empty document": func(s *OnboardingSubmission) {
			s.Documents[DocBankStatement] = Upload{Filename: "x.pdf"}
		},
		"unknown document": func(s *OnboardingSubmission) { s.Documents["passport_photo"] = Upload{Data: []byte("x")} },
		"cert without institution": func(s *OnboardingSubmission) {
			s.Certifications[0].Institution = ""
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			sub := submission(inv.Invitation.Token)
			mutate(&sub)
			_, err := env.svc.SubmitOnboarding(context.Background(), sub)
			assertKind(t, err, KindValidation)
		})
	}
	stored, _ := env.store.InvitationByID(context.Background(), inv.Invitation.ID)
	if stored.State != InvitationPending {
		t.Fatalf("validation failures must not consume the invitation: %s", stored.State)
	}
}

func TestSubmitOnboardingReportsFailedUploads(t *testing.T) {
	env := newTestEnv(t)
	env.objects.FailBucket = storage.BucketAvatars
	inv := env.invite(t, "ana@example.com")

	res, err := env.svc.SubmitOnboarding(context.Background(), submission(inv.Invitation.Token))
	if err != nil {
		t.Fatalf("onboarding: %v", err)
	}
	if len(res.MissingUploads) != 1 || res.MissingUploads[0].Field != "avatar" {
		t.Fatalf("missing uploads = %+v", res.MissingUploads)
	}
	c, _ := env.store.CoachByID(context.Background(), res.CoachID)
	if c.Profile.AvatarURL != "" {
		t.Fatalf("avatar url should be empty, got %q", c.Profile.AvatarURL)
	}
}

func TestSubmitOnboardingDocumentUploadFailureSkipsRow(t *testing.T) {
	env := newTestEnv(t)
	env.objects.FailBucket = storage.BucketDocuments
	inv := env.invite(t, "ana@example.com")

	res, err := env.svc.SubmitOnboarding(context.Background(), submission(inv.Invitation.Token))
	if err != nil {
		t.Fatalf("onboarding: %v", err)
	}
	// four documents plus the certification file
	if len(res.MissingUploads) != len(RequiredDocuments)+1 {
		t.Fatalf("missing uploads = %+v", res.MissingUploads)
	}
	docs, _ := env.store.ListDocuments(context.Background(), res.CoachID)
	if len(docs) != 0 {
		t.Fatalf("no document rows expected, got %d", len(docs))
	}
}

func TestSubmitOnboardingStepFailureIsAtomic(t *testing.T) {
	for _, step := range []Step{StepUpsertProfile, StepInsertCoach, StepInsertDocuments, StepInsertCertifications, StepMarkInvitationUsed} {
		t.Run(string(step), func(t *testing.T) {
			env := newTestEnv(t)
			inv := env.invite(t, "ana@example.com")
			env.store.FailStep = step

			_, err := env.svc.SubmitOnboarding(context.Background(), submission(inv.Invitation.Token))
			assertKind(t, err, KindUpstream)
			if StepOf(err) != step {
				t.Fatalf("step = %s, want %s", StepOf(err), step)
			}
			if !PartialStateOf(err) {
				t.Fatal("failure after account creation should flag partial state")
			}
			coaches, _ := env.store.ListCoaches(context.Background(), CoachFilter{})
			if len(coaches) != 0 {
				t.Fatal("nothing should be committed")
			}
			stored, _ := env.store.InvitationByID(context.Background(), inv.Invitation.ID)
			if stored.State != InvitationPending {
				t.Fatalf("invitation state = %s", stored.State)
			}
			if n := env.objects.Len(); n != 0 {
				t.Fatalf("%d uploaded objects left behind", n)
			}

			// Retry reuses the identity account and succeeds.
			env.store.FailStep = ""
			res, err := env.svc.SubmitOnboarding(context.Background(), submission(inv.Invitation.Token))
			if err != nil {
				t.Fatalf("retry: %v", err)
			}
			acct, _ := env.accounts.LookupByEmail(context.Background(), "ana@example.com")
			if acct.ID != res.CoachID {
				t.Fatal("retry should reuse the existing account")
			}
		})
	}
}

func TestSubmitOnboardingExistingCoachConflicts(t *testing.T) {
	env := newTestEnv(t)
	coachID := env.onboard(t, "ana@example.com")

	// Force a second pending invitation for the same email past the account check.
	second := Invitation{
		ID:        "inv-2",
		Email:     "ana@example.com",
		Category:  CategoryFunctional,
		State:     InvitationPending,
		Token:     "tok-2",
		ExpiresAt: env.clock.Now().Add(time.Hour),
	}
	if err := env.store.CreateInvitation(context.Background(), second); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := env.svc.SubmitOnboarding(context.Background(), submission("tok-2"))
	assertKind(t, err, KindConflict)
	if StepOf(err) != StepResolveAccount {
		t.Fatalf("step = %s", StepOf(err))
	}
	c, _ := env.store.CoachByID(context.Background(), coachID)
	if c.Category != CategoryCycling {
		t.Fatal("existing coach must be untouched")
	}
}

func TestSubmitOnboardingKeepsEveryCertificationFile(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invite(t, "ana@example.com")
	sub := submission(inv.Invitation.Token)
	sub.Certifications = []CertificationInput{
		{Name: "Spinning", Institution: "Mad Dogg", File: &Upload{Filename: "certificate.pdf", Data: []byte("SPIN-CERT")}},
		{Name: "CPR", Institution: "Red Cross", File: &Upload{Filename: "certificate.pdf", Data: []byte("CPR-CERT")}},
	}

	res, err := env.svc.SubmitOnboarding(context.Background(), sub)
	if err != nil {
		t.Fatalf("onboarding: %v", err)
	}
	certs, _ := env.store.ListCertifications(context.Background(), res.CoachID)
	if len(certs) != 2 || certs[0].FileURL == certs[1].FileURL {
		t.Fatalf("certifications must not share a file: %+v", certs)
	}
	want := map[string]string{"Spinning": "SPIN-CERT", "CPR": "CPR-CERT"}
	for _, c := range certs {
		obj, err := env.objects.Get(storage.BucketDocuments, objectKey(t, storage.BucketDocuments, c.FileURL))
		if err != nil || string(obj.Data) != want[c.Name] {
			t.Fatalf("certification %s has %q (%v)", c.Name, obj.Data, err)
		}
	}
}

// racingStore lets another submission for the same invitation commit first.
type racingStore struct {
	*MemoryStore
	before func()
}

func (r *racingStore) CompleteOnboarding(ctx context.Context, rec OnboardingRecord) error {
	if hook := r.before; hook != nil {
		r.before = nil
		hook()
	}
	return r.MemoryStore.CompleteOnboarding(ctx, rec)
}

func TestLosingSubmissionKeepsWinnerFiles(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invite(t, "ana@example.com")
	st := &racingStore{MemoryStore: env.store}
	env.useStore(t, st)

	var winner OnboardingResult
	st.before = func() {
		var err error
		winner, err = env.svc.SubmitOnboarding(context.Background(), submission(inv.Invitation.Token))
		if err != nil {
			t.Errorf("winning submission: %v", err)
		}
	}
	_, err := env.svc.SubmitOnboarding(context.Background(), submission(inv.Invitation.Token))
	assertKind(t, err, KindInvalidInvitation)

	docs, _ := env.store.ListDocuments(context.Background(), winner.CoachID)
	if len(docs) != len(RequiredDocuments) {
		t.Fatalf("documents = %d", len(docs))
	}
	for _, d := range docs {
		if _, err := env.objects.Get(storage.BucketDocuments, objectKey(t, storage.BucketDocuments, d.FileURL)); err != nil {
			t.Fatalf("committed document %s lost its file: %v", d.Type, err)
		}
	}
	c, _ := env.store.CoachByID(context.Background(), winner.CoachID)
	if _, err := env.objects.Get(storage.BucketAvatars, objectKey(t, storage.BucketAvatars, c.Profile.AvatarURL)); err != nil {
		t.Fatalf("committed avatar lost: %v", err)
	}
}
