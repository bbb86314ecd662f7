package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gymstudio.app/internal/auth"
	"gymstudio.app/internal/mail"
	"gymstudio.app/internal/storage"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type stubRenderer struct {
	calls int
	err   error
}

func (r *stubRenderer) RenderContract(c Coach, k Contract, sig *Signature) ([]byte, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	out := []byte(fmt.Sprintf("%%PDF-stub %s v%d", c.ID, k.Version))
	if sig != nil {
		out = append(out, sig.ImagePNG...)
	}
	return out, nil
}

type publisherFunc func(Notification)

func (f publisherFunc) Publish(n Notification) { f(n) }

type testEnv struct {
	svc       *Service
	store     *MemoryStore
	accounts  *auth.MemoryAccounts
	objects   *storage.Memory
	mailer    *mail.Recorder
	renderer  *stubRenderer
	clock     *testClock
	published []Notification
	pubMu     sync.Mutex
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    NewMemoryStore(),
		accounts: auth.NewMemoryAccounts(),
		objects:  storage.NewMemory(),
		mailer:   &mail.Recorder{},
		renderer: &stubRenderer{},
		clock:    &testClock{t: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)},
	}
	svc, err := NewService(env.store, env.accounts, env.objects, env.mailer,
		WithClock(env.clock.Now),
		WithBaseURL("https://studio.test/"),
		WithRenderer(env.renderer),
		WithPublisher(publisherFunc(func(n Notification) {
			env.pubMu.Lock()
			env.published = append(env.published, n)
			env.pubMu.Unlock()
		})),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	env.svc = svc
	return env
}

func reviewerCtx() context.Context {
	return auth.ContextWithUser(context.Background(), "rev-1", []string{auth.RoleReviewer})
}

func adminCtx() context.Context {
	return auth.ContextWithUser(context.Background(), "adm-1", []string{auth.RoleAdmin})
}

func assertKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("expected kind %s, got %s (%v)", want, got, err)
	}
}

func (env *testEnv) invite(t *testing.T, email string) CreateInvitationResult {
	t.Helper()
	res, err := env.svc.CreateInvitation(reviewerCtx(), CreateInvitationInput{
		Email:    email,
		Category: CategoryCycling,
		IssuedBy: "rev-1",
	})
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	return res
}

func submission(token string) OnboardingSubmission {
	docs := make(map[DocumentType]Upload)
	for _, t := range RequiredDocuments {
		docs[t] = Upload{Filename: string(t) + ".pdf", ContentType: "application/pdf", Data: []byte("pdf " + string(t))}
	}
	return OnboardingSubmission{
		Token:    token,
		Password: "s3cret-pass",
		Profile: Profile{
			FullName:        "Ana Pérez",
			Phone:           "+1 555 0100",
			BirthDate:       time.Date(1990, 4, 2, 0, 0, 0, 0, time.UTC),
			YearsExperience: 5,
		},
		Bank:      BankDetails{BankName: "First", AccountHolder: "Ana Pérez", AccountNumber: "000123"},
		Emergency: EmergencyContact{Name: "Luis", Phone: "+1 555 0101"},
		Avatar:    &Upload{Filename: "me.png", ContentType: "image/png", Data: []byte("png")},
		Documents: docs,
		Certifications: []CertificationInput{{
			Name:         "Spinning Instructor",
			Institution:  "Mad Dogg",
			ObtainedDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			File:         &Upload{Filename: "cert.pdf", Data: []byte("cert")},
		}},
	}
}

// useStore rebuilds env.svc on top of st; the other collaborators are kept.
func (env *testEnv) useStore(t *testing.T, st Store) {
	t.Helper()
	svc, err := NewService(st, env.accounts, env.objects, env.mailer,
		WithClock(env.clock.Now),
		WithBaseURL("https://studio.test/"),
		WithRenderer(env.renderer),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	env.svc = svc
}

// objectKey strips the memory:// scheme and bucket from an object URL.
func objectKey(t *testing.T, bucket, url string) string {
	t.Helper()
	for _, prefix := range []string{"memory://public/" + bucket + "/", "memory://" + bucket + "/"} {
		if strings.HasPrefix(url, prefix) {
			return strings.TrimPrefix(url, prefix)
		}
	}
	t.Fatalf("url %q is not in bucket %s", url, bucket)
	return ""
}

// onboard runs an invitation through onboarding and returns the coach id.
func (env *testEnv) onboard(t *testing.T, email string) string {
	t.Helper()
	inv := env.invite(t, email)
	res, err := env.svc.SubmitOnboarding(context.Background(), submission(inv.Invitation.Token))
	if err != nil {
		t.Fatalf("onboarding: %v", err)
	}
	return res.CoachID
}

func TestNewServiceRequiresProviders(t *testing.T) {
	if _, err := NewService(nil, auth.NewMemoryAccounts(), storage.NewMemory(), &mail.Recorder{}); err == nil {
		t.Fatal("expected error without store")
	}
	_, err := NewService(NewMemoryStore(), auth.NewMemoryAccounts(), storage.NewMemory(), &mail.Recorder{}, WithDefaultExpiryDays(120))
	if err == nil {
		t.Fatal("expected error for out of range default expiry")
	}
}

func TestErrorKindsMatchSentinels(t *testing.T) {
	err := Conflictf("dup %s", "x")
	if !errors.Is(err, ErrConflict) {
		t.Fatal("conflict should match ErrConflict")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("conflict must not match ErrNotFound")
	}

	wrapped := &Error{Kind: KindInvalidInvitation, Step: StepVerifyInvitation, Err: Expiredf("invitation expired")}
	if !errors.Is(wrapped, ErrInvalidInvitation) || !errors.Is(wrapped, ErrExpired) {
		t.Fatal("wrapped error should match both kinds")
	}
	if KindOf(wrapped) != KindInvalidInvitation {
		t.Fatalf("outer kind expected, got %s", KindOf(wrapped))
	}

	tagged := AtStep(StepInsertCoach, errors.New("db down"))
	if KindOf(tagged) != KindUpstream || StepOf(tagged) != StepInsertCoach {
		t.Fatalf("unexpected tagging: %v", tagged)
	}
	if PartialStateOf(tagged) || !PartialStateOf(markPartial(tagged)) {
		t.Fatal("partial flag mismatch")
	}
}
