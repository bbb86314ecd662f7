package coach

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"gymstudio.app/internal/auth"
	"gymstudio.app/internal/storage"
)

var samplePNG = append([]byte("\x89PNG\r\n\x1a\n"), []byte("fake-image")...)

func salariedTerms(env *testEnv) ContractTerms {
	salary := int64(250000)
	return ContractTerms{
		Type:       ContractSalaried,
		StartDate:  env.clock.Now().Truncate(24 * time.Hour),
		BaseSalary: &salary,
	}
}

func TestIssueFirstContract(t *testing.T) {
	env := newTestEnv(t)
	id := env.onboard(t, "ana@example.com")

	k, err := env.svc.IssueOrRenew(reviewerCtx(), id, salariedTerms(env), "rev-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if k.Version != 1 || !k.Current || k.State != ContractActive || k.Supersedes != "" || k.Signed {
		t.Fatalf("unexpected contract %+v", k)
	}
	key := ContractKey(id, env.clock.Now(), 1)
	if key != id+"/20260510T090000Z-v1.pdf" {
		t.Fatalf("key = %q", key)
	}
	obj, err := env.objects.Get(storage.BucketContracts, key)
	if err != nil {
		t.Fatalf("pdf not stored: %v", err)
	}
	sum := sha256.Sum256(obj.Data)
	if k.DocumentSHA256 != hex.EncodeToString(sum[:]) || obj.ContentType != "application/pdf" {
		t.Fatalf("hash or content type mismatch")
	}
}

func TestRenewSupersedesPrior(t *testing.T) {
	env := newTestEnv(t)
	id := env.onboard(t, "ana@example.com")

	v1, err := env.svc.IssueOrRenew(reviewerCtx(), id, salariedTerms(env), "rev-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	env.clock.Advance(time.Hour)
	commission := int64(3500)
	terms := salariedTerms(env)
	terms.Type = ContractMixed
	terms.PerClassCommission = &commission
	v2, err := env.svc.IssueOrRenew(reviewerCtx(), id, terms, "rev-1")
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if v2.Version != 2 || v2.Supersedes != v1.ID {
		t.Fatalf("unexpected renewal %+v", v2)
	}

	list, err := env.svc.Contracts(context.Background(), id)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Version != 2 {
		t.Fatalf("history should be newest first: %+v", list)
	}
	current := 0
	for _, k := range list {
		if k.Current {
			current++
		}
		if k.ID == v1.ID && (k.Current || k.State != ContractSuperseded) {
			t.Fatalf("prior version not superseded: %+v", k)
		}
	}
	if current != 1 {
		t.Fatalf("expected exactly one current contract, got %d", current)
	}
	cur, _ := env.svc.CurrentContract(context.Background(), id)
	if cur.ID != v2.ID {
		t.Fatal("current contract should be v2")
	}
}

func TestIssueValidation(t *testing.T) {
	env := newTestEnv(t)
	id := env.onboard(t, "ana@example.com")
	neg := int64(-1)
	before := env.clock.Now().Add(-48 * time.Hour)

	cases := map[string]func(*ContractTerms){
		"unknown type":     func(k *ContractTerms) { k.Type = "hourly" },
		"no start":         func(k *ContractTerms) { k.StartDate = time.Time{} },
		"end before start": func(k *ContractTerms) { k.EndDate = &before },
		"negative salary":  func(k *ContractTerms) { k.BaseSalary = &neg },
		"negative fee":     func(k *ContractTerms) { k.PerClassCommission = &neg },
		"signature not png": func(k *ContractTerms) {
			k.Signature = &Signature{ImagePNG: []byte("GIF89a")}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			terms := salariedTerms(env)
			mutate(&terms)
			_, err := env.svc.IssueOrRenew(reviewerCtx(), id, terms, "rev-1")
			assertKind(t, err, KindValidation)
		})
	}
	if env.renderer.calls != 0 {
		t.Fatal("renderer must not run for invalid terms")
	}

	_, err := env.svc.IssueOrRenew(reviewerCtx(), "nobody", salariedTerms(env), "rev-1")
	assertKind(t, err, KindNotFound)
}

func TestIssueFailuresLeaveNoVersion(t *testing.T) {
	env := newTestEnv(t)
	id := env.onboard(t, "ana@example.com")

	env.renderer.err = errors.New("font missing")
	_, err := env.svc.IssueOrRenew(reviewerCtx(), id, salariedTerms(env), "rev-1")
	assertKind(t, err, KindUpstream)
	if StepOf(err) != StepRenderContract {
		t.Fatalf("step = %s", StepOf(err))
	}

	env.renderer.err = nil
	env.objects.FailBucket = storage.BucketContracts
	_, err = env.svc.IssueOrRenew(reviewerCtx(), id, salariedTerms(env), "rev-1")
	assertKind(t, err, KindUpstream)
	if StepOf(err) != StepUploadContract {
		t.Fatalf("step = %s", StepOf(err))
	}

	env.objects.FailBucket = ""
	env.store.FailStep = StepInsertContract
	before := env.objects.Len()
	_, err = env.svc.IssueOrRenew(reviewerCtx(), id, salariedTerms(env), "rev-1")
	assertKind(t, err, KindUpstream)
	if StepOf(err) != StepInsertContract || PartialStateOf(err) {
		t.Fatalf("step = %s partial = %v", StepOf(err), PartialStateOf(err))
	}
	if env.objects.Len() != before {
		t.Fatal("contract document should be removed when the row is not written")
	}

	list, _ := env.store.ListContracts(context.Background(), id)
	if len(list) != 0 {
		t.Fatalf("no version expected, got %d", len(list))
	}
}

func TestIssueRequiresReviewer(t *testing.T) {
	env := newTestEnv(t)
	id := env.onboard(t, "ana@example.com")

	coachCtx := auth.ContextWithUser(context.Background(), id, []string{auth.RoleCoach})
	_, err := env.svc.IssueOrRenew(coachCtx, id, salariedTerms(env), id)
	assertKind(t, err, KindForbidden)
	_, err = env.svc.IssueOrRenew(context.Background(), id, salariedTerms(env), "")
	assertKind(t, err, KindForbidden)

	list, _ := env.store.ListContracts(context.Background(), id)
	if len(list) != 0 {
		t.Fatalf("no version expected, got %d", len(list))
	}
}

func TestInsertContractVersionRejectsStalePrior(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	v1 := Contract{ID: "k1", CoachID: "c1", Version: 1, Current: true, State: ContractActive}
	if err := st.InsertContractVersion(ctx, "", v1); err != nil {
		t.Fatalf("v1: %v", err)
	}
	if err := st.InsertContractVersion(ctx, "", Contract{ID: "k1b", CoachID: "c1", Version: 2, Current: true}); KindOf(err) != KindConflict {
		t.Fatalf("expected conflict without prior, got %v", err)
	}
	if err := st.InsertContractVersion(ctx, "k1", Contract{ID: "k2", CoachID: "c1", Version: 2, Current: true}); err != nil {
		t.Fatalf("v2: %v", err)
	}
	// A concurrent renewal that read v1 as current loses.
	if err := st.InsertContractVersion(ctx, "k1", Contract{ID: "k2b", CoachID: "c1", Version: 3, Current: true}); KindOf(err) != KindConflict {
		t.Fatalf("expected conflict for stale prior, got %v", err)
	}
}

func TestSignContract(t *testing.T) {
	env := newTestEnv(t)
	id := env.onboard(t, "ana@example.com")

	_, err := env.svc.SignContract(context.Background(), id, Signature{ImagePNG: samplePNG})
	assertKind(t, err, KindNotFound)

	v1, err := env.svc.IssueOrRenew(reviewerCtx(), id, salariedTerms(env), "rev-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	env.clock.Advance(time.Minute)
	signed, err := env.svc.SignContract(context.Background(), id, Signature{ImagePNG: samplePNG, IP: "203.0.113.7"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !signed.Signed || signed.Version != 2 || signed.Supersedes != v1.ID || signed.SignatureIP != "203.0.113.7" {
		t.Fatalf("unexpected signed contract %+v", signed)
	}
	if signed.SignedAt == nil || !signed.SignedAt.Equal(env.clock.Now()) {
		t.Fatalf("signed_at = %v", signed.SignedAt)
	}
	if *signed.BaseSalary != *v1.BaseSalary || signed.Type != v1.Type || signed.IssuedBy != id {
		t.Fatal("signing must keep the current terms")
	}

	_, err = env.svc.SignContract(context.Background(), id, Signature{ImagePNG: samplePNG})
	assertKind(t, err, KindConflict)
}
