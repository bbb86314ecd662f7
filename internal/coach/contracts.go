package coach

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gymstudio.app/internal/ids"
	mailer "gymstudio.app/internal/mail"
	"gymstudio.app/internal/notify"
	"gymstudio.app/internal/obs"
	"gymstudio.app/internal/storage"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// ContractTerms are the terms of a new contract version.
type ContractTerms struct {
	Type               ContractType `json:"contract_type"`
	StartDate          time.Time    `json:"start_date"`
	EndDate            *time.Time   `json:"end_date,omitempty"`
	BaseSalary         *int64       `json:"base_salary,omitempty"`
	PerClassCommission *int64       `json:"per_class_commission,omitempty"`
	Notes              string       `json:"notes,omitempty"`
	Signature          *Signature   `json:"-"`
}

func (t ContractTerms) validate() error {
	if !t.Type.Valid() {
		return Validationf("invalid contract type %q", t.Type)
	}
	if t.StartDate.IsZero() {
		return Validationf("start_date is required")
	}
	if t.EndDate != nil && t.EndDate.Before(t.StartDate) {
		return Validationf("end_date before start_date")
	}
	if t.BaseSalary != nil && *t.BaseSalary < 0 {
		return Validationf("base_salary must not be negative")
	}
	if t.PerClassCommission != nil && *t.PerClassCommission < 0 {
		return Validationf("per_class_commission must not be negative")
	}
	if sig := t.Signature; sig != nil {
		if !bytes.HasPrefix(sig.ImagePNG, pngMagic) {
			return Validationf("signature must be a PNG image")
		}
	}
	return nil
}

// ContractKey is the object path of a rendered version.
func ContractKey(coachID string, at time.Time, version int) string {
	return fmt.Sprintf("%s/%s-v%d.pdf", coachID, at.UTC().Format("20060102T150405Z"), version)
}

// IssueOrRenew creates the next contract version for a coach and makes it current.
// Versions are never edited: a renewal supersedes the prior version.
func (s *Service) IssueOrRenew(ctx context.Context, coachID string, terms ContractTerms, issuedBy string) (Contract, error) {
	if err := requireReviewer(ctx); err != nil {
		return Contract{}, err
	}
	return s.issue(ctx, coachID, terms, issuedBy)
}

func (s *Service) issue(ctx context.Context, coachID string, terms ContractTerms, issuedBy string) (k Contract, err error) {
	ctx, span := obs.StartSpan(ctx, "coach.contract", map[string]string{"coach_id": coachID})
	defer func() { obs.EndSpan(span, err) }()

	if s.renderer == nil {
		return Contract{}, Upstream(StepRenderContract, "contract renderer not configured", nil)
	}
	if err := terms.validate(); err != nil {
		return Contract{}, err
	}
	c, err := s.store.CoachByID(ctx, coachID)
	if err != nil {
		return Contract{}, err
	}
	prior, err := s.store.CurrentContract(ctx, coachID)
	hasPrior := err == nil
	if err != nil && KindOf(err) != KindNotFound {
		return Contract{}, err
	}

	now := s.now()
	k = Contract{
		ID:                 ids.New(),
		CoachID:            coachID,
		Type:               terms.Type,
		StartDate:          terms.StartDate,
		EndDate:            terms.EndDate,
		State:              ContractActive,
		Current:            true,
		Version:            1,
		BaseSalary:         terms.BaseSalary,
		PerClassCommission: terms.PerClassCommission,
		Notes:              strings.TrimSpace(terms.Notes),
		IssuedBy:           issuedBy,
		CreatedAt:          now,
	}
	priorID := ""
	if hasPrior {
		k.Version = prior.Version + 1
		k.Supersedes = prior.ID
		priorID = prior.ID
	}
	if sig := terms.Signature; sig != nil {
		signedAt := sig.SignedAt
		if signedAt.IsZero() {
			signedAt = now
		}
		sig.SignedAt = signedAt
		k.Signed = true
		k.SignedAt = &signedAt
		k.SignatureIP = sig.IP
	}

	pdf, err := s.renderer.RenderContract(c, k, terms.Signature)
	if err != nil {
		return Contract{}, Upstream(StepRenderContract, "contract rendering failed", err)
	}
	sum := sha256.Sum256(pdf)
	k.DocumentSHA256 = hex.EncodeToString(sum[:])

	key := ContractKey(coachID, now, k.Version)
	url, err := s.objects.Upload(ctx, storage.BucketContracts, key, pdf, "application/pdf")
	if err != nil {
		obs.RecordUploadFailure(storage.BucketContracts)
		return Contract{}, Upstream(StepUploadContract, "contract upload failed", err)
	}
	k.DocumentURL = url

	if err := s.store.InsertContractVersion(ctx, priorID, k); err != nil {
		if derr := s.objects.Delete(context.WithoutCancel(ctx), storage.BucketContracts, key); derr != nil {
			obs.Warn(ctx, "orphaned contract document not removed", map[string]any{"key": key, "error": derr.Error()})
			return Contract{}, markPartial(AtStep(StepInsertContract, err))
		}
		return Contract{}, AtStep(StepInsertContract, err)
	}

	obs.RecordContractVersion(k.Signed)
	obs.Info(ctx, "contract version issued", map[string]any{"coach_id": coachID, "contract_id": k.ID, "version": k.Version, "signed": k.Signed})
	s.notifier.Notify(ctx, Notification{
		UserID:    coachID,
		Type:      notify.TypeContractIssued,
		Title:     fmt.Sprintf("Contract version %d", k.Version),
		Message:   "A new version of your contract is available.",
		CreatedAt: now,
		Metadata:  map[string]string{"contract_id": k.ID},
	})
	s.sendMail(ctx, mailer.TplContract, c.Email, mailer.CoachData{
		Name:    c.Profile.FullName,
		URL:     s.url("/coach/contracts"),
		Version: k.Version,
		Signed:  k.Signed,
	})
	return k, nil
}

// SignContract records the coach's signature on the current terms as a new version.
func (s *Service) SignContract(ctx context.Context, coachID string, sig Signature) (Contract, error) {
	cur, err := s.store.CurrentContract(ctx, coachID)
	if err != nil {
		return Contract{}, err
	}
	if cur.Signed {
		return Contract{}, Conflictf("current contract is already signed")
	}
	return s.issue(ctx, coachID, ContractTerms{
		Type:               cur.Type,
		StartDate:          cur.StartDate,
		EndDate:            cur.EndDate,
		BaseSalary:         cur.BaseSalary,
		PerClassCommission: cur.PerClassCommission,
		Notes:              cur.Notes,
		Signature:          &sig,
	}, coachID)
}

func (s *Service) CurrentContract(ctx context.Context, coachID string) (Contract, error) {
	return s.store.CurrentContract(ctx, coachID)
}

// Contracts lists every version, newest first.
func (s *Service) Contracts(ctx context.Context, coachID string) ([]Contract, error) {
	if _, err := s.store.CoachByID(ctx, coachID); err != nil {
		return nil, err
	}
	return s.store.ListContracts(ctx, coachID)
}
