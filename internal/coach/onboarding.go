package coach

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gymstudio.app/internal/auth"
	"gymstudio.app/internal/ids"
	"gymstudio.app/internal/notify"
	"gymstudio.app/internal/obs"
	"gymstudio.app/internal/storage"
)

// CertificationInput is one certification entry of the onboarding form.
type CertificationInput struct {
	Name         string
	Institution  string
	ObtainedDate time.Time
	ExpiryDate   *time.Time
	File         *Upload
}

// OnboardingSubmission is the invitee's completed form.
type OnboardingSubmission struct {
	Token          string
	Password       string
	Profile        Profile
	Bank           BankDetails
	Emergency      EmergencyContact
	Avatar         *Upload
	Documents      map[DocumentType]Upload
	Certifications []CertificationInput
}

// UploadFailure is a file that could not be stored. Its record is not created.
type UploadFailure struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type OnboardingResult struct {
	CoachID        string          `json:"coach_id"`
	InvitationID   string          `json:"invitation_id"`
	MissingUploads []UploadFailure `json:"missing_uploads,omitempty"`
}

// SubmitOnboarding turns a pending invitation into a pending coach.
//
// The invitation is checked first and marked used last. Database writes happen in one
// transaction; a failed step is reported on the error and nothing is committed. Files uploaded
// by the failed submission are deleted; the identity account survives and a retry reuses it.
func (s *Service) SubmitOnboarding(ctx context.Context, sub OnboardingSubmission) (res OnboardingResult, err error) {
	ctx, span := obs.StartSpan(ctx, "coach.onboarding", nil)
	defer func() {
		obs.EndSpan(span, err)
		if err != nil {
			obs.RecordOnboarding("error")
			if step := StepOf(err); step != "" {
				obs.RecordOnboardingStepFailure(string(step))
			}
			return
		}
		obs.RecordOnboarding("ok")
	}()

	inv, err := s.redeemable(ctx, sub.Token)
	if err != nil {
		return OnboardingResult{}, &Error{Kind: KindInvalidInvitation, Step: StepVerifyInvitation, Msg: "invitation cannot be used", Err: err}
	}
	if err := validateSubmission(sub); err != nil {
		return OnboardingResult{}, err
	}

	acct, err := s.resolveAccount(ctx, inv, sub)
	if err != nil {
		return OnboardingResult{}, err
	}
	if _, err := s.store.CoachByID(ctx, acct.ID); err == nil {
		return OnboardingResult{}, &Error{Kind: KindConflict, Step: StepResolveAccount, Msg: "a coach record already exists for this account"}
	} else if KindOf(err) != KindNotFound {
		return OnboardingResult{}, markPartial(AtStep(StepResolveAccount, err))
	}

	now := s.now()
	up := uploader{s: s, ctx: ctx, owner: acct.ID}

	profile := sub.Profile
	profile.FullName = strings.TrimSpace(profile.FullName)
	if sub.Avatar != nil && len(sub.Avatar.Data) > 0 {
		if url, ok := up.put("avatar", storage.BucketAvatars, "avatar", ids.New(), *sub.Avatar); ok {
			profile.AvatarURL = url
		}
	}

	rec := OnboardingRecord{
		InvitationID: inv.ID,
		UsedAt:       now,
		Profile: ProfileRecord{
			ID:        acct.ID,
			Email:     inv.Email,
			FullName:  profile.FullName,
			Role:      auth.RoleCoach,
			AvatarURL: profile.AvatarURL,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Coach: Coach{
			ID:        acct.ID,
			Email:     inv.Email,
			State:     StatePending,
			Active:    false,
			Category:  inv.Category,
			Profile:   profile,
			Bank:      sub.Bank,
			Emergency: sub.Emergency,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	types := make([]DocumentType, 0, len(sub.Documents))
	for t := range sub.Documents {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		docID := ids.New()
		url, ok := up.put(string(t), storage.BucketDocuments, string(t), docID, sub.Documents[t])
		if !ok {
			continue
		}
		rec.Documents = append(rec.Documents, Document{
			ID:         docID,
			CoachID:    acct.ID,
			Type:       t,
			FileURL:    url,
			Status:     DocumentPending,
			UploadedAt: now,
		})
	}
	for i, ci := range sub.Certifications {
		cert := Certification{
			ID:           ids.New(),
			CoachID:      acct.ID,
			Name:         strings.TrimSpace(ci.Name),
			Institution:  strings.TrimSpace(ci.Institution),
			ObtainedDate: ci.ObtainedDate,
			ExpiryDate:   ci.ExpiryDate,
		}
		if ci.File != nil && len(ci.File.Data) > 0 {
			field := fmt.Sprintf("certifications[%d]", i)
			url, ok := up.put(field, storage.BucketDocuments, "certifications", cert.ID, *ci.File)
			if !ok {
				continue
			}
			cert.FileURL = url
		}
		rec.Certifications = append(rec.Certifications, cert)
	}

	if err := s.store.CompleteOnboarding(ctx, rec); err != nil {
		if StepOf(err) == "" {
			err = AtStep(StepInsertCoach, err)
		}
		obs.Error(ctx, "onboarding failed", err, map[string]any{"invitation_id": inv.ID, "step": StepOf(err)})
		up.discard()
		if KindOf(err) == KindUpstream {
			obs.CaptureError(ctx, err, map[string]string{"component": "onboarding", "step": string(StepOf(err))})
		}
		return OnboardingResult{}, markPartial(err)
	}

	s.notifier.Notify(ctx, Notification{
		UserID:    acct.ID,
		Type:      notify.TypeOnboardingSubmitted,
		Title:     "Application received",
		Message:   "Your application is under review.",
		CreatedAt: now,
	})
	obs.Info(ctx, "onboarding completed", map[string]any{
		"invitation_id":   inv.ID,
		"coach_id":        acct.ID,
		"missing_uploads": len(up.failures),
	})
	return OnboardingResult{CoachID: acct.ID, InvitationID: inv.ID, MissingUploads: up.failures}, nil
}

func (s *Service) resolveAccount(ctx context.Context, inv Invitation, sub OnboardingSubmission) (auth.Account, error) {
	ctx, span := obs.StartSpan(ctx, "coach.onboarding.resolve_account", nil)
	acct, err := s.accounts.LookupByEmail(ctx, inv.Email)
	if errors.Is(err, auth.ErrNotFound) {
		meta := auth.AccountMetadata{Role: auth.RoleCoach, FullName: strings.TrimSpace(sub.Profile.FullName)}
		acct, err = s.accounts.CreateAccount(ctx, inv.Email, sub.Password, meta)
		if errors.Is(err, auth.ErrAlreadyExists) {
			acct, err = s.accounts.LookupByEmail(ctx, inv.Email)
		}
	}
	obs.EndSpan(span, err)
	if err != nil {
		return auth.Account{}, Upstream(StepResolveAccount, "identity provider failed", err)
	}
	return acct, nil
}

type uploader struct {
	s        *Service
	ctx      context.Context
	owner    string
	failures []UploadFailure
	// bucket -> keys written so far
	written map[string][]string
}

func (u *uploader) put(field, bucket, kind, version string, f Upload) (string, bool) {
	key, err := storage.ObjectKey(u.owner, kind, version, f.Filename)
	if err == nil {
		var url string
		url, err = u.s.objects.Upload(u.ctx, bucket, key, f.Data, f.ContentType)
		if err == nil {
			if u.written == nil {
				u.written = make(map[string][]string)
			}
			u.written[bucket] = append(u.written[bucket], key)
			return url, true
		}
	}
	obs.RecordUploadFailure(bucket)
	obs.Warn(u.ctx, "upload failed", map[string]any{"field": field, "bucket": bucket, "error": err.Error()})
	u.failures = append(u.failures, UploadFailure{Field: field, Reason: err.Error()})
	return "", false
}

// discard removes the objects uploaded for a submission whose rows were not written.
// Failures are only logged.
func (u *uploader) discard() {
	for bucket, keys := range u.written {
		if err := u.s.objects.Delete(context.WithoutCancel(u.ctx), bucket, keys...); err != nil {
			obs.Warn(u.ctx, "orphaned uploads not removed", map[string]any{"bucket": bucket, "keys": keys, "error": err.Error()})
		}
	}
}

func validateSubmission(sub OnboardingSubmission) error {
	if err := auth.ValidatePassword(sub.Password); err != nil {
		return Validationf("password must be at least %d characters", auth.MinPasswordLength)
	}
	p := sub.Profile
	switch {
	case strings.TrimSpace(p.FullName) == "":
		return Validationf("full_name is required")
	case strings.TrimSpace(p.Phone) == "":
		return Validationf("phone is required")
	case p.BirthDate.IsZero():
		return Validationf("birth_date is required")
	case p.YearsExperience < 0:
		return Validationf("years_experience must not be negative")
	case strings.TrimSpace(sub.Bank.AccountHolder) == "" || strings.TrimSpace(sub.Bank.AccountNumber) == "":
		return Validationf("bank account holder and number are required")
	case strings.TrimSpace(sub.Emergency.Name) == "" || strings.TrimSpace(sub.Emergency.Phone) == "":
		return Validationf("emergency contact name and phone are required")
	}
	for t := range sub.Documents {
		if !t.Valid() {
			return Validationf("unknown document type %q", t)
		}
	}
	for _, t := range RequiredDocuments {
		if d, ok := sub.Documents[t]; !ok || len(d.Data) == 0 {
			return Validationf("document %s is required", t)
		}
	}
	for i, c := range sub.Certifications {
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Institution) == "" {
			return Validationf("certifications[%d]: name and institution are required", i)
		}
		if c.ObtainedDate.IsZero() {
			return Validationf("certifications[%d]: obtained_date is required", i)
		}
		if c.ExpiryDate != nil && c.ExpiryDate.Before(c.ObtainedDate) {
			return Validationf("certifications[%d]: expiry_date before obtained_date", i)
		}
	}
	return nil
}
