package coach

import (
	"context"
	"time"
)

// InvitationFilter narrows ListInvitations. Zero values match everything.
type InvitationFilter struct {
	State InvitationState
	Email string
	Limit int
}

// CoachFilter narrows ListCoaches.
type CoachFilter struct {
	State    State
	Category Category
	Limit    int
}

// CoachTransition is applied by TransitionCoach when the coach is still in the expected state.
type CoachTransition struct {
	To              State
	Active          bool
	At              time.Time
	By              string
	RejectionReason string
	Corrections     []string
}

// ProfilePatch updates the coach's own fields. Nil leaves a field untouched.
type ProfilePatch struct {
	FullName        *string           `json:"full_name,omitempty"`
	Phone           *string           `json:"phone,omitempty"`
	Address         *string           `json:"address,omitempty"`
	Bio             *string           `json:"bio,omitempty"`
	Specialties     []string          `json:"specialties,omitempty"`
	YearsExperience *int              `json:"years_experience,omitempty"`
	Bank            *BankDetails      `json:"bank,omitempty"`
	Emergency       *EmergencyContact `json:"emergency_contact,omitempty"`
}

// Apply returns p applied to c.
func (p ProfilePatch) Apply(c Coach) Coach {
	if p.FullName != nil {
		c.Profile.FullName = *p.FullName
	}
	if p.Phone != nil {
		c.Profile.Phone = *p.Phone
	}
	if p.Address != nil {
		c.Profile.Address = *p.Address
	}
	if p.Bio != nil {
		c.Profile.Bio = *p.Bio
	}
	if p.Specialties != nil {
		c.Profile.Specialties = append([]string(nil), p.Specialties...)
	}
	if p.YearsExperience != nil {
		c.Profile.YearsExperience = *p.YearsExperience
	}
	if p.Bank != nil {
		c.Bank = *p.Bank
	}
	if p.Emergency != nil {
		c.Emergency = *p.Emergency
	}
	return c
}

// DocumentReview is the new review state of one document.
type DocumentReview struct {
	Status     DocumentStatus
	VerifiedBy string
	VerifiedAt *time.Time
	ReviewNote string
	ReviewedBy string
}

// OnboardingRecord is everything onboarding persists. CompleteOnboarding writes it atomically
// and fails with a step-tagged error without writing anything.
type OnboardingRecord struct {
	InvitationID   string
	Profile        ProfileRecord
	Coach          Coach
	Documents      []Document
	Certifications []Certification
	UsedAt         time.Time
}

// Store is the persistence boundary of the coach workflows.
//
// Conditional writes (ExpireInvitation, CancelInvitation, TransitionCoach, UpdateCoachProfile,
// InsertContractVersion) are compare-and-set operations: they fail with ErrInvalidState or
// ErrConflict when the row is no longer in the expected state.
type Store interface {
	CreateInvitation(ctx context.Context, inv Invitation) error
	InvitationByID(ctx context.Context, id string) (Invitation, error)
	InvitationByToken(ctx context.Context, token string) (Invitation, error)
	HasPendingInvitation(ctx context.Context, email string) (bool, error)
	ExpireInvitation(ctx context.Context, id string, at time.Time) (bool, error)
	CancelInvitation(ctx context.Context, id string, at time.Time) (Invitation, error)
	ListInvitations(ctx context.Context, f InvitationFilter) ([]Invitation, error)

	CompleteOnboarding(ctx context.Context, rec OnboardingRecord) error
	CoachByID(ctx context.Context, id string) (Coach, error)
	ListCoaches(ctx context.Context, f CoachFilter) ([]Coach, error)
	TransitionCoach(ctx context.Context, id string, from State, t CoachTransition) (Coach, error)
	UpdateCoachProfile(ctx context.Context, id string, patch ProfilePatch, at time.Time) (Coach, error)
	DeleteCoach(ctx context.Context, id string) error

	DocumentByID(ctx context.Context, id string) (Document, error)
	ListDocuments(ctx context.Context, coachID string) ([]Document, error)
	UpdateDocumentReview(ctx context.Context, id string, r DocumentReview) (Document, error)
	ReplaceDocument(ctx context.Context, doc Document) (Document, error)
	ListCertifications(ctx context.Context, coachID string) ([]Certification, error)
	UpdateCertificationReview(ctx context.Context, id string, verified bool, by string, at *time.Time) (Certification, error)

	CurrentContract(ctx context.Context, coachID string) (Contract, error)
	ListContracts(ctx context.Context, coachID string) ([]Contract, error)
	InsertContractVersion(ctx context.Context, priorID string, next Contract) error

	InsertNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
}
