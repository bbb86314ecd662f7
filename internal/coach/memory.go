package coach

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

var errInjected = errors.New("injected failure")

// MemoryStore keeps workflow state in process. Used by tests and local runs without a database.
// FailStep makes CompleteOnboarding or InsertContractVersion fail at that step before anything is written.
type MemoryStore struct {
	mu            sync.RWMutex
	invitations   map[string]Invitation
	byToken       map[string]string
	profiles      map[string]ProfileRecord
	coaches       map[string]Coach
	documents     map[string]Document
	certs         map[string]Certification
	contracts     map[string][]Contract
	notifications map[string]Notification

	FailStep Step
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		invitations:   make(map[string]Invitation),
		byToken:       make(map[string]string),
		profiles:      make(map[string]ProfileRecord),
		coaches:       make(map[string]Coach),
		documents:     make(map[string]Document),
		certs:         make(map[string]Certification),
		contracts:     make(map[string][]Contract),
		notifications: make(map[string]Notification),
	}
}

func (m *MemoryStore) CreateInvitation(ctx context.Context, inv Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.invitations {
		if existing.State == InvitationPending && strings.EqualFold(existing.Email, inv.Email) {
			return Conflictf("a pending invitation already exists for %s", inv.Email)
		}
	}
	if _, ok := m.byToken[inv.Token]; ok {
		return Conflictf("invitation token collision")
	}
	m.invitations[inv.ID] = inv
	m.byToken[inv.Token] = inv.ID
	return nil
}

func (m *MemoryStore) InvitationByID(ctx context.Context, id string) (Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invitations[id]
	if !ok {
		return Invitation{}, NotFoundf("invitation not found")
	}
	return inv, nil
}

func (m *MemoryStore) InvitationByToken(ctx context.Context, token string) (Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byToken[token]
	if !ok {
		return Invitation{}, NotFoundf("invitation not found")
	}
	return m.invitations[id], nil
}

func (m *MemoryStore) HasPendingInvitation(ctx context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, inv := range m.invitations {
		if inv.State == InvitationPending && strings.EqualFold(inv.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ExpireInvitation(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[id]
	if !ok {
		return false, NotFoundf("invitation not found")
	}
	if inv.State != InvitationPending {
		return false, nil
	}
	inv.State = InvitationExpired
	inv.UpdatedAt = at
	m.invitations[id] = inv
	return true, nil
}

func (m *MemoryStore) CancelInvitation(ctx context.Context, id string, at time.Time) (Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[id]
	if !ok {
		return Invitation{}, NotFoundf("invitation not found")
	}
	if inv.State != InvitationPending {
		return Invitation{}, InvalidStatef("invitation is %s", inv.State)
	}
	inv.State = InvitationCancelled
	inv.UpdatedAt = at
	m.invitations[id] = inv
	return inv, nil
}

func (m *MemoryStore) ListInvitations(ctx context.Context, f InvitationFilter) ([]Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Invitation, 0, len(m.invitations))
	for _, inv := range m.invitations {
		if f.State != "" && inv.State != f.State {
			continue
		}
		if f.Email != "" && !strings.EqualFold(inv.Email, f.Email) {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) CompleteOnboarding(ctx context.Context, rec OnboardingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invitations[rec.InvitationID]
	if !ok {
		return &Error{Kind: KindInvalidInvitation, Step: StepMarkInvitationUsed, Msg: "invitation not found"}
	}
	if inv.State != InvitationPending {
		return &Error{Kind: KindInvalidInvitation, Step: StepMarkInvitationUsed, Msg: "invitation is " + string(inv.State)}
	}
	if err := m.inject(StepUpsertProfile); err != nil {
		return err
	}
	if _, exists := m.coaches[rec.Coach.ID]; exists {
		return &Error{Kind: KindConflict, Step: StepInsertCoach, Msg: "a coach record already exists for this account"}
	}
	for _, step := range []Step{StepInsertCoach, StepInsertDocuments, StepInsertCertifications, StepMarkInvitationUsed} {
		if err := m.inject(step); err != nil {
			return err
		}
	}

	if prev, ok := m.profiles[rec.Profile.ID]; ok {
		rec.Profile.CreatedAt = prev.CreatedAt
	}
	m.profiles[rec.Profile.ID] = rec.Profile
	m.coaches[rec.Coach.ID] = cloneCoach(rec.Coach)
	for _, d := range rec.Documents {
		m.documents[d.ID] = d
	}
	for _, c := range rec.Certifications {
		m.certs[c.ID] = c
	}
	used := rec.UsedAt
	inv.State = InvitationUsed
	inv.UsedAt = &used
	inv.UsedBy = rec.Coach.ID
	inv.UpdatedAt = used
	m.invitations[inv.ID] = inv
	return nil
}

func (m *MemoryStore) inject(step Step) error {
	if m.FailStep == step {
		return Upstream(step, "write failed", errInjected)
	}
	return nil
}

// ProfileByID returns the identity profile record. Not part of Store.
func (m *MemoryStore) ProfileByID(id string) (ProfileRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	return p, ok
}

func (m *MemoryStore) CoachByID(ctx context.Context, id string) (Coach, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.coaches[id]
	if !ok {
		return Coach{}, NotFoundf("coach not found")
	}
	return cloneCoach(c), nil
}

func (m *MemoryStore) ListCoaches(ctx context.Context, f CoachFilter) ([]Coach, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Coach, 0, len(m.coaches))
	for _, c := range m.coaches {
		if f.State != "" && c.State != f.State {
			continue
		}
		if f.Category != "" && c.Category != f.Category {
			continue
		}
		out = append(out, cloneCoach(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) TransitionCoach(ctx context.Context, id string, from State, t CoachTransition) (Coach, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coaches[id]
	if !ok {
		return Coach{}, NotFoundf("coach not found")
	}
	if c.State != from {
		return Coach{}, InvalidStatef("coach is %s", c.State)
	}
	c = applyTransition(c, t)
	m.coaches[id] = c
	return cloneCoach(c), nil
}

func applyTransition(c Coach, t CoachTransition) Coach {
	at := t.At
	c.State = t.To
	c.Active = t.Active
	c.UpdatedAt = at
	switch t.To {
	case StateActive:
		c.ApprovedAt = &at
		c.ApprovedBy = t.By
	case StateRejected:
		c.RejectedAt = &at
		c.RejectedBy = t.By
		c.RejectionReason = t.RejectionReason
	case StatePending:
		c.CorrectionsRequestedAt = &at
		c.Corrections = append([]string(nil), t.Corrections...)
	}
	return c
}

func (m *MemoryStore) UpdateCoachProfile(ctx context.Context, id string, patch ProfilePatch, at time.Time) (Coach, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coaches[id]
	if !ok {
		return Coach{}, NotFoundf("coach not found")
	}
	if c.State != StatePending {
		return Coach{}, InvalidStatef("coach is %s", c.State)
	}
	c = patch.Apply(cloneCoach(c))
	c.UpdatedAt = at
	m.coaches[id] = c
	return cloneCoach(c), nil
}

func (m *MemoryStore) DeleteCoach(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.coaches[id]; !ok {
		return NotFoundf("coach not found")
	}
	delete(m.coaches, id)
	delete(m.profiles, id)
	delete(m.contracts, id)
	for k, d := range m.documents {
		if d.CoachID == id {
			delete(m.documents, k)
		}
	}
	for k, c := range m.certs {
		if c.CoachID == id {
			delete(m.certs, k)
		}
	}
	for k, n := range m.notifications {
		if n.UserID == id {
			delete(m.notifications, k)
		}
	}
	return nil
}

func (m *MemoryStore) DocumentByID(ctx context.Context, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	if !ok {
		return Document{}, NotFoundf("document not found")
	}
	return d, nil
}

func (m *MemoryStore) ListDocuments(ctx context.Context, coachID string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Document
	for _, d := range m.documents {
		if d.CoachID == coachID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (m *MemoryStore) UpdateDocumentReview(ctx context.Context, id string, r DocumentReview) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return Document{}, NotFoundf("document not found")
	}
	d.Status = r.Status
	d.Verified = r.Status == DocumentVerified
	d.VerifiedBy = r.VerifiedBy
	d.VerifiedAt = r.VerifiedAt
	d.ReviewNote = r.ReviewNote
	d.ReviewedBy = r.ReviewedBy
	m.documents[id] = d
	return d, nil
}

func (m *MemoryStore) ReplaceDocument(ctx context.Context, doc Document) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, d := range m.documents {
		if d.CoachID == doc.CoachID && d.Type == doc.Type {
			doc.ID = id
			break
		}
	}
	m.documents[doc.ID] = doc
	return doc, nil
}

func (m *MemoryStore) ListCertifications(ctx context.Context, coachID string) ([]Certification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Certification
	for _, c := range m.certs {
		if c.CoachID == coachID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpdateCertificationReview(ctx context.Context, id string, verified bool, by string, at *time.Time) (Certification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.certs[id]
	if !ok {
		return Certification{}, NotFoundf("certification not found")
	}
	c.Verified = verified
	c.VerifiedBy = by
	c.VerifiedAt = at
	m.certs[id] = c
	return c, nil
}

func (m *MemoryStore) CurrentContract(ctx context.Context, coachID string) (Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.contracts[coachID] {
		if c.Current {
			return c, nil
		}
	}
	return Contract{}, NotFoundf("no current contract")
}

func (m *MemoryStore) ListContracts(ctx context.Context, coachID string) ([]Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.contracts[coachID]
	out := make([]Contract, len(list))
	copy(out, list)
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (m *MemoryStore) InsertContractVersion(ctx context.Context, priorID string, next Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.inject(StepInsertContract); err != nil {
		return err
	}
	list := m.contracts[next.CoachID]
	current := -1
	for i, c := range list {
		if c.Current {
			current = i
		}
		if c.Version == next.Version {
			return Conflictf("contract version %d already exists", next.Version)
		}
	}
	switch {
	case priorID == "" && current >= 0:
		return Conflictf("a current contract already exists")
	case priorID != "" && (current < 0 || list[current].ID != priorID):
		return Conflictf("current contract changed concurrently")
	}
	if current >= 0 {
		list[current].Current = false
		list[current].State = ContractSuperseded
	}
	m.contracts[next.CoachID] = append(list, next)
	return nil
}

func (m *MemoryStore) InsertNotification(ctx context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[n.ID] = n
	return nil
}

func (m *MemoryStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Notification
	for _, n := range m.notifications {
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return NotFoundf("notification not found")
	}
	n.Read = true
	m.notifications[id] = n
	return nil
}

func cloneCoach(c Coach) Coach {
	c.Profile.Specialties = append([]string(nil), c.Profile.Specialties...)
	c.Corrections = append([]string(nil), c.Corrections...)
	return c
}
