package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gymstudio.app/internal/coach"
)

const coachColumns = `id, email, state, active, category, full_name, phone, birth_date, address, bio, specialties,
	years_experience, avatar_url, bank_name, bank_account_holder, bank_account_number, tax_id,
	emergency_name, emergency_phone, emergency_relationship, approved_at, coalesce(approved_by, ''),
	coalesce(rejection_reason, ''), rejected_at, coalesce(rejected_by, ''), corrections, corrections_requested_at,
	created_at, updated_at`

func scanCoach(row scanner) (coach.Coach, error) {
	var (
		c                                     coach.Coach
		birth, approved, rejected, correction sql.NullTime
		specialties, corrections              []byte
	)
	err := row.Scan(&c.ID, &c.Email, &c.State, &c.Active, &c.Category, &c.Profile.FullName, &c.Profile.Phone, &birth,
		&c.Profile.Address, &c.Profile.Bio, &specialties, &c.Profile.YearsExperience, &c.Profile.AvatarURL,
		&c.Bank.BankName, &c.Bank.AccountHolder, &c.Bank.AccountNumber, &c.Bank.TaxID,
		&c.Emergency.Name, &c.Emergency.Phone, &c.Emergency.Relationship, &approved, &c.ApprovedBy,
		&c.RejectionReason, &rejected, &c.RejectedBy, &corrections, &correction, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return coach.Coach{}, err
	}
	if birth.Valid {
		c.Profile.BirthDate = birth.Time
	}
	c.ApprovedAt = timePtr(approved)
	c.RejectedAt = timePtr(rejected)
	c.CorrectionsRequestedAt = timePtr(correction)
	if c.Profile.Specialties, err = parseList(specialties); err != nil {
		return coach.Coach{}, fmt.Errorf("decode specialties: %w", err)
	}
	if c.Corrections, err = parseList(corrections); err != nil {
		return coach.Coach{}, fmt.Errorf("decode corrections: %w", err)
	}
	return c, nil
}

// CompleteOnboarding persists an onboarding in one serializable transaction. The invitation row is
// locked first and re-checked, so a token can only ever produce one coach.
func (s *Store) CompleteOnboarding(ctx context.Context, rec coach.OnboardingRecord) error {
	tx, err := s.serializable(ctx)
	if err != nil {
		return mapErr(coach.StepVerifyInvitation, err)
	}
	defer func() { _ = tx.Rollback() }()

	var state coach.InvitationState
	err = tx.QueryRowContext(ctx, `select state from invitations where id = $1 for update`, rec.InvitationID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return &coach.Error{Kind: coach.KindInvalidInvitation, Step: coach.StepMarkInvitationUsed, Msg: "invitation not found"}
	}
	if err != nil {
		return mapErr(coach.StepMarkInvitationUsed, err)
	}
	if state != coach.InvitationPending {
		return &coach.Error{Kind: coach.KindInvalidInvitation, Step: coach.StepMarkInvitationUsed, Msg: "invitation is " + string(state)}
	}

	p := rec.Profile
	if _, err := tx.ExecContext(ctx, `
		insert into profiles (id, email, full_name, role, avatar_url, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $6)
		on conflict (id) do update set
			email = excluded.email,
			full_name = excluded.full_name,
			role = excluded.role,
			avatar_url = excluded.avatar_url,
			updated_at = excluded.updated_at
	`, p.ID, p.Email, p.FullName, p.Role, nullString(p.AvatarURL), p.UpdatedAt); err != nil {
		return mapErr(coach.StepUpsertProfile, err)
	}

	c := rec.Coach
	var birth *time.Time
	if !c.Profile.BirthDate.IsZero() {
		birth = &c.Profile.BirthDate
	}
	if _, err := tx.ExecContext(ctx, `
		insert into coaches (id, email, state, active, category, full_name, phone, birth_date, address, bio,
			specialties, years_experience, avatar_url, bank_name, bank_account_holder, bank_account_number, tax_id,
			emergency_name, emergency_phone, emergency_relationship, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $21)
	`, c.ID, c.Email, c.State, c.Active, c.Category, c.Profile.FullName, c.Profile.Phone, nullTime(birth),
		c.Profile.Address, c.Profile.Bio, jsonList(c.Profile.Specialties), c.Profile.YearsExperience, c.Profile.AvatarURL,
		c.Bank.BankName, c.Bank.AccountHolder, c.Bank.AccountNumber, c.Bank.TaxID,
		c.Emergency.Name, c.Emergency.Phone, c.Emergency.Relationship, c.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return &coach.Error{Kind: coach.KindConflict, Step: coach.StepInsertCoach, Msg: "a coach record already exists for this account", Err: err}
		}
		return mapErr(coach.StepInsertCoach, err)
	}

	for _, d := range rec.Documents {
		if _, err := tx.ExecContext(ctx, `
			insert into documents (id, coach_id, type, file_url, status, verified, uploaded_at)
			values ($1, $2, $3, $4, $5, $6, $7)
		`, d.ID, d.CoachID, d.Type, d.FileURL, d.Status, d.Verified, d.UploadedAt); err != nil {
			return mapErr(coach.StepInsertDocuments, err)
		}
	}
	for _, ct := range rec.Certifications {
		if _, err := tx.ExecContext(ctx, `
			insert into certifications (id, coach_id, name, institution, obtained_date, expiry_date, file_url, verified)
			values ($1, $2, $3, $4, $5, $6, $7, false)
		`, ct.ID, ct.CoachID, ct.Name, ct.Institution, ct.ObtainedDate, nullTime(ct.ExpiryDate), nullString(ct.FileURL)); err != nil {
			return mapErr(coach.StepInsertCertifications, err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		update invitations set state = 'used', used_at = $2, used_by = $3, updated_at = $2
		where id = $1 and state = 'pending'
	`, rec.InvitationID, rec.UsedAt, c.ID)
	if err != nil {
		return mapErr(coach.StepMarkInvitationUsed, err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return &coach.Error{Kind: coach.KindInvalidInvitation, Step: coach.StepMarkInvitationUsed, Msg: "invitation no longer pending", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return mapErr(coach.StepMarkInvitationUsed, err)
	}
	return nil
}

func (s *Store) CoachByID(ctx context.Context, id string) (coach.Coach, error) {
	c, err := scanCoach(s.db.QueryRowContext(ctx, `select `+coachColumns+` from coaches where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return coach.Coach{}, coach.NotFoundf("coach not found")
	}
	return c, err
}

func (s *Store) ListCoaches(ctx context.Context, f coach.CoachFilter) ([]coach.Coach, error) {
	var (
		where []string
		args  []any
	)
	if f.State != "" {
		args = append(args, f.State)
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	query := `select ` + coachColumns + ` from coaches`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` order by created_at desc, id desc limit $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []coach.Coach
	for rows.Next() {
		c, err := scanCoach(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TransitionCoach is a compare-and-set on the coach state.
func (s *Store) TransitionCoach(ctx context.Context, id string, from coach.State, t coach.CoachTransition) (coach.Coach, error) {
	var (
		query string
		args  []any
	)
	switch t.To {
	case coach.StateActive:
		query = `update coaches set state = 'active', active = true, approved_at = $3, approved_by = $4, updated_at = $3
			where id = $1 and state = $2 returning ` + coachColumns
		args = []any{id, from, t.At, t.By}
	case coach.StateRejected:
		query = `update coaches set state = 'rejected', active = false, rejected_at = $3, rejected_by = $4,
			rejection_reason = $5, updated_at = $3
			where id = $1 and state = $2 returning ` + coachColumns
		args = []any{id, from, t.At, t.By, t.RejectionReason}
	case coach.StatePending:
		query = `update coaches set corrections = $4, corrections_requested_at = $3, updated_at = $3
			where id = $1 and state = $2 returning ` + coachColumns
		args = []any{id, from, t.At, jsonList(t.Corrections)}
	default:
		return coach.Coach{}, coach.Validationf("unknown target state %q", t.To)
	}

	c, err := scanCoach(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		var state coach.State
		err := s.db.QueryRowContext(ctx, `select state from coaches where id = $1`, id).Scan(&state)
		if errors.Is(err, sql.ErrNoRows) {
			return coach.Coach{}, coach.NotFoundf("coach not found")
		}
		if err != nil {
			return coach.Coach{}, err
		}
		return coach.Coach{}, coach.InvalidStatef("coach is %s", state)
	}
	return c, err
}

func (s *Store) UpdateCoachProfile(ctx context.Context, id string, patch coach.ProfilePatch, at time.Time) (coach.Coach, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return coach.Coach{}, err
	}
	defer func() { _ = tx.Rollback() }()

	c, err := scanCoach(tx.QueryRowContext(ctx, `select `+coachColumns+` from coaches where id = $1 for update`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return coach.Coach{}, coach.NotFoundf("coach not found")
	}
	if err != nil {
		return coach.Coach{}, err
	}
	if c.State != coach.StatePending {
		return coach.Coach{}, coach.InvalidStatef("coach is %s", c.State)
	}
	c = patch.Apply(c)
	c.UpdatedAt = at
	if _, err := tx.ExecContext(ctx, `
		update coaches set full_name = $2, phone = $3, address = $4, bio = $5, specialties = $6,
			years_experience = $7, bank_name = $8, bank_account_holder = $9, bank_account_number = $10, tax_id = $11,
			emergency_name = $12, emergency_phone = $13, emergency_relationship = $14, updated_at = $15
		where id = $1
	`, c.ID, c.Profile.FullName, c.Profile.Phone, c.Profile.Address, c.Profile.Bio, jsonList(c.Profile.Specialties),
		c.Profile.YearsExperience, c.Bank.BankName, c.Bank.AccountHolder, c.Bank.AccountNumber, c.Bank.TaxID,
		c.Emergency.Name, c.Emergency.Phone, c.Emergency.Relationship, at); err != nil {
		return coach.Coach{}, mapErr("", err)
	}
	if err := tx.Commit(); err != nil {
		return coach.Coach{}, err
	}
	return c, nil
}

// DeleteCoach removes the coach and everything hanging off it. Documents, certifications and
// contracts go through on delete cascade.
func (s *Store) DeleteCoach(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from notifications where user_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from coaches where id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return coach.NotFoundf("coach not found")
	}
	if _, err := tx.ExecContext(ctx, `delete from profiles where id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}
