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

const invitationColumns = `id, email, category, state, token, expires_at, invited_by, custom_message,
	created_at, updated_at, used_at, coalesce(used_by, '')`

func scanInvitation(row scanner) (coach.Invitation, error) {
	var (
		inv    coach.Invitation
		usedAt sql.NullTime
	)
	err := row.Scan(&inv.ID, &inv.Email, &inv.Category, &inv.State, &inv.Token, &inv.ExpiresAt, &inv.InvitedBy,
		&inv.CustomMessage, &inv.CreatedAt, &inv.UpdatedAt, &usedAt, &inv.UsedBy)
	if err != nil {
		return coach.Invitation{}, err
	}
	inv.UsedAt = timePtr(usedAt)
	return inv, nil
}

func (s *Store) CreateInvitation(ctx context.Context, inv coach.Invitation) error {
	_, err := s.db.ExecContext(ctx, `
		insert into invitations (id, email, category, state, token, expires_at, invited_by, custom_message, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, inv.ID, inv.Email, inv.Category, inv.State, inv.Token, inv.ExpiresAt, inv.InvitedBy, inv.CustomMessage, inv.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return coach.Conflictf("a pending invitation already exists for %s", inv.Email)
		}
		return err
	}
	return nil
}

func (s *Store) InvitationByID(ctx context.Context, id string) (coach.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, `select `+invitationColumns+` from invitations where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return coach.Invitation{}, coach.NotFoundf("invitation not found")
	}
	return inv, err
}

func (s *Store) InvitationByToken(ctx context.Context, token string) (coach.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, `select `+invitationColumns+` from invitations where token = $1`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return coach.Invitation{}, coach.NotFoundf("invitation not found")
	}
	return inv, err
}

func (s *Store) HasPendingInvitation(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from invitations where lower(email) = lower($1) and state = 'pending')
	`, email).Scan(&exists)
	return exists, err
}

// ExpireInvitation flips a pending invitation to expired. Only one caller observes true.
func (s *Store) ExpireInvitation(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update invitations set state = 'expired', updated_at = $2
		where id = $1 and state = 'pending'
	`, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.invitationState(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) CancelInvitation(ctx context.Context, id string, at time.Time) (coach.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, `
		update invitations set state = 'cancelled', updated_at = $2
		where id = $1 and state = 'pending'
		returning `+invitationColumns, id, at))
	if errors.Is(err, sql.ErrNoRows) {
		state, err := s.invitationState(ctx, id)
		if err != nil {
			return coach.Invitation{}, err
		}
		return coach.Invitation{}, coach.InvalidStatef("invitation is %s", state)
	}
	return inv, err
}

func (s *Store) invitationState(ctx context.Context, id string) (coach.InvitationState, error) {
	var state coach.InvitationState
	err := s.db.QueryRowContext(ctx, `select state from invitations where id = $1`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", coach.NotFoundf("invitation not found")
	}
	return state, err
}

func (s *Store) ListInvitations(ctx context.Context, f coach.InvitationFilter) ([]coach.Invitation, error) {
	var (
		where []string
		args  []any
	)
	if f.State != "" {
		args = append(args, f.State)
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}
	if f.Email != "" {
		args = append(args, f.Email)
		where = append(where, fmt.Sprintf("lower(email) = lower($%d)", len(args)))
	}
	query := `select ` + invitationColumns + ` from invitations`
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
	var out []coach.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
