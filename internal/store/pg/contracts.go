package pg

import (
	"context"
	"database/sql"
	"errors"

	"gymstudio.app/internal/coach"
)

const contractColumns = `id, coach_id, contract_type, start_date, end_date, state, signed, current, version,
	coalesce(supersedes, ''), document_url, document_sha256, base_salary, per_class_commission, notes,
	signed_at, coalesce(signature_ip, ''), issued_by, created_at`

func scanContract(row scanner) (coach.Contract, error) {
	var (
		k                  coach.Contract
		end, signedAt      sql.NullTime
		salary, commission sql.NullInt64
	)
	if err := row.Scan(&k.ID, &k.CoachID, &k.Type, &k.StartDate, &end, &k.State, &k.Signed, &k.Current, &k.Version,
		&k.Supersedes, &k.DocumentURL, &k.DocumentSHA256, &salary, &commission, &k.Notes,
		&signedAt, &k.SignatureIP, &k.IssuedBy, &k.CreatedAt); err != nil {
		return coach.Contract{}, err
	}
	k.EndDate = timePtr(end)
	k.SignedAt = timePtr(signedAt)
	k.BaseSalary = int64Ptr(salary)
	k.PerClassCommission = int64Ptr(commission)
	return k, nil
}

func (s *Store) CurrentContract(ctx context.Context, coachID string) (coach.Contract, error) {
	k, err := scanContract(s.db.QueryRowContext(ctx, `select `+contractColumns+` from contracts where coach_id = $1 and current`, coachID))
	if errors.Is(err, sql.ErrNoRows) {
		return coach.Contract{}, coach.NotFoundf("no current contract")
	}
	return k, err
}

func (s *Store) ListContracts(ctx context.Context, coachID string) ([]coach.Contract, error) {
	rows, err := s.db.QueryContext(ctx, `select `+contractColumns+` from contracts where coach_id = $1 order by version desc`, coachID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []coach.Contract
	for rows.Next() {
		k, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// InsertContractVersion supersedes priorID and inserts next as the current version.
// Fails with a conflict when priorID is no longer the current version.
func (s *Store) InsertContractVersion(ctx context.Context, priorID string, next coach.Contract) error {
	tx, err := s.serializable(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var currentID string
	err = tx.QueryRowContext(ctx, `select id from contracts where coach_id = $1 and current for update`, next.CoachID).Scan(&currentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return mapErr(coach.StepInsertContract, err)
	}
	if currentID != priorID {
		return coach.Conflictf("current contract changed concurrently")
	}
	if priorID != "" {
		if _, err := tx.ExecContext(ctx, `update contracts set current = false, state = 'superseded' where id = $1`, priorID); err != nil {
			return mapErr(coach.StepInsertContract, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		insert into contracts (id, coach_id, contract_type, start_date, end_date, state, signed, current, version,
			supersedes, document_url, document_sha256, base_salary, per_class_commission, notes, signed_at,
			signature_ip, issued_by, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, next.ID, next.CoachID, next.Type, next.StartDate, nullTime(next.EndDate), next.State, next.Signed, next.Current,
		next.Version, nullString(next.Supersedes), next.DocumentURL, next.DocumentSHA256, nullInt64(next.BaseSalary),
		nullInt64(next.PerClassCommission), next.Notes, nullTime(next.SignedAt), nullString(next.SignatureIP),
		next.IssuedBy, next.CreatedAt); err != nil {
		return mapErr(coach.StepInsertContract, err)
	}
	if err := tx.Commit(); err != nil {
		return mapErr(coach.StepInsertContract, err)
	}
	return nil
}
