package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgErrUniqueViolation = "23505"

var _ Accounts = (*PGAccounts)(nil)

// PGAccounts implements Accounts on the local accounts table with bcrypt hashes.
type PGAccounts struct {
	db *sql.DB
}

func NewPGAccounts(db *sql.DB) *PGAccounts {
	return &PGAccounts{db: db}
}

func (s *PGAccounts) CreateAccount(ctx context.Context, email, password string, meta AccountMetadata) (Account, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Account{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if err := ValidatePassword(password); err != nil {
		return Account{}, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Account{}, err
	}

	acc := Account{ID: uuid.NewString(), Email: email, Role: meta.Role, FullName: meta.FullName}
	err = s.db.QueryRowContext(ctx, `
		insert into accounts (id, email, password_hash, role, full_name)
		values ($1, $2, $3, $4, $5)
		returning created_at
	`, acc.ID, acc.Email, hash, acc.Role, acc.FullName).Scan(&acc.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
			return Account{}, ErrAlreadyExists
		}
		return Account{}, err
	}
	return acc, nil
}

func (s *PGAccounts) VerifyCredentials(ctx context.Context, email, password string) (Account, error) {
	var (
		acc  Account
		hash string
	)
	err := s.db.QueryRowContext(ctx, `
		select id, email, role, full_name, created_at, password_hash
		from accounts where email = $1
	`, normalizeEmail(email)).Scan(&acc.ID, &acc.Email, &acc.Role, &acc.FullName, &acc.CreatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, err
	}
	if err := VerifyPassword(hash, password); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return acc, nil
}

func (s *PGAccounts) LookupByEmail(ctx context.Context, email string) (Account, error) {
	var acc Account
	err := s.db.QueryRowContext(ctx, `
		select id, email, role, full_name, created_at
		from accounts where email = $1
	`, normalizeEmail(email)).Scan(&acc.ID, &acc.Email, &acc.Role, &acc.FullName, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return acc, nil
}

func (s *PGAccounts) DeleteAccount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from accounts where id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
