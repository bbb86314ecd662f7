package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"gymstudio.app/internal/coach"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrCheckViolation      = "23514"
	pgErrSerialization       = "40001"
)

// Store implements coach.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ coach.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle (tests use sqlmock).
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) serializable(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

type scanner interface {
	Scan(dest ...any) error
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// mapErr turns constraint and serialization failures into workflow errors and tags the rest with step.
func mapErr(step coach.Step, err error) error {
	if err == nil {
		return nil
	}
	var ce *coach.Error
	if errors.As(err, &ce) {
		return coach.AtStep(step, err)
	}
	if pgErr, ok := maybePgError(err); ok {
		var mapped *coach.Error
		switch pgErr.Code {
		case pgErrUniqueViolation:
			mapped = &coach.Error{Kind: coach.KindConflict, Msg: "record already exists", Err: err}
		case pgErrSerialization:
			mapped = &coach.Error{Kind: coach.KindConflict, Msg: "concurrent update, retry", Err: err}
		case pgErrForeignKeyViolation:
			mapped = &coach.Error{Kind: coach.KindNotFound, Msg: "referenced record not found", Err: err}
		case pgErrCheckViolation:
			mapped = &coach.Error{Kind: coach.KindValidation, Msg: "constraint violated: " + pgErr.ConstraintName, Err: err}
		}
		if mapped != nil {
			mapped.Step = step
			return mapped
		}
	}
	return coach.Upstream(step, "database error", err)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func jsonList(items []string) []byte {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return b
}

func parseList(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
