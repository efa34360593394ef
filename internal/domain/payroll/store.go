package payroll

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"hrpayroll/internal/platform/db"
)

const (
	pgForeignKeyViolation   = "23503"
	pgExclusionViolation    = "23P01"
	pgInvalidTextRepresent  = "22P02"
	periodOverlapConstraint = "payroll_periods_no_overlap"
)

type Store struct {
	DB db.DBTX
}

func NewStore(conn db.DBTX) *Store {
	return &Store{DB: conn}
}

// PgTransactor opens transactions on a pool and hands fn a Store bound to it.
type PgTransactor struct {
	Pool db.TxBeginner
}

func NewTransactor(pool db.TxBeginner) *PgTransactor {
	return &PgTransactor{Pool: pool}
}

func (t *PgTransactor) InTx(ctx context.Context, fn func(store StoreAPI) error) error {
	return db.WithTx(ctx, t.Pool, func(tx pgx.Tx) error {
		return fn(NewStore(tx))
	})
}

// mapStoreError converts driver errors into domain errors. Malformed ids are
// reported as not found so callers never see a raw SQLSTATE.
func mapStoreError(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgInvalidTextRepresent:
			return &NotFoundError{Entity: entity, ID: id}
		case pgExclusionViolation:
			if pgErr.ConstraintName == periodOverlapConstraint {
				return &OverlapError{}
			}
		case pgForeignKeyViolation:
			return &NotFoundError{Entity: foreignKeyEntity(pgErr.ConstraintName), ID: id}
		}
	}
	return fmt.Errorf("%s %s: %w", entity, id, err)
}

// foreignKeyEntity derives the referenced entity from Postgres' default
// "<table>_<column>_fkey" naming.
func foreignKeyEntity(constraint string) string {
	switch {
	case strings.Contains(constraint, "run_id"):
		return "payroll run"
	case strings.Contains(constraint, "employee_id"):
		return "employee"
	case strings.Contains(constraint, "period_id"):
		return "payroll period"
	case strings.Contains(constraint, "organization_id"):
		return "organization"
	default:
		return "reference"
	}
}
