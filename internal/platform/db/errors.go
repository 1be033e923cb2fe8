package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrReference = errors.New("referenced row does not exist")
	ErrCheck     = errors.New("check constraint violated")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// ConstraintError reports which constraint rejected a statement. Kind is one
// of ErrConflict, ErrReference or ErrCheck.
type ConstraintError struct {
	Kind       error
	Constraint string
	Detail     string
}

func (e *ConstraintError) Error() string {
	if e.Constraint == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Constraint)
}

func (e *ConstraintError) Unwrap() error { return e.Kind }

// MapError translates pgx errors into the package sentinels. Errors it does
// not recognize are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return &ConstraintError{Kind: ErrConflict, Constraint: pgErr.ConstraintName, Detail: pgErr.Detail}
		case pgForeignKeyViolation:
			return &ConstraintError{Kind: ErrReference, Constraint: pgErr.ConstraintName, Detail: pgErr.Detail}
		case pgCheckViolation:
			return &ConstraintError{Kind: ErrCheck, Constraint: pgErr.ConstraintName, Detail: pgErr.Detail}
		}
	}
	return err
}

// ConstraintName returns the violated constraint carried by err, if any.
func ConstraintName(err error) string {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Constraint
	}
	return ""
}

// Affected maps a command result to ErrNotFound when no row was touched.
func Affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
