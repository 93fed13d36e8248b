package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jhoicas/stock-ledger/internal/domain"
)

// wrapErr antepone la operación y clasifica el error de PostgreSQL en un error de dominio.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if kind := classify(err); kind != nil {
		return fmt.Errorf("%s: %w: %w", op, kind, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.ErrTimeout
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return domain.ErrDuplicate
		case "23503", "22P02": // foreign_key_violation, invalid_text_representation (uuid mal formado)
			return domain.ErrInvalidInput
		case "23514": // check_violation: saldo negativo en libro o proyección
			return domain.ErrConsistencyFault
		case "57014", "55P03": // query_canceled, lock_not_available
			return domain.ErrTimeout
		case "40001", "40P01", "57P01", "57P02", "57P03":
			return domain.ErrStorageUnavailable
		}
		if strings.HasPrefix(pgErr.Code, "08") { // connection_exception
			return domain.ErrStorageUnavailable
		}
		return nil
	}
	if pgconn.Timeout(err) {
		return domain.ErrTimeout
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.SafeToRetry(err) {
		return domain.ErrStorageUnavailable
	}
	return nil
}

// isUniqueViolation verifica si un error es una violación de constraint único (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
