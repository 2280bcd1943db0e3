package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mapPgError translates storage-layer failures into service errors.
// Constraint violations here are races that slipped past validation, so
// they surface as conflicts rather than as the validation-error codes.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return newServiceError(http.StatusNotFound, "DIVISION_NOT_FOUND", "not found", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		recordWriteConflict("unique")
		if pgErr.ConstraintName == "divisions_code_active_key" {
			return newServiceError(http.StatusConflict, "DIVISION_CODE_CONFLICT", "code already exists", err)
		}
		return newServiceError(http.StatusConflict, "DIVISION_CONFLICT", "unique constraint violated", err)
	case "23503": // foreign_key_violation
		recordWriteConflict("foreign_key")
		return newServiceError(http.StatusConflict, "DIVISION_REFERENCE_CONFLICT", "division is still referenced", err)
	default:
		return newServiceError(http.StatusInternalServerError, "DIVISION_INTERNAL", fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}
