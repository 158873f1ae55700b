package postgres

import (
	"database/sql"
	"errors"
	"strconv"

	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// wrapErr maps driver errors onto the error sentinels. entity names the
// record in hints, e.g. "instance".
func wrapErr(err error, entity, action string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ierr.NewErrorf("%s not found", entity).
			WithHintf("The %s was not found", entity).
			Mark(ierr.ErrNotFound)
	case isUniqueViolation(err):
		return ierr.WithError(err).
			WithHintf("The %s already exists", entity).
			Mark(ierr.ErrAlreadyExists)
	default:
		return ierr.WithError(err).
			WithHintf("Failed to %s %s", action, entity).
			Mark(ierr.ErrDatabase)
	}
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
