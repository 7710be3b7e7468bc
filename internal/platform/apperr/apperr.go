// Package apperr defines the error kinds shared by the domain services and
// the mapping of those kinds onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned when an object fails field validation.
	ErrValidation = errors.New("validation failed")
	// ErrAPI is returned when an operation violates a business rule.
	ErrAPI = errors.New("api error")
	// ErrInvalidArgument is returned for a missing or malformed argument.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDuplicate is returned when a uniqueness constraint would be violated.
	ErrDuplicate = errors.New("duplicate")
	// ErrConflict is returned when the stored state changed underneath the caller.
	ErrConflict = errors.New("conflict")
)

// Validation wraps ErrValidation with a formatted message.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// API wraps ErrAPI with a formatted message.
func API(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrAPI)
}

// InvalidArgument wraps ErrInvalidArgument with a formatted message.
func InvalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidArgument)
}

// NotFound wraps ErrNotFound naming the missing entity.
func NotFound(entity string, key interface{}) error {
	return fmt.Errorf("%s %v: %w", entity, key, ErrNotFound)
}

// Duplicate wraps ErrDuplicate with a formatted message.
func Duplicate(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrDuplicate)
}

// FromPG translates driver errors into the package's error kinds. Unknown
// errors are returned unchanged.
func FromPG(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", entity, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s already exists (%s): %w", entity, pgErr.ConstraintName, ErrDuplicate)
		case "23503":
			return fmt.Errorf("%s is referenced by other records (%s): %w", entity, pgErr.ConstraintName, ErrAPI)
		}
	}
	return err
}

// HTTPStatus maps an error onto the HTTP status a handler should return.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation), errors.Is(err, ErrAPI), errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTP converts err into an *echo.HTTPError carrying the mapped status.
func ToHTTP(err error) *echo.HTTPError {
	return echo.NewHTTPError(HTTPStatus(err), err.Error())
}
