package complaint

import (
	"errors"
	"fmt"
	"strings"

	"raggingwatch/internal/store"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("complaint not found")
	ErrConflict        = errors.New("tracking number conflict")
	ErrInvalidEvidence = errors.New("invalid evidence")
	ErrStorage         = errors.New("storage failure")
)

// ValidationError names the inputs that were missing or malformed.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "invalid or missing fields: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func repoErr(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrConflict
	default:
		return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
	}
}
