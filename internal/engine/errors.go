package engine

import (
	"errors"
	"fmt"

	"github.com/noot-app/nutrient-engine/internal/store"
)

// ErrValidation is matched by every ValidationError
var ErrValidation = errors.New("validation failed")

// ValidationError rejects a request before any transaction starts
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) hold
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// notFoundAs turns a store.ErrNotFound into a validation error on field
func notFoundAs(err error, field, format string, args ...any) error {
	if errors.Is(err, store.ErrNotFound) {
		return invalid(field, format, args...)
	}
	return err
}
