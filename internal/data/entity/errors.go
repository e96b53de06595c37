package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingKey is returned for records without their natural key.
	ErrMissingKey = errors.New("missing key")
	// ErrInvalidRecord is returned for records that fail validation.
	ErrInvalidRecord = errors.New("invalid record")
)

// ValidationError describes a rejected record.
type ValidationError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s %s", e.Kind, e.Field, e.Reason)
}

// Is matches ErrInvalidRecord, and ErrMissingKey for key fields.
func (e *ValidationError) Is(target error) bool {
	switch target {
	case ErrInvalidRecord:
		return true
	case ErrMissingKey:
		return e.Reason == reasonMissingKey
	}
	return false
}

const (
	reasonMissingKey = "is required as key"
	reasonEmpty      = "must not be empty"
)

func missingKey(kind Kind, field string) error {
	return &ValidationError{Kind: kind, Field: field, Reason: reasonMissingKey}
}

func emptyField(kind Kind, field string) error {
	return &ValidationError{Kind: kind, Field: field, Reason: reasonEmpty}
}
