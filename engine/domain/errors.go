package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for intent validation failures.
var (
	ErrEmptyQuery           = errors.New("empty query")
	ErrInvalidIntent        = errors.New("invalid intent")
	ErrUnknownSearchType    = errors.New("unknown search type")
	ErrUnknownCategory      = errors.New("unknown category")
	ErrUnknownBrand         = errors.New("unknown brand")
	ErrUnknownPosition      = errors.New("unknown position")
	ErrConfidenceOutOfRange = errors.New("confidence out of range")
	ErrPartNumberConfidence = errors.New("part number requires confidence >= 0.7")
	ErrMissingVehicleMake   = errors.New("fitment search requires vehicle make")
	ErrYearOutOfRange       = errors.New("vehicle year out of range")
	ErrDuplicateValues      = errors.New("duplicate array values")
)

// ValidationError wraps a sentinel with the offending field and value.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
