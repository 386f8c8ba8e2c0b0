package model

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by the typed errors below through errors.Is
var (
	// ErrValidation is matched by every ValidationError
	ErrValidation = errors.New("model: validation failed")

	// ErrConfiguration is matched by every ConfigurationError
	ErrConfiguration = errors.New("model: configuration error")

	// ErrNotFound is matched by every NotFoundError
	ErrNotFound = errors.New("model: record not found")
)

// ValidationError reports malformed input rejected before any I/O
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("model: invalid %s: %s", e.Field, e.Message)
}

// Is reports whether target is ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConfigurationError reports a missing or inconsistent relationship
type ConfigurationError struct {
	Table   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Table == "" {
		return "model: configuration error: " + e.Message
	}
	return fmt.Sprintf("model: configuration error on %s: %s", e.Table, e.Message)
}

// Is reports whether target is ErrConfiguration
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// NotFoundError reports a lookup or delete targeting an absent or soft-deleted record
type NotFoundError struct {
	Table string
	ID    any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("model: %s record %v not found", e.Table, e.ID)
}

// Is reports whether target is ErrNotFound
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsValidation checks if an error is a ValidationError
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConfiguration checks if an error is a ConfigurationError
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsNotFound checks if an error is a NotFoundError
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
