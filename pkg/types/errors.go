// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match with errors.Is.
var (
	// ErrConfig marks invalid configuration or an invalid request, raised
	// before any work starts.
	ErrConfig = errors.New("configuration error")

	// ErrNotFound marks a missing source path or document.
	ErrNotFound = errors.New("not found")

	// ErrQuality marks a document that fails validation or a quality threshold.
	ErrQuality = errors.New("quality violation")

	// ErrMalformed marks an existing document that cannot be parsed.
	ErrMalformed = errors.New("malformed document")

	// ErrCollision marks a write to an existing kb_id under the "error"
	// collision strategy.
	ErrCollision = errors.New("kb_id collision")
)

// FieldError describes a rejected value. Kind is one of the sentinels above.
type FieldError struct {
	Kind   error
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: %s: %s", e.Kind, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return e.Kind
}

// ConfigError returns a FieldError of kind ErrConfig.
func ConfigError(field, format string, args ...any) error {
	return &FieldError{Kind: ErrConfig, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// QualityError returns a FieldError of kind ErrQuality.
func QualityError(field, format string, args ...any) error {
	return &FieldError{Kind: ErrQuality, Field: field, Reason: fmt.Sprintf(format, args...)}
}
