package firewall

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks rejected rule drafts and packets. No state is
	// mutated when it is returned.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidAddress marks an address or specifier that does not parse.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrNotFound marks a lookup of an unknown rule id.
	ErrNotFound = errors.New("rule not found")
)

// ValidationError describes which input field was rejected and why.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Unwrap exposes both ErrValidation and the underlying cause, so an address
// failure during rule creation satisfies errors.Is(err, ErrInvalidAddress).
func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Err}
}

// AddressError reports an address or specifier that failed to parse.
type AddressError struct {
	Input  string
	Reason string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("invalid address %q: %s", e.Input, e.Reason)
}

func (e *AddressError) Unwrap() error {
	return ErrInvalidAddress
}

// IsClientError reports whether err was caused by caller input rather than
// an internal fault. A stored rule whose specifier no longer parses is an
// internal fault even though it also matches ErrInvalidAddress.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}
