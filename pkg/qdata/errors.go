package qdata

import (
	"errors"
	"fmt"
)

// Error classes shared by every decoder. Callers test them with errors.Is.
var (
	// ErrFormat marks malformed input: bad signatures, truncated data, size mismatches.
	ErrFormat = errors.New("format error")
	// ErrLookup marks a requested name or hash that does not exist.
	ErrLookup = errors.New("not found")
	// ErrInvariant marks input that decodes but violates a structural rule.
	ErrInvariant = errors.New("invariant violation")
)

// FormatErrorf returns an error wrapping ErrFormat.
func FormatErrorf(format string, args ...any) error {
	return wrapf(ErrFormat, format, args...)
}

// LookupErrorf returns an error wrapping ErrLookup.
func LookupErrorf(format string, args ...any) error {
	return wrapf(ErrLookup, format, args...)
}

// InvariantErrorf returns an error wrapping ErrInvariant.
func InvariantErrorf(format string, args ...any) error {
	return wrapf(ErrInvariant, format, args...)
}

func wrapf(class error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", class, fmt.Sprintf(format, args...))
}
