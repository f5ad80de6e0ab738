package cache

import (
	"errors"
	"fmt"
)

// Failure classes surfaced by every Store. None of them is retried here.
var (
	// ErrNotFound is returned when no record exists for a filename.
	ErrNotFound = errors.New("cache record not found")

	// ErrConnectivity is returned when the backing service cannot be reached.
	ErrConnectivity = errors.New("cache backend unreachable")

	// ErrAuthorization is returned when credentials or a row policy reject the call.
	ErrAuthorization = errors.New("cache access denied")

	// ErrSchema is returned when the table or a column is missing, or the
	// stored data has an unexpected shape.
	ErrSchema = errors.New("cache schema mismatch")

	// ErrUnsupportedBackend is returned by Open for an unknown backend name.
	ErrUnsupportedBackend = errors.New("unsupported cache backend")

	// ErrInvalidConfig is returned when a connection string is missing or malformed.
	ErrInvalidConfig = errors.New("invalid cache configuration")
)

// StoreError carries the failed operation, the document involved and the
// failure class.
type StoreError struct {
	// Op is the store operation that failed (e.g., "Lookup", "Save").
	Op string

	// Filename is the record key, empty for table-wide operations.
	Filename string

	// Kind is one of the package sentinels, nil when the failure is unclassified.
	Kind error

	// Err is the underlying driver error.
	Err error

	// Details is an optional hint for the operator.
	Details string
}

func (e *StoreError) Error() string {
	msg := "cache: " + e.Op
	if e.Filename != "" {
		msg += fmt.Sprintf(" %q", e.Filename)
	}
	switch {
	case e.Kind != nil && e.Err != nil && e.Err != e.Kind:
		msg += fmt.Sprintf(": %v: %v", e.Kind, e.Err)
	case e.Kind != nil:
		msg += fmt.Sprintf(": %v", e.Kind)
	default:
		msg += fmt.Sprintf(": %v", e.Err)
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is matches both the failure class and the underlying error.
func (e *StoreError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	return errors.Is(e.Err, target)
}

// NewStoreError creates a StoreError of the given class.
func NewStoreError(op, filename string, kind, err error) *StoreError {
	if err == nil {
		err = kind
	}
	return &StoreError{Op: op, Filename: filename, Kind: kind, Err: err}
}

// notFound is the miss returned by every backend.
func notFound(op, filename string) error {
	return NewStoreError(op, filename, ErrNotFound, nil)
}
