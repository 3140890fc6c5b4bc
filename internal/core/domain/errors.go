package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedType indicates an unknown data type or backend.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrIndexingInProgress indicates an indexing run is already active for a source.
	ErrIndexingInProgress = errors.New("indexing in progress")

	// ErrCacheDisabled indicates a background write hit a Yard with cache strategy none.
	ErrCacheDisabled = errors.New("cache strategy none rejects replication")

	// ErrIteratorClosed indicates use of a closed EntityDataIterator.
	ErrIteratorClosed = errors.New("iterator closed")

	// ErrBackendUnavailable indicates the index backend could not be reached.
	ErrBackendUnavailable = errors.New("index backend unavailable")
)

// DecodeError reports a physical field name that does not decode to a
// logical field. Readers skip such fields.
type DecodeError struct {
	Name   string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode field name %q: %s", e.Name, e.Reason)
}

// UnsupportedConstraintError reports a constraint that cannot be compiled
// for its field and data type. The whole query is rejected.
type UnsupportedConstraintError struct {
	Field  string
	Kind   ConstraintKind
	Type   IndexDataType
	Reason string
}

func (e *UnsupportedConstraintError) Error() string {
	return fmt.Sprintf("unsupported %s constraint on %s (%s): %s", e.Kind, e.Field, e.Type, e.Reason)
}

// YardError wraps a failed Yard operation.
type YardError struct {
	// Op is the operation, e.g. "store" or "find".
	Op string

	// Reason describes what failed.
	Reason string

	// Err is the underlying cause.
	Err error
}

// NewYardError creates a YardError.
func NewYardError(op, reason string, err error) *YardError {
	return &YardError{Op: op, Reason: reason, Err: err}
}

func (e *YardError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("yard %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("yard %s: %s: %v", e.Op, e.Reason, e.Err)
}

// Unwrap returns the underlying error.
func (e *YardError) Unwrap() error {
	return e.Err
}

// CacheInitialisationError reports a configuration that cannot be applied
// to a Yard: a startup mismatch or a disallowed strategy or level change.
// The Yard keeps its previous configuration.
type CacheInitialisationError struct {
	Reason string
	Err    error
}

// NewCacheInitialisationError creates a CacheInitialisationError.
func NewCacheInitialisationError(reason string, err error) *CacheInitialisationError {
	return &CacheInitialisationError{Reason: reason, Err: err}
}

func (e *CacheInitialisationError) Error() string {
	if e.Err == nil {
		return "cache initialisation: " + e.Reason
	}
	return fmt.Sprintf("cache initialisation: %s: %v", e.Reason, e.Err)
}

// Unwrap returns the underlying error.
func (e *CacheInitialisationError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is or wraps a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsUnsupportedConstraint reports whether err is or wraps an UnsupportedConstraintError.
func IsUnsupportedConstraint(err error) bool {
	var ue *UnsupportedConstraintError
	return errors.As(err, &ue)
}

// IsCacheInitialisation reports whether err is or wraps a CacheInitialisationError.
func IsCacheInitialisation(err error) bool {
	var ce *CacheInitialisationError
	return errors.As(err, &ce)
}
