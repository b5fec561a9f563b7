// Package errors defines the error taxonomy shared by every KotaDB component.
//
// Kinds are not Go types but marks: construct an error with one of the New*
// helpers below and test membership with errors.Is(err, kotaerrors.NotFound).
package errors

import (
	"fmt"

	cerrors "github.com/cockroachdb/errors"
)

// Sentinel marks. Callers compare with errors.Is, never type assertion.
var (
	InvalidInput = cerrors.New("invalid_input")
	NotFound     = cerrors.New("not_found")
	AlreadyExist = cerrors.New("already_exists")
	Conflict     = cerrors.New("conflict")
	IoTransient  = cerrors.New("io_transient")
	IoFatal      = cerrors.New("io_fatal")
	Corruption   = cerrors.New("corruption")
	Cancelled    = cerrors.New("cancelled")
	Config       = cerrors.New("config")
)

// Is reports whether err carries the given kind mark.
func Is(err error, kind error) bool {
	return cerrors.Is(err, kind)
}

func newMarked(kind error, format string, args ...interface{}) error {
	return cerrors.Mark(cerrors.Newf(format, args...), kind)
}

// NewInvalidInput builds a structured InvalidInput error naming the field and reason.
func NewInvalidInput(field, reason string) error {
	return newMarked(InvalidInput, "invalid %s: %s", field, reason)
}

// NewNotFound builds a NotFound error for the given resource/key.
func NewNotFound(resource string, key fmt.Stringer) error {
	return newMarked(NotFound, "%s not found: %s", resource, key)
}

// NewAlreadyExists builds an AlreadyExists error for a duplicate key collision.
func NewAlreadyExists(resource string, key fmt.Stringer) error {
	return newMarked(AlreadyExist, "%s already exists: %s", resource, key)
}

// NewConflict builds a Conflict error describing a lost optimistic race.
func NewConflict(reason string) error {
	return newMarked(Conflict, "conflict: %s", reason)
}

// NewIoTransient wraps a retryable I/O error.
func NewIoTransient(op string, cause error) error {
	return cerrors.Mark(cerrors.Wrapf(cause, "transient io during %s", op), IoTransient)
}

// NewIoFatal wraps a non-retryable media error.
func NewIoFatal(op string, cause error) error {
	return cerrors.Mark(cerrors.Wrapf(cause, "fatal io during %s", op), IoFatal)
}

// NewCorruption builds a Corruption error for a checksum or invariant violation at rest.
func NewCorruption(subject string, reason string) error {
	return newMarked(Corruption, "corruption in %s: %s", subject, reason)
}

// NewCancelled builds a Cancelled error for an expired deadline.
func NewCancelled(op string) error {
	return newMarked(Cancelled, "%s cancelled: deadline exceeded", op)
}

// NewConfig builds a Config error for a startup-time misconfiguration.
func NewConfig(field, reason string) error {
	return newMarked(Config, "invalid config %s: %s", field, reason)
}

// Retryable reports whether the wrapper stack's retry layer may retry this error.
func Retryable(err error) bool {
	return cerrors.Is(err, IoTransient)
}
