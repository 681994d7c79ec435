// Package errors defines the error taxonomy used throughout MediaStore.
package errors

import (
	stderrors "errors"
	"fmt"
)

// StorageError represents a MediaStore error with a machine-readable code,
// human-readable message, and the HTTP status code to surface at the boundary.
type StorageError struct {
	// Code is the error code (e.g., "NotFound", "PreconditionFailed").
	Code string
	// Message is a human-readable description of the error.
	Message string
	// HTTPStatus is the HTTP status code to return (e.g., 404, 400).
	HTTPStatus int
}

// Error implements the error interface for StorageError.
func (e *StorageError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.HTTPStatus, e.Message)
}

// WithMessagef returns a copy of the StorageError with a formatted message.
// The original predeclared value is never mutated.
func (e *StorageError) WithMessagef(format string, args ...any) *StorageError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Is allows errors.Is matching against the predeclared values by code.
func (e *StorageError) Is(target error) bool {
	var se *StorageError
	if stderrors.As(target, &se) {
		return e.Code == se.Code
	}
	return false
}

// DuplicateOutcome tags the branch the duplicate handling policy took, so
// callers can dispatch without matching message substrings.
type DuplicateOutcome string

const (
	// DuplicateNoExistingRecord: no record is registered under the
	// fingerprint; the target record was relinked and nothing deleted.
	DuplicateNoExistingRecord DuplicateOutcome = "no-existing-record"
	// DuplicateMetadataUnchanged: a registered record exists with the same
	// metadata; the redundant new record was deleted.
	DuplicateMetadataUnchanged DuplicateOutcome = "metadata-unchanged"
	// DuplicateMetadataUpdated: a registered record exists and its metadata
	// was refreshed from the incoming record before deleting it.
	DuplicateMetadataUpdated DuplicateOutcome = "metadata-updated"
	// DuplicateKeyCollision: the exact derived key already exists, reported
	// for transcode uploads where no policy runs.
	DuplicateKeyCollision DuplicateOutcome = "key-collision"
)

// DuplicateFileError signals that the content fingerprint of an upload is
// already present in the object store. It carries the conflicting key and
// the fingerprint so callers can report which existing object matched.
type DuplicateFileError struct {
	// Message is the human-readable explanation of which branch was taken.
	Message string
	// ExistingKey is the object key that already holds this content.
	ExistingKey string
	// Fingerprint is the content digest shared by both files.
	Fingerprint string
	// Outcome tags the policy branch behind Message.
	Outcome DuplicateOutcome
}

// Error implements the error interface for DuplicateFileError.
func (e *DuplicateFileError) Error() string {
	return e.Message
}

// IsDuplicate reports whether err is (or wraps) a DuplicateFileError.
func IsDuplicate(err error) bool {
	var dup *DuplicateFileError
	return stderrors.As(err, &dup)
}

// AsDuplicate unwraps err into a DuplicateFileError, or returns nil.
func AsDuplicate(err error) *DuplicateFileError {
	var dup *DuplicateFileError
	if stderrors.As(err, &dup) {
		return dup
	}
	return nil
}

// Pre-defined errors for common conditions.
var (
	// ErrNotFound is returned when a referenced mediafile or ticket is absent
	// in the collection service.
	ErrNotFound = &StorageError{
		Code:       "NotFound",
		Message:    "The referenced resource does not exist",
		HTTPStatus: 404,
	}

	// ErrFileNotFound is returned when the object store reports a key absent
	// on read.
	ErrFileNotFound = &StorageError{
		Code:       "FileNotFound",
		Message:    "The specified file does not exist",
		HTTPStatus: 404,
	}

	// ErrPreconditionFailed is returned when an upload arrives without a
	// mediafile id or ticket, or without a resolvable filename.
	ErrPreconditionFailed = &StorageError{
		Code:       "PreconditionFailed",
		Message:    "A required upload precondition was not met",
		HTTPStatus: 400,
	}

	// ErrUpstreamService is returned for non-404 failures talking to the
	// collection or job service.
	ErrUpstreamService = &StorageError{
		Code:       "UpstreamServiceError",
		Message:    "The upstream metadata service returned an error",
		HTTPStatus: 502,
	}

	// ErrTransport is returned for object-store or message-bus connectivity
	// failures.
	ErrTransport = &StorageError{
		Code:       "TransportError",
		Message:    "A storage or message-bus transport failure occurred",
		HTTPStatus: 503,
	}

	// ErrInvalidRange is returned when a Range header cannot be satisfied.
	ErrInvalidRange = &StorageError{
		Code:       "InvalidRange",
		Message:    "The requested range is not satisfiable",
		HTTPStatus: 416,
	}
)
