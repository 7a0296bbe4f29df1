package errors

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalid    = errors.New("invalid")
	ErrTooMany    = errors.New("too many requests")
	ErrInternal   = errors.New("internal")
	ErrNotReady   = errors.New("pipeline not ready")
	ErrExtraction = errors.New("extraction failed")
	ErrSynthesis  = errors.New("synthesis failed")

	ErrConfiguration         = errors.New("configuration error")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrStoreUnavailable      = errors.New("vector store unavailable")
	ErrDimensionMismatch     = errors.New("embedding dimension mismatch")
	ErrDuplicateContent      = errors.New("duplicate content")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailable reports whether err is a transient connectivity failure that a
// caller may retry.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrDependencyUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsFatal reports whether err must abort a whole ingestion run rather than a
// single document.
func IsFatal(err error) bool {
	return IsUnavailable(err) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrConfiguration) ||
		errors.Is(err, context.Canceled)
}
