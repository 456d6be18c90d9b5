package domain

import "errors"

// Error taxonomy shared across components. Components wrap these with
// fmt.Errorf("...: %w", err) so callers can test with errors.Is.
var (
	// ErrQuotaExceeded means a write could not complete because available
	// device storage was exhausted. Distinguished from generic I/O errors
	// so the dataset lifecycle can fail the install with an actionable
	// message.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrInvalidKey is a programming-contract violation at the storage
	// adapter boundary: a missing key for an out-of-line store, or an
	// explicit key passed to an in-line store.
	ErrInvalidKey = errors.New("invalid storage key for store keying mode")

	// ErrCancelled marks a download aborted by context cancellation,
	// distinguishable from a download that failed.
	ErrCancelled = errors.New("download cancelled")

	// ErrUnknownDataset means the requested id has no registry descriptor.
	ErrUnknownDataset = errors.New("unknown dataset")

	// ErrInstallInProgress means an install attempt is already running for
	// the dataset id.
	ErrInstallInProgress = errors.New("install already in progress")
)
