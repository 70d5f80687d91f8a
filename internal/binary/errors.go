package binary

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no candidate executable exists.
	ErrNotFound = errors.New("tool executable not found")

	// ErrUserCancelled is returned when a progress callback stops a download.
	ErrUserCancelled = errors.New("download cancelled by user")

	// ErrNoAsset is returned when a release has no asset for the platform.
	ErrNoAsset = errors.New("no release asset for this platform")
)

// NotFoundError lists where the resolver looked.
type NotFoundError struct {
	Searched []string
}

func (e *NotFoundError) Error() string {
	if len(e.Searched) == 0 {
		return ErrNotFound.Error()
	}
	return fmt.Sprintf("%s (searched %s)", ErrNotFound, strings.Join(e.Searched, ", "))
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotAllowedError is returned for a candidate whose digest is not whitelisted.
type NotAllowedError struct {
	Candidate *Candidate
}

func (e *NotAllowedError) Error() string {
	return fmt.Sprintf("%s is not a known release: sha256 %s is not in the whitelist",
		e.Candidate.Path, e.Candidate.Digest)
}

// UnsupportedError is returned for a candidate older than the minimum version.
type UnsupportedError struct {
	Candidate *Candidate
	Required  Version
	// Err is set when the version could not be determined at all.
	Err error
}

func (e *UnsupportedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: cannot determine version (requires %s): %v", e.Candidate.Path, e.Required, e.Err)
	}
	return fmt.Sprintf("%s: version %s is not supported, requires %s or newer",
		e.Candidate.Path, e.Candidate.Version, e.Required)
}

func (e *UnsupportedError) Unwrap() error {
	return e.Err
}

// OutdatedError is returned for a usable candidate older than the recommended
// version. Candidate is valid and may be kept.
type OutdatedError struct {
	Candidate   *Candidate
	Recommended Version
}

func (e *OutdatedError) Error() string {
	return fmt.Sprintf("%s: version %s is outdated, %s or newer is recommended",
		e.Candidate.Path, e.Candidate.Version, e.Recommended)
}

// DownloadError wraps a failed release query or transfer.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}
