package database

import (
	"errors"
	"fmt"
	"time"
)

// Vector errors.
var (
	// ErrDimensionMismatch is returned when two embeddings of different length are compared
	// or when an embedding does not have the store dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrDegenerateVector is returned when an embedding has zero magnitude.
	ErrDegenerateVector = errors.New("degenerate embedding (zero magnitude)")
)

// Registration errors.
var (
	ErrDuplicateIdentity = errors.New("identity already enrolled")
	ErrInvalidInput      = errors.New("invalid input")
)

// Attendance errors.
var (
	ErrNoEnrollments   = errors.New("no enrollments")
	ErrNoMatch         = errors.New("no matching identity")
	ErrCooldownActive  = errors.New("attendance cooldown active")
	ErrAlreadyRecorded = errors.New("attendance already recorded")
)

// Collaborator errors.
var (
	// ErrFaceNotDetected is returned when the extractor finds no face in the image.
	ErrFaceNotDetected = errors.New("face not detected")

	// ErrExtractorUnavailable is returned when the embedding service cannot be reached.
	ErrExtractorUnavailable = errors.New("embedding extractor unavailable")

	// ErrStorageUnavailable wraps any unexpected failure of the persistence backend.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// NoMatchError reports the closest distance found when no enrollment was within the threshold.
type NoMatchError struct {
	Distance float64
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("%s (closest distance %.4f)", ErrNoMatch, e.Distance)
}

// Is makes errors.Is(err, ErrNoMatch) work for *NoMatchError.
func (e *NoMatchError) Is(target error) bool {
	return target == ErrNoMatch
}

// CooldownError reports how long the caller has to wait before the identity can be marked again.
type CooldownError struct {
	IdentityID string
	Remaining  time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s for %s (retry in %s)", ErrCooldownActive, e.IdentityID, e.Remaining.Round(time.Second))
}

// Is makes errors.Is(err, ErrCooldownActive) work for *CooldownError.
func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldownActive
}

// Unavailable wraps a backend failure so callers can detect it with ErrStorageUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
