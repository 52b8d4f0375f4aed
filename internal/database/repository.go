package database

import (
	"context"
)

// EnrollmentRepository persists enrollment records.
type EnrollmentRepository interface {
	// LoadEnrollments returns all enrollments in insertion order
	LoadEnrollments(ctx context.Context) ([]EnrollmentRecord, error)
	// AppendEnrollment stores a new enrollment.
	// Returns ErrDuplicateIdentity if the identity already exists in the backend.
	AppendEnrollment(ctx context.Context, rec EnrollmentRecord) error
}

// EventRepository persists attendance events.
type EventRepository interface {
	// LoadEvents returns all events in append order
	LoadEvents(ctx context.Context) ([]AttendanceEvent, error)
	// AppendEvent stores a new event.
	// Returns ErrAlreadyRecorded if (identity, date, status) already exists in the backend.
	AppendEvent(ctx context.Context, ev AttendanceEvent) error
}

// Repository is a complete persistence backend.
type Repository interface {
	EnrollmentRepository
	EventRepository

	// Close releases the backend connection
	Close() error
}
