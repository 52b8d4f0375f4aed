// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// MockRepository is an in-memory implementation of database.Repository.
// It enforces the same uniqueness constraints as the SQL backends.
type MockRepository struct {
	mu          sync.RWMutex
	enrollments []database.EnrollmentRecord
	events      []database.AttendanceEvent
	closed      bool

	// Error injection
	LoadEnrollmentsError  error
	AppendEnrollmentError error
	LoadEventsError       error
	AppendEventError      error
}

// NewMockRepository creates a new empty mock repository
func NewMockRepository() *MockRepository {
	return &MockRepository{}
}

// AddEnrollment seeds an enrollment without any checks
func (m *MockRepository) AddEnrollment(rec database.EnrollmentRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments = append(m.enrollments, rec)
}

// AddEvent seeds an event without any checks
func (m *MockRepository) AddEvent(ev database.AttendanceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

// LoadEnrollments returns all enrollments in insertion order
func (m *MockRepository) LoadEnrollments(ctx context.Context) ([]database.EnrollmentRecord, error) {
	if m.LoadEnrollmentsError != nil {
		return nil, m.LoadEnrollmentsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.EnrollmentRecord, len(m.enrollments))
	copy(out, m.enrollments)
	return out, nil
}

// AppendEnrollment stores an enrollment
func (m *MockRepository) AppendEnrollment(ctx context.Context, rec database.EnrollmentRecord) error {
	if m.AppendEnrollmentError != nil {
		return m.AppendEnrollmentError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.enrollments {
		if existing.IdentityID == rec.IdentityID {
			return database.ErrDuplicateIdentity
		}
	}
	m.enrollments = append(m.enrollments, rec)
	return nil
}

// LoadEvents returns all events in append order
func (m *MockRepository) LoadEvents(ctx context.Context) ([]database.AttendanceEvent, error) {
	if m.LoadEventsError != nil {
		return nil, m.LoadEventsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.AttendanceEvent, len(m.events))
	copy(out, m.events)
	return out, nil
}

// AppendEvent stores an event
func (m *MockRepository) AppendEvent(ctx context.Context, ev database.AttendanceEvent) error {
	if m.AppendEventError != nil {
		return m.AppendEventError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.events {
		if existing.Key() == ev.Key() {
			return database.ErrAlreadyRecorded
		}
	}
	m.events = append(m.events, ev)
	return nil
}

// Close marks the repository as closed
func (m *MockRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// EnrollmentCount returns the number of stored enrollments
func (m *MockRepository) EnrollmentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.enrollments)
}

// EventCount returns the number of stored events
func (m *MockRepository) EventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// IsClosed reports whether Close was called
func (m *MockRepository) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

var _ database.Repository = (*MockRepository)(nil)
