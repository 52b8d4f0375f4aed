package database

import (
	"time"
)

// Layouts used for the denormalized date and time columns of attendance events.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// AttendanceStatus is the kind of attendance mark.
type AttendanceStatus string

const (
	StatusCheckIn  AttendanceStatus = "Check-In"
	StatusCheckOut AttendanceStatus = "Check-Out"
)

// ParseStatus maps user input to a status. Empty input means Check-In.
// Unknown values are accepted as-is so deployments can add their own statuses.
func ParseStatus(s string) AttendanceStatus {
	switch s {
	case "", "checkin", "check-in", "Check-In", "CheckIn":
		return StatusCheckIn
	case "checkout", "check-out", "Check-Out", "CheckOut":
		return StatusCheckOut
	default:
		return AttendanceStatus(s)
	}
}

// EnrollmentRecord represents one enrolled identity.
type EnrollmentRecord struct {
	IdentityID  string    // e.g. matriculation number, unique
	DisplayName string    // person name
	Group       string    // e.g. department
	ImageRef    string    // path of the stored source image (not interpreted)
	Embedding   []float32 // face embedding, fixed dimension
	CreatedAt   time.Time
}

// Dim returns the embedding dimension of the record.
func (r EnrollmentRecord) Dim() int {
	return len(r.Embedding)
}

// AttendanceEvent represents one appended attendance mark.
type AttendanceEvent struct {
	ID          string
	IdentityID  string
	DisplayName string // denormalized for reporting
	Date        string // local calendar day, DateLayout
	Time        string // local time of day, TimeLayout
	Status      AttendanceStatus
	RecordedAt  time.Time
}

// DedupKey is the uniqueness key of attendance events.
type DedupKey struct {
	IdentityID string
	Date       string
	Status     AttendanceStatus
}

// Key returns the dedup key of the event.
func (e AttendanceEvent) Key() DedupKey {
	return DedupKey{IdentityID: e.IdentityID, Date: e.Date, Status: e.Status}
}
