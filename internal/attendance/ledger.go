// Package attendance records attendance events and marks identified people.
package attendance

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// Ledger is the append-only attendance log.
// Record holds the write lock across the cooldown check, the dedup check and
// the append, so two concurrent marks of one identity cannot both succeed.
type Ledger struct {
	mu     sync.RWMutex
	repo   database.EventRepository
	events []database.AttendanceEvent
	keys   map[database.DedupKey]struct{}

	cooldown time.Duration
	tracker  CooldownTracker
	loc      *time.Location
	newID    func() string
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithCooldown sets the minimum interval between two marks of one identity. 0 disables it.
func WithCooldown(d time.Duration) LedgerOption {
	return func(l *Ledger) { l.cooldown = d }
}

// WithTracker replaces the in-memory cooldown tracker.
func WithTracker(t CooldownTracker) LedgerOption {
	return func(l *Ledger) { l.tracker = t }
}

// WithLocation sets the timezone that defines the calendar day of an event.
func WithLocation(loc *time.Location) LedgerOption {
	return func(l *Ledger) { l.loc = loc }
}

// OpenLedger loads the existing events from repo.
func OpenLedger(ctx context.Context, repo database.EventRepository, opts ...LedgerOption) (*Ledger, error) {
	l := &Ledger{
		repo:     repo,
		keys:     make(map[database.DedupKey]struct{}),
		cooldown: DefaultCooldown,
		loc:      time.Local,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.tracker == nil {
		l.tracker = NewMemoryCooldown()
	}

	events, err := repo.LoadEvents(ctx)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		l.keys[ev.Key()] = struct{}{}
	}
	l.events = events

	return l, nil
}

// Record appends an attendance event for identityID at now.
//
// It fails with a *database.CooldownError when the identity was marked less
// than the cooldown interval ago, and with database.ErrAlreadyRecorded when an
// event with the same identity, day and status exists. Neither failure changes
// any state.
func (l *Ledger) Record(ctx context.Context, identityID, displayName string, status database.AttendanceStatus, now time.Time) (database.AttendanceEvent, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return database.AttendanceEvent{}, fmt.Errorf("%w: identity is required", database.ErrInvalidInput)
	}
	if status == "" {
		status = database.StatusCheckIn
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cooldown > 0 {
		last, ok, err := l.tracker.LastMark(ctx, identityID)
		if err != nil {
			return database.AttendanceEvent{}, database.Unavailable("cooldown lookup", err)
		}
		if ok {
			if elapsed := now.Sub(last); elapsed < l.cooldown {
				return database.AttendanceEvent{}, &database.CooldownError{
					IdentityID: identityID,
					Remaining:  min(l.cooldown-elapsed, l.cooldown),
				}
			}
		}
	}

	local := now.In(l.loc)
	ev := database.AttendanceEvent{
		ID:          l.newID(),
		IdentityID:  identityID,
		DisplayName: displayName,
		Date:        local.Format(database.DateLayout),
		Time:        local.Format(database.TimeLayout),
		Status:      status,
		RecordedAt:  now,
	}

	if _, exists := l.keys[ev.Key()]; exists {
		return database.AttendanceEvent{}, database.ErrAlreadyRecorded
	}

	if err := l.repo.AppendEvent(ctx, ev); err != nil {
		return database.AttendanceEvent{}, err
	}

	l.keys[ev.Key()] = struct{}{}
	l.events = append(l.events, ev)

	if l.cooldown > 0 {
		if err := l.tracker.Touch(ctx, identityID, now); err != nil {
			log.Printf("Warning: failed to update cooldown for %s: %v", sanitizeForLog(identityID), err)
		}
	}

	return ev, nil
}

// Import appends a historical event, e.g. from a legacy export. The cooldown
// does not apply but the dedup rule does. An empty ID is generated.
func (l *Ledger) Import(ctx context.Context, ev database.AttendanceEvent) (database.AttendanceEvent, error) {
	ev.IdentityID = strings.TrimSpace(ev.IdentityID)
	if ev.IdentityID == "" {
		return database.AttendanceEvent{}, fmt.Errorf("%w: identity is required", database.ErrInvalidInput)
	}
	if _, err := time.Parse(database.DateLayout, ev.Date); err != nil {
		return database.AttendanceEvent{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", database.ErrInvalidInput, ev.Date)
	}
	if ev.Status == "" {
		ev.Status = database.StatusCheckIn
	}
	if ev.ID == "" {
		ev.ID = l.newID()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.keys[ev.Key()]; exists {
		return database.AttendanceEvent{}, database.ErrAlreadyRecorded
	}
	if err := l.repo.AppendEvent(ctx, ev); err != nil {
		return database.AttendanceEvent{}, err
	}

	l.keys[ev.Key()] = struct{}{}
	l.events = append(l.events, ev)
	return ev, nil
}

// Len returns the number of recorded events.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// List returns the events matching f in append order.
func (l *Ledger) List(f Filter) []database.AttendanceEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if f.IsZero() {
		return slices.Clone(l.events)
	}
	var out []database.AttendanceEvent
	for _, ev := range l.events {
		if f.Match(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// Filter selects attendance events. Zero fields match everything.
type Filter struct {
	IdentityID string
	Name       string // accent and case insensitive substring of the display name
	From       string // inclusive, YYYY-MM-DD
	To         string // inclusive, YYYY-MM-DD
	Status     database.AttendanceStatus
}

// IsZero reports whether the filter matches every event.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// Validate checks the date bounds.
func (f Filter) Validate() error {
	for _, d := range []string{f.From, f.To} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(database.DateLayout, d); err != nil {
			return fmt.Errorf("%w: date %q must be YYYY-MM-DD", database.ErrInvalidInput, d)
		}
	}
	if f.From != "" && f.To != "" && f.From > f.To {
		return fmt.Errorf("%w: from %s is after to %s", database.ErrInvalidInput, f.From, f.To)
	}
	return nil
}

// Match reports whether ev passes the filter.
func (f Filter) Match(ev database.AttendanceEvent) bool {
	if f.IdentityID != "" && ev.IdentityID != f.IdentityID {
		return false
	}
	if f.Status != "" && ev.Status != f.Status {
		return false
	}
	// ISO dates compare correctly as strings.
	if f.From != "" && ev.Date < f.From {
		return false
	}
	if f.To != "" && ev.Date > f.To {
		return false
	}
	if f.Name != "" && !facematch.NameContains(ev.DisplayName, f.Name) {
		return false
	}
	return true
}

// sanitizeForLog strips newlines so user input cannot forge log lines.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}
