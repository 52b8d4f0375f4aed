package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// LoadEvents returns all attendance events in append order.
func (s *Store) LoadEvents(ctx context.Context) ([]database.AttendanceEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identity_id, display_name, event_date, event_time, status, recorded_at
		FROM attendance_events
		ORDER BY seq
	`)
	if err != nil {
		return nil, database.Unavailable("query attendance events", err)
	}
	defer rows.Close()

	var events []database.AttendanceEvent
	for rows.Next() {
		var ev database.AttendanceEvent
		var status, recordedAt string
		if err := rows.Scan(&ev.ID, &ev.IdentityID, &ev.DisplayName, &ev.Date, &ev.Time, &status, &recordedAt); err != nil {
			return nil, database.Unavailable("load attendance events", fmt.Errorf("scan event: %w", err))
		}
		ev.Status = database.AttendanceStatus(status)
		ev.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Unavailable("load attendance events", fmt.Errorf("iterate events: %w", err))
	}

	return events, nil
}

// AppendEvent stores a new attendance event.
func (s *Store) AppendEvent(ctx context.Context, ev database.AttendanceEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance_events (id, identity_id, display_name, event_date, event_time, status, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.IdentityID, ev.DisplayName, ev.Date, ev.Time, string(ev.Status),
		ev.RecordedAt.UTC().Format(time.RFC3339Nano))
	if s.dialect.isDuplicate(err) {
		return database.ErrAlreadyRecorded
	}
	if err != nil {
		return database.Unavailable("save attendance event", err)
	}
	return nil
}
