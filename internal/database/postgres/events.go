package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// LoadEvents returns all attendance events in append order.
func (r *Repository) LoadEvents(ctx context.Context) ([]database.AttendanceEvent, error) {
	query := `
		SELECT id, identity_id, display_name, event_date, event_time, status, recorded_at
		FROM attendance_events
		ORDER BY seq
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, database.Unavailable("query attendance events", err)
	}
	defer rows.Close()

	var events []database.AttendanceEvent
	for rows.Next() {
		var ev database.AttendanceEvent
		var status string
		if err := rows.Scan(
			&ev.ID,
			&ev.IdentityID,
			&ev.DisplayName,
			&ev.Date,
			&ev.Time,
			&status,
			&ev.RecordedAt,
		); err != nil {
			return nil, database.Unavailable("load attendance events", fmt.Errorf("scan event: %w", err))
		}
		ev.Status = database.AttendanceStatus(status)
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, database.Unavailable("load attendance events", fmt.Errorf("iterate events: %w", err))
	}

	return events, nil
}

// AppendEvent stores a new attendance event.
// The (identity_id, event_date, status) constraint backs the ledger's dedup rule across processes.
func (r *Repository) AppendEvent(ctx context.Context, ev database.AttendanceEvent) error {
	query := `
		INSERT INTO attendance_events (id, identity_id, display_name, event_date, event_time, status, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		ev.ID, ev.IdentityID, ev.DisplayName, ev.Date, ev.Time, string(ev.Status), ev.RecordedAt,
	)
	if isUniqueViolation(err) {
		return database.ErrAlreadyRecorded
	}
	if err != nil {
		return database.Unavailable("save attendance event", err)
	}
	return nil
}
