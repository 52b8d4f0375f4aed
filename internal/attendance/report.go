package attendance

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// CSVHeader is the column layout of exported attendance history.
var CSVHeader = []string{"Name", "Matric No", "Date", "Time", "Status"}

// IdentitySummary aggregates the events of one identity.
type IdentitySummary struct {
	IdentityID  string `json:"identity_id"`
	DisplayName string `json:"display_name"`
	TotalScans  int    `json:"total_scans"`
	FirstDate   string `json:"first_date"`
	LastDate    string `json:"last_date"`
}

// Summarize counts events per identity, ordered by first appearance.
func Summarize(events []database.AttendanceEvent) []IdentitySummary {
	var out []IdentitySummary
	index := make(map[string]int)

	for _, ev := range events {
		i, ok := index[ev.IdentityID]
		if !ok {
			index[ev.IdentityID] = len(out)
			out = append(out, IdentitySummary{
				IdentityID:  ev.IdentityID,
				DisplayName: ev.DisplayName,
				FirstDate:   ev.Date,
				LastDate:    ev.Date,
			})
			i = len(out) - 1
		}
		s := &out[i]
		s.TotalScans++
		if ev.Date < s.FirstDate {
			s.FirstDate = ev.Date
		}
		if ev.Date > s.LastDate {
			s.LastDate = ev.Date
		}
	}
	return out
}

// WriteCSV writes events with a header row.
func WriteCSV(w io.Writer, events []database.AttendanceEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, ev := range events {
		if err := cw.Write([]string{ev.DisplayName, ev.IdentityID, ev.Date, ev.Time, string(ev.Status)}); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
