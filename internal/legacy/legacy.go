// Package legacy reads the students.csv and attendance.csv files of the
// previous attendance system so they can be imported.
package legacy

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// Column names used by the legacy files.
const (
	colName       = "Name"
	colMatric     = "Matric No"
	colDepartment = "Department"
	colImagePath  = "Image Path"
	colEmbedding  = "Embedding"
	colDate       = "Date"
	colTime       = "Time"
	colStatus     = "Status"
)

// Student is one row of students.csv.
type Student struct {
	Line       int
	Name       string
	IdentityID string
	Department string
	ImagePath  string
	Embedding  []float32
}

// RowError describes a row that could not be parsed.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// table maps header names to column positions.
type table struct {
	r       *csv.Reader
	columns map[string]int
	line    int
}

func newTable(r io.Reader, required ...string) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", database.ErrInvalidInput, name)
		}
	}
	return &table{r: cr, columns: columns, line: 1}, nil
}

// next returns the next row, or io.EOF.
func (t *table) next() ([]string, error) {
	row, err := t.r.Read()
	t.line++
	return row, err
}

func (t *table) get(row []string, name string) string {
	i, ok := t.columns[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// ReadStudents parses students.csv. Rows that fail to parse are returned as
// *RowError values in errs and skipped.
func ReadStudents(r io.Reader) (students []Student, errs []error, err error) {
	t, err := newTable(r, colName, colMatric, colDepartment, colEmbedding)
	if err != nil {
		return nil, nil, err
	}

	for {
		row, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read students: %w", err)
		}

		s := Student{
			Line:       t.line,
			Name:       t.get(row, colName),
			IdentityID: t.get(row, colMatric),
			Department: t.get(row, colDepartment),
			ImagePath:  t.get(row, colImagePath),
		}
		if err := json.Unmarshal([]byte(t.get(row, colEmbedding)), &s.Embedding); err != nil {
			errs = append(errs, &RowError{Line: t.line, Err: fmt.Errorf("%w: bad embedding: %w", database.ErrInvalidInput, err)})
			continue
		}
		students = append(students, s)
	}
	return students, errs, nil
}

// ReadAttendance parses attendance.csv into events in file order.
// Event IDs are left empty; RecordedAt is derived from Date and Time in loc.
func ReadAttendance(r io.Reader, loc *time.Location) (events []database.AttendanceEvent, errs []error, err error) {
	t, err := newTable(r, colName, colMatric, colDate, colTime)
	if err != nil {
		return nil, nil, err
	}

	for {
		row, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read attendance: %w", err)
		}

		date, clock := t.get(row, colDate), t.get(row, colTime)
		at, err := time.ParseInLocation(database.DateLayout+" "+database.TimeLayout, date+" "+clock, loc)
		if err != nil {
			errs = append(errs, &RowError{Line: t.line, Err: fmt.Errorf("%w: bad date or time: %w", database.ErrInvalidInput, err)})
			continue
		}
		id := t.get(row, colMatric)
		if id == "" {
			errs = append(errs, &RowError{Line: t.line, Err: fmt.Errorf("%w: empty %s", database.ErrInvalidInput, colMatric)})
			continue
		}

		events = append(events, database.AttendanceEvent{
			IdentityID:  id,
			DisplayName: t.get(row, colName),
			Date:        date,
			Time:        clock,
			Status:      database.ParseStatus(t.get(row, colStatus)),
			RecordedAt:  at,
		})
	}
	return events, errs, nil
}
