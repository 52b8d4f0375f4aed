package legacy

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

func TestReadStudents(t *testing.T) {
	input := "\ufeffName,Matric No,Department,Image Path,Embedding\n" +
		"Ada Obi,U21/ENG/CSC/0001,Computer Science,data/faces/abc.jpg,\"[0.1, -0.2, 0.3]\"\n" +
		"Bola Ade,U21/ENG/CSC/0002,Computer Science,data/faces/def.jpg,not-json\n" +
		"Chi Eze,U21/ENG/CSC/0003,Physics,,\"[1,0,0]\"\n"

	students, rowErrs, err := ReadStudents(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadStudents failed: %v", err)
	}
	if len(students) != 2 {
		t.Fatalf("expected 2 students, got %d", len(students))
	}
	if students[0].IdentityID != "U21/ENG/CSC/0001" || students[0].Department != "Computer Science" {
		t.Errorf("unexpected student %+v", students[0])
	}
	if len(students[0].Embedding) != 3 || students[0].Embedding[1] != -0.2 {
		t.Errorf("unexpected embedding %v", students[0].Embedding)
	}
	if students[1].ImagePath != "" {
		t.Errorf("expected empty image path, got %q", students[1].ImagePath)
	}

	if len(rowErrs) != 1 {
		t.Fatalf("expected 1 row error, got %d", len(rowErrs))
	}
	var rowErr *RowError
	if !errors.As(rowErrs[0], &rowErr) || rowErr.Line != 3 {
		t.Errorf("expected row error on line 3, got %v", rowErrs[0])
	}
	if !errors.Is(rowErrs[0], database.ErrInvalidInput) {
		t.Error("row errors should wrap ErrInvalidInput")
	}
}

func TestReadStudents_MissingColumn(t *testing.T) {
	_, _, err := ReadStudents(strings.NewReader("Name,Department\nAda,CSC\n"))
	if !errors.Is(err, database.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestReadAttendance(t *testing.T) {
	input := "Name,Matric No,Date,Time,Status\n" +
		"Ada Obi,U21/ENG/CSC/0001,2024-03-01,09:00:00,Check-In\n" +
		"Ada Obi,U21/ENG/CSC/0001,2024-03-01,17:00:00,check-out\n" +
		"Bola Ade,U21/ENG/CSC/0002,01/03/2024,09:00,Check-In\n" +
		"Chi Eze,U21/ENG/CSC/0003,2024-03-02,08:15:00,\n"

	events, rowErrs, err := ReadAttendance(strings.NewReader(input), time.UTC)
	if err != nil {
		t.Fatalf("ReadAttendance failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[1].Status != database.StatusCheckOut {
		t.Errorf("expected normalized Check-Out, got %q", events[1].Status)
	}
	if events[2].Status != database.StatusCheckIn {
		t.Errorf("expected default Check-In, got %q", events[2].Status)
	}
	want := time.Date(2024, 3, 2, 8, 15, 0, 0, time.UTC)
	if !events[2].RecordedAt.Equal(want) {
		t.Errorf("expected %v, got %v", want, events[2].RecordedAt)
	}
	if len(rowErrs) != 1 {
		t.Errorf("expected 1 row error, got %d", len(rowErrs))
	}
}
