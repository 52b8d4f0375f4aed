package handlers

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
)

func TestAttendanceHandler_MarkJSON(t *testing.T) {
	env := newTestEnv(t, nil)
	env.enroll(t, "S1", "Ada", 1, 0, 0)
	env.enroll(t, "S2", "Bo", 0, 1, 0)

	recorder := httptest.NewRecorder()
	env.attendance.Mark(recorder, jsonRequest(t, "POST", "/api/v1/attendance/mark",
		MarkRequest{Embedding: []float32{0.1, 0.99, 0}}))

	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, recorder.Code, recorder.Body.String())
	}

	var ev EventResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &ev); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if ev.IdentityID != "S2" || ev.DisplayName != "Bo" {
		t.Errorf("expected S2/Bo, got %s/%s", ev.IdentityID, ev.DisplayName)
	}
	if ev.Status != string(database.StatusCheckIn) {
		t.Errorf("expected default status %s, got %s", database.StatusCheckIn, ev.Status)
	}
	if ev.Date != "2024-03-01" || ev.Time != "09:00:00" {
		t.Errorf("expected 2024-03-01 09:00:00, got %s %s", ev.Date, ev.Time)
	}
}

func TestAttendanceHandler_MarkErrors(t *testing.T) {
	tests := []struct {
		name       string
		enroll     bool
		probe      []float32
		wantStatus int
		wantCode   string
	}{
		{"empty gallery", false, []float32{1, 0, 0}, http.StatusConflict, codeNoEnrollments},
		{"no match", true, []float32{0, 0, 1}, http.StatusNotFound, codeNoMatch},
		{"wrong dimension", true, []float32{1, 0}, http.StatusBadRequest, codeDimensionMismatch},
		{"zero probe", true, []float32{0, 0, 0}, http.StatusBadRequest, codeDegenerateVector},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			if tc.enroll {
				env.enroll(t, "S1", "Ada", 1, 0, 0)
			}

			recorder := httptest.NewRecorder()
			env.attendance.Mark(recorder, jsonRequest(t, "POST", "/api/v1/attendance/mark",
				MarkRequest{Embedding: tc.probe}))

			if recorder.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, recorder.Code, recorder.Body.String())
			}
			if got := decodeError(t, recorder).Code; got != tc.wantCode {
				t.Errorf("expected code %s, got %s", tc.wantCode, got)
			}
			if env.attendance.service.Ledger().Len() != 0 {
				t.Error("expected no event to be recorded")
			}
		})
	}
}

func TestAttendanceHandler_MarkNoMatchDistance(t *testing.T) {
	env := newTestEnv(t, nil)
	env.enroll(t, "S1", "Ada", 1, 0, 0)

	recorder := httptest.NewRecorder()
	env.attendance.Mark(recorder, jsonRequest(t, "POST", "/api/v1/attendance/mark",
		MarkRequest{Embedding: []float32{0, 1, 0}}))

	result := decodeError(t, recorder)
	if result.Distance == nil {
		t.Fatal("expected distance in no-match response")
	}
	if *result.Distance < 0.999 || *result.Distance > 1.001 {
		t.Errorf("expected distance 1, got %v", *result.Distance)
	}
}

func TestAttendanceHandler_MarkCooldownThenDuplicate(t *testing.T) {
	env := newTestEnv(t, nil)
	env.enroll(t, "S1", "Ada", 1, 0, 0)
	probe := MarkRequest{Embedding: []float32{1, 0.05, 0}}

	recorder := httptest.NewRecorder()
	env.attendance.Mark(recorder, jsonRequest(t, "POST", "/api/v1/attendance/mark", probe))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("first mark: expected %d, got %d", http.StatusCreated, recorder.Code)
	}

	// Ten seconds later the cooldown rejects the scan.
	env.attendance.now = func() time.Time { return fixedNow.Add(10 * time.Second) }
	recorder = httptest.NewRecorder()
	env.attendance.Mark(recorder, jsonRequest(t, "POST", "/api/v1/attendance/mark", probe))
	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("second mark: expected %d, got %d", http.StatusTooManyRequests, recorder.Code)
	}
	if got := decodeError(t, recorder).RetryAfterSeconds; got == nil || *got != 20 {
		t.Errorf("expected retry_after_seconds 20, got %v", got)
	}

	// Two hours later the same day the dedup rule applies.
	env.attendance.now = func() time.Time { return fixedNow.Add(2 * time.Hour) }
	recorder = httptest.NewRecorder()
	env.attendance.Mark(recorder, jsonRequest(t, "POST", "/api/v1/attendance/mark", probe))
	if recorder.Code != http.StatusConflict {
		t.Fatalf("third mark: expected %d, got %d", http.StatusConflict, recorder.Code)
	}
	if got := decodeError(t, recorder).Code; got != codeAlreadyRecorded {
		t.Errorf("expected code %s, got %s", codeAlreadyRecorded, got)
	}

	// A check-out the same day is a different key.
	probe.Status = "checkout"
	recorder = httptest.NewRecorder()
	env.attendance.Mark(recorder, jsonRequest(t, "POST", "/api/v1/attendance/mark", probe))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("check-out: expected %d, got %d: %s", http.StatusCreated, recorder.Code, recorder.Body.String())
	}

	if n := env.attendance.service.Ledger().Len(); n != 2 {
		t.Errorf("expected 2 events, got %d", n)
	}
}

func TestAttendanceHandler_MarkImage(t *testing.T) {
	ext := &fakeExtractor{emb: []float32{1, 0, 0}}
	env := newTestEnv(t, ext)
	env.enroll(t, "S1", "Ada", 1, 0, 0)

	recorder := httptest.NewRecorder()
	env.attendance.Mark(recorder, multipartRequest(t, "/api/v1/attendance/mark",
		map[string]string{"status": "Check-Out"}, []byte("jpeg")))

	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, recorder.Code, recorder.Body.String())
	}
	var ev EventResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &ev); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if ev.Status != string(database.StatusCheckOut) {
		t.Errorf("expected status %s, got %s", database.StatusCheckOut, ev.Status)
	}
	if ext.calls != 1 {
		t.Errorf("expected 1 extractor call, got %d", ext.calls)
	}
}

func TestAttendanceHandler_MarkImageEmptyGallerySkipsExtraction(t *testing.T) {
	ext := &fakeExtractor{emb: []float32{1, 0, 0}}
	env := newTestEnv(t, ext)

	recorder := httptest.NewRecorder()
	env.attendance.Mark(recorder, multipartRequest(t, "/api/v1/attendance/mark", nil, []byte("jpeg")))

	if recorder.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, recorder.Code)
	}
	if ext.calls != 0 {
		t.Errorf("expected no extractor call, got %d", ext.calls)
	}
}

// seedEvents enrolls two identities and records three events on two days.
func seedEvents(t *testing.T, env *testEnv) {
	t.Helper()
	env.enroll(t, "S1", "Adá Obi", 1, 0, 0)
	env.enroll(t, "S2", "Bo Lee", 0, 1, 0)

	ledger := env.attendance.service.Ledger()
	day1 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	for _, m := range []struct {
		id, name string
		at       time.Time
	}{
		{"S1", "Adá Obi", day1},
		{"S2", "Bo Lee", day1.Add(time.Minute)},
		{"S1", "Adá Obi", day2},
	} {
		if _, err := ledger.Record(t.Context(), m.id, m.name, database.StatusCheckIn, m.at); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
}

func TestAttendanceHandler_List(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantCount int
	}{
		{"all", "", 3},
		{"by identity", "?identity=S1", 2},
		{"by name ignoring accents", "?name=ada", 2},
		{"by date", "?date=2024-03-01", 2},
		{"by range", "?from=2024-03-02&to=2024-03-31", 1},
		{"by status", "?status=checkout", 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			seedEvents(t, env)

			recorder := httptest.NewRecorder()
			env.attendance.List(recorder, httptest.NewRequest("GET", "/api/v1/attendance"+tc.query, nil))

			if recorder.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
			}
			var events []EventResponse
			if err := json.Unmarshal(recorder.Body.Bytes(), &events); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if len(events) != tc.wantCount {
				t.Errorf("expected %d events, got %d", tc.wantCount, len(events))
			}
		})
	}
}

func TestAttendanceHandler_ListInvalidFilter(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, query := range []string{"?from=01-03-2024", "?from=2024-03-05&to=2024-03-01"} {
		recorder := httptest.NewRecorder()
		env.attendance.List(recorder, httptest.NewRequest("GET", "/api/v1/attendance"+query, nil))

		if recorder.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status %d, got %d", query, http.StatusBadRequest, recorder.Code)
		}
	}
}

func TestAttendanceHandler_Summary(t *testing.T) {
	env := newTestEnv(t, nil)
	seedEvents(t, env)

	recorder := httptest.NewRecorder()
	env.attendance.Summary(recorder, httptest.NewRequest("GET", "/api/v1/attendance/summary", nil))

	var summaries []attendance.IdentitySummary
	if err := json.Unmarshal(recorder.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].IdentityID != "S1" || summaries[0].TotalScans != 2 {
		t.Errorf("unexpected first summary: %+v", summaries[0])
	}
	if summaries[0].FirstDate != "2024-03-01" || summaries[0].LastDate != "2024-03-02" {
		t.Errorf("unexpected date range: %s..%s", summaries[0].FirstDate, summaries[0].LastDate)
	}
}

func TestAttendanceHandler_SummaryEmpty(t *testing.T) {
	env := newTestEnv(t, nil)

	recorder := httptest.NewRecorder()
	env.attendance.Summary(recorder, httptest.NewRequest("GET", "/api/v1/attendance/summary", nil))

	if body := recorder.Body.String(); body != "[]\n" {
		t.Errorf("expected empty JSON array, got %q", body)
	}
}

func TestAttendanceHandler_Export(t *testing.T) {
	env := newTestEnv(t, nil)
	seedEvents(t, env)

	recorder := httptest.NewRecorder()
	env.attendance.Export(recorder, httptest.NewRequest("GET", "/api/v1/attendance/export.csv?identity=S1", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	if ct := recorder.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("expected text/csv, got %s", ct)
	}
	if cd := recorder.Header().Get("Content-Disposition"); !strings.Contains(cd, "attendance-2024-03-01.csv") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}

	rows, err := csv.NewReader(recorder.Body).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(attendance.CSVHeader, ",") {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[1][1] != "S1" || rows[1][2] != "2024-03-01" {
		t.Errorf("unexpected first row %v", rows[1])
	}
}
