package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// AttendanceHandler handles attendance endpoints
type AttendanceHandler struct {
	service *attendance.Service
	now     func() time.Time
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(service *attendance.Service) *AttendanceHandler {
	return &AttendanceHandler{service: service, now: time.Now}
}

// MarkRequest is the JSON body of a mark request
type MarkRequest struct {
	Embedding []float32 `json:"embedding"`
	Status    string    `json:"status"`
}

// EventResponse represents an attendance event
type EventResponse struct {
	ID          string    `json:"id"`
	IdentityID  string    `json:"identity_id"`
	DisplayName string    `json:"name"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Status      string    `json:"status"`
	RecordedAt  time.Time `json:"recorded_at"`
}

func eventToResponse(ev database.AttendanceEvent) EventResponse {
	return EventResponse{
		ID:          ev.ID,
		IdentityID:  ev.IdentityID,
		DisplayName: ev.DisplayName,
		Date:        ev.Date,
		Time:        ev.Time,
		Status:      string(ev.Status),
		RecordedAt:  ev.RecordedAt,
	}
}

// Mark identifies the probe face and records attendance. It accepts either a
// JSON body with the probe embedding or a multipart form with an "image" file.
func (h *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
	var (
		ev  database.AttendanceEvent
		err error
	)

	if isMultipart(r) {
		image, readErr := readUploadedImage(w, r)
		if readErr != nil {
			respondError(w, http.StatusBadRequest, codeInvalidInput, readErr.Error())
			return
		}
		status := database.ParseStatus(strings.TrimSpace(r.FormValue("status")))
		ev, err = h.service.MarkImage(r.Context(), image, status, h.now())
	} else {
		var req MarkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, codeInvalidInput, errInvalidRequestBody)
			return
		}
		status := database.ParseStatus(strings.TrimSpace(req.Status))
		ev, err = h.service.MarkWithStatus(r.Context(), req.Embedding, status, h.now())
	}

	if err != nil {
		respondServiceError(w, err)
		return
	}

	log.Printf("Marked %s (%s)", sanitizeForLog(ev.IdentityID), sanitizeForLog(string(ev.Status)))
	respondJSON(w, http.StatusCreated, eventToResponse(ev))
}

// parseFilter builds a history filter from the query string.
func parseFilter(r *http.Request) (attendance.Filter, error) {
	q := r.URL.Query()
	f := attendance.Filter{
		IdentityID: strings.TrimSpace(q.Get("identity")),
		Name:       strings.TrimSpace(q.Get("name")),
		From:       strings.TrimSpace(q.Get("from")),
		To:         strings.TrimSpace(q.Get("to")),
	}
	if s := strings.TrimSpace(q.Get("status")); s != "" {
		f.Status = database.ParseStatus(s)
	}
	// A single "date" narrows the range to one day.
	if d := strings.TrimSpace(q.Get("date")); d != "" {
		f.From, f.To = d, d
	}
	if err := f.Validate(); err != nil {
		return attendance.Filter{}, err
	}
	return f, nil
}

// List returns the attendance history in append order
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	events := h.service.Ledger().List(f)
	result := make([]EventResponse, 0, len(events))
	for _, ev := range events {
		result = append(result, eventToResponse(ev))
	}

	respondJSON(w, http.StatusOK, result)
}

// Summary returns per-identity scan totals for the filtered history
func (h *AttendanceHandler) Summary(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	summaries := attendance.Summarize(h.service.Ledger().List(f))
	if summaries == nil {
		summaries = []attendance.IdentitySummary{}
	}

	respondJSON(w, http.StatusOK, summaries)
}

// Export streams the filtered history as CSV
func (h *AttendanceHandler) Export(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	filename := fmt.Sprintf("attendance-%s.csv", h.now().Format(database.DateLayout))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)

	if err := attendance.WriteCSV(w, h.service.Ledger().List(f)); err != nil {
		log.Printf("Failed to write CSV export: %v", err)
	}
}
