package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
)

// EnrollmentsHandler handles enrollment endpoints
type EnrollmentsHandler struct {
	service *enrollment.Service
}

// NewEnrollmentsHandler creates a new enrollments handler
func NewEnrollmentsHandler(service *enrollment.Service) *EnrollmentsHandler {
	return &EnrollmentsHandler{service: service}
}

// EnrollmentResponse is an enrollment without its embedding.
type EnrollmentResponse struct {
	IdentityID  string    `json:"identity_id"`
	DisplayName string    `json:"name"`
	Group       string    `json:"group"`
	ImageRef    string    `json:"image_ref,omitempty"`
	Dim         int       `json:"dim"`
	CreatedAt   time.Time `json:"created_at"`
}

func enrollmentToResponse(rec database.EnrollmentRecord) EnrollmentResponse {
	return EnrollmentResponse{
		IdentityID:  rec.IdentityID,
		DisplayName: rec.DisplayName,
		Group:       rec.Group,
		ImageRef:    rec.ImageRef,
		Dim:         rec.Dim(),
		CreatedAt:   rec.CreatedAt,
	}
}

// List returns all enrollments in insertion order
func (h *EnrollmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	records := h.service.Store().List()
	group := strings.TrimSpace(r.URL.Query().Get("group"))

	result := make([]EnrollmentResponse, 0, len(records))
	for _, rec := range records {
		if group != "" && !strings.EqualFold(rec.Group, group) {
			continue
		}
		result = append(result, enrollmentToResponse(rec))
	}

	respondJSON(w, http.StatusOK, result)
}

// Get returns a single enrollment. Identity ids may contain slashes,
// so the id is taken from the wildcard part of the path.
func (h *EnrollmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, codeInvalidInput, "identity id is required")
		return
	}

	rec, ok := h.service.Store().FindByID(id)
	if !ok {
		respondError(w, http.StatusNotFound, codeNotFound, "enrollment not found")
		return
	}

	respondJSON(w, http.StatusOK, enrollmentToResponse(rec))
}

// Create registers a new identity. It accepts either a JSON body carrying the
// embedding or a multipart form with an "image" file.
func (h *EnrollmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var (
		rec database.EnrollmentRecord
		err error
	)

	if isMultipart(r) {
		var req enrollment.RegisterRequest
		var image []byte
		req, image, err = parseEnrollmentForm(w, r)
		if err != nil {
			respondError(w, http.StatusBadRequest, codeInvalidInput, err.Error())
			return
		}
		rec, err = h.service.RegisterImage(r.Context(), req, image)
	} else {
		var req enrollment.RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, codeInvalidInput, errInvalidRequestBody)
			return
		}
		rec, err = h.service.Register(r.Context(), req)
	}

	if err != nil {
		respondServiceError(w, err)
		return
	}

	log.Printf("Enrolled %s", sanitizeForLog(rec.IdentityID))
	respondJSON(w, http.StatusCreated, enrollmentToResponse(rec))
}

// parseEnrollmentForm reads the enrollment fields and the image from a multipart form.
func parseEnrollmentForm(w http.ResponseWriter, r *http.Request) (enrollment.RegisterRequest, []byte, error) {
	image, err := readUploadedImage(w, r)
	if err != nil {
		return enrollment.RegisterRequest{}, nil, err
	}

	req := enrollment.RegisterRequest{
		Name:       r.FormValue("name"),
		IdentityID: r.FormValue("identity_id"),
		Group:      r.FormValue("group"),
	}
	return req, image, nil
}

// isMultipart reports whether the request carries a multipart form.
func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// readUploadedImage reads the "image" file of a multipart form.
func readUploadedImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, fmt.Errorf("image file is required: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("image file is empty")
	}
	return data, nil
}
