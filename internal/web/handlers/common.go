package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// maxUploadSize limits multipart image uploads.
const maxUploadSize = 10 << 20

// Stable error codes returned in the "code" field of error responses.
const (
	codeInvalidInput      = "INVALID_INPUT"
	codeDimensionMismatch = "DIMENSION_MISMATCH"
	codeDegenerateVector  = "DEGENERATE_VECTOR"
	codeFaceNotDetected   = "FACE_NOT_DETECTED"
	codeDuplicateIdentity = "DUPLICATE_IDENTITY"
	codeAlreadyRecorded   = "ALREADY_RECORDED"
	codeNoEnrollments     = "NO_ENROLLMENTS"
	codeCooldownActive    = "COOLDOWN_ACTIVE"
	codeNoMatch           = "NO_MATCH"
	codeNotFound          = "NOT_FOUND"
	codeExtractorDown     = "EXTRACTOR_UNAVAILABLE"
	codeStorageDown       = "STORAGE_UNAVAILABLE"
	codeInternal          = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error             string   `json:"error"`
	Code              string   `json:"code,omitempty"`
	Distance          *float64 `json:"distance,omitempty"`
	RetryAfterSeconds *int     `json:"retry_after_seconds,omitempty"`
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// respondServiceError maps a service error to its status code and error code.
func respondServiceError(w http.ResponseWriter, err error) {
	var noMatch *database.NoMatchError
	var cooldown *database.CooldownError

	switch {
	case errors.As(err, &noMatch):
		resp := ErrorResponse{Error: err.Error(), Code: codeNoMatch}
		if !math.IsInf(noMatch.Distance, 0) && !math.IsNaN(noMatch.Distance) {
			d := noMatch.Distance
			resp.Distance = &d
		}
		respondJSON(w, http.StatusNotFound, resp)
	case errors.As(err, &cooldown):
		secs := int(math.Ceil(cooldown.Remaining.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		respondJSON(w, http.StatusTooManyRequests, ErrorResponse{
			Error:             err.Error(),
			Code:              codeCooldownActive,
			RetryAfterSeconds: &secs,
		})
	default:
		status, code := classifyError(err)
		if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
			log.Printf("Request failed: %s", sanitizeForLog(err.Error()))
		}
		respondError(w, status, code, err.Error())
	}
}

// classifyError returns the HTTP status and error code for err.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, database.ErrDimensionMismatch):
		return http.StatusBadRequest, codeDimensionMismatch
	case errors.Is(err, database.ErrDegenerateVector):
		return http.StatusBadRequest, codeDegenerateVector
	case errors.Is(err, database.ErrInvalidInput):
		return http.StatusBadRequest, codeInvalidInput
	case errors.Is(err, database.ErrFaceNotDetected):
		return http.StatusUnprocessableEntity, codeFaceNotDetected
	case errors.Is(err, database.ErrDuplicateIdentity):
		return http.StatusConflict, codeDuplicateIdentity
	case errors.Is(err, database.ErrAlreadyRecorded):
		return http.StatusConflict, codeAlreadyRecorded
	case errors.Is(err, database.ErrNoEnrollments):
		return http.StatusConflict, codeNoEnrollments
	case errors.Is(err, database.ErrCooldownActive):
		return http.StatusTooManyRequests, codeCooldownActive
	case errors.Is(err, database.ErrNoMatch):
		return http.StatusNotFound, codeNoMatch
	case errors.Is(err, database.ErrExtractorUnavailable):
		return http.StatusServiceUnavailable, codeExtractorDown
	case errors.Is(err, database.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, codeStorageDown
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
