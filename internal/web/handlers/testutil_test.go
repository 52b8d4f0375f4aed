package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
)

// fixedNow is the clock used by handler tests.
var fixedNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeExtractor returns a fixed embedding or error.
type fakeExtractor struct {
	emb   []float32
	err   error
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, image []byte) ([]float32, error) {
	f.calls++
	return f.emb, f.err
}

// testEnv wires handlers on top of an in-memory repository with 3-d embeddings.
type testEnv struct {
	repo        *mock.MockRepository
	enrollments *EnrollmentsHandler
	attendance  *AttendanceHandler
}

func newTestEnv(t *testing.T, ext embedding.Extractor) *testEnv {
	t.Helper()
	ctx := context.Background()
	repo := mock.NewMockRepository()

	store, err := enrollment.Open(ctx, repo, 3)
	if err != nil {
		t.Fatalf("enrollment.Open failed: %v", err)
	}
	ledger, err := attendance.OpenLedger(ctx, repo, attendance.WithLocation(time.UTC))
	if err != nil {
		t.Fatalf("OpenLedger failed: %v", err)
	}

	var enrollOpts []enrollment.ServiceOption
	var markOpts []attendance.ServiceOption
	if ext != nil {
		enrollOpts = append(enrollOpts, enrollment.WithExtractor(ext))
		markOpts = append(markOpts, attendance.WithExtractor(ext))
	}
	enrollOpts = append(enrollOpts, enrollment.WithClock(func() time.Time { return fixedNow }))

	att := NewAttendanceHandler(attendance.NewService(store, ledger, 0.5, markOpts...))
	att.now = func() time.Time { return fixedNow }

	return &testEnv{
		repo:        repo,
		enrollments: NewEnrollmentsHandler(enrollment.NewService(store, enrollOpts...)),
		attendance:  att,
	}
}

// enroll registers an identity through the service.
func (e *testEnv) enroll(t *testing.T, id, name string, emb ...float32) {
	t.Helper()
	_, err := e.enrollments.service.Register(context.Background(), enrollment.RegisterRequest{
		Name: name, IdentityID: id, Group: "CSC", Embedding: emb,
	})
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", id, err)
	}
}

// jsonRequest builds a request with a JSON body.
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest builds a multipart request with the given fields and an optional image.
func multipartRequest(t *testing.T, path string, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if image != nil {
		part, err := mw.CreateFormFile("image", "face.jpg")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write(image)
	}
	mw.Close()

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeError decodes an ErrorResponse body.
func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var result ErrorResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal error response %q: %v", recorder.Body.String(), err)
	}
	return result
}
