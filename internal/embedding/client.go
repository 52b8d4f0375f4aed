// Package embedding talks to the face embedding service.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kozaktomas/face-attendance/internal/database"
)

const (
	defaultEmbeddingURL = "http://localhost:8000"
	defaultTimeout      = 30 * time.Second

	retryInitialInterval = 200 * time.Millisecond
	retryMaxInterval     = 5 * time.Second
)

// Extractor turns an image into a face embedding.
// It returns database.ErrFaceNotDetected when the image holds no usable face.
type Extractor interface {
	Extract(ctx context.Context, image []byte) ([]float32, error)
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Client computes face embeddings using the embedding server
type Client struct {
	baseURL       string
	minConfidence float64
	maxAttempts   int
	client        *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithMinConfidence ignores detections scoring below c.
func WithMinConfidence(c float64) Option {
	return func(cl *Client) { cl.minConfidence = c }
}

// WithMaxAttempts sets how many times an unreachable server is tried per image.
func WithMaxAttempts(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.maxAttempts = n
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(cl *Client) { cl.client = hc }
}

// NewClient creates a new embedding client
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	c := &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		maxAttempts: 1,
		client:      &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extract detects faces in the image and returns the embedding of the most confident one.
func (c *Client) Extract(ctx context.Context, image []byte) ([]float32, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", database.ErrInvalidInput)
	}

	faces, err := c.DetectFaces(ctx, image)
	if err != nil {
		return nil, err
	}

	best := -1
	for i, f := range faces.Faces {
		if len(f.Embedding) == 0 || f.DetScore < c.minConfidence {
			continue
		}
		if best < 0 || f.DetScore > faces.Faces[best].DetScore {
			best = i
		}
	}
	if best < 0 {
		return nil, database.ErrFaceNotDetected
	}
	return faces.Faces[best].Embedding, nil
}

// DetectFaces posts the image to /embed/face and returns all detections.
// An unavailable server is retried with exponential backoff up to the client's attempt limit.
func (c *Client) DetectFaces(ctx context.Context, image []byte) (*FaceResponse, error) {
	body, err := backoff.RetryWithData(func() ([]byte, error) {
		body, err := c.postMultipartImage(ctx, "/embed/face", image)
		if err != nil && !isRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return body, err
	}, c.newBackOff(ctx))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, database.ErrExtractorUnavailable) {
			return nil, fmt.Errorf("%w: %w", database.ErrExtractorUnavailable, ctxErr)
		}
		return nil, err
	}

	var faces FaceResponse
	if err := json.Unmarshal(body, &faces); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %w", database.ErrExtractorUnavailable, err)
	}
	return &faces, nil
}

// newBackOff allows maxAttempts tries in total, stopping early when ctx is done.
func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx)
}

func isRetryable(err error) bool {
	return errors.Is(err, database.ErrExtractorUnavailable)
}

// postMultipartImage constructs a multipart form with the image data and posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", DetectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %w", database.ErrExtractorUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", database.ErrExtractorUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: API error (status %d): %s", database.ErrExtractorUnavailable, resp.StatusCode, string(body))
	default:
		return nil, fmt.Errorf("%w: API error (status %d): %s", database.ErrInvalidInput, resp.StatusCode, string(body))
	}
}

// DetectMIMEType detects the MIME type from image magic bytes
func DetectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	return "application/octet-stream"
}
