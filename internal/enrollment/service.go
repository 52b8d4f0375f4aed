package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// RegisterRequest holds the fields of a new enrollment.
type RegisterRequest struct {
	Name       string    `json:"name"`
	IdentityID string    `json:"identity_id"`
	Group      string    `json:"group"`
	ImageRef   string    `json:"image_ref,omitempty"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// ImageSaver persists enrollment source images.
type ImageSaver interface {
	Save(data []byte) (string, error)
	Remove(ref string) error
}

// Service registers new identities.
type Service struct {
	store     *Store
	validator Validator
	extractor embedding.Extractor
	images    ImageSaver
	metrics   *metrics.Metrics
	now       func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithValidator sets the field-format validator.
func WithValidator(v Validator) ServiceOption {
	return func(s *Service) { s.validator = v }
}

// WithExtractor enables registration from images.
func WithExtractor(e embedding.Extractor) ServiceOption {
	return func(s *Service) { s.extractor = e }
}

// WithImages stores source images of image registrations.
func WithImages(images ImageSaver) ServiceOption {
	return func(s *Service) { s.images = images }
}

// WithMetrics records enrollment outcomes.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a registration service over store.
func NewService(store *Store, opts ...ServiceOption) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying enrollment store.
func (s *Service) Store() *Store {
	return s.store
}

// Register validates req and enrolls it.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (database.EnrollmentRecord, error) {
	rec, err := s.register(ctx, req)
	s.metrics.ObserveEnrollment(metrics.Outcome(err))
	return rec, err
}

func (s *Service) register(ctx context.Context, req RegisterRequest) (database.EnrollmentRecord, error) {
	req, err := s.checkFields(req)
	if err != nil {
		return database.EnrollmentRecord{}, err
	}

	rec := database.EnrollmentRecord{
		IdentityID:  req.IdentityID,
		DisplayName: req.Name,
		Group:       req.Group,
		ImageRef:    req.ImageRef,
		Embedding:   req.Embedding,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return database.EnrollmentRecord{}, err
	}

	return rec, nil
}

// RegisterImage extracts the embedding from image, stores the image and enrolls the identity.
// Field errors and duplicates are reported before the extractor is called.
func (s *Service) RegisterImage(ctx context.Context, req RegisterRequest, image []byte) (database.EnrollmentRecord, error) {
	rec, err := s.registerImage(ctx, req, image)
	s.metrics.ObserveEnrollment(metrics.Outcome(err))
	return rec, err
}

func (s *Service) registerImage(ctx context.Context, req RegisterRequest, image []byte) (database.EnrollmentRecord, error) {
	if s.extractor == nil {
		return database.EnrollmentRecord{}, fmt.Errorf("%w: no embedding extractor configured", database.ErrExtractorUnavailable)
	}

	req, err := s.checkFields(req)
	if err != nil {
		return database.EnrollmentRecord{}, err
	}
	if _, exists := s.store.FindByID(req.IdentityID); exists {
		return database.EnrollmentRecord{}, database.ErrDuplicateIdentity
	}

	emb, err := s.extractor.Extract(ctx, image)
	if err != nil {
		return database.EnrollmentRecord{}, err
	}
	req.Embedding = emb

	if s.images != nil {
		ref, err := s.images.Save(image)
		if err != nil {
			return database.EnrollmentRecord{}, fmt.Errorf("save image: %w", err)
		}
		req.ImageRef = ref
	}

	rec, err := s.register(ctx, req)
	if err != nil && s.images != nil && req.ImageRef != "" {
		if rmErr := s.images.Remove(req.ImageRef); rmErr != nil {
			log.Printf("Warning: failed to remove image %s: %v", req.ImageRef, rmErr)
		}
	}
	return rec, err
}

// checkFields trims the text fields and runs the validator.
func (s *Service) checkFields(req RegisterRequest) (RegisterRequest, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.IdentityID = strings.TrimSpace(req.IdentityID)
	req.Group = strings.TrimSpace(req.Group)

	var missing []string
	if req.Name == "" {
		missing = append(missing, "name")
	}
	if req.IdentityID == "" {
		missing = append(missing, "identity_id")
	}
	if req.Group == "" {
		missing = append(missing, "group")
	}
	if len(missing) > 0 {
		return req, fmt.Errorf("%w: %s required", database.ErrInvalidInput, strings.Join(missing, ", "))
	}

	if s.validator != nil {
		if err := s.validator.Validate(req); err != nil {
			if !errors.Is(err, database.ErrInvalidInput) {
				err = fmt.Errorf("%w: %w", database.ErrInvalidInput, err)
			}
			return req, err
		}
	}
	return req, nil
}
