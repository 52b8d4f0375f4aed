package attendance

import (
	"context"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// Gallery is the set of enrolled identities a probe is matched against.
type Gallery interface {
	Len() int
	Search(probe []float32, threshold float64) (facematch.MatchResult, error)
}

// Service identifies a probe and records attendance for the match.
type Service struct {
	gallery   Gallery
	ledger    *Ledger
	threshold float64
	extractor embedding.Extractor
	metrics   *metrics.Metrics
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithExtractor enables marking from images.
func WithExtractor(e embedding.Extractor) ServiceOption {
	return func(s *Service) { s.extractor = e }
}

// WithMetrics records match and mark outcomes.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService creates an attendance service. A probe matches when its cosine
// distance to the closest enrollment is strictly below threshold.
func NewService(gallery Gallery, ledger *Ledger, threshold float64, opts ...ServiceOption) *Service {
	s := &Service{gallery: gallery, ledger: ledger, threshold: threshold}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ledger returns the underlying ledger.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// Identify matches probe against the gallery without recording anything.
func (s *Service) Identify(probe []float32) (facematch.MatchResult, error) {
	if s.gallery.Len() == 0 {
		s.metrics.ObserveMatch(metrics.OutcomeNoEnrollment, -1)
		return facematch.MatchResult{}, database.ErrNoEnrollments
	}

	result, err := s.gallery.Search(probe, s.threshold)
	switch {
	case err != nil:
		s.metrics.ObserveMatch(metrics.Outcome(err), -1)
		return facematch.MatchResult{}, err
	case !result.Matched:
		s.metrics.ObserveMatch(metrics.OutcomeNoMatch, result.Distance)
		return result, &database.NoMatchError{Distance: result.Distance}
	}

	s.metrics.ObserveMatch(metrics.OutcomeMatched, result.Distance)
	return result, nil
}

// Mark records a check-in for the identity matching probe.
func (s *Service) Mark(ctx context.Context, probe []float32, now time.Time) (database.AttendanceEvent, error) {
	return s.MarkWithStatus(ctx, probe, database.StatusCheckIn, now)
}

// MarkWithStatus records an event with the given status for the identity matching probe.
func (s *Service) MarkWithStatus(ctx context.Context, probe []float32, status database.AttendanceStatus, now time.Time) (database.AttendanceEvent, error) {
	start := time.Now()
	ev, err := s.mark(ctx, probe, status, now)
	s.metrics.ObserveMark(metrics.Outcome(err), time.Since(start))
	return ev, err
}

func (s *Service) mark(ctx context.Context, probe []float32, status database.AttendanceStatus, now time.Time) (database.AttendanceEvent, error) {
	result, err := s.Identify(probe)
	if err != nil {
		return database.AttendanceEvent{}, err
	}
	return s.ledger.Record(ctx, result.IdentityID, result.DisplayName, status, now)
}

// MarkImage extracts the probe from image and marks it.
func (s *Service) MarkImage(ctx context.Context, image []byte, status database.AttendanceStatus, now time.Time) (database.AttendanceEvent, error) {
	if s.extractor == nil {
		return database.AttendanceEvent{}, database.ErrExtractorUnavailable
	}
	// An empty gallery needs no extraction round-trip.
	if s.gallery.Len() == 0 {
		s.metrics.ObserveMark(metrics.OutcomeNoEnrollment, 0)
		return database.AttendanceEvent{}, database.ErrNoEnrollments
	}

	probe, err := s.extractor.Extract(ctx, image)
	if err != nil {
		s.metrics.ObserveMark(metrics.Outcome(err), 0)
		return database.AttendanceEvent{}, err
	}
	return s.MarkWithStatus(ctx, probe, status, now)
}
