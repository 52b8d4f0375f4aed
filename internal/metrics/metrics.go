// Package metrics exposes Prometheus metrics for matching, attendance and enrollment.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess      = "success"
	OutcomeMatched      = "matched"
	OutcomeNoMatch      = "no_match"
	OutcomeNoEnrollment = "no_enrollments"
	OutcomeCooldown     = "cooldown"
	OutcomeDuplicate    = "duplicate"
	OutcomeInvalid      = "invalid"
	OutcomeNoFace       = "no_face"
	OutcomeUnavailable  = "unavailable"
	OutcomeError        = "error"
)

// Metrics holds the collectors on a private registry so several instances can coexist in tests.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	MatchOutcome      *prometheus.CounterVec
	MarkOutcome       *prometheus.CounterVec
	EnrollmentOutcome *prometheus.CounterVec
	MatchDistance     prometheus.Histogram
	MarkLatency       prometheus.Histogram
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		MatchOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "face_attendance_match_total",
			Help: "Identification attempts by outcome",
		}, []string{"outcome"}), // outcome: "matched", "no_match", "no_enrollments", "error"

		MarkOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "face_attendance_mark_total",
			Help: "Attendance mark attempts by outcome",
		}, []string{"outcome"}),

		EnrollmentOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "face_attendance_enrollments_total",
			Help: "Enrollment attempts by outcome",
		}, []string{"outcome"}),

		MatchDistance: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "face_attendance_match_distance",
			Help:    "Closest cosine distance found per identification attempt",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.55, 0.6, 0.7, 0.8, 1, 1.5, 2},
		}),

		MarkLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "face_attendance_mark_duration_seconds",
			Help:    "Duration of mark operations including matching and persistence",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// Handler returns an HTTP handler serving the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveMatch records an identification attempt. Infinite distances are not observed.
func (m *Metrics) ObserveMatch(outcome string, distance float64) {
	if m == nil {
		return
	}
	m.MatchOutcome.WithLabelValues(outcome).Inc()
	if distance >= 0 && distance <= 2 {
		m.MatchDistance.Observe(distance)
	}
}

// ObserveMark records the outcome and duration of a mark attempt.
func (m *Metrics) ObserveMark(outcome string, d time.Duration) {
	if m != nil {
		m.MarkOutcome.WithLabelValues(outcome).Inc()
		m.MarkLatency.Observe(d.Seconds())
	}
}

// ObserveEnrollment records an enrollment attempt.
func (m *Metrics) ObserveEnrollment(outcome string) {
	if m != nil {
		m.EnrollmentOutcome.WithLabelValues(outcome).Inc()
	}
}

// Outcome maps an operation error to a metrics label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, database.ErrNoMatch):
		return OutcomeNoMatch
	case errors.Is(err, database.ErrNoEnrollments):
		return OutcomeNoEnrollment
	case errors.Is(err, database.ErrCooldownActive):
		return OutcomeCooldown
	case errors.Is(err, database.ErrAlreadyRecorded), errors.Is(err, database.ErrDuplicateIdentity):
		return OutcomeDuplicate
	case errors.Is(err, database.ErrInvalidInput),
		errors.Is(err, database.ErrDimensionMismatch),
		errors.Is(err, database.ErrDegenerateVector):
		return OutcomeInvalid
	case errors.Is(err, database.ErrFaceNotDetected):
		return OutcomeNoFace
	case errors.Is(err, database.ErrStorageUnavailable), errors.Is(err, database.ErrExtractorUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeError
	}
}
