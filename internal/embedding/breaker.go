package embedding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/sony/gobreaker"
)

// BreakerConfig holds the circuit breaker settings.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before probing again.
	Timeout time.Duration
	// HalfOpenRequests is the number of probe requests allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultBreakerConfig returns the default circuit breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:      3,
		Timeout:          30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// BreakerExtractor guards an Extractor with a circuit breaker.
// Only unavailability trips the breaker; "no face" and bad images are normal answers.
type BreakerExtractor struct {
	next    Extractor
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerExtractor wraps next with a circuit breaker.
func NewBreakerExtractor(next Extractor, cfg BreakerConfig) *BreakerExtractor {
	settings := gobreaker.Settings{
		Name:        "embedding",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, database.ErrExtractorUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("circuit breaker %s: %s -> %s", name, from, to)
		},
	}
	return &BreakerExtractor{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Extract runs the wrapped extractor unless the circuit is open.
func (b *BreakerExtractor) Extract(ctx context.Context, image []byte) ([]float32, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Extract(ctx, image)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", database.ErrExtractorUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// State returns the breaker state name ("closed", "half-open" or "open").
func (b *BreakerExtractor) State() string {
	return b.breaker.State().String()
}
