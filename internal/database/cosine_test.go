package database

import (
	"errors"
	"math"
	"testing"
)

const epsilon = 1e-9

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 0},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 0},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 1},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, 2},
		{"partial", []float32{1, 1}, []float32{1, 0}, 1 - 1/math.Sqrt2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CosineDistance(tc.a, tc.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tc.want) > 1e-6 {
				t.Errorf("CosineDistance(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestCosineDistance_SelfIsZero(t *testing.T) {
	vectors := [][]float32{
		{1, 0, 0},
		{0.3, -0.7, 0.2, 0.9},
		{1e-3, 5e-4, 2e-3},
		{123.5, -42.25, 7, 0.001},
	}
	for _, v := range vectors {
		d, err := CosineDistance(v, v)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(d) > epsilon {
			t.Errorf("distance(%v, %v) = %v, want 0", v, v, d)
		}
	}
}

func TestCosineDistance_Symmetric(t *testing.T) {
	pairs := [][2][]float32{
		{{1, 0, 0}, {0.9, 0.1, 0}},
		{{0.2, 0.4, -0.1}, {-0.5, 0.3, 0.8}},
		{{3, 1, 4, 1, 5}, {9, 2, 6, 5, 3}},
	}
	for _, p := range pairs {
		ab, err := CosineDistance(p[0], p[1])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ba, err := CosineDistance(p[1], p[0])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ab != ba {
			t.Errorf("distance not symmetric: %v vs %v", ab, ba)
		}
	}
}

func TestCosineDistance_DimensionMismatch(t *testing.T) {
	_, err := CosineDistance([]float32{1, 0}, []float32{1, 0, 0})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestCosineDistance_Degenerate(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
	}{
		{"zero first", []float32{0, 0, 0}, []float32{1, 0, 0}},
		{"zero second", []float32{1, 0, 0}, []float32{0, 0, 0}},
		{"empty", []float32{}, []float32{}},
		{"infinite", []float32{1, 0, 0}, []float32{float32(math.Inf(1)), 0, 0}},
		{"nan", []float32{float32(math.NaN()), 1, 0}, []float32{1, 0, 0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CosineDistance(tc.a, tc.b)
			if !errors.Is(err, ErrDegenerateVector) {
				t.Errorf("expected ErrDegenerateVector, got %v", err)
			}
		})
	}
}

func TestValidateEmbedding(t *testing.T) {
	tests := []struct {
		name    string
		v       []float32
		dim     int
		wantErr error
	}{
		{"ok", []float32{1, 0, 0}, 3, nil},
		{"any dim", []float32{1, 0}, 0, nil},
		{"wrong dim", []float32{1, 0}, 3, ErrDimensionMismatch},
		{"zero", []float32{0, 0, 0}, 3, ErrDegenerateVector},
		{"empty", nil, 0, ErrDegenerateVector},
		{"nan component", []float32{float32(math.NaN()), 1, 0}, 3, ErrDegenerateVector},
		{"positive infinity", []float32{float32(math.Inf(1)), 0, 0}, 3, ErrDegenerateVector},
		{"negative infinity", []float32{0, float32(math.Inf(-1))}, 0, ErrDegenerateVector},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateEmbedding(tc.v, tc.dim)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ValidateEmbedding(%v, %d) = %v, want %v", tc.v, tc.dim, err, tc.wantErr)
			}
		})
	}
}

func TestNoMatchError(t *testing.T) {
	var err error = &NoMatchError{Distance: 0.73}
	if !errors.Is(err, ErrNoMatch) {
		t.Error("expected NoMatchError to match ErrNoMatch")
	}
	var nm *NoMatchError
	if !errors.As(err, &nm) || nm.Distance != 0.73 {
		t.Errorf("expected distance 0.73, got %+v", nm)
	}
}

func TestUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unavailable("load enrollments", cause)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Error("expected ErrStorageUnavailable")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be wrapped")
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want AttendanceStatus
	}{
		{"", StatusCheckIn},
		{"checkin", StatusCheckIn},
		{"Check-In", StatusCheckIn},
		{"check-out", StatusCheckOut},
		{"Late", AttendanceStatus("Late")},
	}
	for _, tc := range tests {
		if got := ParseStatus(tc.in); got != tc.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
