package domain

import (
	"math"
	"sort"
	"testing"
)

func TestConfidence_FixedPoints(t *testing.T) {
	tests := []struct {
		distance float64
		want     float64
	}{
		{0, 1.0},
		{0.1, 0.95},
		{0.3, 0.85},
		{1, 0.5},
		{2, 0.0},
		{3, 0.0}, // clamped low
	}

	for _, tt := range tests {
		got := Confidence(tt.distance)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Confidence(%g) = %g, want %g", tt.distance, got, tt.want)
		}
	}
}

func TestConfidence_NegativeDistanceUnclamped(t *testing.T) {
	if got := Confidence(-1); got <= 1.0 {
		t.Errorf("Confidence(-1) = %g, want > 1.0 (high side is not clamped)", got)
	}
}

func TestConfidence_MonotonicNonIncreasing(t *testing.T) {
	distances := []float64{0, 0.05, 0.3, 0.31, 0.6, 1.0, 1.5, 2.0, 2.5}
	if !sort.Float64sAreSorted(distances) {
		t.Fatal("test distances must be ascending")
	}

	prev := math.Inf(1)
	for _, d := range distances {
		score := Confidence(d)
		if score > prev {
			t.Fatalf("confidence increased at distance %g: %g > %g", d, score, prev)
		}
		prev = score
	}
}
