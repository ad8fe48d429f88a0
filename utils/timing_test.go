package utils

import (
	"math"
	"testing"
	"time"
)

func TestDurationUS(t *testing.T) {
	d := 1234*time.Microsecond + 567*time.Nanosecond
	got := DurationUS(d)
	if math.Abs(got-1234.567) > 0.001 {
		t.Fatalf("want 1234.567µs, got %.3f", got)
	}
}

func TestDurationMS(t *testing.T) {
	d := 1500 * time.Microsecond
	got := DurationMS(d)
	if math.Abs(got-1.5) > 0.0001 {
		t.Fatalf("want 1.5ms, got %.4f", got)
	}
}

func TestTimingStatsForwardSummary(t *testing.T) {
	stats := &TimingStats{}
	stats.AddForward(30 * time.Millisecond)
	stats.AddForward(10 * time.Millisecond)
	stats.AddForward(20 * time.Millisecond)

	if got := stats.ForwardTotal(); got != 60*time.Millisecond {
		t.Errorf("ForwardTotal = %v, want 60ms", got)
	}
	if got := stats.ForwardMin(); got != 10*time.Millisecond {
		t.Errorf("ForwardMin = %v, want 10ms", got)
	}
	if got := stats.ForwardMax(); got != 30*time.Millisecond {
		t.Errorf("ForwardMax = %v, want 30ms", got)
	}
	if got := stats.ForwardMean(); got != 20*time.Millisecond {
		t.Errorf("ForwardMean = %v, want 20ms", got)
	}
}

func TestTimingStatsEmpty(t *testing.T) {
	stats := &TimingStats{}
	if stats.ForwardMin() != 0 || stats.ForwardMax() != 0 || stats.ForwardMean() != 0 {
		t.Error("empty stats should report zero durations")
	}
}
