package utils

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Verbose controls whether timing statistics are printed.
// Set to false to suppress output.
var Verbose = true

// Output is the writer where timing statistics are printed.
// Defaults to os.Stdout.
var Output io.Writer = os.Stdout

// TimingStats holds timing information for a benchmark run
type TimingStats struct {
	TotalTime     time.Duration
	ModelInitTime time.Duration
	DataPrepTime  time.Duration
	ForwardTimes  []time.Duration
}

// AddForward records the duration of one forward pass
func (s *TimingStats) AddForward(d time.Duration) {
	s.ForwardTimes = append(s.ForwardTimes, d)
}

// ForwardTotal sums all recorded forward passes
func (s *TimingStats) ForwardTotal() time.Duration {
	var total time.Duration
	for _, d := range s.ForwardTimes {
		total += d
	}
	return total
}

// ForwardMin returns the fastest recorded pass, zero if none
func (s *TimingStats) ForwardMin() time.Duration {
	if len(s.ForwardTimes) == 0 {
		return 0
	}
	min := s.ForwardTimes[0]
	for _, d := range s.ForwardTimes[1:] {
		if d < min {
			min = d
		}
	}
	return min
}

// ForwardMax returns the slowest recorded pass, zero if none
func (s *TimingStats) ForwardMax() time.Duration {
	if len(s.ForwardTimes) == 0 {
		return 0
	}
	max := s.ForwardTimes[0]
	for _, d := range s.ForwardTimes[1:] {
		if d > max {
			max = d
		}
	}
	return max
}

// ForwardMean returns the average recorded pass, zero if none
func (s *TimingStats) ForwardMean() time.Duration {
	if len(s.ForwardTimes) == 0 {
		return 0
	}
	return s.ForwardTotal() / time.Duration(len(s.ForwardTimes))
}

// PrintTimingStats prints detailed timing statistics.
// Respects the Verbose flag - does nothing if Verbose is false.
func PrintTimingStats(stats *TimingStats) {
	if !Verbose {
		return
	}
	runs := len(stats.ForwardTimes)
	fmt.Fprintln(Output, "\n=== TIMING STATISTICS ===")
	fmt.Fprintf(Output, "Total time: %v\n", stats.TotalTime)
	fmt.Fprintf(Output, "Forward passes: %d\n", runs)
	fmt.Fprintln(Output, "\nBreakdown by operation:")
	fmt.Fprintf(Output, "  Model initialization: %v (%.1f%%)\n", stats.ModelInitTime, float64(stats.ModelInitTime)/float64(stats.TotalTime)*100)
	fmt.Fprintf(Output, "  Data preparation: %v (%.1f%%)\n", stats.DataPrepTime, float64(stats.DataPrepTime)/float64(stats.TotalTime)*100)
	fmt.Fprintf(Output, "  Forward passes: %v (%.1f%%)\n", stats.ForwardTotal(), float64(stats.ForwardTotal())/float64(stats.TotalTime)*100)
	if runs > 0 {
		fmt.Fprintln(Output, "\nPerformance metrics:")
		fmt.Fprintf(Output, "  Fastest pass: %v\n", stats.ForwardMin())
		fmt.Fprintf(Output, "  Average pass: %v\n", stats.ForwardMean())
		fmt.Fprintf(Output, "  Slowest pass: %v\n", stats.ForwardMax())
	}
}

// DurationUS converts any time.Duration to micro-seconds as float64
func DurationUS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1_000.0
}

// DurationMS converts any time.Duration to milli-seconds as float64
func DurationMS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1_000_000.0
}
