package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// BenchConfig holds benchmark configuration
type BenchConfig struct {
	Model     string
	BatchSize int
	Runs      int
	Warmup    int
	InputSize []int // channels, height, width
}

// ParseInputSize parses an input size string like "3,224,224" into a slice
// of integers
func ParseInputSize(sizeStr string) ([]int, error) {
	parts := strings.Split(sizeStr, ",")
	size := make([]int, len(parts))
	for i, s := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		size[i] = n
	}
	return size, nil
}

// ValidateBenchConfig validates benchmark configuration
func ValidateBenchConfig(config *BenchConfig) error {
	if config.Model == "" {
		return fmt.Errorf("model name must not be empty")
	}

	if config.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}

	if config.Runs <= 0 {
		return fmt.Errorf("runs must be positive")
	}

	if config.Warmup < 0 {
		return fmt.Errorf("warmup must not be negative")
	}

	if len(config.InputSize) != 3 {
		return fmt.Errorf("input size must have 3 dimensions (channels, height, width)")
	}
	for _, d := range config.InputSize {
		if d <= 0 {
			return fmt.Errorf("input size dimensions must be positive")
		}
	}

	return nil
}
