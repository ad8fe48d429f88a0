package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"sknet/models"
	"sknet/tensor"
	"sknet/utils"
)

var (
	benchCfg     utils.BenchConfig
	benchSizeStr string
	benchTrain   bool
)

// benchCmd times forward passes of a freshly initialized model
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Time forward passes of an architecture",
	Long: `Runs repeated forward passes over random input and reports per pass
timing.

Example:
  sknet bench --model sksresnet18 --batch 2 --runs 20
  sknet bench --model skresnet18 --input-size 3,160,160`,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().StringVar(&benchCfg.Model, "model", "skresnet18", "architecture to run")
	benchCmd.Flags().IntVar(&benchCfg.BatchSize, "batch", 1, "batch size")
	benchCmd.Flags().IntVar(&benchCfg.Runs, "runs", 10, "timed forward passes")
	benchCmd.Flags().IntVar(&benchCfg.Warmup, "warmup", 1, "untimed warmup passes")
	benchCmd.Flags().StringVar(&benchSizeStr, "input-size", "", "input size as C,H,W (default from the model config)")
	benchCmd.Flags().BoolVar(&benchTrain, "train", false, "run in training mode")
}

func runBench(cmd *cobra.Command, args []string) error {
	start := time.Now()
	stats := &utils.TimingStats{}

	dataCfg, ok := models.DefaultConfig(benchCfg.Model)
	if !ok {
		return fmt.Errorf("unknown architecture %q", benchCfg.Model)
	}
	benchCfg.InputSize = dataCfg.InputSize[:]
	if benchSizeStr != "" {
		parsed, err := utils.ParseInputSize(benchSizeStr)
		if err != nil {
			return fmt.Errorf("parse input size: %w", err)
		}
		benchCfg.InputSize = parsed
	}
	if err := utils.ValidateBenchConfig(&benchCfg); err != nil {
		return err
	}
	chans, height, width := benchCfg.InputSize[0], benchCfg.InputSize[1], benchCfg.InputSize[2]

	t0 := time.Now()
	model, err := models.Create(benchCfg.Model, false, 0, chans)
	if err != nil {
		return err
	}
	if benchTrain {
		model.SetTraining(true)
	}
	stats.ModelInitTime = time.Since(t0)

	t0 = time.Now()
	rng := rand.New(rand.NewSource(42))
	input := tensor.New(benchCfg.BatchSize, chans, height, width)
	for i := range input.Data {
		input.Data[i] = rng.NormFloat64()
	}
	stats.DataPrepTime = time.Since(t0)

	logger.Info().
		Str("model", benchCfg.Model).
		Int("batch", benchCfg.BatchSize).
		Ints("input_size", benchCfg.InputSize).
		Bool("train", benchTrain).
		Msg("starting benchmark")

	for i := 0; i < benchCfg.Warmup; i++ {
		if _, err := model.Forward(input); err != nil {
			return fmt.Errorf("warmup pass: %w", err)
		}
	}
	for i := 0; i < benchCfg.Runs; i++ {
		t := time.Now()
		if _, err := model.Forward(input); err != nil {
			return fmt.Errorf("forward pass %d: %w", i, err)
		}
		d := time.Since(t)
		stats.AddForward(d)
		logger.Debug().Int("run", i).Float64("ms", utils.DurationMS(d)).Msg("forward pass")
	}
	stats.TotalTime = time.Since(start)

	logger.Info().
		Float64("min_ms", utils.DurationMS(stats.ForwardMin())).
		Float64("mean_ms", utils.DurationMS(stats.ForwardMean())).
		Float64("max_ms", utils.DurationMS(stats.ForwardMax())).
		Msg("benchmark complete")
	utils.PrintTimingStats(stats)
	return nil
}
