package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// logger is the process-wide structured logger, configured by the root
// command before any subcommand runs.
var logger zerolog.Logger

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "sknet",
	Short: "Selective kernel ResNet models",
	Long: `Build, inspect and run selective kernel ResNet classifiers.

The selective kernel models replace a residual block's 3x3 conv with
several branches of different receptive field, blended per channel by a
learned attention. Available architectures:

  sknet list
  sknet describe skresnet18
  sknet bench --model skresnet18 --runs 10
  sknet predict --model skresnet18 --checkpoint weights.json --image cat.png`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).
			With().Timestamp().Logger()
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(listCmd, describeCmd, benchCmd, predictCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
