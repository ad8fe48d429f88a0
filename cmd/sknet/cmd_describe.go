package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sknet/models"
	"sknet/nn"
)

var (
	describeNumClasses int
	describeInChans    int
)

// describeCmd builds a model and reports its size and data configuration
var describeCmd = &cobra.Command{
	Use:   "describe [architecture]",
	Short: "Show an architecture's configuration and size",
	Long: `Builds the architecture and prints its feature width, state tensor
count and attached data configuration.

Example:
  sknet describe skresnet26d
  sknet describe skresnet18 --num-classes 10 --in-chans 1`,
	Args: cobra.ExactArgs(1),
	RunE: runDescribe,
}

func init() {
	describeCmd.Flags().IntVar(&describeNumClasses, "num-classes", 0, "classifier width (0 = architecture default)")
	describeCmd.Flags().IntVar(&describeInChans, "in-chans", 0, "input channels (0 = architecture default)")
}

func runDescribe(cmd *cobra.Command, args []string) error {
	name := args[0]
	if !models.IsModel(name) {
		return fmt.Errorf("unknown architecture %q", name)
	}
	logger.Debug().Str("model", name).Msg("building model")
	model, err := models.Create(name, false, describeNumClasses, describeInChans)
	if err != nil {
		return err
	}

	params := nn.Params(model)
	total := 0
	for _, t := range params {
		total += t.Numel()
	}

	cfgYAML, err := yaml.Marshal(model.Config())
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}

	fmt.Printf("architecture: %s\n", name)
	fmt.Printf("features:     %d\n", model.Features())
	fmt.Printf("classes:      %d\n", model.NumClasses())
	fmt.Printf("state:        %d tensors, %d values\n", len(params), total)
	fmt.Println("\ndata config:")
	fmt.Print(string(cfgYAML))
	return nil
}
