package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"sknet/data"
	"sknet/models"
	"sknet/nn"
)

var (
	predictModel      string
	predictCheckpoint string
	predictImage      string
	predictConfigPath string
	predictLabels     string
	predictPretrained bool
	predictNumClasses int
	predictInChans    int
	predictTopK       int
)

// predictCmd runs a single image through a model and prints the top classes
var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Classify an image",
	Long: `Loads weights into the chosen architecture, prepares the image per
the model's data configuration and prints the most likely classes.

Example:
  sknet predict --model skresnet18 --checkpoint weights.json --image cat.png
  sknet predict --model skresnet18 --checkpoint mnist.json --image digit.png \
      --num-classes 10 --in-chans 1 --labels digits.txt`,
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().StringVar(&predictModel, "model", "skresnet18", "architecture to run")
	predictCmd.Flags().StringVar(&predictCheckpoint, "checkpoint", "", "checkpoint file with weights")
	predictCmd.Flags().StringVar(&predictImage, "image", "", "image to classify (png or jpeg)")
	predictCmd.Flags().StringVar(&predictConfigPath, "config", "", "data config file overriding the model's")
	predictCmd.Flags().StringVar(&predictLabels, "labels", "", "class label file, one name per line")
	predictCmd.Flags().BoolVar(&predictPretrained, "pretrained", false, "fetch the pretrained weights from the model config URL")
	predictCmd.Flags().IntVar(&predictNumClasses, "num-classes", 0, "classifier width (0 = architecture default)")
	predictCmd.Flags().IntVar(&predictInChans, "in-chans", 0, "input channels (0 = architecture default)")
	predictCmd.Flags().IntVar(&predictTopK, "topk", 5, "number of classes to print")
}

func runPredict(cmd *cobra.Command, args []string) error {
	if predictImage == "" {
		return fmt.Errorf("--image is required")
	}
	if predictTopK < 1 {
		return fmt.Errorf("--topk must be positive")
	}

	logger.Debug().Str("model", predictModel).Msg("building model")
	model, err := models.Create(predictModel, predictPretrained, predictNumClasses, predictInChans)
	if err != nil {
		return err
	}
	if predictCheckpoint != "" {
		logger.Debug().Str("checkpoint", predictCheckpoint).Msg("loading weights")
		if err := models.LoadCheckpointFile(model, predictCheckpoint, predictNumClasses, predictInChans); err != nil {
			return fmt.Errorf("load checkpoint: %w", err)
		}
	}

	cfg, err := data.ResolveConfig(model.Config(), predictConfigPath)
	if err != nil {
		return err
	}
	input, err := data.PrepareImage(predictImage, cfg)
	if err != nil {
		return err
	}
	logger.Debug().Ints("input_shape", input.Shape).Msg("image prepared")

	logits, err := model.Forward(input)
	if err != nil {
		return err
	}
	probs := nn.Softmax(logits)

	labels, err := readLabels(predictLabels)
	if err != nil {
		return err
	}

	for rank, idx := range topIndices(probs.Data, predictTopK) {
		name := fmt.Sprintf("class %d", idx)
		if idx < len(labels) {
			name = labels[idx]
		}
		fmt.Printf("%d. %-30s %.4f\n", rank+1, name, probs.Data[idx])
	}
	return nil
}

// topIndices returns the indices of the k largest probabilities, best
// first.
func topIndices(probs []float64, k int) []int {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return probs[idx[i]] > probs[idx[j]] })
	if k > len(idx) {
		k = len(idx)
	}
	return idx[:k]
}

// readLabels loads one class name per line; an empty path means no labels.
func readLabels(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n"), nil
}
