package models

import (
	"fmt"
	"net/http"
	"strings"

	"sknet/nn"
	"sknet/utils"
)

// LoadPretrained fills a freshly built model with the pretrained weights
// named by its data configuration. Models built for one input channel get
// the RGB kernel of the first conv summed into a single channel; a class
// count differing from the checkpoint's leaves the classifier at its
// random initialization.
func LoadPretrained(model *ResNet, cfg DataConfig, numClasses, inChans int) error {
	if numClasses == 0 {
		numClasses = 1000
	}
	if inChans == 0 {
		inChans = 3
	}
	if inChans != 1 && inChans != 3 {
		return fmt.Errorf("pretrained weights support 1 or 3 input channels, got %d", inChans)
	}
	if model.NumClasses() != numClasses {
		return fmt.Errorf("model was built with %d classes but the load asked for %d", model.NumClasses(), numClasses)
	}
	if cfg.URL == "" {
		return fmt.Errorf("no pretrained weights available for %s", cfg.Architecture)
	}
	ckpt, err := fetchCheckpoint(cfg.URL)
	if err != nil {
		return err
	}
	return applyCheckpoint(model, ckpt, cfg.FirstConv, cfg.Classifier)
}

// LoadCheckpointFile loads weights from a local checkpoint into model,
// applying the same channel and classifier adaptations as LoadPretrained.
// Zero numClasses and inChans skip the consistency checks.
func LoadCheckpointFile(model *ResNet, path string, numClasses, inChans int) error {
	if numClasses != 0 && model.NumClasses() != numClasses {
		return fmt.Errorf("model was built with %d classes but the load asked for %d", model.NumClasses(), numClasses)
	}
	if inChans != 0 && inChans != 1 && inChans != 3 {
		return fmt.Errorf("checkpoints support 1 or 3 input channels, got %d", inChans)
	}
	ckpt, err := utils.LoadCheckpoint(path)
	if err != nil {
		return err
	}
	return applyCheckpoint(model, ckpt, model.cfg.FirstConv, model.cfg.Classifier)
}

// fetchCheckpoint reads a checkpoint from an http(s) URL or a local path.
func fetchCheckpoint(source string) (*utils.Checkpoint, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := http.Get(source)
		if err != nil {
			return nil, fmt.Errorf("download checkpoint: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("download checkpoint: unexpected status %s", resp.Status)
		}
		return utils.ReadCheckpoint(resp.Body)
	}
	return utils.LoadCheckpoint(source)
}

// applyCheckpoint copies checkpoint parameters into the model. Two
// adaptations are derived from the shapes themselves: an RGB first conv is
// summed into a single channel when the model expects one, and a
// classifier of a different width is skipped. Every other name and shape
// must match exactly.
func applyCheckpoint(model *ResNet, ckpt *utils.Checkpoint, firstConv, classifier string) error {
	target := nn.Params(model)
	params := make(map[string]utils.TensorData, len(ckpt.Params))
	for name, td := range ckpt.Params {
		params[name] = td
	}

	fcName := firstConv + ".weight"
	if src, ok := params[fcName]; ok {
		if dst, ok := target[fcName]; ok &&
			len(src.Shape) == 4 && len(dst.Shape) == 4 && src.Shape[1] == 3 && dst.Shape[1] == 1 {
			summed, err := sumRGBKernel(src)
			if err != nil {
				return fmt.Errorf("adapt %s: %w", fcName, err)
			}
			params[fcName] = summed
		}
	}

	droppedClassifier := false
	if src, ok := params[classifier+".weight"]; ok {
		if dst, ok := target[classifier+".weight"]; ok &&
			len(src.Shape) > 0 && len(dst.Shape) > 0 && src.Shape[0] != dst.Shape[0] {
			// The classification head does not transfer across class counts.
			delete(params, classifier+".weight")
			delete(params, classifier+".bias")
			droppedClassifier = true
		}
	}

	for name, td := range params {
		dst, ok := target[name]
		if !ok {
			return fmt.Errorf("checkpoint parameter %s has no destination in the model", name)
		}
		if !shapesEqual(dst.Shape, td.Shape) {
			return fmt.Errorf("parameter %s: checkpoint shape %v does not match model shape %v", name, td.Shape, dst.Shape)
		}
		copy(dst.Data, td.Data)
	}
	for name := range target {
		if _, ok := params[name]; ok {
			continue
		}
		if droppedClassifier && (name == classifier+".weight" || name == classifier+".bias") {
			continue
		}
		return fmt.Errorf("checkpoint is missing parameter %s", name)
	}
	return nil
}

// sumRGBKernel collapses a [out, 3, kh, kw] conv kernel to one input
// channel by summing the color planes.
func sumRGBKernel(td utils.TensorData) (utils.TensorData, error) {
	if len(td.Shape) != 4 || td.Shape[1] != 3 {
		return utils.TensorData{}, fmt.Errorf("want a [out, 3, kh, kw] kernel, got shape %v", td.Shape)
	}
	out, kh, kw := td.Shape[0], td.Shape[2], td.Shape[3]
	plane := kh * kw
	sum := make([]float64, out*plane)
	for o := 0; o < out; o++ {
		for c := 0; c < 3; c++ {
			src := (o*3 + c) * plane
			for i := 0; i < plane; i++ {
				sum[o*plane+i] += td.Data[src+i]
			}
		}
	}
	return utils.TensorData{Shape: []int{out, 1, kh, kw}, Data: sum}, nil
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
