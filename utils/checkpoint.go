package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"sknet/tensor"
)

// CheckpointVersion marks the serialization layout written by this package.
const CheckpointVersion = "1"

// TensorData represents one serialized parameter
type TensorData struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Checkpoint represents a model's full parameter state keyed by dotted
// names ("layer1.0.conv1.paths.0.conv.weight")
type Checkpoint struct {
	Version string                `json:"version"`
	Params  map[string]TensorData `json:"params"`
}

// NewCheckpoint snapshots a named parameter map into a checkpoint
func NewCheckpoint(params map[string]*tensor.Tensor) *Checkpoint {
	ckpt := &Checkpoint{
		Version: CheckpointVersion,
		Params:  make(map[string]TensorData, len(params)),
	}
	for name, t := range params {
		ckpt.Params[name] = TensorToData(t)
	}
	return ckpt
}

// SaveCheckpoint saves a checkpoint to a JSON file
func SaveCheckpoint(filepath string, ckpt *Checkpoint) error {
	data, err := json.MarshalIndent(ckpt, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	return os.WriteFile(filepath, data, 0644)
}

// LoadCheckpoint loads a checkpoint from a JSON file
func LoadCheckpoint(filepath string) (*Checkpoint, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	var ckpt Checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &ckpt, nil
}

// ReadCheckpoint decodes a checkpoint from a stream
func ReadCheckpoint(r io.Reader) (*Checkpoint, error) {
	var ckpt Checkpoint
	if err := json.NewDecoder(r).Decode(&ckpt); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &ckpt, nil
}

// TensorToData converts a tensor to its serializable form
func TensorToData(t *tensor.Tensor) TensorData {
	return TensorData{
		Shape: append([]int{}, t.Shape...),
		Data:  append([]float64{}, t.Data...), // copy
	}
}

// DataToTensor converts serialized data back to a tensor
func DataToTensor(td TensorData) (*tensor.Tensor, error) {
	return tensor.NewWithShape(append([]float64{}, td.Data...), td.Shape...)
}
