package models

// ImageNet normalization statistics shared by the pretrained configurations.
var (
	ImageNetDefaultMean = [3]float64{0.485, 0.456, 0.406}
	ImageNetDefaultStd  = [3]float64{0.229, 0.224, 0.225}
)

// DataConfig describes how a model expects its input prepared and where its
// pretrained weights live. Every registered architecture ships one; a copy
// with the caller's class count and channel count is attached to each
// constructed model.
type DataConfig struct {
	URL           string     `json:"url" yaml:"url" toml:"url"`
	Architecture  string     `json:"architecture" yaml:"architecture" toml:"architecture"`
	NumClasses    int        `json:"num_classes" yaml:"num_classes" toml:"num_classes"`
	InputSize     [3]int     `json:"input_size" yaml:"input_size" toml:"input_size"`
	PoolSize      [2]int     `json:"pool_size" yaml:"pool_size" toml:"pool_size"`
	CropPct       float64    `json:"crop_pct" yaml:"crop_pct" toml:"crop_pct"`
	Interpolation string     `json:"interpolation" yaml:"interpolation" toml:"interpolation"`
	Mean          [3]float64 `json:"mean" yaml:"mean" toml:"mean"`
	Std           [3]float64 `json:"std" yaml:"std" toml:"std"`
	FirstConv     string     `json:"first_conv" yaml:"first_conv" toml:"first_conv"`
	Classifier    string     `json:"classifier" yaml:"classifier" toml:"classifier"`
}

// imageNetCfg builds the standard 224x224 ImageNet configuration used by
// every architecture in this package. Variants adjust fields on the copy.
func imageNetCfg(arch, url string) DataConfig {
	return DataConfig{
		URL:           url,
		Architecture:  arch,
		NumClasses:    1000,
		InputSize:     [3]int{3, 224, 224},
		PoolSize:      [2]int{7, 7},
		CropPct:       0.875,
		Interpolation: "bilinear",
		Mean:          ImageNetDefaultMean,
		Std:           ImageNetDefaultStd,
		FirstConv:     "conv1",
		Classifier:    "fc",
	}
}

// withModelDims copies cfg and overlays the class and channel counts a model
// was actually built with, so the attached config always matches the model.
func withModelDims(cfg DataConfig, numClasses, inChans int) DataConfig {
	cfg.NumClasses = numClasses
	cfg.InputSize[0] = inChans
	return cfg
}
