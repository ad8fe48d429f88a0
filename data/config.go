package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"sknet/models"
)

// LoadConfigFile reads a data configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func LoadConfigFile(path string) (models.DataConfig, error) {
	var cfg models.DataConfig
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ResolveConfig overlays the non-zero fields of a configuration file onto
// a model's attached configuration. An empty path returns base unchanged.
func ResolveConfig(base models.DataConfig, path string) (models.DataConfig, error) {
	if path == "" {
		return base, nil
	}
	file, err := LoadConfigFile(path)
	if err != nil {
		return base, err
	}
	return mergeConfig(base, file), nil
}

func mergeConfig(base, over models.DataConfig) models.DataConfig {
	if over.URL != "" {
		base.URL = over.URL
	}
	if over.Architecture != "" {
		base.Architecture = over.Architecture
	}
	if over.NumClasses != 0 {
		base.NumClasses = over.NumClasses
	}
	if over.InputSize != [3]int{} {
		base.InputSize = over.InputSize
	}
	if over.PoolSize != [2]int{} {
		base.PoolSize = over.PoolSize
	}
	if over.CropPct != 0 {
		base.CropPct = over.CropPct
	}
	if over.Interpolation != "" {
		base.Interpolation = over.Interpolation
	}
	if over.Mean != [3]float64{} {
		base.Mean = over.Mean
	}
	if over.Std != [3]float64{} {
		base.Std = over.Std
	}
	if over.FirstConv != "" {
		base.FirstConv = over.FirstConv
	}
	if over.Classifier != "" {
		base.Classifier = over.Classifier
	}
	return base
}
