package models

import (
	"fmt"
	"path"
	"sort"
)

// FactoryFunc builds a registered architecture. Zero numClasses and inChans
// mean the ImageNet defaults of 1000 and 3.
type FactoryFunc func(pretrained bool, numClasses, inChans int, overrides ...Override) (*ResNet, error)

var registry = map[string]FactoryFunc{}

// Register adds a named architecture. Registering the same name twice is a
// programming error and panics.
func Register(name string, factory FactoryFunc) {
	if _, dup := registry[name]; dup {
		panic("models: duplicate architecture " + name)
	}
	registry[name] = factory
}

// IsModel reports whether name is a registered architecture.
func IsModel(name string) bool {
	_, ok := registry[name]
	return ok
}

// Models returns registered architecture names sorted alphabetically,
// optionally narrowed by a glob filter ("skresnet*").
func Models(filter string) []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		if filter != "" {
			if ok, err := path.Match(filter, name); err != nil || !ok {
				continue
			}
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entrypoint returns the factory for a registered architecture.
func Entrypoint(name string) (FactoryFunc, bool) {
	factory, ok := registry[name]
	return factory, ok
}

// DefaultConfig returns the pristine data configuration an architecture
// ships with, before any per-model overlays.
func DefaultConfig(name string) (DataConfig, bool) {
	cfg, ok := defaultCfgs[name]
	return cfg, ok
}

// Create builds a registered architecture by name.
func Create(name string, pretrained bool, numClasses, inChans int, overrides ...Override) (*ResNet, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("models: unknown architecture %q", name)
	}
	return factory(pretrained, numClasses, inChans, overrides...)
}
