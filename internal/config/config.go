// Package config holds the application configuration and the on-disk model
// specification format.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds the application configuration
type Config struct {
	Port      int
	DataDir   string
	ModelFile string
	Version   string
}

// ModelSpec describes which architecture to build and with which settings.
// Settings keys not recognized by the architecture are kept as opaque
// hyperparameters.
type ModelSpec struct {
	Model    string         `json:"model"`
	Settings map[string]any `json:"settings"`
}

// LoadModelSpec reads a model specification from a JSON file.
func LoadModelSpec(path string) (*ModelSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model spec: %w", err)
	}
	var spec ModelSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("invalid model spec %s: %w", path, err)
	}
	if spec.Model == "" {
		return nil, fmt.Errorf("model spec %s does not name a model", path)
	}
	if spec.Settings == nil {
		spec.Settings = make(map[string]any)
	}
	return &spec, nil
}
