package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write spec file: %v", err)
	}
	return path
}

func TestLoadModelSpec(t *testing.T) {
	path := writeSpec(t, `{
		"model": "GRU",
		"settings": {"n_in": 10, "space_dim": 3, "n_hidden": 32, "n_out": 5}
	}`)

	spec, err := LoadModelSpec(path)
	if err != nil {
		t.Fatalf("LoadModelSpec failed: %v", err)
	}
	if spec.Model != "GRU" {
		t.Errorf("Expected model GRU, got %s", spec.Model)
	}
	if spec.Settings["n_hidden"] != float64(32) {
		t.Errorf("Expected n_hidden 32, got %v", spec.Settings["n_hidden"])
	}
}

func TestLoadModelSpecDefaultsSettings(t *testing.T) {
	path := writeSpec(t, `{"model": "N-BEATS"}`)

	spec, err := LoadModelSpec(path)
	if err != nil {
		t.Fatalf("LoadModelSpec failed: %v", err)
	}
	if spec.Settings == nil {
		t.Error("Settings should default to an empty map")
	}
}

func TestLoadModelSpecErrors(t *testing.T) {
	if _, err := LoadModelSpec(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}

	path := writeSpec(t, `{"settings": {}}`)
	if _, err := LoadModelSpec(path); err == nil {
		t.Error("Expected error for spec without a model name")
	}

	path = writeSpec(t, `not json`)
	if _, err := LoadModelSpec(path); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}
