package registry

import (
	"errors"
	"testing"

	"github.com/seriesnet/multitask/internal/backbone"
)

func TestNamesContainBuiltins(t *testing.T) {
	names := Names()
	want := map[string]bool{"GRU": false, "LSTM": false, "N-BEATS": false, "Transformer": false}
	for _, n := range names {
		if _, ok := want[n]; ok {
			want[n] = true
		}
	}
	for n, seen := range want {
		if !seen {
			t.Errorf("Architecture %q not registered", n)
		}
	}
}

func TestBuildUnknownArchitecture(t *testing.T) {
	_, err := Build("HMM", nil)
	if !errors.Is(err, backbone.ErrConfig) {
		t.Errorf("Expected ErrConfig, got %v", err)
	}
}

func TestBuildGRUFromJSONNumbers(t *testing.T) {
	// JSON decoding yields float64 for every number.
	m, err := Build("GRU", map[string]any{
		"n_in":      float64(6),
		"space_dim": float64(2),
		"n_hidden":  float64(4),
		"n_layers":  float64(2),
		"n_out":     float64(3),
		"seed":      float64(7),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if m.Name() != "GRU" {
		t.Errorf("Expected GRU, got %s", m.Name())
	}
	if m.NIn() != 6 || m.SpaceDim() != 2 || m.NOut() != 3 {
		t.Errorf("Geometry wrong: n_in=%d space_dim=%d n_out=%d", m.NIn(), m.SpaceDim(), m.NOut())
	}
	if !m.IsPreparedToForecast() || m.IsPreparedToClassify() {
		t.Error("Only forecasting should be prepared")
	}
}

func TestBuildRejectsFractionalInt(t *testing.T) {
	_, err := Build("GRU", map[string]any{
		"n_in":      6.5,
		"space_dim": 2,
		"n_hidden":  4,
		"n_out":     3,
	})
	if !errors.Is(err, backbone.ErrConfig) {
		t.Errorf("Expected ErrConfig, got %v", err)
	}
}

func TestUnrecognizedSettingsBecomeHyperparams(t *testing.T) {
	m, err := Build("LSTM", map[string]any{
		"n_in":       6,
		"space_dim":  2,
		"n_hidden":   4,
		"n_out":      2,
		"dataset":    "lorenz",
		"train_frac": 0.8,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	hp := m.Hyperparameters()
	if hp["dataset"] != "lorenz" {
		t.Errorf("Expected dataset hyperparam forwarded, got %v", hp["dataset"])
	}
	if hp["train_frac"] != 0.8 {
		t.Errorf("Expected train_frac hyperparam forwarded, got %v", hp["train_frac"])
	}
}

func TestBuildNBEATS(t *testing.T) {
	m, err := Build("N-BEATS", map[string]any{
		"n_in":                      4,
		"space_dim":                 2,
		"n_stacks":                  2,
		"n_blocks":                  2,
		"expansion_coefficient_dim": 3,
		"layer_width":               8,
		"n_out":                     2,
		"n_features":                12,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if m.NFeatures() != 12 {
		t.Errorf("Expected 12 features, got %d", m.NFeatures())
	}
}

func TestBuildTransformerDefaultFFWidth(t *testing.T) {
	m, err := Build("Transformer", map[string]any{
		"n_in":      5,
		"space_dim": 4,
		"n_heads":   2,
		"n_out":     2,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if m.Hyperparameters()["ff_width"] != 16 {
		t.Errorf("Expected default ff_width 16, got %v", m.Hyperparameters()["ff_width"])
	}
}

func TestSettingsRest(t *testing.T) {
	s := NewSettings(map[string]any{"a": 1, "b": "x", "c": true})
	if _, err := s.Int("a", 0); err != nil {
		t.Fatalf("Int failed: %v", err)
	}
	if _, err := s.String("b", ""); err != nil {
		t.Fatalf("String failed: %v", err)
	}

	rest := s.Rest()
	if len(rest) != 1 {
		t.Fatalf("Expected 1 leftover key, got %d", len(rest))
	}
	if rest["c"] != true {
		t.Error("Expected key c in the leftovers")
	}
}
