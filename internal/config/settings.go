package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Settings are the persisted user preferences, kept under the platform
// user-config directory.
type Settings struct {
	LastModelFile string `json:"last_model_file,omitempty"`
	LastDataDir   string `json:"last_data_dir,omitempty"`
}

func settingsPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "seriesd", "settings.json"), nil
}

// LoadSettings reads the saved settings, returning empty settings when the
// file does not exist yet.
func LoadSettings() (*Settings, error) {
	path, err := settingsPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Settings{}, nil
	}
	if err != nil {
		return nil, err
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSettings writes the settings, creating the config directory if needed.
func SaveSettings(s *Settings) error {
	path, err := settingsPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
