package registry

import (
	"fmt"

	"github.com/seriesnet/multitask/internal/backbone"
)

// Settings wraps a decoded configuration map, tracking which keys were
// consumed so the leftovers can be forwarded as opaque hyperparameters.
type Settings struct {
	raw  map[string]any
	used map[string]bool
}

// NewSettings wraps a decoded settings map.
func NewSettings(raw map[string]any) *Settings {
	return &Settings{raw: raw, used: make(map[string]bool)}
}

// Int consumes an integer-valued key, returning fallback when absent.
// JSON decodes numbers as float64, so both forms are accepted.
func (s *Settings) Int(key string, fallback int) (int, error) {
	v, ok := s.raw[key]
	if !ok {
		return fallback, nil
	}
	s.used[key] = true
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%w: setting %q must be an integer (got %v)", backbone.ErrConfig, key, v)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("%w: setting %q must be an integer (got %T)", backbone.ErrConfig, key, v)
}

// Int64 consumes an int64-valued key, returning fallback when absent.
func (s *Settings) Int64(key string, fallback int64) (int64, error) {
	n, err := s.Int(key, int(fallback))
	return int64(n), err
}

// String consumes a string-valued key, returning fallback when absent.
func (s *Settings) String(key, fallback string) (string, error) {
	v, ok := s.raw[key]
	if !ok {
		return fallback, nil
	}
	s.used[key] = true
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: setting %q must be a string (got %T)", backbone.ErrConfig, key, v)
	}
	return str, nil
}

// Rest returns the keys never consumed by Int, Int64, or String. These are
// forwarded into the model's hyperparameter registry untouched.
func (s *Settings) Rest() map[string]any {
	out := make(map[string]any)
	for k, v := range s.raw {
		if !s.used[k] {
			out[k] = v
		}
	}
	return out
}
