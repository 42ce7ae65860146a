// Package registry maps architecture names to backbone builders so model
// construction can be driven by configuration.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/seriesnet/multitask/internal/backbone"
)

// Builder constructs a backbone from a decoded settings map. Recognized keys
// configure the architecture; unrecognized keys are forwarded into the model's
// hyperparameter registry.
type Builder func(settings map[string]any) (backbone.Backbone, error)

var (
	mu       sync.RWMutex
	builders = make(map[string]Builder)
)

// Register binds a builder to an architecture name. Registering the same name
// twice panics, since it means two architectures are competing for one name.
func Register(name string, b Builder) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := builders[name]; ok {
		panic(fmt.Sprintf("registry: architecture %q registered twice", name))
	}
	builders[name] = b
}

// Build constructs a backbone by architecture name.
func Build(name string, settings map[string]any) (backbone.Backbone, error) {
	mu.RLock()
	b, ok := builders[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown architecture %q (have %v)", backbone.ErrConfig, name, Names())
	}
	return b(settings)
}

// Names lists the registered architecture names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(builders))
	for name := range builders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
