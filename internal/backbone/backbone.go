// Package backbone defines the multi-task contract shared by all time-series
// backbones: one trained feature-extraction trunk serving classification,
// featurization, and forecasting without retraining per task.
//
// Throughout this package and the concrete backbones we write B for the batch
// size, T for the number of time steps, and D for the space dimension (number
// of co-varying channels per step).
package backbone

import (
	"gonum.org/v1/gonum/mat"

	"github.com/seriesnet/multitask/internal/layers"
	"github.com/seriesnet/multitask/internal/series"
)

// Task selects which head a dispatch call routes to.
type Task int

const (
	TaskClassify Task = iota
	TaskFeaturize
	TaskForecast
)

// String returns the task name used in logs and API routes.
func (t Task) String() string {
	switch t {
	case TaskClassify:
		return "classify"
	case TaskFeaturize:
		return "featurize"
	case TaskForecast:
		return "forecast"
	}
	return "unknown"
}

// ParseTask maps a task name to its selector.
func ParseTask(s string) (Task, bool) {
	switch s {
	case "classify":
		return TaskClassify, true
	case "featurize":
		return TaskFeaturize, true
	case "forecast":
		return TaskForecast, true
	}
	return 0, false
}

// Backbone is the capability contract every multi-task backbone implements.
//
// A task may only be invoked after the corresponding PrepareTo call has
// succeeded. The Forward* methods are the raw per-task computations; callers
// outside the concrete backbones go through Dispatch (or the Classify,
// Featurize, Forecast, and ForecastInChunks helpers), which validate input
// shape, readiness, and output postconditions.
type Backbone interface {
	// Name identifies the architecture for logs and reporting.
	Name() string

	// NIn returns the fixed input window length.
	NIn() int
	// SpaceDim returns the number of channels per time step.
	SpaceDim() int
	// NClasses returns the prepared class count, or 0 if unprepared.
	NClasses() int
	// NFeatures returns the prepared feature width, or 0 if unprepared.
	NFeatures() int
	// NOut returns the prepared native forecast horizon, or 0 if unprepared.
	NOut() int

	// PrepareToClassify activates the classification head for n classes (>= 2).
	PrepareToClassify(nClasses int) error
	// PrepareToFeaturize activates the featurization head for n features (>= 1).
	PrepareToFeaturize(nFeatures int) error
	// PrepareToForecast activates the forecasting head for n steps (>= 1).
	PrepareToForecast(nOut int) error

	IsPreparedToClassify() bool
	IsPreparedToFeaturize() bool
	IsPreparedToForecast() bool

	// ForwardClassify computes class logits of shape (B, NClasses).
	ForwardClassify(x *series.Batch) (*mat.Dense, error)
	// ForwardFeaturize computes feature vectors of shape (B, NFeatures).
	ForwardFeaturize(x *series.Batch) (*mat.Dense, error)
	// ForwardForecast computes the native fixed-horizon forecast (B, NOut, D).
	ForwardForecast(x *series.Batch) (*series.Batch, error)

	// FeaturizerParams returns the exact trainable-parameter subset that
	// constitutes the featurizer. The returned parameters are shared
	// references, not copies.
	FeaturizerParams() []*layers.Param

	// Hyperparameters returns the accumulated hyperparameter registry,
	// used only for external reporting.
	Hyperparameters() map[string]any
}

// FreezeFeaturizer marks every featurizer parameter of m as not trainable.
// All task heads observe the change since they share the backbone instance.
func FreezeFeaturizer(m Backbone) {
	for _, p := range m.FeaturizerParams() {
		p.SetTrainable(false)
	}
}

// UnfreezeFeaturizer marks every featurizer parameter of m as trainable.
func UnfreezeFeaturizer(m Backbone) {
	for _, p := range m.FeaturizerParams() {
		p.SetTrainable(true)
	}
}
