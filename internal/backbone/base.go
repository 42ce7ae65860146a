package backbone

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Base carries the state common to every backbone: the fixed input geometry,
// the per-task readiness markers, and the hyperparameter registry. Concrete
// backbones embed *Base and layer their head construction on top of the
// Prepare* transition methods.
//
// Readiness markers are the task sizes themselves: a task is prepared iff its
// size is non-zero. Markers are set only by the Prepare* methods and never
// cleared.
type Base struct {
	name     string
	nIn      int
	spaceDim int

	nClasses  int
	nFeatures int
	nOut      int

	hyperparams map[string]any
}

// NewBase validates the common construction arguments and creates the shared
// state. At least one of nClasses, nFeatures, nOut must be non-zero; the
// caller prepares the corresponding tasks after head construction.
func NewBase(name string, nIn, spaceDim, nClasses, nFeatures, nOut int) (*Base, error) {
	if nIn < 1 {
		return nil, fmt.Errorf("%w: number of input time steps must be >= 1 (got %d)", ErrConfig, nIn)
	}
	if spaceDim < 1 {
		return nil, fmt.Errorf("%w: space dimension must be >= 1 (got %d)", ErrConfig, spaceDim)
	}
	if nClasses == 0 && nFeatures == 0 && nOut == 0 {
		return nil, fmt.Errorf("%w: one of n_classes, n_features, n_out must be set", ErrConfig)
	}
	b := &Base{
		name:        name,
		nIn:         nIn,
		spaceDim:    spaceDim,
		hyperparams: make(map[string]any),
	}
	b.RegisterHyperparams(map[string]any{"n_in": nIn, "space_dim": spaceDim})
	return b, nil
}

// Name returns the backbone's architecture name.
func (b *Base) Name() string { return b.name }

// NIn returns the fixed input window length.
func (b *Base) NIn() int { return b.nIn }

// SpaceDim returns the channel count per time step.
func (b *Base) SpaceDim() int { return b.spaceDim }

// NClasses returns the prepared class count, or 0.
func (b *Base) NClasses() int { return b.nClasses }

// NFeatures returns the prepared feature width, or 0.
func (b *Base) NFeatures() int { return b.nFeatures }

// NOut returns the prepared native forecast horizon, or 0.
func (b *Base) NOut() int { return b.nOut }

// IsPreparedToClassify reports whether the classification head is active.
func (b *Base) IsPreparedToClassify() bool { return b.nClasses != 0 }

// IsPreparedToFeaturize reports whether the featurization head is active.
func (b *Base) IsPreparedToFeaturize() bool { return b.nFeatures != 0 }

// IsPreparedToForecast reports whether the forecasting head is active.
func (b *Base) IsPreparedToForecast() bool { return b.nOut != 0 }

// MarkClassifyPrepared validates and records the classification marker.
// Re-preparing is non-fatal: it logs a warning and the caller overwrites
// the head.
func (b *Base) MarkClassifyPrepared(nClasses int) error {
	if nClasses < 2 {
		return fmt.Errorf("%w: number of classes must be >= 2 (got %d)", ErrConfig, nClasses)
	}
	if b.IsPreparedToClassify() {
		logrus.WithField("model", b.name).Warn("already prepared to classify; overwriting head")
	}
	b.nClasses = nClasses
	b.RegisterHyperparams(map[string]any{"n_classes": nClasses})
	return nil
}

// MarkFeaturizePrepared validates and records the featurization marker.
func (b *Base) MarkFeaturizePrepared(nFeatures int) error {
	if nFeatures < 1 {
		return fmt.Errorf("%w: number of features must be >= 1 (got %d)", ErrConfig, nFeatures)
	}
	if b.IsPreparedToFeaturize() {
		logrus.WithField("model", b.name).Warn("already prepared to featurize; overwriting head")
	}
	b.nFeatures = nFeatures
	b.RegisterHyperparams(map[string]any{"n_features": nFeatures})
	return nil
}

// MarkForecastPrepared validates and records the forecasting marker.
func (b *Base) MarkForecastPrepared(nOut int) error {
	if nOut < 1 {
		return fmt.Errorf("%w: number of output time steps must be >= 1 (got %d)", ErrConfig, nOut)
	}
	if b.IsPreparedToForecast() {
		logrus.WithField("model", b.name).Warn("already prepared to forecast; overwriting head")
	}
	b.nOut = nOut
	b.RegisterHyperparams(map[string]any{"n_out": nOut})
	return nil
}

// RegisterHyperparams appends entries to the hyperparameter registry.
// The registry is reporting-only; the core never reads it back.
func (b *Base) RegisterHyperparams(kv map[string]any) {
	for k, v := range kv {
		b.hyperparams[k] = v
	}
}

// Hyperparameters returns a copy of the hyperparameter registry.
func (b *Base) Hyperparameters() map[string]any {
	out := make(map[string]any, len(b.hyperparams))
	for k, v := range b.hyperparams {
		out[k] = v
	}
	return out
}
