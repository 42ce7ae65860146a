package rnn

import (
	"fmt"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/seriesnet/multitask/internal/backbone"
	"github.com/seriesnet/multitask/internal/layers"
	"github.com/seriesnet/multitask/internal/series"
)

// ForecastType selects how the native forecast head is shaped.
type ForecastType string

const (
	// ForecastOneByOne predicts a single step per head invocation and builds
	// the native horizon autoregressively through the recurrent state.
	ForecastOneByOne ForecastType = "one_by_one"

	// ForecastMulti predicts the whole native horizon in one head invocation
	// from the final hidden output.
	ForecastMulti ForecastType = "multi"
)

// Config holds the construction arguments for the recurrent backbone.
// Unrecognized settings are forwarded opaquely into the hyperparameter
// registry via Extra.
type Config struct {
	NIn      int
	SpaceDim int

	Cell         Kind
	NLayers      int
	NHidden      int
	ForecastType ForecastType

	NClasses  int
	NFeatures int
	NOut      int

	Seed  int64
	Extra map[string]any
}

// Model is the recurrent multi-task backbone. The sequence encoder is the
// featurizer; classifier and forecaster heads project its final hidden output.
type Model struct {
	*backbone.Base

	kind         Kind
	nLayers      int
	nHidden      int
	forecastType ForecastType

	enc        *encoder
	classifier *layers.MLP
	forecaster *layers.MLP
	rng        *rand.Rand
}

// New constructs the recurrent backbone and prepares every task whose size is
// supplied in the config.
func New(cfg Config) (*Model, error) {
	kind, err := ParseKind(string(cfg.Cell))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backbone.ErrConfig, err)
	}
	ft := cfg.ForecastType
	if ft == "" {
		ft = ForecastOneByOne
	}
	if ft != ForecastOneByOne && ft != ForecastMulti {
		return nil, fmt.Errorf("%w: forecast type must be %q or %q (got %q)",
			backbone.ErrConfig, ForecastOneByOne, ForecastMulti, ft)
	}
	if cfg.NLayers < 1 {
		return nil, fmt.Errorf("%w: number of recurrent layers must be >= 1 (got %d)", backbone.ErrConfig, cfg.NLayers)
	}
	if cfg.NHidden < 1 {
		return nil, fmt.Errorf("%w: hidden width must be >= 1 (got %d)", backbone.ErrConfig, cfg.NHidden)
	}

	base, err := backbone.NewBase(string(kind), cfg.NIn, cfg.SpaceDim, cfg.NClasses, cfg.NFeatures, cfg.NOut)
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	m := &Model{
		Base:         base,
		kind:         kind,
		nLayers:      cfg.NLayers,
		nHidden:      cfg.NHidden,
		forecastType: ft,
		rng:          rand.New(rand.NewSource(seed)),
	}
	m.enc = newEncoder(m.rng, kind, cfg.SpaceDim, cfg.NHidden, cfg.NLayers)
	m.RegisterHyperparams(map[string]any{
		"model":         string(kind),
		"n_layers":      cfg.NLayers,
		"n_hidden":      cfg.NHidden,
		"forecast_type": string(ft),
	})
	m.RegisterHyperparams(cfg.Extra)

	// Recurrent encoders are natural featurizers, so featurization is
	// prepared first when requested.
	if cfg.NFeatures != 0 {
		if err := m.PrepareToFeaturize(cfg.NFeatures); err != nil {
			return nil, err
		}
	}
	if cfg.NClasses != 0 {
		if err := m.PrepareToClassify(cfg.NClasses); err != nil {
			return nil, err
		}
	}
	if cfg.NOut != 0 {
		if err := m.PrepareToForecast(cfg.NOut); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// PrepareToFeaturize activates featurization. The feature width must equal
// the hidden width, since features are the encoder's final hidden output.
func (m *Model) PrepareToFeaturize(nFeatures int) error {
	if nFeatures != m.nHidden {
		return fmt.Errorf("%w: %s uses its hidden width as the number of features (want %d, got %d)",
			backbone.ErrConfig, m.Name(), m.nHidden, nFeatures)
	}
	return m.MarkFeaturizePrepared(nFeatures)
}

// PrepareToClassify activates classification with a fresh MLP head over the
// encoder's hidden output.
func (m *Model) PrepareToClassify(nClasses int) error {
	if err := m.MarkClassifyPrepared(nClasses); err != nil {
		return err
	}
	m.classifier = layers.NewMLP(m.rng, m.Name()+".classifier", m.nHidden, nClasses, layers.DefaultHeadLayers)
	return nil
}

// PrepareToForecast activates forecasting. The head predicts one step per
// invocation for the one-by-one strategy, or the whole native horizon for
// the multi strategy.
func (m *Model) PrepareToForecast(nOut int) error {
	if err := m.MarkForecastPrepared(nOut); err != nil {
		return err
	}
	trueOut := m.SpaceDim()
	if m.forecastType == ForecastMulti {
		trueOut = m.SpaceDim() * nOut
	}
	m.forecaster = layers.NewMLP(m.rng, m.Name()+".forecaster", m.nHidden, trueOut, layers.DefaultHeadLayers)
	return nil
}

// ForwardFeaturize returns the final hidden output of the last layer, shape
// (B, NHidden).
func (m *Model) ForwardFeaturize(x *series.Batch) (*mat.Dense, error) {
	last, _ := m.enc.forward(x)
	return last, nil
}

// ForwardClassify projects the features through the classifier head.
func (m *Model) ForwardClassify(x *series.Batch) (*mat.Dense, error) {
	features, err := m.ForwardFeaturize(x)
	if err != nil {
		return nil, err
	}
	return m.classifier.Forward(features), nil
}

// ForwardForecast produces the native (B, NOut, D) forecast using the
// configured strategy.
func (m *Model) ForwardForecast(x *series.Batch) (*series.Batch, error) {
	switch m.forecastType {
	case ForecastMulti:
		return m.forecastMultiAll(x)
	case ForecastOneByOne:
		full, err := m.ForecastRecurrentlyOneByOne(x, m.NOut())
		if err != nil {
			return nil, err
		}
		return full.Window(m.NIn(), m.NIn()+m.NOut()), nil
	}
	return nil, fmt.Errorf("%w: unknown forecast type %q", backbone.ErrConfig, m.forecastType)
}

// forecastMultiAll predicts the whole native horizon in one head call.
func (m *Model) forecastMultiAll(x *series.Batch) (*series.Batch, error) {
	features, err := m.ForwardFeaturize(x)
	if err != nil {
		return nil, err
	}
	flat := m.forecaster.Forward(features)
	return series.Unflatten(flat, m.NOut(), m.SpaceDim())
}

// ForecastRecurrentlyOneByOne extends the input by n steps, one step at a
// time, threading the recurrent state across predictions: each new step is
// fed back into the encoder (only the new step, not the whole window) to
// advance the state. The result has shape (B, NIn+n, D) with the first NIn
// steps equal to x.
func (m *Model) ForecastRecurrentlyOneByOne(x *series.Batch, n int) (*series.Batch, error) {
	if m.forecastType != ForecastOneByOne {
		return nil, fmt.Errorf("%w: one-by-one forecasting requires forecast type %q",
			backbone.ErrConfig, ForecastOneByOne)
	}
	return m.forecastRecurrently(x, n, func(last *mat.Dense) *mat.Dense {
		return m.forecaster.Forward(last)
	})
}

// ForecastRecurrentlyMultiFirst extends the input by n steps using the
// multi-step head, keeping only the first predicted step of each block so the
// immediate next step always comes from the freshest forecast. The recurrent
// state is threaded exactly as in the one-by-one strategy.
func (m *Model) ForecastRecurrentlyMultiFirst(x *series.Batch, n int) (*series.Batch, error) {
	if m.forecastType != ForecastMulti {
		return nil, fmt.Errorf("%w: multi-first forecasting requires forecast type %q",
			backbone.ErrConfig, ForecastMulti)
	}
	d := m.SpaceDim()
	return m.forecastRecurrently(x, n, func(last *mat.Dense) *mat.Dense {
		full := m.forecaster.Forward(last)
		b, _ := full.Dims()
		return mat.DenseCopyOf(full.Slice(0, b, 0, d))
	})
}

func (m *Model) forecastRecurrently(x *series.Batch, n int, nextStep func(last *mat.Dense) *mat.Dense) (*series.Batch, error) {
	if !m.IsPreparedToForecast() {
		return nil, fmt.Errorf("%w: %s was not prepared to forecast", backbone.ErrNotPrepared, m.Name())
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: forecast horizon must be >= 1 (got %d)", backbone.ErrConfig, n)
	}
	b, t, d := x.Dims()
	if t != m.NIn() || d != m.SpaceDim() {
		return nil, fmt.Errorf("%w: %s takes (%d, %d) windows as input (got (%d, %d))",
			backbone.ErrShape, m.Name(), m.NIn(), m.SpaceDim(), t, d)
	}

	ts := series.New(b, t+n, d)
	ts.SetWindow(0, x)
	last, states := m.enc.forward(x)
	for i := t; i < t+n; i++ {
		step := nextStep(last)
		ts.SetStep(i, step)
		last = m.enc.stepOne(step, states)
	}
	return ts, nil
}

// Strategies lists the forecast strategies applicable to this model given its
// forecast type. Chunked forecasting applies to every backbone.
func (m *Model) Strategies() []string {
	out := []string{"chunks"}
	switch m.forecastType {
	case ForecastOneByOne:
		out = append(out, "one_by_one")
	case ForecastMulti:
		out = append(out, "multi_first")
	}
	return out
}

// FeaturizerParams returns every recurrent weight; the task heads are excluded.
func (m *Model) FeaturizerParams() []*layers.Param {
	return m.enc.params()
}
