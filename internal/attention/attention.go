package attention

import (
	"fmt"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/seriesnet/multitask/internal/backbone"
	"github.com/seriesnet/multitask/internal/layers"
	"github.com/seriesnet/multitask/internal/series"
)

// ModelName is the architecture name used in logs and the registry.
const ModelName = "Transformer"

// Config holds the construction arguments for the attention backbone.
// Unrecognized settings are forwarded opaquely into the hyperparameter
// registry via Extra.
type Config struct {
	NIn      int
	SpaceDim int

	NLayers int
	NHeads  int
	FFWidth int

	NClasses  int
	NFeatures int
	NOut      int

	Seed  int64
	Extra map[string]any
}

// Model is the self-attention multi-task backbone. The encoder works in the
// channel dimension directly (model width equals the space dimension), so
// features are the encoder output averaged over time.
type Model struct {
	*backbone.Base

	nLayers int
	nHeads  int
	ffWidth int

	enc        *encoder
	classifier *layers.MLP
	forecaster *layers.MLP
	rng        *rand.Rand
}

// New constructs the attention backbone and prepares every task whose size is
// supplied in the config.
func New(cfg Config) (*Model, error) {
	if cfg.NLayers < 1 {
		return nil, fmt.Errorf("%w: number of encoder layers must be >= 1 (got %d)", backbone.ErrConfig, cfg.NLayers)
	}
	if cfg.NHeads < 1 {
		return nil, fmt.Errorf("%w: number of attention heads must be >= 1 (got %d)", backbone.ErrConfig, cfg.NHeads)
	}
	if cfg.SpaceDim%cfg.NHeads != 0 {
		return nil, fmt.Errorf("%w: space dimension %d is not divisible by %d attention heads",
			backbone.ErrConfig, cfg.SpaceDim, cfg.NHeads)
	}
	if cfg.FFWidth < 1 {
		return nil, fmt.Errorf("%w: feed-forward width must be >= 1 (got %d)", backbone.ErrConfig, cfg.FFWidth)
	}

	base, err := backbone.NewBase(ModelName, cfg.NIn, cfg.SpaceDim, cfg.NClasses, cfg.NFeatures, cfg.NOut)
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	m := &Model{
		Base:    base,
		nLayers: cfg.NLayers,
		nHeads:  cfg.NHeads,
		ffWidth: cfg.FFWidth,
		rng:     rand.New(rand.NewSource(seed)),
	}
	m.enc = newEncoderStack(m.rng, cfg.SpaceDim, cfg.NHeads, cfg.FFWidth, cfg.NLayers)
	m.RegisterHyperparams(map[string]any{
		"n_layers": cfg.NLayers,
		"n_heads":  cfg.NHeads,
		"ff_width": cfg.FFWidth,
	})
	m.RegisterHyperparams(cfg.Extra)

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
// the space dimension, since features are the mean-pooled encoder output.
func (m *Model) PrepareToFeaturize(nFeatures int) error {
	if nFeatures != m.SpaceDim() {
		return fmt.Errorf("%w: %s uses the space dimension as the number of features (want %d, got %d)",
			backbone.ErrConfig, m.Name(), m.SpaceDim(), nFeatures)
	}
	return m.MarkFeaturizePrepared(nFeatures)
}

// PrepareToClassify activates classification with a fresh MLP head over the
// pooled encoder output.
func (m *Model) PrepareToClassify(nClasses int) error {
	if err := m.MarkClassifyPrepared(nClasses); err != nil {
		return err
	}
	m.classifier = layers.NewMLP(m.rng, m.Name()+".classifier", m.SpaceDim(), nClasses, layers.DefaultHeadLayers)
	return nil
}

// PrepareToForecast activates forecasting with a fresh MLP head predicting
// the whole native horizon from the pooled encoder output.
func (m *Model) PrepareToForecast(nOut int) error {
	if err := m.MarkForecastPrepared(nOut); err != nil {
		return err
	}
	m.forecaster = layers.NewMLP(m.rng, m.Name()+".forecaster", m.SpaceDim(), nOut*m.SpaceDim(), layers.DefaultHeadLayers)
	return nil
}

// encode runs every sequence in the batch through the encoder stack and mean
// pools the encoded steps, shape (B, D).
func (m *Model) encode(x *series.Batch) *mat.Dense {
	b, t, d := x.Dims()
	pooled := mat.NewDense(b, d, nil)
	for i := 0; i < b; i++ {
		seq := mat.NewDense(t, d, nil)
		for j := 0; j < t; j++ {
			for c := 0; c < d; c++ {
				seq.Set(j, c, x.At(i, j, c))
			}
		}
		encoded := m.enc.forward(seq)
		for c := 0; c < d; c++ {
			var sum float64
			for j := 0; j < t; j++ {
				sum += encoded.At(j, c)
			}
			pooled.Set(i, c, sum/float64(t))
		}
	}
	return pooled
}

// ForwardFeaturize returns the mean-pooled encoder output, shape (B, D).
func (m *Model) ForwardFeaturize(x *series.Batch) (*mat.Dense, error) {
	return m.encode(x), nil
}

// ForwardClassify projects the pooled encoding through the classifier head.
func (m *Model) ForwardClassify(x *series.Batch) (*mat.Dense, error) {
	return m.classifier.Forward(m.encode(x)), nil
}

// ForwardForecast projects the pooled encoding through the forecaster head
// and reshapes the flat prediction back to (B, NOut, D).
func (m *Model) ForwardForecast(x *series.Batch) (*series.Batch, error) {
	flat := m.forecaster.Forward(m.encode(x))
	return series.Unflatten(flat, m.NOut(), m.SpaceDim())
}

// FeaturizerParams returns every encoder weight; the task heads are excluded.
func (m *Model) FeaturizerParams() []*layers.Param {
	return m.enc.params()
}
