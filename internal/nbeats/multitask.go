package nbeats

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
const ModelName = "N-BEATS"

// Config holds the construction arguments for the residual-stack backbone.
type Config struct {
	NIn      int
	SpaceDim int

	NStacks    int
	NBlocks    int
	NLayers    int
	ExpDim     int
	LayerWidth int

	NClasses  int
	NFeatures int
	NOut      int

	Seed  int64
	Extra map[string]any
}

// Model is the residual-stack multi-task backbone. The architecture is
// natively univariate: multivariate windows are flattened to a single
// channel-interleaved sequence on the way in and reshaped on the way out.
type Model struct {
	*backbone.Base

	nStacks int
	nBlocks int
	expDim  int

	net        *Network
	classifier *layers.MLP
	rng        *rand.Rand
}

// New constructs the residual-stack backbone and prepares every task whose
// size is supplied. Featurization is prepared before classification because
// the classifier head width derives from the feature width.
func New(cfg Config) (*Model, error) {
	base, err := backbone.NewBase(ModelName, cfg.NIn, cfg.SpaceDim, cfg.NClasses, cfg.NFeatures, cfg.NOut)
	if err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	flatOut := 0
	if cfg.NOut != 0 {
		flatOut = cfg.NOut * cfg.SpaceDim
	}
	net, err := NewNetwork(rng, NetworkConfig{
		NIn:        cfg.NIn * cfg.SpaceDim,
		NOut:       flatOut,
		NStacks:    cfg.NStacks,
		NBlocks:    cfg.NBlocks,
		NLayers:    cfg.NLayers,
		ExpDim:     cfg.ExpDim,
		LayerWidth: cfg.LayerWidth,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backbone.ErrConfig, err)
	}

	m := &Model{
		Base:    base,
		nStacks: cfg.NStacks,
		nBlocks: cfg.NBlocks,
		expDim:  cfg.ExpDim,
		net:     net,
		rng:     rng,
	}
	m.RegisterHyperparams(map[string]any{
		"n_stacks":                  cfg.NStacks,
		"n_blocks":                  cfg.NBlocks,
		"n_layers":                  cfg.NLayers,
		"expansion_coefficient_dim": cfg.ExpDim,
		"layer_width":               cfg.LayerWidth,
	})
	m.RegisterHyperparams(cfg.Extra)

	// The residual stack is a natural forecaster.
	if cfg.NOut != 0 {
		if err := m.PrepareToForecast(cfg.NOut); err != nil {
			return nil, err
		}
	}
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
	return m, nil
}

// PrepareToFeaturize activates featurization. The feature width is fixed by
// the topology: stacks x blocks x expansion dimension.
func (m *Model) PrepareToFeaturize(nFeatures int) error {
	if want := m.net.FeatureWidth(); nFeatures != want {
		return fmt.Errorf("%w: %s uses the expansion coefficients as features (want %d, got %d)",
			backbone.ErrConfig, m.Name(), want, nFeatures)
	}
	return m.MarkFeaturizePrepared(nFeatures)
}

// PrepareToClassify activates classification. Featurization must be prepared
// first, since the classifier head size derives from the feature width.
func (m *Model) PrepareToClassify(nClasses int) error {
	if !m.IsPreparedToFeaturize() {
		return fmt.Errorf("%w: prepare %s to featurize before preparing to classify",
			backbone.ErrOrdering, m.Name())
	}
	if err := m.MarkClassifyPrepared(nClasses); err != nil {
		return err
	}
	m.classifier = layers.NewMLP(m.rng, m.Name()+".classifier", m.NFeatures(), nClasses, layers.DefaultHeadLayers)
	return nil
}

// PrepareToForecast binds the horizon across the whole composition tree.
func (m *Model) PrepareToForecast(nOut int) error {
	if err := m.MarkForecastPrepared(nOut); err != nil {
		return err
	}
	m.net.SetNOut(nOut * m.SpaceDim())
	return nil
}

// ForwardFeaturize flattens the window and collects the expansion
// coefficients, shape (B, NFeatures).
func (m *Model) ForwardFeaturize(x *series.Batch) (*mat.Dense, error) {
	return m.net.Featurize(x.Flatten())
}

// ForwardClassify projects the features through the classifier head.
func (m *Model) ForwardClassify(x *series.Batch) (*mat.Dense, error) {
	features, err := m.ForwardFeaturize(x)
	if err != nil {
		return nil, err
	}
	return m.classifier.Forward(features), nil
}

// ForwardForecast flattens the window, runs the residual stack, and reshapes
// the flat forecast back to (B, NOut, D).
func (m *Model) ForwardForecast(x *series.Batch) (*series.Batch, error) {
	flat, err := m.net.Forecast(x.Flatten())
	if err != nil {
		return nil, err
	}
	return series.Unflatten(flat, m.NOut(), m.SpaceDim())
}

// FeaturizerParams returns every block's trunk, expansion heads, and backcast
// generator, excluding forecast generators and the terminal block's frozen
// backcast path.
func (m *Model) FeaturizerParams() []*layers.Param {
	return m.net.FeaturizerParams()
}

// Network exposes the underlying residual stack, mainly for inspection.
func (m *Model) Network() *Network { return m.net }
