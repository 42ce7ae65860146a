package registry

import (
	"github.com/seriesnet/multitask/internal/attention"
	"github.com/seriesnet/multitask/internal/backbone"
	"github.com/seriesnet/multitask/internal/nbeats"
	"github.com/seriesnet/multitask/internal/rnn"
)

func init() {
	Register(string(rnn.KindGRU), rnnBuilder(rnn.KindGRU))
	Register(string(rnn.KindLSTM), rnnBuilder(rnn.KindLSTM))
	Register(nbeats.ModelName, buildNBEATS)
	Register(attention.ModelName, buildTransformer)
}

// common consumes the geometry and task-size settings shared by every
// architecture.
func common(s *Settings) (nIn, spaceDim, nClasses, nFeatures, nOut int, seed int64, err error) {
	if nIn, err = s.Int("n_in", 0); err != nil {
		return
	}
	if spaceDim, err = s.Int("space_dim", 0); err != nil {
		return
	}
	if nClasses, err = s.Int("n_classes", 0); err != nil {
		return
	}
	if nFeatures, err = s.Int("n_features", 0); err != nil {
		return
	}
	if nOut, err = s.Int("n_out", 0); err != nil {
		return
	}
	seed, err = s.Int64("seed", 0)
	return
}

func rnnBuilder(kind rnn.Kind) Builder {
	return func(settings map[string]any) (backbone.Backbone, error) {
		s := NewSettings(settings)
		nIn, spaceDim, nClasses, nFeatures, nOut, seed, err := common(s)
		if err != nil {
			return nil, err
		}
		nLayers, err := s.Int("n_layers", 1)
		if err != nil {
			return nil, err
		}
		nHidden, err := s.Int("n_hidden", 0)
		if err != nil {
			return nil, err
		}
		forecastType, err := s.String("forecast_type", string(rnn.ForecastOneByOne))
		if err != nil {
			return nil, err
		}
		return rnn.New(rnn.Config{
			NIn:          nIn,
			SpaceDim:     spaceDim,
			Cell:         kind,
			NLayers:      nLayers,
			NHidden:      nHidden,
			ForecastType: rnn.ForecastType(forecastType),
			NClasses:     nClasses,
			NFeatures:    nFeatures,
			NOut:         nOut,
			Seed:         seed,
			Extra:        s.Rest(),
		})
	}
}

func buildNBEATS(settings map[string]any) (backbone.Backbone, error) {
	s := NewSettings(settings)
	nIn, spaceDim, nClasses, nFeatures, nOut, seed, err := common(s)
	if err != nil {
		return nil, err
	}
	nStacks, err := s.Int("n_stacks", 1)
	if err != nil {
		return nil, err
	}
	nBlocks, err := s.Int("n_blocks", 1)
	if err != nil {
		return nil, err
	}
	nLayers, err := s.Int("n_layers", 2)
	if err != nil {
		return nil, err
	}
	expDim, err := s.Int("expansion_coefficient_dim", 0)
	if err != nil {
		return nil, err
	}
	layerWidth, err := s.Int("layer_width", 0)
	if err != nil {
		return nil, err
	}
	return nbeats.New(nbeats.Config{
		NIn:        nIn,
		SpaceDim:   spaceDim,
		NStacks:    nStacks,
		NBlocks:    nBlocks,
		NLayers:    nLayers,
		ExpDim:     expDim,
		LayerWidth: layerWidth,
		NClasses:   nClasses,
		NFeatures:  nFeatures,
		NOut:       nOut,
		Seed:       seed,
		Extra:      s.Rest(),
	})
}

func buildTransformer(settings map[string]any) (backbone.Backbone, error) {
	s := NewSettings(settings)
	nIn, spaceDim, nClasses, nFeatures, nOut, seed, err := common(s)
	if err != nil {
		return nil, err
	}
	nLayers, err := s.Int("n_layers", 1)
	if err != nil {
		return nil, err
	}
	nHeads, err := s.Int("n_heads", 1)
	if err != nil {
		return nil, err
	}
	ffWidth, err := s.Int("ff_width", 0)
	if err != nil {
		return nil, err
	}
	if ffWidth == 0 {
		ffWidth = 4 * spaceDim
	}
	return attention.New(attention.Config{
		NIn:       nIn,
		SpaceDim:  spaceDim,
		NLayers:   nLayers,
		NHeads:    nHeads,
		FFWidth:   ffWidth,
		NClasses:  nClasses,
		NFeatures: nFeatures,
		NOut:      nOut,
		Seed:      seed,
		Extra:     s.Rest(),
	})
}
