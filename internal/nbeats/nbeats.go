// Package nbeats implements the stacked doubly-residual forecaster and its
// multi-task backbone. Each block decomposes its input residual into a
// backcast (subtracted from the residual fed to the next block) and a
// forecast (summed into the network output); the pre-generator forecast
// expansion coefficients double as the feature vector.
package nbeats

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/seriesnet/multitask/internal/layers"
)

// Block owns a shared trunk of linear+ReLU layers, two expansion heads, and
// two generator layers. The forecast generator is created lazily once the
// output horizon is bound via SetNOut.
type Block struct {
	name      string
	nIn, nOut int
	expDim    int
	width     int

	fcStack    []*layers.Linear
	fcBackcast *layers.Linear
	fcForecast *layers.Linear
	gBackcast  *layers.Linear
	gForecast  *layers.Linear // nil until SetNOut

	rng *rand.Rand
}

// newBlock creates a block for a flattened input of length nIn. nOut may be 0,
// in which case the forecast generator is deferred to SetNOut.
func newBlock(rng *rand.Rand, name string, nIn, nLayers, expDim, width, nOut int) *Block {
	b := &Block{
		name:   name,
		nIn:    nIn,
		expDim: expDim,
		width:  width,
		rng:    rng,
	}
	b.fcStack = make([]*layers.Linear, nLayers)
	b.fcStack[0] = layers.NewLinear(rng, fmt.Sprintf("%s.fc0", name), nIn, width)
	for i := 1; i < nLayers; i++ {
		b.fcStack[i] = layers.NewLinear(rng, fmt.Sprintf("%s.fc%d", name, i), width, width)
	}
	b.fcBackcast = layers.NewLinear(rng, name+".fc_backcast", width, expDim)
	b.fcForecast = layers.NewLinear(rng, name+".fc_forecast", width, expDim)
	b.gBackcast = layers.NewLinear(rng, name+".g_backcast", expDim, nIn)
	if nOut != 0 {
		b.SetNOut(nOut)
	}
	return b
}

// SetNOut binds (or rebinds) the forecast horizon, creating a fresh forecast
// generator of shape expansion -> nOut.
func (b *Block) SetNOut(nOut int) {
	b.nOut = nOut
	b.gForecast = layers.NewLinear(b.rng, b.name+".g_forecast", b.expDim, nOut)
}

// Expansions runs the trunk and both expansion heads over a (B, nIn) residual,
// returning the backcast and forecast expansion coefficient vectors.
func (b *Block) Expansions(x *mat.Dense) (backExp, foreExp *mat.Dense) {
	h := x
	for _, l := range b.fcStack {
		h = layers.ReLU(l.Forward(h))
	}
	return b.fcBackcast.Forward(h), b.fcForecast.Forward(h)
}

// Forward returns the generated (B, nIn) backcast and (B, nOut) forecast.
func (b *Block) Forward(x *mat.Dense) (backcast, forecast *mat.Dense, err error) {
	if b.gForecast == nil {
		return nil, nil, fmt.Errorf("no output horizon bound; call SetNOut first")
	}
	backExp, foreExp := b.Expansions(x)
	return b.gBackcast.Forward(backExp), b.gForecast.Forward(foreExp), nil
}

// GenerateBackcast maps a backcast expansion through the backcast generator.
func (b *Block) GenerateBackcast(backExp *mat.Dense) *mat.Dense {
	return b.gBackcast.Forward(backExp)
}

// featurizerParams returns the block's featurizer subset: the trunk, both
// expansion heads, and the backcast generator. The forecast generator stays
// trainable across task switches and is excluded.
func (b *Block) featurizerParams() []*layers.Param {
	var ps []*layers.Param
	for _, l := range b.fcStack {
		ps = append(ps, l.Params()...)
	}
	ps = append(ps, b.fcForecast.Params()...)
	ps = append(ps, b.fcBackcast.Params()...)
	ps = append(ps, b.gBackcast.Params()...)
	return ps
}

// freezeBackcastPath permanently disables training of the residual
// decomposition (backcast expansion head and generator) of this block.
func (b *Block) freezeBackcastPath() {
	for _, p := range b.fcBackcast.Params() {
		p.SetTrainable(false)
	}
	for _, p := range b.gBackcast.Params() {
		p.SetTrainable(false)
	}
}

// Stack is an ordered sequence of blocks sharing the same input width.
type Stack struct {
	nIn, nOut int
	blocks    []*Block
}

func newStack(rng *rand.Rand, name string, nIn, nBlocks, nLayers, expDim, width, nOut int) *Stack {
	s := &Stack{nIn: nIn, nOut: nOut, blocks: make([]*Block, nBlocks)}
	for i := range s.blocks {
		s.blocks[i] = newBlock(rng, fmt.Sprintf("%s.block%d", name, i), nIn, nLayers, expDim, width, nOut)
	}
	return s
}

// SetNOut propagates a new horizon to every block.
func (s *Stack) SetNOut(nOut int) {
	s.nOut = nOut
	for _, b := range s.blocks {
		b.SetNOut(nOut)
	}
}

// Blocks exposes the stack's blocks in order.
func (s *Stack) Blocks() []*Block { return s.blocks }

// Forward refines the residual through every block, returning the final
// residual and the sum of the blocks' forecasts.
func (s *Stack) Forward(x *mat.Dense) (residual, forecast *mat.Dense, err error) {
	rows, cols := x.Dims()
	if cols != s.nIn {
		return nil, nil, fmt.Errorf("stack takes %d time steps as input (got %d)", s.nIn, cols)
	}
	residual = x
	forecast = mat.NewDense(rows, s.nOut, nil)
	for _, b := range s.blocks {
		backcast, blockForecast, err := b.Forward(residual)
		if err != nil {
			return nil, nil, err
		}
		next := mat.NewDense(rows, s.nIn, nil)
		next.Sub(residual, backcast)
		residual = next
		forecast.Add(forecast, blockForecast)
	}
	return residual, forecast, nil
}

// Network is an ordered sequence of stacks over a flattened univariate input.
// The backcast path of the very last block of the last stack is frozen from
// construction onward, so the terminal residual decomposition is never
// trained, only its forecast path.
type Network struct {
	nIn, nOut int
	nStacks   int
	nBlocks   int
	expDim    int

	stacks []*Stack
}

// NetworkConfig holds the topology of the residual stack.
type NetworkConfig struct {
	NIn        int
	NOut       int // 0 defers the horizon to SetNOut
	NStacks    int
	NBlocks    int
	NLayers    int
	ExpDim     int
	LayerWidth int
}

// NewNetwork creates the stack/block topology. The topology is fixed for the
// lifetime of the network; only the forecast horizon may be rebound.
func NewNetwork(rng *rand.Rand, cfg NetworkConfig) (*Network, error) {
	if cfg.NStacks < 1 || cfg.NBlocks < 1 || cfg.NLayers < 1 {
		return nil, fmt.Errorf("stack, block, and layer counts must be >= 1 (got %d, %d, %d)",
			cfg.NStacks, cfg.NBlocks, cfg.NLayers)
	}
	if cfg.ExpDim < 1 {
		return nil, fmt.Errorf("expansion coefficient dimension must be >= 1 (got %d)", cfg.ExpDim)
	}
	if cfg.LayerWidth < 1 {
		return nil, fmt.Errorf("layer width must be >= 1 (got %d)", cfg.LayerWidth)
	}
	n := &Network{
		nIn:     cfg.NIn,
		nOut:    cfg.NOut,
		nStacks: cfg.NStacks,
		nBlocks: cfg.NBlocks,
		expDim:  cfg.ExpDim,
		stacks:  make([]*Stack, cfg.NStacks),
	}
	for i := range n.stacks {
		n.stacks[i] = newStack(rng, fmt.Sprintf("stack%d", i),
			cfg.NIn, cfg.NBlocks, cfg.NLayers, cfg.ExpDim, cfg.LayerWidth, cfg.NOut)
	}
	n.terminalBlock().freezeBackcastPath()
	return n, nil
}

// SetNOut binds the forecast horizon consistently across every block.
func (n *Network) SetNOut(nOut int) {
	n.nOut = nOut
	for _, s := range n.stacks {
		s.SetNOut(nOut)
	}
}

// NOut returns the bound horizon, or 0 when unbound.
func (n *Network) NOut() int { return n.nOut }

// FeatureWidth returns the fixed featurization width:
// stacks x blocks x expansion dimension, independent of the horizon.
func (n *Network) FeatureWidth() int {
	return n.nStacks * n.nBlocks * n.expDim
}

// Stacks exposes the network's stacks in order.
func (n *Network) Stacks() []*Stack { return n.stacks }

func (n *Network) terminalBlock() *Block {
	last := n.stacks[len(n.stacks)-1]
	return last.blocks[len(last.blocks)-1]
}

// Forecast runs the doubly-residual pass over a (B, nIn) flattened input and
// returns the sum of every block's forecast, shape (B, nOut).
func (n *Network) Forecast(x *mat.Dense) (*mat.Dense, error) {
	if n.nOut == 0 {
		return nil, fmt.Errorf("no output horizon bound; call SetNOut first")
	}
	rows, cols := x.Dims()
	if cols != n.nIn {
		return nil, fmt.Errorf("network takes %d time steps as input (got %d)", n.nIn, cols)
	}
	residual := x
	forecast := mat.NewDense(rows, n.nOut, nil)
	for _, s := range n.stacks {
		var stackForecast *mat.Dense
		var err error
		residual, stackForecast, err = s.Forward(residual)
		if err != nil {
			return nil, err
		}
		forecast.Add(forecast, stackForecast)
	}
	return forecast, nil
}

// Featurize runs the same residual propagation as Forecast but collects every
// block's raw forecast expansion coefficients (pre-generator) instead of the
// generated forecasts, concatenated in stack-then-block order. The width is
// FeatureWidth regardless of the bound horizon, so features stay reusable
// when the horizon changes.
func (n *Network) Featurize(x *mat.Dense) (*mat.Dense, error) {
	rows, cols := x.Dims()
	if cols != n.nIn {
		return nil, fmt.Errorf("network takes %d time steps as input (got %d)", n.nIn, cols)
	}
	features := mat.NewDense(rows, n.FeatureWidth(), nil)
	residual := x
	for si, s := range n.stacks {
		for bi, b := range s.blocks {
			backExp, foreExp := b.Expansions(residual)
			next := mat.NewDense(rows, n.nIn, nil)
			next.Sub(residual, b.GenerateBackcast(backExp))
			residual = next

			offset := (si*n.nBlocks + bi) * n.expDim
			for r := 0; r < rows; r++ {
				for c := 0; c < n.expDim; c++ {
					features.Set(r, offset+c, foreExp.At(r, c))
				}
			}
		}
	}
	return features, nil
}

// FeaturizerParams returns the featurizer subset of every block, excluding
// the forecast generators and the permanently frozen backcast path of the
// terminal block (so an unfreeze never re-enables it).
func (n *Network) FeaturizerParams() []*layers.Param {
	terminal := n.terminalBlock()
	var ps []*layers.Param
	for _, s := range n.stacks {
		for _, b := range s.blocks {
			if b == terminal {
				for _, l := range b.fcStack {
					ps = append(ps, l.Params()...)
				}
				ps = append(ps, b.fcForecast.Params()...)
				continue
			}
			ps = append(ps, b.featurizerParams()...)
		}
	}
	return ps
}
