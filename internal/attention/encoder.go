// Package attention implements the self-attention multi-task backbone. The
// encoder's mean-pooled output over time is the feature vector, so the
// feature width equals the space dimension.
package attention

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/seriesnet/multitask/internal/layers"
)

// multiHeadAttention is scaled dot-product self-attention over one sequence.
type multiHeadAttention struct {
	dModel  int
	nHeads  int
	headDim int

	q, k, v, o *layers.Linear
}

func newMultiHeadAttention(rng *rand.Rand, name string, dModel, nHeads int) *multiHeadAttention {
	return &multiHeadAttention{
		dModel:  dModel,
		nHeads:  nHeads,
		headDim: dModel / nHeads,
		q:       layers.NewLinear(rng, name+".q", dModel, dModel),
		k:       layers.NewLinear(rng, name+".k", dModel, dModel),
		v:       layers.NewLinear(rng, name+".v", dModel, dModel),
		o:       layers.NewLinear(rng, name+".o", dModel, dModel),
	}
}

// forward attends a (T, dModel) sequence to itself, returning (T, dModel).
func (a *multiHeadAttention) forward(x *mat.Dense) *mat.Dense {
	seqLen, _ := x.Dims()
	q := a.q.Forward(x)
	k := a.k.Forward(x)
	v := a.v.Forward(x)

	ctx := mat.NewDense(seqLen, a.dModel, nil)
	for h := 0; h < a.nHeads; h++ {
		lo := h * a.headDim
		scores := mat.NewDense(seqLen, seqLen, nil)
		for i := 0; i < seqLen; i++ {
			for j := 0; j < seqLen; j++ {
				var dot float64
				for d := 0; d < a.headDim; d++ {
					dot += q.At(i, lo+d) * k.At(j, lo+d)
				}
				scores.Set(i, j, dot/math.Sqrt(float64(a.headDim)))
			}
		}
		weights := layers.SoftmaxRows(scores)
		for i := 0; i < seqLen; i++ {
			for d := 0; d < a.headDim; d++ {
				var sum float64
				for j := 0; j < seqLen; j++ {
					sum += weights.At(i, j) * v.At(j, lo+d)
				}
				ctx.Set(i, lo+d, sum)
			}
		}
	}
	return a.o.Forward(ctx)
}

func (a *multiHeadAttention) params() []*layers.Param {
	var ps []*layers.Param
	ps = append(ps, a.q.Params()...)
	ps = append(ps, a.k.Params()...)
	ps = append(ps, a.v.Params()...)
	ps = append(ps, a.o.Params()...)
	return ps
}

// layerNorm normalizes each time step across channels with learned scale and
// shift.
type layerNorm struct {
	dModel int
	gamma  *layers.Param
	beta   *layers.Param
}

func newLayerNorm(name string, dModel int) *layerNorm {
	gamma := mat.NewDense(1, dModel, nil)
	for j := 0; j < dModel; j++ {
		gamma.Set(0, j, 1)
	}
	return &layerNorm{
		dModel: dModel,
		gamma:  layers.NewParam(name+".gamma", gamma),
		beta:   layers.NewParam(name+".beta", mat.NewDense(1, dModel, nil)),
	}
}

func (n *layerNorm) forward(x *mat.Dense) *mat.Dense {
	const epsilon = 1e-6
	rows, _ := x.Dims()
	out := mat.NewDense(rows, n.dModel, nil)
	for i := 0; i < rows; i++ {
		var mean float64
		for j := 0; j < n.dModel; j++ {
			mean += x.At(i, j)
		}
		mean /= float64(n.dModel)

		var variance float64
		for j := 0; j < n.dModel; j++ {
			d := x.At(i, j) - mean
			variance += d * d
		}
		variance /= float64(n.dModel)

		std := math.Sqrt(variance + epsilon)
		for j := 0; j < n.dModel; j++ {
			out.Set(i, j, (x.At(i, j)-mean)/std*n.gamma.Value.At(0, j)+n.beta.Value.At(0, j))
		}
	}
	return out
}

func (n *layerNorm) params() []*layers.Param {
	return []*layers.Param{n.gamma, n.beta}
}

// encoderLayer is self-attention followed by a position-wise feed-forward
// sublayer, each with a residual connection and layer normalization.
type encoderLayer struct {
	attn  *multiHeadAttention
	norm1 *layerNorm
	ff1   *layers.Linear
	ff2   *layers.Linear
	norm2 *layerNorm
}

func newEncoderLayer(rng *rand.Rand, name string, dModel, nHeads, ffWidth int) *encoderLayer {
	return &encoderLayer{
		attn:  newMultiHeadAttention(rng, name+".attn", dModel, nHeads),
		norm1: newLayerNorm(name+".norm1", dModel),
		ff1:   layers.NewLinear(rng, name+".ff1", dModel, ffWidth),
		ff2:   layers.NewLinear(rng, name+".ff2", ffWidth, dModel),
		norm2: newLayerNorm(name+".norm2", dModel),
	}
}

func (l *encoderLayer) forward(x *mat.Dense) *mat.Dense {
	attended := l.attn.forward(x)
	attended.Add(attended, x)
	h := l.norm1.forward(attended)

	ff := l.ff2.Forward(layers.ReLU(l.ff1.Forward(h)))
	ff.Add(ff, h)
	return l.norm2.forward(ff)
}

func (l *encoderLayer) params() []*layers.Param {
	var ps []*layers.Param
	ps = append(ps, l.attn.params()...)
	ps = append(ps, l.norm1.params()...)
	ps = append(ps, l.ff1.Params()...)
	ps = append(ps, l.ff2.Params()...)
	ps = append(ps, l.norm2.params()...)
	return ps
}

// encoder stacks encoder layers over one (T, dModel) sequence.
type encoder struct {
	layers []*encoderLayer
}

func newEncoderStack(rng *rand.Rand, dModel, nHeads, ffWidth, nLayers int) *encoder {
	e := &encoder{layers: make([]*encoderLayer, nLayers)}
	for i := range e.layers {
		e.layers[i] = newEncoderLayer(rng, fmt.Sprintf("encoder.layer%d", i), dModel, nHeads, ffWidth)
	}
	return e
}

func (e *encoder) forward(x *mat.Dense) *mat.Dense {
	h := x
	for _, l := range e.layers {
		h = l.forward(h)
	}
	return h
}

func (e *encoder) params() []*layers.Param {
	var ps []*layers.Param
	for _, l := range e.layers {
		ps = append(ps, l.params()...)
	}
	return ps
}
