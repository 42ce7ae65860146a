package layers

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// MLP is the default task-head shape: a fixed number of width-preserving
// linear+ReLU layers followed by a linear projection to the output width.
type MLP struct {
	hidden []*Linear
	out    *Linear
}

// DefaultHeadLayers is the hidden depth used for classifier and forecaster
// heads when the caller does not supply one.
const DefaultHeadLayers = 3

// NewMLP builds an MLP with nLayers hidden layers of width `in` and a final
// projection to `out`.
func NewMLP(rng *rand.Rand, name string, in, out, nLayers int) *MLP {
	m := &MLP{hidden: make([]*Linear, nLayers)}
	for i := range m.hidden {
		m.hidden[i] = NewLinear(rng, fmt.Sprintf("%s.hidden%d", name, i), in, in)
	}
	m.out = NewLinear(rng, name+".out", in, out)
	return m
}

// Out returns the output width.
func (m *MLP) Out() int { return m.out.Out() }

// Forward applies the MLP to a (B, in) matrix, returning a (B, out) matrix.
func (m *MLP) Forward(x *mat.Dense) *mat.Dense {
	h := x
	for _, l := range m.hidden {
		h = ReLU(l.Forward(h))
	}
	return m.out.Forward(h)
}

// Params returns all parameters of the MLP.
func (m *MLP) Params() []*Param {
	var ps []*Param
	for _, l := range m.hidden {
		ps = append(ps, l.Params()...)
	}
	return append(ps, m.out.Params()...)
}
