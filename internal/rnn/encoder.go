package rnn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/seriesnet/multitask/internal/layers"
	"github.com/seriesnet/multitask/internal/series"
)

// encoder stacks recurrent layers. The first layer consumes the raw channels;
// subsequent layers consume the previous layer's hidden output.
type encoder struct {
	cells   []cell
	nHidden int
}

func newEncoder(rng *rand.Rand, kind Kind, inDim, nHidden, nLayers int) *encoder {
	e := &encoder{cells: make([]cell, nLayers), nHidden: nHidden}
	for l := 0; l < nLayers; l++ {
		in := inDim
		if l > 0 {
			in = nHidden
		}
		name := fmt.Sprintf("%s.layer%d", kind, l)
		switch kind {
		case KindLSTM:
			e.cells[l] = newLSTMCell(rng, name, in, nHidden)
		default:
			e.cells[l] = newGRUCell(rng, name, in, nHidden)
		}
	}
	return e
}

// forward consumes a full (B, T, D) batch from zero state, returning the last
// layer's output at the final time step and the per-layer states, which can
// be threaded into stepOne to continue the sequence.
func (e *encoder) forward(x *series.Batch) (*mat.Dense, []*State) {
	b, t, _ := x.Dims()
	states := make([]*State, len(e.cells))
	for l, c := range e.cells {
		states[l] = c.initState(b)
	}
	var out *mat.Dense
	for j := 0; j < t; j++ {
		out = e.advance(x.Step(j), states)
	}
	return out, states
}

// stepOne advances all layers by a single (B, D) step, mutating states.
func (e *encoder) stepOne(x *mat.Dense, states []*State) *mat.Dense {
	return e.advance(x, states)
}

func (e *encoder) advance(x *mat.Dense, states []*State) *mat.Dense {
	inp := x
	for l, c := range e.cells {
		h, s := c.step(inp, states[l])
		states[l] = s
		inp = h
	}
	return inp
}

func (e *encoder) params() []*layers.Param {
	var ps []*layers.Param
	for _, c := range e.cells {
		ps = append(ps, c.params()...)
	}
	return ps
}
