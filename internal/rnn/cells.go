// Package rnn implements the recurrent multi-task backbone: a GRU- or
// LSTM-family sequence encoder whose final hidden output is the feature
// vector, with chunked and recurrent autoregressive forecasting strategies.
package rnn

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/seriesnet/multitask/internal/layers"
)

// Kind is the closed enumeration of supported recurrent cell families,
// resolved to a concrete implementation at construction time.
type Kind string

const (
	KindGRU  Kind = "GRU"
	KindLSTM Kind = "LSTM"
)

// ParseKind resolves a cell family name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindGRU, KindLSTM:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unsupported recurrent cell %q (want GRU or LSTM)", s)
}

// State is the recurrent state of one layer across a batch. The cell state c
// is nil for GRU layers.
type State struct {
	h *mat.Dense
	c *mat.Dense
}

func newState(batch, hidden int, withCell bool) *State {
	s := &State{h: mat.NewDense(batch, hidden, nil)}
	if withCell {
		s.c = mat.NewDense(batch, hidden, nil)
	}
	return s
}

type cell interface {
	// step advances one time step for a (B, in) input, returning the new
	// layer output (B, hidden) and the updated state.
	step(x *mat.Dense, s *State) (*mat.Dense, *State)
	initState(batch int) *State
	params() []*layers.Param
}

// gruCell implements the standard gated recurrent unit update:
//
//	r = sigmoid(x*Wr^T + h*Ur^T + br)
//	z = sigmoid(x*Wz^T + h*Uz^T + bz)
//	g = tanh(x*Wh^T + (r.h)*Uh^T + bh)
//	h' = (1-z).h + z.g
type gruCell struct {
	in, hidden int

	wr, wz, wh *layers.Param // (hidden, in)
	ur, uz, uh *layers.Param // (hidden, hidden)
	br, bz, bh *layers.Param // (1, hidden)
}

func newGRUCell(rng *rand.Rand, name string, in, hidden int) *gruCell {
	return &gruCell{
		in: in, hidden: hidden,
		wr: layers.NewParam(name+".wr", layers.XavierDense(rng, hidden, in)),
		wz: layers.NewParam(name+".wz", layers.XavierDense(rng, hidden, in)),
		wh: layers.NewParam(name+".wh", layers.XavierDense(rng, hidden, in)),
		ur: layers.NewParam(name+".ur", layers.XavierDense(rng, hidden, hidden)),
		uz: layers.NewParam(name+".uz", layers.XavierDense(rng, hidden, hidden)),
		uh: layers.NewParam(name+".uh", layers.XavierDense(rng, hidden, hidden)),
		br: layers.NewParam(name+".br", mat.NewDense(1, hidden, nil)),
		bz: layers.NewParam(name+".bz", mat.NewDense(1, hidden, nil)),
		bh: layers.NewParam(name+".bh", mat.NewDense(1, hidden, nil)),
	}
}

func (c *gruCell) initState(batch int) *State {
	return newState(batch, c.hidden, false)
}

func (c *gruCell) step(x *mat.Dense, s *State) (*mat.Dense, *State) {
	r := layers.Sigmoid(affine(x, c.wr, s.h, c.ur, c.br))
	z := layers.Sigmoid(affine(x, c.wz, s.h, c.uz, c.bz))
	g := layers.Tanh(affine(x, c.wh, hadamard(r, s.h), c.uh, c.bh))

	b, _ := x.Dims()
	h := mat.NewDense(b, c.hidden, nil)
	for i := 0; i < b; i++ {
		for j := 0; j < c.hidden; j++ {
			zv := z.At(i, j)
			h.Set(i, j, (1-zv)*s.h.At(i, j)+zv*g.At(i, j))
		}
	}
	return h, &State{h: h}
}

func (c *gruCell) params() []*layers.Param {
	return []*layers.Param{c.wr, c.wz, c.wh, c.ur, c.uz, c.uh, c.br, c.bz, c.bh}
}

// lstmCell implements the standard long short-term memory update:
//
//	i = sigmoid(x*Wi^T + h*Ui^T + bi)
//	f = sigmoid(x*Wf^T + h*Uf^T + bf)
//	o = sigmoid(x*Wo^T + h*Uo^T + bo)
//	g = tanh(x*Wg^T + h*Ug^T + bg)
//	c' = f.c + i.g
//	h' = o.tanh(c')
type lstmCell struct {
	in, hidden int

	wi, wf, wo, wg *layers.Param // (hidden, in)
	ui, uf, uo, ug *layers.Param // (hidden, hidden)
	bi, bf, bo, bg *layers.Param // (1, hidden)
}

func newLSTMCell(rng *rand.Rand, name string, in, hidden int) *lstmCell {
	return &lstmCell{
		in: in, hidden: hidden,
		wi: layers.NewParam(name+".wi", layers.XavierDense(rng, hidden, in)),
		wf: layers.NewParam(name+".wf", layers.XavierDense(rng, hidden, in)),
		wo: layers.NewParam(name+".wo", layers.XavierDense(rng, hidden, in)),
		wg: layers.NewParam(name+".wg", layers.XavierDense(rng, hidden, in)),
		ui: layers.NewParam(name+".ui", layers.XavierDense(rng, hidden, hidden)),
		uf: layers.NewParam(name+".uf", layers.XavierDense(rng, hidden, hidden)),
		uo: layers.NewParam(name+".uo", layers.XavierDense(rng, hidden, hidden)),
		ug: layers.NewParam(name+".ug", layers.XavierDense(rng, hidden, hidden)),
		bi: layers.NewParam(name+".bi", mat.NewDense(1, hidden, nil)),
		bf: layers.NewParam(name+".bf", mat.NewDense(1, hidden, nil)),
		bo: layers.NewParam(name+".bo", mat.NewDense(1, hidden, nil)),
		bg: layers.NewParam(name+".bg", mat.NewDense(1, hidden, nil)),
	}
}

func (c *lstmCell) initState(batch int) *State {
	return newState(batch, c.hidden, true)
}

func (c *lstmCell) step(x *mat.Dense, s *State) (*mat.Dense, *State) {
	i := layers.Sigmoid(affine(x, c.wi, s.h, c.ui, c.bi))
	f := layers.Sigmoid(affine(x, c.wf, s.h, c.uf, c.bf))
	o := layers.Sigmoid(affine(x, c.wo, s.h, c.uo, c.bo))
	g := layers.Tanh(affine(x, c.wg, s.h, c.ug, c.bg))

	b, _ := x.Dims()
	cNew := mat.NewDense(b, c.hidden, nil)
	hNew := mat.NewDense(b, c.hidden, nil)
	for r := 0; r < b; r++ {
		for j := 0; j < c.hidden; j++ {
			cv := f.At(r, j)*s.c.At(r, j) + i.At(r, j)*g.At(r, j)
			cNew.Set(r, j, cv)
			hNew.Set(r, j, o.At(r, j)*math.Tanh(cv))
		}
	}
	return hNew, &State{h: hNew, c: cNew}
}

func (c *lstmCell) params() []*layers.Param {
	return []*layers.Param{
		c.wi, c.wf, c.wo, c.wg,
		c.ui, c.uf, c.uo, c.ug,
		c.bi, c.bf, c.bo, c.bg,
	}
}

// affine computes x*W^T + h*U^T + b with a row-broadcast bias.
func affine(x *mat.Dense, w *layers.Param, h *mat.Dense, u *layers.Param, bias *layers.Param) *mat.Dense {
	rows, _ := x.Dims()
	_, hidden := bias.Value.Dims()
	out := mat.NewDense(rows, hidden, nil)
	out.Mul(x, w.Value.T())
	tmp := mat.NewDense(rows, hidden, nil)
	tmp.Mul(h, u.Value.T())
	out.Add(out, tmp)
	for i := 0; i < rows; i++ {
		for j := 0; j < hidden; j++ {
			out.Set(i, j, out.At(i, j)+bias.Value.At(0, j))
		}
	}
	return out
}

// hadamard computes the elementwise product of two equally shaped matrices.
func hadamard(a, b *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	out.MulElem(a, b)
	return out
}

