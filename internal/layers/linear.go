package layers

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Linear is a fully connected layer computing y = x*W^T + b over a batch.
// W has shape (out, in) and b has shape (1, out).
type Linear struct {
	in, out int
	w, b    *Param
}

// NewLinear creates a linear layer with Xavier-initialized weights and zero bias.
func NewLinear(rng *rand.Rand, name string, in, out int) *Linear {
	return &Linear{
		in:  in,
		out: out,
		w:   NewParam(name+".weight", XavierDense(rng, out, in)),
		b:   NewParam(name+".bias", mat.NewDense(1, out, nil)),
	}
}

// In returns the input width.
func (l *Linear) In() int { return l.in }

// Out returns the output width.
func (l *Linear) Out() int { return l.out }

// Forward applies the layer to a (B, in) matrix, returning a (B, out) matrix.
func (l *Linear) Forward(x *mat.Dense) *mat.Dense {
	rows, _ := x.Dims()
	out := mat.NewDense(rows, l.out, nil)
	out.Mul(x, l.w.Value.T())
	for i := 0; i < rows; i++ {
		for j := 0; j < l.out; j++ {
			out.Set(i, j, out.At(i, j)+l.b.Value.At(0, j))
		}
	}
	return out
}

// Params returns the layer's parameters (weight then bias).
func (l *Linear) Params() []*Param {
	return []*Param{l.w, l.b}
}

// Weight returns the weight parameter.
func (l *Linear) Weight() *Param { return l.w }

// Bias returns the bias parameter.
func (l *Linear) Bias() *Param { return l.b }
