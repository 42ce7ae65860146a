// Package layers provides the shared neural layer primitives used by every
// backbone: trainable parameters, linear transformations, the default MLP
// head shape, and elementwise activations. All math is done on gonum matrices.
package layers

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Param is a single weight tensor together with its trainable flag.
// Task heads and backbones share Params by reference, so toggling the flag
// is visible to every view of the same backbone.
type Param struct {
	Name      string
	Value     *mat.Dense
	trainable bool
}

// NewParam wraps a value as a trainable parameter.
func NewParam(name string, value *mat.Dense) *Param {
	return &Param{Name: name, Value: value, trainable: true}
}

// Trainable reports whether gradients should be computed for this parameter.
func (p *Param) Trainable() bool {
	return p.trainable
}

// SetTrainable toggles the trainable flag in place.
func (p *Param) SetTrainable(v bool) {
	p.trainable = v
}

// XavierDense creates a (rows, cols) matrix with Xavier-scaled uniform values.
func XavierDense(rng *rand.Rand, rows, cols int) *mat.Dense {
	scale := math.Sqrt(2.0 / float64(rows+cols))
	backing := make([]float64, rows*cols)
	for i := range backing {
		backing[i] = (rng.Float64()*2 - 1) * scale
	}
	return mat.NewDense(rows, cols, backing)
}
