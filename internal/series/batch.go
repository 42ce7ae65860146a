// Package series provides the batched multivariate time-series container
// shared by all backbones. A Batch holds B independent sequences of T time
// steps with D co-varying channels each, stored row-major as [batch][time][channel].
package series

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Batch is a (B, T, D) tensor of float64 values.
type Batch struct {
	b, t, d int
	data    []float64
}

// New creates a zero-filled batch with the given dimensions.
func New(b, t, d int) *Batch {
	if b < 1 || t < 1 || d < 1 {
		panic(fmt.Sprintf("series: invalid batch dimensions (%d, %d, %d)", b, t, d))
	}
	return &Batch{b: b, t: t, d: d, data: make([]float64, b*t*d)}
}

// FromValues creates a batch backed by a copy of the given data,
// which must have length b*t*d in [batch][time][channel] order.
func FromValues(b, t, d int, data []float64) (*Batch, error) {
	if len(data) != b*t*d {
		return nil, fmt.Errorf("series: expected %d values for a (%d, %d, %d) batch, got %d",
			b*t*d, b, t, d, len(data))
	}
	out := New(b, t, d)
	copy(out.data, data)
	return out, nil
}

// Dims returns the batch size, sequence length, and channel count.
func (x *Batch) Dims() (b, t, d int) {
	return x.b, x.t, x.d
}

// At returns the value for sequence i at time step j, channel k.
func (x *Batch) At(i, j, k int) float64 {
	return x.data[(i*x.t+j)*x.d+k]
}

// Set stores a value for sequence i at time step j, channel k.
func (x *Batch) Set(i, j, k int, v float64) {
	x.data[(i*x.t+j)*x.d+k] = v
}

// Step extracts time step j across the batch as a (B, D) matrix.
func (x *Batch) Step(j int) *mat.Dense {
	out := mat.NewDense(x.b, x.d, nil)
	for i := 0; i < x.b; i++ {
		for k := 0; k < x.d; k++ {
			out.Set(i, k, x.At(i, j, k))
		}
	}
	return out
}

// SetStep writes a (B, D) matrix into time step j across the batch.
func (x *Batch) SetStep(j int, m *mat.Dense) {
	for i := 0; i < x.b; i++ {
		for k := 0; k < x.d; k++ {
			x.Set(i, j, k, m.At(i, k))
		}
	}
}

// Window returns a copy of time steps [from, to) as a new batch.
func (x *Batch) Window(from, to int) *Batch {
	out := New(x.b, to-from, x.d)
	for i := 0; i < x.b; i++ {
		for j := from; j < to; j++ {
			for k := 0; k < x.d; k++ {
				out.Set(i, j-from, k, x.At(i, j, k))
			}
		}
	}
	return out
}

// SetWindow writes the whole of w into x starting at time step `at`.
func (x *Batch) SetWindow(at int, w *Batch) {
	for i := 0; i < w.b; i++ {
		for j := 0; j < w.t; j++ {
			for k := 0; k < w.d; k++ {
				x.Set(i, at+j, k, w.At(i, j, k))
			}
		}
	}
}

// Flatten interleaves time and channel into a (B, T*D) matrix, the layout
// expected by backbones that operate on univariate flattened sequences.
func (x *Batch) Flatten() *mat.Dense {
	out := mat.NewDense(x.b, x.t*x.d, nil)
	for i := 0; i < x.b; i++ {
		for j := 0; j < x.t; j++ {
			for k := 0; k < x.d; k++ {
				out.Set(i, j*x.d+k, x.At(i, j, k))
			}
		}
	}
	return out
}

// Unflatten reshapes a (B, T*D) matrix back into a (B, T, D) batch.
func Unflatten(m *mat.Dense, t, d int) (*Batch, error) {
	b, c := m.Dims()
	if c != t*d {
		return nil, fmt.Errorf("series: cannot unflatten %d columns into (%d, %d) steps", c, t, d)
	}
	out := New(b, t, d)
	for i := 0; i < b; i++ {
		for j := 0; j < t; j++ {
			for k := 0; k < d; k++ {
				out.Set(i, j, k, m.At(i, j*d+k))
			}
		}
	}
	return out, nil
}

// Clone returns a deep copy of the batch.
func (x *Batch) Clone() *Batch {
	out := New(x.b, x.t, x.d)
	copy(out.data, x.data)
	return out
}

// Values returns the backing values in [batch][time][channel] order.
// The returned slice is a copy.
func (x *Batch) Values() []float64 {
	out := make([]float64, len(x.data))
	copy(out, x.data)
	return out
}
