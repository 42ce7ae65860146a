package layers

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ReLU applies max(0, v) elementwise, returning a new matrix.
func ReLU(x *mat.Dense) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, _ int, v float64) float64 {
		if v < 0 {
			return 0
		}
		return v
	}, x)
	return out
}

// Sigmoid applies the logistic function elementwise, returning a new matrix.
func Sigmoid(x *mat.Dense) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, _ int, v float64) float64 {
		return 1.0 / (1.0 + math.Exp(-v))
	}, x)
	return out
}

// Tanh applies the hyperbolic tangent elementwise, returning a new matrix.
func Tanh(x *mat.Dense) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, _ int, v float64) float64 {
		return math.Tanh(v)
	}, x)
	return out
}

// SoftmaxRows applies a numerically stable softmax to each row.
func SoftmaxRows(x *mat.Dense) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		maxVal := x.At(i, 0)
		for j := 1; j < c; j++ {
			if x.At(i, j) > maxVal {
				maxVal = x.At(i, j)
			}
		}
		var sum float64
		for j := 0; j < c; j++ {
			e := math.Exp(x.At(i, j) - maxVal)
			out.Set(i, j, e)
			sum += e
		}
		for j := 0; j < c; j++ {
			out.Set(i, j, out.At(i, j)/sum)
		}
	}
	return out
}

// ArgmaxRows returns the column index of the largest value in each row.
func ArgmaxRows(x *mat.Dense) []int {
	r, c := x.Dims()
	out := make([]int, r)
	for i := 0; i < r; i++ {
		best := 0
		for j := 1; j < c; j++ {
			if x.At(i, j) > x.At(i, best) {
				best = j
			}
		}
		out[i] = best
	}
	return out
}
