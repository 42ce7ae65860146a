// Package models defines the request and response payloads of the HTTP API
// and their conversions to the internal series container.
package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/seriesnet/multitask/internal/series"
)

// SeriesRequest carries a batch of input windows as nested arrays in
// [batch][time][channel] order.
type SeriesRequest struct {
	Series [][][]float64 `json:"series"`
}

// ForecastRequest carries the input windows plus an optional extended horizon
// and strategy. With Horizon 0 the model's native fixed-horizon forecast is
// returned.
type ForecastRequest struct {
	Series   [][][]float64 `json:"series"`
	Horizon  int           `json:"horizon,omitempty"`
	Strategy string        `json:"strategy,omitempty"`
}

// ClassifyResponse contains one predicted class index per input window.
type ClassifyResponse struct {
	Classes []int `json:"classes"`
}

// FeaturizeResponse contains one feature vector per input window.
type FeaturizeResponse struct {
	Features [][]float64 `json:"features"`
}

// ForecastResponse contains the forecast windows in [batch][time][channel]
// order. For extended-horizon forecasts the input windows are included as
// the leading time steps.
type ForecastResponse struct {
	Series [][][]float64 `json:"series"`
}

// PrepareRequest carries the size of the task head to prepare: the class
// count, feature width, or forecast horizon depending on the task.
type PrepareRequest struct {
	Size int `json:"size"`
}

// ModelInfo describes the served model and its readiness per task.
type ModelInfo struct {
	Version     string         `json:"version,omitempty"`
	Model       string         `json:"model"`
	NIn         int            `json:"n_in"`
	SpaceDim    int            `json:"space_dim"`
	NClasses    int            `json:"n_classes"`
	NFeatures   int            `json:"n_features"`
	NOut        int            `json:"n_out"`
	Strategies  []string       `json:"strategies,omitempty"`
	Hyperparams map[string]any `json:"hyperparams"`
}

// ToBatch validates and converts nested request arrays into a series batch.
// Every window must have the same length and every step the same dimension.
func ToBatch(values [][][]float64) (*series.Batch, error) {
	if len(values) == 0 || len(values[0]) == 0 || len(values[0][0]) == 0 {
		return nil, fmt.Errorf("series must be a non-empty [batch][time][channel] array")
	}
	b, t, d := len(values), len(values[0]), len(values[0][0])
	out := series.New(b, t, d)
	for i, seq := range values {
		if len(seq) != t {
			return nil, fmt.Errorf("series %d has %d time steps, want %d", i, len(seq), t)
		}
		for j, step := range seq {
			if len(step) != d {
				return nil, fmt.Errorf("series %d step %d has %d channels, want %d", i, j, len(step), d)
			}
			for k, v := range step {
				out.Set(i, j, k, v)
			}
		}
	}
	return out, nil
}

// FromBatch converts a series batch back into nested response arrays.
func FromBatch(x *series.Batch) [][][]float64 {
	b, t, d := x.Dims()
	out := make([][][]float64, b)
	for i := 0; i < b; i++ {
		out[i] = make([][]float64, t)
		for j := 0; j < t; j++ {
			step := make([]float64, d)
			for k := 0; k < d; k++ {
				step[k] = x.At(i, j, k)
			}
			out[i][j] = step
		}
	}
	return out
}

// MatrixRows converts a matrix into one slice per row.
func MatrixRows(m *mat.Dense) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		for j := 0; j < c; j++ {
			row[j] = m.At(i, j)
		}
		out[i] = row
	}
	return out
}
