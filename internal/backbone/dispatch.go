package backbone

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/seriesnet/multitask/internal/layers"
	"github.com/seriesnet/multitask/internal/series"
)

// Result holds the output of a dispatched task. Exactly one field is set,
// matching the task that produced it.
type Result struct {
	Logits   *mat.Dense    // classify: (B, NClasses)
	Features *mat.Dense    // featurize: (B, NFeatures)
	Forecast *series.Batch // forecast: (B, NOut, D)
}

// Dispatch is the single validated entry point for all tasks. It asserts the
// input shape invariant, checks the task's readiness marker, runs the
// task-specific forward computation, and asserts the output postcondition.
func Dispatch(m Backbone, x *series.Batch, task Task) (*Result, error) {
	if err := checkInput(m, x); err != nil {
		return nil, err
	}
	switch task {
	case TaskClassify:
		if !m.IsPreparedToClassify() {
			return nil, fmt.Errorf("%w: %s was not prepared to classify", ErrNotPrepared, m.Name())
		}
		logits, err := m.ForwardClassify(x)
		if err != nil {
			return nil, err
		}
		if _, c := logits.Dims(); c != m.NClasses() {
			return nil, fmt.Errorf("%w: classifier produced %d columns, want %d", ErrShape, c, m.NClasses())
		}
		return &Result{Logits: logits}, nil

	case TaskFeaturize:
		if !m.IsPreparedToFeaturize() {
			return nil, fmt.Errorf("%w: %s was not prepared to featurize", ErrNotPrepared, m.Name())
		}
		features, err := m.ForwardFeaturize(x)
		if err != nil {
			return nil, err
		}
		if _, c := features.Dims(); c != m.NFeatures() {
			return nil, fmt.Errorf("%w: featurizer produced %d columns, want %d", ErrShape, c, m.NFeatures())
		}
		return &Result{Features: features}, nil

	case TaskForecast:
		if !m.IsPreparedToForecast() {
			return nil, fmt.Errorf("%w: %s was not prepared to forecast", ErrNotPrepared, m.Name())
		}
		forecast, err := m.ForwardForecast(x)
		if err != nil {
			return nil, err
		}
		_, t, d := forecast.Dims()
		if t != m.NOut() || d != m.SpaceDim() {
			return nil, fmt.Errorf("%w: forecaster produced (%d, %d) steps, want (%d, %d)",
				ErrShape, t, d, m.NOut(), m.SpaceDim())
		}
		return &Result{Forecast: forecast}, nil
	}
	return nil, fmt.Errorf("%w: unknown task %d", ErrConfig, task)
}

// Classify runs the classification head and reduces the logits to predicted
// class indices via log-softmax + argmax.
func Classify(m Backbone, x *series.Batch) ([]int, error) {
	res, err := Dispatch(m, x, TaskClassify)
	if err != nil {
		return nil, err
	}
	probs := layers.SoftmaxRows(res.Logits)
	r, c := probs.Dims()
	logProbs := mat.NewDense(r, c, nil)
	logProbs.Apply(func(_, _ int, v float64) float64 { return math.Log(v) }, probs)
	return layers.ArgmaxRows(logProbs), nil
}

// Featurize runs the featurization head, returning (B, NFeatures) features.
func Featurize(m Backbone, x *series.Batch) (*mat.Dense, error) {
	res, err := Dispatch(m, x, TaskFeaturize)
	if err != nil {
		return nil, err
	}
	return res.Features, nil
}

// Forecast runs the native fixed-horizon forecast, returning (B, NOut, D).
func Forecast(m Backbone, x *series.Batch) (*series.Batch, error) {
	res, err := Dispatch(m, x, TaskForecast)
	if err != nil {
		return nil, err
	}
	return res.Forecast, nil
}

func checkInput(m Backbone, x *series.Batch) error {
	_, t, d := x.Dims()
	if t != m.NIn() {
		return fmt.Errorf("%w: %s takes %d time steps as input (got %d)", ErrShape, m.Name(), m.NIn(), t)
	}
	if d != m.SpaceDim() {
		return fmt.Errorf("%w: %s takes inputs with dimension %d (got %d)", ErrShape, m.Name(), m.SpaceDim(), d)
	}
	return nil
}
