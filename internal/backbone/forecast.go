package backbone

import (
	"fmt"

	"github.com/seriesnet/multitask/internal/series"
)

// ForecastInChunks extends any backbone's fixed-horizon forecast to an
// arbitrary horizon n by repeatedly sliding a window of the last NIn produced
// steps over the output buffer and invoking the native forecast on it. Each
// chunk is predicted independently from prior predictions, so chunk
// boundaries may be discontinuous; no backbone state survives between calls.
//
// The result has shape (B, NIn+n, D) and its first NIn steps equal x.
func ForecastInChunks(m Backbone, x *series.Batch, n int) (*series.Batch, error) {
	if !m.IsPreparedToForecast() {
		return nil, fmt.Errorf("%w: %s was not prepared to forecast", ErrNotPrepared, m.Name())
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: forecast horizon must be >= 1 (got %d)", ErrConfig, n)
	}
	if err := checkInput(m, x); err != nil {
		return nil, err
	}

	b, t, d := x.Dims()
	ts := series.New(b, t+n, d)
	ts.SetWindow(0, x)

	nOut := m.NOut()
	for i := t; i < t+n; i += nOut {
		window := ts.Window(i-m.NIn(), i)
		out, err := Forecast(m, window)
		if err != nil {
			return nil, err
		}
		keep := nOut
		if remaining := t + n - i; remaining < keep {
			keep = remaining
		}
		ts.SetWindow(i, out.Window(0, keep))
	}
	return ts, nil
}
