package nbeats

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/seriesnet/multitask/internal/backbone"
	"github.com/seriesnet/multitask/internal/series"
)

func testNetworkConfig() NetworkConfig {
	return NetworkConfig{
		NIn:        8,
		NOut:       4,
		NStacks:    2,
		NBlocks:    2,
		NLayers:    2,
		ExpDim:     3,
		LayerWidth: 8,
	}
}

func testModelConfig() Config {
	return Config{
		NIn:        4,
		SpaceDim:   2,
		NStacks:    2,
		NBlocks:    2,
		NLayers:    2,
		ExpDim:     3,
		LayerWidth: 8,
		NClasses:   3,
		NFeatures:  12, // 2 stacks x 2 blocks x 3 coefficients
		NOut:       2,
		Seed:       42,
	}
}

func testBatch(b, t, d int) *series.Batch {
	x := series.New(b, t, d)
	for i := 0; i < b; i++ {
		for j := 0; j < t; j++ {
			for k := 0; k < d; k++ {
				x.Set(i, j, k, float64(i+1)*0.5+float64(j)*0.1+float64(k))
			}
		}
	}
	return x
}

func TestNewNetworkValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*NetworkConfig)
	}{
		{"zero stacks", func(c *NetworkConfig) { c.NStacks = 0 }},
		{"zero blocks", func(c *NetworkConfig) { c.NBlocks = 0 }},
		{"zero layers", func(c *NetworkConfig) { c.NLayers = 0 }},
		{"zero expansion dim", func(c *NetworkConfig) { c.ExpDim = 0 }},
		{"zero layer width", func(c *NetworkConfig) { c.LayerWidth = 0 }},
	}
	rng := rand.New(rand.NewSource(1))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testNetworkConfig()
			tt.mutate(&cfg)
			if _, err := NewNetwork(rng, cfg); err == nil {
				t.Error("Expected construction to fail")
			}
		})
	}
}

func TestNetworkForecastUnboundHorizon(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cfg := testNetworkConfig()
	cfg.NOut = 0
	net, err := NewNetwork(rng, cfg)
	if err != nil {
		t.Fatalf("NewNetwork failed: %v", err)
	}

	if _, err := net.Forecast(mat.NewDense(1, 8, nil)); err == nil {
		t.Error("Expected error with no horizon bound")
	}

	net.SetNOut(4)
	out, err := net.Forecast(mat.NewDense(1, 8, nil))
	if err != nil {
		t.Fatalf("Forecast failed after SetNOut: %v", err)
	}
	if _, c := out.Dims(); c != 4 {
		t.Errorf("Expected 4 forecast columns, got %d", c)
	}
}

func TestFeatureWidthIndependentOfHorizon(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	net, err := NewNetwork(rng, testNetworkConfig())
	if err != nil {
		t.Fatalf("NewNetwork failed: %v", err)
	}

	x := mat.NewDense(2, 8, []float64{
		1, 2, 3, 4, 5, 6, 7, 8,
		8, 7, 6, 5, 4, 3, 2, 1,
	})
	before, err := net.Featurize(x)
	if err != nil {
		t.Fatalf("Featurize failed: %v", err)
	}
	if _, c := before.Dims(); c != net.FeatureWidth() {
		t.Fatalf("Expected %d feature columns, got %d", net.FeatureWidth(), c)
	}

	// Rebinding the horizon replaces only the forecast generators; the
	// feature vector must not change.
	net.SetNOut(9)
	after, err := net.Featurize(x)
	if err != nil {
		t.Fatalf("Featurize failed after rebind: %v", err)
	}
	r, c := before.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if before.At(i, j) != after.At(i, j) {
				t.Fatal("Features changed after horizon rebind")
			}
		}
	}
}

func TestSingleBlockForecastMatchesNetwork(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	net, err := NewNetwork(rng, NetworkConfig{
		NIn: 8, NOut: 4, NStacks: 1, NBlocks: 1, NLayers: 2, ExpDim: 3, LayerWidth: 8,
	})
	if err != nil {
		t.Fatalf("NewNetwork failed: %v", err)
	}

	x := mat.NewDense(1, 8, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	netOut, err := net.Forecast(x)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	_, blockOut, err := net.Stacks()[0].Blocks()[0].Forward(x)
	if err != nil {
		t.Fatalf("Block forward failed: %v", err)
	}

	for j := 0; j < 4; j++ {
		if netOut.At(0, j) != blockOut.At(0, j) {
			t.Fatal("Single-block network forecast should equal the block forecast")
		}
	}
}

func TestForecastIsSumOfBlockForecasts(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	net, err := NewNetwork(rng, testNetworkConfig()) // 2 stacks x 2 blocks
	if err != nil {
		t.Fatalf("NewNetwork failed: %v", err)
	}

	x := mat.NewDense(2, 8, []float64{
		1, 2, 3, 4, 5, 6, 7, 8,
		-1, 0.5, 2, -3, 4, 0, 1, 2,
	})
	netOut, err := net.Forecast(x)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}

	// Replay the doubly-residual propagation block by block: each block sees
	// the previous residual minus its predecessor's backcast, and the total
	// forecast is the element-wise sum of every block's forecast.
	rows, _ := x.Dims()
	residual := x
	total := mat.NewDense(rows, 4, nil)
	for _, s := range net.Stacks() {
		for _, b := range s.Blocks() {
			backcast, forecast, err := b.Forward(residual)
			if err != nil {
				t.Fatalf("Block forward failed: %v", err)
			}
			next := mat.NewDense(rows, 8, nil)
			next.Sub(residual, backcast)
			residual = next
			total.Add(total, forecast)
		}
	}

	for i := 0; i < rows; i++ {
		for j := 0; j < 4; j++ {
			if diff := math.Abs(netOut.At(i, j) - total.At(i, j)); diff > 1e-12 {
				t.Fatalf("Forecast (%d, %d): network %v, block sum %v",
					i, j, netOut.At(i, j), total.At(i, j))
			}
		}
	}
}

func TestReboundGeneratorKeepsBlockName(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	net, err := NewNetwork(rng, testNetworkConfig())
	if err != nil {
		t.Fatalf("NewNetwork failed: %v", err)
	}

	net.SetNOut(7)
	for si, s := range net.Stacks() {
		for bi, b := range s.Blocks() {
			want := fmt.Sprintf("stack%d.block%d.g_forecast.weight", si, bi)
			if got := b.gForecast.Weight().Name; got != want {
				t.Errorf("Expected param name %q, got %q", want, got)
			}
		}
	}
}

func TestTerminalBackcastPathFrozen(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	net, err := NewNetwork(rng, testNetworkConfig())
	if err != nil {
		t.Fatalf("NewNetwork failed: %v", err)
	}

	terminal := net.terminalBlock()
	for _, p := range terminal.fcBackcast.Params() {
		if p.Trainable() {
			t.Errorf("Terminal backcast expansion %s should be frozen from construction", p.Name)
		}
	}
	for _, p := range terminal.gBackcast.Params() {
		if p.Trainable() {
			t.Errorf("Terminal backcast generator %s should be frozen from construction", p.Name)
		}
	}

	// An unfreeze of the featurizer must not re-enable the terminal path.
	for _, p := range net.FeaturizerParams() {
		p.SetTrainable(false)
	}
	for _, p := range net.FeaturizerParams() {
		p.SetTrainable(true)
	}
	for _, p := range terminal.fcBackcast.Params() {
		if p.Trainable() {
			t.Errorf("Unfreeze re-enabled terminal param %s", p.Name)
		}
	}
}

func TestModelTaskShapes(t *testing.T) {
	m, err := New(testModelConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	x := testBatch(3, 4, 2)

	features, err := backbone.Featurize(m, x)
	if err != nil {
		t.Fatalf("Featurize failed: %v", err)
	}
	if r, c := features.Dims(); r != 3 || c != 12 {
		t.Errorf("Expected (3, 12) features, got (%d, %d)", r, c)
	}

	classes, err := backbone.Classify(m, x)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if len(classes) != 3 {
		t.Errorf("Expected 3 class predictions, got %d", len(classes))
	}

	forecast, err := backbone.Forecast(m, x)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	if b, ft, d := forecast.Dims(); b != 3 || ft != 2 || d != 2 {
		t.Errorf("Expected (3, 2, 2) forecast, got (%d, %d, %d)", b, ft, d)
	}
}

func TestClassifyRequiresFeaturize(t *testing.T) {
	cfg := testModelConfig()
	cfg.NFeatures = 0
	cfg.NClasses = 0
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := m.PrepareToClassify(3); !errors.Is(err, backbone.ErrOrdering) {
		t.Fatalf("Expected ErrOrdering, got %v", err)
	}

	if err := m.PrepareToFeaturize(12); err != nil {
		t.Fatalf("PrepareToFeaturize failed: %v", err)
	}
	if err := m.PrepareToClassify(3); err != nil {
		t.Errorf("PrepareToClassify should succeed after featurize, got %v", err)
	}
}

func TestFeaturizeWidthEnforced(t *testing.T) {
	cfg := testModelConfig()
	cfg.NFeatures = 0
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := m.PrepareToFeaturize(7); !errors.Is(err, backbone.ErrConfig) {
		t.Errorf("Expected ErrConfig for wrong feature width, got %v", err)
	}
}

func TestModelChunkedForecast(t *testing.T) {
	m, err := New(testModelConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	x := testBatch(2, 4, 2)

	out, err := backbone.ForecastInChunks(m, x, 5)
	if err != nil {
		t.Fatalf("ForecastInChunks failed: %v", err)
	}
	if b, ft, d := out.Dims(); b != 2 || ft != 9 || d != 2 {
		t.Errorf("Expected (2, 9, 2), got (%d, %d, %d)", b, ft, d)
	}
}

func TestHorizonRebindKeepsFeatures(t *testing.T) {
	m, err := New(testModelConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	x := testBatch(1, 4, 2)

	before, err := backbone.Featurize(m, x)
	if err != nil {
		t.Fatalf("Featurize failed: %v", err)
	}
	if err := m.PrepareToForecast(5); err != nil {
		t.Fatalf("PrepareToForecast failed: %v", err)
	}
	after, err := backbone.Featurize(m, x)
	if err != nil {
		t.Fatalf("Featurize failed after rebind: %v", err)
	}

	_, c := before.Dims()
	for j := 0; j < c; j++ {
		if before.At(0, j) != after.At(0, j) {
			t.Fatal("Features changed after horizon rebind")
		}
	}

	forecast, err := backbone.Forecast(m, x)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	if _, ft, _ := forecast.Dims(); ft != 5 {
		t.Errorf("Expected 5 forecast steps after rebind, got %d", ft)
	}
}
