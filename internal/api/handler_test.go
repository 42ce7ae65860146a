package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/seriesnet/multitask/internal/config"
	"github.com/seriesnet/multitask/internal/models"
	"github.com/seriesnet/multitask/internal/rnn"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	model, err := rnn.New(rnn.Config{
		NIn:       4,
		SpaceDim:  2,
		Cell:      rnn.KindGRU,
		NLayers:   1,
		NHidden:   3,
		NClasses:  2,
		NFeatures: 3,
		NOut:      2,
		Seed:      42,
	})
	if err != nil {
		t.Fatalf("Failed to build test model: %v", err)
	}
	cfg := config.Config{
		Port:    8080,
		DataDir: t.TempDir(),
		Version: "test",
	}
	return NewHandler(model, nil, cfg)
}

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	r := mux.NewRouter()
	newTestHandler(t).RegisterRoutes(r)
	return r
}

func postJSON(t *testing.T, r *mux.Router, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to encode request: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// testSeries builds a valid (b, 4, 2) request payload.
func testSeries(b int) [][][]float64 {
	out := make([][][]float64, b)
	for i := range out {
		out[i] = [][]float64{{0, 1}, {0.1, 1.1}, {0.2, 1.2}, {0.3, 1.3}}
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]string
	json.NewDecoder(w.Body).Decode(&response)
	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%s'", response["status"])
	}
}

func TestInfoEndpoint(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest("GET", "/info", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var info models.ModelInfo
	json.NewDecoder(w.Body).Decode(&info)
	if info.Model != "GRU" {
		t.Errorf("Expected model GRU, got %s", info.Model)
	}
	if info.NIn != 4 || info.SpaceDim != 2 || info.NOut != 2 {
		t.Errorf("Geometry wrong: %+v", info)
	}
	if len(info.Strategies) != 2 {
		t.Errorf("Expected 2 strategies, got %v", info.Strategies)
	}
}

func TestArchitecturesEndpoint(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest("GET", "/architectures", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var names []string
	json.NewDecoder(w.Body).Decode(&names)
	if len(names) < 4 {
		t.Errorf("Expected at least 4 architectures, got %v", names)
	}
}

func TestClassifyEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := postJSON(t, r, "/classify", models.SeriesRequest{Series: testSeries(3)})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp models.ClassifyResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Classes) != 3 {
		t.Errorf("Expected 3 predictions, got %d", len(resp.Classes))
	}
}

func TestFeaturizeEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := postJSON(t, r, "/featurize", models.SeriesRequest{Series: testSeries(2)})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp models.FeaturizeResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Features) != 2 || len(resp.Features[0]) != 3 {
		t.Errorf("Expected (2, 3) features, got %dx%d", len(resp.Features), len(resp.Features[0]))
	}
}

func TestForecastNative(t *testing.T) {
	r := newTestRouter(t)

	w := postJSON(t, r, "/forecast", models.ForecastRequest{Series: testSeries(2)})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp models.ForecastResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Series) != 2 || len(resp.Series[0]) != 2 {
		t.Errorf("Expected 2 windows of 2 steps, got %d windows of %d", len(resp.Series), len(resp.Series[0]))
	}
}

func TestForecastExtended(t *testing.T) {
	r := newTestRouter(t)

	for _, strategy := range []string{"chunks", "one_by_one", ""} {
		w := postJSON(t, r, "/forecast", models.ForecastRequest{
			Series:   testSeries(1),
			Horizon:  5,
			Strategy: strategy,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("Strategy %q: expected status 200, got %d: %s", strategy, w.Code, w.Body.String())
		}
		var resp models.ForecastResponse
		json.NewDecoder(w.Body).Decode(&resp)
		// Extended forecasts include the input as the leading steps.
		if len(resp.Series[0]) != 9 {
			t.Errorf("Strategy %q: expected 9 steps, got %d", strategy, len(resp.Series[0]))
		}
	}
}

func TestForecastUnsupportedStrategy(t *testing.T) {
	r := newTestRouter(t)

	w := postJSON(t, r, "/forecast", models.ForecastRequest{
		Series:   testSeries(1),
		Horizon:  5,
		Strategy: "multi_first", // model was built with one_by_one
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestBadShapeIsBadRequest(t *testing.T) {
	r := newTestRouter(t)

	// 3 steps instead of 4.
	w := postJSON(t, r, "/classify", models.SeriesRequest{
		Series: [][][]float64{{{0, 1}, {0, 1}, {0, 1}}},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestNotPreparedIsConflict(t *testing.T) {
	model, err := rnn.New(rnn.Config{
		NIn:      4,
		SpaceDim: 2,
		Cell:     rnn.KindGRU,
		NLayers:  1,
		NHidden:  3,
		NOut:     2, // only forecasting prepared
		Seed:     42,
	})
	if err != nil {
		t.Fatalf("Failed to build test model: %v", err)
	}
	r := mux.NewRouter()
	NewHandler(model, nil, config.Config{Version: "test"}).RegisterRoutes(r)

	w := postJSON(t, r, "/classify", models.SeriesRequest{Series: testSeries(1)})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestPrepareEndpoint(t *testing.T) {
	model, err := rnn.New(rnn.Config{
		NIn:      4,
		SpaceDim: 2,
		Cell:     rnn.KindGRU,
		NLayers:  1,
		NHidden:  3,
		NOut:     2,
		Seed:     42,
	})
	if err != nil {
		t.Fatalf("Failed to build test model: %v", err)
	}
	r := mux.NewRouter()
	NewHandler(model, nil, config.Config{Version: "test"}).RegisterRoutes(r)

	// Too few classes.
	w := postJSON(t, r, "/prepare/classify", models.PrepareRequest{Size: 1})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for 1 class, got %d", w.Code)
	}

	// Valid preparation, then the task works.
	w = postJSON(t, r, "/prepare/classify", models.PrepareRequest{Size: 2})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	w = postJSON(t, r, "/classify", models.SeriesRequest{Series: testSeries(1)})
	if w.Code != http.StatusOK {
		t.Errorf("Expected classify to work after prepare, got %d", w.Code)
	}

	// Unknown task name.
	w = postJSON(t, r, "/prepare/segment", models.PrepareRequest{Size: 2})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown task, got %d", w.Code)
	}
}

func TestFreezeUnfreezeEndpoints(t *testing.T) {
	handler := newTestHandler(t)
	r := mux.NewRouter()
	handler.RegisterRoutes(r)

	w := postJSON(t, r, "/freeze", struct{}{})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	for _, p := range handler.model.FeaturizerParams() {
		if p.Trainable() {
			t.Errorf("Param %s still trainable after freeze", p.Name)
		}
	}

	w = postJSON(t, r, "/unfreeze", struct{}{})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	for _, p := range handler.model.FeaturizerParams() {
		if !p.Trainable() {
			t.Errorf("Param %s still frozen after unfreeze", p.Name)
		}
	}
}

func TestRunsEndpointsWithoutStore(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest("GET", "/runs", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/runs/abc", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}
