package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/seriesnet/multitask/internal/backbone"
	"github.com/seriesnet/multitask/internal/config"
	"github.com/seriesnet/multitask/internal/models"
	"github.com/seriesnet/multitask/internal/registry"
	"github.com/seriesnet/multitask/internal/runs"
	"github.com/seriesnet/multitask/internal/series"
)

// oneByOneForecaster is implemented by backbones that can extend the horizon
// autoregressively one step at a time.
type oneByOneForecaster interface {
	ForecastRecurrentlyOneByOne(x *series.Batch, n int) (*series.Batch, error)
}

// multiFirstForecaster is implemented by backbones that can extend the
// horizon keeping the first step of each multi-step prediction.
type multiFirstForecaster interface {
	ForecastRecurrentlyMultiFirst(x *series.Batch, n int) (*series.Batch, error)
}

// strategist is implemented by backbones that report their applicable
// forecast strategies.
type strategist interface {
	Strategies() []string
}

// Handler provides HTTP API endpoints
type Handler struct {
	mu       sync.RWMutex
	model    backbone.Backbone
	runStore *runs.Store
	cfg      config.Config
}

// NewHandler creates a new API handler
func NewHandler(model backbone.Backbone, runStore *runs.Store, cfg config.Config) *Handler {
	return &Handler{
		model:    model,
		runStore: runStore,
		cfg:      cfg,
	}
}

// RegisterRoutes sets up all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Health and info
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/info", h.handleInfo).Methods("GET")
	r.HandleFunc("/architectures", h.handleArchitectures).Methods("GET")

	// Tasks
	r.HandleFunc("/classify", h.handleClassify).Methods("POST")
	r.HandleFunc("/featurize", h.handleFeaturize).Methods("POST")
	r.HandleFunc("/forecast", h.handleForecast).Methods("POST")

	// Task preparation and featurizer freezing
	r.HandleFunc("/prepare/{task}", h.handlePrepare).Methods("POST")
	r.HandleFunc("/freeze", h.handleFreeze).Methods("POST")
	r.HandleFunc("/unfreeze", h.handleUnfreeze).Methods("POST")

	// Run records
	r.HandleFunc("/runs", h.handleListRuns).Methods("GET")
	r.HandleFunc("/runs/{id}", h.handleGetRun).Methods("GET")
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("failed to encode response")
	}
}

// respondError sends a JSON error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondModelError maps the backbone error kinds to HTTP statuses: bad
// arguments and shapes are the client's fault, readiness and ordering are
// state conflicts.
func respondModelError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, backbone.ErrShape), errors.Is(err, backbone.ErrConfig):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, backbone.ErrNotPrepared), errors.Is(err, backbone.ErrOrdering):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// handleHealth returns server health status
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleInfo returns the served model's geometry and readiness
func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	info := models.ModelInfo{
		Version:     h.cfg.Version,
		Model:       h.model.Name(),
		NIn:         h.model.NIn(),
		SpaceDim:    h.model.SpaceDim(),
		NClasses:    h.model.NClasses(),
		NFeatures:   h.model.NFeatures(),
		NOut:        h.model.NOut(),
		Hyperparams: h.model.Hyperparameters(),
	}
	if s, ok := h.model.(strategist); ok {
		info.Strategies = s.Strategies()
	} else {
		info.Strategies = []string{"chunks"}
	}
	respondJSON(w, http.StatusOK, info)
}

// handleArchitectures returns the buildable architecture names
func (h *Handler) handleArchitectures(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, registry.Names())
}

// handleClassify predicts one class index per input window
func (h *Handler) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req models.SeriesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	x, err := models.ToBatch(req.Series)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.mu.RLock()
	classes, err := backbone.Classify(h.model, x)
	h.mu.RUnlock()
	if err != nil {
		respondModelError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.ClassifyResponse{Classes: classes})
}

// handleFeaturize computes one feature vector per input window
func (h *Handler) handleFeaturize(w http.ResponseWriter, r *http.Request) {
	var req models.SeriesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	x, err := models.ToBatch(req.Series)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.mu.RLock()
	features, err := backbone.Featurize(h.model, x)
	h.mu.RUnlock()
	if err != nil {
		respondModelError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.FeaturizeResponse{Features: models.MatrixRows(features)})
}

// handleForecast runs the native fixed-horizon forecast, or an extended
// forecast when a horizon is given
func (h *Handler) handleForecast(w http.ResponseWriter, r *http.Request) {
	var req models.ForecastRequest
	if !decodeBody(w, r, &req) {
		return
	}
	x, err := models.ToBatch(req.Series)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.mu.RLock()
	out, err := h.forecast(x, req.Horizon, req.Strategy)
	h.mu.RUnlock()
	if err != nil {
		respondModelError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.ForecastResponse{Series: models.FromBatch(out)})
}

func (h *Handler) forecast(x *series.Batch, horizon int, strategy string) (*series.Batch, error) {
	if horizon == 0 {
		return backbone.Forecast(h.model, x)
	}
	switch strategy {
	case "", "chunks":
		return backbone.ForecastInChunks(h.model, x, horizon)
	case "one_by_one":
		f, ok := h.model.(oneByOneForecaster)
		if !ok {
			return nil, errUnsupportedStrategy(h.model, strategy)
		}
		return f.ForecastRecurrentlyOneByOne(x, horizon)
	case "multi_first":
		f, ok := h.model.(multiFirstForecaster)
		if !ok {
			return nil, errUnsupportedStrategy(h.model, strategy)
		}
		return f.ForecastRecurrentlyMultiFirst(x, horizon)
	}
	return nil, errUnsupportedStrategy(h.model, strategy)
}

func errUnsupportedStrategy(m backbone.Backbone, strategy string) error {
	return fmt.Errorf("%w: %s does not support forecast strategy %q", backbone.ErrConfig, m.Name(), strategy)
}

// handlePrepare activates a task head on the served model
func (h *Handler) handlePrepare(w http.ResponseWriter, r *http.Request) {
	task, ok := backbone.ParseTask(mux.Vars(r)["task"])
	if !ok {
		respondError(w, http.StatusNotFound, "unknown task: "+mux.Vars(r)["task"])
		return
	}
	var req models.PrepareRequest
	if !decodeBody(w, r, &req) {
		return
	}

	h.mu.Lock()
	var err error
	switch task {
	case backbone.TaskClassify:
		err = h.model.PrepareToClassify(req.Size)
	case backbone.TaskFeaturize:
		err = h.model.PrepareToFeaturize(req.Size)
	case backbone.TaskForecast:
		err = h.model.PrepareToForecast(req.Size)
	}
	h.mu.Unlock()

	if err != nil {
		respondModelError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "prepared", "task": task.String()})
}

// handleFreeze marks the featurizer parameters as not trainable
func (h *Handler) handleFreeze(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	backbone.FreezeFeaturizer(h.model)
	h.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]string{"status": "frozen"})
}

// handleUnfreeze marks the featurizer parameters as trainable
func (h *Handler) handleUnfreeze(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	backbone.UnfreezeFeaturizer(h.model)
	h.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]string{"status": "unfrozen"})
}

// handleListRuns returns all recorded runs
func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runStore == nil {
		respondJSON(w, http.StatusOK, []*runs.Run{})
		return
	}
	list, err := h.runStore.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []*runs.Run{}
	}
	respondJSON(w, http.StatusOK, list)
}

// handleGetRun returns one recorded run by id
func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.runStore == nil {
		respondError(w, http.StatusNotFound, "no run store available")
		return
	}
	run, err := h.runStore.Get(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, run)
}
