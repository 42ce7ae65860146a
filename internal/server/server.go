// Package server wires the built model, the run store, and the HTTP API into
// one process.
package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/seriesnet/multitask/internal/api"
	"github.com/seriesnet/multitask/internal/backbone"
	"github.com/seriesnet/multitask/internal/config"
	"github.com/seriesnet/multitask/internal/registry"
	"github.com/seriesnet/multitask/internal/runs"
)

// Server holds all the components for the model-serving application
type Server struct {
	cfg        config.Config
	httpServer *http.Server
	router     *mux.Router
	model      backbone.Backbone
	runStore   *runs.Store
}

// New builds the model described by the configured spec file and creates a
// Server around it
func New(cfg config.Config) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		router: mux.NewRouter(),
	}

	spec, err := config.LoadModelSpec(cfg.ModelFile)
	if err != nil {
		return nil, err
	}

	model, err := registry.Build(spec.Model, spec.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to build model %q: %w", spec.Model, err)
	}
	s.model = model

	// The run store is optional: serving works without persistence.
	runStore, err := runs.NewStore(filepath.Join(cfg.DataDir, "runs.db"))
	if err != nil {
		logrus.WithError(err).Warn("run store not available")
	} else {
		s.runStore = runStore
		run, err := runStore.Record(model.Name(), model.Hyperparameters())
		if err != nil {
			logrus.WithError(err).Warn("failed to record run")
		} else {
			logrus.WithFields(logrus.Fields{
				"run":   run.ID,
				"model": model.Name(),
			}).Info("recorded run")
		}
	}

	s.setupRoutes()
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	apiRouter := s.router.PathPrefix("/api").Subrouter()
	apiHandler := api.NewHandler(s.model, s.runStore, s.cfg)
	apiHandler.RegisterRoutes(apiRouter)
}

// Model exposes the served backbone, mainly for tests.
func (s *Server) Model() backbone.Backbone { return s.model }

// Router exposes the configured router, mainly for tests.
func (s *Server) Router() *mux.Router { return s.router }

// Start begins listening for HTTP connections
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logrus.WithField("addr", fmt.Sprintf("http://localhost:%d", s.cfg.Port)).Info("server listening")
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.runStore != nil {
		s.runStore.Close()
	}

	return s.httpServer.Shutdown(ctx)
}
