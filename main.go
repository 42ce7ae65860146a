package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/seriesnet/multitask/internal/config"
	"github.com/seriesnet/multitask/internal/server"
)

var version = "dev"

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	modelFile := flag.String("model", "", "Path to the model spec JSON file")
	dataDir := flag.String("data-dir", "", "Directory for run records")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("seriesd v%s\n", version)
		os.Exit(0)
	}

	// Resolve the model file and data directory:
	// 1. Explicit flags take priority
	// 2. Otherwise, fall back to the saved settings
	resolvedModelFile := *modelFile
	resolvedDataDir := *dataDir

	if resolvedModelFile == "" || resolvedDataDir == "" {
		settings, err := config.LoadSettings()
		if err != nil {
			logrus.WithError(err).Warn("could not load settings")
		} else {
			if resolvedModelFile == "" {
				resolvedModelFile = settings.LastModelFile
			}
			if resolvedDataDir == "" {
				resolvedDataDir = settings.LastDataDir
			}
		}
	}

	if resolvedModelFile == "" {
		logrus.Fatal("no model spec given: pass -model or serve once with it set")
	}
	if resolvedDataDir == "" {
		resolvedDataDir = "./data"
	}
	if err := os.MkdirAll(resolvedDataDir, 0o755); err != nil {
		logrus.WithError(err).Fatal("failed to create data directory")
	}

	// Find an available port (try up to 10 ports starting from the requested one)
	availablePort, err := findAvailablePort(*port, 10)
	if err != nil {
		logrus.WithError(err).Fatal("failed to find available port")
	}
	if availablePort != *port {
		logrus.WithFields(logrus.Fields{"requested": *port, "using": availablePort}).
			Warn("requested port in use")
	}

	cfg := config.Config{
		Port:      availablePort,
		DataDir:   resolvedDataDir,
		ModelFile: resolvedModelFile,
		Version:   version,
	}

	logrus.WithFields(logrus.Fields{
		"version": version,
		"port":    cfg.Port,
		"model":   cfg.ModelFile,
	}).Info("seriesd starting")

	srv, err := server.New(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("failed to create server")
	}

	// Remember the working setup for next time.
	if err := config.SaveSettings(&config.Settings{
		LastModelFile: resolvedModelFile,
		LastDataDir:   resolvedDataDir,
	}); err != nil {
		logrus.WithError(err).Warn("could not save settings")
	}

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logrus.WithError(err).Fatal("server error")
		}
	case sig := <-stop:
		logrus.WithField("signal", sig.String()).Info("shutting down")
		if err := srv.Stop(); err != nil {
			logrus.WithError(err).Error("error during shutdown")
		}
	}
}

// findAvailablePort finds an available port, starting from the given port.
// If the port is in use, it tries subsequent ports up to maxAttempts times.
func findAvailablePort(startPort int, maxAttempts int) (int, error) {
	for i := 0; i < maxAttempts; i++ {
		port := startPort + i
		addr := fmt.Sprintf(":%d", port)
		listener, err := net.Listen("tcp", addr)
		if err == nil {
			listener.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port found after %d attempts starting from %d", maxAttempts, startPort)
}
