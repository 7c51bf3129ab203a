package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/d4ckard/shuttle/internal/logger"
	"github.com/d4ckard/shuttle/pkg/api"
	"github.com/d4ckard/shuttle/pkg/builder"
	"github.com/d4ckard/shuttle/pkg/config"
	"github.com/d4ckard/shuttle/pkg/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build and serve the unit, reloading on source changes",
	Long: `Build the unit from its source tree, load the artifact, provision the
resources its entry point declares, and serve it on the configured address.

While running, the source tree is watched and every change triggers a
rebuild. The new generation replaces the old one only once it has been
built and loaded; a broken build leaves the running generation serving.

Examples:
  # Run with the default config location
  shuttle run

  # Run with a custom config file
  shuttle run --config ./shuttle.yaml

  # Run with environment variable overrides
  SHUTTLE_LOGGING_LEVEL=DEBUG shuttle run`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	logger.Info("Project", "name", cfg.Project, "environment", cfg.Environment)

	b := builder.New(builder.Config{
		GoBinary:    cfg.Build.GoBinary,
		ArtifactDir: cfg.Build.ArtifactDir,
		GoVersion:   cfg.Build.GoVersion,
	})

	r := runner.New(runner.Config{
		Project:     cfg.Project,
		SourceRoot:  cfg.Source,
		Address:     cfg.Address,
		Environment: cfg.Environment,
		Secrets:     cfg.Secrets,
		WorkDir:     cfg.WorkDir,
		GracePeriod: cfg.GracePeriod,
	}, b)

	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		r.SetMetrics(runner.NewMetrics(registry, cfg.Project))
		logger.Info("Metrics enabled")
	}

	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("failed to start unit: %w", err)
	}
	logger.Info("Unit serving", "project", cfg.Project, "address", cfg.Address)

	var watcher *runner.Watcher
	if cfg.Watch.Enabled {
		watcher, err = runner.NewWatcher(r, cfg.Watch.Debounce)
		if err != nil {
			return fmt.Errorf("failed to watch source tree: %w", err)
		}
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	apiDone := make(chan error, 1)
	if cfg.API.Enabled {
		server := api.NewServer(cfg.API, r, registry)
		go func() {
			apiDone <- server.Start(ctx)
		}()
		logger.Info("Control API configured", "port", cfg.API.Port)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Unit is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, stopping unit")
	case err := <-apiDone:
		if err != nil {
			logger.Error("Control API error", "error", err)
		}
	}
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.GracePeriod)
	defer stopCancel()
	if err := r.Stop(stopCtx); err != nil {
		logger.Error("Unit shutdown error", "error", err)
		return err
	}

	logger.Info("Unit stopped gracefully")
	return nil
}
