// Command toy-api runs the orchestrator's control plane: the versioned
// KV store, the HTTP API server, the task dispatcher, and the
// supervisor/actor liveness reapers.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defvar/toy/pkg/api"
	"github.com/defvar/toy/pkg/codec"
	"github.com/defvar/toy/pkg/config"
	"github.com/defvar/toy/pkg/dispatcher"
	"github.com/defvar/toy/pkg/log"
	"github.com/defvar/toy/pkg/metrics"
	"github.com/defvar/toy/pkg/reaper"
	"github.com/defvar/toy/pkg/registry"
	"github.com/defvar/toy/pkg/statestore"
	"github.com/defvar/toy/pkg/storage"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "toy-api",
	Short: "Run the toy task orchestrator's control plane",
	RunE:  run,
}

func init() {
	rootCmd.Flags().String("config", "", "Path to an optional YAML config overlay")
	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "Output logs in JSON format")
}

func run(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")

	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
	logger := log.WithComponent("toy-api")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store at %s: %w", cfg.DataDir, err)
	}
	defer store.Close()

	metricsReg := metrics.NewRegistry()
	reg := registry.NewRegistry()

	tasks := statestore.NewPendingTasks(store, codec.JSON)
	supervisors := statestore.NewWorkers(store, codec.JSON, "supervisors")
	actors := statestore.NewWorkers(store, codec.JSON, "actors")

	disp := dispatcher.New(tasks, supervisors, cfg.AllocationTTL, cfg.DispatchInterval, metricsReg)
	disp.Start()
	defer disp.Stop()

	supervisorReaper := reaper.New("supervisor-reaper", supervisors, cfg.CleanSupervisorInterval, cfg.SupervisorStaleThreshold, metricsReg)
	supervisorReaper.Start()
	defer supervisorReaper.Stop()

	actorReaper := reaper.New("actor-reaper", actors, cfg.CleanSupervisorInterval, cfg.ActorStaleThreshold, metricsReg)
	actorReaper.Start()
	defer actorReaper.Stop()

	apiServer := api.New(store, reg, metricsReg)
	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      apiServer.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr()).Msg("api server listening")
		if cfg.TLSEnabled() {
			errCh <- httpServer.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			errCh <- httpServer.ListenAndServe()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
