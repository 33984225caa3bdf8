// Command toy-supervisor runs one worker process: the graph execution
// engine, its task-acceptance HTTP surface, and a heartbeat loop that
// keeps the control plane's liveness record for this worker fresh.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defvar/toy/pkg/client"
	"github.com/defvar/toy/pkg/codec"
	"github.com/defvar/toy/pkg/engine"
	"github.com/defvar/toy/pkg/log"
	"github.com/defvar/toy/pkg/metrics"
	"github.com/defvar/toy/pkg/registry"
	"github.com/defvar/toy/pkg/registry/fixture"
	"github.com/defvar/toy/pkg/statestore"
	"github.com/defvar/toy/pkg/storage"
	"github.com/defvar/toy/pkg/types"
	"github.com/defvar/toy/pkg/workerapi"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	sourceType = types.ServiceType{Namespace: "builtin", Name: "source"}
	sinkType   = types.ServiceType{Namespace: "builtin", Name: "sink"}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "toy-supervisor",
	Short: "Run one toy task orchestrator worker",
	RunE:  run,
}

func init() {
	rootCmd.Flags().String("name", "", "This worker's name (defaults to hostname)")
	rootCmd.Flags().String("listen", "127.0.0.1:9090", "Address this worker's task API listens on")
	rootCmd.Flags().String("api", "http://127.0.0.1:8080", "Control plane API address")
	rootCmd.Flags().String("data-dir", "./toy-data-worker", "This worker's own task store directory")
	rootCmd.Flags().Duration("heartbeat-interval", 5*time.Second, "Interval between supervisor heartbeats")
	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "Output logs in JSON format")
}

func run(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	listen, _ := cmd.Flags().GetString("listen")
	apiAddr, _ := cmd.Flags().GetString("api")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	heartbeatInterval, _ := cmd.Flags().GetDuration("heartbeat-interval")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")

	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
	logger := log.WithWorkerID(name)

	if name == "" {
		host, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("resolve worker name: %w", err)
		}
		name = host
	}

	// A worker's own task store is independent of the control plane's:
	// the dispatcher hands off tasks over HTTP, not through a shared KV,
	// so this process only needs somewhere to park pendings/<task_id>
	// for the duration the engine runs it.
	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("open store at %s: %w", dataDir, err)
	}
	defer store.Close()

	metricsReg := metrics.NewRegistry()
	reg := registry.NewRegistry()
	reg.Register(sourceType, fixture.Source)
	reg.Register(sinkType, fixture.NewSinkFactory())

	tasks := statestore.NewPendingTasks(store, codec.JSON)
	eng := engine.New(reg, tasks, metricsReg)

	workerServer := workerapi.New(name, eng)
	httpServer := &http.Server{
		Addr:         listen,
		Handler:      workerServer.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", listen).Msg("supervisor task api listening")
		errCh <- httpServer.ListenAndServe()
	}()

	heartbeatCtx, stopHeartbeat := context.WithCancel(context.Background())
	defer stopHeartbeat()
	go runHeartbeat(heartbeatCtx, client.NewClient(apiAddr), name, listen, heartbeatInterval, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("worker api server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

// runHeartbeat registers this worker with the control plane, then
// re-registers on every tick to refresh LastHeartbeat, until ctx is
// cancelled. Transient registration failures are logged and retried on
// the next tick rather than treated as fatal.
func runHeartbeat(ctx context.Context, c *client.Client, name, addr string, interval time.Duration, logger zerolog.Logger) {
	register := func() {
		now := time.Now()
		w := types.Worker{
			Name:          name,
			Addr:          addr,
			StartTime:     now,
			LastHeartbeat: &now,
			Status:        types.WorkerReady,
		}
		if err := c.RegisterSupervisor(ctx, name, w); err != nil {
			logger.Error().Err(err).Msg("supervisor heartbeat failed")
		}
	}

	register()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			register()
		case <-ctx.Done():
			return
		}
	}
}
