// Package reaper runs the liveness sweep that demotes workers/actors
// that have gone quiet past their stale threshold. The same code
// services both the supervisors/ and actors/ prefixes; only the
// Workers view and the component name differ between instances.
package reaper

import (
	"context"
	"sync"
	"time"

	"github.com/defvar/toy/pkg/log"
	"github.com/defvar/toy/pkg/metrics"
	"github.com/defvar/toy/pkg/statestore"
	"github.com/defvar/toy/pkg/types"
	"github.com/rs/zerolog"
)

// Reaper periodically scans a Workers view and marks any worker whose
// last heartbeat is older than StaleThreshold as NoContact.
type Reaper struct {
	workers        statestore.Workers
	logger         zerolog.Logger
	interval       time.Duration
	StaleThreshold time.Duration
	metrics        *metrics.Registry

	mu     sync.Mutex
	stopCh chan struct{}
}

// New creates a Reaper over workers, named for logging purposes (e.g.
// "supervisor-reaper", "actor-reaper").
func New(name string, workers statestore.Workers, interval, staleThreshold time.Duration, reg *metrics.Registry) *Reaper {
	return &Reaper{
		workers:        workers,
		logger:         log.WithComponent(name),
		interval:       interval,
		StaleThreshold: staleThreshold,
		metrics:        reg,
		stopCh:         make(chan struct{}),
	}
}

// Start begins the reap loop in its own goroutine.
func (r *Reaper) Start() {
	go r.run()
}

// Stop halts the reap loop.
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
}

func (r *Reaper) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Msg("reaper started")

	for {
		select {
		case <-ticker.C:
			if err := r.sweep(context.Background()); err != nil {
				r.logger.Error().Err(err).Msg("reap cycle failed")
			}
		case <-r.stopCh:
			r.logger.Info().Msg("reaper stopped")
			return
		}
	}
}

// sweep performs one scan -> stale detect -> CAS demote cycle.
func (r *Reaper) sweep(ctx context.Context) error {
	workers, versions, err := r.workers.List(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for i, w := range workers {
		if w.Status == types.WorkerStop {
			continue
		}

		// A worker with no heartbeat on record yet is stale by definition,
		// not merely young: it has never reported in.
		stale := w.LastHeartbeat == nil
		lastSeen := w.StartTime
		if w.LastHeartbeat != nil {
			lastSeen = *w.LastHeartbeat
			stale = now.Sub(lastSeen) > r.StaleThreshold
		}
		if !stale {
			continue
		}
		if w.Status == types.WorkerNoContact {
			continue
		}

		workerLogger := log.WithWorkerName(r.logger, w.Name)

		demoted := w.WithStatus(types.WorkerNoContact, now)
		outcome, err := r.workers.CompareAndSwap(ctx, demoted, versions[i])
		if err != nil {
			workerLogger.Error().Err(err).Msg("failed to mark worker down")
			continue
		}
		switch outcome {
		case statestore.Updated:
			r.metrics.Counter(metrics.MetricReapTransitions).Inc()
			workerLogger.Warn().
				Dur("no_heartbeat_duration", now.Sub(lastSeen)).
				Msg("worker stale, marking as down")
		case statestore.Conflict:
			workerLogger.Debug().Msg("worker heartbeated concurrently, skipping")
		}
	}
	return nil
}
