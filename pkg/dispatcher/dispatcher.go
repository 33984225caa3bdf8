// Package dispatcher runs the tick loop that moves pending tasks from
// Waiting (or stale Allocated) into Allocated on a live worker, via an
// HTTP POST to that worker's task endpoint.
package dispatcher

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/defvar/toy/pkg/codec"
	"github.com/defvar/toy/pkg/log"
	"github.com/defvar/toy/pkg/metrics"
	"github.com/defvar/toy/pkg/statestore"
	"github.com/defvar/toy/pkg/types"
	"github.com/rs/zerolog"
)

// SelectWorker picks which live worker a pending task is handed to.
// Defaults to first-alive-by-name; callers may substitute a load-aware
// strategy.
type SelectWorker func([]types.Worker) *types.Worker

// FirstAliveByName is the default SelectWorker: a deterministic,
// lexicographic tie-break over the workers snapshot already filtered to
// those that are alive.
func FirstAliveByName(workers []types.Worker) *types.Worker {
	if len(workers) == 0 {
		return nil
	}
	sorted := make([]types.Worker, len(workers))
	copy(sorted, workers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return &sorted[0]
}

// Dispatcher assigns dispatchable pending tasks to live workers on a
// fixed interval.
type Dispatcher struct {
	tasks        statestore.PendingTasks
	workers      statestore.Workers
	httpClient   *http.Client
	codec        codec.Codec
	logger       zerolog.Logger
	interval     time.Duration
	allocationTTL time.Duration
	selectWorker SelectWorker
	metrics      *metrics.Registry

	mu     sync.Mutex
	stopCh chan struct{}
}

// Option customizes a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithSelectWorker overrides the worker-selection strategy.
func WithSelectWorker(fn SelectWorker) Option {
	return func(d *Dispatcher) { d.selectWorker = fn }
}

// WithHTTPClient overrides the client used to reach workers.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = c }
}

// New creates a Dispatcher polling tasks/workers every interval.
func New(tasks statestore.PendingTasks, workers statestore.Workers, allocationTTL, interval time.Duration, reg *metrics.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tasks:         tasks,
		workers:       workers,
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		codec:         codec.Msgpack,
		logger:        log.WithComponent("dispatcher"),
		interval:      interval,
		allocationTTL: allocationTTL,
		selectWorker:  FirstAliveByName,
		metrics:       reg,
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start begins the dispatch loop in its own goroutine.
func (d *Dispatcher) Start() {
	go d.run()
}

// Stop halts the dispatch loop.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.stopCh:
	default:
		close(d.stopCh)
	}
}

func (d *Dispatcher) run() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info().Msg("dispatcher started")

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), d.interval)
			if err := d.tick(ctx); err != nil {
				d.logger.Error().Err(err).Msg("dispatch tick failed")
			}
			cancel()
		case <-d.stopCh:
			d.logger.Info().Msg("dispatcher stopped")
			return
		}
	}
}

// tick performs one scan -> select -> allocate -> run cycle.
func (d *Dispatcher) tick(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer timer.ObserveSeconds(d.metrics.Gauge(metrics.MetricDispatchLatency))

	pending, err := d.tasks.List(ctx)
	if err != nil {
		return fmt.Errorf("list pending tasks: %w", err)
	}

	liveWorkers, _, err := d.workers.List(ctx)
	if err != nil {
		return fmt.Errorf("list workers: %w", err)
	}
	alive := make([]types.Worker, 0, len(liveWorkers))
	for _, w := range liveWorkers {
		if w.IsAlive() {
			alive = append(alive, w)
		}
	}

	now := time.Now()
	for _, task := range pending {
		if !task.IsDispatchable(now, d.allocationTTL) {
			continue
		}
		if err := d.dispatchOne(ctx, task, alive); err != nil {
			d.metrics.Counter(metrics.MetricTasksDispatchFailed).Inc()
			log.WithTaskID(d.logger, task.TaskID.String()).Error().Err(err).Msg("failed to dispatch task")
			continue
		}
	}
	return nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, task types.PendingTask, alive []types.Worker) error {
	taskLogger := log.WithTaskID(d.logger, task.TaskID.String())

	worker := d.selectWorker(alive)
	if worker == nil {
		return fmt.Errorf("dispatch task %s: no live worker available", task.TaskID)
	}

	allocated := task.Allocate(worker.Name, time.Now())
	outcome, err := d.tasks.CompareAndSwap(ctx, allocated, task.Version)
	if err != nil {
		return fmt.Errorf("allocate task %s: %w", task.TaskID, err)
	}
	if outcome != statestore.Updated {
		taskLogger.Debug().Msg("allocation race lost, skipping")
		return nil
	}

	body, err := d.codec.Encode(allocated)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.TaskID, err)
	}

	url := "http://" + worker.Addr + "/tasks"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request for task %s: %w", task.TaskID, err)
	}
	req.Header.Set("Content-Type", d.codec.ContentType())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post task %s to %s: %w", task.TaskID, worker.Addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("worker %s rejected task %s: status %d", worker.Name, task.TaskID, resp.StatusCode)
	}

	d.metrics.Counter(metrics.MetricTasksDispatched).Inc()
	log.WithWorkerName(taskLogger, worker.Name).Info().Msg("task dispatched")
	return nil
}
