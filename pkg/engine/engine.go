// Package engine drives one task's realized graph topology to
// completion: one goroutine per node, communicating over the channels
// pkg/graph.Realize built, following the Ready/Running/FinishingUpstream
// state machine and propagating upstream-finish markers in-band.
package engine

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/defvar/toy/pkg/graph"
	"github.com/defvar/toy/pkg/log"
	"github.com/defvar/toy/pkg/metrics"
	"github.com/defvar/toy/pkg/registry"
	"github.com/defvar/toy/pkg/statestore"
	"github.com/defvar/toy/pkg/types"
	"github.com/rs/zerolog"
)

// wireMessage is the in-band value every realized channel actually
// carries: either a user Frame, or a finish marker closing out one
// upstream.
type wireMessage struct {
	frame  registry.Frame
	finish bool
}

type runningTask struct {
	cancel   context.CancelFunc
	topology *graph.Topology
}

// Engine runs tasks submitted to it, each as an independent set of
// node goroutines over one task-scoped context.
type Engine struct {
	registry     *registry.Registry
	pendingTasks statestore.PendingTasks
	metrics      *metrics.Registry
	logger       zerolog.Logger

	mu      sync.Mutex
	running map[types.TaskID]*runningTask
}

// New creates an Engine dispatching through reg and removing finished
// tasks from pendingTasks.
func New(reg *registry.Registry, pendingTasks statestore.PendingTasks, metricsReg *metrics.Registry) *Engine {
	return &Engine{
		registry:     reg,
		pendingTasks: pendingTasks,
		metrics:      metricsReg,
		logger:       log.WithComponent("engine"),
		running:      make(map[types.TaskID]*runningTask),
	}
}

// RunTask validates and realizes g, registers the task, and starts
// execution in the background. It returns once the task is admitted,
// not once it completes.
func (e *Engine) RunTask(taskID types.TaskID, g types.Graph) error {
	if err := graph.Validate(g, e.registry); err != nil {
		return fmt.Errorf("run task %s: %w", taskID, err)
	}
	topo, err := graph.Realize(g, e.registry)
	if err != nil {
		return fmt.Errorf("run task %s: %w", taskID, err)
	}

	taskCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	if _, exists := e.running[taskID]; exists {
		e.mu.Unlock()
		cancel()
		return fmt.Errorf("run task %s: already running", taskID)
	}
	e.running[taskID] = &runningTask{cancel: cancel, topology: topo}
	e.mu.Unlock()

	e.metrics.Counter(metrics.MetricStartTask).Inc()
	e.metrics.Gauge(metrics.MetricRunningTask).Inc()
	e.eventLog(taskID).Append(metrics.Event{Name: metrics.MetricStartTask, Timestamp: time.Now()})

	go e.drive(taskCtx, cancel, taskID, topo)
	return nil
}

// Cancel stops a running task's execution early, if it is still
// running.
func (e *Engine) Cancel(taskID types.TaskID) bool {
	e.mu.Lock()
	rt, ok := e.running[taskID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	rt.cancel()
	return true
}

// ActiveTaskCount reports how many tasks are currently running.
func (e *Engine) ActiveTaskCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.running)
}

// RunningTaskIDs lists the tasks currently executing, for status
// reporting.
func (e *Engine) RunningTaskIDs() []types.TaskID {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]types.TaskID, 0, len(e.running))
	for id := range e.running {
		ids = append(ids, id)
	}
	return ids
}

func (e *Engine) eventLog(taskID types.TaskID) *metrics.EventLog {
	return e.metrics.EventLogFor(taskID.String())
}

func (e *Engine) drive(taskCtx context.Context, cancel context.CancelFunc, taskID types.TaskID, topo *graph.Topology) {
	taskLogger := log.WithTaskID(e.logger, taskID.String())

	var wg sync.WaitGroup
	var failed atomic.Bool

	for _, nt := range topo.Nodes {
		wg.Add(1)
		go e.runNode(taskCtx, cancel, taskLogger, taskID, nt, &failed, &wg)
	}
	wg.Wait()
	cancel()

	e.metrics.Gauge(metrics.MetricRunningTask).Dec()

	if failed.Load() {
		e.metrics.Counter(metrics.MetricFailTask).Inc()
		e.eventLog(taskID).Append(metrics.Event{Name: metrics.MetricFailTask, Timestamp: time.Now()})
		taskLogger.Warn().Msg("task finished with failure")
	} else {
		e.metrics.Counter(metrics.MetricFinishTask).Inc()
		e.eventLog(taskID).Append(metrics.Event{Name: metrics.MetricFinishTask, Timestamp: time.Now()})
		taskLogger.Info().Msg("task finished")
	}

	deleteCtx, deleteCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer deleteCancel()
	if _, err := e.pendingTasks.Delete(deleteCtx, taskID); err != nil {
		taskLogger.Error().Err(err).Msg("failed to delete finished pending task record")
	}

	e.mu.Lock()
	delete(e.running, taskID)
	e.mu.Unlock()
}

// runNode owns exactly one node's inbound channels and drives it
// through Ready -> (Running | FinishingUpstream) -> Complete/Failed.
// A single goroutine reads every inbound channel, so the
// finished-upstream counter below needs no lock of its own.
func (e *Engine) runNode(ctx context.Context, cancel context.CancelFunc, taskLogger zerolog.Logger, taskID types.TaskID, nt *graph.NodeTopology, failed *atomic.Bool, wg *sync.WaitGroup) {
	defer wg.Done()

	nodeLogger := log.WithNodeURI(taskLogger, string(nt.Node.URI))

	e.metrics.Gauge(metrics.MetricRunningService).Inc()
	e.metrics.Counter(metrics.MetricStartService).Inc()
	e.eventLog(taskID).Append(metrics.Event{
		Name:      metrics.MetricStartService,
		Timestamp: time.Now(),
		Labels:    map[string]string{"uri": string(nt.Node.URI)},
	})
	defer func() {
		e.metrics.Gauge(metrics.MetricRunningService).Dec()
		e.metrics.Counter(metrics.MetricFinishService).Inc()
		e.eventLog(taskID).Append(metrics.Event{
			Name:      metrics.MetricFinishService,
			Timestamp: time.Now(),
			Labels:    map[string]string{"uri": string(nt.Node.URI)},
		})
	}()

	fail := func(err error) {
		failed.Store(true)
		nodeLogger.Error().Err(err).Msg("node failed")
		cancel()
	}

	nodeCtx, err := nt.Factory.NewContext(nt.Node.ServiceType, nt.Node.Config)
	if err != nil {
		fail(fmt.Errorf("build context for %q: %w", nt.Node.URI, err))
		return
	}
	service, err := nt.Factory.NewService(nt.Node.ServiceType, nodeCtx)
	if err != nil {
		fail(fmt.Errorf("build service for %q: %w", nt.Node.URI, err))
		return
	}

	out := newNodeOut(nt)

	if len(nt.Inbound) == 0 {
		// Sources have no inbound wires to select on: run Handle in a
		// loop producing frames until it self-terminates (G.4), only then
		// calling UpstreamFinishAll. If the task is cancelled first, the
		// source closes its outbound wires without calling it.
		var done bool
		for !done {
			select {
			case <-ctx.Done():
				closeOutbound(context.Background(), nt)
				return
			default:
			}

			nodeCtx, done, err = service.Handle(ctx, nodeCtx, nil, out)
			if err != nil {
				fail(fmt.Errorf("handle frame on source %q: %w", nt.Node.URI, err))
				return
			}
		}

		if err := service.UpstreamFinishAll(ctx, nodeCtx, out); err != nil {
			fail(fmt.Errorf("finish source %q: %w", nt.Node.URI, err))
			return
		}
		closeOutbound(ctx, nt)
		return
	}

	finishedByUpstream := make(map[types.Uri]bool, len(nt.Inbound))
	remaining := len(nt.Inbound)

	for remaining > 0 {
		active := make([]*graph.Wire, 0, remaining)
		for _, w := range nt.Inbound {
			if !finishedByUpstream[w.From] {
				active = append(active, w)
			}
		}

		cases := make([]reflect.SelectCase, len(active)+1)
		for i, w := range active {
			cases[i] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(w.Channel)}
		}
		cases[len(active)] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())}

		chosen, recv, ok := reflect.Select(cases)
		if chosen == len(active) {
			// cooperative cancellation: stop consuming further frames
			// and short-circuit straight to the finish-all callback.
			if err := service.UpstreamFinishAll(ctx, nodeCtx, out); err != nil {
				failed.Store(true)
			}
			closeOutbound(context.Background(), nt)
			return
		}

		w := active[chosen]
		if !ok {
			finishedByUpstream[w.From] = true
			remaining--
			continue
		}

		msg := recv.Interface().(wireMessage)
		if msg.finish {
			finishedByUpstream[w.From] = true
			remaining--
			nodeCtx, err = service.UpstreamFinish(ctx, nodeCtx, w.From, out)
			if err != nil {
				fail(fmt.Errorf("upstream finish on %q from %q: %w", nt.Node.URI, w.From, err))
				return
			}
			continue
		}

		// Non-source nodes reach Complete only once every upstream has
		// finished (G.4); a mid-stream done from Handle is meaningful
		// for sources only, so it's ignored here.
		nodeCtx, _, err = service.Handle(ctx, nodeCtx, msg.frame, out)
		if err != nil {
			fail(fmt.Errorf("handle frame on %q: %w", nt.Node.URI, err))
			return
		}
	}

	if err := service.UpstreamFinishAll(ctx, nodeCtx, out); err != nil {
		fail(fmt.Errorf("finish all on %q: %w", nt.Node.URI, err))
		return
	}
	closeOutbound(ctx, nt)
}

// nodeOut implements registry.Out by routing a Send call to the
// outbound wire whose target matches the named uri.
type nodeOut struct {
	wires map[types.Uri]*graph.Wire
}

func newNodeOut(nt *graph.NodeTopology) *nodeOut {
	wires := make(map[types.Uri]*graph.Wire, len(nt.Outbound))
	for _, w := range nt.Outbound {
		wires[w.To] = w
	}
	return &nodeOut{wires: wires}
}

func (o *nodeOut) Send(ctx context.Context, wire types.Uri, frame registry.Frame) error {
	w, ok := o.wires[wire]
	if !ok {
		return fmt.Errorf("engine: no outbound wire to %q", wire)
	}
	select {
	case w.Channel <- wireMessage{frame: frame}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *nodeOut) SendAll(ctx context.Context, frame registry.Frame) error {
	for _, w := range o.wires {
		select {
		case w.Channel <- wireMessage{frame: frame}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// closeOutbound propagates this node's finish marker on every
// outbound wire, letting downstream nodes count it against their own
// inbound total.
func closeOutbound(ctx context.Context, nt *graph.NodeTopology) {
	for _, w := range nt.Outbound {
		select {
		case w.Channel <- wireMessage{finish: true}:
		case <-ctx.Done():
		}
	}
}
