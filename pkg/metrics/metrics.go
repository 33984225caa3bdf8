// Package metrics implements the process-wide counter/gauge registry and
// per-task event log, plus a Prometheus exporter that mirrors both into
// client_golang vectors for scraping.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a monotonically increasing integer metric, backed by a
// plain atomic add.
type Counter struct {
	v atomic.Int64
}

func (c *Counter) Inc()           { c.v.Add(1) }
func (c *Counter) Add(delta int64) { c.v.Add(delta) }
func (c *Counter) Value() int64   { return c.v.Load() }

// Gauge is a metric that can move in either direction. Set stores
// directly; Add, Inc and Dec run a compare-and-swap loop over a fixed-point
// (x1000) representation so the floating-point increment/decrement path
// is genuinely a CAS loop rather than a plain atomic add, matching the
// distinction the orchestrator's design draws between "atomic store for
// set" and "atomic CAS loop for increment/decrement".
type Gauge struct {
	fixed atomic.Int64 // value * 1000
}

const gaugeScale = 1000

func (g *Gauge) Set(v float64) {
	g.fixed.Store(int64(math.Round(v * gaugeScale)))
}

func (g *Gauge) Add(delta float64) {
	d := int64(math.Round(delta * gaugeScale))
	for {
		old := g.fixed.Load()
		if g.fixed.CompareAndSwap(old, old+d) {
			return
		}
	}
}

func (g *Gauge) Inc() { g.Add(1) }
func (g *Gauge) Dec() { g.Add(-1) }

func (g *Gauge) Value() float64 {
	return float64(g.fixed.Load()) / gaugeScale
}

// Event is one record in a task's event log.
type Event struct {
	Name      string
	Timestamp time.Time
	Labels    map[string]string
}

// EventLog is an append-only per-task sequence, protected by its own
// mutex so draining never blocks on I/O held elsewhere.
type EventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *EventLog) Append(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

// Drain returns and clears the accumulated events.
func (l *EventLog) Drain() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.events
	l.events = nil
	return out
}

// Registry is the process-wide, lazily-populated set of counters, gauges,
// and per-task event logs. All access is lock-free after the first touch
// of a given name via sync.Map.
type Registry struct {
	counters  sync.Map // string -> *Counter
	gauges    sync.Map // string -> *Gauge
	eventLogs sync.Map // types.TaskID (string form) -> *EventLog
}

// NewRegistry creates an empty metrics registry.
func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Counter(name string) *Counter {
	v, _ := r.counters.LoadOrStore(name, &Counter{})
	return v.(*Counter)
}

func (r *Registry) Gauge(name string) *Gauge {
	v, _ := r.gauges.LoadOrStore(name, &Gauge{})
	return v.(*Gauge)
}

// EventLogFor returns (creating if necessary) the event log for the
// given task id string.
func (r *Registry) EventLogFor(taskID string) *EventLog {
	v, _ := r.eventLogs.LoadOrStore(taskID, &EventLog{})
	return v.(*EventLog)
}

// ForgetTask discards the event log for a finished task.
func (r *Registry) ForgetTask(taskID string) {
	r.eventLogs.Delete(taskID)
}

// Snapshot is a point-in-time copy of every named counter/gauge value,
// used by the Prometheus exporter.
type Snapshot struct {
	Counters map[string]int64
	Gauges   map[string]float64
}

func (r *Registry) Snapshot() Snapshot {
	snap := Snapshot{Counters: map[string]int64{}, Gauges: map[string]float64{}}
	r.counters.Range(func(key, value any) bool {
		snap.Counters[key.(string)] = value.(*Counter).Value()
		return true
	})
	r.gauges.Range(func(key, value any) bool {
		snap.Gauges[key.(string)] = value.(*Gauge).Value()
		return true
	})
	return snap
}

// Well-known metric names, per the component design's G.9 list.
const (
	MetricStartTask     = "start_task_total"
	MetricFinishTask    = "finish_task_total"
	MetricFailTask      = "fail_task_total"
	MetricStartService  = "start_service_total"
	MetricFinishService = "finish_service_total"
	MetricRunningTask   = "running_task"
	MetricRunningService = "running_service"

	MetricTasksDispatched     = "tasks_dispatched_total"
	MetricTasksDispatchFailed = "tasks_dispatch_failed_total"
	MetricDispatchLatency     = "dispatch_latency_seconds"
	MetricReapTransitions     = "reap_transitions_total"
)

// Timer measures an operation's duration and records it into a gauge on
// completion (mirroring the teacher's timer/duration-observation idiom).
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveSeconds stores the elapsed duration, in seconds, into gauge.
func (t *Timer) ObserveSeconds(gauge *Gauge) {
	gauge.Set(time.Since(t.start).Seconds())
}
