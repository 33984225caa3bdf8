package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCounterInc(t *testing.T) {
	c := &Counter{}
	c.Inc()
	c.Add(4)
	require.Equal(t, int64(5), c.Value())
}

func TestGaugeSetAddDec(t *testing.T) {
	g := &Gauge{}
	g.Set(10)
	require.InDelta(t, 10.0, g.Value(), 0.001)

	g.Inc()
	g.Inc()
	g.Dec()
	require.InDelta(t, 11.0, g.Value(), 0.001)
}

// TestRunningTaskGaugeReturnsToBaseline is invariant 4 of the testable
// properties: for every task that reaches FinishTask, the RunningTask
// gauge returns to its value prior to StartTask.
func TestRunningTaskGaugeReturnsToBaseline(t *testing.T) {
	registry := NewRegistry()
	running := registry.Gauge(MetricRunningTask)

	baseline := running.Value()

	// StartTask
	running.Inc()
	require.InDelta(t, baseline+1, running.Value(), 0.001)

	// FinishTask
	running.Dec()
	require.InDelta(t, baseline, running.Value(), 0.001)
}

func TestEventLogAppendDrain(t *testing.T) {
	log := &EventLog{}
	log.Append(Event{Name: "StartTask"})
	log.Append(Event{Name: "FinishTask"})

	events := log.Drain()
	require.Len(t, events, 2)

	// drain clears the buffer
	require.Empty(t, log.Drain())
}

func TestRegistryLazyCreation(t *testing.T) {
	registry := NewRegistry()
	registry.Counter("a").Inc()
	registry.Counter("a").Inc()

	snap := registry.Snapshot()
	require.Equal(t, int64(2), snap.Counters["a"])
}
