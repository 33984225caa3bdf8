package engine

import (
	"context"
	"testing"
	"time"

	"github.com/defvar/toy/pkg/codec"
	"github.com/defvar/toy/pkg/metrics"
	"github.com/defvar/toy/pkg/registry"
	"github.com/defvar/toy/pkg/registry/fixture"
	"github.com/defvar/toy/pkg/statestore"
	"github.com/defvar/toy/pkg/storage"
	"github.com/defvar/toy/pkg/types"
	"github.com/stretchr/testify/require"
)

var (
	sourceType = types.ServiceType{Namespace: "builtin", Name: "source"}
	sinkType   = types.ServiceType{Namespace: "builtin", Name: "sink"}
)

func newTestEngine(t *testing.T, sink *fixture.SinkFactory) (*Engine, statestore.PendingTasks) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := registry.NewRegistry()
	reg.Register(sourceType, fixture.Source)
	reg.Register(sinkType, sink)

	tasks := statestore.NewPendingTasks(store, codec.JSON)
	e := New(reg, tasks, metrics.NewRegistry())
	return e, tasks
}

func linearGraph(frames []string) types.Graph {
	return types.Graph{
		Name: "linear",
		Nodes: []types.Node{
			{ServiceType: sourceType, URI: "src", Config: mustJSON(fixture.SourceConfig{Frames: frames}), Wires: []types.Uri{"snk"}},
			{ServiceType: sinkType, URI: "snk"},
		},
	}
}

func mustJSON(v any) []byte {
	b, err := codec.JSON.Encode(v)
	if err != nil {
		panic(err)
	}
	return b
}

func waitForCompletion(t *testing.T, e *Engine, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if e.ActiveTaskCount() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("task did not complete before timeout")
}

func TestRunTaskDeliversAllFramesToSink(t *testing.T) {
	sink := fixture.NewSinkFactory()
	e, tasks := newTestEngine(t, sink)

	taskID := types.NewTaskID()
	_, err := tasks.Create(context.Background(), types.PendingTask{
		TaskID: taskID,
		Status: types.Status{State: types.StatusRunning},
	})
	require.NoError(t, err)

	require.NoError(t, e.RunTask(taskID, linearGraph([]string{"a", "b", "c"})))
	waitForCompletion(t, e, time.Second)

	require.ElementsMatch(t, []registry.Frame{"a", "b", "c"}, sink.State.Received())

	_, _, found, err := tasks.Get(context.Background(), taskID)
	require.NoError(t, err)
	require.False(t, found, "finished task should be deleted from the pending store")
}

func TestRunTaskRejectsInvalidGraph(t *testing.T) {
	sink := fixture.NewSinkFactory()
	e, _ := newTestEngine(t, sink)

	badGraph := types.Graph{Name: "", Nodes: nil}
	err := e.RunTask(types.NewTaskID(), badGraph)
	require.Error(t, err)
}

func TestRunTaskRejectsDuplicateTaskID(t *testing.T) {
	sink := fixture.NewSinkFactory()
	e, tasks := newTestEngine(t, sink)

	taskID := types.NewTaskID()
	_, err := tasks.Create(context.Background(), types.PendingTask{TaskID: taskID})
	require.NoError(t, err)

	require.NoError(t, e.RunTask(taskID, linearGraph(nil)))
	err = e.RunTask(taskID, linearGraph(nil))
	require.Error(t, err)

	waitForCompletion(t, e, time.Second)
}

func TestCancelStopsRunningTask(t *testing.T) {
	sink := fixture.NewSinkFactory()
	e, tasks := newTestEngine(t, sink)

	taskID := types.NewTaskID()
	_, err := tasks.Create(context.Background(), types.PendingTask{TaskID: taskID})
	require.NoError(t, err)

	require.NoError(t, e.RunTask(taskID, linearGraph([]string{"x"})))
	require.True(t, e.Cancel(taskID))
	waitForCompletion(t, e, time.Second)
}
