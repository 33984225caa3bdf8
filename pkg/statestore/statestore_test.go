package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/defvar/toy/pkg/codec"
	"github.com/defvar/toy/pkg/storage"
	"github.com/defvar/toy/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPendingTasksCreateGetList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pt := types.PendingTask{
		TaskID: types.NewTaskID(),
		Graph:  types.Graph{Name: "g"},
		Status: types.Status{State: types.StatusWaiting},
	}
	tasks := NewPendingTasks(store, codec.JSON)

	outcome, err := tasks.Create(ctx, pt)
	require.NoError(t, err)
	require.Equal(t, Created, outcome)

	got, version, found, err := tasks.Get(ctx, pt.TaskID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, types.StatusWaiting, got.Status.State)
	require.Equal(t, uint64(1), version)

	list, err := tasks.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestPendingTasksCompareAndSwapConflict(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pt := types.PendingTask{TaskID: types.NewTaskID(), Status: types.Status{State: types.StatusWaiting}}
	tasks := NewPendingTasks(store, codec.JSON)
	_, err := tasks.Create(ctx, pt)
	require.NoError(t, err)

	now := time.Now()
	allocated := pt.Allocate("worker-1", now)

	outcome, err := tasks.CompareAndSwap(ctx, allocated, 1)
	require.NoError(t, err)
	require.Equal(t, Updated, outcome)

	outcome, err = tasks.CompareAndSwap(ctx, allocated, 1)
	require.NoError(t, err)
	require.Equal(t, Conflict, outcome)
}

func TestWorkersUpsertThenHeartbeat(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	workers := NewWorkers(store, codec.JSON, "supervisors")

	rec := types.Worker{Name: "w1", Addr: "127.0.0.1:9000", Status: types.WorkerReady, StartTime: time.Now()}
	outcome, err := workers.Upsert(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, Created, outcome)

	outcome, err = workers.Upsert(ctx, rec.Heartbeat(time.Now()))
	require.NoError(t, err)
	require.Equal(t, Updated, outcome)

	got, _, found, err := workers.Get(ctx, "w1")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, got.IsAlive())
}

func TestWorkersListUnderPrefix(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	supervisors := NewWorkers(store, codec.JSON, "supervisors")
	actors := NewWorkers(store, codec.JSON, "actors")

	_, err := supervisors.Upsert(ctx, types.Worker{Name: "s1", Status: types.WorkerReady})
	require.NoError(t, err)
	_, err = actors.Upsert(ctx, types.Worker{Name: "a1", Status: types.WorkerReady})
	require.NoError(t, err)

	list, _, err := supervisors.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "s1", list[0].Name)
}
