package dispatcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/defvar/toy/pkg/codec"
	"github.com/defvar/toy/pkg/metrics"
	"github.com/defvar/toy/pkg/statestore"
	"github.com/defvar/toy/pkg/storage"
	"github.com/defvar/toy/pkg/types"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	s, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTickDispatchesWaitingTaskToLiveWorker(t *testing.T) {
	var received int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newStore(t)
	tasks := statestore.NewPendingTasks(store, codec.JSON)
	workers := statestore.NewWorkers(store, codec.JSON, "supervisors")

	addr := srv.Listener.Addr().String()
	_, err := workers.Upsert(context.Background(), types.Worker{Name: "w1", Addr: addr, Status: types.WorkerReady})
	require.NoError(t, err)

	pt := types.PendingTask{TaskID: types.NewTaskID(), Graph: types.Graph{Name: "g"}, Status: types.Status{State: types.StatusWaiting}}
	_, err = tasks.Create(context.Background(), pt)
	require.NoError(t, err)

	d := New(tasks, workers, 15*time.Second, time.Second, metrics.NewRegistry())
	require.NoError(t, d.tick(context.Background()))

	require.Equal(t, int32(1), atomic.LoadInt32(&received))

	got, _, found, err := tasks.Get(context.Background(), pt.TaskID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, types.StatusAllocated, got.Status.State)
	require.Equal(t, "w1", got.Status.Worker)
}

func TestTickSkipsWhenNoLiveWorker(t *testing.T) {
	store := newStore(t)
	tasks := statestore.NewPendingTasks(store, codec.JSON)
	workers := statestore.NewWorkers(store, codec.JSON, "supervisors")

	pt := types.PendingTask{TaskID: types.NewTaskID(), Status: types.Status{State: types.StatusWaiting}}
	_, err := tasks.Create(context.Background(), pt)
	require.NoError(t, err)

	d := New(tasks, workers, 15*time.Second, time.Second, metrics.NewRegistry())
	require.NoError(t, d.tick(context.Background()))

	got, _, found, err := tasks.Get(context.Background(), pt.TaskID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, types.StatusWaiting, got.Status.State)
}

func TestTickReDispatchesStaleAllocation(t *testing.T) {
	store := newStore(t)
	tasks := statestore.NewPendingTasks(store, codec.JSON)
	workers := statestore.NewWorkers(store, codec.JSON, "supervisors")

	var received int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	addr := srv.Listener.Addr().String()
	_, err := workers.Upsert(context.Background(), types.Worker{Name: "w1", Addr: addr, Status: types.WorkerReady})
	require.NoError(t, err)

	stale := time.Now().Add(-time.Hour)
	pt := types.PendingTask{
		TaskID:      types.NewTaskID(),
		Status:      types.Status{State: types.StatusAllocated, Worker: "ghost"},
		AllocatedAt: &stale,
	}
	_, err = tasks.Create(context.Background(), pt)
	require.NoError(t, err)

	d := New(tasks, workers, 15*time.Second, time.Second, metrics.NewRegistry())
	require.NoError(t, d.tick(context.Background()))

	require.Equal(t, int32(1), atomic.LoadInt32(&received))
}
