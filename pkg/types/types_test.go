package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskIDParseFormatParseIsIdentity(t *testing.T) {
	id := NewTaskID()
	text := id.String()

	parsed, err := ParseTaskID(text)
	require.NoError(t, err)
	require.Equal(t, id, parsed)
	require.Equal(t, text, parsed.String())
}

func TestTaskIDMarshalUnmarshalText(t *testing.T) {
	id := NewTaskID()
	data, err := id.MarshalText()
	require.NoError(t, err)

	var out TaskID
	require.NoError(t, out.UnmarshalText(data))
	require.Equal(t, id, out)
}

func TestPendingTaskIsDispatchable(t *testing.T) {
	now := time.Now()
	waiting := PendingTask{Status: Status{State: StatusWaiting}}
	require.True(t, waiting.IsDispatchable(now, 15*time.Second))

	fresh := now.Add(-time.Second)
	allocatedFresh := PendingTask{Status: Status{State: StatusAllocated}, AllocatedAt: &fresh}
	require.False(t, allocatedFresh.IsDispatchable(now, 15*time.Second))

	stale := now.Add(-time.Hour)
	allocatedStale := PendingTask{Status: Status{State: StatusAllocated}, AllocatedAt: &stale}
	require.True(t, allocatedStale.IsDispatchable(now, 15*time.Second))

	finished := PendingTask{Status: Status{State: StatusFinished}}
	require.False(t, finished.IsDispatchable(now, 15*time.Second))
}

func TestWorkerHeartbeatRestoresReady(t *testing.T) {
	w := Worker{Status: WorkerNoContact}
	beat := w.Heartbeat(time.Now())
	require.Equal(t, WorkerReady, beat.Status)
	require.True(t, beat.IsAlive())

	stopped := Worker{Status: WorkerStop}
	still := stopped.Heartbeat(time.Now())
	require.Equal(t, WorkerStop, still.Status)
}
