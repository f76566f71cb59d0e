package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unibazzar/ai-service/internal/worker/core"
	"go.uber.org/zap"
)

func setupMonitor(t *testing.T) (*core.Monitor, rueidis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return core.NewMonitor(client, zap.NewNop()), client
}

func TestReportAndGetStatuses(t *testing.T) {
	t.Parallel()

	monitor, _ := setupMonitor(t)
	ctx := context.Background()

	require.NoError(t, monitor.ReportStatus(ctx, core.Status{
		WorkerID:    "w1",
		WorkerType:  "training",
		CurrentTask: "idle",
		IsHealthy:   true,
	}))

	statuses, err := monitor.GetAllStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "w1", statuses[0].WorkerID)
	assert.False(t, statuses[0].LastSeen.IsZero())
}

func TestStaleWorkers(t *testing.T) {
	t.Parallel()

	monitor, client := setupMonitor(t)
	ctx := context.Background()

	require.NoError(t, monitor.ReportStatus(ctx, core.Status{
		WorkerID:   "fresh",
		WorkerType: "training",
		IsHealthy:  true,
	}))

	// A worker whose last heartbeat is well past the threshold
	stalled := core.Status{
		WorkerID:   "stalled",
		WorkerType: "training",
		LastSeen:   time.Now().Add(-10 * time.Minute),
		IsHealthy:  true,
	}
	data, err := sonic.Marshal(stalled)
	require.NoError(t, err)
	require.NoError(t, client.Do(ctx, client.B().Set().
		Key("worker:training:stalled").Value(string(data)).Build()).Error())

	stale, err := monitor.StaleWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "stalled", stale[0].WorkerID)
}
