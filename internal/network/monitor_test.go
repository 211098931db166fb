package network

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentflow/uploadflow/internal/models"
	"github.com/contentflow/uploadflow/internal/state"
	"github.com/contentflow/uploadflow/pkg/logger"
)

type scriptedChecker struct {
	mu      sync.Mutex
	results []models.NetworkStatus
	idx     int
}

func (c *scriptedChecker) Check(ctx context.Context) models.NetworkStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idx >= len(c.results) {
		return c.results[len(c.results)-1]
	}
	status := c.results[c.idx]
	c.idx++
	return status
}

func newTestMonitor(results ...models.NetworkStatus) *Monitor {
	return NewMonitor(&scriptedChecker{results: results}, 10*time.Millisecond, logger.New("debug", "text"))
}

func TestCheckHealth_UpdatesStatus(t *testing.T) {
	tests := []struct {
		name   string
		result models.NetworkStatus
	}{
		{"stable", models.NetworkStable},
		{"unstable", models.NetworkUnstable},
		{"disconnected", models.NetworkDisconnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMonitor(tt.result)
			got := m.CheckHealth(context.Background())
			assert.Equal(t, tt.result, got)
			assert.Equal(t, tt.result, m.Status())
		})
	}
}

func TestConsecutiveFailures_ResetOnStable(t *testing.T) {
	m := newTestMonitor(
		models.NetworkDisconnected,
		models.NetworkDisconnected,
		models.NetworkStable,
	)
	ctx := context.Background()

	m.CheckHealth(ctx)
	m.CheckHealth(ctx)
	assert.Equal(t, 2, m.ConsecutiveFailures())

	m.CheckHealth(ctx)
	assert.Equal(t, 0, m.ConsecutiveFailures())
}

func TestCallbacks_EdgeTriggered(t *testing.T) {
	m := newTestMonitor(
		models.NetworkDisconnected,
		models.NetworkDisconnected,
		models.NetworkUnstable,
		models.NetworkStable,
		models.NetworkStable,
	)

	var drops, recovers int
	m.OnDrop(func(models.NetworkStatus) { drops++ })
	m.OnRecover(func() { recovers++ })

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		m.CheckHealth(ctx)
	}

	// disconnected->disconnected and disconnected->unstable are not new
	// drops; only the stable->disconnected edge counts, and only the
	// unstable->stable edge recovers.
	assert.Equal(t, 1, drops)
	assert.Equal(t, 1, recovers)
}

func TestRecorder_PersistsEveryCheck(t *testing.T) {
	store, err := state.NewStore(t.TempDir(), logger.New("debug", "text"))
	require.NoError(t, err)

	m := newTestMonitor(
		models.NetworkDisconnected,
		models.NetworkStable,
	)
	m.SetRecorder(store)
	ctx := context.Background()

	m.CheckHealth(ctx)
	st, err := store.LoadState()
	require.NoError(t, err)
	assert.Equal(t, models.NetworkDisconnected, st.Network.Status)
	assert.Equal(t, 1, st.Network.ConsecutiveFailures)
	assert.False(t, st.Network.LastCheck.IsZero())
	require.NotNil(t, st.Network.LastDropTime)

	m.CheckHealth(ctx)
	st, err = store.LoadState()
	require.NoError(t, err)
	assert.Equal(t, models.NetworkStable, st.Network.Status)
	assert.Equal(t, 0, st.Network.ConsecutiveFailures)
	// The drop timestamp survives recovery.
	assert.NotNil(t, st.Network.LastDropTime)
}

func TestWaitForReconnection_ReturnsTrueOnRecovery(t *testing.T) {
	m := newTestMonitor(
		models.NetworkDisconnected,
		models.NetworkDisconnected,
		models.NetworkStable,
	)

	ok := m.WaitForReconnection(context.Background(), time.Second, 5*time.Millisecond)
	assert.True(t, ok)
	assert.Equal(t, models.NetworkStable, m.Status())
}

func TestWaitForReconnection_TimesOut(t *testing.T) {
	m := newTestMonitor(models.NetworkDisconnected)

	start := time.Now()
	ok := m.WaitForReconnection(context.Background(), 50*time.Millisecond, 5*time.Millisecond)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitForReconnection_Cancelled(t *testing.T) {
	m := newTestMonitor(models.NetworkDisconnected)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok := m.WaitForReconnection(ctx, time.Minute, 5*time.Millisecond)
	assert.False(t, ok)
}

func TestBackgroundLoop_TracksTransitions(t *testing.T) {
	m := newTestMonitor(
		models.NetworkStable,
		models.NetworkDisconnected,
		models.NetworkStable,
	)

	dropped := make(chan struct{}, 1)
	m.OnDrop(func(models.NetworkStatus) {
		select {
		case dropped <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	select {
	case <-dropped:
	case <-time.After(time.Second):
		require.Fail(t, "drop callback never fired")
	}
}
