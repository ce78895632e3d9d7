package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTickIsRecent(t *testing.T) {
	now := time.Unix(1000, 0)
	tick := NewTick()
	tick.now = func() time.Time { return now }
	tick.Update()

	now = time.Unix(1010, 0)
	require.True(t, tick.IsRecent(20*time.Second))
	require.False(t, tick.IsRecent(10*time.Second), "freshness bound is strict")
	require.False(t, tick.IsRecent(5*time.Second))

	tick.Update()
	require.True(t, tick.IsRecent(5*time.Second))
}

func TestMonitorTrustsRecentTick(t *testing.T) {
	now := time.Unix(5000, 0)
	clock := func() time.Time { return now }

	m := NewMonitor(DefaultConfig())
	m.loop.now = clock
	m.loop.Update()

	dep := NewTick()
	dep.now = clock
	dep.Update()

	probed := false
	m.Register("queue", dep, func(context.Context) bool {
		probed = true
		return false
	})

	status := m.HealthCheck(context.Background())
	require.True(t, status.Healthy)
	require.False(t, probed, "probe must not run inside the trust window")

	require.Len(t, status.Checks, 2)
	require.Equal(t, "alive", status.Checks[0].Name)
	require.True(t, status.Checks[0].OK)
	require.False(t, status.Checks[0].Required)
	require.Equal(t, "queue", status.Checks[1].Name)
	require.True(t, status.Checks[1].OK)
	require.True(t, status.Checks[1].Required)
}

func TestMonitorProbesStaleTick(t *testing.T) {
	now := time.Unix(5000, 0)
	clock := func() time.Time { return now }

	m := NewMonitor(DefaultConfig())
	m.loop.now = clock
	m.loop.Update()

	dep := NewTick()
	dep.now = clock
	dep.Update()

	probeResult := true
	probed := 0
	m.Register("storage", dep, func(context.Context) bool {
		probed++
		return probeResult
	})

	now = now.Add(6 * time.Second) // past the 5 s trust window

	status := m.HealthCheck(context.Background())
	require.True(t, status.Healthy)
	require.Equal(t, 1, probed, "stale tick must trigger the probe")

	probeResult = false
	status = m.HealthCheck(context.Background())
	require.False(t, status.Healthy)
	require.Equal(t, 2, probed)
}

func TestMonitorStaleWithoutProbe(t *testing.T) {
	now := time.Unix(5000, 0)
	clock := func() time.Time { return now }

	m := NewMonitor(DefaultConfig())
	m.loop.now = clock
	m.loop.Update()

	dep := NewTick()
	dep.now = clock
	dep.Update()
	m.Register("queue", dep, nil)

	now = now.Add(6 * time.Second)

	status := m.HealthCheck(context.Background())
	require.False(t, status.Healthy, "stale tick with no probe reports unhealthy")
}

func TestMonitorAliveDoesNotGateHealth(t *testing.T) {
	now := time.Unix(5000, 0)
	clock := func() time.Time { return now }

	m := NewMonitor(DefaultConfig())
	m.loop.now = clock
	m.loop.Update()

	dep := NewTick()
	dep.now = clock
	m.Register("queue", dep, nil)

	now = now.Add(30 * time.Second)
	dep.Update() // dependency stays fresh; only the loop went stale

	require.False(t, m.IsAlive())
	status := m.HealthCheck(context.Background())
	require.True(t, status.Healthy)
	require.False(t, status.Checks[0].OK, "alive check reports the stale loop")
	require.NotEmpty(t, status.Version)
}
