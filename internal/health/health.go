// Package health aggregates liveness and dependency checks for the
// worker daemon's /health endpoint.
package health

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// Config sets the freshness windows for health decisions.
type Config struct {
	// AliveWindow is how stale the loop tick may be before the worker
	// counts as dead.
	AliveWindow time.Duration
	// TrustWindow is how long a dependency's last successful use is
	// trusted before the monitor probes it for real.
	TrustWindow time.Duration
}

// DefaultConfig returns the standard windows: a worker is alive if its
// loop ticked within 20 s, and dependency probes are skipped for 5 s
// after a successful use.
func DefaultConfig() Config {
	return Config{
		AliveWindow: 20 * time.Second,
		TrustWindow: 5 * time.Second,
	}
}

// Tick records the unix second of the last time something happened: a
// worker loop pass, a successful queue pop, a storage write. Writers
// call Update from any goroutine; the monitor asks IsRecent.
// Granularity is whole seconds.
type Tick struct {
	at  atomic.Int64
	now func() time.Time
}

// NewTick returns a tick initialized to the current instant.
func NewTick() *Tick {
	t := &Tick{now: time.Now}
	t.at.Store(t.now().Unix())
	return t
}

// Update moves the tick to the current instant.
func (t *Tick) Update() {
	t.at.Store(t.now().Unix())
}

// IsRecent reports whether the last update happened within window.
func (t *Tick) IsRecent(window time.Duration) bool {
	return t.now().Unix()-t.at.Load() < int64(window/time.Second)
}

// Probe reports whether a dependency is actually reachable. Probes may
// do IO; the monitor only calls them when the dependency's tick has
// gone stale.
type Probe func(ctx context.Context) bool

// Check is one named health check result.
type Check struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Required bool   `json:"required"`
}

// Status is the aggregate health report served as JSON.
type Status struct {
	Healthy bool    `json:"healthy"`
	Checks  []Check `json:"checks"`
	Version string  `json:"version"`
}

// Monitor tracks a worker's loop liveness plus its named dependencies.
// The "alive" check is informational and never gates Healthy; a dead
// loop is surfaced through IsAlive and the liveness probe instead.
type Monitor struct {
	cfg     Config
	loop    *Tick
	deps    []dependency
	version string
}

type dependency struct {
	name  string
	tick  *Tick
	probe Probe
}

// NewMonitor creates a monitor with a fresh loop tick.
func NewMonitor(cfg Config) *Monitor {
	return &Monitor{
		cfg:     cfg,
		loop:    NewTick(),
		version: moduleVersion(),
	}
}

// Loop returns the liveness tick. The worker loop updates it on every
// pass, including idle ones.
func (m *Monitor) Loop() *Tick {
	return m.loop
}

// Register adds a named dependency. tick is updated by the owner on
// every successful use; probe is consulted when the tick goes stale
// (nil means a stale tick reports unhealthy without probing). Register
// everything before serving; it is not safe concurrently with
// HealthCheck.
func (m *Monitor) Register(name string, tick *Tick, probe Probe) {
	m.deps = append(m.deps, dependency{name: name, tick: tick, probe: probe})
}

// IsAlive reports whether the worker loop ticked within the alive
// window.
func (m *Monitor) IsAlive() bool {
	return m.loop.IsRecent(m.cfg.AliveWindow)
}

// Version returns the build version embedded in the binary.
func (m *Monitor) Version() string {
	return m.version
}

// HealthCheck evaluates every check. A dependency used successfully
// within the trust window passes without IO; otherwise its probe runs.
// Healthy is the conjunction of the required (dependency) checks.
func (m *Monitor) HealthCheck(ctx context.Context) Status {
	status := Status{Healthy: true, Version: m.version}

	status.Checks = append(status.Checks, Check{Name: "alive", OK: m.IsAlive()})

	for _, d := range m.deps {
		ok := d.tick.IsRecent(m.cfg.TrustWindow)
		if !ok && d.probe != nil {
			ok = d.probe(ctx)
		}
		status.Checks = append(status.Checks, Check{Name: d.name, OK: ok, Required: true})
		if !ok {
			status.Healthy = false
		}
	}

	return status
}

func moduleVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "devel"
}
