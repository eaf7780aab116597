package app

import (
	"sync/atomic"
	"time"

	"github.com/dshills/rulebook/internal/rules/notify"
)

// Metrics counts what happened to the rules since startup.
type Metrics struct {
	changes        atomic.Uint64
	consoleChanges atomic.Uint64
	reloads        atomic.Uint64
	reloadFailures atomic.Uint64
	lastChangeNs   atomic.Int64

	startTime time.Time
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordChange records a committed change.
func (m *Metrics) RecordChange(c notify.Change) {
	m.changes.Add(1)
	if c.Actor.Console {
		m.consoleChanges.Add(1)
	}
	m.lastChangeNs.Store(c.Time.UnixNano())
}

// RecordReload records a rules file reload.
func (m *Metrics) RecordReload(err error) {
	if err != nil {
		m.reloadFailures.Add(1)
		return
	}
	m.reloads.Add(1)
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Changes        uint64
	ConsoleChanges uint64
	Reloads        uint64
	ReloadFailures uint64
	LastChange     time.Time
	Uptime         time.Duration
}

// Snapshot returns the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Changes:        m.changes.Load(),
		ConsoleChanges: m.consoleChanges.Load(),
		Reloads:        m.reloads.Load(),
		ReloadFailures: m.reloadFailures.Load(),
		Uptime:         time.Since(m.startTime),
	}
	if ns := m.lastChangeNs.Load(); ns != 0 {
		s.LastChange = time.Unix(0, ns)
	}
	return s
}
