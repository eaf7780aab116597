package store

import (
	"github.com/dshills/rulebook/internal/logging"
	"github.com/dshills/rulebook/internal/rules/registry"
)

// Restore seeds every stored value into reg and locks it if the snapshot
// says so. Unknown rules and invalid values are logged and skipped. It
// returns the number of values applied.
func Restore(reg *registry.Registry, snap *Snapshot, logger *logging.Logger) int {
	return Reconcile(reg, nil, snap, logger)
}

// Reconcile moves reg from the state described by prev to the one
// described by next. Rules present in prev but missing from next return
// to their default. The lock flag follows next. A nil prev behaves like
// an empty snapshot.
func Reconcile(reg *registry.Registry, prev, next *Snapshot, logger *logging.Logger) int {
	if logger == nil {
		logger = logging.Nop()
	}
	if prev == nil {
		prev = NewSnapshot()
	}

	applied := 0
	for _, name := range next.Names() {
		value := next.Rules[name]
		if old, ok := prev.Get(name); ok && old == value {
			continue
		}
		if err := reg.Seed(name, value); err != nil {
			logger.Warn("skipping stored value %s=%q: %v", name, value, err)
			continue
		}
		applied++
	}

	for _, name := range prev.Names() {
		if _, ok := next.Get(name); ok {
			continue
		}
		rl, err := reg.Rule(name)
		if err != nil {
			continue
		}
		if err := reg.Seed(name, rl.Default().String()); err != nil {
			logger.Warn("resetting %s: %v", name, err)
			continue
		}
		applied++
	}

	switch {
	case next.Locked && !reg.Locked():
		reg.Lock()
		logger.Info("registry locked by store file")
	case !next.Locked && prev.Locked && reg.Locked():
		reg.Unlock()
		logger.Info("registry unlocked by store file")
	}
	return applied
}

// Capture builds a snapshot of every non-default value and the lock flag.
func Capture(reg *registry.Registry) *Snapshot {
	snap := NewSnapshot()
	snap.Locked = reg.Locked()
	for _, rl := range reg.NonDefault() {
		snap.Set(rl.Name(), rl.Value().String())
	}
	return snap
}
