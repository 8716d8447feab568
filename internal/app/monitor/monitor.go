// Package monitor runs the periodic staleness sweep.
package monitor

import (
	"context"
	"time"

	"github.com/ghalamif/sensorhub/internal/app/store"
	"github.com/ghalamif/sensorhub/internal/ports"
)

const (
	DefaultInterval  = 2 * time.Second
	DefaultThreshold = 10 * time.Second
)

type Monitor struct {
	store     *store.Store
	obs       ports.Observability
	interval  time.Duration
	threshold time.Duration
}

func New(st *store.Store, pol ports.Policy, obs ports.Observability) *Monitor {
	m := &Monitor{
		store:     st,
		obs:       obs,
		interval:  pol.MonitorInterval,
		threshold: pol.StaleThreshold,
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if m.threshold <= 0 {
		m.threshold = DefaultThreshold
	}
	return m
}

// Sweep marks every active channel silent for longer than the threshold as
// stale. Observers are notified only when something changed.
func (m *Monitor) Sweep() []string {
	var changed []string
	m.store.Mutate(func(tx *store.Tx) {
		changed = tx.SweepStale(m.threshold)
	})
	if len(changed) > 0 {
		m.obs.LogInfo("channels_stale", ports.Field{Key: "channels", Value: changed})
	}
	return changed
}

// Run sweeps on a fixed period until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			m.Sweep()
		}
	}
}
