package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/sensorhub/internal/domain"
	"github.com/ghalamif/sensorhub/internal/ports"
)

// Handoff spools finished sessions and drains them to a sink in order. A
// session stays in the spool until the sink accepts it, so sink outages and
// restarts lose nothing.
type Handoff struct {
	spool ports.SessionSpool
	sink  ports.SessionSink
	obs   ports.Observability
	idle  time.Duration

	wake chan struct{}
}

func NewHandoff(spool ports.SessionSpool, sink ports.SessionSink, pol ports.Policy, obs ports.Observability) *Handoff {
	idle := pol.IdleSleep
	if idle <= 0 {
		idle = 500 * time.Millisecond
	}
	return &Handoff{
		spool: spool,
		sink:  sink,
		obs:   obs,
		idle:  idle,
		wake:  make(chan struct{}, 1),
	}
}

// Submit appends rec to the spool and wakes the drain loop.
func (h *Handoff) Submit(rec *domain.SessionRecord) error {
	if _, err := h.spool.Append(rec); err != nil {
		return err
	}
	select {
	case h.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run drains the spool until ctx is cancelled.
func (h *Handoff) Run(ctx context.Context) error {
	for {
		n, err := h.DrainOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			h.obs.LogError("session_sink_failed", err, ports.Field{Key: "sink", Value: h.sink.Name()})
		}
		if n > 0 && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-h.wake:
		case <-time.After(h.idle):
		}
	}
}

// DrainOnce delivers every pending session and commits each one after the
// sink accepts it. It stops at the first sink or commit failure.
func (h *Handoff) DrainOnce(ctx context.Context) (int, error) {
	stats := h.spool.Stats()
	h.obs.SetGauge("sensorhub_spool_size_bytes", float64(stats.SizeBytes))

	if stats.LatestAppended == 0 || stats.OldestUncommitted > stats.LatestAppended {
		return 0, nil
	}

	type pending struct {
		id  ports.SpoolEntryID
		rec *domain.SessionRecord
	}
	var batch []pending
	if err := h.spool.Iterate(stats.OldestUncommitted, func(id ports.SpoolEntryID, rec *domain.SessionRecord) error {
		batch = append(batch, pending{id: id, rec: rec})
		return nil
	}); err != nil {
		return 0, err
	}

	var delivered int
	for _, p := range batch {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		start := time.Now()
		if err := h.sink.WriteSession(ctx, p.rec); err != nil {
			return delivered, err
		}
		h.obs.ObserveLatency("sensorhub_sink_latency_seconds", time.Since(start).Seconds())
		h.obs.IncCounter("sensorhub_sessions_handed_off_total", 1)
		delivered++

		if err := h.spool.Commit(p.id); err != nil {
			return delivered, fmt.Errorf("spool commit %d: %w", p.id, err)
		}
	}

	if delivered > 0 {
		if err := h.spool.TruncateCommitted(); err != nil {
			h.obs.LogError("spool_truncate_failed", err)
		}
	}
	return delivered, nil
}

var _ ports.SessionHandoff = (*Handoff)(nil)
