// Package forward mirrors committed readings to a message broker. The store
// observer only copies new readings into a bounded queue; publishing happens
// on a separate goroutine so broker latency never stalls a mutation.
package forward

import (
	"context"
	"sync"
	"time"

	"github.com/ghalamif/sensorhub/internal/domain"
	"github.com/ghalamif/sensorhub/internal/ports"
)

type Forwarder struct {
	queue ports.ReadingQueue
	pub   ports.Publisher
	obs   ports.Observability
	batch int
	idle  time.Duration

	mu      sync.Mutex
	lastSeq uint64
	seen    bool
}

func NewForwarder(q ports.ReadingQueue, pub ports.Publisher, pol ports.Policy, obs ports.Observability) *Forwarder {
	batch := pol.MaxForwardBatch
	if batch <= 0 {
		batch = 100
	}
	idle := pol.IdleSleep
	if idle <= 0 {
		idle = 50 * time.Millisecond
	}
	return &Forwarder{queue: q, pub: pub, obs: obs, batch: batch, idle: idle}
}

// Observe is registered with the store. It enqueues every reading newer than
// the last one it saw and counts what does not fit.
func (f *Forwarder) Observe(snap *domain.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var fresh []domain.Reading
	if f.seen {
		fresh = snap.ReadingsAfter(f.lastSeq)
	} else {
		fresh = snap.Readings()
	}
	if len(fresh) == 0 {
		return
	}
	f.seen = true
	f.lastSeq = fresh[len(fresh)-1].SequenceID

	dropped := 0
	for _, r := range fresh {
		if !f.queue.Enqueue(r) {
			dropped++
		}
	}
	if dropped > 0 {
		f.obs.IncCounter("sensorhub_forward_dropped_total", float64(dropped))
	}
	f.obs.SetGauge("sensorhub_forward_queue_length", float64(f.queue.Len()))
}

// Run publishes queued readings until ctx is cancelled, then closes the
// publisher.
func (f *Forwarder) Run(ctx context.Context) error {
	defer func() {
		if err := f.pub.Close(); err != nil {
			f.obs.LogError("forward_close_failed", err, ports.Field{Key: "publisher", Value: f.pub.Name()})
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		batch := f.queue.DequeueBatch(f.batch)
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(f.idle):
			}
			continue
		}

		if err := f.pub.Publish(ctx, batch); err != nil {
			f.obs.LogError("forward_publish_failed", err,
				ports.Field{Key: "publisher", Value: f.pub.Name()},
				ports.Field{Key: "readings", Value: len(batch)})
			f.obs.IncCounter("sensorhub_forward_dropped_total", float64(len(batch)))
			continue
		}
		f.obs.IncCounter("sensorhub_forward_published_total", float64(len(batch)))
	}
}
