// Package registry holds per-channel metadata and current values. A registry
// never deletes a channel; unknown ids are provisioned on first write.
package registry

import (
	"time"

	"github.com/ghalamif/sensorhub/internal/domain"
)

type Registry struct {
	channels map[string]domain.Channel
}

func New() *Registry {
	return &Registry{channels: make(map[string]domain.Channel)}
}

// Clone returns an independent copy.
func (r *Registry) Clone() *Registry {
	out := &Registry{channels: make(map[string]domain.Channel, len(r.channels))}
	for id, c := range r.channels {
		out.channels[id] = c
	}
	return out
}

func (r *Registry) Get(id string) (domain.Channel, bool) {
	c, ok := r.channels[id]
	return c, ok
}

func (r *Registry) Len() int { return len(r.channels) }

// Map returns a copy of the channel table.
func (r *Registry) Map() map[string]domain.Channel {
	out := make(map[string]domain.Channel, len(r.channels))
	for id, c := range r.channels {
		out[id] = c
	}
	return out
}

// Upsert creates an active channel if absent and otherwise returns the
// existing entry untouched. The staleness clock starts at now.
func (r *Registry) Upsert(meta domain.ChannelMeta, now time.Time) (domain.Channel, bool) {
	if c, ok := r.channels[meta.ID]; ok {
		return c, false
	}
	name := meta.Name
	if name == "" {
		name = meta.ID
	}
	c := domain.Channel{
		ID:          meta.ID,
		Name:        name,
		Unit:        meta.Unit,
		LastUpdated: now,
		Status:      domain.StatusActive,
	}
	r.channels[meta.ID] = c
	return c, true
}

// ApplyReading records value as the channel's current reading. Stale channels
// become active again; inactive ones keep their status.
func (r *Registry) ApplyReading(id string, value float64, now time.Time) domain.Channel {
	c, _ := r.Upsert(domain.ChannelMeta{ID: id}, now)
	c.Value = value
	c.HasValue = true
	c.LastUpdated = now
	if c.Status != domain.StatusInactive {
		c.Status = domain.StatusActive
	}
	r.channels[id] = c
	return c
}

// MarkInactive forces the channel to inactive. It reports whether the status
// changed.
func (r *Registry) MarkInactive(id string, now time.Time) bool {
	c, _ := r.Upsert(domain.ChannelMeta{ID: id}, now)
	if c.Status == domain.StatusInactive {
		return false
	}
	c.Status = domain.StatusInactive
	r.channels[id] = c
	return true
}

// SweepStale moves every active channel silent for longer than threshold to
// stale and returns the ids that changed.
func (r *Registry) SweepStale(now time.Time, threshold time.Duration) []string {
	var changed []string
	for id, c := range r.channels {
		if c.Status != domain.StatusActive {
			continue
		}
		if now.Sub(c.LastUpdated) > threshold {
			c.Status = domain.StatusStale
			r.channels[id] = c
			changed = append(changed, id)
		}
	}
	return changed
}

// Reset clears readings while keeping ids, names and units.
func (r *Registry) Reset(now time.Time) {
	for id, c := range r.channels {
		r.channels[id] = domain.Channel{
			ID:          c.ID,
			Name:        c.Name,
			Unit:        c.Unit,
			LastUpdated: now,
			Status:      domain.StatusActive,
		}
	}
}
