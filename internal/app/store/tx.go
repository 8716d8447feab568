package store

import (
	"time"

	"github.com/ghalamif/sensorhub/internal/domain"
	"github.com/ghalamif/sensorhub/internal/history"
	"github.com/ghalamif/sensorhub/internal/registry"
)

// Tx is the working copy handed to a Mutate callback. The registry and
// history are cloned on first write so untouched parts cost nothing.
type Tx struct {
	now     time.Time
	base    *Store
	reg     *registry.Registry
	hist    *history.Buffer
	conn    connState
	nextSeq uint64
	dirty   bool
}

// Now is the single timestamp used for everything in this transaction.
func (tx *Tx) Now() time.Time { return tx.now }

func (tx *Tx) registry() *registry.Registry {
	if tx.reg == nil {
		tx.reg = tx.base.reg.Clone()
	}
	return tx.reg
}

func (tx *Tx) history() *history.Buffer {
	if tx.hist == nil {
		tx.hist = tx.base.hist.Clone()
	}
	return tx.hist
}

func (tx *Tx) readRegistry() *registry.Registry {
	if tx.reg != nil {
		return tx.reg
	}
	return tx.base.reg
}

func (tx *Tx) Channel(id string) (domain.Channel, bool) {
	return tx.readRegistry().Get(id)
}

// Upsert registers a channel definition if it is not known yet.
func (tx *Tx) Upsert(meta domain.ChannelMeta) domain.Channel {
	if c, ok := tx.readRegistry().Get(meta.ID); ok {
		return c
	}
	c, _ := tx.registry().Upsert(meta, tx.now)
	tx.dirty = true
	return c
}

// ApplyReading assigns the next sequence id, updates the channel and appends
// the reading to the rolling history.
func (tx *Tx) ApplyReading(channelID string, value float64) domain.Reading {
	r := domain.Reading{
		SequenceID: tx.nextSeq,
		Timestamp:  tx.now,
		ChannelID:  channelID,
		Value:      value,
	}
	tx.nextSeq++
	tx.registry().ApplyReading(channelID, value, tx.now)
	tx.history().Append(r)
	tx.dirty = true
	return r
}

// MarkInactive reports whether the channel's status changed.
func (tx *Tx) MarkInactive(channelID string) bool {
	if c, ok := tx.readRegistry().Get(channelID); ok && c.Status == domain.StatusInactive {
		return false
	}
	changed := tx.registry().MarkInactive(channelID, tx.now)
	if changed {
		tx.dirty = true
	}
	return changed
}

// SweepStale marks silent channels stale and returns the ids that changed.
func (tx *Tx) SweepStale(threshold time.Duration) []string {
	// A sweep without transitions leaves the transaction clean.
	probe := tx.readRegistry()
	if tx.reg == nil {
		probe = probe.Clone()
	}
	changed := probe.SweepStale(tx.now, threshold)
	if len(changed) == 0 {
		return nil
	}
	tx.reg = probe
	tx.dirty = true
	return changed
}

// Reset clears history and readings, keeping channel definitions.
func (tx *Tx) Reset() {
	tx.registry().Reset(tx.now)
	tx.history().Clear()
	tx.dirty = true
}

func (tx *Tx) Connection() domain.ConnectionState { return tx.conn.connection }
func (tx *Tx) DemoMode() bool                     { return tx.conn.demoMode }

// BeginConnecting moves disconnected → connecting and clears the last error.
// It refuses from any other state.
func (tx *Tx) BeginConnecting() bool {
	if tx.conn.connection != domain.Disconnected {
		return false
	}
	tx.conn.connection = domain.Connecting
	tx.conn.lastError = ""
	tx.dirty = true
	return true
}

// SetConnected completes a connect attempt. Readings from here on belong to
// the new session.
func (tx *Tx) SetConnected(deviceName string, demo bool) {
	tx.conn = connState{
		connection: domain.Connected,
		demoMode:   demo,
		deviceName: deviceName,
		startedAt:  tx.now,
		firstSeq:   tx.nextSeq,
	}
	tx.dirty = true
}

// SetDisconnected returns to disconnected. errMsg, when not empty, becomes the
// last error. Repeating it on an already disconnected state is a no-op.
func (tx *Tx) SetDisconnected(errMsg string) {
	next := connState{connection: domain.Disconnected, lastError: tx.conn.lastError}
	if errMsg != "" {
		next.lastError = errMsg
	}
	if next == tx.conn {
		return
	}
	tx.conn = next
	tx.dirty = true
}

// SetError records a user-visible error without changing the connection state.
func (tx *Tx) SetError(msg string) {
	if tx.conn.lastError == msg {
		return
	}
	tx.conn.lastError = msg
	tx.dirty = true
}
