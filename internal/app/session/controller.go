// Package session drives the connection lifecycle: it owns the single active
// transport connection, its event pump and the demo-mode fallback timer, and
// reflects every transition in the store.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ghalamif/sensorhub/internal/app/pipeline"
	"github.com/ghalamif/sensorhub/internal/app/store"
	"github.com/ghalamif/sensorhub/internal/domain"
	"github.com/ghalamif/sensorhub/internal/ports"
)

var (
	ErrConnectInProgress = errors.New("session: connect already in progress")
	// ErrConnectAborted is returned when Disconnect or Close ran while the
	// transport was still connecting. The late connection is closed.
	ErrConnectAborted = errors.New("session: connect aborted")
)

const (
	PermissionDeniedMessage = "access blocked. Switching to demo mode"
	FallbackDeviceName      = "Demo Node (Fallback)"
	DefaultFallbackDelay    = 1500 * time.Millisecond
)

type Deps struct {
	Store    *store.Store
	Ingestor *pipeline.Ingestor

	// Live is the real device transport. Without one every connect is
	// simulated.
	Live       ports.Transport
	Simulation ports.Transport

	// Handoff receives the record of every finished session that produced
	// readings. Optional.
	Handoff ports.SessionHandoff

	Obs    ports.Observability
	Policy ports.Policy
}

type mode int

const (
	modeLive mode = iota
	modeSimulation
	modeFallback
)

type activeSession struct {
	gen    uint64
	conn   ports.Connection
	cancel context.CancelFunc
	done   chan struct{}
}

type Controller struct {
	store   *store.Store
	ingest  *pipeline.Ingestor
	live    ports.Transport
	sim     ports.Transport
	handoff ports.SessionHandoff
	obs     ports.Observability
	pol     ports.Policy

	mu         sync.Mutex
	gen        uint64
	connecting bool
	active     *activeSession
	fallback   *time.Timer
}

func New(d Deps) *Controller {
	if d.Ingestor == nil {
		d.Ingestor = pipeline.NewIngestor(d.Store, d.Obs)
	}
	if d.Policy.FallbackDelay <= 0 {
		d.Policy.FallbackDelay = DefaultFallbackDelay
	}
	return &Controller{
		store:   d.Store,
		ingest:  d.Ingestor,
		live:    d.Live,
		sim:     d.Simulation,
		handoff: d.Handoff,
		obs:     d.Obs,
		pol:     d.Policy,
	}
}

// Connect opens a connection, tearing down the current one first. Transport
// failures are reported both as the returned error and in the snapshot's
// last error, following the error policy: permission problems switch to
// demo mode, not-found and cancellation are silent.
func (c *Controller) Connect(ctx context.Context, useSimulation bool) error {
	m := modeLive
	if useSimulation {
		m = modeSimulation
	} else if c.live == nil {
		m = modeFallback
	}
	return c.connect(ctx, m)
}

func (c *Controller) connect(ctx context.Context, m mode) error {
	c.mu.Lock()
	if c.connecting {
		c.mu.Unlock()
		return ErrConnectInProgress
	}
	c.connecting = true
	old := c.detachLocked()
	gen := c.gen
	c.mu.Unlock()

	if old != nil {
		if err := c.teardown(old); err != nil {
			c.obs.LogWarn("previous_session_teardown", err)
		}
	}

	c.mu.Lock()
	if gen != c.gen {
		c.connecting = false
		c.mu.Unlock()
		return ErrConnectAborted
	}
	began := false
	c.store.Mutate(func(tx *store.Tx) { began = tx.BeginConnecting() })
	if !began {
		c.connecting = false
	}
	c.mu.Unlock()
	if !began {
		return ErrConnectInProgress
	}

	tr := c.live
	if m != modeLive {
		tr = c.sim
	}

	// sctx is the session context and outlives this call; ctx only aborts
	// the attempt.
	sctx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	conn, err := tr.Connect(sctx)
	if !stop() && err == nil {
		_ = conn.Disconnect()
		conn, err = nil, ports.NewTransportError(ports.Cancelled, ctx.Err())
	}
	return c.complete(sctx, cancel, gen, m, conn, err)
}

func (c *Controller) complete(ctx context.Context, cancel context.CancelFunc, gen uint64, m mode, conn ports.Connection, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connecting = false

	if gen != c.gen {
		cancel()
		if conn != nil {
			_ = conn.Disconnect()
		}
		return ErrConnectAborted
	}

	if err != nil {
		cancel()
		c.failLocked(gen, m, err)
		return err
	}

	label := conn.DeviceName()
	if m == modeFallback {
		label = FallbackDeviceName
	}
	demo := m != modeLive

	s := &activeSession{gen: gen, conn: conn, cancel: cancel, done: make(chan struct{})}
	c.active = s

	c.store.Mutate(func(tx *store.Tx) {
		for _, meta := range conn.Channels() {
			tx.Upsert(meta)
		}
		tx.SetConnected(label, demo)
	})
	c.obs.LogInfo("session_connected",
		ports.Field{Key: "device", Value: label},
		ports.Field{Key: "demo", Value: demo})

	go func() {
		defer close(s.done)
		pipeline.RunEventPump(ctx, conn.Events(), c.ingest, &pumpHandler{c: c, gen: gen}, c.obs)
	}()
	return nil
}

func (c *Controller) failLocked(gen uint64, m mode, err error) {
	switch ports.TransportErrorKindOf(err) {
	case ports.PermissionDenied:
		c.obs.LogWarn("transport_permission_denied", err)
		c.store.Mutate(func(tx *store.Tx) { tx.SetDisconnected(PermissionDeniedMessage) })
		if m == modeLive && c.pol.FallbackEnabled() {
			c.fallback = time.AfterFunc(c.pol.FallbackDelay, func() { c.runFallback(gen) })
		}
	case ports.NotFound, ports.Cancelled:
		c.obs.LogInfo("connect_abandoned", ports.Field{Key: "reason", Value: err.Error()})
		c.store.Mutate(func(tx *store.Tx) { tx.SetDisconnected("") })
	default:
		c.obs.LogError("connect_failed", err)
		c.store.Mutate(func(tx *store.Tx) { tx.SetDisconnected(err.Error()) })
	}
}

func (c *Controller) runFallback(gen uint64) {
	c.mu.Lock()
	stale := gen != c.gen || c.connecting || c.active != nil
	if !stale {
		c.fallback = nil
	}
	c.mu.Unlock()
	if stale {
		return
	}
	if err := c.connect(context.Background(), modeFallback); err != nil && !errors.Is(err, ErrConnectAborted) {
		c.obs.LogError("fallback_connect_failed", err)
	}
}

// Disconnect ends the current session, cancels a pending fallback and aborts
// an in-flight connect. It is a no-op when nothing is connected.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	old := c.detachLocked()
	c.mu.Unlock()

	if old == nil {
		c.store.Mutate(func(tx *store.Tx) { tx.SetDisconnected("") })
		return nil
	}
	return c.teardown(old)
}

// Close is Disconnect for shutdown.
func (c *Controller) Close() error { return c.Disconnect() }

// detachLocked invalidates the current generation and returns the active
// session, if any, for teardown outside the lock.
func (c *Controller) detachLocked() *activeSession {
	c.gen++
	if c.fallback != nil {
		c.fallback.Stop()
		c.fallback = nil
	}
	old := c.active
	c.active = nil
	return old
}

// teardown stops the pump and the connection, publishes the disconnect and
// hands the finished session off.
func (c *Controller) teardown(old *activeSession) error {
	old.cancel()
	<-old.done
	err := old.conn.Disconnect()

	snap, end := c.publishDisconnect()
	return errors.Join(err, c.handOff(snap, end))
}

// publishDisconnect returns the last connected snapshot and the end time.
func (c *Controller) publishDisconnect() (*domain.Snapshot, time.Time) {
	snap := c.store.Snapshot()
	var end time.Time
	c.store.Mutate(func(tx *store.Tx) {
		end = tx.Now()
		tx.SetDisconnected("")
	})
	c.obs.LogInfo("session_disconnected", ports.Field{Key: "device", Value: snap.DeviceName()})
	return snap, end
}

func (c *Controller) handOff(snap *domain.Snapshot, end time.Time) error {
	if c.handoff == nil {
		return nil
	}
	rec := domain.NewSessionRecord(snap, end)
	if len(rec.DataPoints) == 0 {
		return nil
	}
	if err := c.handoff.Submit(rec); err != nil {
		c.obs.LogError("session_handoff_failed", err, ports.Field{Key: "session", Value: rec.ID.String()})
		return err
	}
	return nil
}

type pumpHandler struct {
	c   *Controller
	gen uint64
}

// OnRemoteDisconnect ignores events from a session that was already replaced
// or torn down locally.
func (h *pumpHandler) OnRemoteDisconnect() {
	c := h.c
	c.mu.Lock()
	if c.active == nil || c.active.gen != h.gen {
		c.mu.Unlock()
		return
	}
	old := c.active
	c.active = nil
	old.cancel()
	// Published before the lock is released so a Connect that follows
	// starts from disconnected.
	snap, end := c.publishDisconnect()
	c.mu.Unlock()

	err := errors.Join(old.conn.Disconnect(), c.handOff(snap, end))
	if err != nil {
		c.obs.LogWarn("remote_disconnect_teardown", err)
	}
}

func (h *pumpHandler) OnTransportError(err error) {
	if err == nil || !h.current() {
		return
	}
	h.c.store.Mutate(func(tx *store.Tx) { tx.SetError(err.Error()) })
}

func (h *pumpHandler) OnChannelLost(channelID string) {
	if !h.current() {
		return
	}
	h.c.store.Mutate(func(tx *store.Tx) { tx.MarkInactive(channelID) })
	h.c.obs.LogInfo("channel_lost", ports.Field{Key: "channel", Value: channelID})
}

func (h *pumpHandler) current() bool {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	return h.c.active != nil && h.c.active.gen == h.gen
}

var _ pipeline.EventHandler = (*pumpHandler)(nil)
