// Package store owns the canonical session snapshot. Every write goes through
// Mutate, which is the single serialization point: it applies a change to a
// private working copy, publishes a new immutable snapshot and notifies
// observers synchronously, in registration order, before returning.
package store

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghalamif/sensorhub/internal/domain"
	"github.com/ghalamif/sensorhub/internal/history"
	"github.com/ghalamif/sensorhub/internal/registry"
)

// Observer receives every committed snapshot. It runs while the mutation lock
// is held, so it must return quickly and must not call Mutate.
type Observer func(*domain.Snapshot)

type Option func(*Store)

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithHistoryCapacity bounds the rolling history.
func WithHistoryCapacity(n int) Option {
	return func(s *Store) {
		s.hist = history.New(n)
	}
}

type connState struct {
	connection domain.ConnectionState
	demoMode   bool
	deviceName string
	lastError  string
	startedAt  time.Time
	firstSeq   uint64
}

type observerEntry struct {
	id uint64
	fn Observer
}

type Store struct {
	mu      sync.Mutex
	now     func() time.Time
	reg     *registry.Registry
	hist    *history.Buffer
	conn    connState
	nextSeq uint64
	version uint64

	current atomic.Pointer[domain.Snapshot]

	obsMu     sync.Mutex
	observers []observerEntry
	nextObsID uint64
}

func New(opts ...Option) *Store {
	s := &Store{
		now:  time.Now,
		reg:  registry.New(),
		hist: history.New(history.DefaultCapacity),
		conn: connState{connection: domain.Disconnected},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.current.Store(s.buildSnapshot())
	return s
}

// Snapshot returns the latest published snapshot without blocking writers.
func (s *Store) Snapshot() *domain.Snapshot {
	return s.current.Load()
}

// Subscribe registers fn and returns a handle that removes exactly this
// registration. Calling the handle more than once is harmless.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	s.obsMu.Lock()
	s.nextObsID++
	id := s.nextObsID
	s.observers = append(s.observers, observerEntry{id: id, fn: fn})
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			defer s.obsMu.Unlock()
			for i, o := range s.observers {
				if o.id == id {
					s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Mutate runs fn against a working copy of the state. If fn changed anything
// the copy is published atomically and observers are notified; otherwise the
// current snapshot is returned and nobody is notified.
func (s *Store) Mutate(fn func(tx *Tx)) *domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{
		now:     s.now(),
		base:    s,
		conn:    s.conn,
		nextSeq: s.nextSeq,
	}
	fn(tx)
	if !tx.dirty {
		return s.current.Load()
	}

	if tx.reg != nil {
		s.reg = tx.reg
	}
	if tx.hist != nil {
		s.hist = tx.hist
	}
	s.conn = tx.conn
	s.nextSeq = tx.nextSeq
	s.version++

	snap := s.buildSnapshot()
	s.current.Store(snap)
	s.notify(snap)
	return snap
}

// Reset starts a fresh recording: history is cleared and every channel loses
// its value and becomes active, keeping its id, name and unit.
func (s *Store) Reset() *domain.Snapshot {
	return s.Mutate(func(tx *Tx) { tx.Reset() })
}

func (s *Store) buildSnapshot() *domain.Snapshot {
	return domain.NewSnapshot(domain.SnapshotState{
		Version:    s.version,
		Connection: s.conn.connection,
		DemoMode:   s.conn.demoMode,
		DeviceName: s.conn.deviceName,
		LastError:  s.conn.lastError,
		StartedAt:  s.conn.startedAt,
		FirstSeq:   s.conn.firstSeq,
		Channels:   s.reg.Map(),
		Readings:   s.hist.Items(),
	})
}

func (s *Store) notify(snap *domain.Snapshot) {
	s.obsMu.Lock()
	observers := make([]observerEntry, len(s.observers))
	copy(observers, s.observers)
	s.obsMu.Unlock()

	for _, o := range observers {
		o.fn(snap)
	}
}
