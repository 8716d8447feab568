package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ghalamif/sensorhub/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestInitialSnapshot(t *testing.T) {
	s := New()
	snap := s.Snapshot()

	require.Equal(t, domain.Disconnected, snap.Connection())
	require.Equal(t, 0, snap.Len())
	require.Empty(t, snap.Channels())
	require.Equal(t, uint64(0), snap.Version())
}

func TestMutatePublishesAndNotifiesInOrder(t *testing.T) {
	s := New()

	var order []string
	s.Subscribe(func(*domain.Snapshot) { order = append(order, "first") })
	s.Subscribe(func(*domain.Snapshot) { order = append(order, "second") })

	snap := s.Mutate(func(tx *Tx) { tx.ApplyReading("temp", 24.1) })

	require.Equal(t, []string{"first", "second"}, order)
	require.Same(t, snap, s.Snapshot())
	require.Equal(t, uint64(1), snap.Version())
}

func TestMutateWithoutChangesDoesNotNotify(t *testing.T) {
	s := New()
	calls := 0
	s.Subscribe(func(*domain.Snapshot) { calls++ })

	before := s.Snapshot()
	after := s.Mutate(func(tx *Tx) {
		tx.SetDisconnected("")
		tx.SweepStale(10 * time.Second)
	})

	require.Zero(t, calls)
	require.Same(t, before, after)
}

func TestObserverSeesSnapshotBeingPublished(t *testing.T) {
	s := New()
	var seen *domain.Snapshot
	s.Subscribe(func(snap *domain.Snapshot) {
		seen = snap
		require.Same(t, snap, s.Snapshot())
	})

	published := s.Mutate(func(tx *Tx) { tx.ApplyReading("temp", 1) })
	require.Same(t, published, seen)
}

func TestUnsubscribeRemovesExactlyOneRegistration(t *testing.T) {
	s := New()
	calls := 0
	fn := func(*domain.Snapshot) { calls++ }

	unsubA := s.Subscribe(fn)
	s.Subscribe(fn)

	unsubA()
	unsubA()

	s.Mutate(func(tx *Tx) { tx.ApplyReading("temp", 1) })
	require.Equal(t, 1, calls)
}

func TestOldSnapshotsAreNotMutated(t *testing.T) {
	s := New()
	s.Mutate(func(tx *Tx) { tx.ApplyReading("temp", 1) })
	old := s.Snapshot()

	s.Mutate(func(tx *Tx) {
		tx.ApplyReading("temp", 2)
		tx.ApplyReading("hum", 3)
	})

	require.Equal(t, 1, old.Len())
	c, ok := old.Channel("temp")
	require.True(t, ok)
	require.Equal(t, 1.0, c.Value)
	_, ok = old.Channel("hum")
	require.False(t, ok)
}

func TestSequenceIDsStrictlyIncreaseAcrossReset(t *testing.T) {
	s := New(WithHistoryCapacity(4))

	var ids []uint64
	for i := 0; i < 10; i++ {
		s.Mutate(func(tx *Tx) {
			ids = append(ids, tx.ApplyReading("accel", float64(i)).SequenceID)
		})
		if i == 5 {
			s.Reset()
		}
	}

	for i := 1; i < len(ids); i++ {
		require.Greater(t, ids[i], ids[i-1])
	}
	require.Equal(t, uint64(9), ids[len(ids)-1])
	require.Equal(t, 4, s.Snapshot().Len())
}

func TestHistoryBoundedToCapacity(t *testing.T) {
	s := New(WithHistoryCapacity(3))
	for i := 0; i < 7; i++ {
		s.Mutate(func(tx *Tx) { tx.ApplyReading("accel", float64(i)) })
	}

	readings := s.Snapshot().Readings()
	require.Len(t, readings, 3)
	require.Equal(t, 4.0, readings[0].Value)
	require.Equal(t, 6.0, readings[2].Value)
}

func TestResetKeepsChannelDefinitions(t *testing.T) {
	clock := newClock()
	s := New(WithClock(clock.Now))

	s.Mutate(func(tx *Tx) {
		tx.Upsert(domain.ChannelMeta{ID: "temp", Name: "Temperature", Unit: "°C"})
		tx.ApplyReading("temp", 25)
		tx.MarkInactive("hum")
	})
	clock.Advance(time.Minute)

	snap := s.Reset()
	require.Equal(t, 0, snap.Len())

	channels := snap.Channels()
	require.Len(t, channels, 2)
	for _, c := range channels {
		require.False(t, c.HasValue)
		require.Equal(t, domain.StatusActive, c.Status)
		require.Equal(t, clock.Now(), c.LastUpdated)
	}
	temp, _ := snap.Channel("temp")
	require.Equal(t, "Temperature", temp.Name)
	require.Equal(t, "°C", temp.Unit)
}

func TestConnectionLifecycle(t *testing.T) {
	clock := newClock()
	s := New(WithClock(clock.Now))

	var ok bool
	s.Mutate(func(tx *Tx) { ok = tx.BeginConnecting() })
	require.True(t, ok)
	require.Equal(t, domain.Connecting, s.Snapshot().Connection())

	s.Mutate(func(tx *Tx) { ok = tx.BeginConnecting() })
	require.False(t, ok)

	s.Mutate(func(tx *Tx) { tx.SetConnected("Simulation Node", true) })
	snap := s.Snapshot()
	require.Equal(t, domain.Connected, snap.Connection())
	require.True(t, snap.DemoMode())
	require.Equal(t, "Simulation Node", snap.DeviceName())
	require.Equal(t, clock.Now(), snap.StartedAt())

	s.Mutate(func(tx *Tx) { ok = tx.BeginConnecting() })
	require.False(t, ok)

	s.Mutate(func(tx *Tx) { tx.SetDisconnected("") })
	snap = s.Snapshot()
	require.Equal(t, domain.Disconnected, snap.Connection())
	require.False(t, snap.DemoMode())
	require.Empty(t, snap.DeviceName())
}

func TestFailedConnectKeepsErrorUntilNextAttempt(t *testing.T) {
	s := New()
	s.Mutate(func(tx *Tx) { tx.BeginConnecting() })
	s.Mutate(func(tx *Tx) { tx.SetDisconnected("device unreachable") })
	require.Equal(t, "device unreachable", s.Snapshot().LastError())

	s.Mutate(func(tx *Tx) { tx.BeginConnecting() })
	require.Empty(t, s.Snapshot().LastError())
}

func TestConcurrentMutationsAreSerialized(t *testing.T) {
	s := New(WithHistoryCapacity(10_000))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Mutate(func(tx *Tx) { tx.ApplyReading("accel", 1) })
			}
		}()
	}
	wg.Wait()

	readings := s.Snapshot().Readings()
	require.Len(t, readings, 800)
	seen := make(map[uint64]bool, len(readings))
	for i, r := range readings {
		require.False(t, seen[r.SequenceID])
		seen[r.SequenceID] = true
		if i > 0 {
			require.Greater(t, r.SequenceID, readings[i-1].SequenceID)
		}
	}
}

func TestSessionReadingsStartAtConnect(t *testing.T) {
	s := New()
	s.Mutate(func(tx *Tx) { tx.ApplyReading("temp", 1) })

	snap := s.Mutate(func(tx *Tx) {
		tx.SetConnected("bench", false)
		tx.ApplyReading("temp", 2)
	})
	require.Equal(t, 2, snap.Len())
	got := snap.SessionReadings()
	require.Len(t, got, 1)
	require.Equal(t, 2.0, got[0].Value)

	rec := domain.NewSessionRecord(snap, snap.StartedAt())
	require.Len(t, rec.DataPoints, 1)
}
