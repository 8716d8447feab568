package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ghalamif/sensorhub/internal/adapters/observability"
	"github.com/ghalamif/sensorhub/internal/adapters/wal"
	"github.com/ghalamif/sensorhub/internal/domain"
	"github.com/ghalamif/sensorhub/internal/ports"
)

type memorySink struct {
	mu      sync.Mutex
	fail    bool
	written []string
}

func (s *memorySink) WriteSession(_ context.Context, rec *domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("db unavailable")
	}
	s.written = append(s.written, rec.DeviceName)
	return nil
}

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.written...)
}

func record(name string) *domain.SessionRecord {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.SessionRecord{
		DeviceName: name,
		StartTime:  now,
		EndTime:    now.Add(time.Minute),
		DataPoints: []domain.Reading{{SequenceID: 0, Timestamp: now, ChannelID: "temp", Value: 25}},
	}
}

func TestHandoffDeliversInOrder(t *testing.T) {
	spool, err := wal.NewFileWAL(t.TempDir())
	require.NoError(t, err)
	defer spool.Close()

	sink := &memorySink{}
	h := NewHandoff(spool, sink, ports.Policy{}, observability.Nop{})

	require.NoError(t, h.Submit(record("a")))
	require.NoError(t, h.Submit(record("b")))

	n, err := h.DrainOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"a", "b"}, sink.names())

	n, err = h.DrainOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, n, "committed sessions are not delivered twice")
}

func TestHandoffRetriesAfterSinkFailure(t *testing.T) {
	spool, err := wal.NewFileWAL(t.TempDir())
	require.NoError(t, err)
	defer spool.Close()

	sink := &memorySink{fail: true}
	h := NewHandoff(spool, sink, ports.Policy{}, observability.Nop{})
	require.NoError(t, h.Submit(record("a")))

	n, err := h.DrainOnce(context.Background())
	require.Error(t, err)
	require.Zero(t, n)

	sink.mu.Lock()
	sink.fail = false
	sink.mu.Unlock()

	n, err = h.DrainOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"a"}, sink.names())
}

func TestHandoffRunWakesOnSubmit(t *testing.T) {
	spool, err := wal.NewFileWAL(t.TempDir())
	require.NoError(t, err)
	defer spool.Close()

	sink := &memorySink{}
	h := NewHandoff(spool, sink, ports.Policy{IdleSleep: time.Hour}, observability.Nop{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.NoError(t, h.Submit(record("live")))
	require.Eventually(t, func() bool { return len(sink.names()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

type commitFailingSpool struct {
	*wal.FileWAL
}

func (s commitFailingSpool) Commit(ports.SpoolEntryID) error { return errors.New("disk full") }

func TestHandoffBacksOffWhenCommitFails(t *testing.T) {
	fw, err := wal.NewFileWAL(t.TempDir())
	require.NoError(t, err)
	defer fw.Close()

	sink := &memorySink{}
	h := NewHandoff(commitFailingSpool{fw}, sink, ports.Policy{IdleSleep: time.Second}, observability.Nop{})
	require.NoError(t, h.Submit(record("a")))

	n, err := h.DrainOnce(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, n)
	<-h.wake

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, h.Run(ctx))

	// DrainOnce above plus the first Run pass; then Run sleeps for IdleSleep.
	require.Len(t, sink.names(), 2)
}
