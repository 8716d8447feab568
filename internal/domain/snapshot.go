package domain

import (
	"sort"
	"time"
)

// ConnectionState tracks the transport lifecycle.
type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
)

// SnapshotState carries the fields of a snapshot while it is being built.
// NewSnapshot takes ownership of the map and slice.
type SnapshotState struct {
	Version    uint64
	Connection ConnectionState
	DemoMode   bool
	DeviceName string
	LastError  string
	StartedAt  time.Time
	FirstSeq   uint64
	Channels   map[string]Channel
	Readings   []Reading
}

// Snapshot is the complete, consistent state of a session at one point in
// time. It has no setters; every accessor returns copies.
type Snapshot struct {
	version    uint64
	connection ConnectionState
	demoMode   bool
	deviceName string
	lastError  string
	startedAt  time.Time
	firstSeq   uint64
	channels   map[string]Channel
	readings   []Reading
}

func NewSnapshot(st SnapshotState) *Snapshot {
	if st.Connection == "" {
		st.Connection = Disconnected
	}
	if st.Channels == nil {
		st.Channels = map[string]Channel{}
	}
	return &Snapshot{
		version:    st.Version,
		connection: st.Connection,
		demoMode:   st.DemoMode,
		deviceName: st.DeviceName,
		lastError:  st.LastError,
		startedAt:  st.StartedAt,
		firstSeq:   st.FirstSeq,
		channels:   st.Channels,
		readings:   st.Readings,
	}
}

// Version increases by one with every committed mutation.
func (s *Snapshot) Version() uint64             { return s.version }
func (s *Snapshot) Connection() ConnectionState { return s.connection }
func (s *Snapshot) DemoMode() bool              { return s.demoMode }
func (s *Snapshot) DeviceName() string          { return s.deviceName }
func (s *Snapshot) LastError() string           { return s.lastError }

// StartedAt is when the current connection was established, zero when
// disconnected.
func (s *Snapshot) StartedAt() time.Time { return s.startedAt }

func (s *Snapshot) Channel(id string) (Channel, bool) {
	c, ok := s.channels[id]
	return c, ok
}

// Channels returns every channel ordered by id.
func (s *Snapshot) Channels() []Channel {
	out := make([]Channel, 0, len(s.channels))
	for _, c := range s.channels {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Readings returns the rolling history, oldest first.
func (s *Snapshot) Readings() []Reading {
	out := make([]Reading, len(s.readings))
	copy(out, s.readings)
	return out
}

func (s *Snapshot) Len() int { return len(s.readings) }

// LatestSequence reports the sequence id of the newest retained reading.
func (s *Snapshot) LatestSequence() (uint64, bool) {
	if len(s.readings) == 0 {
		return 0, false
	}
	return s.readings[len(s.readings)-1].SequenceID, true
}

// ReadingsAfter returns retained readings whose sequence id is greater than seq.
func (s *Snapshot) ReadingsAfter(seq uint64) []Reading {
	i := sort.Search(len(s.readings), func(i int) bool {
		return s.readings[i].SequenceID > seq
	})
	out := make([]Reading, len(s.readings)-i)
	copy(out, s.readings[i:])
	return out
}

// SessionReadings returns the retained readings taken since the session
// started. Without a session every retained reading is returned.
func (s *Snapshot) SessionReadings() []Reading {
	if s.startedAt.IsZero() || s.firstSeq == 0 {
		return s.Readings()
	}
	return s.ReadingsAfter(s.firstSeq - 1)
}

// Window returns up to n of the most recent readings for one channel, oldest
// first. It is meant for charts and never affects the history itself.
func (s *Snapshot) Window(channelID string, n int) []Reading {
	if n <= 0 {
		return nil
	}
	var out []Reading
	for i := len(s.readings) - 1; i >= 0 && len(out) < n; i-- {
		if s.readings[i].ChannelID == channelID {
			out = append(out, s.readings[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// StatusCounts tallies channels per status.
func (s *Snapshot) StatusCounts() map[Status]int {
	counts := map[Status]int{StatusActive: 0, StatusStale: 0, StatusInactive: 0}
	for _, c := range s.channels {
		counts[c.Status]++
	}
	return counts
}
