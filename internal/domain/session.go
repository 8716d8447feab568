package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionRecord is a finished recording handed to an external store.
type SessionRecord struct {
	ID         uuid.UUID     `json:"id"`
	DeviceName string        `json:"device_name"`
	DemoMode   bool          `json:"demo_mode"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Channels   []ChannelMeta `json:"channels"`
	DataPoints []Reading     `json:"data_points"`
}

// NewSessionRecord finalizes a snapshot. Only readings taken during the
// session are included. The start time falls back to the oldest of them when
// the snapshot carries none.
func NewSessionRecord(snap *Snapshot, end time.Time) *SessionRecord {
	readings := snap.SessionReadings()
	start := snap.StartedAt()
	if start.IsZero() && len(readings) > 0 {
		start = readings[0].Timestamp
	}

	channels := snap.Channels()
	metas := make([]ChannelMeta, len(channels))
	for i, c := range channels {
		metas[i] = c.Meta()
	}

	name := snap.DeviceName()
	if name == "" {
		name = "Unknown Device"
	}

	return &SessionRecord{
		ID:         uuid.New(),
		DeviceName: name,
		DemoMode:   snap.DemoMode(),
		StartTime:  start,
		EndTime:    end,
		Channels:   metas,
		DataPoints: readings,
	}
}
