package domain

import "time"

// Reading is one timestamped value belonging to a channel. Readings are
// immutable once ingested.
type Reading struct {
	SequenceID uint64    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	ChannelID  string    `json:"parameter"`
	Value      float64   `json:"value"`
}
