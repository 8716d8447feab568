package domain

import "time"

// Status is the health classification of a channel.
type Status string

const (
	StatusActive   Status = "active"
	StatusStale    Status = "stale"
	StatusInactive Status = "inactive"
)

// ChannelMeta is the static description of a sensor parameter stream.
type ChannelMeta struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Unit string `json:"unit" yaml:"unit"`
}

// Channel is one independently-updating sensor parameter. Values are copied
// into every snapshot, so a Channel held by a caller never changes underneath it.
type Channel struct {
	ID          string
	Name        string
	Unit        string
	Value       float64
	HasValue    bool
	LastUpdated time.Time
	Status      Status
}

// Meta returns the channel's static description.
func (c Channel) Meta() ChannelMeta {
	return ChannelMeta{ID: c.ID, Name: c.Name, Unit: c.Unit}
}

// CurrentValue returns the latest reading, if one was ever accepted.
func (c Channel) CurrentValue() (float64, bool) {
	return c.Value, c.HasValue
}

// DisplayName falls back to the id when no name is known.
func (c Channel) DisplayName() string {
	if c.Name == "" {
		return c.ID
	}
	return c.Name
}
