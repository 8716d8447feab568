package ports

import "github.com/ghalamif/sensorhub/internal/domain"

type SpoolEntryID uint64

// SessionSpool durably holds finished sessions until a sink accepts them.
type SessionSpool interface {
	Append(rec *domain.SessionRecord) (SpoolEntryID, error)
	Iterate(from SpoolEntryID, fn func(id SpoolEntryID, rec *domain.SessionRecord) error) error
	Commit(upto SpoolEntryID) error
	TruncateCommitted() error
	Stats() SpoolStats
}

type SpoolStats struct {
	OldestUncommitted SpoolEntryID
	LatestAppended    SpoolEntryID
	SizeBytes         int64
}
