package ports

import (
	"context"

	"github.com/ghalamif/sensorhub/internal/domain"
)

// SessionSink persists finished sessions.
type SessionSink interface {
	WriteSession(ctx context.Context, rec *domain.SessionRecord) error
	Name() string
}

// SessionHandoff accepts a finished session for asynchronous delivery to a sink.
type SessionHandoff interface {
	Submit(rec *domain.SessionRecord) error
}
