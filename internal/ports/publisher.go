package ports

import (
	"context"

	"github.com/ghalamif/sensorhub/internal/domain"
)

// Publisher forwards batches of readings to a message broker.
type Publisher interface {
	Publish(ctx context.Context, batch []domain.Reading) error
	Close() error
	Name() string
}
