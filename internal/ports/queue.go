package ports

import "github.com/ghalamif/sensorhub/internal/domain"

// ReadingQueue buffers committed readings between the store and a publisher.
type ReadingQueue interface {
	Enqueue(r domain.Reading) bool
	DequeueBatch(max int) []domain.Reading
	Len() int
}
