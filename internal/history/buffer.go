// Package history keeps the rolling window of recent readings shared by all
// channels.
package history

import "github.com/ghalamif/sensorhub/internal/domain"

// DefaultCapacity bounds the history shared by all channels.
const DefaultCapacity = 500

// Buffer is a fixed-capacity FIFO ring of readings across all channels. When
// full, appending evicts the oldest reading whatever its channel, so a fast
// channel can crowd out a slow one.
type Buffer struct {
	data  []domain.Reading
	start int
	size  int
}

func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{data: make([]domain.Reading, capacity)}
}

// Append adds r and reports whether an older reading was evicted.
func (b *Buffer) Append(r domain.Reading) bool {
	c := len(b.data)
	if b.size < c {
		b.data[(b.start+b.size)%c] = r
		b.size++
		return false
	}
	b.data[b.start] = r
	b.start = (b.start + 1) % c
	return true
}

func (b *Buffer) Len() int { return b.size }
func (b *Buffer) Cap() int { return len(b.data) }

// Items returns the retained readings, oldest first.
func (b *Buffer) Items() []domain.Reading {
	out := make([]domain.Reading, b.size)
	c := len(b.data)
	for i := 0; i < b.size; i++ {
		out[i] = b.data[(b.start+i)%c]
	}
	return out
}

func (b *Buffer) Clear() {
	b.start = 0
	b.size = 0
}

func (b *Buffer) Clone() *Buffer {
	out := &Buffer{
		data:  make([]domain.Reading, len(b.data)),
		start: b.start,
		size:  b.size,
	}
	copy(out.data, b.data)
	return out
}
