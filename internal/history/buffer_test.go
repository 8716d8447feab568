package history

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ghalamif/sensorhub/internal/domain"
)

func reading(seq uint64, ch string) domain.Reading {
	return domain.Reading{SequenceID: seq, ChannelID: ch, Value: float64(seq)}
}

func TestBufferKeepsMostRecentInOrder(t *testing.T) {
	b := New(3)
	for i := uint64(0); i < 5; i++ {
		b.Append(reading(i, "accel"))
	}

	require.Equal(t, 3, b.Len())
	items := b.Items()
	require.Len(t, items, 3)
	require.Equal(t, []uint64{2, 3, 4}, []uint64{items[0].SequenceID, items[1].SequenceID, items[2].SequenceID})
}

func TestBufferEvictionReported(t *testing.T) {
	b := New(2)
	require.False(t, b.Append(reading(1, "a")))
	require.False(t, b.Append(reading(2, "a")))
	require.True(t, b.Append(reading(3, "a")))
}

func TestBufferEvictsAcrossChannels(t *testing.T) {
	b := New(4)
	b.Append(reading(0, "hum"))
	for i := uint64(1); i <= 4; i++ {
		b.Append(reading(i, "accel"))
	}

	for _, r := range b.Items() {
		require.Equal(t, "accel", r.ChannelID)
	}
}

func TestBufferNeverExceedsCapacity(t *testing.T) {
	b := New(DefaultCapacity)
	for i := uint64(0); i < 3*DefaultCapacity+7; i++ {
		b.Append(reading(i, "x"))
		require.LessOrEqual(t, b.Len(), DefaultCapacity)
	}
	items := b.Items()
	require.Equal(t, uint64(2*DefaultCapacity+7), items[0].SequenceID)
	require.Equal(t, uint64(3*DefaultCapacity+6), items[len(items)-1].SequenceID)
}

func TestBufferClearAndClone(t *testing.T) {
	b := New(2)
	b.Append(reading(1, "a"))

	cp := b.Clone()
	b.Clear()
	require.Equal(t, 0, b.Len())
	require.Empty(t, b.Items())

	require.Equal(t, 1, cp.Len())
	cp.Append(reading(2, "a"))
	cp.Append(reading(3, "a"))
	require.Equal(t, uint64(2), cp.Items()[0].SequenceID)
}

func TestNewDefaultsCapacity(t *testing.T) {
	require.Equal(t, DefaultCapacity, New(0).Cap())
}
