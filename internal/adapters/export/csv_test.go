package export

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ghalamif/sensorhub/internal/domain"
)

func TestWriteCSV(t *testing.T) {
	ts := time.Date(2024, 6, 1, 8, 30, 0, 250_000_000, time.UTC)
	snap := domain.NewSnapshot(domain.SnapshotState{
		Channels: map[string]domain.Channel{
			"temp": {ID: "temp", Name: "Temperature", Unit: "°C"},
			"p0":   {ID: "p0", Name: "p0"},
		},
		Readings: []domain.Reading{
			{SequenceID: 0, Timestamp: ts, ChannelID: "temp", Value: 24.5},
			{SequenceID: 1, Timestamp: ts.Add(time.Second), ChannelID: "p0", Value: -0.125},
			{SequenceID: 2, Timestamp: ts.Add(2 * time.Second), ChannelID: "ghost", Value: 9999},
		},
	})

	var buf bytes.Buffer
	n, err := WriteCSV(&buf, snap)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t,
		"Timestamp,Parameter,Value,Unit\n"+
			"2024-06-01T08:30:00.250Z,Temperature,24.5,°C\n"+
			"2024-06-01T08:30:01.250Z,p0,-0.125,\n"+
			"2024-06-01T08:30:02.250Z,ghost,9999,\n",
		buf.String())
}

func TestWriteCSVEmptyIsNoData(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteCSV(&buf, domain.NewSnapshot(domain.SnapshotState{}))
	require.True(t, errors.Is(err, ErrNoData))
	require.Zero(t, n)
	require.Zero(t, buf.Len(), "nothing is written for an empty session")
}

func TestFileName(t *testing.T) {
	now := time.UnixMilli(1717230600123)
	require.Equal(t, "sensor_data_1717230600123.csv", FileName(domain.NewSnapshot(domain.SnapshotState{}), now))
	require.Equal(t, "DEMO_sensor_data_1717230600123.csv", FileName(domain.NewSnapshot(domain.SnapshotState{DemoMode: true}), now))
}
