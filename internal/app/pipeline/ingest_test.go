package pipeline

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ghalamif/sensorhub/internal/adapters/observability"
	"github.com/ghalamif/sensorhub/internal/app/store"
	"github.com/ghalamif/sensorhub/internal/domain"
	"github.com/ghalamif/sensorhub/internal/ports"
)

type recordingObs struct {
	observability.Nop
	mu       sync.Mutex
	warnings []string
	rejected []string
	counters map[string]float64
}

func newRecordingObs() *recordingObs {
	return &recordingObs{counters: map[string]float64{}}
}

func (o *recordingObs) LogWarn(msg string, _ error, _ ...ports.Field) {
	o.mu.Lock()
	o.warnings = append(o.warnings, msg)
	o.mu.Unlock()
}

func (o *recordingObs) RecordRejected(hint string, _ error) {
	o.mu.Lock()
	o.rejected = append(o.rejected, hint)
	o.mu.Unlock()
}

func (o *recordingObs) IncCounter(name string, v float64) {
	o.mu.Lock()
	o.counters[name] += v
	o.mu.Unlock()
}

func TestIngestSingleValueUsesDefaultChannel(t *testing.T) {
	st := store.New()
	in := NewIngestor(st, observability.Nop{})

	res, err := in.Ingest("", []byte("23.5"))
	require.NoError(t, err)
	require.Len(t, res.Readings, 1)
	require.Equal(t, DefaultChannel, res.Readings[0].ChannelID)
	require.Equal(t, 23.5, res.Readings[0].Value)

	c, ok := st.Snapshot().Channel(DefaultChannel)
	require.True(t, ok)
	v, has := c.CurrentValue()
	require.True(t, has)
	require.Equal(t, 23.5, v)
}

func TestIngestMultiValueCommitsOnce(t *testing.T) {
	st := store.New()
	in := NewIngestor(st, observability.Nop{})

	var versions []uint64
	st.Subscribe(func(s *domain.Snapshot) { versions = append(versions, s.Version()) })

	res, err := in.Ingest("", []byte("23.5,44.0"))
	require.NoError(t, err)
	require.Len(t, res.Readings, 2)
	require.Equal(t, "p0", res.Readings[0].ChannelID)
	require.Equal(t, "p1", res.Readings[1].ChannelID)
	require.Less(t, res.Readings[0].SequenceID, res.Readings[1].SequenceID)
	require.Len(t, versions, 1, "one payload is one mutation")
	require.Equal(t, 2, st.Snapshot().Len())
}

func TestIngestPartialFailureKeepsSiblings(t *testing.T) {
	st := store.New()
	obs := newRecordingObs()
	in := NewIngestor(st, obs)

	res, err := in.Ingest("", []byte("23.5,abc"))
	require.NoError(t, err)
	require.Len(t, res.Readings, 1)
	require.Equal(t, 23.5, res.Readings[0].Value)
	require.Len(t, res.Warnings, 1)
	require.Equal(t, []string{"parse_warning"}, obs.warnings)
	require.Equal(t, 1.0, obs.counters["sensorhub_parse_warnings_total"])
	require.Equal(t, 1.0, obs.counters["sensorhub_readings_ingested_total"])
}

func TestIngestTotalFailureLeavesStoreUntouched(t *testing.T) {
	st := store.New()
	obs := newRecordingObs()
	in := NewIngestor(st, obs)
	before := st.Snapshot()

	_, err := in.Ingest("temp", []byte("abc,def"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnreadablePayload))

	var ie *IngestError
	require.True(t, errors.As(err, &ie))
	require.Equal(t, "temp", ie.ChannelHint)
	require.Len(t, ie.Tokens, 2)

	require.Same(t, before, st.Snapshot())
	require.Equal(t, []string{"temp"}, obs.rejected)
}

func TestIngestKeepsOutliers(t *testing.T) {
	st := store.New()
	in := NewIngestor(st, observability.Nop{})

	_, err := in.Ingest("temp", []byte("9999"))
	require.NoError(t, err)
	c, _ := st.Snapshot().Channel("temp")
	require.Equal(t, 9999.0, c.Value)
}

func TestIngestSequenceIDsStrictlyIncrease(t *testing.T) {
	st := store.New(store.WithHistoryCapacity(10))
	in := NewIngestor(st, observability.Nop{})

	var last int64 = -1
	for i := 0; i < 50; i++ {
		res, err := in.Ingest("", []byte("1,2,3"))
		require.NoError(t, err)
		for _, r := range res.Readings {
			require.Greater(t, int64(r.SequenceID), last)
			last = int64(r.SequenceID)
		}
	}
	require.Equal(t, 10, st.Snapshot().Len())
}
