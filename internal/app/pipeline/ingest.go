package pipeline

import (
	"github.com/ghalamif/sensorhub/internal/app/store"
	"github.com/ghalamif/sensorhub/internal/domain"
	"github.com/ghalamif/sensorhub/internal/ports"
)

// Result lists what one payload produced.
type Result struct {
	Readings []domain.Reading
	Warnings []*TokenError
}

// Ingestor turns raw transport payloads into readings. Values are never
// range-checked; outliers are kept as received.
type Ingestor struct {
	store *store.Store
	obs   ports.Observability
}

func NewIngestor(st *store.Store, obs ports.Observability) *Ingestor {
	return &Ingestor{store: st, obs: obs}
}

// Ingest parses raw and commits every readable value in a single mutation, so
// observers see all values of one payload together. Bad tokens are logged
// and skipped. When no value is readable an *IngestError is returned and the
// store is left untouched.
func (in *Ingestor) Ingest(channelHint string, raw []byte) (Result, error) {
	values, bad := ParsePayload(channelHint, raw)

	for _, te := range bad {
		in.obs.LogWarn("parse_warning", te.Err,
			ports.Field{Key: "channel", Value: te.ChannelID},
			ports.Field{Key: "token", Value: te.Token},
			ports.Field{Key: "payload", Value: truncate(raw, 128)})
	}
	if len(bad) > 0 {
		in.obs.IncCounter("sensorhub_parse_warnings_total", float64(len(bad)))
	}

	if len(values) == 0 {
		err := &IngestError{ChannelHint: channelHint, Payload: truncate(raw, 128), Tokens: bad}
		in.obs.RecordRejected(channelHint, err)
		return Result{Warnings: bad}, err
	}

	readings := make([]domain.Reading, 0, len(values))
	snap := in.store.Mutate(func(tx *store.Tx) {
		for _, v := range values {
			readings = append(readings, tx.ApplyReading(v.ChannelID, v.Value))
		}
	})

	in.obs.IncCounter("sensorhub_readings_ingested_total", float64(len(readings)))
	in.obs.SetGauge("sensorhub_history_length", float64(snap.Len()))
	return Result{Readings: readings, Warnings: bad}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}
