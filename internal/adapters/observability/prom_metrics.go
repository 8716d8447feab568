package observability

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/sensorhub/internal/ports"
)

type PromObs struct {
	log      *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the sensorhub metrics with reg (the default registerer
// when nil) and logs through logger (slog.Default when nil).
func NewPromObs(reg prometheus.Registerer, logger *slog.Logger) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = slog.Default()
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}

	ingested := counter("sensorhub_readings_ingested_total", "Readings committed to the session history.")
	warnings := counter("sensorhub_parse_warnings_total", "Payload tokens dropped because they were not numeric.")
	rejected := counter("sensorhub_payloads_rejected_total", "Payloads that produced no reading at all.")
	fwdDrops := counter("sensorhub_forward_dropped_total", "Readings lost because the forward queue was full.")
	fwdSent := counter("sensorhub_forward_published_total", "Readings published to the message broker.")
	handedOff := counter("sensorhub_sessions_handed_off_total", "Finished sessions accepted by the session sink.")

	historyLen := gauge("sensorhub_history_length", "Readings currently retained in the rolling history.")
	active := gauge("sensorhub_channels_active", "Channels currently active.")
	stale := gauge("sensorhub_channels_stale", "Channels currently stale.")
	inactive := gauge("sensorhub_channels_inactive", "Channels marked inactive for the session.")
	fwdQueue := gauge("sensorhub_forward_queue_length", "Readings waiting to be forwarded.")
	spool := gauge("sensorhub_spool_size_bytes", "Size of the session spool on disk.")

	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sensorhub_sink_latency_seconds",
		Help:    "Time taken by the session sink to accept one session.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	reg.MustRegister(ingested, warnings, rejected, fwdDrops, fwdSent, handedOff,
		historyLen, active, stale, inactive, fwdQueue, spool, latency)

	return &PromObs{
		log: logger,
		counters: map[string]prometheus.Counter{
			"sensorhub_readings_ingested_total":   ingested,
			"sensorhub_parse_warnings_total":      warnings,
			"sensorhub_payloads_rejected_total":   rejected,
			"sensorhub_forward_dropped_total":     fwdDrops,
			"sensorhub_forward_published_total":   fwdSent,
			"sensorhub_sessions_handed_off_total": handedOff,
		},
		gauges: map[string]prometheus.Gauge{
			"sensorhub_history_length":       historyLen,
			"sensorhub_channels_active":      active,
			"sensorhub_channels_stale":       stale,
			"sensorhub_channels_inactive":    inactive,
			"sensorhub_forward_queue_length": fwdQueue,
			"sensorhub_spool_size_bytes":     spool,
		},
		histos: map[string]prometheus.Observer{
			"sensorhub_sink_latency_seconds": latency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs(nil, fields)...)
}

func (p *PromObs) LogWarn(msg string, err error, fields ...ports.Field) {
	p.log.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs(err, fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	if err != nil {
		p.log.LogAttrs(context.Background(), slog.LevelError, msg, attrs(err, fields)...)
	}
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	if err != nil {
		p.log.LogAttrs(context.Background(), slog.LevelError, msg,
			attrs(err, append(fields, ports.Field{Key: "critical", Value: true}))...)
	}
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordRejected(channelHint string, err error) {
	p.IncCounter("sensorhub_payloads_rejected_total", 1)
	if err != nil {
		p.LogWarn("payload_rejected", err, ports.Field{Key: "channel_hint", Value: channelHint})
	}
}

func attrs(err error, fields []ports.Field) []slog.Attr {
	out := make([]slog.Attr, 0, len(fields)+1)
	if err != nil {
		out = append(out, slog.Any("error", err))
	}
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
