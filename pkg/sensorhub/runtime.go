package sensorhub

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ghalamif/sensorhub/internal/adapters/export"
	"github.com/ghalamif/sensorhub/internal/adapters/forward"
	"github.com/ghalamif/sensorhub/internal/adapters/mqtt"
	"github.com/ghalamif/sensorhub/internal/adapters/observability"
	"github.com/ghalamif/sensorhub/internal/adapters/opcua"
	"github.com/ghalamif/sensorhub/internal/adapters/queue"
	"github.com/ghalamif/sensorhub/internal/adapters/simulator"
	"github.com/ghalamif/sensorhub/internal/adapters/sink"
	"github.com/ghalamif/sensorhub/internal/adapters/wal"
	"github.com/ghalamif/sensorhub/internal/api"
	"github.com/ghalamif/sensorhub/internal/app/config"
	"github.com/ghalamif/sensorhub/internal/app/monitor"
	"github.com/ghalamif/sensorhub/internal/app/pipeline"
	"github.com/ghalamif/sensorhub/internal/app/session"
	"github.com/ghalamif/sensorhub/internal/app/store"
	"github.com/ghalamif/sensorhub/internal/domain"
	"github.com/ghalamif/sensorhub/internal/ports"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	transport     Transport
	simulation    Transport
	sink          SessionSink
	spool         SessionSpool
	publisher     Publisher
	observability Observability
	logger        *slog.Logger
	clock         func() time.Time
}

// WithTransport injects the live device transport, replacing the one named
// in the config.
func WithTransport(t Transport) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.transport = t
	}
}

// WithSimulation replaces the built-in demo device.
func WithSimulation(t Transport) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.simulation = t
	}
}

// WithSink sends finished sessions to s instead of Postgres.
func WithSink(s SessionSink) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.sink = s
	}
}

// WithSpool lets callers bring their own session spool.
func WithSpool(s SessionSpool) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.spool = s
	}
}

// WithPublisher forwards every reading to p.
func WithPublisher(p Publisher) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.publisher = p
	}
}

func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

func WithLogger(l *slog.Logger) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.logger = l
	}
}

// WithClock overrides time.Now for the store.
func WithClock(now func() time.Time) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.clock = now
	}
}

// Runtime owns one session: the store, the staleness monitor, the connection
// controller and the optional sink, forwarder and HTTP surfaces.
type Runtime struct {
	cfg     *Config
	policy  ports.Policy
	obs     ports.Observability
	log     *slog.Logger
	metrics http.Handler

	store      *store.Store
	ingest     *pipeline.Ingestor
	monitor    *monitor.Monitor
	controller *session.Controller

	sink      ports.SessionSink
	spool     ports.SessionSpool
	handoff   *pipeline.Handoff
	forwarder *forward.Forwarder
	db        *sql.DB
	pg        *sink.PostgresSink
	closers   []io.Closer
}

// Conf loads YAML from disk and builds a Runtime.
func Conf(path string, opts ...RuntimeOption) (*Runtime, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return NewRuntime(cfg, opts...)
}

// NewRuntime bootstraps the default adapters named by cfg. Options override
// any of them.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	logger := overrides.logger
	if logger == nil {
		logger = slog.Default()
	}

	rt := &Runtime{cfg: cfg, policy: cfg.Policy, log: logger}

	if overrides.observability != nil {
		rt.obs = overrides.observability
		rt.metrics = promhttp.Handler()
	} else {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rt.obs = observability.NewPromObs(reg, logger)
		rt.metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	rt.store = store.New(
		store.WithClock(overrides.clock),
		store.WithHistoryCapacity(cfg.Policy.HistoryCapacity),
	)
	rt.ingest = pipeline.NewIngestor(rt.store, rt.obs)
	rt.monitor = monitor.New(rt.store, rt.policy, rt.obs)
	rt.store.Subscribe(rt.recordGauges)

	live := overrides.transport
	if live == nil {
		var err error
		if live, err = liveTransport(cfg); err != nil {
			return nil, err
		}
	}
	sim := overrides.simulation
	if sim == nil {
		sim = simulator.New(cfg.Simulation)
	}

	if err := rt.setupSink(cfg, overrides); err != nil {
		rt.closeAll()
		return nil, err
	}
	if err := rt.setupForwarder(cfg, overrides); err != nil {
		rt.closeAll()
		return nil, err
	}

	deps := session.Deps{
		Store:      rt.store,
		Ingestor:   rt.ingest,
		Live:       live,
		Simulation: sim,
		Obs:        rt.obs,
		Policy:     rt.policy,
	}
	if rt.handoff != nil {
		deps.Handoff = rt.handoff
	}
	rt.controller = session.New(deps)
	return rt, nil
}

func liveTransport(cfg *Config) (ports.Transport, error) {
	switch cfg.Transport.Kind {
	case config.TransportMQTT:
		t, err := mqtt.New(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt: %w", err)
		}
		return t, nil
	case config.TransportOPCUA:
		t, err := opcua.New(cfg.OPCUA)
		if err != nil {
			return nil, fmt.Errorf("opcua: %w", err)
		}
		return t, nil
	default:
		return nil, nil
	}
}

func (rt *Runtime) setupSink(cfg *Config, o runtimeOverrides) error {
	rt.sink = o.sink
	if rt.sink == nil && cfg.Postgres.ConnString != "" {
		db, err := sql.Open("postgres", cfg.Postgres.ConnString)
		if err != nil {
			return err
		}
		rt.db = db
		pg, err := sink.NewPostgresSink(db, cfg.Postgres.Table)
		if err != nil {
			return err
		}
		rt.sink = pg
		rt.pg = pg
	}
	if rt.sink == nil {
		return nil
	}

	rt.spool = o.spool
	if rt.spool == nil {
		fw, err := wal.NewFileWAL(cfg.Spool.Dir)
		if err != nil {
			return err
		}
		rt.spool = fw
		rt.closers = append(rt.closers, fw)
	}
	rt.handoff = pipeline.NewHandoff(rt.spool, rt.sink, rt.policy, rt.obs)

	if stats := rt.spool.Stats(); stats.LatestAppended >= stats.OldestUncommitted && stats.LatestAppended > 0 {
		rt.obs.LogInfo("spool_replay_pending",
			ports.Field{Key: "from_id", Value: stats.OldestUncommitted},
			ports.Field{Key: "to_id", Value: stats.LatestAppended})
	}
	return nil
}

func (rt *Runtime) setupForwarder(cfg *Config, o runtimeOverrides) error {
	pub := o.publisher
	if pub == nil {
		switch cfg.Forward.Kind {
		case config.ForwardNATS:
			p, err := forward.NewNATSPublisher(cfg.Forward.NATS.URL, cfg.Forward.NATS.SubjectPrefix)
			if err != nil {
				return fmt.Errorf("nats: %w", err)
			}
			pub = p
		case config.ForwardKafka:
			pub = forward.NewKafkaPublisher(cfg.Forward.Kafka.Brokers, cfg.Forward.Kafka.Topic)
		}
	}
	if pub == nil {
		return nil
	}
	q := queue.NewMemQueue(rt.policy.MaxForwardQueue)
	rt.forwarder = forward.NewForwarder(q, pub, rt.policy, rt.obs)
	rt.store.Subscribe(rt.forwarder.Observe)
	return nil
}

func (rt *Runtime) recordGauges(snap *domain.Snapshot) {
	counts := snap.StatusCounts()
	rt.obs.SetGauge("sensorhub_channels_active", float64(counts[domain.StatusActive]))
	rt.obs.SetGauge("sensorhub_channels_stale", float64(counts[domain.StatusStale]))
	rt.obs.SetGauge("sensorhub_channels_inactive", float64(counts[domain.StatusInactive]))
	rt.obs.SetGauge("sensorhub_history_length", float64(snap.Len()))
}

// Run starts the background workers and HTTP servers and blocks until ctx is
// cancelled or one of them fails. The session is disconnected on the way out.
func (rt *Runtime) Run(ctx context.Context) error {
	if rt.pg != nil {
		if err := rt.pg.EnsureSchema(ctx); err != nil {
			rt.obs.LogWarn("postgres_schema_failed", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return rt.monitor.Run(gctx) })
	if rt.handoff != nil {
		g.Go(func() error { return rt.handoff.Run(gctx) })
	}
	if rt.forwarder != nil {
		g.Go(func() error { return rt.forwarder.Run(gctx) })
	}

	if addr := rt.cfg.API.Addr; addr != "" {
		rt.serve(gctx, g, "api", addr, rt.Handler())
	}
	if addr := rt.cfg.Metrics.Addr; addr != "" && addr != rt.cfg.API.Addr {
		mux := http.NewServeMux()
		mux.Handle("/metrics", rt.metrics)
		rt.serve(gctx, g, "metrics", addr, mux)
	}

	err := g.Wait()
	return errors.Join(err, rt.Close())
}

func (rt *Runtime) serve(ctx context.Context, g *errgroup.Group, name, addr string, h http.Handler) {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		rt.obs.LogInfo("http_listen", ports.Field{Key: "server", Value: name}, ports.Field{Key: "addr", Value: addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s server: %w", name, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// Handler is the HTTP control API including /metrics.
func (rt *Runtime) Handler() http.Handler {
	return api.NewRouter(&api.Handler{
		Store:   rt.store,
		Session: rt.controller,
		Window:  rt.policy.VisualizationWindow,
		Metrics: rt.metrics,
	})
}

// Close disconnects the session and releases the spool and database.
func (rt *Runtime) Close() error {
	err := rt.controller.Close()
	return errors.Join(err, rt.closeAll())
}

func (rt *Runtime) closeAll() error {
	var errs []error
	for _, c := range rt.closers {
		errs = append(errs, c.Close())
	}
	rt.closers = nil
	if rt.db != nil {
		errs = append(errs, rt.db.Close())
		rt.db = nil
	}
	return errors.Join(errs...)
}

// Connect opens a session; see the session controller for the error policy.
func (rt *Runtime) Connect(ctx context.Context, useSimulation bool) error {
	return rt.controller.Connect(ctx, useSimulation)
}

// Disconnect is idempotent.
func (rt *Runtime) Disconnect() error { return rt.controller.Disconnect() }

// Reset clears history and values, keeping channel definitions.
func (rt *Runtime) Reset() *Snapshot { return rt.store.Reset() }

func (rt *Runtime) Snapshot() *Snapshot { return rt.store.Snapshot() }

// Subscribe registers fn for every committed snapshot. fn runs synchronously
// inside the mutation and must not block.
func (rt *Runtime) Subscribe(fn func(*Snapshot)) (unsubscribe func()) {
	return rt.store.Subscribe(fn)
}

// Ingest feeds a raw payload as if it came from the transport.
func (rt *Runtime) Ingest(channelHint string, payload []byte) ([]Reading, error) {
	res, err := rt.ingest.Ingest(channelHint, payload)
	return res.Readings, err
}

// ExportCSV writes the current history; it returns ErrNoData when empty.
func (rt *Runtime) ExportCSV(w io.Writer) (int, error) {
	return export.WriteCSV(w, rt.store.Snapshot())
}

// SweepNow runs one staleness sweep outside the monitor schedule.
func (rt *Runtime) SweepNow() []string { return rt.monitor.Sweep() }
