package insider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/brct-james/titans-insider/internal/adapters/lock"
	"github.com/brct-james/titans-insider/internal/adapters/observability"
	"github.com/brct-james/titans-insider/internal/adapters/source"
	"github.com/brct-james/titans-insider/internal/adapters/store"
	"github.com/brct-james/titans-insider/internal/adapters/wal"
	"github.com/brct-james/titans-insider/internal/app/config"
	"github.com/brct-james/titans-insider/internal/app/pipeline"
	"github.com/brct-james/titans-insider/internal/app/rules"
	"github.com/brct-james/titans-insider/internal/domain"
	"github.com/brct-james/titans-insider/internal/ports"
)

// ErrHistoryUnsupported is returned by History when the configured store cannot read rows back.
var ErrHistoryUnsupported = errors.New("titans-insider: store cannot read history")

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	source        Source
	store         HistoryStore
	observability Observability
	ids           IDGenerator
	wal           WAL
	lock          CycleLock
	rules         *RuleSet
	now           func() time.Time
}

// WithSource injects a custom listing source (fixtures, proxies, another marketplace client).
func WithSource(src Source) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.source = src
	}
}

// WithStore injects a custom history store so rows can go to any database or API.
func WithStore(s HistoryStore) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.store = s
	}
}

// WithObservability plugs in a custom logging and metrics backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithIDGenerator overrides the configured id strategy.
func WithIDGenerator(ids IDGenerator) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.ids = ids
	}
}

// WithWAL supplies a spill log even when wal.dir is unset.
func WithWAL(w WAL) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.wal = w
	}
}

// WithCycleLock supplies a cycle lease even when lock.redis_addr is unset.
func WithCycleLock(l CycleLock) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.lock = l
	}
}

// WithRuleSet skips loading rule files and uses set instead.
func WithRuleSet(set RuleSet) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.rules = &set
	}
}

// WithClock replaces the capture clock used when mapping listings.
func WithClock(now func() time.Time) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.now = now
	}
}

// Runtime wires source → mapper → filter → writer behind a scheduler and
// exposes lifecycle hooks for embedding the sniffer inside any Go service.
type Runtime struct {
	cfg     *Config
	obs     ports.Observability
	source  ports.Source
	store   ports.HistoryStore
	wal     ports.WAL
	lock    ports.CycleLock
	rules   RuleSet
	sniffer *pipeline.Sniffer

	metrics    http.Handler
	metricsSrv *http.Server

	// closers release adapters the runtime opened itself.
	closers []func() error

	mu     sync.Mutex
	cancel context.CancelFunc
	doneCh chan struct{}
	runErr error
}

// NewRuntime bootstraps the default adapters (HTTP source, SQL store, zap +
// Prometheus observability, optional file WAL and redis lease). Callers can
// use RuntimeOption values to override any of them.
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

	rt := &Runtime{cfg: cfg, metrics: promhttp.Handler()}
	built := false
	defer func() {
		if !built {
			_ = rt.closeOwned()
		}
	}()

	rt.obs = overrides.observability
	if rt.obs == nil {
		logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return nil, &domain.ConfigError{Field: "log", Err: err}
		}
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rt.obs = observability.NewPromObs(logger, reg)
		rt.metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		rt.closers = append(rt.closers, func() error {
			_ = logger.Sync()
			return nil
		})
	}

	if overrides.rules != nil {
		rt.rules = *overrides.rules
	} else {
		set, err := rules.Load(cfg.Rules.Pattern)
		if err != nil {
			return nil, err
		}
		rt.rules = set
	}
	rt.obs.LogInfo("rules_loaded",
		ports.Field{Key: "staleness", Value: len(rt.rules.Staleness)},
		ports.Field{Key: "profit", Value: len(rt.rules.Profit)},
		ports.Field{Key: "files", Value: len(rt.rules.Files)})

	rt.source = overrides.source
	if rt.source == nil {
		rt.source = newSource(cfg.Upstream)
	}

	rt.store = overrides.store
	if rt.store == nil {
		b, err := store.Open(context.Background(), storeOptions(cfg))
		if err != nil {
			return nil, err
		}
		rt.store = b
		rt.closers = append(rt.closers, b.Close)
	}

	rt.wal = overrides.wal
	if rt.wal == nil && cfg.WAL.Dir != "" {
		w, err := wal.NewFileWAL(cfg.WAL.Dir)
		if err != nil {
			return nil, err
		}
		rt.wal = w
		rt.closers = append(rt.closers, w.Close)
	}

	rt.lock = overrides.lock
	if rt.lock == nil && cfg.Lock.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword,
		})
		rt.lock = lock.NewRedisLock(client)
		rt.closers = append(rt.closers, client.Close)
	}

	ids := overrides.ids
	if ids == nil {
		var err error
		ids, err = pipeline.NewIDGenerator(cfg.Sniffer.IDStrategy)
		if err != nil {
			return nil, err
		}
	}

	filters := cfg.Filters
	if filters == nil {
		filters = pipeline.DefaultFilterRules()
	}
	dedup, err := pipeline.NewDeduplicatorFromRules(filters)
	if err != nil {
		return nil, err
	}
	if cfg.Rules.DropStale {
		dedup = dedup.With(pipeline.DropStale(rt.rules))
	}
	writer, err := pipeline.NewBatchWriter(rt.store, rt.obs, cfg.Sniffer.ProgressEvery)
	if err != nil {
		return nil, err
	}

	var snifferOpts []pipeline.SnifferOption
	if rt.wal != nil {
		snifferOpts = append(snifferOpts, pipeline.WithWAL(rt.wal))
	}
	if rt.lock != nil {
		snifferOpts = append(snifferOpts, pipeline.WithCycleLock(rt.lock, cfg.Lock.Key, cfg.Lock.TTL))
	}
	rt.sniffer, err = pipeline.NewSniffer(
		rt.source,
		pipeline.NewMapper(ids, overrides.now),
		dedup,
		writer,
		cfg.Sniffer,
		rt.obs,
		snifferOpts...,
	)
	if err != nil {
		return nil, err
	}

	built = true
	return rt, nil
}

func newSource(cfg config.UpstreamConfig) ports.Source {
	if cfg.Type == config.UpstreamFile {
		return source.NewFileSource(cfg.File)
	}
	return source.NewHTTPSource(source.HTTPConfig{
		BaseURL:   cfg.BaseURL,
		Path:      cfg.Path,
		Timeout:   cfg.Timeout,
		UserAgent: cfg.UserAgent,
	})
}

func storeOptions(cfg *Config) store.Options {
	opts := store.Options{
		Backend:    cfg.Store.Backend,
		Path:       cfg.Store.SQLitePath,
		Table:      cfg.Store.Table,
		MaxConns:   cfg.Store.MaxConns,
		ViaBouncer: cfg.Store.ViaBouncer,
	}
	switch cfg.Store.Backend {
	case config.BackendPostgres, config.BackendPgx:
		opts.DSN = cfg.PostgresDSN()
	case config.BackendMySQL:
		opts.DSN = cfg.MySQLDSN()
	}
	return opts
}

// Config returns the configuration the runtime was built from.
func (rt *Runtime) Config() *Config { return rt.cfg }

// Rules returns the rule set loaded at startup.
func (rt *Runtime) Rules() RuleSet { return rt.rules }

// Store returns the history store in use.
func (rt *Runtime) Store() HistoryStore { return rt.store }

// History reads every stored row for one item uid, ordered by transaction
// type then listing creation time.
func (rt *Runtime) History(ctx context.Context, uid string) ([]HistoryRecord, error) {
	r, ok := rt.store.(ports.HistoryReader)
	if !ok {
		return nil, fmt.Errorf("%s: %w", rt.store.Name(), ErrHistoryUnsupported)
	}
	return r.History(ctx, uid)
}

// RunOnce ensures the schema and runs a single cycle.
func (rt *Runtime) RunOnce(ctx context.Context) (CycleReport, error) {
	if err := rt.ensureSchema(ctx); err != nil {
		return CycleReport{}, err
	}
	return rt.sniffer.RunCycle(ctx)
}

// Ingest pushes a snapshot obtained elsewhere through map, filter and write.
func (rt *Runtime) Ingest(ctx context.Context, snap *Snapshot) (CycleReport, error) {
	return rt.sniffer.Ingest(ctx, snap)
}

// Start begins the polling loop and the metrics server. It returns
// immediately; call Shutdown to stop, or use Run to block on a context.
func (rt *Runtime) Start() error {
	if rt == nil {
		return fmt.Errorf("runtime is nil")
	}
	return rt.start(context.Background())
}

// Run starts the runtime and blocks until ctx is cancelled or the sniffer
// stops on a fatal failure, then shuts down gracefully.
func (rt *Runtime) Run(ctx context.Context) error {
	if err := rt.start(ctx); err != nil {
		return err
	}
	<-rt.doneCh

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return errors.Join(rt.runErr, rt.Shutdown(shutdownCtx))
}

func (rt *Runtime) start(parent context.Context) error {
	if err := rt.ensureSchema(parent); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	rt.mu.Lock()
	if rt.doneCh != nil {
		rt.mu.Unlock()
		cancel()
		return fmt.Errorf("runtime already started")
	}
	rt.cancel = cancel
	rt.doneCh = done
	rt.mu.Unlock()

	rt.startMetrics()
	go func() {
		defer close(done)
		rt.runErr = rt.sniffer.Run(ctx)
	}()
	return nil
}

func (rt *Runtime) ensureSchema(ctx context.Context) error {
	if !rt.cfg.Store.ShouldEnsureSchema() {
		return nil
	}
	if err := rt.store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema on %s: %w", rt.store.Name(), err)
	}
	return nil
}

// Shutdown stops the polling loop, the metrics server and every adapter the
// runtime opened. A write already in flight is allowed to finish.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	rt.mu.Lock()
	cancel, done := rt.cancel, rt.doneCh
	rt.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("waiting for sniffer: %w", ctx.Err()))
		}
	}

	if rt.metricsSrv != nil {
		if err := rt.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if err := rt.closeOwned(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (rt *Runtime) closeOwned() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func (rt *Runtime) startMetrics() {
	if rt.cfg.Metrics.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.metrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	rt.metricsSrv = &http.Server{
		Addr:              rt.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := rt.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.obs.LogError("metrics_server_exited", err, ports.Field{Key: "addr", Value: rt.cfg.Metrics.Addr})
		}
	}()
}
