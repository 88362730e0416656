package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/brct-james/titans-insider/internal/domain"
	"github.com/brct-james/titans-insider/internal/ports"
)

var counterHelp = map[string]string{
	"insider_cycles_total":           "Sniffer cycles started.",
	"insider_cycle_failures_total":   "Cycles that ended in an error after retries.",
	"insider_cycles_skipped_total":   "Cycles skipped because another replica held the lease.",
	"insider_listings_fetched_total": "Listings received from upstream.",
	"insider_records_filtered_total": "Records dropped by filter rules.",
	"insider_rows_inserted_total":    "History rows written.",
	"insider_rows_conflicted_total":  "Submitted rows skipped because their uuid already existed.",
	"insider_chunks_written_total":   "Insert statements committed.",
	"insider_retries_total":          "Fetch or write attempts retried after an error.",
	"insider_wal_spilled_total":      "Records spilled to the WAL after a failed write.",
	"insider_dlq_total":              "Spilled records dead-lettered after repeated failed replays.",
}

var gaugeHelp = map[string]string{
	"insider_last_success_timestamp_seconds": "Unix time of the last successful cycle.",
	"insider_wal_size_bytes":                 "Size of WAL on disk.",
	"insider_wal_pending_records":            "Records waiting in the WAL for replay.",
}

var histoHelp = map[string]string{
	"insider_cycle_duration_seconds": "Wall time of one complete cycle.",
	"insider_fetch_seconds":          "Upstream fetch latency including retries.",
	"insider_write_seconds":          "Time to write one cycle's records.",
	"insider_chunk_write_seconds":    "Latency of a single chunk insert.",
}

// PromObs logs through zap and records name-keyed prometheus metrics.
// Unknown metric names are ignored.
type PromObs struct {
	log      *zap.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the insider metrics on reg, or on the default
// registerer when reg is nil.
func NewPromObs(logger *zap.Logger, reg prometheus.Registerer) *PromObs {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &PromObs{
		log:      logger,
		counters: make(map[string]prometheus.Counter, len(counterHelp)),
		gauges:   make(map[string]prometheus.Gauge, len(gaugeHelp)),
		histos:   make(map[string]prometheus.Observer, len(histoHelp)),
	}
	for name, help := range counterHelp {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
		reg.MustRegister(c)
		p.counters[name] = c
	}
	for name, help := range gaugeHelp {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		reg.MustRegister(g)
		p.gauges[name] = g
	}
	for name, help := range histoHelp {
		h := prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    name,
			Help:    help,
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		})
		reg.MustRegister(h)
		p.histos[name] = h
	}
	return p
}

func (p *PromObs) LogDebug(msg string, fields ...ports.Field) {
	p.log.Debug(msg, zapFields(fields)...)
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Info(msg, zapFields(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

// LogCritical logs at error level with a critical marker. It never exits;
// the caller decides whether the process stops.
func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(zapFields(fields), zap.Error(err), zap.Bool("critical", true))...)
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

// RecordDLQ logs the full record so it can be recovered by hand.
func (p *PromObs) RecordDLQ(id ports.WALEntryID, r *domain.HistoryRecord, err error) {
	p.IncCounter("insider_dlq_total", 1)
	p.log.Error("wal_dead_letter",
		zap.Uint64("wal_id", uint64(id)),
		zap.String("uuid", r.ID),
		zap.String("uid", r.UID),
		zap.String("t_type", r.TType),
		zap.Any("record", r),
		zap.Error(err),
		zap.Bool("critical", true))
}

// Logger exposes the underlying zap logger for components outside the port.
func (p *PromObs) Logger() *zap.Logger { return p.log }

func zapFields(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+2)
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
