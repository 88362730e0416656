package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/brct-james/titans-insider/internal/domain"
)

func TestPromObsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPromObs(zap.NewNop(), reg)

	obs.IncCounter("insider_rows_inserted_total", 5)
	if got := testutil.ToFloat64(obs.counters["insider_rows_inserted_total"]); got != 5 {
		t.Fatalf("expected inserted counter 5, got %f", got)
	}

	obs.IncCounter("insider_cycles_skipped_total", 2)
	if got := testutil.ToFloat64(obs.counters["insider_cycles_skipped_total"]); got != 2 {
		t.Fatalf("expected skipped counter 2, got %f", got)
	}

	obs.SetGauge("insider_wal_size_bytes", 42)
	if got := testutil.ToFloat64(obs.gauges["insider_wal_size_bytes"]); got != 42 {
		t.Fatalf("expected wal gauge 42, got %f", got)
	}

	obs.ObserveLatency("insider_chunk_write_seconds", 0.5)
	hCollector := obs.histos["insider_chunk_write_seconds"].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 sample, got %d", samples)
	}

	obs.IncCounter("not_a_metric", 1)

	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if want := len(counterHelp) + len(gaugeHelp) + len(histoHelp); n != want {
		t.Fatalf("expected %d registered series, got %d", want, n)
	}
}

func TestPromObsLogsThroughZap(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	obs := NewPromObs(zap.New(core), prometheus.NewRegistry())

	obs.LogInfo("cycle_complete")
	obs.LogCritical("cycle_failed", errors.New("boom"))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	crit := entries[1].ContextMap()
	if crit["critical"] != true || crit["error"] != "boom" {
		t.Fatalf("unexpected critical fields %v", crit)
	}
}

func TestRecordDLQCountsAndLogsRecord(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	obs := NewPromObs(zap.New(core), prometheus.NewRegistry())

	obs.RecordDLQ(7, &domain.HistoryRecord{ID: "u-1", UID: "bad\x00", TType: "os"}, errors.New("invalid byte sequence"))

	if got := testutil.ToFloat64(obs.counters["insider_dlq_total"]); got != 1 {
		t.Fatalf("expected dlq counter 1, got %f", got)
	}
	entries := logs.FilterMessage("wal_dead_letter").All()
	if len(entries) != 1 {
		t.Fatalf("expected one dead-letter log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["wal_id"] != uint64(7) || fields["uuid"] != "u-1" || fields["error"] != "invalid byte sequence" {
		t.Fatalf("unexpected dead-letter fields %v", fields)
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger("debug", "console"); err != nil {
		t.Fatalf("console logger: %v", err)
	}
	if _, err := NewLogger("info", "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if _, err := NewLogger("loud", "json"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
