package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/brct-james/titans-insider/internal/domain"
	"github.com/brct-james/titans-insider/internal/ports"
)

const (
	DefaultInterval       = 24 * time.Second
	DefaultLockKey        = "titans-insider:cycle"
	DefaultReplayAttempts = 3
)

// errLeaseLost means the cycle lease expired or moved to another replica
// between fetch and write.
var errLeaseLost = errors.New("cycle lease lost before write")

// CycleReport summarises one fetch → map → filter → write pass.
type CycleReport struct {
	Fetched  int
	Kept     int
	Replayed int
	Inserted int64
	Skipped  bool
	Duration time.Duration
}

// SnifferOption wires optional collaborators into a Sniffer.
type SnifferOption func(*Sniffer)

// WithWAL spills unwritten records to w and replays them on the next cycle.
func WithWAL(w ports.WAL) SnifferOption {
	return func(s *Sniffer) {
		s.wal = w
	}
}

// WithCycleLock makes every cycle take a lease on key first. A cycle whose
// lease is held elsewhere is skipped.
func WithCycleLock(lock ports.CycleLock, key string, ttl time.Duration) SnifferOption {
	return func(s *Sniffer) {
		s.lock = lock
		s.lockKey = key
		s.lockTTL = ttl
	}
}

// Sniffer drives the ingest cycle on a fixed cadence. Cycles never overlap:
// the loop body runs one cycle to completion before waiting for the next tick.
type Sniffer struct {
	source ports.Source
	mapper *Mapper
	dedup  *Deduplicator
	writer *BatchWriter
	policy ports.Policy
	obs    ports.Observability

	wal ports.WAL
	// replayFailures counts, per WAL entry, the cycles in which the store
	// rejected that entry while accepting other writes.
	replayFailures map[ports.WALEntryID]int

	lock    ports.CycleLock
	lockKey string
	lockTTL time.Duration
}

func NewSniffer(src ports.Source, m *Mapper, d *Deduplicator, w *BatchWriter, pol ports.Policy, obs ports.Observability, opts ...SnifferOption) (*Sniffer, error) {
	if src == nil {
		return nil, fmt.Errorf("source is required")
	}
	if m == nil || d == nil || w == nil {
		return nil, fmt.Errorf("mapper, deduplicator and writer are required")
	}
	if obs == nil {
		return nil, fmt.Errorf("observability is required")
	}
	if pol.Interval <= 0 {
		pol.Interval = DefaultInterval
	}
	if pol.FailurePolicy == "" {
		pol.FailurePolicy = ports.FailureSkip
	}
	if pol.Retry.MaxAttempts <= 0 {
		pol.Retry.MaxAttempts = 1
	}
	if pol.ReplayAttempts <= 0 {
		pol.ReplayAttempts = DefaultReplayAttempts
	}

	s := &Sniffer{
		source:         src,
		mapper:         m,
		dedup:          d,
		writer:         w,
		policy:         pol,
		obs:            obs,
		replayFailures: make(map[ports.WALEntryID]int),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.lock != nil {
		if s.lockKey == "" {
			s.lockKey = DefaultLockKey
		}
		if s.lockTTL <= 0 {
			s.lockTTL = pol.Interval * 9 / 10
		}
	}
	return s, nil
}

// Run executes a cycle immediately and then one per tick until ctx is done.
// Ticks that fire while a cycle is running are coalesced by the ticker. Run
// returns nil on cancellation and the cycle error under the fatal policy.
func (s *Sniffer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.policy.Interval)
	defer ticker.Stop()

	s.obs.LogInfo("sniffer_started",
		ports.Field{Key: "interval", Value: s.policy.Interval.String()},
		ports.Field{Key: "source", Value: s.source.Name()},
		ports.Field{Key: "failure_policy", Value: s.policy.FailurePolicy})

	for {
		if ctx.Err() != nil {
			break
		}
		if err := s.tick(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}

	s.obs.LogInfo("sniffer_stopped")
	return nil
}

func (s *Sniffer) tick(ctx context.Context) error {
	report, err := s.RunCycle(ctx)
	if err == nil {
		if !report.Skipped {
			s.obs.SetGauge("insider_last_success_timestamp_seconds", float64(time.Now().Unix()))
		}
		return nil
	}
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}

	s.obs.IncCounter("insider_cycle_failures_total", 1)
	fields := []ports.Field{
		{Key: "fetched", Value: report.Fetched},
		{Key: "kept", Value: report.Kept},
		{Key: "inserted", Value: report.Inserted},
	}
	if s.policy.FailurePolicy == ports.FailureFatal {
		s.obs.LogCritical("cycle_failed", err, fields...)
		return err
	}
	s.obs.LogError("cycle_failed", err, fields...)
	return nil
}

// RunCycle performs one complete cycle. The write phase ignores cancellation
// of ctx so a shutdown never interrupts a chunk in flight. The lease is
// renewed for a full TTL right before writing; a write phase longer than the
// TTL can still overlap another replica's cycle.
func (s *Sniffer) RunCycle(ctx context.Context) (CycleReport, error) {
	start := time.Now()
	s.obs.IncCounter("insider_cycles_total", 1)
	s.obs.LogInfo("cycle_start", ports.Field{Key: "source", Value: s.source.Name()})

	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx, s.lockKey, s.lockTTL)
		if err != nil {
			return CycleReport{}, fmt.Errorf("acquire cycle lock: %w", err)
		}
		if !ok {
			s.obs.IncCounter("insider_cycles_skipped_total", 1)
			s.obs.LogInfo("cycle_skipped", ports.Field{Key: "reason", Value: "lock held by another writer"})
			return CycleReport{Skipped: true, Duration: time.Since(start)}, nil
		}
	}

	report, err := s.cycle(ctx)
	report.Duration = time.Since(start)
	s.obs.ObserveLatency("insider_cycle_duration_seconds", report.Duration.Seconds())

	if errors.Is(err, errLeaseLost) {
		s.obs.IncCounter("insider_cycles_skipped_total", 1)
		s.obs.LogInfo("cycle_skipped", ports.Field{Key: "reason", Value: "lease lost before write"})
		return CycleReport{Fetched: report.Fetched, Kept: report.Kept, Skipped: true, Duration: report.Duration}, nil
	}
	if err != nil {
		if s.lock != nil {
			if rerr := s.lock.Release(context.WithoutCancel(ctx), s.lockKey); rerr != nil {
				s.obs.LogError("cycle_lock_release_failed", rerr)
			}
		}
		return report, err
	}

	s.obs.LogInfo("cycle_complete",
		ports.Field{Key: "fetched", Value: report.Fetched},
		ports.Field{Key: "kept", Value: report.Kept},
		ports.Field{Key: "replayed", Value: report.Replayed},
		ports.Field{Key: "inserted", Value: report.Inserted},
		ports.Field{Key: "duration", Value: report.Duration.String()})
	return report, nil
}

// Ingest maps, filters and writes a snapshot obtained elsewhere. It takes no
// cycle lease.
func (s *Sniffer) Ingest(ctx context.Context, snap *domain.Snapshot) (CycleReport, error) {
	if snap == nil || snap.Listings == nil {
		return CycleReport{}, domain.ErrEmptyPayload
	}
	start := time.Now()
	report, err := s.process(ctx, snap, false)
	report.Duration = time.Since(start)
	return report, err
}

func (s *Sniffer) cycle(ctx context.Context) (CycleReport, error) {
	snap, err := s.fetch(ctx)
	if err != nil {
		return CycleReport{}, err
	}
	return s.process(ctx, snap, s.lock != nil)
}

// process writes fresh records first and replays the WAL backlog in a separate
// pass, so a spilled record the store keeps rejecting never blocks new data.
func (s *Sniffer) process(ctx context.Context, snap *domain.Snapshot, leased bool) (CycleReport, error) {
	var report CycleReport
	report.Fetched = len(snap.Listings)
	s.obs.IncCounter("insider_listings_fetched_total", float64(report.Fetched))
	s.obs.LogInfo("snapshot_fetched", ports.Field{Key: "listings", Value: report.Fetched})

	kept := s.dedup.Filter(s.mapper.MapAll(snap.Listings))
	report.Kept = len(kept)
	s.obs.IncCounter("insider_records_filtered_total", float64(report.Fetched-report.Kept))
	s.obs.LogInfo("records_filtered",
		ports.Field{Key: "before", Value: report.Fetched},
		ports.Field{Key: "after", Value: report.Kept})

	if leased {
		if err := s.extendLease(ctx); err != nil {
			return report, err
		}
	}

	// Taken before the fresh write so records spilled below wait a cycle.
	pending := s.loadBacklog()

	writeCtx := context.WithoutCancel(ctx)
	writeStart := time.Now()
	n, rejected, err := s.writeFresh(writeCtx, kept)
	report.Inserted += n
	s.spill(rejected)

	// Replay failures only count against an entry while the store is
	// demonstrably accepting writes.
	storeUp := len(kept) > 0 && len(rejected) < len(kept)
	if err != nil && !storeUp {
		return report, err
	}
	s.obs.ObserveLatency("insider_write_seconds", time.Since(writeStart).Seconds())
	s.replay(writeCtx, &report, pending, storeUp)
	return report, err
}

// writeFresh writes records with retries, resuming after the last committed
// chunk. If the batch still fails, the remainder is written record by record
// and the records the store rejects are returned with the batch error.
func (s *Sniffer) writeFresh(ctx context.Context, records []domain.HistoryRecord) (int64, []domain.HistoryRecord, error) {
	var inserted int64
	remaining := records
	err := s.retry(ctx, "write", func() error {
		n, err := s.writer.Write(ctx, remaining)
		inserted += n
		var werr *domain.WriteError
		if errors.As(err, &werr) {
			remaining = remaining[werr.Chunk*s.writer.BatchSize():]
		}
		return err
	})
	if err == nil {
		return inserted, nil, nil
	}

	n, failed := s.writer.WriteEach(ctx, remaining)
	inserted += n
	if len(failed) == 0 {
		return inserted, nil, nil
	}
	rejected := make([]domain.HistoryRecord, 0, len(failed))
	for i := range remaining {
		if _, ok := failed[i]; ok {
			rejected = append(rejected, remaining[i])
		}
	}
	return inserted, rejected, err
}

// replay writes the uncommitted WAL backlog. When the batch fails, each entry
// is retried alone; an entry rejected in ReplayAttempts cycles is handed to
// RecordDLQ and treated as done. The WAL is committed up to the first entry
// still waiting.
func (s *Sniffer) replay(ctx context.Context, report *CycleReport, b walBacklog, storeUp bool) {
	backlog, ids, last := b.records, b.ids, b.last
	report.Replayed = len(backlog)
	if len(backlog) == 0 {
		s.commitBacklog(last)
		return
	}

	n, err := s.writer.Write(ctx, backlog)
	report.Inserted += n
	if err == nil {
		s.commitBacklog(last)
		return
	}
	s.obs.LogError("wal_replay_failed", err, ports.Field{Key: "records", Value: len(backlog)})

	offset := 0
	var werr *domain.WriteError
	if errors.As(err, &werr) {
		offset = werr.Chunk * s.writer.BatchSize()
	}
	n, failed := s.writer.WriteEach(ctx, backlog[offset:])
	report.Inserted += n
	if offset > 0 || len(failed) < len(backlog)-offset {
		storeUp = true
	}

	upto := last
	waiting := false
	for i := offset; i < len(backlog); i++ {
		ferr, ok := failed[i-offset]
		if !ok {
			continue
		}
		id := ids[i]
		if storeUp {
			s.replayFailures[id]++
		}
		if s.replayFailures[id] >= s.policy.ReplayAttempts {
			s.obs.RecordDLQ(id, &backlog[i], ferr)
			continue
		}
		if !waiting {
			upto = id - 1
			waiting = true
		}
	}
	s.commitBacklog(upto)
}

func (s *Sniffer) extendLease(ctx context.Context) error {
	ok, err := s.lock.Acquire(ctx, s.lockKey, s.lockTTL)
	if err != nil {
		return fmt.Errorf("extend cycle lock: %w", err)
	}
	if !ok {
		return errLeaseLost
	}
	return nil
}

func (s *Sniffer) fetch(ctx context.Context) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	start := time.Now()
	err := s.retry(ctx, "fetch", func() error {
		got, err := s.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if got == nil || got.Listings == nil {
			return backoff.Permanent(domain.ErrEmptyPayload)
		}
		snap = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.obs.ObserveLatency("insider_fetch_seconds", time.Since(start).Seconds())
	return snap, nil
}

func (s *Sniffer) retry(ctx context.Context, stage string, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	if s.policy.Retry.InitialInterval > 0 {
		eb.InitialInterval = s.policy.Retry.InitialInterval
	}
	if s.policy.Retry.MaxInterval > 0 {
		eb.MaxInterval = s.policy.Retry.MaxInterval
	}
	eb.MaxElapsedTime = 0

	bo := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.policy.Retry.MaxAttempts-1)), ctx)
	return backoff.RetryNotify(op, bo, func(err error, wait time.Duration) {
		s.obs.IncCounter("insider_retries_total", 1)
		s.obs.LogError("stage_retry", err,
			ports.Field{Key: "stage", Value: stage},
			ports.Field{Key: "wait", Value: wait.String()})
	})
}

// walBacklog holds the uncommitted WAL records that are not yet dead-lettered.
// last is the id of the last entry read, dead-lettered or not.
type walBacklog struct {
	records []domain.HistoryRecord
	ids     []ports.WALEntryID
	last    ports.WALEntryID
}

func (s *Sniffer) loadBacklog() walBacklog {
	var b walBacklog
	if s.wal == nil {
		return b
	}
	stats := s.wal.Stats()
	if stats.LatestAppended == 0 || stats.OldestUncommitted > stats.LatestAppended {
		return b
	}

	err := s.wal.Iterate(stats.OldestUncommitted, func(id ports.WALEntryID, r *domain.HistoryRecord) error {
		b.last = id
		if s.replayFailures[id] >= s.policy.ReplayAttempts {
			return nil
		}
		b.records = append(b.records, *r)
		b.ids = append(b.ids, id)
		return nil
	})
	if err != nil {
		s.obs.LogError("wal_replay_failed", err)
		return walBacklog{}
	}
	if len(b.records) > 0 {
		s.obs.LogInfo("wal_replay",
			ports.Field{Key: "records", Value: len(b.records)},
			ports.Field{Key: "from_id", Value: stats.OldestUncommitted})
	}
	return b
}

func (s *Sniffer) commitBacklog(upto ports.WALEntryID) {
	if s.wal == nil || upto == 0 || upto < s.wal.Stats().OldestUncommitted {
		return
	}
	if err := s.wal.Commit(upto); err != nil {
		s.obs.LogError("wal_commit_failed", err)
		return
	}
	for id := range s.replayFailures {
		if id <= upto {
			delete(s.replayFailures, id)
		}
	}
	if err := s.wal.TruncateCommitted(); err != nil {
		s.obs.LogError("wal_truncate_failed", err)
	}
	s.recordWALGauges()
}

func (s *Sniffer) spill(records []domain.HistoryRecord) {
	if s.wal == nil || len(records) == 0 {
		return
	}
	for i := range records {
		if _, err := s.wal.Append(&records[i]); err != nil {
			s.obs.LogCritical("wal_spill_failed", err, ports.Field{Key: "remaining", Value: len(records) - i})
			return
		}
	}
	s.obs.IncCounter("insider_wal_spilled_total", float64(len(records)))
	s.obs.LogInfo("wal_spill", ports.Field{Key: "records", Value: len(records)})
	s.recordWALGauges()
}

func (s *Sniffer) recordWALGauges() {
	stats := s.wal.Stats()
	s.obs.SetGauge("insider_wal_size_bytes", float64(stats.SizeBytes))
	pending := 0.0
	if stats.LatestAppended >= stats.OldestUncommitted {
		pending = float64(stats.LatestAppended - stats.OldestUncommitted + 1)
	}
	s.obs.SetGauge("insider_wal_pending_records", pending)
}
