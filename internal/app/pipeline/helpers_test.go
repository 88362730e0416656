package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/brct-james/titans-insider/internal/domain"
	"github.com/brct-james/titans-insider/internal/ports"
)

func strp(s string) *string { return &s }
func i32p(v int32) *int32   { return &v }

type mockObs struct {
	mu       sync.Mutex
	infos    []string
	errors   []error
	critical []error
	counters map[string]float64
	gauges   map[string]float64
	dlq      []ports.WALEntryID
}

func newMockObs() *mockObs {
	return &mockObs{counters: map[string]float64{}, gauges: map[string]float64{}}
}

func (m *mockObs) LogDebug(string, ...ports.Field) {}
func (m *mockObs) LogInfo(msg string, _ ...ports.Field) {
	m.mu.Lock()
	m.infos = append(m.infos, msg)
	m.mu.Unlock()
}
func (m *mockObs) LogError(_ string, err error, _ ...ports.Field) {
	m.mu.Lock()
	m.errors = append(m.errors, err)
	m.mu.Unlock()
}
func (m *mockObs) LogCritical(_ string, err error, _ ...ports.Field) {
	m.mu.Lock()
	m.critical = append(m.critical, err)
	m.mu.Unlock()
}
func (m *mockObs) IncCounter(name string, v float64) {
	m.mu.Lock()
	m.counters[name] += v
	m.mu.Unlock()
}
func (m *mockObs) ObserveLatency(string, float64) {}
func (m *mockObs) SetGauge(name string, v float64) {
	m.mu.Lock()
	m.gauges[name] = v
	m.mu.Unlock()
}

func (m *mockObs) RecordDLQ(id ports.WALEntryID, _ *domain.HistoryRecord, _ error) {
	m.mu.Lock()
	m.dlq = append(m.dlq, id)
	m.mu.Unlock()
}

func (m *mockObs) count(msg string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.infos {
		if s == msg {
			n++
		}
	}
	return n
}

// memStore keeps rows keyed by id and skips duplicates like ON CONFLICT DO NOTHING.
type memStore struct {
	mu         sync.Mutex
	limit      int
	rows       map[string]domain.HistoryRecord
	chunkSizes []int
	sessions   int
	okBefore   int    // successful chunk inserts before failures start
	failures   int    // failing inserts remaining
	reject     string // uid the store can never accept
	calls      int
}

func newMemStore(limit int) *memStore {
	return &memStore{limit: limit, rows: map[string]domain.HistoryRecord{}}
}

func (s *memStore) Name() string                       { return "mem" }
func (s *memStore) ParamLimit() int                    { return s.limit }
func (s *memStore) EnsureSchema(context.Context) error { return nil }
func (s *memStore) Close() error                       { return nil }

func (s *memStore) Session(ctx context.Context, fn func(ports.ChunkWriter) error) error {
	s.mu.Lock()
	s.sessions++
	s.mu.Unlock()
	return fn(s)
}

func (s *memStore) InsertIgnore(_ context.Context, records []domain.HistoryRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls > s.okBefore && s.failures > 0 {
		s.failures--
		return 0, errors.New("connection reset")
	}
	for _, r := range records {
		if s.reject != "" && r.UID == s.reject {
			return 0, errors.New("invalid byte sequence for encoding UTF8: 0x00")
		}
	}
	s.chunkSizes = append(s.chunkSizes, len(records))
	var n int64
	for _, r := range records {
		if _, ok := s.rows[r.ID]; ok {
			continue
		}
		s.rows[r.ID] = r
		n++
	}
	return n, nil
}

func (s *memStore) rowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type stubSource struct {
	snaps []*domain.Snapshot
	errs  []error
	calls int
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Fetch(ctx context.Context) (*domain.Snapshot, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if len(s.snaps) == 0 {
		return nil, nil
	}
	if i >= len(s.snaps) {
		i = len(s.snaps) - 1
	}
	return s.snaps[i], nil
}

// memWAL is an in-memory ports.WAL.
type memWAL struct {
	entries   []domain.HistoryRecord
	committed ports.WALEntryID
}

func (w *memWAL) Append(r *domain.HistoryRecord) (ports.WALEntryID, error) {
	w.entries = append(w.entries, *r)
	return ports.WALEntryID(len(w.entries)), nil
}

func (w *memWAL) Iterate(from ports.WALEntryID, fn func(ports.WALEntryID, *domain.HistoryRecord) error) error {
	for i := range w.entries {
		id := ports.WALEntryID(i + 1)
		if id < from {
			continue
		}
		if err := fn(id, &w.entries[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *memWAL) Commit(upto ports.WALEntryID) error {
	if upto > w.committed {
		w.committed = upto
	}
	return nil
}

func (w *memWAL) TruncateCommitted() error { return nil }

func (w *memWAL) Stats() ports.WALStats {
	return ports.WALStats{
		OldestUncommitted: w.committed + 1,
		LatestAppended:    ports.WALEntryID(len(w.entries)),
	}
}

type stubLock struct {
	held     bool
	grants   int // acquisitions allowed before the lease is lost; 0 is unlimited
	acquired int
	released int
}

func (l *stubLock) Acquire(context.Context, string, time.Duration) (bool, error) {
	if l.held || (l.grants > 0 && l.acquired >= l.grants) {
		return false, nil
	}
	l.acquired++
	return true, nil
}

func (l *stubLock) Release(context.Context, string) error {
	l.released++
	return nil
}
