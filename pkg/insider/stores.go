package insider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/brct-james/titans-insider/internal/ports"
)

// DefaultParamLimit is the bound-parameter limit reported by callback and
// channel stores. It sizes chunks the same way as a Postgres backend.
const DefaultParamLimit = 65535

// ErrChannelStoreClosed is returned when a channel store is written to after being closed.
var ErrChannelStoreClosed = errors.New("titans-insider: channel store closed")

// NewCallbackStore adapts a RecordBatchHandler into a full HistoryStore so
// callers can plug arbitrary functions without defining structs. Every record
// handed over counts as inserted.
func NewCallbackStore(name string, fn RecordBatchHandler) HistoryStore {
	if name == "" {
		name = "callback"
	}
	return &callbackStore{name: name, fn: fn}
}

// NewChannelStore exposes chunks via a channel; it returns the store, the
// read-only channel, and a close function the caller should invoke during shutdown.
func NewChannelStore(name string, buffer int) (HistoryStore, <-chan []HistoryRecord, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan []HistoryRecord, buffer)
	s := &channelStore{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

// sessionless provides the parts of HistoryStore that in-process stores share.
type sessionless struct{}

func (sessionless) ParamLimit() int                    { return DefaultParamLimit }
func (sessionless) EnsureSchema(context.Context) error { return nil }

type callbackStore struct {
	sessionless
	name string
	fn   RecordBatchHandler
}

func (s *callbackStore) Name() string { return s.name }

func (s *callbackStore) Session(ctx context.Context, fn func(ports.ChunkWriter) error) error {
	return fn(s)
}

func (s *callbackStore) InsertIgnore(_ context.Context, records []HistoryRecord) (int64, error) {
	if s.fn == nil {
		return 0, fmt.Errorf("callback store %q: nil handler", s.name)
	}
	if len(records) == 0 {
		return 0, nil
	}
	if err := s.fn(cloneBatch(records)); err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

func (s *callbackStore) Close() error { return nil }

type channelStore struct {
	sessionless
	name   string
	ch     chan []HistoryRecord
	closed chan struct{}
	once   sync.Once
}

func (s *channelStore) Name() string { return s.name }

func (s *channelStore) Session(ctx context.Context, fn func(ports.ChunkWriter) error) error {
	return fn(s)
}

func (s *channelStore) InsertIgnore(ctx context.Context, records []HistoryRecord) (int64, error) {
	select {
	case <-s.closed:
		return 0, ErrChannelStoreClosed
	default:
	}

	if len(records) == 0 {
		return 0, nil
	}

	select {
	case <-s.closed:
		return 0, ErrChannelStoreClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	case s.ch <- cloneBatch(records):
		return int64(len(records)), nil
	}
}

func (s *channelStore) Close() error {
	s.close()
	return nil
}

func (s *channelStore) close() {
	s.once.Do(func() {
		close(s.closed)
		close(s.ch)
	})
}

// cloneBatch copies the chunk so receivers never alias the writer's slice.
func cloneBatch(records []HistoryRecord) []HistoryRecord {
	out := make([]HistoryRecord, len(records))
	copy(out, records)
	return out
}
