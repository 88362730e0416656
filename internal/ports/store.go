package ports

import (
	"context"

	"github.com/brct-james/titans-insider/internal/domain"
)

// ChunkWriter inserts one chunk as a single statement, skipping rows whose
// identifier already exists. It returns the number of rows actually written.
type ChunkWriter interface {
	InsertIgnore(ctx context.Context, records []domain.HistoryRecord) (int64, error)
}

type HistoryStore interface {
	Name() string
	// ParamLimit is the most bound parameters one statement may carry.
	ParamLimit() int
	EnsureSchema(ctx context.Context) error
	// Session holds one pooled connection for the duration of fn.
	Session(ctx context.Context, fn func(ChunkWriter) error) error
	Close() error
}

type HistoryReader interface {
	History(ctx context.Context, uid string) ([]domain.HistoryRecord, error)
}
