package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brct-james/titans-insider/internal/domain"
	"github.com/brct-james/titans-insider/internal/ports"
)

const defaultProgressEvery = 500

// MaxBatchSize is the largest chunk whose bound parameters stay under limit,
// with one row of headroom.
func MaxBatchSize(limit, fieldsPerRecord int) int {
	if fieldsPerRecord <= 0 {
		return 0
	}
	return limit/fieldsPerRecord - 1
}

// Chunk splits records into consecutive sub-slices of at most size elements.
// The chunks share the input's backing array.
func Chunk(records []domain.HistoryRecord, size int) [][]domain.HistoryRecord {
	if len(records) == 0 || size <= 0 {
		return nil
	}
	out := make([][]domain.HistoryRecord, 0, (len(records)+size-1)/size)
	for i := 0; i < len(records); i += size {
		j := i + size
		if j > len(records) {
			j = len(records)
		}
		out = append(out, records[i:j:j])
	}
	return out
}

// BatchWriter persists records in parameter-bounded chunks through one store session.
type BatchWriter struct {
	store         ports.HistoryStore
	obs           ports.Observability
	batchSize     int
	progressEvery int
}

func NewBatchWriter(store ports.HistoryStore, obs ports.Observability, progressEvery int) (*BatchWriter, error) {
	if store == nil {
		return nil, fmt.Errorf("history store is required")
	}
	size := MaxBatchSize(store.ParamLimit(), domain.HistoryFieldCount)
	if size <= 0 {
		return nil, fmt.Errorf("store %s: param limit %d too small for %d fields", store.Name(), store.ParamLimit(), domain.HistoryFieldCount)
	}
	if progressEvery <= 0 {
		progressEvery = defaultProgressEvery
	}
	return &BatchWriter{store: store, obs: obs, batchSize: size, progressEvery: progressEvery}, nil
}

// BatchSize is the chunk size used for this writer's store.
func (w *BatchWriter) BatchSize() int { return w.batchSize }

// Write inserts all records and returns the number of rows actually written.
// A failing chunk aborts the call with a *domain.WriteError; chunks written
// before it stay committed.
func (w *BatchWriter) Write(ctx context.Context, records []domain.HistoryRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	chunks := Chunk(records, w.batchSize)
	w.obs.LogInfo("write_plan",
		ports.Field{Key: "records", Value: len(records)},
		ports.Field{Key: "chunks", Value: len(chunks)},
		ports.Field{Key: "chunk_size", Value: w.batchSize},
		ports.Field{Key: "store", Value: w.store.Name()})

	var (
		inserted  int64
		submitted int
		nextMark  int
	)
	err := w.store.Session(ctx, func(cw ports.ChunkWriter) error {
		for i, chunk := range chunks {
			w.obs.LogDebug("chunk_start",
				ports.Field{Key: "chunk", Value: i},
				ports.Field{Key: "size", Value: len(chunk)},
				ports.Field{Key: "inserted_so_far", Value: inserted})

			start := time.Now()
			n, err := cw.InsertIgnore(ctx, chunk)
			if err != nil {
				return &domain.WriteError{Chunk: i, Inserted: inserted, Err: err}
			}
			w.obs.ObserveLatency("insider_chunk_write_seconds", time.Since(start).Seconds())
			w.obs.IncCounter("insider_chunks_written_total", 1)

			inserted += n
			submitted += len(chunk)
			if submitted >= nextMark {
				w.obs.LogInfo("write_progress",
					ports.Field{Key: "submitted", Value: submitted},
					ports.Field{Key: "total", Value: len(records)},
					ports.Field{Key: "percent", Value: fmt.Sprintf("%.2f", float64(submitted)/float64(len(records))*100)})
				nextMark = (submitted/w.progressEvery + 1) * w.progressEvery
			}
		}
		return nil
	})
	if err != nil {
		var werr *domain.WriteError
		if !errors.As(err, &werr) {
			err = &domain.WriteError{Chunk: 0, Inserted: inserted, Err: err}
		}
		return inserted, err
	}

	w.obs.IncCounter("insider_rows_inserted_total", float64(inserted))
	w.obs.IncCounter("insider_rows_conflicted_total", float64(int64(len(records))-inserted))
	w.obs.LogInfo("write_complete",
		ports.Field{Key: "inserted", Value: inserted},
		ports.Field{Key: "submitted", Value: len(records)})
	return inserted, nil
}

// WriteEach inserts records one statement per record through one session and
// keeps going past failures. failed maps the index of every record the store
// rejected to its error. It is the slow path used to isolate records a chunk
// insert cannot accept.
func (w *BatchWriter) WriteEach(ctx context.Context, records []domain.HistoryRecord) (inserted int64, failed map[int]error) {
	failed = make(map[int]error)
	next := 0
	err := w.store.Session(ctx, func(cw ports.ChunkWriter) error {
		for ; next < len(records); next++ {
			n, err := cw.InsertIgnore(ctx, records[next:next+1:next+1])
			if err != nil {
				failed[next] = err
				continue
			}
			inserted += n
		}
		return nil
	})
	for ; err != nil && next < len(records); next++ {
		failed[next] = err
	}

	w.obs.IncCounter("insider_rows_inserted_total", float64(inserted))
	w.obs.LogInfo("write_isolated",
		ports.Field{Key: "submitted", Value: len(records)},
		ports.Field{Key: "inserted", Value: inserted},
		ports.Field{Key: "rejected", Value: len(failed)},
		ports.Field{Key: "store", Value: w.store.Name()})
	return inserted, failed
}
