package insider

import (
	"context"
	"errors"
	"testing"
	"time"
)

func writeThrough(t *testing.T, s HistoryStore, records []HistoryRecord) (int64, error) {
	t.Helper()
	var n int64
	err := s.Session(context.Background(), func(w ChunkWriter) error {
		var err error
		n, err = w.InsertIgnore(context.Background(), records)
		return err
	})
	return n, err
}

func TestNewCallbackStore(t *testing.T) {
	var received []HistoryRecord
	store := NewCallbackStore("cb", func(batch []HistoryRecord) error {
		received = append(received, batch...)
		return nil
	})

	input := []HistoryRecord{{ID: "a", UID: "ironsword", TType: "os", GoldPrice: 1200}}
	n, err := writeThrough(t, store, input)
	if err != nil {
		t.Fatalf("InsertIgnore returned error: %v", err)
	}
	if n != 1 || len(received) != 1 {
		t.Fatalf("expected 1 record, got n=%d received=%d", n, len(received))
	}
	if received[0].UID != "ironsword" || received[0].GoldPrice != 1200 {
		t.Fatalf("mismatched record payload: %+v", received[0])
	}

	input[0].UID = "mutated"
	if received[0].UID != "ironsword" {
		t.Fatalf("callback batch should not alias the writer's slice")
	}
	if store.Name() != "cb" || store.ParamLimit() != DefaultParamLimit {
		t.Fatalf("unexpected identity %s %d", store.Name(), store.ParamLimit())
	}
}

func TestNewCallbackStoreNilHandler(t *testing.T) {
	store := NewCallbackStore("", nil)
	if store.Name() != "callback" {
		t.Fatalf("expected default name, got %q", store.Name())
	}
	if _, err := writeThrough(t, store, []HistoryRecord{{ID: "a"}}); err == nil {
		t.Fatalf("expected error when callback is nil")
	}
}

func TestCallbackStoreErrorIsReturned(t *testing.T) {
	boom := errors.New("downstream rejected")
	store := NewCallbackStore("cb", func([]HistoryRecord) error { return boom })
	n, err := writeThrough(t, store, []HistoryRecord{{ID: "a"}})
	if !errors.Is(err, boom) || n != 0 {
		t.Fatalf("expected downstream error and 0 rows, got %d %v", n, err)
	}
}

func TestNewChannelStore(t *testing.T) {
	store, ch, closeFn := NewChannelStore("chan", 1)
	defer closeFn()

	input := []HistoryRecord{{ID: "b", UID: "steelaxe", TType: "r"}}
	errCh := make(chan error, 1)

	go func() {
		_, err := writeThrough(t, store, input)
		errCh <- err
	}()

	var batch []HistoryRecord
	select {
	case batch = <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel batch")
	}

	if err := <-errCh; err != nil {
		t.Fatalf("InsertIgnore returned error: %v", err)
	}
	if len(batch) != 1 || batch[0].UID != "steelaxe" {
		t.Fatalf("unexpected batch data: %+v", batch)
	}

	closeFn()
	if _, err := writeThrough(t, store, input); !errors.Is(err, ErrChannelStoreClosed) {
		t.Fatalf("expected ErrChannelStoreClosed, got %v", err)
	}
}

func TestChannelStoreHonoursContext(t *testing.T) {
	store, _, closeFn := NewChannelStore("chan", 0)
	defer closeFn()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := store.Session(ctx, func(w ChunkWriter) error {
		_, err := w.InsertIgnore(ctx, []HistoryRecord{{ID: "a"}})
		return err
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
