package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/brct-james/titans-insider/internal/domain"
	"github.com/brct-james/titans-insider/internal/ports"
)

const pgInsert = "INSERT INTO item_hist (uuid,item_id,t_type,uid,tag1,tag2,tag3,gold_qty,gems_qty,created,tier,item_order,city_id,gold_price,gems_price,request_cycle,created_at,updated_at,db_timestamp) " +
	"VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19) ON CONFLICT (uuid) DO NOTHING"

func record(id, uid, tType, createdAt string) domain.HistoryRecord {
	order := int32(3)
	return domain.HistoryRecord{
		ID: id, ItemID: 10, TType: tType, UID: uid, Order: &order,
		GoldQty: 1, GoldPrice: 500, RequestCycle: 7,
		CreatedAt: createdAt, UpdatedAt: createdAt, CapturedAt: 1_700_000_000_000,
	}
}

func TestPostgresInsertIgnore(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := New(db, Postgres, "item_hist")
	r := record("u-1", "ironsword", "os", "2023-01-01")

	mock.ExpectExec(regexp.QuoteMeta(pgInsert)).
		WithArgs("u-1", int32(10), "os", "ironsword", nil, nil, nil, int32(1), int32(0), nil, nil, int32(3), nil,
			int32(500), int32(0), int32(7), "2023-01-01", "2023-01-01", int64(1_700_000_000_000)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	var inserted int64
	err = store.Session(context.Background(), func(cw ports.ChunkWriter) error {
		n, err := cw.InsertIgnore(context.Background(), []domain.HistoryRecord{r})
		inserted = n
		return err
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("expected 1 row, got %d", inserted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLiteUsesQuestionPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := New(db, SQLite, "item_hist")
	mock.ExpectExec(`VALUES \(\?(,\?){18}\) ON CONFLICT \(uuid\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.Session(context.Background(), func(cw ports.ChunkWriter) error {
		_, err := cw.InsertIgnore(context.Background(), []domain.HistoryRecord{record("u-1", "x", "fo", "t")})
		return err
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if store.ParamLimit() != 32766 || New(db, Postgres, "t").ParamLimit() != 65535 {
		t.Fatalf("unexpected param limits")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertErrorPropagates(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	boom := errors.New("disk full")
	mock.ExpectExec("INSERT INTO item_hist").WillReturnError(boom)

	store := New(db, Postgres, "item_hist")
	err = store.Session(context.Background(), func(cw ports.ChunkWriter) error {
		_, err := cw.InsertIgnore(context.Background(), []domain.HistoryRecord{record("u", "x", "os", "t")})
		return err
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected insert error, got %v", err)
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := Open(SQLite, filepath.Join(t.TempDir(), "hist.db"), "item_hist", 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema should be idempotent: %v", err)
	}

	first := []domain.HistoryRecord{
		record("u-1", "ironsword", "os", "2023-01-02"),
		record("u-2", "ironsword", "fo", "2023-01-03"),
		record("u-3", "steelaxe", "os", "2023-01-01"),
	}
	first[1].Order = nil
	insert := func(records []domain.HistoryRecord) int64 {
		t.Helper()
		var n int64
		if err := store.Session(ctx, func(cw ports.ChunkWriter) error {
			var err error
			n, err = cw.InsertIgnore(ctx, records)
			return err
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		return n
	}

	if n := insert(first); n != 3 {
		t.Fatalf("expected 3 inserted, got %d", n)
	}
	second := append([]domain.HistoryRecord{record("u-4", "ironsword", "os", "2023-01-01")}, first...)
	if n := insert(second); n != 1 {
		t.Fatalf("expected only the new row inserted, got %d", n)
	}

	hist, err := store.History(ctx, "ironsword")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected 3 ironsword rows, got %d", len(hist))
	}
	// fo sorts before os, then by created_at
	if hist[0].ID != "u-2" || hist[1].ID != "u-4" || hist[2].ID != "u-1" {
		t.Fatalf("unexpected order %s %s %s", hist[0].ID, hist[1].ID, hist[2].ID)
	}
	if hist[0].Order != nil || hist[2].Order == nil || *hist[2].Order != 3 {
		t.Fatalf("nullable columns did not round-trip")
	}
	if hist[2].CapturedAt != 1_700_000_000_000 {
		t.Fatalf("unexpected db_timestamp %d", hist[2].CapturedAt)
	}
}
