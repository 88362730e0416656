package gormstore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/brct-james/titans-insider/internal/domain"
	"github.com/brct-james/titans-insider/internal/ports"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: db, SkipInitializeWithVersion: true}), gormConfig())
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}
	return New(gdb, "item_hist"), mock
}

func TestGormInsertIgnore(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO `item_hist` \\(`uuid`,`item_id`,`t_type`,`uid`,.*`db_timestamp`\\) VALUES " +
		"\\(\\?(,\\?){18}\\),\\(\\?(,\\?){18}\\) ON DUPLICATE KEY UPDATE `uuid`=`uuid`").
		WillReturnResult(sqlmock.NewResult(0, 1))

	records := []domain.HistoryRecord{
		{ID: "a", TType: "os", UID: "ironsword"},
		{ID: "b", TType: "fo", UID: "ironsword"},
	}
	var inserted int64
	err := store.Session(context.Background(), func(cw ports.ChunkWriter) error {
		n, err := cw.InsertIgnore(context.Background(), records)
		inserted = n
		return err
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("expected 1 new row, got %d", inserted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormHistory(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"uuid", "item_id", "t_type", "uid", "tier", "created_at", "db_timestamp"}).
		AddRow("b", int64(5), "fo", "ironsword", nil, "2", int64(20)).
		AddRow("a", int64(5), "os", "ironsword", int64(3), "1", int64(10))
	mock.ExpectQuery("SELECT \\* FROM `item_hist` WHERE uid = \\? ORDER BY t_type, created_at, uuid").
		WithArgs("ironsword").
		WillReturnRows(rows)

	hist, err := store.History(context.Background(), "ironsword")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 || hist[0].ID != "b" || hist[0].Tier != nil {
		t.Fatalf("unexpected history %+v", hist)
	}
	if hist[1].Tier == nil || *hist[1].Tier != 3 || hist[1].CreatedAt != "1" || hist[1].CapturedAt != 10 {
		t.Fatalf("unexpected second row %+v", hist[1])
	}
}

func TestGormStoreIdentity(t *testing.T) {
	store, _ := newMockStore(t)
	if store.Name() != "mysql" || store.ParamLimit() != 65535 {
		t.Fatalf("unexpected identity %s %d", store.Name(), store.ParamLimit())
	}
}
