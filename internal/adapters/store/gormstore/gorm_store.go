package gormstore

import (
	"context"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/brct-james/titans-insider/internal/domain"
	"github.com/brct-james/titans-insider/internal/ports"
)

const paramLimit = 65535

// historyRow is the gorm model of one history row.
type historyRow struct {
	UUID          string  `gorm:"column:uuid;primaryKey;size:36"`
	ItemID        int32   `gorm:"column:item_id;not null"`
	TType         string  `gorm:"column:t_type;size:8;not null"`
	UID           string  `gorm:"column:uid;size:128;not null;index"`
	Tag1          *string `gorm:"column:tag1;size:64"`
	Tag2          *string `gorm:"column:tag2;size:64"`
	Tag3          *string `gorm:"column:tag3;size:64"`
	GoldQty       int32   `gorm:"column:gold_qty;not null"`
	GemsQty       int32   `gorm:"column:gems_qty;not null"`
	Created       *string `gorm:"column:created;size:64"`
	Tier          *int32  `gorm:"column:tier"`
	Order         *int32  `gorm:"column:item_order"`
	CityID        *int32  `gorm:"column:city_id"`
	GoldPrice     int32   `gorm:"column:gold_price;not null"`
	GemsPrice     int32   `gorm:"column:gems_price;not null"`
	RequestCycle  int32   `gorm:"column:request_cycle;not null"`
	ListedAt      string  `gorm:"column:created_at;size:32;not null"`
	ListUpdatedAt string  `gorm:"column:updated_at;size:32;not null"`
	CapturedAt    int64   `gorm:"column:db_timestamp;not null"`
}

func toRow(r *domain.HistoryRecord) historyRow {
	return historyRow{
		UUID: r.ID, ItemID: r.ItemID, TType: r.TType, UID: r.UID,
		Tag1: r.Tag1, Tag2: r.Tag2, Tag3: r.Tag3,
		GoldQty: r.GoldQty, GemsQty: r.GemsQty, Created: r.Created,
		Tier: r.Tier, Order: r.Order, CityID: r.CityID,
		GoldPrice: r.GoldPrice, GemsPrice: r.GemsPrice, RequestCycle: r.RequestCycle,
		ListedAt: r.CreatedAt, ListUpdatedAt: r.UpdatedAt, CapturedAt: r.CapturedAt,
	}
}

func (h *historyRow) record() domain.HistoryRecord {
	return domain.HistoryRecord{
		ID: h.UUID, ItemID: h.ItemID, TType: h.TType, UID: h.UID,
		Tag1: h.Tag1, Tag2: h.Tag2, Tag3: h.Tag3,
		GoldQty: h.GoldQty, GemsQty: h.GemsQty, Created: h.Created,
		Tier: h.Tier, Order: h.Order, CityID: h.CityID,
		GoldPrice: h.GoldPrice, GemsPrice: h.GemsPrice, RequestCycle: h.RequestCycle,
		CreatedAt: h.ListedAt, UpdatedAt: h.ListUpdatedAt, CapturedAt: h.CapturedAt,
	}
}

// GormStore writes history rows to MySQL through gorm.
type GormStore struct {
	db    *gorm.DB
	table string
}

func Open(dsn, table string, maxConns int) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
	}
	return New(db, table), nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		// each chunk is a single statement already
		SkipDefaultTransaction: true,
	}
}

func New(db *gorm.DB, table string) *GormStore {
	return &GormStore{db: db, table: table}
}

func (s *GormStore) Name() string    { return "mysql" }
func (s *GormStore) ParamLimit() int { return paramLimit }

func (s *GormStore) EnsureSchema(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Table(s.table).AutoMigrate(&historyRow{}); err != nil {
		return fmt.Errorf("ensure schema %s: %w", s.table, err)
	}
	return nil
}

func (s *GormStore) Session(ctx context.Context, fn func(ports.ChunkWriter) error) error {
	return s.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		return fn(&chunkWriter{db: conn, table: s.table})
	})
}

func (s *GormStore) History(ctx context.Context, uid string) ([]domain.HistoryRecord, error) {
	var rows []historyRow
	err := s.db.WithContext(ctx).Table(s.table).
		Where("uid = ?", uid).
		Order("t_type, created_at, uuid").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.HistoryRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].record()
	}
	return out, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type chunkWriter struct {
	db    *gorm.DB
	table string
}

// InsertIgnore relies on the MySQL dialect rendering DoNothing as a no-op
// ON DUPLICATE KEY UPDATE, which leaves RowsAffected at 0 for existing rows.
func (w *chunkWriter) InsertIgnore(ctx context.Context, records []domain.HistoryRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	rows := make([]historyRow, len(records))
	for i := range records {
		rows[i] = toRow(&records[i])
	}
	res := w.db.WithContext(ctx).Table(w.table).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows)
	return res.RowsAffected, res.Error
}

var (
	_ ports.HistoryStore  = (*GormStore)(nil)
	_ ports.HistoryReader = (*GormStore)(nil)
)
