package pipeline

import (
	"time"

	"github.com/brct-james/titans-insider/internal/domain"
	"github.com/brct-james/titans-insider/internal/ports"
)

// Mapper turns upstream listings into history records.
type Mapper struct {
	ids ports.IDGenerator
	now func() time.Time
}

func NewMapper(ids ports.IDGenerator, now func() time.Time) *Mapper {
	if ids == nil {
		ids = ContentIDs{}
	}
	if now == nil {
		now = time.Now
	}
	return &Mapper{ids: ids, now: now}
}

func (m *Mapper) Map(l *domain.Listing) domain.HistoryRecord {
	return domain.HistoryRecord{
		ID:           m.ids.NewID(l),
		ItemID:       l.ID,
		TType:        l.TType,
		UID:          l.UID,
		Tag1:         l.Tag1,
		Tag2:         l.Tag2,
		Tag3:         l.Tag3,
		GoldQty:      l.GoldQty,
		GemsQty:      l.GemsQty,
		Created:      l.Created,
		Tier:         l.Tier,
		Order:        l.Order,
		CityID:       l.CityID,
		GoldPrice:    orZero(l.GoldPrice),
		GemsPrice:    orZero(l.GemsPrice),
		RequestCycle: l.RequestCycle,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
		CapturedAt:   m.now().UnixMilli(),
	}
}

func (m *Mapper) MapAll(listings []domain.Listing) []domain.HistoryRecord {
	out := make([]domain.HistoryRecord, 0, len(listings))
	for i := range listings {
		out = append(out, m.Map(&listings[i]))
	}
	return out
}

func orZero(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
