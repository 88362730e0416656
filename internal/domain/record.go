package domain

// HistoryFieldCount is the number of columns bound per HistoryRecord in a
// multi-row insert.
const HistoryFieldCount = 19

// HistoryRecord is the append-only persisted form of a Listing.
type HistoryRecord struct {
	ID           string  `json:"uuid"`
	ItemID       int32   `json:"item_id"`
	TType        string  `json:"t_type"`
	UID          string  `json:"uid"`
	Tag1         *string `json:"tag1,omitempty"`
	Tag2         *string `json:"tag2,omitempty"`
	Tag3         *string `json:"tag3,omitempty"`
	GoldQty      int32   `json:"gold_qty"`
	GemsQty      int32   `json:"gems_qty"`
	Created      *string `json:"created,omitempty"`
	Tier         *int32  `json:"tier,omitempty"`
	Order        *int32  `json:"item_order,omitempty"`
	CityID       *int32  `json:"city_id,omitempty"`
	GoldPrice    int32   `json:"gold_price"`
	GemsPrice    int32   `json:"gems_price"`
	RequestCycle int32   `json:"request_cycle"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
	CapturedAt   int64   `json:"db_timestamp"`
}

// HistoryColumns lists the storage columns in bind order.
var HistoryColumns = [HistoryFieldCount]string{
	"uuid", "item_id", "t_type", "uid", "tag1", "tag2", "tag3",
	"gold_qty", "gems_qty", "created", "tier", "item_order", "city_id",
	"gold_price", "gems_price", "request_cycle", "created_at", "updated_at",
	"db_timestamp",
}

// Values returns the record's column values in HistoryColumns order, with
// absent optional fields as untyped nil.
func (r *HistoryRecord) Values() []any {
	return []any{
		r.ID, r.ItemID, r.TType, r.UID, nullable(r.Tag1), nullable(r.Tag2), nullable(r.Tag3),
		r.GoldQty, r.GemsQty, nullable(r.Created), nullable(r.Tier), nullable(r.Order), nullable(r.CityID),
		r.GoldPrice, r.GemsPrice, r.RequestCycle, r.CreatedAt, r.UpdatedAt,
		r.CapturedAt,
	}
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
