// Package sqlbuild renders the history table statements shared by the SQL
// backends.
package sqlbuild

import (
	"strconv"
	"strings"

	"github.com/brct-james/titans-insider/internal/domain"
)

type Placeholder int

const (
	Dollar   Placeholder = iota // $1, $2, ...
	Question                    // ?, ?, ...
)

var columnList = strings.Join(domain.HistoryColumns[:], ",")

// InsertIgnore builds one multi-row insert that skips rows whose uuid exists.
func InsertIgnore(table string, ph Placeholder, records []domain.HistoryRecord) (string, []any) {
	var b strings.Builder
	b.Grow(64 + len(records)*domain.HistoryFieldCount*5)
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(columnList)
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(records)*domain.HistoryFieldCount)
	for i := range records {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(")
		for j := 0; j < domain.HistoryFieldCount; j++ {
			if j > 0 {
				b.WriteString(",")
			}
			writePlaceholder(&b, ph, len(args)+j+1)
		}
		b.WriteString(")")
		args = append(args, records[i].Values()...)
	}

	b.WriteString(" ON CONFLICT (uuid) DO NOTHING")
	return b.String(), args
}

func writePlaceholder(b *strings.Builder, ph Placeholder, n int) {
	if ph == Question {
		b.WriteString("?")
		return
	}
	b.WriteString("$")
	b.WriteString(strconv.Itoa(n))
}

// CreateTable uses only types that Postgres and SQLite both accept.
func CreateTable(table string) []string {
	return []string{
		"CREATE TABLE IF NOT EXISTS " + table + ` (
	uuid TEXT PRIMARY KEY,
	item_id INTEGER NOT NULL,
	t_type TEXT NOT NULL,
	uid TEXT NOT NULL,
	tag1 TEXT,
	tag2 TEXT,
	tag3 TEXT,
	gold_qty INTEGER NOT NULL,
	gems_qty INTEGER NOT NULL,
	created TEXT,
	tier INTEGER,
	item_order INTEGER,
	city_id INTEGER,
	gold_price INTEGER NOT NULL,
	gems_price INTEGER NOT NULL,
	request_cycle INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	db_timestamp BIGINT NOT NULL
)`,
		"CREATE INDEX IF NOT EXISTS " + table + "_uid_idx ON " + table + " (uid)",
	}
}

// SelectByUID orders rows the way the history table is rendered.
func SelectByUID(table string, ph Placeholder) string {
	q := "SELECT " + columnList + " FROM " + table + " WHERE uid = "
	if ph == Question {
		q += "?"
	} else {
		q += "$1"
	}
	return q + " ORDER BY t_type, created_at, uuid"
}

// Targets returns scan destinations for r in HistoryColumns order.
func Targets(r *domain.HistoryRecord) []any {
	return []any{
		&r.ID, &r.ItemID, &r.TType, &r.UID, &r.Tag1, &r.Tag2, &r.Tag3,
		&r.GoldQty, &r.GemsQty, &r.Created, &r.Tier, &r.Order, &r.CityID,
		&r.GoldPrice, &r.GemsPrice, &r.RequestCycle, &r.CreatedAt, &r.UpdatedAt,
		&r.CapturedAt,
	}
}
