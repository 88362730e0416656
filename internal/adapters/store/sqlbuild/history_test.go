package sqlbuild

import (
	"strings"
	"testing"

	"github.com/brct-james/titans-insider/internal/domain"
)

func TestInsertIgnoreDollarPlaceholders(t *testing.T) {
	records := []domain.HistoryRecord{{ID: "a"}, {ID: "b"}}
	q, args := InsertIgnore("item_hist", Dollar, records)

	if len(args) != 2*domain.HistoryFieldCount {
		t.Fatalf("expected %d args, got %d", 2*domain.HistoryFieldCount, len(args))
	}
	if args[0] != "a" || args[domain.HistoryFieldCount] != "b" {
		t.Fatalf("args not in record order: %v %v", args[0], args[domain.HistoryFieldCount])
	}
	if !strings.HasPrefix(q, "INSERT INTO item_hist (uuid,item_id,") {
		t.Fatalf("unexpected prefix: %s", q[:40])
	}
	if !strings.Contains(q, "($1,$2,") || !strings.Contains(q, ",$38)") || strings.Contains(q, "$39") {
		t.Fatalf("unexpected placeholders: %s", q)
	}
	if !strings.HasSuffix(q, " ON CONFLICT (uuid) DO NOTHING") {
		t.Fatalf("missing conflict clause: %s", q)
	}
}

func TestInsertIgnoreQuestionPlaceholders(t *testing.T) {
	q, _ := InsertIgnore("item_hist", Question, []domain.HistoryRecord{{ID: "a"}})
	want := "VALUES (" + strings.TrimSuffix(strings.Repeat("?,", domain.HistoryFieldCount), ",") + ")"
	if !strings.Contains(q, want) || strings.Contains(q, "$") {
		t.Fatalf("unexpected statement: %s", q)
	}
}

func TestSelectByUID(t *testing.T) {
	if q := SelectByUID("h", Dollar); !strings.HasSuffix(q, "FROM h WHERE uid = $1 ORDER BY t_type, created_at, uuid") {
		t.Fatalf("unexpected select: %s", q)
	}
	if q := SelectByUID("h", Question); !strings.Contains(q, "uid = ?") {
		t.Fatalf("unexpected select: %s", q)
	}
}
