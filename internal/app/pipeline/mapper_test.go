package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/brct-james/titans-insider/internal/domain"
)

func sampleListing() domain.Listing {
	return domain.Listing{
		ID:           42,
		TType:        "os",
		UID:          "ironsword",
		Tag1:         strp("uncommon"),
		GoldQty:      3,
		Tier:         i32p(2),
		Order:        i32p(7),
		GoldPrice:    i32p(1500),
		RequestCycle: 9001,
		CreatedAt:    "2023-01-01T00:00:00.000Z",
		UpdatedAt:    "2023-01-01T00:00:10.000Z",
	}
}

func TestMapperCopiesFieldsAndDefaultsPrices(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	m := NewMapper(ContentIDs{}, func() time.Time { return now })

	l := sampleListing()
	r := m.Map(&l)

	if r.ItemID != 42 || r.TType != "os" || r.UID != "ironsword" {
		t.Fatalf("identity fields not copied: %+v", r)
	}
	if r.Tag1 == nil || *r.Tag1 != "uncommon" || r.Tag2 != nil {
		t.Fatalf("tags not copied: %v %v", r.Tag1, r.Tag2)
	}
	if r.Order == nil || *r.Order != 7 || r.CityID != nil {
		t.Fatalf("optional ints not copied: order=%v city=%v", r.Order, r.CityID)
	}
	if r.GoldPrice != 1500 || r.GemsPrice != 0 {
		t.Fatalf("expected gold=1500 gems=0, got %d %d", r.GoldPrice, r.GemsPrice)
	}
	if r.CapturedAt != now.UnixMilli() {
		t.Fatalf("expected captured_at %d, got %d", now.UnixMilli(), r.CapturedAt)
	}
	if r.ID == "" {
		t.Fatalf("expected id to be assigned")
	}
}

func TestContentIDsAreStablePerObservation(t *testing.T) {
	m := NewMapper(nil, nil)
	a := sampleListing()
	b := sampleListing()
	b.GoldQty = 99

	if m.Map(&a).ID != m.Map(&b).ID {
		t.Fatalf("same observation should map to the same id")
	}

	b.UpdatedAt = "2023-01-01T00:00:20.000Z"
	if m.Map(&a).ID == m.Map(&b).ID {
		t.Fatalf("a re-listed entry should get a new id")
	}
}

func TestContentIDsSeparateDistinctListings(t *testing.T) {
	m := NewMapper(nil, nil)
	a := sampleListing()
	a.ID, a.Tag1 = 101, strp("common")

	byID := a
	byID.ID = 202
	byTag := a
	byTag.Tag1 = strp("flawless")
	noTag := a
	noTag.Tag1 = nil
	emptyTag := a
	emptyTag.Tag1 = strp("")
	shifted := a
	shifted.Tag1, shifted.Tag2 = nil, strp("common")

	base := m.Map(&a).ID
	seen := map[string]string{base: "base"}
	for name, l := range map[string]domain.Listing{
		"id": byID, "tag1": byTag, "nil tag": noTag, "empty tag": emptyTag, "shifted tag": shifted,
	} {
		id := m.Map(&l).ID
		if prev, ok := seen[id]; ok {
			t.Fatalf("listing differing by %s collides with %s: %s", name, prev, id)
		}
		seen[id] = name
	}
}

func TestMapperStampsCaptureTimeFromWallClock(t *testing.T) {
	m := NewMapper(nil, nil)
	l := sampleListing()

	before := time.Now().UnixMilli()
	r := m.Map(&l)
	after := time.Now().UnixMilli()

	if r.CapturedAt < before || r.CapturedAt > after {
		t.Fatalf("captured_at %d outside [%d, %d]", r.CapturedAt, before, after)
	}
}

func TestRandomIDsDiffer(t *testing.T) {
	m := NewMapper(RandomIDs{}, nil)
	l := sampleListing()
	if m.Map(&l).ID == m.Map(&l).ID {
		t.Fatalf("random ids should not repeat")
	}
}

func TestMapAllPreservesOrder(t *testing.T) {
	m := NewMapper(nil, nil)
	ls := []domain.Listing{sampleListing(), sampleListing()}
	ls[1].UID = "steelaxe"

	out := m.MapAll(ls)
	if len(out) != 2 || out[0].UID != "ironsword" || out[1].UID != "steelaxe" {
		t.Fatalf("unexpected mapping: %+v", out)
	}
	if len(m.MapAll(nil)) != 0 {
		t.Fatalf("expected no records for no listings")
	}
}

func TestNewIDGenerator(t *testing.T) {
	for _, name := range []string{"", IDStrategyContent, IDStrategyRandom} {
		if _, err := NewIDGenerator(name); err != nil {
			t.Fatalf("strategy %q: %v", name, err)
		}
	}

	_, err := NewIDGenerator("sequential")
	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "sniffer.id_strategy" {
		t.Fatalf("expected config error, got %v", err)
	}
}
