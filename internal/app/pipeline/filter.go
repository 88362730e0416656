package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brct-james/titans-insider/internal/domain"
)

// Predicate reports whether a record should be persisted.
type Predicate func(r *domain.HistoryRecord) bool

// FilterRule requires the listed optional fields on records of one
// transaction type. Records of any other type pass.
type FilterRule struct {
	TType   string   `yaml:"t_type"`
	Require []string `yaml:"require"`
}

// DefaultFilterRules drops order-sell records that carry no order.
func DefaultFilterRules() []FilterRule {
	return []FilterRule{{TType: "os", Require: []string{"order"}}}
}

var optionalFields = map[string]func(r *domain.HistoryRecord) bool{
	"order":   func(r *domain.HistoryRecord) bool { return r.Order != nil },
	"tier":    func(r *domain.HistoryRecord) bool { return r.Tier != nil },
	"city_id": func(r *domain.HistoryRecord) bool { return r.CityID != nil },
	"created": func(r *domain.HistoryRecord) bool { return r.Created != nil },
	"tag1":    func(r *domain.HistoryRecord) bool { return r.Tag1 != nil },
	"tag2":    func(r *domain.HistoryRecord) bool { return r.Tag2 != nil },
	"tag3":    func(r *domain.HistoryRecord) bool { return r.Tag3 != nil },
}

// RequireForType builds a predicate that keeps records of tType only when
// every named field is present.
func RequireForType(tType string, fields ...string) (Predicate, error) {
	if tType == "" {
		return nil, errors.New("t_type is required")
	}
	checks := make([]func(r *domain.HistoryRecord) bool, 0, len(fields))
	for _, f := range fields {
		check, ok := optionalFields[strings.ToLower(f)]
		if !ok {
			return nil, fmt.Errorf("unknown optional field %q", f)
		}
		checks = append(checks, check)
	}
	return func(r *domain.HistoryRecord) bool {
		if r.TType != tType {
			return true
		}
		for _, check := range checks {
			if !check(r) {
				return false
			}
		}
		return true
	}, nil
}

// StalenessLookup resolves how long listings of an item stay fresh.
type StalenessLookup interface {
	StaleAfter(name string) (time.Duration, bool)
}

// DropStale keeps a record unless its item has a staleness threshold and the
// listing was last updated longer than that before the record was captured.
// Records with an unparseable updatedAt pass.
func DropStale(lookup StalenessLookup) Predicate {
	return func(r *domain.HistoryRecord) bool {
		ttl, ok := lookup.StaleAfter(r.UID)
		if !ok {
			return true
		}
		updated, err := time.Parse(time.RFC3339, r.UpdatedAt)
		if err != nil {
			return true
		}
		return time.UnixMilli(r.CapturedAt).Sub(updated) <= ttl
	}
}

// Deduplicator drops records that a business rule marks as incomplete.
type Deduplicator struct {
	preds []Predicate
}

func NewDeduplicator(preds ...Predicate) *Deduplicator {
	return &Deduplicator{preds: preds}
}

// With returns a Deduplicator that also applies preds.
func (d *Deduplicator) With(preds ...Predicate) *Deduplicator {
	all := make([]Predicate, 0, len(d.preds)+len(preds))
	all = append(all, d.preds...)
	return NewDeduplicator(append(all, preds...)...)
}

// NewDeduplicatorFromRules compiles configured rules into predicates.
func NewDeduplicatorFromRules(rules []FilterRule) (*Deduplicator, error) {
	preds := make([]Predicate, 0, len(rules))
	for i, rule := range rules {
		p, err := RequireForType(rule.TType, rule.Require...)
		if err != nil {
			return nil, &domain.ConfigError{Field: fmt.Sprintf("filters[%d]", i), Err: err}
		}
		preds = append(preds, p)
	}
	return NewDeduplicator(preds...), nil
}

// Filter returns the kept records in input order. The input slice is not modified.
func (d *Deduplicator) Filter(records []domain.HistoryRecord) []domain.HistoryRecord {
	out := make([]domain.HistoryRecord, 0, len(records))
	for i := range records {
		if d.keep(&records[i]) {
			out = append(out, records[i])
		}
	}
	return out
}

func (d *Deduplicator) keep(r *domain.HistoryRecord) bool {
	for _, p := range d.preds {
		if !p(r) {
			return false
		}
	}
	return true
}
