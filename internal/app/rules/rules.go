package rules

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/brct-james/titans-insider/internal/domain"
)

const DefaultPattern = "rules/**/rules.yaml"

// RuleSet holds per-item thresholds loaded at startup. It is not modified
// after Load returns.
type RuleSet struct {
	Staleness map[string]uint32 // seconds until a listing is considered stale
	Profit    map[string]uint32 // minimum profit per call
	Files     []string
}

// StaleAfter returns how long a listing of item name stays fresh.
func (r RuleSet) StaleAfter(name string) (time.Duration, bool) {
	s, ok := r.Staleness[name]
	if !ok {
		return 0, false
	}
	return time.Duration(s) * time.Second, true
}

// MinProfit returns the configured minimum profit per call for item name.
func (r RuleSet) MinProfit(name string) (uint32, bool) {
	v, ok := r.Profit[name]
	return v, ok
}

func (r RuleSet) Len() int { return len(r.Staleness) + len(r.Profit) }

// entry is one list element of a rules file. Exactly one threshold key is
// expected; when both appear the staleness one wins.
type entry struct {
	Name             string  `yaml:"name"`
	SecondsTillStale *uint32 `yaml:"seconds_till_stale"`
	MinProfitPerCall *uint32 `yaml:"min_profit_per_call"`
}

// Load reads every file matching pattern in lexical order. Later files
// override earlier ones by name. No match yields an empty RuleSet.
func Load(pattern string) (RuleSet, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	set := RuleSet{Staleness: map[string]uint32{}, Profit: map[string]uint32{}}

	files, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return set, &domain.ConfigError{Field: "rules.pattern", Err: err}
	}
	sort.Strings(files)

	for _, path := range files {
		if err := set.loadFile(path); err != nil {
			return RuleSet{}, err
		}
		set.Files = append(set.Files, path)
	}
	return set, nil
}

func (r *RuleSet) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &domain.ConfigError{Field: path, Err: err}
	}
	var entries []entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return &domain.ConfigError{Field: path, Err: err}
	}
	for i, e := range entries {
		field := fmt.Sprintf("%s[%d]", path, i)
		if e.Name == "" {
			return &domain.ConfigError{Field: field, Err: errors.New("name is required")}
		}
		switch {
		case e.SecondsTillStale != nil:
			r.Staleness[e.Name] = *e.SecondsTillStale
		case e.MinProfitPerCall != nil:
			r.Profit[e.Name] = *e.MinProfitPerCall
		default:
			return &domain.ConfigError{Field: field, Err: errors.New("expected seconds_till_stale or min_profit_per_call")}
		}
	}
	return nil
}
