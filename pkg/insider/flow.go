package insider

import (
	"context"
	"fmt"
)

// Flow chains configuration, listing input and history output into a Runtime:
//
//	flow, _ := insider.Conf("config.yaml")
//	rt, _ := flow.StreamIN(insider.StreamInSource(src)).StreamOUT(insider.StreamOutStore(db))
type Flow struct {
	cfg  *Config
	opts []RuntimeOption
}

type (
	// FlowOption adjusts a Flow right after its config is loaded.
	FlowOption func(*Flow)
	// StreamInOption overrides where listings come from and how cycles are coordinated.
	StreamInOption func(*Flow)
	// StreamOutOption overrides where history rows go.
	StreamOutOption func(*Flow)
)

// Conf reads the YAML config at path.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

func (f *Flow) Config() *Config { return f.cfg }

func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// StreamOUT applies opts and builds the Runtime.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*Runtime, error) {
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return NewRuntime(f.cfg, f.opts...)
}

// Run builds the Runtime and sniffs until ctx is cancelled.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	rt, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

func (f *Flow) add(opt RuntimeOption) { f.opts = append(f.opts, opt) }

// WithFlowOptions passes raw runtime options through Conf.
func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return func(f *Flow) {
		for _, opt := range opts {
			if opt != nil {
				f.add(opt)
			}
		}
	}
}

func StreamInSource(src Source) StreamInOption {
	return func(f *Flow) {
		if src != nil {
			f.add(WithSource(src))
		}
	}
}

// StreamInWAL replaces the file spill log from wal.dir.
func StreamInWAL(w WAL) StreamInOption {
	return func(f *Flow) {
		if w != nil {
			f.add(WithWAL(w))
		}
	}
}

// StreamInLock shares a cycle lease with other replicas.
func StreamInLock(l CycleLock) StreamInOption {
	return func(f *Flow) {
		if l != nil {
			f.add(WithCycleLock(l))
		}
	}
}

// StreamInRules skips reading rule files and uses set.
func StreamInRules(set RuleSet) StreamInOption {
	return func(f *Flow) { f.add(WithRuleSet(set)) }
}

// StreamInObservability replaces the zap logger and Prometheus metrics.
func StreamInObservability(obs Observability) StreamInOption {
	return func(f *Flow) {
		if obs != nil {
			f.add(WithObservability(obs))
		}
	}
}

func StreamOutStore(s HistoryStore) StreamOutOption {
	return func(f *Flow) {
		if s != nil {
			f.add(WithStore(s))
		}
	}
}

// StreamOutIDs overrides sniffer.id_strategy.
func StreamOutIDs(ids IDGenerator) StreamOutOption {
	return func(f *Flow) {
		if ids != nil {
			f.add(WithIDGenerator(ids))
		}
	}
}

// StreamOutCallback hands every written batch to fn instead of a database.
func StreamOutCallback(name string, fn RecordBatchHandler) StreamOutOption {
	return func(f *Flow) { f.add(WithStore(NewCallbackStore(name, fn))) }
}
