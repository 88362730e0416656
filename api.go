package insider

import (
	base "github.com/brct-james/titans-insider/pkg/insider"
)

// Re-exported errors for convenience.
var (
	ErrEmptyPayload       = base.ErrEmptyPayload
	ErrChannelStoreClosed = base.ErrChannelStoreClosed
	ErrHistoryUnsupported = base.ErrHistoryUnsupported
)

// Type aliases so consumers can import github.com/brct-james/titans-insider directly.
type (
	Config             = base.Config
	Policy             = base.Policy
	UpstreamConfig     = base.UpstreamConfig
	StoreConfig        = base.StoreConfig
	MetricsConfig      = base.MetricsConfig
	WALConfig          = base.WALConfig
	LockConfig         = base.LockConfig
	Flow               = base.Flow
	FlowOption         = base.FlowOption
	StreamInOption     = base.StreamInOption
	StreamOutOption    = base.StreamOutOption
	Runtime            = base.Runtime
	RuntimeOption      = base.RuntimeOption
	Listing            = base.Listing
	Snapshot           = base.Snapshot
	HistoryRecord      = base.HistoryRecord
	RecordBatchHandler = base.RecordBatchHandler
	Source             = base.Source
	HistoryStore       = base.HistoryStore
	ChunkWriter        = base.ChunkWriter
	CycleLock          = base.CycleLock
	WAL                = base.WAL
	Observability      = base.Observability
	CycleReport        = base.CycleReport
	RuleSet            = base.RuleSet
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

// Store adapters.
func NewCallbackStore(name string, fn RecordBatchHandler) HistoryStore {
	return base.NewCallbackStore(name, fn)
}

func NewChannelStore(name string, buffer int) (HistoryStore, <-chan []HistoryRecord, func()) {
	return base.NewChannelStore(name, buffer)
}

func StreamOutStore(s HistoryStore) StreamOutOption {
	return base.StreamOutStore(s)
}

func StreamOutCallback(name string, fn RecordBatchHandler) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}
