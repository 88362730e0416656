package insider

import (
	"github.com/brct-james/titans-insider/internal/app/pipeline"
	"github.com/brct-james/titans-insider/internal/app/rules"
	"github.com/brct-james/titans-insider/internal/domain"
	"github.com/brct-james/titans-insider/internal/ports"
)

// Listing is one marketplace entry as the upstream reports it.
type Listing = domain.Listing

// Snapshot is one upstream response. A nil Listings slice means the data
// container was absent.
type Snapshot = domain.Snapshot

// HistoryRecord is the row persisted for every kept listing.
type HistoryRecord = domain.HistoryRecord

// Source fetches one snapshot per cycle (HTTP, file fixtures, or anything custom).
type Source = ports.Source

// HistoryStore persists records in chunks, skipping identifiers that already exist.
type HistoryStore = ports.HistoryStore

// ChunkWriter inserts one chunk inside a store session.
type ChunkWriter = ports.ChunkWriter

// HistoryReader reads stored rows back by item uid.
type HistoryReader = ports.HistoryReader

// IDGenerator assigns row identifiers.
type IDGenerator = ports.IDGenerator

// CycleLock is the lease replicas share so only one writes per period.
type CycleLock = ports.CycleLock

type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// WAL abstracts the spill log for records whose write failed.
type WAL = ports.WAL

type WALStats = ports.WALStats

type WALEntryID = ports.WALEntryID

// FilterRule requires fields to be present for one transaction type.
type FilterRule = pipeline.FilterRule

// CycleReport summarizes one poll.
type CycleReport = pipeline.CycleReport

// RuleSet holds per-item staleness and profit thresholds.
type RuleSet = rules.RuleSet

// RecordBatchHandler receives every chunk written through a callback store.
type RecordBatchHandler func([]HistoryRecord) error

var (
	ErrEmptyPayload = domain.ErrEmptyPayload
)
