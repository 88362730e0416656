package ports

import "github.com/brct-james/titans-insider/internal/domain"

type Observability interface {
	LogDebug(msg string, fields ...Field)
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)

	// RecordDLQ reports a spilled record given up on after repeated replays.
	RecordDLQ(id WALEntryID, r *domain.HistoryRecord, err error)
}

type Field struct {
	Key   string
	Value any
}
