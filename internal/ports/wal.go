package ports

import "github.com/brct-james/titans-insider/internal/domain"

type WALEntryID uint64

type WAL interface {
	Append(r *domain.HistoryRecord) (WALEntryID, error)
	Iterate(from WALEntryID, fn func(id WALEntryID, r *domain.HistoryRecord) error) error
	Commit(upto WALEntryID) error
	TruncateCommitted() error
	Stats() WALStats
}

type WALStats struct {
	OldestUncommitted WALEntryID
	LatestAppended    WALEntryID
	SizeBytes         int64
}
