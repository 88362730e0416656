package ports

import (
	"context"

	"github.com/brct-james/titans-insider/internal/domain"
)

type Source interface {
	Fetch(ctx context.Context) (*domain.Snapshot, error)
	Name() string
}
