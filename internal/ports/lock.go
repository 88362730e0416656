package ports

import (
	"context"
	"time"
)

// CycleLock is a lease shared by replicas so only one of them writes per period.
type CycleLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
