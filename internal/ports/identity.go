package ports

import "github.com/brct-james/titans-insider/internal/domain"

// IDGenerator assigns the storage row identifier for a listing.
type IDGenerator interface {
	NewID(l *domain.Listing) string
	Name() string
}
