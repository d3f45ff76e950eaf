package port

import (
	"context"
	"time"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
)

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// ClearIdempotency removes a key so a failed request can be retried
	ClearIdempotency(ctx context.Context, key string) error

	// GetListing returns nil without error on a cache miss
	GetListing(ctx context.Context, key string) (*domain.Listing, error)
	SetListing(ctx context.Context, key string, listing domain.Listing, ttl time.Duration) error
	InvalidateListings(ctx context.Context, keys ...string) error
}
