package port

import (
	"context"
	"time"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
)

type ListingRepository interface {
	// CreateListing inserts a listing, failing with domain.ErrSlugTaken on a duplicate slug
	CreateListing(ctx context.Context, listing domain.Listing) error

	GetListing(ctx context.Context, id string) (*domain.Listing, error)
	GetListingBySlug(ctx context.Context, kind domain.ListingKind, slug string) (*domain.Listing, error)
	ListListings(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error)

	// UpdateListing writes every field except TotalSlots and AvailableSlots in
	// one atomic write. A non-nil totalSlots also sets TotalSlots and shifts
	// AvailableSlots by the same delta, failing with domain.ErrInvalidCapacity
	// (and writing nothing) if held seats exceed the new total
	UpdateListing(ctx context.Context, listing domain.Listing, totalSlots *int) error

	// DeleteListing removes a listing with no sales, domain.ErrConflict otherwise
	DeleteListing(ctx context.Context, id string) error
}

type SaleRepository interface {
	// ReserveSeat atomically takes one seat of a published listing and inserts
	// the pending sale produced by build. build runs against the listing state
	// the decrement was applied to.
	ReserveSeat(ctx context.Context, listingID string, build func(domain.Listing) domain.Sale) (*domain.Sale, error)

	// TransitionSale applies a status compare-and-set, releasing one seat capped
	// at TotalSlots when requested; domain.ErrConflict if the sale left From
	TransitionSale(ctx context.Context, t domain.SaleTransition) (*domain.Sale, error)

	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	GetSaleByNumber(ctx context.Context, saleNumber string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)

	// ListPendingSales returns pending sales created before the cutoff, oldest first
	ListPendingSales(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Sale, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	HasRole(ctx context.Context, role domain.Role) (bool, error)
}

type DatabaseRepository interface {
	ListingRepository
	SaleRepository
	UserRepository
}
