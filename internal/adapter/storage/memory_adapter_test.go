package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
)

func TestMemoryAdapter(t *testing.T) {
	runRepositorySuite(t, NewMemoryAdapter())
}

func TestMemoryAdapter_ReleaseNeverExceedsTotal(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAdapter()
	l := seedListing(t, repo, 2, domain.ListingStatusPublished)
	sale, err := repo.ReserveSeat(ctx, l.ID, buildTestSale)
	require.NoError(t, err)

	// force the counter back to full behind the store's back
	repo.listings[l.ID].AvailableSlots = 2

	_, err = repo.TransitionSale(ctx, domain.SaleTransition{
		SaleID: sale.ID, From: domain.SaleStatusPending, To: domain.SaleStatusRejected,
		ReleaseSeat: true, At: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, availableSlots(t, repo, l.ID))
}

func TestMemoryAdapter_ListOrdering(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAdapter()

	early := newTestListing(1, domain.ListingStatusPublished)
	early.StartsAt = time.Now().Add(24 * time.Hour)
	late := newTestListing(1, domain.ListingStatusPublished)
	late.StartsAt = time.Now().Add(48 * time.Hour)
	late.Featured = true
	draft := newTestListing(1, domain.ListingStatusDraft)
	for _, l := range []domain.Listing{early, late, draft} {
		require.NoError(t, repo.CreateListing(ctx, l))
	}

	published, err := repo.ListListings(ctx, domain.ListingFilter{Kind: domain.ListingKindSeminar, PublishedOnly: true})
	require.NoError(t, err)
	require.Len(t, published, 2)
	assert.Equal(t, late.ID, published[0].ID)
	assert.Equal(t, early.ID, published[1].ID)

	featured, err := repo.ListListings(ctx, domain.ListingFilter{PublishedOnly: true, FeaturedOnly: true})
	require.NoError(t, err)
	require.Len(t, featured, 1)
	assert.Equal(t, late.ID, featured[0].ID)

	all, err := repo.ListListings(ctx, domain.ListingFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	courses, err := repo.ListListings(ctx, domain.ListingFilter{Kind: domain.ListingKindCourse})
	require.NoError(t, err)
	assert.Empty(t, courses)
}

func TestMemoryAdapter_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAdapter()
	l := seedListing(t, repo, 3, domain.ListingStatusPublished)

	got, err := repo.GetListing(ctx, l.ID)
	require.NoError(t, err)
	got.AvailableSlots = 0

	assert.Equal(t, 3, availableSlots(t, repo, l.ID))
}
