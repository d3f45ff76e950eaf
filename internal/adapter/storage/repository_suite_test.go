package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
	"github.com/grupoimpulso/seat-sales/internal/port"
)

// runRepositorySuite exercises the behaviour every DatabaseRepository must share.
func runRepositorySuite(t *testing.T, repo port.DatabaseRepository) {
	t.Run("ReserveUntilSoldOut", func(t *testing.T) { testReserveUntilSoldOut(t, repo) })
	t.Run("ReserveUnpublished", func(t *testing.T) { testReserveUnpublished(t, repo) })
	t.Run("ReserveMissing", func(t *testing.T) { testReserveMissing(t, repo) })
	t.Run("ConcurrentReserve", func(t *testing.T) { testConcurrentReserve(t, repo) })
	t.Run("TransitionReleasesSeat", func(t *testing.T) { testTransitionReleasesSeat(t, repo) })
	t.Run("TransitionLostRace", func(t *testing.T) { testTransitionLostRace(t, repo) })
	t.Run("ReleaseAfterShrink", func(t *testing.T) { testReleaseAfterShrink(t, repo) })
	t.Run("Resize", func(t *testing.T) { testResize(t, repo) })
	t.Run("UpdateAllOrNothing", func(t *testing.T) { testUpdateAllOrNothing(t, repo) })
	t.Run("SlugUnique", func(t *testing.T) { testSlugUnique(t, repo) })
	t.Run("UpdateKeepsCapacity", func(t *testing.T) { testUpdateKeepsCapacity(t, repo) })
	t.Run("DeleteWithSales", func(t *testing.T) { testDeleteWithSales(t, repo) })
	t.Run("PendingSales", func(t *testing.T) { testPendingSales(t, repo) })
	t.Run("Users", func(t *testing.T) { testUsers(t, repo) })
}

func newTestListing(slots int, status domain.ListingStatus) domain.Listing {
	now := time.Now().UTC().Truncate(time.Millisecond)
	id := uuid.NewString()
	return domain.Listing{
		ID:             id,
		Kind:           domain.ListingKindSeminar,
		Title:          "Negociación colectiva " + id[:8],
		Slug:           "negociacion-colectiva-" + id[:8],
		Description:    "Taller práctico",
		Instructor:     "Equipo docente",
		Modality:       domain.ModalityVirtual,
		Price:          45000,
		TotalSlots:     slots,
		AvailableSlots: slots,
		Status:         status,
		StartsAt:       now.Add(72 * time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func buildTestSale(l domain.Listing) domain.Sale {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return domain.Sale{
		ID:            uuid.NewString(),
		SaleNumber:    domain.NewSaleNumber(l.Kind, now),
		ListingID:     l.ID,
		ListingKind:   l.Kind,
		Total:         l.Price,
		PaymentMethod: domain.PaymentMethodTransbank,
		Status:        domain.SaleStatusPending,
		SaleDate:      now,
		CreatedAt:     now,
		UpdatedAt:     now,
		Customer: domain.Customer{
			Name:  "María Soto",
			Email: "maria@example.cl",
			Phone: "+56912345678",
			Rut:   "12.345.678-5",
		},
	}
}

func seedListing(t *testing.T, repo port.DatabaseRepository, slots int, status domain.ListingStatus) domain.Listing {
	t.Helper()
	l := newTestListing(slots, status)
	require.NoError(t, repo.CreateListing(context.Background(), l))
	return l
}

func availableSlots(t *testing.T, repo port.DatabaseRepository, id string) int {
	t.Helper()
	l, err := repo.GetListing(context.Background(), id)
	require.NoError(t, err)
	return l.AvailableSlots
}

func testReserveUntilSoldOut(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	l := seedListing(t, repo, 2, domain.ListingStatusPublished)

	for i := 0; i < 2; i++ {
		sale, err := repo.ReserveSeat(ctx, l.ID, buildTestSale)
		require.NoError(t, err)
		assert.Equal(t, domain.SaleStatusPending, sale.Status)
		assert.Equal(t, l.Price, sale.Total)
	}

	_, err := repo.ReserveSeat(ctx, l.ID, buildTestSale)
	assert.ErrorIs(t, err, domain.ErrSoldOut)
	assert.Equal(t, 0, availableSlots(t, repo, l.ID))
}

func testReserveUnpublished(t *testing.T, repo port.DatabaseRepository) {
	l := seedListing(t, repo, 5, domain.ListingStatusDraft)

	_, err := repo.ReserveSeat(context.Background(), l.ID, buildTestSale)
	assert.ErrorIs(t, err, domain.ErrNotAvailable)
	assert.Equal(t, 5, availableSlots(t, repo, l.ID))
}

func testReserveMissing(t *testing.T, repo port.DatabaseRepository) {
	_, err := repo.ReserveSeat(context.Background(), uuid.NewString(), buildTestSale)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testConcurrentReserve(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	const seats, buyers = 10, 40
	l := seedListing(t, repo, seats, domain.ListingStatusPublished)

	var (
		wg       sync.WaitGroup
		success  atomic.Int32
		soldOut  atomic.Int32
		unexpect atomic.Int32
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.ReserveSeat(ctx, l.ID, buildTestSale)
			switch {
			case err == nil:
				success.Add(1)
			case errors.Is(err, domain.ErrSoldOut):
				soldOut.Add(1)
			default:
				unexpect.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(seats), success.Load())
	assert.Equal(t, int32(buyers-seats), soldOut.Load())
	assert.Zero(t, unexpect.Load())
	assert.Equal(t, 0, availableSlots(t, repo, l.ID))

	sales, err := repo.ListSales(ctx, domain.SaleFilter{ListingID: l.ID, Limit: domain.MaxPageSize})
	require.NoError(t, err)
	assert.Len(t, sales, seats)
}

func testTransitionReleasesSeat(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	l := seedListing(t, repo, 3, domain.ListingStatusPublished)
	sale, err := repo.ReserveSeat(ctx, l.ID, buildTestSale)
	require.NoError(t, err)
	require.Equal(t, 2, availableSlots(t, repo, l.ID))

	paid, err := repo.TransitionSale(ctx, domain.SaleTransition{
		SaleID: sale.ID, From: domain.SaleStatusPending, To: domain.SaleStatusPaid,
		TransactionID: "tx-123", At: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusPaid, paid.Status)
	assert.Equal(t, "tx-123", paid.TransactionID)
	assert.Equal(t, 2, availableSlots(t, repo, l.ID))

	refunded, err := repo.TransitionSale(ctx, domain.SaleTransition{
		SaleID: sale.ID, From: domain.SaleStatusPaid, To: domain.SaleStatusRefunded,
		ReleaseSeat: true, At: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusRefunded, refunded.Status)
	assert.Equal(t, "tx-123", refunded.TransactionID)
	assert.Equal(t, 3, availableSlots(t, repo, l.ID))
}

func testTransitionLostRace(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	l := seedListing(t, repo, 1, domain.ListingStatusPublished)
	sale, err := repo.ReserveSeat(ctx, l.ID, buildTestSale)
	require.NoError(t, err)

	reject := domain.SaleTransition{
		SaleID: sale.ID, From: domain.SaleStatusPending, To: domain.SaleStatusRejected,
		ReleaseSeat: true, At: time.Now().UTC(),
	}
	_, err = repo.TransitionSale(ctx, reject)
	require.NoError(t, err)

	// a second writer still believing the sale is pending must lose
	_, err = repo.TransitionSale(ctx, reject)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 1, availableSlots(t, repo, l.ID))

	_, err = repo.TransitionSale(ctx, domain.SaleTransition{SaleID: uuid.NewString(), From: domain.SaleStatusPending, To: domain.SaleStatusPaid})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testReleaseAfterShrink(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	l := seedListing(t, repo, 2, domain.ListingStatusPublished)
	sale, err := repo.ReserveSeat(ctx, l.ID, buildTestSale)
	require.NoError(t, err)

	// shrink down to the one held seat
	require.NoError(t, resize(ctx, repo, l.ID, 1))

	_, err = repo.TransitionSale(ctx, domain.SaleTransition{
		SaleID: sale.ID, From: domain.SaleStatusPending, To: domain.SaleStatusRejected,
		ReleaseSeat: true, At: time.Now().UTC(),
	})
	require.NoError(t, err)

	got, err := repo.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalSlots)
	assert.Equal(t, 1, got.AvailableSlots)
}

// resize writes the stored listing back with a new capacity.
func resize(ctx context.Context, repo port.DatabaseRepository, id string, total int) error {
	l, err := repo.GetListing(ctx, id)
	if err != nil {
		return err
	}
	return repo.UpdateListing(ctx, *l, &total)
}

func testResize(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	l := seedListing(t, repo, 5, domain.ListingStatusPublished)
	for i := 0; i < 3; i++ {
		_, err := repo.ReserveSeat(ctx, l.ID, buildTestSale)
		require.NoError(t, err)
	}

	require.NoError(t, resize(ctx, repo, l.ID, 8))
	grown, err := repo.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, grown.TotalSlots)
	assert.Equal(t, 5, grown.AvailableSlots)

	require.NoError(t, resize(ctx, repo, l.ID, 3))
	shrunk, err := repo.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, shrunk.TotalSlots)
	assert.Equal(t, 0, shrunk.AvailableSlots)

	assert.ErrorIs(t, resize(ctx, repo, l.ID, 2), domain.ErrInvalidCapacity)

	missing := newTestListing(5, domain.ListingStatusDraft)
	two := 2
	assert.ErrorIs(t, repo.UpdateListing(ctx, missing, &two), domain.ErrNotFound)
}

// A refused update must not leave half of itself behind.
func testUpdateAllOrNothing(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	taken := seedListing(t, repo, 5, domain.ListingStatusPublished)
	l := seedListing(t, repo, 5, domain.ListingStatusPublished)
	_, err := repo.ReserveSeat(ctx, l.ID, buildTestSale)
	require.NoError(t, err)

	clash := l
	clash.Title = taken.Title
	clash.Slug = taken.Slug
	ten := 10
	assert.ErrorIs(t, repo.UpdateListing(ctx, clash, &ten), domain.ErrSlugTaken)

	shrink := l
	shrink.Title = "Otro título"
	shrink.Price = 1
	zero := 0
	assert.ErrorIs(t, repo.UpdateListing(ctx, shrink, &zero), domain.ErrInvalidCapacity)

	got, err := repo.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.Title, got.Title)
	assert.Equal(t, l.Slug, got.Slug)
	assert.Equal(t, l.Price, got.Price)
	assert.Equal(t, 5, got.TotalSlots)
	assert.Equal(t, 4, got.AvailableSlots)
}

func testSlugUnique(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	l := seedListing(t, repo, 5, domain.ListingStatusPublished)

	dup := newTestListing(5, domain.ListingStatusDraft)
	dup.Slug = l.Slug
	assert.ErrorIs(t, repo.CreateListing(ctx, dup), domain.ErrSlugTaken)

	course := newTestListing(5, domain.ListingStatusDraft)
	course.Kind = domain.ListingKindCourse
	course.Slug = l.Slug
	assert.NoError(t, repo.CreateListing(ctx, course))

	got, err := repo.GetListingBySlug(ctx, domain.ListingKindCourse, l.Slug)
	require.NoError(t, err)
	assert.Equal(t, course.ID, got.ID)
}

func testUpdateKeepsCapacity(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	l := seedListing(t, repo, 5, domain.ListingStatusPublished)
	_, err := repo.ReserveSeat(ctx, l.ID, buildTestSale)
	require.NoError(t, err)

	l.Title = "Nuevo título"
	l.Price = 1000
	l.TotalSlots = 50
	l.AvailableSlots = 50
	require.NoError(t, repo.UpdateListing(ctx, l, nil))

	got, err := repo.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nuevo título", got.Title)
	assert.Equal(t, int64(1000), got.Price)
	assert.Equal(t, 5, got.TotalSlots)
	assert.Equal(t, 4, got.AvailableSlots)

	missing := newTestListing(1, domain.ListingStatusDraft)
	assert.ErrorIs(t, repo.UpdateListing(ctx, missing, nil), domain.ErrNotFound)
}

func testDeleteWithSales(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	l := seedListing(t, repo, 5, domain.ListingStatusPublished)
	_, err := repo.ReserveSeat(ctx, l.ID, buildTestSale)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.DeleteListing(ctx, l.ID), domain.ErrConflict)

	empty := seedListing(t, repo, 5, domain.ListingStatusDraft)
	require.NoError(t, repo.DeleteListing(ctx, empty.ID))
	_, err = repo.GetListing(ctx, empty.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteListing(ctx, empty.ID), domain.ErrNotFound)
}

func testPendingSales(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	l := seedListing(t, repo, 5, domain.ListingStatusPublished)

	old := time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Millisecond)
	stale, err := repo.ReserveSeat(ctx, l.ID, func(l domain.Listing) domain.Sale {
		s := buildTestSale(l)
		s.CreatedAt = old
		return s
	})
	require.NoError(t, err)
	_, err = repo.ReserveSeat(ctx, l.ID, buildTestSale)
	require.NoError(t, err)

	pending, err := repo.ListPendingSales(ctx, time.Now().UTC().Add(-time.Hour), 100)
	require.NoError(t, err)

	var ids []string
	for _, s := range pending {
		ids = append(ids, s.ID)
	}
	assert.Contains(t, ids, stale.ID)
	for _, s := range pending {
		assert.Equal(t, domain.SaleStatusPending, s.Status)
		assert.True(t, s.CreatedAt.Before(time.Now().UTC().Add(-time.Hour)))
	}

	byNumber, err := repo.GetSaleByNumber(ctx, stale.SaleNumber)
	require.NoError(t, err)
	assert.Equal(t, stale.ID, byNumber.ID)
	assert.Equal(t, "12.345.678-5", byNumber.Rut)
}

func testUsers(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	email := "Admin-" + uuid.NewString()[:8] + "@Example.cl"
	u := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         "Admin",
		PasswordHash: "hash",
		Role:         domain.RoleAdmin,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, repo.CreateUser(ctx, u))

	got, err := repo.GetUserByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, domain.RoleAdmin, got.Role)

	u.ID = uuid.NewString()
	assert.ErrorIs(t, repo.CreateUser(ctx, u), domain.ErrConflict)

	ok, err := repo.HasRole(ctx, domain.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, ok)
}
