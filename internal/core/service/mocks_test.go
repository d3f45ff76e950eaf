package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/grupoimpulso/seat-sales/internal/adapter/storage"
	"github.com/grupoimpulso/seat-sales/internal/core/domain"
	"github.com/grupoimpulso/seat-sales/internal/port"
)

// Mock CacheRepository
type mockCacheRepo struct {
	mu             sync.Mutex
	idempotencySet map[string]bool
	listings       map[string]domain.Listing
	listingReads   int
	failSet        error
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{
		idempotencySet: make(map[string]bool),
		listings:       make(map[string]domain.Listing),
	}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSet != nil {
		return false, m.failSet
	}
	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) ClearIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotencySet, key)
	return nil
}

func (m *mockCacheRepo) hasKey(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idempotencySet[key]
}

func (m *mockCacheRepo) GetListing(ctx context.Context, key string) (*domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.listings[key]
	if !ok {
		return nil, nil
	}
	m.listingReads++
	return &l, nil
}

func (m *mockCacheRepo) SetListing(ctx context.Context, key string, listing domain.Listing, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[key] = listing
	return nil
}

func (m *mockCacheRepo) InvalidateListings(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.listings, k)
	}
	return nil
}

// Mock PaymentGateway
type mockGateway struct {
	err   error
	calls atomic.Int32
}

func (g *mockGateway) Checkout(ctx context.Context, sale domain.Sale) (string, error) {
	g.calls.Add(1)
	if g.err != nil {
		return "", g.err
	}
	return "https://pay.example.test/" + string(sale.PaymentMethod) + "/" + sale.SaleNumber, nil
}

func (g *mockGateway) VerifyCallback(method domain.PaymentMethod, payload []byte, signature string) error {
	return nil
}

// Mock EventSink
type recordingSink struct {
	mu     sync.Mutex
	events []domain.SaleEvent
}

func (r *recordingSink) Emit(e domain.SaleEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) ofType(t domain.SaleEventType) []domain.SaleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SaleEvent
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// flakyRepo injects failures in front of a real repository.
type flakyRepo struct {
	port.DatabaseRepository

	getSaleFailures  atomic.Int32
	transitionLosses atomic.Int32
	transitionHook   func()
	transitionCalls  atomic.Int32
	getSaleCalls     atomic.Int32
}

var errTransient = errors.New("connection reset by peer")

func (f *flakyRepo) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	f.getSaleCalls.Add(1)
	if f.getSaleFailures.Load() > 0 {
		f.getSaleFailures.Add(-1)
		return nil, errTransient
	}
	return f.DatabaseRepository.GetSale(ctx, id)
}

func (f *flakyRepo) TransitionSale(ctx context.Context, t domain.SaleTransition) (*domain.Sale, error) {
	f.transitionCalls.Add(1)
	if f.transitionHook != nil {
		f.transitionHook()
	}
	if f.transitionLosses.Load() > 0 {
		f.transitionLosses.Add(-1)
		return nil, domain.ErrConflict
	}
	return f.DatabaseRepository.TransitionSale(ctx, t)
}

func seedListing(t *testing.T, repo port.ListingRepository, slots int, status domain.ListingStatus) domain.Listing {
	t.Helper()
	now := time.Now().UTC()
	id := uuid.NewString()
	l := domain.Listing{
		ID:             id,
		Kind:           domain.ListingKindSeminar,
		Title:          "Liderazgo sindical " + id[:6],
		Slug:           "liderazgo-sindical-" + id[:6],
		Description:    "Herramientas para dirigentes",
		Modality:       domain.ModalityHybrid,
		Price:          35000,
		TotalSlots:     slots,
		AvailableSlots: slots,
		Status:         status,
		StartsAt:       now.Add(7 * 24 * time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, repo.CreateListing(context.Background(), l))
	return l
}

func validReserve(listingID string) ReserveRequest {
	return ReserveRequest{
		ListingID:     listingID,
		CustomerName:  "Juan Pérez",
		CustomerEmail: "Juan.Perez@Example.cl",
		CustomerPhone: "+56 9 8765 4321",
		CustomerRut:   "11.111.111-1",
		PaymentMethod: domain.PaymentMethodMercadoPago,
	}
}

func available(t *testing.T, repo port.ListingRepository, id string) int {
	t.Helper()
	l, err := repo.GetListing(context.Background(), id)
	require.NoError(t, err)
	return l.AvailableSlots
}

type fixture struct {
	db          *storage.MemoryAdapter
	cache       *mockCacheRepo
	gateway     *mockGateway
	events      *recordingSink
	sales       *SaleService
	reservation *ReservationService
}

func newFixture() *fixture {
	f := &fixture{
		db:      storage.NewMemoryAdapter(),
		cache:   newMockCacheRepo(),
		gateway: &mockGateway{},
		events:  &recordingSink{},
	}
	f.sales = NewSaleService(f.db, f.cache, f.events)
	f.reservation = NewReservationService(f.db, f.cache, f.gateway, f.sales, f.events)
	return f
}

func (f *fixture) reserve(t *testing.T, listingID string) *domain.Sale {
	t.Helper()
	sale, err := f.reservation.Reserve(context.Background(), validReserve(listingID))
	require.NoError(t, err)
	return sale
}
