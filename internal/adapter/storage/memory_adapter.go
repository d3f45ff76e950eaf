package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
)

// MemoryAdapter keeps everything in process. It has no conditional update
// primitive, so a single mutex serialises every mutation, seat changes
// included.
type MemoryAdapter struct {
	mu       sync.Mutex
	listings map[string]*domain.Listing
	sales    map[string]*domain.Sale
	users    map[string]*domain.User
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		listings: make(map[string]*domain.Listing),
		sales:    make(map[string]*domain.Sale),
		users:    make(map[string]*domain.User),
	}
}

func (m *MemoryAdapter) CreateListing(ctx context.Context, listing domain.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range m.listings {
		if l.Kind == listing.Kind && l.Slug == listing.Slug {
			return domain.ErrSlugTaken
		}
	}
	m.listings[listing.ID] = &listing
	return nil
}

func (m *MemoryAdapter) GetListing(ctx context.Context, id string) (*domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.listings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *l
	return &out, nil
}

func (m *MemoryAdapter) GetListingBySlug(ctx context.Context, kind domain.ListingKind, slug string) (*domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range m.listings {
		if l.Kind == kind && l.Slug == slug {
			out := *l
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MemoryAdapter) ListListings(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error) {
	m.mu.Lock()
	var out []domain.Listing
	for _, l := range m.listings {
		if filter.Kind != "" && l.Kind != filter.Kind {
			continue
		}
		if filter.PublishedOnly && l.Status != domain.ListingStatusPublished {
			continue
		}
		if filter.FeaturedOnly && !l.Featured {
			continue
		}
		out = append(out, *l)
	}
	m.mu.Unlock()

	if filter.PublishedOnly {
		sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.After(out[j].StartsAt) })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	return window(out, filter.Page, filter.Limit), nil
}

func (m *MemoryAdapter) UpdateListing(ctx context.Context, listing domain.Listing, totalSlots *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.listings[listing.ID]
	if !ok {
		return domain.ErrNotFound
	}
	for id, l := range m.listings {
		if id != listing.ID && l.Kind == listing.Kind && l.Slug == listing.Slug {
			return domain.ErrSlugTaken
		}
	}
	if totalSlots != nil && *totalSlots < cur.HeldSlots() {
		return domain.ErrInvalidCapacity
	}

	listing.TotalSlots = cur.TotalSlots
	listing.AvailableSlots = cur.AvailableSlots
	if totalSlots != nil {
		listing.AvailableSlots += *totalSlots - cur.TotalSlots
		listing.TotalSlots = *totalSlots
	}
	listing.CreatedAt = cur.CreatedAt
	*cur = listing
	return nil
}

func (m *MemoryAdapter) DeleteListing(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.listings[id]; !ok {
		return domain.ErrNotFound
	}
	for _, s := range m.sales {
		if s.ListingID == id {
			return domain.ErrConflict
		}
	}
	delete(m.listings, id)
	return nil
}

func (m *MemoryAdapter) ReserveSeat(ctx context.Context, listingID string, build func(domain.Listing) domain.Sale) (*domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.listings[listingID]
	switch {
	case !ok:
		return nil, domain.ErrNotFound
	case !l.IsPublished():
		return nil, domain.ErrNotAvailable
	case l.AvailableSlots <= 0:
		return nil, domain.ErrSoldOut
	}

	sale := build(*l)
	for _, s := range m.sales {
		if s.SaleNumber == sale.SaleNumber {
			return nil, domain.ErrConflict
		}
	}
	l.AvailableSlots--
	m.sales[sale.ID] = &sale

	out := sale
	return &out, nil
}

func (m *MemoryAdapter) TransitionSale(ctx context.Context, t domain.SaleTransition) (*domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sales[t.SaleID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if s.Status != t.From {
		return nil, domain.ErrConflict
	}

	s.Status = t.To
	s.UpdatedAt = t.At
	if t.TransactionID != "" {
		s.TransactionID = t.TransactionID
	}
	if t.ReleaseSeat {
		if l, ok := m.listings[s.ListingID]; ok && l.AvailableSlots < l.TotalSlots {
			l.AvailableSlots++
		}
	}

	out := *s
	return &out, nil
}

func (m *MemoryAdapter) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sales[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *s
	return &out, nil
}

func (m *MemoryAdapter) GetSaleByNumber(ctx context.Context, saleNumber string) (*domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sales {
		if s.SaleNumber == saleNumber {
			out := *s
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MemoryAdapter) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	m.mu.Lock()
	var out []domain.Sale
	for _, s := range m.sales {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.ListingID != "" && s.ListingID != filter.ListingID {
			continue
		}
		out = append(out, *s)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, filter.Page, filter.Limit), nil
}

func (m *MemoryAdapter) ListPendingSales(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Sale, error) {
	m.mu.Lock()
	var out []domain.Sale
	for _, s := range m.sales {
		if s.Status == domain.SaleStatusPending && s.CreatedAt.Before(createdBefore) {
			out = append(out, *s)
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryAdapter) CreateUser(ctx context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, ok := m.users[email]; ok {
		return domain.ErrConflict
	}
	user.Email = email
	m.users[email] = &user
	return nil
}

func (m *MemoryAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[strings.ToLower(email)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (m *MemoryAdapter) HasRole(ctx context.Context, role domain.Role) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Role == role {
			return true, nil
		}
	}
	return false, nil
}

func window[T any](items []T, page, limit int) []T {
	offset, size := domain.Window(page, limit)
	if offset >= len(items) {
		return nil
	}
	end := offset + size
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
