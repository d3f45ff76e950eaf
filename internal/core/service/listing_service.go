package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
	"github.com/grupoimpulso/seat-sales/internal/port"
	"github.com/grupoimpulso/seat-sales/internal/validation"
)

const defaultListingCacheTTL = 30 * time.Second

type CreateListingRequest struct {
	Kind             domain.ListingKind   `json:"kind" validate:"required,oneof=seminar course"`
	Title            string               `json:"title" validate:"required,max=200"`
	ShortDescription string               `json:"shortDescription" validate:"required,max=200"`
	Description      string               `json:"description" validate:"required"`
	Instructor       string               `json:"instructor" validate:"required,max=200"`
	Modality         domain.Modality      `json:"modality" validate:"required,oneof=in_person virtual hybrid"`
	Location         string               `json:"location" validate:"max=255"`
	VirtualLink      string               `json:"virtualLink" validate:"omitempty,url,max=512"`
	Price            int64                `json:"price" validate:"gte=0"`
	TotalSlots       int                  `json:"totalSlots" validate:"gte=1"`
	Status           domain.ListingStatus `json:"status" validate:"omitempty,oneof=draft published sold_out finished"`
	Featured         bool                 `json:"featured"`
	StartsAt         time.Time            `json:"startsAt" validate:"required"`
	EndsAt           *time.Time           `json:"endsAt"`
	Level            string               `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	Category         string               `json:"category" validate:"omitempty,oneof=technical management safety leadership"`
}

type UpdateListingRequest struct {
	Title            *string               `json:"title" validate:"omitempty,min=1,max=200"`
	ShortDescription *string               `json:"shortDescription" validate:"omitempty,max=200"`
	Description      *string               `json:"description" validate:"omitempty,min=1"`
	Instructor       *string               `json:"instructor" validate:"omitempty,max=200"`
	Modality         *domain.Modality      `json:"modality" validate:"omitempty,oneof=in_person virtual hybrid"`
	Location         *string               `json:"location" validate:"omitempty,max=255"`
	VirtualLink      *string               `json:"virtualLink" validate:"omitempty,max=512"`
	Price            *int64                `json:"price" validate:"omitempty,gte=0"`
	TotalSlots       *int                  `json:"totalSlots" validate:"omitempty,gte=1"`
	Status           *domain.ListingStatus `json:"status" validate:"omitempty,oneof=draft published sold_out finished"`
	Featured         *bool                 `json:"featured"`
	StartsAt         *time.Time            `json:"startsAt"`
	EndsAt           *time.Time            `json:"endsAt"`
	Level            *string               `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	Category         *string               `json:"category" validate:"omitempty,oneof=technical management safety leadership"`
}

func (r UpdateListingRequest) update() domain.ListingUpdate {
	return domain.ListingUpdate{
		Title:            r.Title,
		ShortDescription: r.ShortDescription,
		Description:      r.Description,
		Instructor:       r.Instructor,
		Modality:         r.Modality,
		Location:         r.Location,
		VirtualLink:      r.VirtualLink,
		Price:            r.Price,
		TotalSlots:       r.TotalSlots,
		Status:           r.Status,
		Featured:         r.Featured,
		StartsAt:         r.StartsAt,
		EndsAt:           r.EndsAt,
		Level:            r.Level,
		Category:         r.Category,
	}
}

type ListingService struct {
	db       port.ListingRepository
	cache    port.CacheRepository
	cacheTTL time.Duration
	now      func() time.Time
}

// NewListingService builds the listing service. A nil cache disables
// caching of public listing pages.
func NewListingService(db port.ListingRepository, cache port.CacheRepository, cacheTTL time.Duration) *ListingService {
	if cacheTTL <= 0 {
		cacheTTL = defaultListingCacheTTL
	}
	return &ListingService{
		db:       db,
		cache:    cache,
		cacheTTL: cacheTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func listingCacheKey(kind domain.ListingKind, slug string) string {
	return fmt.Sprintf("listing:%s:%s", kind, slug)
}

// ListPublished returns published listings of one kind, newest start date first.
func (s *ListingService) ListPublished(ctx context.Context, kind domain.ListingKind, featuredOnly bool, page, limit int) ([]domain.Listing, error) {
	return readWithRetry(ctx, func(ctx context.Context) ([]domain.Listing, error) {
		return s.db.ListListings(ctx, domain.ListingFilter{
			Kind:          kind,
			PublishedOnly: true,
			FeaturedOnly:  featuredOnly,
			Page:          page,
			Limit:         limit,
		})
	})
}

// GetPublishedBySlug hides drafts and unknown slugs alike behind ErrNotFound.
func (s *ListingService) GetPublishedBySlug(ctx context.Context, kind domain.ListingKind, slug string) (*domain.Listing, error) {
	key := listingCacheKey(kind, slug)
	if s.cache != nil {
		cached, err := s.cache.GetListing(ctx, key)
		if err != nil {
			logrus.WithError(err).WithField("key", key).Warn("listing cache read failed")
		}
		if cached != nil {
			return cached, nil
		}
	}

	l, err := readWithRetry(ctx, func(ctx context.Context) (*domain.Listing, error) {
		return s.db.GetListingBySlug(ctx, kind, slug)
	})
	if err != nil {
		return nil, err
	}
	if !l.IsPublished() {
		return nil, domain.ErrNotFound
	}

	if s.cache != nil {
		if err := s.cache.SetListing(ctx, key, *l, s.cacheTTL); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("listing cache write failed")
		}
	}
	return l, nil
}

func (s *ListingService) Create(ctx context.Context, req CreateListingRequest) (*domain.Listing, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if req.EndsAt != nil && req.EndsAt.Before(req.StartsAt) {
		return nil, &validation.Error{Fields: []string{"endsAt must not be before startsAt"}}
	}

	status := req.Status
	if status == "" {
		status = domain.ListingStatusDraft
	}
	now := s.now()
	l := domain.Listing{
		ID:               uuid.NewString(),
		Kind:             req.Kind,
		Title:            req.Title,
		Slug:             domain.Slugify(req.Title),
		ShortDescription: req.ShortDescription,
		Description:      req.Description,
		Instructor:       req.Instructor,
		Modality:         req.Modality,
		Location:         req.Location,
		VirtualLink:      req.VirtualLink,
		Price:            req.Price,
		TotalSlots:       req.TotalSlots,
		AvailableSlots:   req.TotalSlots,
		Status:           status,
		Featured:         req.Featured,
		StartsAt:         req.StartsAt.UTC(),
		EndsAt:           req.EndsAt,
		Level:            req.Level,
		Category:         req.Category,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if l.Slug == "" {
		return nil, &validation.Error{Fields: []string{"title must contain letters or digits"}}
	}

	if err := s.db.CreateListing(ctx, l); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"listing_id": l.ID,
		"kind":       l.Kind,
		"slug":       l.Slug,
		"slots":      l.TotalSlots,
	}).Info("listing created")
	return &l, nil
}

func (s *ListingService) Get(ctx context.Context, id string) (*domain.Listing, error) {
	return readWithRetry(ctx, func(ctx context.Context) (*domain.Listing, error) {
		return s.db.GetListing(ctx, id)
	})
}

// List is the admin view: every status, newest first.
func (s *ListingService) List(ctx context.Context, kind domain.ListingKind, page, limit int) ([]domain.Listing, error) {
	return readWithRetry(ctx, func(ctx context.Context) ([]domain.Listing, error) {
		return s.db.ListListings(ctx, domain.ListingFilter{Kind: kind, Page: page, Limit: limit})
	})
}

// Update edits a listing. Field changes and a capacity change land in one
// guarded store write; availableSlots is never written from the request.
func (s *ListingService) Update(ctx context.Context, id string, req UpdateListingRequest) (*domain.Listing, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	oldSlug := current.Slug

	edited := *current
	req.update().Apply(&edited)
	if edited.Slug == "" {
		return nil, &validation.Error{Fields: []string{"title must contain letters or digits"}}
	}
	if edited.EndsAt != nil && edited.EndsAt.Before(edited.StartsAt) {
		return nil, &validation.Error{Fields: []string{"endsAt must not be before startsAt"}}
	}

	var resize *int
	if req.TotalSlots != nil && *req.TotalSlots != current.TotalSlots {
		resize = req.TotalSlots
	}

	edited.UpdatedAt = s.now()
	if err := s.db.UpdateListing(ctx, edited, resize); err != nil {
		return nil, fmt.Errorf("update listing %s: %w", id, err)
	}
	s.invalidate(ctx, edited.Kind, oldSlug, edited.Slug)

	updated, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if resize != nil {
		logrus.WithFields(logrus.Fields{
			"listing_id": id,
			"from":       current.TotalSlots,
			"to":         updated.TotalSlots,
			"available":  updated.AvailableSlots,
		}).Info("listing capacity changed")
	}
	return updated, nil
}

func (s *ListingService) Delete(ctx context.Context, id string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.DeleteListing(ctx, id); err != nil {
		return fmt.Errorf("delete listing %s: %w", id, err)
	}
	s.invalidate(ctx, current.Kind, current.Slug)
	logrus.WithField("listing_id", id).Info("listing deleted")
	return nil
}

func (s *ListingService) invalidate(ctx context.Context, kind domain.ListingKind, slugs ...string) {
	evictListings(ctx, s.cache, kind, slugs...)
}

// evictListings drops cached public copies of listings. Seat changes call it
// too, so the public detail never shows seats that are already gone.
func evictListings(ctx context.Context, cache port.CacheRepository, kind domain.ListingKind, slugs ...string) {
	if cache == nil || len(slugs) == 0 {
		return
	}
	keys := make([]string, 0, len(slugs))
	for _, slug := range slugs {
		keys = append(keys, listingCacheKey(kind, slug))
	}
	if err := cache.InvalidateListings(ctx, keys...); err != nil {
		logrus.WithError(err).Warn("listing cache invalidation failed")
	}
}
