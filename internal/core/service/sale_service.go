package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
	"github.com/grupoimpulso/seat-sales/internal/port"
	"github.com/grupoimpulso/seat-sales/internal/validation"
)

const (
	paymentKeyPrefix   = "payment:"
	paymentCallbackTTL = 24 * time.Hour
)

// PaymentOutcome is what a provider reports back for a sale.
type PaymentOutcome struct {
	Method        domain.PaymentMethod `json:"-"`
	SaleNumber    string               `json:"saleNumber" validate:"required,max=64"`
	Status        string               `json:"status" validate:"required,oneof=approved rejected failed expired"`
	TransactionID string               `json:"transactionId" validate:"max=128"`
}

func (o PaymentOutcome) target() domain.SaleStatus {
	if o.Status == "approved" {
		return domain.SaleStatusPaid
	}
	return domain.SaleStatusRejected
}

// ExpireResult summarises one sweep of stale pending sales.
type ExpireResult struct {
	Expired int
	Skipped int
	Failed  int
}

type SaleService struct {
	db     port.DatabaseRepository
	cache  port.CacheRepository
	events port.EventSink
	now    func() time.Time
}

// NewSaleService builds the sale lifecycle service. cache and events may be nil.
func NewSaleService(db port.DatabaseRepository, cache port.CacheRepository, events port.EventSink) *SaleService {
	if events == nil {
		events = discardEvents{}
	}
	return &SaleService{
		db:     db,
		cache:  cache,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Transition moves a sale to target. Re-applying the current status is a
// no-op; a concurrent change is re-evaluated a bounded number of times.
func (s *SaleService) Transition(ctx context.Context, saleID string, target domain.SaleStatus) (*domain.Sale, error) {
	return s.transition(ctx, saleID, target, "")
}

func (s *SaleService) transition(ctx context.Context, saleID string, target domain.SaleStatus, transactionID string) (*domain.Sale, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, target)
	}

	for attempt := 1; attempt <= transitionAttempts; attempt++ {
		sale, err := s.GetSale(ctx, saleID)
		if err != nil {
			return nil, err
		}
		if sale.Status == target {
			return sale, nil
		}

		effect, err := domain.Transition(sale.Status, target)
		if err != nil {
			return nil, err
		}

		updated, err := s.db.TransitionSale(ctx, domain.SaleTransition{
			SaleID:        sale.ID,
			From:          sale.Status,
			To:            target,
			ReleaseSeat:   effect == domain.SeatRelease,
			TransactionID: transactionID,
			At:            s.now(),
		})
		if errors.Is(err, domain.ErrConflict) {
			logrus.WithFields(logrus.Fields{
				"sale_id": saleID,
				"attempt": attempt,
			}).Debug("sale changed concurrently, re-evaluating")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("transition sale %s: %w", saleID, err)
		}

		if effect == domain.SeatRelease {
			s.evictListing(ctx, updated.ListingID)
		}

		logrus.WithFields(logrus.Fields{
			"sale_id":      updated.ID,
			"sale_number":  updated.SaleNumber,
			"from":         sale.Status,
			"to":           target,
			"seat_release": effect == domain.SeatRelease,
		}).Info("sale status changed")

		s.events.Emit(domain.SaleEvent{
			Type:       domain.SaleEventStatusChanged,
			SaleID:     updated.ID,
			SaleNumber: updated.SaleNumber,
			ListingID:  updated.ListingID,
			From:       sale.Status,
			To:         target,
			Total:      updated.Total,
			At:         updated.UpdatedAt,
		})
		return updated, nil
	}

	return nil, fmt.Errorf("transition sale %s to %s: %w", saleID, target, domain.ErrConflict)
}

// evictListing drops the cached public copy of a listing whose seat count
// just changed.
func (s *SaleService) evictListing(ctx context.Context, listingID string) {
	if s.cache == nil {
		return
	}
	l, err := s.db.GetListing(ctx, listingID)
	if err != nil {
		logrus.WithError(err).WithField("listing_id", listingID).Warn("listing lookup for cache eviction failed")
		return
	}
	evictListings(ctx, s.cache, l.Kind, l.Slug)
}

// ApplyPaymentOutcome records a provider callback against the sale it names.
// Replayed callbacks return the sale unchanged.
func (s *SaleService) ApplyPaymentOutcome(ctx context.Context, outcome PaymentOutcome) (*domain.Sale, error) {
	outcome.Status = strings.ToLower(strings.TrimSpace(outcome.Status))
	if err := validation.Struct(outcome); err != nil {
		return nil, err
	}

	sale, err := readWithRetry(ctx, func(ctx context.Context) (*domain.Sale, error) {
		return s.db.GetSaleByNumber(ctx, outcome.SaleNumber)
	})
	if err != nil {
		return nil, err
	}
	if outcome.Method != "" && outcome.Method != sale.PaymentMethod {
		return nil, fmt.Errorf("%w: sale %s is paid with %s", domain.ErrNotFound, sale.SaleNumber, sale.PaymentMethod)
	}

	key := fmt.Sprintf("%s%s:%s:%s", paymentKeyPrefix, sale.PaymentMethod, sale.SaleNumber, outcome.Status)
	if s.cache != nil {
		ok, err := s.cache.SetIdempotency(ctx, key, paymentCallbackTTL)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			logrus.WithField("sale_number", sale.SaleNumber).Info("duplicate payment callback ignored")
			return sale, nil
		}
	}

	updated, err := s.transition(ctx, sale.ID, outcome.target(), outcome.TransactionID)
	if err != nil {
		if s.cache != nil {
			if clearErr := s.cache.ClearIdempotency(ctx, key); clearErr != nil {
				logrus.WithError(clearErr).WithField("key", key).Warn("failed to release payment callback key")
			}
		}
		return nil, err
	}
	return updated, nil
}

// Refund returns the seat of a paid sale.
func (s *SaleService) Refund(ctx context.Context, saleID string) (*domain.Sale, error) {
	return s.Transition(ctx, saleID, domain.SaleStatusRefunded)
}

// ExpirePending rejects pending sales created more than olderThan ago.
func (s *SaleService) ExpirePending(ctx context.Context, olderThan time.Duration, batch int) (ExpireResult, error) {
	var res ExpireResult

	cutoff := s.now().Add(-olderThan)
	stale, err := readWithRetry(ctx, func(ctx context.Context) ([]domain.Sale, error) {
		return s.db.ListPendingSales(ctx, cutoff, batch)
	})
	if err != nil {
		return res, fmt.Errorf("list pending sales: %w", err)
	}

	for _, sale := range stale {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		_, err := s.Transition(ctx, sale.ID, domain.SaleStatusRejected)
		switch {
		case err == nil:
			res.Expired++
		case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrNotFound):
			// paid or gone since it was listed
			res.Skipped++
		default:
			res.Failed++
			logrus.WithError(err).WithField("sale_id", sale.ID).Error("failed to expire pending sale")
		}
	}
	return res, nil
}

func (s *SaleService) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return readWithRetry(ctx, func(ctx context.Context) (*domain.Sale, error) {
		return s.db.GetSale(ctx, id)
	})
}

func (s *SaleService) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, &validation.Error{Fields: []string{"status must be one of [pending paid rejected refunded]"}}
	}
	return readWithRetry(ctx, func(ctx context.Context) ([]domain.Sale, error) {
		return s.db.ListSales(ctx, filter)
	})
}

type discardEvents struct{}

func (discardEvents) Emit(domain.SaleEvent) {}
