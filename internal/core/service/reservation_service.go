package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
	"github.com/grupoimpulso/seat-sales/internal/port"
	"github.com/grupoimpulso/seat-sales/internal/validation"
)

const (
	checkoutKeyPrefix = "checkout:"
	checkoutKeyTTL    = 24 * time.Hour
)

type ReserveRequest struct {
	ListingID       string               `json:"listingId" validate:"required,max=64"`
	CustomerName    string               `json:"customerName" validate:"required,max=100"`
	CustomerEmail   string               `json:"customerEmail" validate:"required,email,max=255"`
	CustomerPhone   string               `json:"customerPhone" validate:"required,min=8,max=15,phone_cl"`
	CustomerRut     string               `json:"customerRut" validate:"required,min=8,max=12,rut"`
	CustomerAddress string               `json:"customerAddress" validate:"max=255"`
	PaymentMethod   domain.PaymentMethod `json:"paymentMethod" validate:"required,oneof=mercadopago transbank"`
}

func (r *ReserveRequest) normalize() {
	r.ListingID = strings.TrimSpace(r.ListingID)
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.CustomerEmail = strings.ToLower(strings.TrimSpace(r.CustomerEmail))
	r.CustomerPhone = strings.TrimSpace(r.CustomerPhone)
	r.CustomerRut = strings.ToUpper(strings.TrimSpace(r.CustomerRut))
	r.CustomerAddress = strings.TrimSpace(r.CustomerAddress)
}

type CheckoutRequest struct {
	RequestID string `json:"requestId" validate:"max=64"`
	ReserveRequest
}

type CheckoutResult struct {
	Sale        domain.Sale `json:"sale"`
	RedirectURL string      `json:"redirectUrl"`
}

type ReservationService struct {
	db      port.SaleRepository
	cache   port.CacheRepository
	gateway port.PaymentGateway
	sales   *SaleService
	events  port.EventSink
	now     func() time.Time
}

// NewReservationService wires seat reservation and checkout. cache and events
// may be nil; without a cache, checkout request ids are not de-duplicated.
func NewReservationService(db port.SaleRepository, cache port.CacheRepository, gateway port.PaymentGateway, sales *SaleService, events port.EventSink) *ReservationService {
	if events == nil {
		events = discardEvents{}
	}
	return &ReservationService{
		db:      db,
		cache:   cache,
		gateway: gateway,
		sales:   sales,
		events:  events,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Reserve validates the buyer and takes one seat, creating a pending sale.
func (s *ReservationService) Reserve(ctx context.Context, req ReserveRequest) (*domain.Sale, error) {
	req.normalize()
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	return s.reserve(ctx, req)
}

func (s *ReservationService) reserve(ctx context.Context, req ReserveRequest) (*domain.Sale, error) {
	now := s.now()
	var slug string
	sale, err := s.db.ReserveSeat(ctx, req.ListingID, func(l domain.Listing) domain.Sale {
		slug = l.Slug
		return domain.Sale{
			ID:            uuid.NewString(),
			SaleNumber:    domain.NewSaleNumber(l.Kind, now),
			ListingID:     l.ID,
			ListingKind:   l.Kind,
			Total:         l.Price,
			PaymentMethod: req.PaymentMethod,
			Status:        domain.SaleStatusPending,
			SaleDate:      now,
			CreatedAt:     now,
			UpdatedAt:     now,
			Customer: domain.Customer{
				Name:    req.CustomerName,
				Email:   req.CustomerEmail,
				Phone:   req.CustomerPhone,
				Rut:     domain.CleanRut(req.CustomerRut),
				Address: req.CustomerAddress,
			},
		}
	})
	if err != nil {
		return nil, fmt.Errorf("reserve seat on listing %s: %w", req.ListingID, err)
	}
	evictListings(ctx, s.cache, sale.ListingKind, slug)

	logrus.WithFields(logrus.Fields{
		"sale_id":     sale.ID,
		"sale_number": sale.SaleNumber,
		"listing_id":  sale.ListingID,
		"total":       sale.Total,
	}).Info("seat reserved")

	s.events.Emit(domain.SaleEvent{
		Type:       domain.SaleEventReserved,
		SaleID:     sale.ID,
		SaleNumber: sale.SaleNumber,
		ListingID:  sale.ListingID,
		To:         sale.Status,
		Total:      sale.Total,
		At:         sale.CreatedAt,
	})
	return sale, nil
}

// Checkout reserves a seat and hands the sale to the payment provider. If the
// provider cannot take it the sale is rejected, which returns the seat.
func (s *ReservationService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.normalize()
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	key := ""
	if req.RequestID != "" && s.cache != nil {
		key = checkoutKeyPrefix + req.RequestID
		ok, err := s.cache.SetIdempotency(ctx, key, checkoutKeyTTL)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return nil, domain.ErrDuplicateRequest
		}
	}

	result, err := s.checkout(ctx, req.ReserveRequest)
	if err != nil && key != "" {
		// nothing is held any more, so the client may retry under the same id
		if clearErr := s.cache.ClearIdempotency(ctx, key); clearErr != nil {
			logrus.WithError(clearErr).WithField("key", key).Warn("failed to release checkout key")
		}
	}
	return result, err
}

func (s *ReservationService) checkout(ctx context.Context, req ReserveRequest) (*CheckoutResult, error) {
	sale, err := s.reserve(ctx, req)
	if err != nil {
		return nil, err
	}

	redirect, err := s.gateway.Checkout(ctx, *sale)
	if err == nil {
		return &CheckoutResult{Sale: *sale, RedirectURL: redirect}, nil
	}

	logrus.WithError(err).WithField("sale_id", sale.ID).Error("payment checkout failed, rejecting sale")
	if _, rejectErr := s.sales.Transition(ctx, sale.ID, domain.SaleStatusRejected); rejectErr != nil {
		// the pending sweep will still return the seat
		logrus.WithError(rejectErr).WithField("sale_id", sale.ID).Error("failed to reject sale after checkout failure")
	}
	if errors.Is(err, domain.ErrPaymentFailed) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrPaymentFailed, err)
}
