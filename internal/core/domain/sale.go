package domain

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"
)

type SaleStatus string

const (
	SaleStatusPending  SaleStatus = "pending"
	SaleStatusPaid     SaleStatus = "paid"
	SaleStatusRejected SaleStatus = "rejected"
	SaleStatusRefunded SaleStatus = "refunded"
)

func (s SaleStatus) Valid() bool {
	switch s {
	case SaleStatusPending, SaleStatusPaid, SaleStatusRejected, SaleStatusRefunded:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodMercadoPago PaymentMethod = "mercadopago"
	PaymentMethodTransbank   PaymentMethod = "transbank"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodMercadoPago || m == PaymentMethodTransbank
}

type Customer struct {
	Name    string `json:"customerName"`
	Email   string `json:"customerEmail"`
	Phone   string `json:"customerPhone"`
	Rut     string `json:"customerRut"`
	Address string `json:"customerAddress,omitempty"`
}

type Sale struct {
	ID            string        `json:"id"`
	SaleNumber    string        `json:"saleNumber"`
	ListingID     string        `json:"listingId"`
	ListingKind   ListingKind   `json:"listingKind"`
	Total         int64         `json:"total"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	TransactionID string        `json:"transactionId,omitempty"`
	Status        SaleStatus    `json:"status"`
	SaleDate      time.Time     `json:"saleDate"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`

	Customer
}

// SaleTransition is a compare-and-set on a sale's status. The store applies
// it only while the sale is still in From, and releases one seat of the
// sale's listing in the same atomic step when ReleaseSeat is set.
type SaleTransition struct {
	SaleID        string
	From          SaleStatus
	To            SaleStatus
	ReleaseSeat   bool
	TransactionID string
	At            time.Time
}

type SaleFilter struct {
	Status    SaleStatus
	ListingID string
	Page      int
	Limit     int
}

const saleNumberAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewSaleNumber builds a human-facing sale number such as
// SEM-1718000000000-k3j9x0a1b.
func NewSaleNumber(kind ListingKind, now time.Time) string {
	prefix := "SEM"
	if kind == ListingKindCourse {
		prefix = "CUR"
	}
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = saleNumberAlphabet[rand.IntN(len(saleNumberAlphabet))]
	}
	return fmt.Sprintf("%s-%s-%s", prefix, strconv.FormatInt(now.UnixMilli(), 10), suffix)
}
