package domain

import "time"

type SaleEventType string

const (
	SaleEventReserved      SaleEventType = "sale.reserved"
	SaleEventStatusChanged SaleEventType = "sale.status_changed"
)

type SaleEvent struct {
	Type       SaleEventType `json:"type"`
	SaleID     string        `json:"saleId"`
	SaleNumber string        `json:"saleNumber"`
	ListingID  string        `json:"listingId"`
	From       SaleStatus    `json:"from,omitempty"`
	To         SaleStatus    `json:"to"`
	Total      int64         `json:"total"`
	At         time.Time     `json:"at"`
}
