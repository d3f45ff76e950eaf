package domain

import "fmt"

// SeatEffect is what a status transition does to the listing's seat count.
type SeatEffect int

const (
	SeatKeep SeatEffect = iota
	SeatRelease
)

var saleTransitions = map[SaleStatus]map[SaleStatus]SeatEffect{
	SaleStatusPending: {
		SaleStatusPaid:     SeatKeep,
		SaleStatusRejected: SeatRelease,
	},
	SaleStatusPaid: {
		SaleStatusRefunded: SeatRelease,
	},
}

// Transition validates from -> to against the sale lifecycle and reports the
// seat effect. Callers treat from == to as a no-op before calling this.
func Transition(from, to SaleStatus) (SeatEffect, error) {
	effect, ok := saleTransitions[from][to]
	if !ok {
		return SeatKeep, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return effect, nil
}

// Terminal reports whether no transition leaves s.
func (s SaleStatus) Terminal() bool {
	return len(saleTransitions[s]) == 0
}
