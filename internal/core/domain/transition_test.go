package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_Allowed(t *testing.T) {
	tests := []struct {
		from, to SaleStatus
		effect   SeatEffect
	}{
		{SaleStatusPending, SaleStatusPaid, SeatKeep},
		{SaleStatusPending, SaleStatusRejected, SeatRelease},
		{SaleStatusPaid, SaleStatusRefunded, SeatRelease},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			effect, err := Transition(tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.effect, effect)
		})
	}
}

func TestTransition_Rejected(t *testing.T) {
	tests := []struct {
		from, to SaleStatus
	}{
		{SaleStatusPending, SaleStatusRefunded},
		{SaleStatusPaid, SaleStatusPending},
		{SaleStatusPaid, SaleStatusRejected},
		{SaleStatusRejected, SaleStatusPending},
		{SaleStatusRejected, SaleStatusPaid},
		{SaleStatusRefunded, SaleStatusPaid},
		{SaleStatusRefunded, SaleStatusPending},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			_, err := Transition(tt.from, tt.to)
			assert.True(t, errors.Is(err, ErrInvalidTransition), "got %v", err)
		})
	}
}

func TestSaleStatus_Terminal(t *testing.T) {
	assert.False(t, SaleStatusPending.Terminal())
	assert.False(t, SaleStatusPaid.Terminal())
	assert.True(t, SaleStatusRejected.Terminal())
	assert.True(t, SaleStatusRefunded.Terminal())
}
