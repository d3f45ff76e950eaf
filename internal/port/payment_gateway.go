package port

import (
	"context"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
)

type PaymentGateway interface {
	// Checkout registers the sale with the provider and returns the URL the buyer is sent to
	Checkout(ctx context.Context, sale domain.Sale) (string, error)

	// VerifyCallback authenticates a provider callback body
	VerifyCallback(method domain.PaymentMethod, payload []byte, signature string) error
}
