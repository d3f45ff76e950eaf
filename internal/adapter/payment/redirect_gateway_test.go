package payment

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
)

func newGateway() *RedirectGateway {
	return NewRedirectGateway(map[domain.PaymentMethod]Provider{
		domain.PaymentMethodMercadoPago: {CheckoutURL: "https://pay.example.test/mp/checkout?site=cl", Secret: "mp-secret"},
		domain.PaymentMethodTransbank:   {CheckoutURL: "https://pay.example.test/webpay", Secret: "tbk-secret"},
	})
}

func testSale(method domain.PaymentMethod) domain.Sale {
	return domain.Sale{
		SaleNumber:    "SEM-1718000000000-abc123xyz",
		Total:         35000,
		PaymentMethod: method,
		Customer:      domain.Customer{Email: "ana@example.cl"},
	}
}

func TestCheckout_BuildsSignedRedirect(t *testing.T) {
	g := newGateway()

	raw, err := g.Checkout(context.Background(), testSale(domain.PaymentMethodMercadoPago))
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "pay.example.test", u.Host)
	assert.Equal(t, "/mp/checkout", u.Path)

	q := u.Query()
	assert.Equal(t, "cl", q.Get("site"))
	assert.Equal(t, "SEM-1718000000000-abc123xyz", q.Get("reference"))
	assert.Equal(t, "35000", q.Get("amount"))
	assert.Equal(t, "ana@example.cl", q.Get("email"))
	assert.Equal(t, Sign("mp-secret", []byte("SEM-1718000000000-abc123xyz:35000")), q.Get("signature"))
}

func TestCheckout_UnconfiguredMethod(t *testing.T) {
	g := NewRedirectGateway(map[domain.PaymentMethod]Provider{})

	_, err := g.Checkout(context.Background(), testSale(domain.PaymentMethodTransbank))
	assert.Error(t, err)
}

func TestGateway_RefusesEmptySecret(t *testing.T) {
	g := NewRedirectGateway(map[domain.PaymentMethod]Provider{
		domain.PaymentMethodMercadoPago: {CheckoutURL: "https://pay.example.test/mp", Secret: ""},
	})
	body := []byte(`{"saleNumber":"SEM-1","status":"approved"}`)

	// anyone can compute an HMAC under the empty key
	err := g.VerifyCallback(domain.PaymentMethodMercadoPago, body, Sign("", body))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = g.Checkout(context.Background(), testSale(domain.PaymentMethodMercadoPago))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCheckout_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newGateway().Checkout(ctx, testSale(domain.PaymentMethodTransbank))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerifyCallback(t *testing.T) {
	g := newGateway()
	body := []byte(`{"saleNumber":"SEM-1","status":"approved"}`)

	tests := []struct {
		name      string
		method    domain.PaymentMethod
		signature string
		want      error
	}{
		{"valid", domain.PaymentMethodMercadoPago, Sign("mp-secret", body), nil},
		{"other provider secret", domain.PaymentMethodMercadoPago, Sign("tbk-secret", body), domain.ErrUnauthorized},
		{"not hex", domain.PaymentMethodTransbank, "zz-not-hex", domain.ErrUnauthorized},
		{"empty", domain.PaymentMethodTransbank, "", domain.ErrUnauthorized},
		{"unknown method", domain.PaymentMethod("paypal"), Sign("mp-secret", body), domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.VerifyCallback(tt.method, body, tt.signature)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// tampered body
	err := g.VerifyCallback(domain.PaymentMethodMercadoPago, []byte(`{"saleNumber":"SEM-2","status":"approved"}`), Sign("mp-secret", body))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
