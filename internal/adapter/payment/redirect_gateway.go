package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
)

// Provider describes where buyers are sent for one payment method and the
// shared secret its callbacks are signed with.
type Provider struct {
	CheckoutURL string
	Secret      string
}

// RedirectGateway hands the buyer off to the provider's hosted checkout
// page. The redirect carries the sale reference signed with the provider
// secret so the provider can tie its callback back to the sale.
type RedirectGateway struct {
	providers map[domain.PaymentMethod]Provider
}

func NewRedirectGateway(providers map[domain.PaymentMethod]Provider) *RedirectGateway {
	return &RedirectGateway{providers: providers}
}

// provider returns the settings for method. A method without a secret is
// treated as unconfigured: nothing it signs or verifies can be trusted.
func (g *RedirectGateway) provider(method domain.PaymentMethod) (Provider, error) {
	p, ok := g.providers[method]
	if !ok || p.CheckoutURL == "" {
		return Provider{}, fmt.Errorf("payment method %q not configured", method)
	}
	if p.Secret == "" {
		return Provider{}, fmt.Errorf("%w: payment method %q has no callback secret", domain.ErrUnauthorized, method)
	}
	return p, nil
}

func (g *RedirectGateway) Checkout(ctx context.Context, sale domain.Sale) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p, err := g.provider(sale.PaymentMethod)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(p.CheckoutURL)
	if err != nil {
		return "", fmt.Errorf("parse checkout url for %s: %w", sale.PaymentMethod, err)
	}

	amount := strconv.FormatInt(sale.Total, 10)
	q := u.Query()
	q.Set("reference", sale.SaleNumber)
	q.Set("amount", amount)
	q.Set("email", sale.Email)
	q.Set("signature", Sign(p.Secret, []byte(sale.SaleNumber+":"+amount)))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// VerifyCallback checks the hex HMAC-SHA256 of payload against signature.
func (g *RedirectGateway) VerifyCallback(method domain.PaymentMethod, payload []byte, signature string) error {
	p, err := g.provider(method)
	if errors.Is(err, domain.ErrUnauthorized) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}

	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return fmt.Errorf("%w: malformed signature", domain.ErrUnauthorized)
	}
	if !hmac.Equal(got, mac(p.Secret, payload)) {
		return fmt.Errorf("%w: signature mismatch", domain.ErrUnauthorized)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) string {
	return hex.EncodeToString(mac(secret, payload))
}

func mac(secret string, payload []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return h.Sum(nil)
}
