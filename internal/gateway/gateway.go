// Package gateway abstracts the external payment provider. The core only
// depends on the outcome contract: a session is created for a purchase,
// and the provider later reports approved, pending or rejected, possibly
// more than once.
package gateway

import (
	"context"
	"fmt"
	"time"

	"ticket-marketplace/models"

	"github.com/shopspring/decimal"
)

type Provider string

const (
	ProviderPaylink Provider = "paylink"
	ProviderSandbox Provider = "sandbox"
)

// SessionRequest is a generic payment-session request.
type SessionRequest struct {
	PurchaseID  string          `json:"purchase_id"`
	BuyerID     string          `json:"buyer_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
}

// Session is the provider-hosted payment session the buyer is sent to.
type Session struct {
	ProviderRef string    `json:"provider_ref"`
	RedirectURL string    `json:"redirect_url,omitempty"`
	QRPayload   string    `json:"qr_payload,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// PaymentGateway defines the common interface for all payment providers.
type PaymentGateway interface {
	// Provider returns the provider type.
	Provider() Provider

	// CreateSession creates a provider-hosted payment session for a purchase.
	CreateSession(ctx context.Context, req *SessionRequest) (*Session, error)

	// CheckTransaction checks the provider-side state of a session.
	CheckTransaction(ctx context.Context, providerRef string) (*models.OutcomeNotification, error)

	// SetOutcomeChannel sets the channel for out-of-band outcome notifications.
	SetOutcomeChannel(ch chan *models.OutcomeNotification)

	// Close gracefully closes any connections.
	Close(ctx context.Context) error
}

// Registry manages the configured provider instances.
type Registry struct {
	gateways map[Provider]PaymentGateway
	primary  Provider
}

func NewRegistry() *Registry {
	return &Registry{gateways: make(map[Provider]PaymentGateway)}
}

// Register adds a gateway; the first registered becomes the primary.
func (r *Registry) Register(gw PaymentGateway) {
	r.gateways[gw.Provider()] = gw
	if r.primary == "" {
		r.primary = gw.Provider()
	}
}

func (r *Registry) Get(provider Provider) (PaymentGateway, error) {
	gw, ok := r.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("gateway: provider %s not registered", provider)
	}
	return gw, nil
}

func (r *Registry) Primary() (PaymentGateway, error) {
	if r.primary == "" {
		return nil, fmt.Errorf("gateway: no provider configured")
	}
	return r.Get(r.primary)
}

func (r *Registry) Close(ctx context.Context) error {
	for provider, gw := range r.gateways {
		if err := gw.Close(ctx); err != nil {
			return fmt.Errorf("gateway: close %s: %w", provider, err)
		}
	}
	return nil
}
