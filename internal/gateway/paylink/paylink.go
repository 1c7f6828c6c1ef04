// Package paylink implements the PaymentGateway for the Paylink
// provider: signed HTTP calls for sessions and status checks, and a
// PubNub subscription for out-of-band outcome notifications.
package paylink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"ticket-marketplace/internal/gateway"
	"ticket-marketplace/models"

	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"
)

type Config struct {
	BaseURL    string `json:"baseUrl" mapstructure:"base_url"`
	MerchantID string `json:"merchantId" mapstructure:"merchant_id"`
	ClientID   string `json:"clientId" mapstructure:"client_id"`
	ClientKey  string `json:"clientKey" mapstructure:"client_key"`
	HMACKey    string `json:"hmacKey" mapstructure:"hmac_key"`

	PNSubKey    string `json:"pn_subkey" mapstructure:"pn_subkey"`
	PNUUID      string `json:"pn_uuid" mapstructure:"pn_uuid"`
	PNChannel   string `json:"pn_channel" mapstructure:"pn_channel"`
	PNCipherKey string `json:"pn_cipherKey" mapstructure:"pn_cipherkey"`

	SessionTTL time.Duration `json:"sessionTtl" mapstructure:"session_ttl"`
}

type Paylink struct {
	cfg *Config

	client *Client

	pn       *pubnub.PubNub
	listener *pubnub.Listener

	outcomes chan *models.OutcomeNotification
}

// New returns a connected Paylink instance and starts its token
// refresher and notification subscription.
func New(ctx context.Context, cfg *Config) (*Paylink, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("paylink: missing base url")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 10 * time.Minute
	}

	client := newClient(ctx, &ClientConfig{
		BaseURL:    cfg.BaseURL,
		MerchantID: cfg.MerchantID,
		ClientID:   cfg.ClientID,
		ClientKey:  cfg.ClientKey,
		HMACKey:    cfg.HMACKey,
	})

	token, err := client.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("paylink: connect: %w", err)
	}
	client.setAccessToken(token)
	go client.notifyAccessTokenExpired(ctx)

	p := &Paylink{cfg: cfg, client: client}

	if cfg.PNSubKey != "" {
		pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PNUUID))
		pnConfig.SubscribeKey = cfg.PNSubKey
		pnConfig.CipherKey = cfg.PNCipherKey

		p.pn = pubnub.NewPubNub(pnConfig)
		p.listener = pubnub.NewListener()
		p.pn.AddListener(p.listener)
		p.pn.Subscribe().
			Channels([]string{cfg.PNChannel}).
			Execute()

		go p.consumeNotifications(ctx)
	}

	return p, nil
}

func (p *Paylink) Provider() gateway.Provider {
	return gateway.ProviderPaylink
}

func (p *Paylink) SetOutcomeChannel(ch chan *models.OutcomeNotification) {
	p.outcomes = ch
}

// notificationPayload is the provider's wire shape for a transaction event.
type notificationPayload struct {
	RefID      string          `json:"refNo"`
	BillNumber string          `json:"billNumber"`
	State      string          `json:"state"`
	Amount     decimal.Decimal `json:"txnAmount"`
	CreatedAt  string          `json:"txnDateTime"`
}

func (n *notificationPayload) toOutcome() *models.OutcomeNotification {
	out := &models.OutcomeNotification{
		ProviderRef: n.RefID,
		PurchaseID:  n.BillNumber,
		Timestamp:   time.Now().UTC(),
	}
	switch n.State {
	case "SUCCESS", "PAID":
		out.Outcome = models.OutcomeApproved
	case "PENDING", "PROCESSING":
		out.Outcome = models.OutcomePending
	default:
		out.Outcome = models.OutcomeRejected
	}
	return out
}

func (p *Paylink) consumeNotifications(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case message := <-p.listener.Message:
			data, ok := message.Message.(map[string]any)
			if !ok {
				continue
			}

			jsonData, _ := json.Marshal(data)
			var payload notificationPayload
			if err := json.Unmarshal(jsonData, &payload); err != nil {
				slog.Error("paylink: malformed notification", "error", err)
				continue
			}

			if p.outcomes != nil {
				p.outcomes <- payload.toOutcome()
			}
		}
	}
}

// CreateSession asks the provider for a hosted payment session. The
// purchase ID rides along as the bill number so the out-of-band outcome
// can be correlated back to the purchase.
func (p *Paylink) CreateSession(ctx context.Context, req *gateway.SessionRequest) (*gateway.Session, error) {
	number, err := requestID()
	if err != nil {
		return nil, fmt.Errorf("paylink: requestID: %w", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"merchantId":%q,"txnAmount":%s,"currency":%q,"billNumber":%q,"description":%q,"expiryMinutes":%d}`,
		number, p.cfg.MerchantID, req.Amount, req.Currency, req.PurchaseID, req.Description,
		int(p.cfg.SessionTTL.Minutes()))

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			RefID       string `json:"refNo"`
			RedirectURL string `json:"paymentUrl"`
			EmvCode     string `json:"emv"`
		} `json:"data"`
	}
	if err := p.client.post(ctx, "/api/v1/sessions", body, true, &reply); err != nil {
		return nil, fmt.Errorf("paylink: create session: %w", err)
	}
	if reply.Status != "OK" {
		return nil, fmt.Errorf("paylink: create session: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	return &gateway.Session{
		ProviderRef: reply.Data.RefID,
		RedirectURL: reply.Data.RedirectURL,
		QRPayload:   reply.Data.EmvCode,
		ExpiresAt:   time.Now().UTC().Add(p.cfg.SessionTTL),
	}, nil
}

// CheckTransaction asks the provider for the state of a session, used as
// a fallback when no notification arrived within the poll budget.
func (p *Paylink) CheckTransaction(ctx context.Context, providerRef string) (*models.OutcomeNotification, error) {
	number, err := requestID()
	if err != nil {
		return nil, fmt.Errorf("paylink: requestID: %w", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"refNo":%q}`, number, providerRef)

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			notificationPayload
		} `json:"data"`
	}
	if err := p.client.post(ctx, "/api/v1/sessions/check", body, true, &reply); err != nil {
		return nil, fmt.Errorf("paylink: check transaction: %w", err)
	}
	if reply.Status != "OK" {
		return nil, fmt.Errorf("paylink: check transaction: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	return reply.Data.notificationPayload.toOutcome(), nil
}

func (p *Paylink) Close(ctx context.Context) error {
	if p.pn != nil {
		p.pn.RemoveListener(p.listener)
		p.pn.UnsubscribeAll()
	}
	return nil
}
