package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticket-marketplace/internal/gateway"
	"ticket-marketplace/internal/ledger"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
	"ticket-marketplace/monitoring"

	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"
)

// PaymentService creates provider sessions for purchases and resale
// listings and applies provider outcomes to the ledger. Outcomes arrive
// at-least-once from two directions (webhook and the provider's push
// channel); applying a duplicate is a no-op because the engines key
// idempotency on the purchase.
type PaymentService struct {
	Redis       *redis.Client
	PubNub      *pubnub.PubNub
	Gateway     gateway.PaymentGateway
	ledger      *ledger.PurchaseLedger
	fulfillment *ledger.FulfillmentEngine
	resale      *ledger.ResaleTransferEngine
	sessionTTL  time.Duration
}

func NewPaymentService(
	redisClient *redis.Client,
	pn *pubnub.PubNub,
	gw gateway.PaymentGateway,
	purchaseLedger *ledger.PurchaseLedger,
	fulfillment *ledger.FulfillmentEngine,
	resale *ledger.ResaleTransferEngine,
	sessionTTL time.Duration,
) *PaymentService {
	return &PaymentService{
		Redis:       redisClient,
		PubNub:      pn,
		Gateway:     gw,
		ledger:      purchaseLedger,
		fulfillment: fulfillment,
		resale:      resale,
		sessionTTL:  sessionTTL,
	}
}

func sessionKey(purchaseID string) string {
	return fmt.Sprintf("payment:%s", purchaseID)
}

// CreatePurchaseSession opens a provider session for a pending purchase
// and caches it so the buyer can re-fetch the QR while it is live.
func (s *PaymentService) CreatePurchaseSession(ctx context.Context, p *models.Purchase) (*gateway.Session, error) {
	session, err := s.Gateway.CreateSession(ctx, &gateway.SessionRequest{
		PurchaseID:  p.ID,
		BuyerID:     p.BuyerID,
		Amount:      p.TotalAmount,
		Currency:    "USD",
		Description: fmt.Sprintf("%d ticket(s) for event %s", p.Quantity, p.EventID),
	})
	if err != nil {
		return nil, fmt.Errorf("payment: create session: %w", err)
	}

	if err := s.ledger.SetProviderRef(ctx, p.ID, session.ProviderRef); err != nil {
		slog.Error("failed to record provider ref", "purchase_id", p.ID, "error", err)
	}

	key := sessionKey(p.ID)
	s.Redis.HSet(ctx, key, map[string]any{
		"purchase_id":  p.ID,
		"buyer_id":     p.BuyerID,
		"provider_ref": session.ProviderRef,
		"amount":       p.TotalAmount.String(),
		"qr_payload":   session.QRPayload,
		"redirect_url": session.RedirectURL,
		"status":       string(models.PurchasePending),
		"created_at":   time.Now().Unix(),
	})
	s.Redis.Expire(ctx, key, s.sessionTTL)

	return session, nil
}

// Session returns the cached payment session for a purchase, if still live.
func (s *PaymentService) Session(ctx context.Context, purchaseID string) (map[string]string, error) {
	data := s.Redis.HGetAll(ctx, sessionKey(purchaseID)).Val()
	if len(data) == 0 {
		return nil, status.ErrPurchaseNotFound
	}
	return data, nil
}

// ConsumeOutcomes drains the provider's out-of-band notification channel.
func (s *PaymentService) ConsumeOutcomes(ctx context.Context, ch chan *models.OutcomeNotification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-ch:
			if err := s.ApplyOutcome(ctx, n); err != nil {
				slog.Error("failed to apply provider outcome",
					"purchase_id", n.PurchaseID, "outcome", n.Outcome, "error", err)
			}
		}
	}
}

// ApplyOutcome normalizes a provider outcome into a ledger transition.
// Raw provider payloads are logged, never surfaced to the buyer.
func (s *PaymentService) ApplyOutcome(ctx context.Context, n *models.OutcomeNotification) error {
	monitoring.TrackOutcome(string(n.Outcome))

	switch n.Outcome {
	case models.OutcomeApproved:
		tickets, err := s.fulfillment.Fulfill(ctx, n.PurchaseID, n.ProviderRef)
		if err != nil {
			if errors.Is(err, status.ErrAlreadyTerminal) {
				// The money is captured but the purchase can no longer be
				// fulfilled. Flag it so an operator refunds the buyer.
				slog.Warn("approved outcome for purchase already failed or cancelled",
					"purchase_id", n.PurchaseID, "provider_ref", n.ProviderRef)
				s.flagCapturedPayment(ctx, n.PurchaseID)
				return nil
			}
			return err
		}
		s.Redis.HSet(ctx, sessionKey(n.PurchaseID), "status", string(models.PurchaseCompleted))
		s.notifyBuyer(ctx, n.PurchaseID, tickets)
		return nil

	case models.OutcomeRejected:
		err := s.ledger.MarkFailed(ctx, n.PurchaseID, "payment declined")
		if errors.Is(err, status.ErrAlreadyTerminal) {
			slog.Warn("rejected outcome for purchase already terminal", "purchase_id", n.PurchaseID)
			return nil
		}
		if err == nil {
			s.Redis.HSet(ctx, sessionKey(n.PurchaseID), "status", string(models.PurchaseFailed))
		}
		return err

	case models.OutcomePending:
		return nil

	default:
		return fmt.Errorf("payment: unknown outcome %q", n.Outcome)
	}
}

// flagCapturedPayment records a refund_required flag for a purchase the
// provider confirmed captured after the purchase already went terminal.
func (s *PaymentService) flagCapturedPayment(ctx context.Context, purchaseID string) {
	p, err := s.ledger.Get(ctx, purchaseID)
	if err != nil {
		slog.Error("failed to load purchase for refund flag",
			"purchase_id", purchaseID, "error", err)
		return
	}
	note := fmt.Sprintf("payment captured for %s purchase, needs refund", p.Status)
	if err := s.ledger.FlagRefund(ctx, purchaseID, p.BuyerID, note); err != nil {
		slog.Error("failed to record refund flag",
			"purchase_id", purchaseID, "error", err)
	}
}

// ReconcilePurchase re-checks the provider's transaction state for a
// pending purchase and applies it. Used by operator tooling when both
// the webhook and the push notification were lost.
func (s *PaymentService) ReconcilePurchase(ctx context.Context, purchaseID string) error {
	p, err := s.ledger.Get(ctx, purchaseID)
	if err != nil {
		return err
	}
	if p.Status.Terminal() {
		return status.ErrAlreadyTerminal
	}
	if p.ProviderRef == "" {
		return status.ErrNotConfirmedPaid
	}

	n, err := s.Gateway.CheckTransaction(ctx, p.ProviderRef)
	if err != nil {
		return fmt.Errorf("payment: check transaction: %w", err)
	}
	n.PurchaseID = purchaseID

	switch n.Outcome {
	case models.OutcomeApproved:
		return s.ApplyOutcome(ctx, n)
	case models.OutcomeRejected:
		if err := s.ledger.MarkFailed(ctx, purchaseID, "payment declined"); err != nil && !errors.Is(err, status.ErrAlreadyTerminal) {
			return err
		}
		return status.ErrProviderRejected
	default:
		return status.ErrNotConfirmedPaid
	}
}

// CreateResaleSession opens a provider session for a resale listing.
func (s *PaymentService) CreateResaleSession(ctx context.Context, listing *models.ResaleListing, buyerID string) (*gateway.Session, error) {
	if listing.Status != models.ListingActive {
		return nil, status.ErrListingAlreadyConsumed
	}

	session, err := s.Gateway.CreateSession(ctx, &gateway.SessionRequest{
		PurchaseID:  listing.ID,
		BuyerID:     buyerID,
		Amount:      listing.Price,
		Currency:    "USD",
		Description: fmt.Sprintf("resale of ticket %s", listing.TicketID),
	})
	if err != nil {
		return nil, fmt.Errorf("payment: create resale session: %w", err)
	}

	key := fmt.Sprintf("resale_session:%s:%s", listing.ID, buyerID)
	s.Redis.HSet(ctx, key, map[string]any{
		"listing_id":   listing.ID,
		"buyer_id":     buyerID,
		"provider_ref": session.ProviderRef,
		"amount":       listing.Price.String(),
	})
	s.Redis.Expire(ctx, key, s.sessionTTL)

	return session, nil
}

// ApplyResaleOutcome resolves a confirmed resale payment into a transfer.
// The race loser's refund flag is recorded by the transfer engine.
func (s *PaymentService) ApplyResaleOutcome(ctx context.Context, listingID, buyerID string, outcome models.ProviderOutcome) (*models.ResaleTransfer, *models.Ticket, error) {
	monitoring.TrackOutcome(string(outcome))

	switch outcome {
	case models.OutcomeApproved:
		transfer, ticket, err := s.resale.Transfer(ctx, listingID, buyerID)
		if err != nil {
			return nil, nil, err
		}
		s.notifyBuyer(ctx, listingID, []*models.Ticket{ticket})
		return transfer, ticket, nil

	case models.OutcomeRejected, models.OutcomePending:
		return nil, nil, nil

	default:
		return nil, nil, fmt.Errorf("payment: unknown outcome %q", outcome)
	}
}

// notifyBuyer pushes the fulfillment result to the buyer's channel so an
// open browser learns about it without waiting for the next poll.
func (s *PaymentService) notifyBuyer(ctx context.Context, ref string, tickets []*models.Ticket) {
	if s.PubNub == nil || len(tickets) == 0 {
		return
	}

	channel := fmt.Sprintf("user-%s", tickets[0].OwnerID)
	ids := make([]string, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, t.ID)
	}

	s.PubNub.Publish().
		Channel(channel).
		Message(map[string]any{
			"type":       "payment_success",
			"ref":        ref,
			"ticket_ids": ids,
		}).
		Execute()
}
