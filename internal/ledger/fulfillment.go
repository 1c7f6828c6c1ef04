package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
	"ticket-marketplace/utils"
)

// FulfillmentEngine issues tickets exactly once when a purchase becomes
// payable. The purchase ID is the idempotency key: re-invocation after a
// crash between "tickets written" and "status flipped" detects the
// already-issued tickets and only performs the missing flip.
type FulfillmentEngine struct {
	ledger *PurchaseLedger
}

func NewFulfillmentEngine(ledger *PurchaseLedger) *FulfillmentEngine {
	return &FulfillmentEngine{ledger: ledger}
}

// Fulfill issues exactly quantity tickets with distinct non-guessable
// credentials and flips the purchase to completed in the same atomic
// unit. Duplicate invocations return the already-committed tickets.
// When the unit cannot be committed the purchase stays pending and is
// flagged for operator reconciliation; it is never left completed
// without tickets nor failed while the payment was captured.
func (e *FulfillmentEngine) Fulfill(ctx context.Context, purchaseID, providerRef string) ([]*models.Ticket, error) {
	m := e.ledger.lockPurchase(purchaseID)
	m.Lock()
	defer m.Unlock()

	store := e.ledger.store

	p, err := store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}

	switch p.Status {
	case models.PurchaseCompleted:
		// Duplicate provider notification; return the committed result.
		return store.TicketsByPurchase(ctx, purchaseID)
	case models.PurchaseFailed, models.PurchaseCancelled:
		return nil, status.ErrAlreadyTerminal
	}

	if providerRef != "" && p.ProviderRef == "" {
		if err := store.SetPurchaseProviderRef(ctx, purchaseID, providerRef); err != nil {
			slog.Error("failed to record provider ref", "purchase_id", purchaseID, "error", err)
		}
	}

	existing, err := store.TicketsByPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}

	var tickets []*models.Ticket
	if len(existing) > 0 {
		// Crash repair: tickets were written but the status flip was lost.
		tickets = existing
	} else {
		now := e.ledger.clock.Now()
		tickets = make([]*models.Ticket, 0, p.Quantity)
		for i := 0; i < p.Quantity; i++ {
			cred, err := utils.GenerateCredential()
			if err != nil {
				return nil, fmt.Errorf("fulfillment: generate credential: %w", err)
			}
			tickets = append(tickets, &models.Ticket{
				ID:           utils.NewID(),
				PurchaseID:   p.ID,
				EventID:      p.EventID,
				TicketTypeID: p.TicketTypeID,
				OwnerID:      p.BuyerID,
				Credential:   cred,
				Valid:        true,
				IssuedAt:     now,
			})
		}
	}

	err = store.WithTx(ctx, func(txCtx context.Context) error {
		if len(existing) == 0 {
			if err := store.CreateTickets(txCtx, tickets); err != nil {
				return err
			}
		}
		return store.TransitionPurchase(txCtx, purchaseID,
			models.PurchasePending, models.PurchaseCompleted, "", e.ledger.clock.Now())
	})
	if err != nil {
		// Payment was captured; leave the purchase pending and surface it to
		// the operator reconciliation view instead of guessing an outcome.
		if flagErr := store.MarkPurchaseForReview(ctx, purchaseID); flagErr != nil {
			slog.Error("failed to flag purchase for review",
				"purchase_id", purchaseID, "error", flagErr)
		}
		slog.Error("fulfillment could not be committed, purchase left pending",
			"purchase_id", purchaseID, "error", err)
		return nil, fmt.Errorf("fulfillment: commit purchase %s: %w", purchaseID, err)
	}

	return tickets, nil
}

// Retry re-runs fulfillment for purchases previously flagged for review.
func (e *FulfillmentEngine) Retry(ctx context.Context) error {
	flagged, err := e.ledger.store.ListPurchasesForReview(ctx)
	if err != nil {
		return err
	}
	for _, p := range flagged {
		if _, err := e.Fulfill(ctx, p.ID, p.ProviderRef); err != nil {
			slog.Error("fulfillment retry failed", "purchase_id", p.ID, "error", err)
		}
	}
	return nil
}
