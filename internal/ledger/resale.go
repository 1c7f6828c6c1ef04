package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
	"ticket-marketplace/utils"
)

// ResaleTransferEngine applies a confirmed resale payment: it consumes
// the listing, invalidates the seller's credential and issues a fresh
// credential to the buyer, atomically as one unit. After a transfer
// exactly one of the two credentials validates admission.
type ResaleTransferEngine struct {
	ledger *PurchaseLedger
}

func NewResaleTransferEngine(ledger *PurchaseLedger) *ResaleTransferEngine {
	return &ResaleTransferEngine{ledger: ledger}
}

// Transfer resolves a listing for a buyer whose payment is confirmed.
// When two confirmed buyers race for the same listing, the first to
// consume it wins; the loser gets status.ErrListingAlreadyConsumed and
// a refund flag so the captured payment is not silently dropped.
func (e *ResaleTransferEngine) Transfer(ctx context.Context, listingID, buyerID string) (*models.ResaleTransfer, *models.Ticket, error) {
	store := e.ledger.store
	now := e.ledger.clock.Now()

	listing, err := store.GetListing(ctx, listingID)
	if err != nil {
		return nil, nil, err
	}

	cred, err := utils.GenerateCredential()
	if err != nil {
		return nil, nil, fmt.Errorf("resale: generate credential: %w", err)
	}

	oldTicket, err := store.GetTicket(ctx, listing.TicketID)
	if err != nil {
		return nil, nil, err
	}
	if oldTicket.ScannedAt != nil {
		// The seller walked through the gate after listing. Issuing a
		// fresh credential now would admit two people on one ticket, so
		// the confirmed buyer gets a refund flag instead.
		e.flagRefund(ctx, listingID, buyerID)
		return nil, nil, status.ErrAlreadyScanned
	}

	transfer := &models.ResaleTransfer{
		ID:          utils.NewID(),
		ListingID:   listingID,
		BuyerID:     buyerID,
		OldTicketID: oldTicket.ID,
		CreatedAt:   now,
	}
	newTicket := &models.Ticket{
		ID:           utils.NewID(),
		TransferID:   transfer.ID,
		EventID:      oldTicket.EventID,
		TicketTypeID: oldTicket.TicketTypeID,
		OwnerID:      buyerID,
		Credential:   cred,
		Valid:        true,
		IssuedAt:     now,
	}
	transfer.NewTicketID = newTicket.ID

	err = store.WithTx(ctx, func(txCtx context.Context) error {
		// ConsumeListing is the exclusive gate; the race loser fails here
		// before any ticket state has changed.
		if err := store.ConsumeListing(txCtx, listingID); err != nil {
			return err
		}
		if err := store.InvalidateTicket(txCtx, oldTicket.ID); err != nil {
			return err
		}
		if err := store.CreateTickets(txCtx, []*models.Ticket{newTicket}); err != nil {
			return err
		}
		return store.CreateTransfer(txCtx, transfer)
	})
	if err != nil {
		if errors.Is(err, status.ErrListingAlreadyConsumed) {
			e.flagRefund(ctx, listingID, buyerID)
		}
		return nil, nil, err
	}

	return transfer, newTicket, nil
}

// flagRefund records an operator-attention row for a buyer whose payment
// was captured for a listing another buyer already won.
func (e *ResaleTransferEngine) flagRefund(ctx context.Context, listingID, buyerID string) {
	err := e.ledger.FlagRefund(ctx, listingID, buyerID,
		"listing consumed by another buyer, captured payment needs refund")
	if err != nil {
		slog.Error("failed to record refund flag",
			"listing_id", listingID, "buyer_id", buyerID, "error", err)
	}
}
