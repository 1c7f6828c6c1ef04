package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"ticket-marketplace/internal/clock"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/internal/storage/memory"
	"ticket-marketplace/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupResale(t *testing.T) (*ResaleTransferEngine, *memory.Store, *models.Ticket, *models.ResaleListing) {
	t.Helper()

	store := memory.NewStore()
	l := NewPurchaseLedger(store, memory.NewGate(), clock.NewSystem())
	engine := NewResaleTransferEngine(l)
	ctx := context.Background()

	ticket := &models.Ticket{
		ID:           "tk-seller",
		PurchaseID:   "p-orig",
		EventID:      "event-1",
		TicketTypeID: "tt-1",
		OwnerID:      "seller-1",
		Credential:   "TKT-seller-cred",
		Valid:        true,
		IssuedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.CreateTickets(ctx, []*models.Ticket{ticket}))

	listing := &models.ResaleListing{
		ID:        "lst-1",
		TicketID:  ticket.ID,
		SellerID:  "seller-1",
		EventID:   "event-1",
		Price:     decimal.NewFromInt(80),
		Status:    models.ListingActive,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateListing(ctx, listing))

	return engine, store, ticket, listing
}

func TestResaleTransferEngine_Transfer_SwapsCredentials(t *testing.T) {
	engine, store, oldTicket, listing := setupResale(t)
	ctx := context.Background()

	transfer, newTicket, err := engine.Transfer(ctx, listing.ID, "buyer-2")
	require.NoError(t, err)
	require.NotNil(t, transfer)
	require.NotNil(t, newTicket)

	assert.Equal(t, "buyer-2", newTicket.OwnerID)
	assert.True(t, newTicket.Valid)
	assert.NotEqual(t, oldTicket.Credential, newTicket.Credential)
	assert.Equal(t, oldTicket.EventID, newTicket.EventID)

	// The seller's credential no longer validates.
	invalidated, err := store.GetTicket(ctx, oldTicket.ID)
	require.NoError(t, err)
	assert.False(t, invalidated.Valid)

	consumed, err := store.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingConsumed, consumed.Status)

	assert.Equal(t, oldTicket.ID, transfer.OldTicketID)
	assert.Equal(t, newTicket.ID, transfer.NewTicketID)
}

func TestResaleTransferEngine_Transfer_SecondBuyerLoses(t *testing.T) {
	engine, store, _, listing := setupResale(t)
	ctx := context.Background()

	_, winner, err := engine.Transfer(ctx, listing.ID, "buyer-2")
	require.NoError(t, err)

	_, _, err = engine.Transfer(ctx, listing.ID, "buyer-3")
	assert.ErrorIs(t, err, status.ErrListingAlreadyConsumed)

	// The loser's captured payment is surfaced as a refund flag.
	flags, err := store.ListReviewFlags(ctx)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, "refund_required", flags[0].Kind)
	assert.Equal(t, listing.ID, flags[0].RefID)
	assert.Equal(t, "buyer-3", flags[0].BuyerID)

	// The winner's ticket is untouched by the losing attempt.
	kept, err := store.GetTicket(ctx, winner.ID)
	require.NoError(t, err)
	assert.True(t, kept.Valid)
}

func TestResaleTransferEngine_Transfer_ConcurrentBuyers(t *testing.T) {
	engine, store, oldTicket, listing := setupResale(t)
	ctx := context.Background()

	buyers := []string{"buyer-a", "buyer-b", "buyer-c", "buyer-d"}
	var wg sync.WaitGroup
	type result struct {
		buyer  string
		ticket *models.Ticket
		err    error
	}
	results := make(chan result, len(buyers))

	for _, b := range buyers {
		wg.Add(1)
		go func(buyer string) {
			defer wg.Done()
			_, tk, err := engine.Transfer(ctx, listing.ID, buyer)
			results <- result{buyer: buyer, ticket: tk, err: err}
		}(b)
	}
	wg.Wait()
	close(results)

	winners := 0
	for r := range results {
		if r.err == nil {
			winners++
			assert.True(t, r.ticket.Valid)
		} else {
			assert.ErrorIs(t, r.err, status.ErrListingAlreadyConsumed)
		}
	}
	assert.Equal(t, 1, winners, "exactly one confirmed buyer may win the listing")

	flags, err := store.ListReviewFlags(ctx)
	require.NoError(t, err)
	assert.Len(t, flags, len(buyers)-1)

	// After the dust settles exactly one credential validates admission:
	// the winner's. The seller's is invalidated.
	invalidated, err := store.GetTicket(ctx, oldTicket.ID)
	require.NoError(t, err)
	assert.False(t, invalidated.Valid)
}

func TestResaleTransferEngine_Transfer_ScannedTicketNotTransferable(t *testing.T) {
	engine, store, oldTicket, listing := setupResale(t)
	ctx := context.Background()

	// The seller walks through the gate after listing the ticket. A
	// transfer now would hand the buyer a second admission.
	require.NoError(t, store.MarkTicketScanned(ctx, oldTicket.ID, time.Now().UTC()))

	_, _, err := engine.Transfer(ctx, listing.ID, "buyer-2")
	assert.ErrorIs(t, err, status.ErrAlreadyScanned)

	// The listing stays untouched and no new credential exists.
	kept, err := store.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingActive, kept.Status)

	// The buyer's confirmed payment surfaces as a refund flag.
	flags, err := store.ListReviewFlags(ctx)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, "refund_required", flags[0].Kind)
	assert.Equal(t, "buyer-2", flags[0].BuyerID)
}

func TestResaleTransferEngine_Transfer_UnknownListing(t *testing.T) {
	engine, _, _, _ := setupResale(t)

	_, _, err := engine.Transfer(context.Background(), "missing", "buyer-2")
	assert.ErrorIs(t, err, status.ErrListingNotFound)
}
