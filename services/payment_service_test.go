package services

import (
	"context"
	"testing"
	"time"

	"ticket-marketplace/internal/clock"
	"ticket-marketplace/internal/gateway"
	"ticket-marketplace/internal/ledger"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/internal/storage/memory"
	"ticket-marketplace/models"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway returns a scripted outcome for CheckTransaction.
type fakeGateway struct {
	outcome models.ProviderOutcome
}

func (f *fakeGateway) Provider() gateway.Provider { return gateway.ProviderSandbox }

func (f *fakeGateway) CreateSession(ctx context.Context, req *gateway.SessionRequest) (*gateway.Session, error) {
	return &gateway.Session{ProviderRef: "ref-fake", ExpiresAt: time.Now().Add(time.Minute)}, nil
}

func (f *fakeGateway) CheckTransaction(ctx context.Context, providerRef string) (*models.OutcomeNotification, error) {
	return &models.OutcomeNotification{ProviderRef: providerRef, Outcome: f.outcome, Timestamp: time.Now()}, nil
}

func (f *fakeGateway) SetOutcomeChannel(ch chan *models.OutcomeNotification) {}

func (f *fakeGateway) Close(ctx context.Context) error { return nil }

func setupTestPaymentService(t *testing.T) (*PaymentService, redismock.ClientMock, *memory.Store, *memory.Gate) {
	t.Helper()

	db, redisMock := redismock.NewClientMock()
	store := memory.NewStore()
	gate := memory.NewGate()
	gate.Seed("tt-1", 100)

	l := ledger.NewPurchaseLedger(store, gate, clock.NewSystem())
	service := NewPaymentService(db, nil, nil, l,
		ledger.NewFulfillmentEngine(l), ledger.NewResaleTransferEngine(l), 0)

	return service, redisMock, store, gate
}

func createPendingPurchase(t *testing.T, s *PaymentService, quantity int) *models.Purchase {
	t.Helper()
	p, err := s.ledger.Create(context.Background(), ledger.CreateInput{
		BuyerID:      "buyer-1",
		EventID:      "event-1",
		TicketTypeID: "tt-1",
		Quantity:     quantity,
		UnitPrice:    decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	return p
}

func TestPaymentService_ApplyOutcome_ApprovedFulfills(t *testing.T) {
	service, redisMock, store, _ := setupTestPaymentService(t)
	defer redisMock.ClearExpect()

	p := createPendingPurchase(t, service, 2)

	redisMock.ExpectHSet("payment:"+p.ID, "status", "completed").SetVal(1)

	err := service.ApplyOutcome(context.Background(), &models.OutcomeNotification{
		PurchaseID:  p.ID,
		ProviderRef: "ref-1",
		Outcome:     models.OutcomeApproved,
	})
	require.NoError(t, err)

	got, err := store.GetPurchase(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseCompleted, got.Status)

	tickets, err := store.TicketsByPurchase(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
}

func TestPaymentService_ApplyOutcome_DuplicateApprovedIsNoop(t *testing.T) {
	service, redisMock, store, _ := setupTestPaymentService(t)
	defer redisMock.ClearExpect()

	p := createPendingPurchase(t, service, 2)

	redisMock.ExpectHSet("payment:"+p.ID, "status", "completed").SetVal(1)
	redisMock.ExpectHSet("payment:"+p.ID, "status", "completed").SetVal(1)

	n := &models.OutcomeNotification{PurchaseID: p.ID, ProviderRef: "ref-1", Outcome: models.OutcomeApproved}
	require.NoError(t, service.ApplyOutcome(context.Background(), n))
	require.NoError(t, service.ApplyOutcome(context.Background(), n))

	tickets, err := store.TicketsByPurchase(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 2, "re-delivered approval must not issue more tickets")
}

func TestPaymentService_ApplyOutcome_RejectedMarksFailed(t *testing.T) {
	service, redisMock, store, gate := setupTestPaymentService(t)
	defer redisMock.ClearExpect()

	p := createPendingPurchase(t, service, 2)

	redisMock.ExpectHSet("payment:"+p.ID, "status", "failed").SetVal(1)

	err := service.ApplyOutcome(context.Background(), &models.OutcomeNotification{
		PurchaseID: p.ID,
		Outcome:    models.OutcomeRejected,
	})
	require.NoError(t, err)

	got, err := store.GetPurchase(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseFailed, got.Status)

	remaining, err := gate.Remaining(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 100, remaining, "a rejected payment releases the hold")
}

func TestPaymentService_ApplyOutcome_ApprovedAfterCancelled(t *testing.T) {
	service, redisMock, store, _ := setupTestPaymentService(t)
	defer redisMock.ClearExpect()

	p := createPendingPurchase(t, service, 1)
	require.NoError(t, service.ledger.Cancel(context.Background(), p.ID, "checkout expired"))

	// A late approval for an already-cancelled purchase is absorbed, not
	// propagated as an error back to the provider.
	err := service.ApplyOutcome(context.Background(), &models.OutcomeNotification{
		PurchaseID: p.ID,
		Outcome:    models.OutcomeApproved,
	})
	require.NoError(t, err)

	got, err := store.GetPurchase(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseCancelled, got.Status)

	// The provider captured the money but no tickets can be issued, so
	// the purchase must surface on the operator's refund queue.
	flags, err := store.ListReviewFlags(context.Background())
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, "refund_required", flags[0].Kind)
	assert.Equal(t, p.ID, flags[0].RefID)
	assert.Equal(t, "buyer-1", flags[0].BuyerID)
}

func TestPaymentService_ApplyOutcome_PendingIsNoop(t *testing.T) {
	service, redisMock, store, _ := setupTestPaymentService(t)
	defer redisMock.ClearExpect()

	p := createPendingPurchase(t, service, 1)

	err := service.ApplyOutcome(context.Background(), &models.OutcomeNotification{
		PurchaseID: p.ID,
		Outcome:    models.OutcomePending,
	})
	require.NoError(t, err)

	got, err := store.GetPurchase(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchasePending, got.Status)
}

func TestPaymentService_ApplyOutcome_UnknownOutcome(t *testing.T) {
	service, redisMock, _, _ := setupTestPaymentService(t)
	defer redisMock.ClearExpect()

	err := service.ApplyOutcome(context.Background(), &models.OutcomeNotification{
		PurchaseID: "p-1",
		Outcome:    models.ProviderOutcome("exploded"),
	})
	assert.Error(t, err)
}

func TestPaymentService_ReconcilePurchase_Approved(t *testing.T) {
	service, redisMock, store, _ := setupTestPaymentService(t)
	defer redisMock.ClearExpect()
	service.Gateway = &fakeGateway{outcome: models.OutcomeApproved}
	ctx := context.Background()

	p := createPendingPurchase(t, service, 1)
	require.NoError(t, service.ledger.SetProviderRef(ctx, p.ID, "ref-1"))

	redisMock.ExpectHSet("payment:"+p.ID, "status", "completed").SetVal(1)

	require.NoError(t, service.ReconcilePurchase(ctx, p.ID))

	got, err := store.GetPurchase(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseCompleted, got.Status)
}

func TestPaymentService_ReconcilePurchase_Rejected(t *testing.T) {
	service, redisMock, store, _ := setupTestPaymentService(t)
	defer redisMock.ClearExpect()
	service.Gateway = &fakeGateway{outcome: models.OutcomeRejected}
	ctx := context.Background()

	p := createPendingPurchase(t, service, 1)
	require.NoError(t, service.ledger.SetProviderRef(ctx, p.ID, "ref-1"))

	err := service.ReconcilePurchase(ctx, p.ID)
	assert.ErrorIs(t, err, status.ErrProviderRejected)

	got, err := store.GetPurchase(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseFailed, got.Status)
}

func TestPaymentService_ReconcilePurchase_StillPending(t *testing.T) {
	service, redisMock, _, _ := setupTestPaymentService(t)
	defer redisMock.ClearExpect()
	service.Gateway = &fakeGateway{outcome: models.OutcomePending}
	ctx := context.Background()

	p := createPendingPurchase(t, service, 1)
	require.NoError(t, service.ledger.SetProviderRef(ctx, p.ID, "ref-1"))

	assert.ErrorIs(t, service.ReconcilePurchase(ctx, p.ID), status.ErrNotConfirmedPaid)
}

func TestPaymentService_ReconcilePurchase_NoSession(t *testing.T) {
	service, redisMock, _, _ := setupTestPaymentService(t)
	defer redisMock.ClearExpect()
	ctx := context.Background()

	// Without a provider ref there is nothing to check against.
	p := createPendingPurchase(t, service, 1)
	assert.ErrorIs(t, service.ReconcilePurchase(ctx, p.ID), status.ErrNotConfirmedPaid)
}

func TestPaymentService_ApplyResaleOutcome_Approved(t *testing.T) {
	service, redisMock, store, _ := setupTestPaymentService(t)
	defer redisMock.ClearExpect()
	ctx := context.Background()

	require.NoError(t, store.CreateTickets(ctx, []*models.Ticket{{
		ID: "tk-1", EventID: "event-1", TicketTypeID: "tt-1",
		OwnerID: "seller-1", Credential: "TKT-old", Valid: true,
	}}))
	require.NoError(t, store.CreateListing(ctx, &models.ResaleListing{
		ID: "lst-1", TicketID: "tk-1", SellerID: "seller-1",
		EventID: "event-1", Price: decimal.NewFromInt(80), Status: models.ListingActive,
	}))

	transfer, ticket, err := service.ApplyResaleOutcome(ctx, "lst-1", "buyer-2", models.OutcomeApproved)
	require.NoError(t, err)
	require.NotNil(t, transfer)
	require.NotNil(t, ticket)
	assert.Equal(t, "buyer-2", ticket.OwnerID)

	old, err := store.GetTicket(ctx, "tk-1")
	require.NoError(t, err)
	assert.False(t, old.Valid)
}

func TestPaymentService_ApplyResaleOutcome_RaceLoserFlagged(t *testing.T) {
	service, redisMock, store, _ := setupTestPaymentService(t)
	defer redisMock.ClearExpect()
	ctx := context.Background()

	require.NoError(t, store.CreateTickets(ctx, []*models.Ticket{{
		ID: "tk-1", EventID: "event-1", TicketTypeID: "tt-1",
		OwnerID: "seller-1", Credential: "TKT-old", Valid: true,
	}}))
	require.NoError(t, store.CreateListing(ctx, &models.ResaleListing{
		ID: "lst-1", TicketID: "tk-1", SellerID: "seller-1",
		EventID: "event-1", Price: decimal.NewFromInt(80), Status: models.ListingActive,
	}))

	_, _, err := service.ApplyResaleOutcome(ctx, "lst-1", "buyer-2", models.OutcomeApproved)
	require.NoError(t, err)

	_, _, err = service.ApplyResaleOutcome(ctx, "lst-1", "buyer-3", models.OutcomeApproved)
	assert.ErrorIs(t, err, status.ErrListingAlreadyConsumed)

	flags, err := store.ListReviewFlags(ctx)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, "refund_required", flags[0].Kind)
}
