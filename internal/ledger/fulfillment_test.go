package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ticket-marketplace/internal/clock"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/internal/storage/memory"
	"ticket-marketplace/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore wraps the in-memory store and fails commits on demand.
type flakyStore struct {
	Store
	mu     sync.Mutex
	txErr  error
	txHits int
}

func (f *flakyStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	err := f.txErr
	f.txHits++
	f.mu.Unlock()

	if err != nil {
		return err
	}
	return f.Store.WithTx(ctx, fn)
}

func (f *flakyStore) setTxErr(err error) {
	f.mu.Lock()
	f.txErr = err
	f.mu.Unlock()
}

func setupFulfillment(t *testing.T, quantity int) (*FulfillmentEngine, *PurchaseLedger, *memory.Store, *models.Purchase) {
	t.Helper()

	store := memory.NewStore()
	gate := memory.NewGate()
	gate.Seed("tt-1", 100)

	l := NewPurchaseLedger(store, gate, clock.NewSystem())
	engine := NewFulfillmentEngine(l)

	p, err := l.Create(context.Background(), testCreateInput(quantity))
	require.NoError(t, err)

	return engine, l, store, p
}

func TestFulfillmentEngine_Fulfill_IssuesTickets(t *testing.T) {
	engine, l, _, p := setupFulfillment(t, 3)
	ctx := context.Background()

	tickets, err := engine.Fulfill(ctx, p.ID, "ref-123")
	require.NoError(t, err)
	require.Len(t, tickets, 3)

	seen := make(map[string]bool)
	for _, tk := range tickets {
		assert.True(t, tk.Valid)
		assert.Equal(t, p.BuyerID, tk.OwnerID)
		assert.NotEmpty(t, tk.Credential)
		assert.False(t, seen[tk.Credential], "credentials must be distinct")
		seen[tk.Credential] = true
	}

	st, err := l.GetStatus(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseCompleted, st)

	got, err := l.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "ref-123", got.ProviderRef)
}

func TestFulfillmentEngine_Fulfill_DuplicateNotification(t *testing.T) {
	engine, _, _, p := setupFulfillment(t, 2)
	ctx := context.Background()

	first, err := engine.Fulfill(ctx, p.ID, "ref-1")
	require.NoError(t, err)

	second, err := engine.Fulfill(ctx, p.ID, "ref-1")
	require.NoError(t, err)

	require.Len(t, second, len(first))
	ids := func(ts []*models.Ticket) map[string]bool {
		out := make(map[string]bool)
		for _, tk := range ts {
			out[tk.ID] = true
		}
		return out
	}
	assert.Equal(t, ids(first), ids(second), "re-delivery must return the committed tickets, not new ones")
}

func TestFulfillmentEngine_Fulfill_ConcurrentNotifications(t *testing.T) {
	engine, _, store, p := setupFulfillment(t, 2)
	ctx := context.Background()

	const deliveries = 10
	var wg sync.WaitGroup
	errs := make(chan error, deliveries)

	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Fulfill(ctx, p.ID, "ref-1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	tickets, err := store.TicketsByPurchase(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 2, "exactly quantity tickets regardless of delivery count")
}

func TestFulfillmentEngine_Fulfill_CrashRepair(t *testing.T) {
	engine, l, store, p := setupFulfillment(t, 2)
	ctx := context.Background()

	// Simulate a crash after tickets were written but before the flip.
	prewritten := []*models.Ticket{
		{ID: "tk-1", PurchaseID: p.ID, OwnerID: p.BuyerID, Credential: "TKT-a", Valid: true, IssuedAt: p.CreatedAt},
		{ID: "tk-2", PurchaseID: p.ID, OwnerID: p.BuyerID, Credential: "TKT-b", Valid: true, IssuedAt: p.CreatedAt},
	}
	require.NoError(t, store.CreateTickets(ctx, prewritten))

	tickets, err := engine.Fulfill(ctx, p.ID, "ref-1")
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "tk-1", tickets[0].ID)
	assert.Equal(t, "tk-2", tickets[1].ID)

	st, err := l.GetStatus(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseCompleted, st)

	all, err := store.TicketsByPurchase(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2, "repair must not issue extra tickets")
}

func TestFulfillmentEngine_Fulfill_AfterCancel(t *testing.T) {
	engine, l, store, p := setupFulfillment(t, 1)
	ctx := context.Background()

	require.NoError(t, l.Cancel(ctx, p.ID, "abandoned"))

	_, err := engine.Fulfill(ctx, p.ID, "ref-1")
	assert.ErrorIs(t, err, status.ErrAlreadyTerminal)

	tickets, err := store.TicketsByPurchase(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestFulfillmentEngine_Fulfill_CommitFailureLeavesPending(t *testing.T) {
	store := memory.NewStore()
	gate := memory.NewGate()
	gate.Seed("tt-1", 10)

	flaky := &flakyStore{Store: store}
	l := NewPurchaseLedger(flaky, gate, clock.NewSystem())
	engine := NewFulfillmentEngine(l)
	ctx := context.Background()

	p, err := l.Create(ctx, testCreateInput(2))
	require.NoError(t, err)

	flaky.setTxErr(errors.New("storage unavailable"))

	_, err = engine.Fulfill(ctx, p.ID, "ref-1")
	require.Error(t, err)

	// Payment was captured: the purchase must stay pending and be
	// flagged for the operator, never guessed completed or failed.
	got, err := store.GetPurchase(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchasePending, got.Status)
	assert.True(t, got.NeedsReview)

	flagged, err := store.ListPurchasesForReview(ctx)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, p.ID, flagged[0].ID)
}

func TestFulfillmentEngine_Retry_ResolvesFlaggedPurchase(t *testing.T) {
	store := memory.NewStore()
	gate := memory.NewGate()
	gate.Seed("tt-1", 10)

	flaky := &flakyStore{Store: store}
	l := NewPurchaseLedger(flaky, gate, clock.NewSystem())
	engine := NewFulfillmentEngine(l)
	ctx := context.Background()

	p, err := l.Create(ctx, testCreateInput(2))
	require.NoError(t, err)

	flaky.setTxErr(errors.New("storage unavailable"))
	_, err = engine.Fulfill(ctx, p.ID, "ref-1")
	require.Error(t, err)

	flaky.setTxErr(nil)
	require.NoError(t, engine.Retry(ctx))

	got, err := store.GetPurchase(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseCompleted, got.Status)
	assert.False(t, got.NeedsReview)

	tickets, err := store.TicketsByPurchase(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
}
