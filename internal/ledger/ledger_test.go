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

func setupTestLedger(t *testing.T) (*PurchaseLedger, *memory.Store, *memory.Gate) {
	t.Helper()
	store := memory.NewStore()
	gate := memory.NewGate()
	l := NewPurchaseLedger(store, gate, clock.NewSystem())
	return l, store, gate
}

func testCreateInput(quantity int) CreateInput {
	return CreateInput{
		BuyerID:      "buyer-1",
		EventID:      "event-1",
		TicketTypeID: "tt-1",
		Quantity:     quantity,
		UnitPrice:    decimal.NewFromInt(50),
	}
}

func TestPurchaseLedger_Create_HoldsInventory(t *testing.T) {
	l, _, gate := setupTestLedger(t)
	gate.Seed("tt-1", 10)
	ctx := context.Background()

	p, err := l.Create(ctx, testCreateInput(3))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, models.PurchasePending, p.Status)
	assert.Equal(t, "150", p.TotalAmount.String())
	assert.NotEmpty(t, p.ID)

	remaining, err := gate.Remaining(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 7, remaining)
}

func TestPurchaseLedger_Create_CapacityExceeded(t *testing.T) {
	l, store, gate := setupTestLedger(t)
	gate.Seed("tt-1", 2)
	ctx := context.Background()

	_, err := l.Create(ctx, testCreateInput(3))
	assert.ErrorIs(t, err, status.ErrCapacityExceeded)

	// No record and no hold may survive a refused create.
	history, err := store.PurchasesByBuyer(ctx, "buyer-1", 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	remaining, err := gate.Remaining(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
}

func TestPurchaseLedger_Create_InvalidQuantity(t *testing.T) {
	l, _, gate := setupTestLedger(t)
	gate.Seed("tt-1", 10)

	_, err := l.Create(context.Background(), testCreateInput(0))
	assert.Error(t, err)
}

func TestPurchaseLedger_ConcurrentCreates_NoOversell(t *testing.T) {
	l, _, gate := setupTestLedger(t)
	gate.Seed("tt-1", 10)
	ctx := context.Background()

	const buyers = 25
	var wg sync.WaitGroup
	results := make(chan error, buyers)

	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Create(ctx, testCreateInput(1))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, status.ErrCapacityExceeded)
		}
	}

	assert.Equal(t, 10, succeeded)

	remaining, err := gate.Remaining(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestPurchaseLedger_Cancel_ReleasesHold(t *testing.T) {
	l, _, gate := setupTestLedger(t)
	gate.Seed("tt-1", 10)
	ctx := context.Background()

	p, err := l.Create(ctx, testCreateInput(4))
	require.NoError(t, err)

	require.NoError(t, l.Cancel(ctx, p.ID, "buyer abandoned"))

	st, err := l.GetStatus(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseCancelled, st)

	remaining, err := gate.Remaining(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)
}

func TestPurchaseLedger_Cancel_Idempotent(t *testing.T) {
	l, _, gate := setupTestLedger(t)
	gate.Seed("tt-1", 10)
	ctx := context.Background()

	p, err := l.Create(ctx, testCreateInput(2))
	require.NoError(t, err)

	require.NoError(t, l.Cancel(ctx, p.ID, "first"))
	require.NoError(t, l.Cancel(ctx, p.ID, "second"))

	// The hold is released exactly once.
	remaining, err := gate.Remaining(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)
}

func TestPurchaseLedger_MarkFailed_Idempotent(t *testing.T) {
	l, _, gate := setupTestLedger(t)
	gate.Seed("tt-1", 10)
	ctx := context.Background()

	p, err := l.Create(ctx, testCreateInput(2))
	require.NoError(t, err)

	require.NoError(t, l.MarkFailed(ctx, p.ID, "payment declined"))
	require.NoError(t, l.MarkFailed(ctx, p.ID, "payment declined"))

	remaining, err := gate.Remaining(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)
}

func TestPurchaseLedger_TerminalStatesDoNotCross(t *testing.T) {
	l, _, gate := setupTestLedger(t)
	gate.Seed("tt-1", 10)
	ctx := context.Background()

	p, err := l.Create(ctx, testCreateInput(1))
	require.NoError(t, err)

	require.NoError(t, l.Cancel(ctx, p.ID, "abandoned"))

	// A cancelled purchase cannot become failed, and vice versa.
	assert.ErrorIs(t, l.MarkFailed(ctx, p.ID, "late rejection"), status.ErrAlreadyTerminal)

	st, err := l.GetStatus(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseCancelled, st)
}

func TestPurchaseLedger_GetStatus_Unknown(t *testing.T) {
	l, _, _ := setupTestLedger(t)

	_, err := l.GetStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, status.ErrPurchaseNotFound)
}

func TestPurchaseLedger_History_NewestFirst(t *testing.T) {
	store := memory.NewStore()
	gate := memory.NewGate()
	gate.Seed("tt-1", 10)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l := NewPurchaseLedger(store, gate, clock.NewFixed(base.Add(time.Duration(i)*time.Minute)))
		_, err := l.Create(ctx, testCreateInput(1))
		require.NoError(t, err)
	}

	l := NewPurchaseLedger(store, gate, clock.NewSystem())
	history, err := l.History(ctx, "buyer-1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].CreatedAt.After(history[1].CreatedAt))
}
