package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"ticket-marketplace/internal/clock"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
	"ticket-marketplace/utils"

	"github.com/shopspring/decimal"
)

// PurchaseLedger is the authoritative record and transition gate for
// purchases. A provider notification and a buyer poll or cancel racing
// on the same purchase are serialized by a per-purchase lock, so only
// one of them can move the purchase to a terminal state.
type PurchaseLedger struct {
	store     Store
	inventory InventoryGate
	clock     clock.Clock

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewPurchaseLedger(store Store, inventory InventoryGate, clk clock.Clock) *PurchaseLedger {
	return &PurchaseLedger{
		store:     store,
		inventory: inventory,
		clock:     clk,
		locks:     make(map[string]*sync.Mutex),
	}
}

// lockPurchase returns the mutex serializing transitions for one purchase.
// Purchases are never deleted, so entries are kept for the process lifetime.
func (l *PurchaseLedger) lockPurchase(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

type CreateInput struct {
	BuyerID      string
	EventID      string
	TicketTypeID string
	Quantity     int
	UnitPrice    decimal.Decimal
}

// Create holds inventory and records a new pending purchase. The hold is
// a single atomic compare-and-decrement; when the record cannot be
// written afterwards the hold is released again, so a failed create
// never leaks capacity.
func (l *PurchaseLedger) Create(ctx context.Context, in CreateInput) (*models.Purchase, error) {
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("ledger: invalid quantity %d", in.Quantity)
	}

	if err := l.inventory.Hold(ctx, in.TicketTypeID, in.Quantity); err != nil {
		return nil, err
	}

	now := l.clock.Now()
	p := &models.Purchase{
		ID:             utils.NewID(),
		BuyerID:        in.BuyerID,
		EventID:        in.EventID,
		TicketTypeID:   in.TicketTypeID,
		Quantity:       in.Quantity,
		UnitPrice:      in.UnitPrice,
		TotalAmount:    in.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity))),
		Status:         models.PurchasePending,
		CreatedAt:      now,
		TransitionedAt: now,
	}

	if err := l.store.CreatePurchase(ctx, p); err != nil {
		if relErr := l.inventory.Release(ctx, in.TicketTypeID, in.Quantity); relErr != nil {
			slog.Error("failed to release inventory after create failure",
				"ticket_type", in.TicketTypeID, "quantity", in.Quantity, "error", relErr)
		}
		return nil, fmt.Errorf("ledger: create purchase: %w", err)
	}

	return p, nil
}

// MarkFailed transitions a pending purchase to failed and releases its
// inventory hold. Reprocessing a duplicate rejection is a no-op.
func (l *PurchaseLedger) MarkFailed(ctx context.Context, purchaseID, reason string) error {
	m := l.lockPurchase(purchaseID)
	m.Lock()
	defer m.Unlock()

	p, err := l.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return err
	}
	if p.Status == models.PurchaseFailed {
		return nil
	}
	if p.Status.Terminal() {
		return status.ErrAlreadyTerminal
	}

	if err := l.store.TransitionPurchase(ctx, purchaseID, models.PurchasePending, models.PurchaseFailed, reason, l.clock.Now()); err != nil {
		return err
	}
	return l.inventory.Release(ctx, p.TicketTypeID, p.Quantity)
}

// Cancel transitions a pending purchase to cancelled and releases its
// hold. Used both by buyer-driven abandonment and by the expiry sweeper.
func (l *PurchaseLedger) Cancel(ctx context.Context, purchaseID, reason string) error {
	m := l.lockPurchase(purchaseID)
	m.Lock()
	defer m.Unlock()

	p, err := l.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return err
	}
	if p.Status == models.PurchaseCancelled {
		return nil
	}
	if p.Status.Terminal() {
		return status.ErrAlreadyTerminal
	}

	if err := l.store.TransitionPurchase(ctx, purchaseID, models.PurchasePending, models.PurchaseCancelled, reason, l.clock.Now()); err != nil {
		return err
	}
	return l.inventory.Release(ctx, p.TicketTypeID, p.Quantity)
}

// SetProviderRef records the provider session reference on a purchase.
func (l *PurchaseLedger) SetProviderRef(ctx context.Context, purchaseID, providerRef string) error {
	return l.store.SetPurchaseProviderRef(ctx, purchaseID, providerRef)
}

// GetStatus is side-effect-free and safe to poll frequently.
func (l *PurchaseLedger) GetStatus(ctx context.Context, purchaseID string) (models.PurchaseStatus, error) {
	p, err := l.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return "", err
	}
	return p.Status, nil
}

// Get returns the full purchase record.
func (l *PurchaseLedger) Get(ctx context.Context, purchaseID string) (*models.Purchase, error) {
	return l.store.GetPurchase(ctx, purchaseID)
}

// History returns a buyer's purchases, newest first.
func (l *PurchaseLedger) History(ctx context.Context, buyerID string, limit int) ([]*models.Purchase, error) {
	return l.store.PurchasesByBuyer(ctx, buyerID, limit)
}

// FlagRefund records an operator-attention row for a payment that was
// captured but can no longer be fulfilled.
func (l *PurchaseLedger) FlagRefund(ctx context.Context, refID, buyerID, note string) error {
	return l.store.CreateReviewFlag(ctx, &models.ReviewFlag{
		ID:        utils.NewID(),
		Kind:      "refund_required",
		RefID:     refID,
		BuyerID:   buyerID,
		Note:      note,
		CreatedAt: l.clock.Now(),
	})
}

// Tickets returns the tickets issued for a purchase, if any.
func (l *PurchaseLedger) Tickets(ctx context.Context, purchaseID string) ([]*models.Ticket, error) {
	return l.store.TicketsByPurchase(ctx, purchaseID)
}
