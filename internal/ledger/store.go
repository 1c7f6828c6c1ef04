package ledger

import (
	"context"
	"time"

	"ticket-marketplace/models"
)

// Store is the durable record of purchases, tickets and resale state.
// WithTx runs fn atomically; store methods called with the context it
// passes in take part in the same unit of work. Implementations live in
// internal/storage.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreatePurchase(ctx context.Context, p *models.Purchase) error
	GetPurchase(ctx context.Context, id string) (*models.Purchase, error)
	// TransitionPurchase moves a purchase from one status to another with a
	// guard on the current status. It returns status.ErrAlreadyTerminal when
	// the purchase is no longer in from.
	TransitionPurchase(ctx context.Context, id string, from, to models.PurchaseStatus, reason string, at time.Time) error
	SetPurchaseProviderRef(ctx context.Context, id, providerRef string) error
	MarkPurchaseForReview(ctx context.Context, id string) error
	ListPurchasesForReview(ctx context.Context) ([]*models.Purchase, error)
	ListStalePending(ctx context.Context, olderThan time.Time) ([]*models.Purchase, error)
	PurchasesByBuyer(ctx context.Context, buyerID string, limit int) ([]*models.Purchase, error)

	CreateTickets(ctx context.Context, tickets []*models.Ticket) error
	TicketsByPurchase(ctx context.Context, purchaseID string) ([]*models.Ticket, error)
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	TicketByCredential(ctx context.Context, credential string) (*models.Ticket, error)
	InvalidateTicket(ctx context.Context, id string) error
	MarkTicketScanned(ctx context.Context, id string, at time.Time) error

	CreateListing(ctx context.Context, l *models.ResaleListing) error
	GetListing(ctx context.Context, id string) (*models.ResaleListing, error)
	// ConsumeListing moves a listing from active to consumed. It returns
	// status.ErrListingAlreadyConsumed when the listing is not active.
	ConsumeListing(ctx context.Context, id string) error
	CreateTransfer(ctx context.Context, t *models.ResaleTransfer) error

	CreateReviewFlag(ctx context.Context, f *models.ReviewFlag) error
	ListReviewFlags(ctx context.Context) ([]*models.ReviewFlag, error)
}

// InventoryGate holds and releases ticket-type inventory. Hold must be a
// single atomic compare-and-decrement so concurrent purchases cannot
// oversell the remaining capacity.
type InventoryGate interface {
	Hold(ctx context.Context, ticketTypeID string, quantity int) error
	Release(ctx context.Context, ticketTypeID string, quantity int) error
	Remaining(ctx context.Context, ticketTypeID string) (int, error)
}
