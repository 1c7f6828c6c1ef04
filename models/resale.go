package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ListingStatus string

const (
	ListingActive    ListingStatus = "active"
	ListingConsumed  ListingStatus = "consumed"
	ListingWithdrawn ListingStatus = "withdrawn"
)

// ResaleListing is an active offer to resell an issued ticket. At most
// one transfer may consume a listing; concurrent confirmed buyers lose
// all but one.
type ResaleListing struct {
	ID        string          `json:"id"`
	TicketID  string          `json:"ticket_id"`
	SellerID  string          `json:"seller_id"`
	EventID   string          `json:"event_id"`
	Price     decimal.Decimal `json:"price"`
	Status    ListingStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// ResaleTransfer records the resolution of a listing: the old ticket it
// invalidated and the new ticket it issued, committed as one unit.
type ResaleTransfer struct {
	ID          string    `json:"id"`
	ListingID   string    `json:"listing_id"`
	BuyerID     string    `json:"buyer_id"`
	OldTicketID string    `json:"old_ticket_id"`
	NewTicketID string    `json:"new_ticket_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReviewFlag is an operator-attention record: a captured payment whose
// fulfillment or transfer could not be applied automatically (storage
// failure, resale race loser awaiting refund).
type ReviewFlag struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // fulfillment_retry, refund_required
	RefID     string    `json:"ref_id"`
	BuyerID   string    `json:"buyer_id,omitempty"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}
