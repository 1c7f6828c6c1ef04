package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
	PurchaseCancelled PurchaseStatus = "cancelled"
)

// Terminal reports whether no further transition is defined for the status.
func (s PurchaseStatus) Terminal() bool {
	return s == PurchaseCompleted || s == PurchaseFailed || s == PurchaseCancelled
}

// Purchase is one buyer's attempt to acquire N tickets of a ticket type.
// Records are never deleted; terminal rows are kept as the audit trail.
type Purchase struct {
	ID           string          `json:"id"`
	BuyerID      string          `json:"buyer_id"`
	EventID      string          `json:"event_id"`
	TicketTypeID string          `json:"ticket_type_id"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Status       PurchaseStatus  `json:"status"`
	ProviderRef  string          `json:"provider_ref,omitempty"`
	FailReason   string          `json:"fail_reason,omitempty"`
	// NeedsReview marks a purchase whose payment was captured but whose
	// fulfillment could not be committed, so an operator job can retry it.
	NeedsReview    bool      `json:"needs_review,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	TransitionedAt time.Time `json:"transitioned_at"`
}

type ProviderOutcome string

const (
	OutcomeApproved ProviderOutcome = "approved"
	OutcomePending  ProviderOutcome = "pending"
	OutcomeRejected ProviderOutcome = "rejected"
)

// OutcomeNotification is the normalized payload the payment provider
// delivers out-of-band (webhook or redirect callback). Delivery is
// at-least-once, so applying the same notification twice must be a no-op.
type OutcomeNotification struct {
	ProviderRef string          `json:"provider_ref"`
	PurchaseID  string          `json:"purchase_id"`
	Outcome     ProviderOutcome `json:"outcome"`
	Timestamp   time.Time       `json:"timestamp"`
}
