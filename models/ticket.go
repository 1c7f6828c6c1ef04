package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticket is a single admission credential. A credential is globally
// unique and, once invalidated by a resale transfer, never validates
// admission again.
type Ticket struct {
	ID           string     `json:"id"`
	PurchaseID   string     `json:"purchase_id,omitempty"`
	TransferID   string     `json:"transfer_id,omitempty"`
	EventID      string     `json:"event_id"`
	TicketTypeID string     `json:"ticket_type_id"`
	OwnerID      string     `json:"owner_id"`
	Credential   string     `json:"credential"` // QR payload
	Valid        bool       `json:"valid"`
	IssuedAt     time.Time  `json:"issued_at"`
	ScannedAt    *time.Time `json:"scanned_at,omitempty"`
}

type TicketType struct {
	ID       string          `json:"id"`
	EventID  string          `json:"event_id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Capacity int             `json:"capacity"`
}

type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Venue       string    `json:"venue"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Status      string    `json:"status"` // draft, published, started, ended
}
