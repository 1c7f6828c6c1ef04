// Package scan validates admission credentials at the gate. A credential
// admits at most once, and a credential invalidated by a resale transfer
// is always rejected.
package scan

import (
	"context"
	"errors"

	"ticket-marketplace/internal/clock"
	"ticket-marketplace/internal/ledger"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
	"ticket-marketplace/monitoring"
)

type Validator struct {
	store ledger.Store
	clock clock.Clock
}

func NewValidator(store ledger.Store, clk clock.Clock) *Validator {
	return &Validator{store: store, clock: clk}
}

// Scan admits a credential exactly once. The scanned-at guard runs in
// the same unit as the lookup so two gates scanning the same QR cannot
// both admit.
func (v *Validator) Scan(ctx context.Context, credential string) (*models.Ticket, error) {
	var admitted *models.Ticket

	err := v.store.WithTx(ctx, func(txCtx context.Context) error {
		t, err := v.store.TicketByCredential(txCtx, credential)
		if err != nil {
			return err
		}
		if !t.Valid {
			return status.ErrCredentialInvalid
		}
		if t.ScannedAt != nil {
			return status.ErrAlreadyScanned
		}
		if err := v.store.MarkTicketScanned(txCtx, t.ID, v.clock.Now()); err != nil {
			return err
		}
		admitted = t
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, status.ErrTicketNotFound):
			monitoring.TrackScan("unknown")
		case errors.Is(err, status.ErrCredentialInvalid):
			monitoring.TrackScan("invalid")
		case errors.Is(err, status.ErrAlreadyScanned):
			monitoring.TrackScan("duplicate")
		default:
			monitoring.TrackScan("error")
		}
		return nil, err
	}

	monitoring.TrackScan("admitted")
	return admitted, nil
}
