package services

import (
	"context"
	"log/slog"
	"time"

	"ticket-marketplace/internal/clock"
	"ticket-marketplace/internal/ledger"
	"ticket-marketplace/monitoring"
)

// ExpiryService cancels purchases left pending past their hold TTL so
// abandoned checkouts do not lock inventory forever. Purchases flagged
// for review are skipped: their payment may have been captured and they
// belong to the operator reconciliation path instead.
type ExpiryService struct {
	ledger   *ledger.PurchaseLedger
	store    ledger.Store
	clock    clock.Clock
	holdTTL  time.Duration
	interval time.Duration
}

func NewExpiryService(purchaseLedger *ledger.PurchaseLedger, store ledger.Store, clk clock.Clock, holdTTL, interval time.Duration) *ExpiryService {
	return &ExpiryService{
		ledger:   purchaseLedger,
		store:    store,
		clock:    clk,
		holdTTL:  holdTTL,
		interval: interval,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *ExpiryService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				slog.Error("expiry sweep failed", "error", err)
			} else if n > 0 {
				slog.Info("expired stale pending purchases", "count", n)
			}
		}
	}
}

// SweepOnce cancels every pending purchase older than the hold TTL and
// returns how many it expired. Races with a landing provider approval
// are resolved by the per-purchase transition guard, so a purchase that
// completes mid-sweep is simply skipped.
func (s *ExpiryService) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.holdTTL)

	stale, err := s.store.ListStalePending(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, p := range stale {
		if err := s.ledger.Cancel(ctx, p.ID, "checkout expired"); err != nil {
			slog.Warn("could not expire purchase", "purchase_id", p.ID, "error", err)
			continue
		}
		expired++
		monitoring.TrackExpiry()
	}
	return expired, nil
}
