// Package poller implements the buyer-facing reconciliation protocol:
// after returning from the payment provider the client polls purchase
// status on a fixed interval with a bounded attempt budget, because the
// provider's confirmation may arrive out-of-band after the redirect.
package poller

import (
	"context"
	"time"

	"ticket-marketplace/models"
)

// StatusClient reads the current status of a purchase. Polling is purely
// an observer: it holds no server-side resources.
type StatusClient interface {
	PurchaseStatus(ctx context.Context, purchaseID string) (models.PurchaseStatus, error)
}

// Policy bounds the poll loop. A transport error spends an attempt from
// the same budget instead of terminating the loop, so transient network
// hiccups are never conflated with a payment failure.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
}

func DefaultPolicy() Policy {
	return Policy{
		Interval:    2 * time.Second,
		MaxAttempts: 10,
	}
}

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeDeferred means the attempt budget ran out while the purchase
	// was still pending. This is a designed degradation, not an error: the
	// purchase stays pending and can be resolved later from the buyer's
	// purchase history.
	OutcomeDeferred Outcome = "deferred"
)

type Result struct {
	Outcome  Outcome
	Status   models.PurchaseStatus
	Attempts int
	// LastErr is the transport error of the final attempt, kept for
	// logging. It is never surfaced as a payment outcome.
	LastErr error
}

type Poller struct {
	client StatusClient
	policy Policy
}

func New(client StatusClient, policy Policy) *Poller {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy().MaxAttempts
	}
	if policy.Interval <= 0 {
		policy.Interval = DefaultPolicy().Interval
	}
	return &Poller{client: client, policy: policy}
}

// Await polls until a terminal status is observed or the budget runs
// out. Cancelling ctx abandons the loop between attempts with no side
// effects.
func (p *Poller) Await(ctx context.Context, purchaseID string) (Result, error) {
	var lastErr error

	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		st, err := p.client.PurchaseStatus(ctx, purchaseID)
		if err != nil {
			if ctx.Err() != nil {
				return Result{Attempts: attempt, LastErr: err}, ctx.Err()
			}
			// Transient: spend the attempt and keep going.
			lastErr = err
		} else {
			lastErr = nil
			switch st {
			case models.PurchaseCompleted:
				return Result{Outcome: OutcomeCompleted, Status: st, Attempts: attempt}, nil
			case models.PurchaseFailed:
				return Result{Outcome: OutcomeFailed, Status: st, Attempts: attempt}, nil
			case models.PurchaseCancelled:
				return Result{Outcome: OutcomeCancelled, Status: st, Attempts: attempt}, nil
			}
		}

		if attempt == p.policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return Result{Attempts: attempt}, ctx.Err()
		case <-time.After(p.policy.Interval):
		}
	}

	return Result{
		Outcome:  OutcomeDeferred,
		Status:   models.PurchasePending,
		Attempts: p.policy.MaxAttempts,
		LastErr:  lastErr,
	}, nil
}
