package memory

import (
	"context"
	"fmt"
	"sync"

	"ticket-marketplace/internal/status"
)

// Gate is an in-process InventoryGate. Hold is a compare-and-decrement
// under one mutex, so concurrent creates cannot oversell.
type Gate struct {
	mu        sync.Mutex
	remaining map[string]int
}

func NewGate() *Gate {
	return &Gate{remaining: make(map[string]int)}
}

// Seed sets the remaining capacity for a ticket type.
func (g *Gate) Seed(ticketTypeID string, remaining int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.remaining[ticketTypeID] = remaining
}

func (g *Gate) Hold(ctx context.Context, ticketTypeID string, quantity int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	left, ok := g.remaining[ticketTypeID]
	if !ok {
		return fmt.Errorf("inventory: unknown ticket type %s", ticketTypeID)
	}
	if quantity > left {
		return status.ErrCapacityExceeded
	}
	g.remaining[ticketTypeID] = left - quantity
	return nil
}

func (g *Gate) Release(ctx context.Context, ticketTypeID string, quantity int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.remaining[ticketTypeID] += quantity
	return nil
}

func (g *Gate) Remaining(ctx context.Context, ticketTypeID string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining[ticketTypeID], nil
}
