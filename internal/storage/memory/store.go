// Package memory provides an in-process Store and InventoryGate used by
// tests and by development setups without external services.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
)

type txKey struct{}

// Store keeps all records in maps of struct values; mutations replace
// whole values so a transaction snapshot can be restored on rollback.
type Store struct {
	mu sync.Mutex

	purchases map[string]models.Purchase
	tickets   map[string]models.Ticket
	listings  map[string]models.ResaleListing
	transfers map[string]models.ResaleTransfer
	flags     map[string]models.ReviewFlag
}

func NewStore() *Store {
	return &Store{
		purchases: make(map[string]models.Purchase),
		tickets:   make(map[string]models.Ticket),
		listings:  make(map[string]models.ResaleListing),
		transfers: make(map[string]models.ResaleTransfer),
		flags:     make(map[string]models.ReviewFlag),
	}
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

func (s *Store) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithTx serializes the whole unit of work and restores the pre-tx
// snapshot when fn fails, so partial effects are never observable.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	purchases map[string]models.Purchase
	tickets   map[string]models.Ticket
	listings  map[string]models.ResaleListing
	transfers map[string]models.ResaleTransfer
	flags     map[string]models.ReviewFlag
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		purchases: copyMap(s.purchases),
		tickets:   copyMap(s.tickets),
		listings:  copyMap(s.listings),
		transfers: copyMap(s.transfers),
		flags:     copyMap(s.flags),
	}
}

func (s *Store) restore(snap snapshot) {
	s.purchases = snap.purchases
	s.tickets = snap.tickets
	s.listings = snap.listings
	s.transfers = snap.transfers
	s.flags = snap.flags
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) CreatePurchase(ctx context.Context, p *models.Purchase) error {
	defer s.lock(ctx)()
	s.purchases[p.ID] = *p
	return nil
}

func (s *Store) GetPurchase(ctx context.Context, id string) (*models.Purchase, error) {
	defer s.lock(ctx)()
	p, ok := s.purchases[id]
	if !ok {
		return nil, status.ErrPurchaseNotFound
	}
	return &p, nil
}

func (s *Store) TransitionPurchase(ctx context.Context, id string, from, to models.PurchaseStatus, reason string, at time.Time) error {
	defer s.lock(ctx)()
	p, ok := s.purchases[id]
	if !ok {
		return status.ErrPurchaseNotFound
	}
	if p.Status != from {
		return status.ErrAlreadyTerminal
	}
	p.Status = to
	p.FailReason = reason
	p.TransitionedAt = at
	if to == models.PurchaseCompleted {
		p.NeedsReview = false
	}
	s.purchases[id] = p
	return nil
}

func (s *Store) SetPurchaseProviderRef(ctx context.Context, id, providerRef string) error {
	defer s.lock(ctx)()
	p, ok := s.purchases[id]
	if !ok {
		return status.ErrPurchaseNotFound
	}
	p.ProviderRef = providerRef
	s.purchases[id] = p
	return nil
}

func (s *Store) MarkPurchaseForReview(ctx context.Context, id string) error {
	defer s.lock(ctx)()
	p, ok := s.purchases[id]
	if !ok {
		return status.ErrPurchaseNotFound
	}
	p.NeedsReview = true
	s.purchases[id] = p
	return nil
}

func (s *Store) ListPurchasesForReview(ctx context.Context) ([]*models.Purchase, error) {
	defer s.lock(ctx)()
	var out []*models.Purchase
	for _, p := range s.purchases {
		if p.NeedsReview && p.Status == models.PurchasePending {
			p := p
			out = append(out, &p)
		}
	}
	sortPurchases(out)
	return out, nil
}

func (s *Store) ListStalePending(ctx context.Context, olderThan time.Time) ([]*models.Purchase, error) {
	defer s.lock(ctx)()
	var out []*models.Purchase
	for _, p := range s.purchases {
		if p.Status == models.PurchasePending && !p.NeedsReview && p.CreatedAt.Before(olderThan) {
			p := p
			out = append(out, &p)
		}
	}
	sortPurchases(out)
	return out, nil
}

func (s *Store) PurchasesByBuyer(ctx context.Context, buyerID string, limit int) ([]*models.Purchase, error) {
	defer s.lock(ctx)()
	var out []*models.Purchase
	for _, p := range s.purchases {
		if p.BuyerID == buyerID {
			p := p
			out = append(out, &p)
		}
	}
	sortPurchases(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortPurchases(ps []*models.Purchase) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].CreatedAt.After(ps[j].CreatedAt) })
}

func (s *Store) CreateTickets(ctx context.Context, tickets []*models.Ticket) error {
	defer s.lock(ctx)()
	for _, t := range tickets {
		s.tickets[t.ID] = *t
	}
	return nil
}

func (s *Store) TicketsByPurchase(ctx context.Context, purchaseID string) ([]*models.Ticket, error) {
	defer s.lock(ctx)()
	var out []*models.Ticket
	for _, t := range s.tickets {
		if t.PurchaseID == purchaseID {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	defer s.lock(ctx)()
	t, ok := s.tickets[id]
	if !ok {
		return nil, status.ErrTicketNotFound
	}
	return &t, nil
}

func (s *Store) TicketByCredential(ctx context.Context, credential string) (*models.Ticket, error) {
	defer s.lock(ctx)()
	for _, t := range s.tickets {
		if t.Credential == credential {
			t := t
			return &t, nil
		}
	}
	return nil, status.ErrTicketNotFound
}

func (s *Store) InvalidateTicket(ctx context.Context, id string) error {
	defer s.lock(ctx)()
	t, ok := s.tickets[id]
	if !ok {
		return status.ErrTicketNotFound
	}
	t.Valid = false
	s.tickets[id] = t
	return nil
}

func (s *Store) MarkTicketScanned(ctx context.Context, id string, at time.Time) error {
	defer s.lock(ctx)()
	t, ok := s.tickets[id]
	if !ok {
		return status.ErrTicketNotFound
	}
	scanned := at
	t.ScannedAt = &scanned
	s.tickets[id] = t
	return nil
}

func (s *Store) CreateListing(ctx context.Context, l *models.ResaleListing) error {
	defer s.lock(ctx)()
	s.listings[l.ID] = *l
	return nil
}

func (s *Store) GetListing(ctx context.Context, id string) (*models.ResaleListing, error) {
	defer s.lock(ctx)()
	l, ok := s.listings[id]
	if !ok {
		return nil, status.ErrListingNotFound
	}
	return &l, nil
}

func (s *Store) ConsumeListing(ctx context.Context, id string) error {
	defer s.lock(ctx)()
	l, ok := s.listings[id]
	if !ok {
		return status.ErrListingNotFound
	}
	if l.Status != models.ListingActive {
		return status.ErrListingAlreadyConsumed
	}
	l.Status = models.ListingConsumed
	s.listings[id] = l
	return nil
}

func (s *Store) CreateTransfer(ctx context.Context, t *models.ResaleTransfer) error {
	defer s.lock(ctx)()
	s.transfers[t.ID] = *t
	return nil
}

func (s *Store) CreateReviewFlag(ctx context.Context, f *models.ReviewFlag) error {
	defer s.lock(ctx)()
	s.flags[f.ID] = *f
	return nil
}

func (s *Store) ListReviewFlags(ctx context.Context) ([]*models.ReviewFlag, error) {
	defer s.lock(ctx)()
	var out []*models.ReviewFlag
	for _, f := range s.flags {
		f := f
		out = append(out, &f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
