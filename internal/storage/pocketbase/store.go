// Package pocketbase persists ledger state in PocketBase collections.
// Guarded transitions are plain conditional UPDATEs through dbx so a
// lost race shows up as zero affected rows instead of a silent overwrite.
package pocketbase

import (
	"context"
	"fmt"
	"time"

	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type appKey struct{}

type Store struct {
	app core.App
}

func NewStore(app core.App) *Store {
	return &Store{app: app}
}

// db returns the transactional app when running inside WithTx.
func (s *Store) db(ctx context.Context) core.App {
	if tx, ok := ctx.Value(appKey{}).(core.App); ok {
		return tx
	}
	return s.app
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(appKey{}).(core.App); ok {
		return fn(ctx)
	}
	return s.db(ctx).RunInTransaction(func(txApp core.App) error {
		return fn(context.WithValue(ctx, appKey{}, txApp))
	})
}

func (s *Store) CreatePurchase(ctx context.Context, p *models.Purchase) error {
	app := s.db(ctx)
	collection, err := app.FindCollectionByNameOrId("purchases")
	if err != nil {
		return fmt.Errorf("purchases collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("id", p.ID)
	record.Set("buyer_id", p.BuyerID)
	record.Set("event_id", p.EventID)
	record.Set("ticket_type_id", p.TicketTypeID)
	record.Set("quantity", p.Quantity)
	record.Set("unit_price", p.UnitPrice.String())
	record.Set("total_amount", p.TotalAmount.String())
	record.Set("status", string(p.Status))
	record.Set("provider_ref", p.ProviderRef)
	record.Set("needs_review", p.NeedsReview)
	record.Set("purchased_at", p.CreatedAt)
	record.Set("transitioned_at", p.TransitionedAt)

	return app.SaveWithContext(ctx, record)
}

func (s *Store) GetPurchase(ctx context.Context, id string) (*models.Purchase, error) {
	record, err := s.db(ctx).FindRecordById("purchases", id)
	if err != nil {
		return nil, status.ErrPurchaseNotFound
	}
	return purchaseFromRecord(record), nil
}

func purchaseFromRecord(r *core.Record) *models.Purchase {
	unit, _ := decimal.NewFromString(r.GetString("unit_price"))
	total, _ := decimal.NewFromString(r.GetString("total_amount"))
	return &models.Purchase{
		ID:             r.Id,
		BuyerID:        r.GetString("buyer_id"),
		EventID:        r.GetString("event_id"),
		TicketTypeID:   r.GetString("ticket_type_id"),
		Quantity:       r.GetInt("quantity"),
		UnitPrice:      unit,
		TotalAmount:    total,
		Status:         models.PurchaseStatus(r.GetString("status")),
		ProviderRef:    r.GetString("provider_ref"),
		FailReason:     r.GetString("fail_reason"),
		NeedsReview:    r.GetBool("needs_review"),
		CreatedAt:      r.GetDateTime("purchased_at").Time(),
		TransitionedAt: r.GetDateTime("transitioned_at").Time(),
	}
}

func (s *Store) TransitionPurchase(ctx context.Context, id string, from, to models.PurchaseStatus, reason string, at time.Time) error {
	res, err := s.db(ctx).DB().NewQuery(
		"UPDATE purchases SET status = {:to}, fail_reason = {:reason}, transitioned_at = {:at} WHERE id = {:id} AND status = {:from}",
	).Bind(dbx.Params{
		"to":     string(to),
		"reason": reason,
		"at":     at.UTC().Format(time.RFC3339Nano),
		"id":     id,
		"from":   string(from),
	}).Execute()
	if err != nil {
		return fmt.Errorf("transition purchase: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition purchase: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetPurchase(ctx, id); err != nil {
			return err
		}
		return status.ErrAlreadyTerminal
	}
	return nil
}

func (s *Store) SetPurchaseProviderRef(ctx context.Context, id, providerRef string) error {
	_, err := s.db(ctx).DB().NewQuery(
		"UPDATE purchases SET provider_ref = {:ref} WHERE id = {:id} AND provider_ref = ''",
	).Bind(dbx.Params{"ref": providerRef, "id": id}).Execute()
	return err
}

func (s *Store) MarkPurchaseForReview(ctx context.Context, id string) error {
	_, err := s.db(ctx).DB().NewQuery(
		"UPDATE purchases SET needs_review = TRUE WHERE id = {:id}",
	).Bind(dbx.Params{"id": id}).Execute()
	return err
}

func (s *Store) ListPurchasesForReview(ctx context.Context) ([]*models.Purchase, error) {
	records, err := s.db(ctx).FindRecordsByFilter(
		"purchases",
		"needs_review = true && status = 'pending'",
		"-purchased_at",
		0,
		0,
	)
	if err != nil {
		return nil, err
	}
	return purchasesFromRecords(records), nil
}

func (s *Store) ListStalePending(ctx context.Context, olderThan time.Time) ([]*models.Purchase, error) {
	records, err := s.db(ctx).FindRecordsByFilter(
		"purchases",
		"status = 'pending' && needs_review = false && purchased_at < {:cutoff}",
		"-purchased_at",
		0,
		0,
		dbx.Params{"cutoff": olderThan.UTC().Format(time.RFC3339Nano)},
	)
	if err != nil {
		return nil, err
	}
	return purchasesFromRecords(records), nil
}

func (s *Store) PurchasesByBuyer(ctx context.Context, buyerID string, limit int) ([]*models.Purchase, error) {
	records, err := s.db(ctx).FindRecordsByFilter(
		"purchases",
		"buyer_id = {:buyerId}",
		"-purchased_at",
		limit,
		0,
		dbx.Params{"buyerId": buyerID},
	)
	if err != nil {
		return nil, err
	}
	return purchasesFromRecords(records), nil
}

func purchasesFromRecords(records []*core.Record) []*models.Purchase {
	out := make([]*models.Purchase, 0, len(records))
	for _, r := range records {
		out = append(out, purchaseFromRecord(r))
	}
	return out
}

func (s *Store) CreateTickets(ctx context.Context, tickets []*models.Ticket) error {
	app := s.db(ctx)
	collection, err := app.FindCollectionByNameOrId("tickets")
	if err != nil {
		return fmt.Errorf("tickets collection: %w", err)
	}

	for _, t := range tickets {
		record := core.NewRecord(collection)
		record.Set("id", t.ID)
		record.Set("purchase_id", t.PurchaseID)
		record.Set("transfer_id", t.TransferID)
		record.Set("event_id", t.EventID)
		record.Set("ticket_type_id", t.TicketTypeID)
		record.Set("owner_id", t.OwnerID)
		record.Set("credential", t.Credential)
		record.Set("valid", t.Valid)
		record.Set("issued_at", t.IssuedAt)
		if err := app.SaveWithContext(ctx, record); err != nil {
			return fmt.Errorf("save ticket: %w", err)
		}
	}
	return nil
}

func (s *Store) TicketsByPurchase(ctx context.Context, purchaseID string) ([]*models.Ticket, error) {
	records, err := s.db(ctx).FindRecordsByFilter(
		"tickets",
		"purchase_id = {:purchaseId}",
		"id",
		0,
		0,
		dbx.Params{"purchaseId": purchaseID},
	)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Ticket, 0, len(records))
	for _, r := range records {
		out = append(out, ticketFromRecord(r))
	}
	return out, nil
}

func ticketFromRecord(r *core.Record) *models.Ticket {
	t := &models.Ticket{
		ID:           r.Id,
		PurchaseID:   r.GetString("purchase_id"),
		TransferID:   r.GetString("transfer_id"),
		EventID:      r.GetString("event_id"),
		TicketTypeID: r.GetString("ticket_type_id"),
		OwnerID:      r.GetString("owner_id"),
		Credential:   r.GetString("credential"),
		Valid:        r.GetBool("valid"),
		IssuedAt:     r.GetDateTime("issued_at").Time(),
	}
	if scanned := r.GetDateTime("scanned_at"); !scanned.IsZero() {
		at := scanned.Time()
		t.ScannedAt = &at
	}
	return t
}

func (s *Store) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	record, err := s.db(ctx).FindRecordById("tickets", id)
	if err != nil {
		return nil, status.ErrTicketNotFound
	}
	return ticketFromRecord(record), nil
}

func (s *Store) TicketByCredential(ctx context.Context, credential string) (*models.Ticket, error) {
	record, err := s.db(ctx).FindFirstRecordByFilter(
		"tickets",
		"credential = {:credential}",
		dbx.Params{"credential": credential},
	)
	if err != nil {
		return nil, status.ErrTicketNotFound
	}
	return ticketFromRecord(record), nil
}

func (s *Store) InvalidateTicket(ctx context.Context, id string) error {
	res, err := s.db(ctx).DB().NewQuery(
		"UPDATE tickets SET valid = FALSE WHERE id = {:id}",
	).Bind(dbx.Params{"id": id}).Execute()
	if err != nil {
		return fmt.Errorf("invalidate ticket: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return status.ErrTicketNotFound
	}
	return nil
}

func (s *Store) MarkTicketScanned(ctx context.Context, id string, at time.Time) error {
	res, err := s.db(ctx).DB().NewQuery(
		"UPDATE tickets SET scanned_at = {:at} WHERE id = {:id} AND (scanned_at = '' OR scanned_at IS NULL)",
	).Bind(dbx.Params{"at": at.UTC().Format(time.RFC3339Nano), "id": id}).Execute()
	if err != nil {
		return fmt.Errorf("mark ticket scanned: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return status.ErrAlreadyScanned
	}
	return nil
}

func (s *Store) CreateListing(ctx context.Context, l *models.ResaleListing) error {
	app := s.db(ctx)
	collection, err := app.FindCollectionByNameOrId("resale_listings")
	if err != nil {
		return fmt.Errorf("resale_listings collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("id", l.ID)
	record.Set("ticket_id", l.TicketID)
	record.Set("seller_id", l.SellerID)
	record.Set("event_id", l.EventID)
	record.Set("price", l.Price.String())
	record.Set("status", string(l.Status))
	record.Set("listed_at", l.CreatedAt)

	return app.SaveWithContext(ctx, record)
}

func (s *Store) GetListing(ctx context.Context, id string) (*models.ResaleListing, error) {
	record, err := s.db(ctx).FindRecordById("resale_listings", id)
	if err != nil {
		return nil, status.ErrListingNotFound
	}
	price, _ := decimal.NewFromString(record.GetString("price"))
	return &models.ResaleListing{
		ID:        record.Id,
		TicketID:  record.GetString("ticket_id"),
		SellerID:  record.GetString("seller_id"),
		EventID:   record.GetString("event_id"),
		Price:     price,
		Status:    models.ListingStatus(record.GetString("status")),
		CreatedAt: record.GetDateTime("listed_at").Time(),
	}, nil
}

// ConsumeListing is the exclusive gate of the transfer unit: of two
// racing buyers only one UPDATE can move the row out of active.
func (s *Store) ConsumeListing(ctx context.Context, id string) error {
	res, err := s.db(ctx).DB().NewQuery(
		"UPDATE resale_listings SET status = {:to} WHERE id = {:id} AND status = {:from}",
	).Bind(dbx.Params{
		"to":   string(models.ListingConsumed),
		"id":   id,
		"from": string(models.ListingActive),
	}).Execute()
	if err != nil {
		return fmt.Errorf("consume listing: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume listing: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetListing(ctx, id); err != nil {
			return err
		}
		return status.ErrListingAlreadyConsumed
	}
	return nil
}

func (s *Store) CreateTransfer(ctx context.Context, t *models.ResaleTransfer) error {
	app := s.db(ctx)
	collection, err := app.FindCollectionByNameOrId("resale_transfers")
	if err != nil {
		return fmt.Errorf("resale_transfers collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("id", t.ID)
	record.Set("listing_id", t.ListingID)
	record.Set("buyer_id", t.BuyerID)
	record.Set("old_ticket_id", t.OldTicketID)
	record.Set("new_ticket_id", t.NewTicketID)
	record.Set("transferred_at", t.CreatedAt)

	return app.SaveWithContext(ctx, record)
}

func (s *Store) CreateReviewFlag(ctx context.Context, f *models.ReviewFlag) error {
	app := s.db(ctx)
	collection, err := app.FindCollectionByNameOrId("review_flags")
	if err != nil {
		return fmt.Errorf("review_flags collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("id", f.ID)
	record.Set("kind", f.Kind)
	record.Set("ref_id", f.RefID)
	record.Set("buyer_id", f.BuyerID)
	record.Set("note", f.Note)
	record.Set("flagged_at", f.CreatedAt)

	return app.SaveWithContext(ctx, record)
}

func (s *Store) ListReviewFlags(ctx context.Context) ([]*models.ReviewFlag, error) {
	records, err := s.db(ctx).FindRecordsByFilter(
		"review_flags",
		"id != ''",
		"-flagged_at",
		0,
		0,
	)
	if err != nil {
		return nil, err
	}
	out := make([]*models.ReviewFlag, 0, len(records))
	for _, r := range records {
		out = append(out, &models.ReviewFlag{
			ID:        r.Id,
			Kind:      r.GetString("kind"),
			RefID:     r.GetString("ref_id"),
			BuyerID:   r.GetString("buyer_id"),
			Note:      r.GetString("note"),
			CreatedAt: r.GetDateTime("flagged_at").Time(),
		})
	}
	return out, nil
}
