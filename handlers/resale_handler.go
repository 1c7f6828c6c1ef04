package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ticket-marketplace/internal/ledger"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
	"ticket-marketplace/monitoring"
	"ticket-marketplace/services"
	"ticket-marketplace/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type ResaleHandler struct {
	app            *pocketbase.PocketBase
	store          ledger.Store
	paymentService *services.PaymentService
	webhook        *WebhookHandler
}

func NewResaleHandler(app *pocketbase.PocketBase, store ledger.Store, paymentService *services.PaymentService, webhook *WebhookHandler) *ResaleHandler {
	return &ResaleHandler{
		app:            app,
		store:          store,
		paymentService: paymentService,
		webhook:        webhook,
	}
}

// CreateListing - Seller lists one of their valid tickets for resale
func (h *ResaleHandler) CreateListing(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		TicketID string `json:"ticket_id"`
		Price    string `json:"price"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		return apis.NewBadRequestError("Invalid price", err)
	}

	ctx := e.Request.Context()

	ticket, err := h.store.GetTicket(ctx, req.TicketID)
	if err != nil {
		return apis.NewNotFoundError("Ticket not found", nil)
	}
	if ticket.OwnerID != e.Auth.Id {
		return apis.NewForbiddenError("Access denied", nil)
	}
	if !ticket.Valid {
		return apis.NewBadRequestError("Ticket is no longer valid", nil)
	}
	if ticket.ScannedAt != nil {
		return apis.NewBadRequestError("Ticket already used for admission", nil)
	}

	listing := &models.ResaleListing{
		ID:        utils.NewID(),
		TicketID:  ticket.ID,
		SellerID:  e.Auth.Id,
		EventID:   ticket.EventID,
		Price:     price,
		Status:    models.ListingActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateListing(ctx, listing); err != nil {
		return apis.NewBadRequestError("Failed to create listing", err)
	}

	return e.JSON(http.StatusOK, listing)
}

// CreateResalePayment - Buyer opens a payment session for a listing
func (h *ResaleHandler) CreateResalePayment(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	listingID := e.Request.PathValue("listingId")
	ctx := e.Request.Context()

	listing, err := h.store.GetListing(ctx, listingID)
	if err != nil {
		return apis.NewNotFoundError("Listing not found", nil)
	}
	if listing.SellerID == e.Auth.Id {
		return apis.NewBadRequestError("Cannot buy your own listing", nil)
	}

	session, err := h.paymentService.CreateResaleSession(ctx, listing, e.Auth.Id)
	if err != nil {
		if errors.Is(err, status.ErrListingAlreadyConsumed) {
			return apis.NewBadRequestError("Listing is no longer available", nil)
		}
		return apis.NewBadRequestError("Failed to create payment session", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"listing_id": listingID,
		"amount":     listing.Price.String(),
		"payment": map[string]any{
			"provider_ref": session.ProviderRef,
			"redirect_url": session.RedirectURL,
			"qr_payload":   session.QRPayload,
			"expires_at":   session.ExpiresAt,
		},
	})
}

// ReportResaleOutcome - Provider webhook for resale payments. Safe to
// redeliver; the race loser is flagged for refund, not dropped.
func (h *ResaleHandler) ReportResaleOutcome(e *core.RequestEvent) error {
	body, err := h.webhook.readSigned(e)
	if err != nil {
		return err
	}

	var req struct {
		ListingID string                 `json:"listing_id"`
		BuyerID   string                 `json:"buyer_id"`
		Outcome   models.ProviderOutcome `json:"outcome"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ctx := e.Request.Context()
	transfer, ticket, err := h.paymentService.ApplyResaleOutcome(ctx, req.ListingID, req.BuyerID, req.Outcome)
	if err != nil {
		if errors.Is(err, status.ErrListingAlreadyConsumed) {
			monitoring.TrackResaleTransfer("lost_race")
			return apis.NewBadRequestError("Listing already sold, refund flagged", nil)
		}
		if errors.Is(err, status.ErrAlreadyScanned) {
			monitoring.TrackResaleTransfer("scanned")
			return apis.NewBadRequestError("Ticket already used at the gate, refund flagged", nil)
		}
		monitoring.TrackResaleTransfer("error")
		return apis.NewApiError(http.StatusInternalServerError, "Transfer not applied", nil)
	}

	if transfer == nil {
		// pending or rejected outcome; nothing to transfer
		return e.JSON(http.StatusOK, map[string]any{"message": "Outcome recorded"})
	}

	monitoring.TrackResaleTransfer("ok")
	return e.JSON(http.StatusOK, map[string]any{
		"transfer_id":   transfer.ID,
		"new_ticket_id": ticket.ID,
	})
}
