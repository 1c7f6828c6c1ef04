package handlers

import (
	"errors"
	"net/http"

	"ticket-marketplace/internal/ledger"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
	"ticket-marketplace/monitoring"
	"ticket-marketplace/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type PurchaseHandler struct {
	app            *pocketbase.PocketBase
	ledger         *ledger.PurchaseLedger
	paymentService *services.PaymentService
}

func NewPurchaseHandler(app *pocketbase.PocketBase, purchaseLedger *ledger.PurchaseLedger, paymentService *services.PaymentService) *PurchaseHandler {
	return &PurchaseHandler{
		app:            app,
		ledger:         purchaseLedger,
		paymentService: paymentService,
	}
}

// CreatePurchase - Reserve inventory and open a payment session
func (h *PurchaseHandler) CreatePurchase(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		EventID      string `json:"event_id"`
		TicketTypeID string `json:"ticket_type_id"`
		Quantity     int    `json:"quantity"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Quantity <= 0 {
		return apis.NewBadRequestError("Quantity must be positive", nil)
	}

	ctx := e.Request.Context()

	ticketType, err := h.app.FindRecordById("ticket_types", req.TicketTypeID)
	if err != nil {
		return apis.NewBadRequestError("Invalid ticket type", err)
	}
	if ticketType.GetString("event_id") != req.EventID {
		return apis.NewBadRequestError("Ticket type does not belong to event", nil)
	}
	if maxPer := ticketType.GetInt("max_per_purchase"); maxPer > 0 && req.Quantity > maxPer {
		return apis.NewBadRequestError("Quantity exceeds the per-purchase limit", nil)
	}

	price, err := decimal.NewFromString(ticketType.GetString("price"))
	if err != nil {
		return apis.NewBadRequestError("Invalid ticket type price", err)
	}

	purchase, err := h.ledger.Create(ctx, ledger.CreateInput{
		BuyerID:      e.Auth.Id,
		EventID:      req.EventID,
		TicketTypeID: req.TicketTypeID,
		Quantity:     req.Quantity,
		UnitPrice:    price,
	})
	if err != nil {
		if errors.Is(err, status.ErrCapacityExceeded) {
			monitoring.TrackPurchaseCreated("capacity_exceeded")
			return apis.NewBadRequestError("Not enough tickets remaining", nil)
		}
		monitoring.TrackPurchaseCreated("error")
		return apis.NewBadRequestError("Failed to create purchase", err)
	}
	monitoring.TrackPurchaseCreated("ok")

	session, err := h.paymentService.CreatePurchaseSession(ctx, purchase)
	if err != nil {
		// Cancel the purchase so its hold is released right away; a
		// buyer without a session cannot pay for it anyway.
		if cancelErr := h.ledger.Cancel(ctx, purchase.ID, "payment session unavailable"); cancelErr != nil {
			h.app.Logger().Error("failed to cancel purchase without session",
				"purchase_id", purchase.ID, "error", cancelErr)
		}
		return apis.NewBadRequestError("Failed to create payment session", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"purchase_id": purchase.ID,
		"status":      purchase.Status,
		"amount":      purchase.TotalAmount.String(),
		"payment": map[string]any{
			"provider_ref": session.ProviderRef,
			"redirect_url": session.RedirectURL,
			"qr_payload":   session.QRPayload,
			"expires_at":   session.ExpiresAt,
		},
	})
}

// GetPurchaseStatus - Poll endpoint; side-effect-free
func (h *PurchaseHandler) GetPurchaseStatus(e *core.RequestEvent) error {
	purchaseID := e.Request.PathValue("purchaseId")
	ctx := e.Request.Context()

	purchase, err := h.ledger.Get(ctx, purchaseID)
	if err != nil {
		return apis.NewNotFoundError("Purchase not found", nil)
	}

	resp := map[string]any{"status": purchase.Status}

	if purchase.Status == models.PurchaseCompleted {
		tickets, err := h.ledger.Tickets(ctx, purchaseID)
		if err == nil {
			resp["tickets"] = tickets
		}
	}

	return e.JSON(http.StatusOK, resp)
}

// GetPaymentDetails - Re-fetch the live payment session for a purchase
func (h *PurchaseHandler) GetPaymentDetails(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	purchaseID := e.Request.PathValue("purchaseId")
	ctx := e.Request.Context()

	session, err := h.paymentService.Session(ctx, purchaseID)
	if err != nil {
		return apis.NewNotFoundError("Payment session not found", nil)
	}
	if session["buyer_id"] != e.Auth.Id {
		return apis.NewForbiddenError("Access denied", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"purchase_id":  purchaseID,
		"amount":       session["amount"],
		"status":       session["status"],
		"qr_payload":   session["qr_payload"],
		"redirect_url": session["redirect_url"],
	})
}

// CancelPurchase - Buyer abandons a pending purchase
func (h *PurchaseHandler) CancelPurchase(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	purchaseID := e.Request.PathValue("purchaseId")
	ctx := e.Request.Context()

	purchase, err := h.ledger.Get(ctx, purchaseID)
	if err != nil {
		return apis.NewNotFoundError("Purchase not found", nil)
	}
	if purchase.BuyerID != e.Auth.Id {
		return apis.NewForbiddenError("Access denied", nil)
	}

	if err := h.ledger.Cancel(ctx, purchaseID, "cancelled by buyer"); err != nil {
		if errors.Is(err, status.ErrAlreadyTerminal) {
			return apis.NewBadRequestError("Purchase is no longer pending", nil)
		}
		return apis.NewBadRequestError("Failed to cancel purchase", err)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Purchase cancelled"})
}

// GetPurchaseHistory - Buyer's purchases, newest first; the place a
// deferred poll outcome gets resolved later
func (h *PurchaseHandler) GetPurchaseHistory(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ctx := e.Request.Context()

	purchases, err := h.ledger.History(ctx, e.Auth.Id, 20)
	if err != nil {
		return apis.NewBadRequestError("Failed to get purchases", err)
	}

	return e.JSON(http.StatusOK, purchases)
}
