package handlers

import (
	"errors"
	"net/http"

	"ticket-marketplace/internal/ledger"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// AdminHandler exposes the operator reconciliation surface: purchases
// whose fulfillment could not be committed and resale refunds waiting
// for compensation.
type AdminHandler struct {
	app            *pocketbase.PocketBase
	store          ledger.Store
	fulfillment    *ledger.FulfillmentEngine
	paymentService *services.PaymentService
}

func NewAdminHandler(app *pocketbase.PocketBase, store ledger.Store, fulfillment *ledger.FulfillmentEngine, paymentService *services.PaymentService) *AdminHandler {
	return &AdminHandler{
		app:            app,
		store:          store,
		fulfillment:    fulfillment,
		paymentService: paymentService,
	}
}

func requireSuperuser(e *core.RequestEvent) error {
	if e.Auth == nil || !e.Auth.IsSuperuser() {
		return apis.NewForbiddenError("Superuser access required", nil)
	}
	return nil
}

// GetReconciliationDashboard - Flagged purchases and refund flags
func (h *AdminHandler) GetReconciliationDashboard(e *core.RequestEvent) error {
	if err := requireSuperuser(e); err != nil {
		return err
	}

	ctx := e.Request.Context()

	flaggedPurchases, err := h.store.ListPurchasesForReview(ctx)
	if err != nil {
		return apis.NewBadRequestError("Failed to list flagged purchases", err)
	}
	flags, err := h.store.ListReviewFlags(ctx)
	if err != nil {
		return apis.NewBadRequestError("Failed to list review flags", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"flagged_purchases": flaggedPurchases,
		"review_flags":      flags,
	})
}

// RetryFulfillment - Re-run fulfillment for all flagged purchases
func (h *AdminHandler) RetryFulfillment(e *core.RequestEvent) error {
	if err := requireSuperuser(e); err != nil {
		return err
	}

	if err := h.fulfillment.Retry(e.Request.Context()); err != nil {
		return apis.NewBadRequestError("Retry failed", err)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Fulfillment retry completed"})
}

// ReconcilePurchase - Re-check a pending purchase against the provider
func (h *AdminHandler) ReconcilePurchase(e *core.RequestEvent) error {
	if err := requireSuperuser(e); err != nil {
		return err
	}

	var req struct {
		PurchaseID string `json:"purchase_id"`
	}
	if err := e.BindBody(&req); err != nil || req.PurchaseID == "" {
		return apis.NewBadRequestError("purchase_id required", err)
	}

	err := h.paymentService.ReconcilePurchase(e.Request.Context(), req.PurchaseID)
	switch {
	case err == nil:
		return e.JSON(http.StatusOK, map[string]any{"message": "Purchase reconciled"})
	case errors.Is(err, status.ErrAlreadyTerminal):
		return e.JSON(http.StatusOK, map[string]any{"message": "Purchase already resolved"})
	case errors.Is(err, status.ErrProviderRejected):
		return e.JSON(http.StatusOK, map[string]any{"message": "Provider rejected the payment, purchase failed"})
	case errors.Is(err, status.ErrNotConfirmedPaid):
		return e.JSON(http.StatusOK, map[string]any{"message": "Provider has not confirmed payment yet"})
	case errors.Is(err, status.ErrPurchaseNotFound):
		return apis.NewNotFoundError("Purchase not found", nil)
	default:
		return apis.NewBadRequestError("Reconciliation failed", err)
	}
}
