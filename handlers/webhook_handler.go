package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"ticket-marketplace/internal/gateway/paylink"
	"ticket-marketplace/models"
	"ticket-marketplace/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type WebhookHandler struct {
	app            *pocketbase.PocketBase
	paymentService *services.PaymentService
	hmacKey        string
	secretHash     string
}

func NewWebhookHandler(app *pocketbase.PocketBase, paymentService *services.PaymentService, hmacKey, secretHash string) *WebhookHandler {
	return &WebhookHandler{
		app:            app,
		paymentService: paymentService,
		hmacKey:        hmacKey,
		secretHash:     secretHash,
	}
}

// authorizeSecret checks a presented webhook secret against the stored
// bcrypt hash. An empty configured hash disables the check.
func (h *WebhookHandler) authorizeSecret(presented string) bool {
	if h.secretHash == "" {
		return true
	}
	return paylink.CompareWebhookSecret(h.secretHash, presented)
}

// readSigned verifies the provider credentials before the body is
// parsed. Raw payloads are logged on failure, never echoed back to the
// caller.
func (h *WebhookHandler) readSigned(e *core.RequestEvent) ([]byte, error) {
	if !h.authorizeSecret(e.Request.Header.Get("X-Webhook-Secret")) {
		h.app.Logger().Warn("webhook secret mismatch", "ip", e.Request.RemoteAddr)
		return nil, apis.NewForbiddenError("Invalid webhook credentials", nil)
	}

	body, err := io.ReadAll(e.Request.Body)
	if err != nil {
		return nil, apis.NewBadRequestError("Invalid request", err)
	}

	if h.hmacKey != "" {
		signature := e.Request.Header.Get("SignedHash")
		if !paylink.VerifySignature(body, []byte(h.hmacKey), signature) {
			h.app.Logger().Warn("webhook signature mismatch", "body", string(body))
			return nil, apis.NewForbiddenError("Invalid signature", nil)
		}
	}
	return body, nil
}

// ReportOutcome - Provider webhook for purchase payments. Delivery is
// at-least-once; reprocessing an already-applied outcome is a no-op.
func (h *WebhookHandler) ReportOutcome(e *core.RequestEvent) error {
	body, err := h.readSigned(e)
	if err != nil {
		return err
	}

	var req struct {
		ProviderRef string                 `json:"provider_ref"`
		PurchaseID  string                 `json:"purchase_id"`
		Outcome     models.ProviderOutcome `json:"outcome"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ctx := e.Request.Context()
	if err := h.paymentService.ApplyOutcome(ctx, &models.OutcomeNotification{
		ProviderRef: req.ProviderRef,
		PurchaseID:  req.PurchaseID,
		Outcome:     req.Outcome,
		Timestamp:   time.Now().UTC(),
	}); err != nil {
		h.app.Logger().Error("webhook outcome not applied",
			"purchase_id", req.PurchaseID, "outcome", req.Outcome, "error", err)
		// 500 makes the provider redeliver; the apply is idempotent.
		return apis.NewApiError(http.StatusInternalServerError, "Outcome not applied", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Outcome applied"})
}

// SimulatePayment - Resolve a sandbox session (for testing)
func (h *WebhookHandler) SimulatePayment(e *core.RequestEvent) error {
	var req struct {
		ProviderRef string                 `json:"provider_ref"`
		Outcome     models.ProviderOutcome `json:"outcome"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	sandbox, ok := h.paymentService.Gateway.(interface {
		Resolve(providerRef string, outcome models.ProviderOutcome) error
	})
	if !ok {
		return apis.NewBadRequestError("Simulation requires the sandbox provider", nil)
	}

	if err := sandbox.Resolve(req.ProviderRef, req.Outcome); err != nil {
		return apis.NewBadRequestError("Simulation failed", err)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Payment simulation sent"})
}
