package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"ticket-marketplace/config"
	"ticket-marketplace/handlers"
	"ticket-marketplace/internal/clock"
	"ticket-marketplace/internal/gateway"
	"ticket-marketplace/internal/gateway/paylink"
	"ticket-marketplace/internal/gateway/sandbox"
	"ticket-marketplace/internal/ledger"
	"ticket-marketplace/internal/scan"
	pbstore "ticket-marketplace/internal/storage/pocketbase"
	_ "ticket-marketplace/migrations"
	"ticket-marketplace/models"
	"ticket-marketplace/monitoring"
	"ticket-marketplace/security"
	"ticket-marketplace/services"
	"ticket-marketplace/utils"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	// Initialize PubNub (buyer push notifications)
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUUID))
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the payment gateway. Paylink is used when configured,
	// otherwise the in-process sandbox provider backs development and tests.
	registry := gateway.NewRegistry()
	if cfg.Provider == string(gateway.ProviderPaylink) {
		pl, err := paylink.New(ctx, &cfg.Paylink)
		if err != nil {
			return fmt.Errorf("init paylink gateway: %w", err)
		}
		registry.Register(pl)
	} else {
		registry.Register(sandbox.New())
	}
	defer registry.Close(context.Background())

	gw, err := registry.Primary()
	if err != nil {
		return err
	}

	outcomes := make(chan *models.OutcomeNotification, 16)
	gw.SetOutcomeChannel(outcomes)

	// Initialize storage and the reconciliation core
	store := pbstore.NewStore(app)
	clk := clock.NewSystem()

	inventoryService := services.NewInventoryService(redisClient)
	purchaseLedger := ledger.NewPurchaseLedger(store, inventoryService, clk)
	fulfillment := ledger.NewFulfillmentEngine(purchaseLedger)
	resale := ledger.NewResaleTransferEngine(purchaseLedger)

	// Initialize services
	paymentService := services.NewPaymentService(redisClient, pn, gw, purchaseLedger, fulfillment, resale, cfg.SessionTTL)
	expiryService := services.NewExpiryService(purchaseLedger, store, clk, cfg.PurchaseHoldTTL, cfg.ExpirySweep)

	// Initialize handlers
	purchaseHandler := handlers.NewPurchaseHandler(app, purchaseLedger, paymentService)
	webhookHandler := handlers.NewWebhookHandler(app, paymentService, cfg.WebhookHMACKey, cfg.WebhookSecretHash)
	resaleHandler := handlers.NewResaleHandler(app, store, paymentService, webhookHandler)
	adminHandler := handlers.NewAdminHandler(app, store, fulfillment, paymentService)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// CLI poll loop for checkout scripts and operators
	app.RootCmd.AddCommand(newAwaitCommand(cfg))

	// Start background tasks
	go paymentService.ConsumeOutcomes(ctx, outcomes)
	go expiryService.Run(ctx)
	go retryFlaggedFulfillments(ctx, fulfillment, cfg.ExpirySweep)

	// Standalone admission scan server for venue gate hardware
	scanServer := scan.NewServer(
		scan.NewValidator(store, clk),
		security.NewRateLimiter(redisClient),
	)
	go func() {
		if err := scanServer.Start(":" + cfg.ScanPort); err != nil && err != http.ErrServerClosed {
			log.Printf("Scan server stopped: %v", err)
		}
	}()

	if cfg.EnableMetrics {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil {
				log.Printf("Metrics server stopped: %v", err)
			}
		}()
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		syncInventoryToRedis(app, redisClient, inventoryService)

		// Purchase endpoints
		e.Router.POST("/api/v1/purchases", purchaseHandler.CreatePurchase)
		e.Router.GET("/api/v1/purchases/history", purchaseHandler.GetPurchaseHistory)
		e.Router.GET("/api/v1/purchases/{purchaseId}/status", purchaseHandler.GetPurchaseStatus)
		e.Router.GET("/api/v1/purchases/{purchaseId}/payment", purchaseHandler.GetPaymentDetails)
		e.Router.POST("/api/v1/purchases/{purchaseId}/cancel", purchaseHandler.CancelPurchase)

		// Provider webhook
		e.Router.POST("/api/v1/payments/webhook", webhookHandler.ReportOutcome)

		// Resale endpoints
		e.Router.POST("/api/v1/resale/listings", resaleHandler.CreateListing)
		e.Router.POST("/api/v1/resale/listings/{listingId}/pay", resaleHandler.CreateResalePayment)
		e.Router.POST("/api/v1/resale/webhook", resaleHandler.ReportResaleOutcome)

		// Admin endpoints
		e.Router.GET("/api/v1/admin/reconciliation", adminHandler.GetReconciliationDashboard)
		e.Router.POST("/api/v1/admin/retry-fulfillment", adminHandler.RetryFulfillment)
		e.Router.POST("/api/v1/admin/reconcile-purchase", adminHandler.ReconcilePurchase)

		// Test endpoint for payment simulation
		if cfg.Environment == "development" {
			e.Router.POST("/api/v1/test/simulate-payment", webhookHandler.SimulatePayment)
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// syncInventoryToRedis seeds the Redis inventory gate from capacity minus
// outstanding holds so restarts cannot resurrect sold-out inventory.
func syncInventoryToRedis(app *pocketbase.PocketBase, redisClient *redis.Client, inventory *services.InventoryService) {
	ctx := context.Background()

	var records []dbx.NullStringMap
	if err := app.DB().NewQuery(`
		SELECT tt.id AS id,
		       tt.capacity - IFNULL((
		           SELECT SUM(p.quantity) FROM purchases p
		           WHERE p.ticket_type_id = tt.id AND p.status IN ('pending', 'completed')
		       ), 0) AS remaining
		FROM ticket_types tt
	`).All(&records); err != nil {
		log.Printf("Error fetching ticket type inventory: %v", err)
		return
	}

	for _, record := range records {
		id := record["id"].String
		if id == "" {
			continue
		}
		remaining, _ := strconv.Atoi(record["remaining"].String)
		if remaining < 0 {
			slog.Error("Ticket type oversold in storage", "ticketTypeID", id, "remaining", remaining)
			remaining = 0
		}
		if err := inventory.Seed(ctx, id, remaining); err != nil {
			slog.Error("Failed to seed inventory to Redis", "ticketTypeID", id, "error", err)
			continue
		}
		monitoring.SetInventoryRemaining(id, remaining)
	}

	log.Printf("Synced %d ticket types to Redis inventory", len(records))
}

// retryFlaggedFulfillments periodically re-drives purchases whose ticket
// issuance failed after payment was confirmed.
func retryFlaggedFulfillments(ctx context.Context, fulfillment *ledger.FulfillmentEngine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fulfillment.Retry(ctx); err != nil {
				slog.Error("Fulfillment retry sweep failed", "error", err)
			}
		}
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
