package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	purchasesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchases_created_total",
			Help: "Purchases created, by result",
		},
		[]string{"result"},
	)

	providerOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_outcomes_total",
			Help: "Provider outcome notifications applied, by outcome",
		},
		[]string{"outcome"},
	)

	fulfillments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillments_total",
			Help: "Fulfillment attempts, by result",
		},
		[]string{"result"},
	)

	resaleTransfers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resale_transfers_total",
			Help: "Resale transfer attempts, by result",
		},
		[]string{"result"},
	)

	expiredPurchases = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "expired_purchases_total",
			Help: "Pending purchases cancelled by the expiry sweeper",
		},
	)

	inventoryRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inventory_remaining",
			Help: "Remaining capacity per ticket type",
		},
		[]string{"ticket_type"},
	)

	admissionScans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_scans_total",
			Help: "Credential scans at the gate, by result",
		},
		[]string{"result"},
	)
)

func TrackPurchaseCreated(result string) {
	purchasesCreated.WithLabelValues(result).Inc()
}

func TrackOutcome(outcome string) {
	providerOutcomes.WithLabelValues(outcome).Inc()
}

func TrackFulfillment(result string) {
	fulfillments.WithLabelValues(result).Inc()
}

func TrackResaleTransfer(result string) {
	resaleTransfers.WithLabelValues(result).Inc()
}

func TrackExpiry() {
	expiredPurchases.Inc()
}

func SetInventoryRemaining(ticketTypeID string, remaining int) {
	inventoryRemaining.WithLabelValues(ticketTypeID).Set(float64(remaining))
}

func TrackScan(result string) {
	admissionScans.WithLabelValues(result).Inc()
}
