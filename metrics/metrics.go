package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the shipment and settlement workflows. Counters
// are bumped only after a unit of work commits.
var (
	ShipmentTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parcel_shipment_transitions_total",
			Help: "Committed shipment updates by status before and after",
		},
		[]string{"from", "to"},
	)

	ShipmentRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parcel_shipment_rejections_total",
			Help: "Shipment updates rejected before commit, by error kind",
		},
		[]string{"kind"},
	)

	FulfillmentsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parcel_fulfillments_created_total",
			Help: "Fulfillments created on VN_SHIPMENT_REQUESTED",
		},
	)

	LedgerOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parcel_ledger_operations_total",
			Help: "Committed ledger debits and credits",
		},
		[]string{"op"},
	)

	DepositSettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parcel_deposit_settlements_total",
			Help: "Deposit bills settled, by decision",
		},
		[]string{"decision"},
	)

	ReconciledShipmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parcel_reconciled_shipments_total",
			Help: "Shipments touched by consignment reconciliation, by outcome",
		},
		[]string{"outcome"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parcel_http_requests_total",
			Help: "HTTP requests by method, route pattern and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parcel_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// Register registers all metrics with reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(ShipmentTransitionsTotal)
	reg.MustRegister(ShipmentRejectionsTotal)
	reg.MustRegister(FulfillmentsCreatedTotal)
	reg.MustRegister(LedgerOperationsTotal)
	reg.MustRegister(DepositSettlementsTotal)
	reg.MustRegister(ReconciledShipmentsTotal)
	reg.MustRegister(HTTPRequestsTotal)
	reg.MustRegister(HTTPRequestDuration)
}

