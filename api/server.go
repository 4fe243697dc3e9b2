/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table.
  This is the wiring layer that connects URLs to handlers and gates
  every /api route on a role permission.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from X-Forwarded-For
  3. instrument: Prometheus counters/latency and a logrus access line
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the back office frontend
  /api only:
  6. Authenticate: X-User-ID / X-User-Role into an Actor
  7. Require(op):  per-route permission

UNAUTHENTICATED ROUTES:
  /healthz   liveness
  /metrics   Prometheus exposition

SEE ALSO:
  - handlers.go: Handler implementations
  - roles.go: Permissions per role
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/warp/parcel-engine/metrics"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(instrument(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID", "X-User-Role"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate)

		// Shipment routes
		r.Route("/shipments", func(r chi.Router) {
			r.With(Require(OpShipmentRead)).Get("/", h.ListShipments)
			r.With(Require(OpShipmentRead)).Get("/{id}", h.GetShipment)
			r.With(Require(OpShipmentUpdate)).Patch("/{id}", h.UpdateShipment)
			r.With(Require(OpFulfillmentRead)).Get("/{id}/fulfillment", h.GetShipmentFulfillment)
		})

		// Consignment routes
		r.Route("/consignments", func(r chi.Router) {
			r.With(Require(OpConsignmentRead)).Get("/", h.ListConsignments)
			r.With(Require(OpConsignmentWrite)).Post("/", h.CreateConsignment)
			r.With(Require(OpConsignmentRead)).Get("/{id}", h.GetConsignment)
			r.With(Require(OpConsignmentWrite)).Put("/{id}", h.UpdateConsignment)
			r.With(Require(OpShipmentRead)).Get("/{id}/shipments", h.ListConsignmentShipments)
			r.With(Require(OpConsignmentWrite)).Post("/{id}/codes", h.ReconcileCodes)
		})

		// Fulfillment routes
		r.Route("/fulfillments", func(r chi.Router) {
			r.With(Require(OpFulfillmentRead)).Get("/{id}", h.GetFulfillment)
			r.With(Require(OpFulfillmentUpdate)).Patch("/{id}", h.UpdateFulfillment)
		})

		// Finance routes
		r.Route("/deposit-bills", func(r chi.Router) {
			r.With(Require(OpDepositRead)).Get("/", h.ListDepositBills)
			r.With(Require(OpDepositCreate)).Post("/", h.CreateDepositBill)
			r.With(Require(OpDepositRead)).Get("/{id}", h.GetDepositBill)
			r.With(Require(OpDepositApprove)).Post("/{id}/approve", h.ApproveDepositBill)
		})
		r.With(Require(OpBalanceRead)).Get("/users/{id}/balance", h.GetBalance)

		// Exchange routes
		r.Route("/exchanges", func(r chi.Router) {
			r.With(Require(OpExchangeRead)).Get("/", h.ListExchanges)
			r.With(Require(OpExchangeWrite)).Post("/", h.CreateExchange)
			r.With(Require(OpExchangeRead)).Get("/active", h.GetActiveExchange)
			r.With(Require(OpExchangeRead)).Get("/{id}", h.GetExchange)
			r.With(Require(OpExchangeWrite)).Patch("/{id}", h.UpdateExchange)
		})

		r.With(Require(OpChangeLogRead)).Get("/changelogs", h.ListChangeLogs)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(Require(OpDirectoryWrite))
			r.Put("/warehouses/{id}", h.PutWarehouse)
			r.Put("/addresses/{id}", h.PutAddress)
		})
	})

	return r
}

// instrument records request metrics under the matched route pattern,
// so /api/shipments/7 and /api/shipments/8 share a series.
func instrument(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

			log.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"route":      route,
				"status":     status,
				"bytes":      ww.BytesWritten(),
				"duration":   elapsed.String(),
			}).Debug("http request")
		})
	}
}
