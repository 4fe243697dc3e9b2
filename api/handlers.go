/*
handlers.go - HTTP API handlers for the consignment pipeline

PURPOSE:
  Exposes the shipping and finance workflows over REST. Handlers parse
  the request, check ownership, delegate to the services and map the
  error taxonomy onto HTTP statuses.

ENDPOINTS:
  Shipments:
    GET    /api/shipments                    List by user (?user_id)
    GET    /api/shipments/{id}               Get shipment
    PATCH  /api/shipments/{id}               Partial update / status transition
    GET    /api/shipments/{id}/fulfillment   Fulfillment spawned by the shipment

  Consignments:
    GET    /api/consignments                 List by user (?user_id)
    POST   /api/consignments                 Create with foreign codes
    GET    /api/consignments/{id}            Get consignment
    PUT    /api/consignments/{id}            Update, reconciling codes
    GET    /api/consignments/{id}/shipments  Shipments of the consignment
    POST   /api/consignments/{id}/codes      Reconcile foreign codes only

  Fulfillments:
    GET    /api/fulfillments/{id}
    PATCH  /api/fulfillments/{id}            Status / shipping type

  Finance:
    GET    /api/deposit-bills                List (?user_id, ?status)
    POST   /api/deposit-bills                Create PENDING bill
    GET    /api/deposit-bills/{id}
    POST   /api/deposit-bills/{id}/approve   Approve or reject
    GET    /api/users/{id}/balance           Ledger balance

  Exchanges:
    GET    /api/exchanges
    POST   /api/exchanges
    GET    /api/exchanges/active             (?foreign, ?local)
    GET    /api/exchanges/{id}
    PATCH  /api/exchanges/{id}

  Audit and directory:
    GET    /api/changelogs                   (?object_type, ?object_id, ?user_id, ?limit)
    PUT    /api/admin/warehouses/{id}
    PUT    /api/admin/addresses/{id}

ERROR HANDLING:
  Errors are returned as ErrorResponse with a status chosen by kind:
  - 400: invalid_argument, malformed body
  - 401: missing caller headers
  - 402: insufficient_funds
  - 403: forbidden
  - 404: not_found
  - 409: invalid_state
  - 503: unavailable
  - 500: anything else (logged)

SEE ALSO:
  - dto.go: Request/response data structures
  - roles.go: Actor and permissions
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/warp/parcel-engine/config"
	"github.com/warp/parcel-engine/finance"
	"github.com/warp/parcel-engine/parcel"
	"github.com/warp/parcel-engine/shipping"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is a transactional store that also accepts directory rows.
// Warehouses and addresses are owned elsewhere; the admin routes let the
// owning service push copies in.
type Backend interface {
	parcel.TxStore
	SaveWarehouse(ctx context.Context, w parcel.Warehouse) error
	SaveAddress(ctx context.Context, a parcel.Address) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        Backend
	Machine      *shipping.Machine
	Reconciler   *shipping.Reconciler
	Consignments *shipping.Consignments
	Fulfillments *shipping.Fulfillments
	Settlement   *finance.Settlement
	Exchanges    *finance.Exchanges

	log logrus.FieldLogger
}

// NewHandler wires every service over the same store and deps.
func NewHandler(store Backend, deps parcel.Deps) *Handler {
	deps = deps.Defaults()
	return &Handler{
		Store:        store,
		Machine:      shipping.NewMachine(store, deps),
		Reconciler:   shipping.NewReconciler(store, deps),
		Consignments: shipping.NewConsignments(store, deps),
		Fulfillments: shipping.NewFulfillments(store, deps),
		Settlement:   finance.NewSettlement(store, deps),
		Exchanges:    finance.NewExchanges(store, deps),
		log:          deps.Log,
	}
}

// =============================================================================
// SHIPMENT HANDLERS
// =============================================================================

func (h *Handler) ListShipments(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.targetUser(w, r)
	if !ok {
		return
	}
	list, err := parcel.View(r.Context(), h.Store, func(tx parcel.Store) ([]parcel.Shipment, error) {
		return tx.ShipmentsByUser(r.Context(), userID)
	})
	if err != nil {
		h.fail(w, "ListShipments", err)
		return
	}
	writeJSON(w, http.StatusOK, shipmentDTOs(list))
}

func (h *Handler) GetShipment(w http.ResponseWriter, r *http.Request) {
	s, ok := h.ownedShipment(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, shipmentDTO(*s))
}

// UpdateShipment applies a partial update. A status change to
// VN_SHIPMENT_REQUESTED also creates the fulfillment and debits the
// shipping fee; the response carries both.
func (h *Handler) UpdateShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateShipmentRequest
	if !decode(w, r, &req) {
		return
	}

	actor, _ := ActorFrom(r.Context())
	res, err := h.Machine.Transition(r.Context(), parcel.ShipmentID(id), req.toUpdate(), actor.ID)
	if err != nil {
		h.fail(w, "UpdateShipment", err)
		return
	}
	writeJSON(w, http.StatusOK, transitionDTO(res))
}

func (h *Handler) GetShipmentFulfillment(w http.ResponseWriter, r *http.Request) {
	s, ok := h.ownedShipment(w, r)
	if !ok {
		return
	}
	f, err := h.Fulfillments.ByShipment(r.Context(), s.ID)
	if err != nil {
		h.fail(w, "GetShipmentFulfillment", err)
		return
	}
	writeJSON(w, http.StatusOK, fulfillmentDTO(*f))
}

func (h *Handler) ownedShipment(w http.ResponseWriter, r *http.Request) (*parcel.Shipment, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return nil, false
	}
	s, err := h.Machine.Get(r.Context(), parcel.ShipmentID(id))
	if err != nil {
		h.fail(w, "GetShipment", err)
		return nil, false
	}
	if !h.checkOwner(w, r, s.UserID, "read shipment") {
		return nil, false
	}
	return s, true
}

// =============================================================================
// CONSIGNMENT HANDLERS
// =============================================================================

func (h *Handler) ListConsignments(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.targetUser(w, r)
	if !ok {
		return
	}
	list, err := h.Consignments.ListByUser(r.Context(), userID)
	if err != nil {
		h.fail(w, "ListConsignments", err)
		return
	}
	out := make([]ConsignmentDTO, 0, len(list))
	for _, c := range list {
		out = append(out, consignmentDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateConsignment(w http.ResponseWriter, r *http.Request) {
	var req ConsignmentRequest
	if !decode(w, r, &req) {
		return
	}

	actor, _ := ActorFrom(r.Context())
	owner := actor.ID
	if actor.Privileged() && req.UserID != 0 {
		owner = req.UserID
	}

	c, res, err := h.Consignments.Create(r.Context(), req.toInput(owner), actor.ID)
	if err != nil {
		h.fail(w, "CreateConsignment", err)
		return
	}
	writeJSON(w, http.StatusCreated, ConsignmentResultDTO{Consignment: consignmentDTO(*c), Shipments: reconcileDTO(res)})
}

func (h *Handler) GetConsignment(w http.ResponseWriter, r *http.Request) {
	c, ok := h.ownedConsignment(w, r, "read consignment")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, consignmentDTO(*c))
}

func (h *Handler) UpdateConsignment(w http.ResponseWriter, r *http.Request) {
	c, ok := h.ownedConsignment(w, r, "update consignment")
	if !ok {
		return
	}
	var req ConsignmentRequest
	if !decode(w, r, &req) {
		return
	}

	actor, _ := ActorFrom(r.Context())
	updated, res, err := h.Consignments.Update(r.Context(), c.ID, req.toInput(c.UserID), actor.ID, parseMode(req.Mode))
	if err != nil {
		h.fail(w, "UpdateConsignment", err)
		return
	}
	writeJSON(w, http.StatusOK, ConsignmentResultDTO{Consignment: consignmentDTO(*updated), Shipments: reconcileDTO(res)})
}

func (h *Handler) ListConsignmentShipments(w http.ResponseWriter, r *http.Request) {
	c, ok := h.ownedConsignment(w, r, "read consignment")
	if !ok {
		return
	}
	list, err := h.Consignments.Shipments(r.Context(), c.ID)
	if err != nil {
		h.fail(w, "ListConsignmentShipments", err)
		return
	}
	writeJSON(w, http.StatusOK, shipmentDTOs(list))
}

// ReconcileCodes syncs the consignment's shipments with a list of foreign
// codes, reusing the consignment's current physical attributes.
func (h *Handler) ReconcileCodes(w http.ResponseWriter, r *http.Request) {
	c, ok := h.ownedConsignment(w, r, "update consignment")
	if !ok {
		return
	}
	var req ReconcileRequest
	if !decode(w, r, &req) {
		return
	}

	actor, _ := ActorFrom(r.Context())
	res, err := h.Reconciler.Reconcile(r.Context(), c.ID, req.Codes, shipping.AttributesOf(*c), actor.ID, parseMode(req.Mode))
	if err != nil {
		h.fail(w, "ReconcileCodes", err)
		return
	}
	writeJSON(w, http.StatusOK, reconcileDTO(res))
}

func (h *Handler) ownedConsignment(w http.ResponseWriter, r *http.Request, action string) (*parcel.Consignment, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return nil, false
	}
	c, err := h.Consignments.Get(r.Context(), parcel.ConsignmentID(id))
	if err != nil {
		h.fail(w, "GetConsignment", err)
		return nil, false
	}
	if !h.checkOwner(w, r, c.UserID, action) {
		return nil, false
	}
	return c, true
}

// =============================================================================
// FULFILLMENT HANDLERS
// =============================================================================

func (h *Handler) GetFulfillment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	f, err := h.Fulfillments.Get(r.Context(), parcel.FulfillmentID(id))
	if err != nil {
		h.fail(w, "GetFulfillment", err)
		return
	}
	actor, _ := ActorFrom(r.Context())
	if !actor.Privileged() {
		c, err := h.Consignments.Get(r.Context(), f.ConsignmentID)
		if err != nil {
			h.fail(w, "GetFulfillment", err)
			return
		}
		if !h.checkOwner(w, r, c.UserID, "read fulfillment") {
			return
		}
	}
	writeJSON(w, http.StatusOK, fulfillmentDTO(*f))
}

func (h *Handler) UpdateFulfillment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateFulfillmentRequest
	if !decode(w, r, &req) {
		return
	}
	f, err := h.Fulfillments.Update(r.Context(), parcel.FulfillmentID(id), shipping.FulfillmentUpdate(req))
	if err != nil {
		h.fail(w, "UpdateFulfillment", err)
		return
	}
	writeJSON(w, http.StatusOK, fulfillmentDTO(*f))
}

// =============================================================================
// DEPOSIT AND BALANCE HANDLERS
// =============================================================================

func (h *Handler) ListDepositBills(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	var filter parcel.DepositFilter

	if v := r.URL.Query().Get("user_id"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid user_id", err)
			return
		}
		uid := parcel.UserID(n)
		filter.UserID = &uid
	}
	if !actor.Privileged() {
		if filter.UserID != nil && *filter.UserID != actor.ID {
			writeDomainError(w, &parcel.ForbiddenError{Actor: actor.ID, Action: "list deposit bills"})
			return
		}
		own := actor.ID
		filter.UserID = &own
	}
	if v := r.URL.Query().Get("status"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || !parcel.DepositStatus(n).IsValid() {
			writeError(w, http.StatusBadRequest, "Invalid status", err)
			return
		}
		st := parcel.DepositStatus(n)
		filter.Status = &st
	}

	bills, err := h.Settlement.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "ListDepositBills", err)
		return
	}
	out := make([]DepositBillDTO, 0, len(bills))
	for _, b := range bills {
		out = append(out, depositBillDTO(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateDepositBill(w http.ResponseWriter, r *http.Request) {
	var req CreateDepositBillRequest
	if !decode(w, r, &req) {
		return
	}
	actor, _ := ActorFrom(r.Context())
	owner := actor.ID
	if actor.Privileged() && req.UserID != 0 {
		owner = req.UserID
	}

	b, err := h.Settlement.Create(r.Context(), req.toInput(owner), actor.ID)
	if err != nil {
		h.fail(w, "CreateDepositBill", err)
		return
	}
	writeJSON(w, http.StatusCreated, depositBillDTO(*b))
}

func (h *Handler) GetDepositBill(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := h.Settlement.Get(r.Context(), parcel.DepositBillID(id))
	if err != nil {
		h.fail(w, "GetDepositBill", err)
		return
	}
	if !h.checkOwner(w, r, b.UserID, "read deposit bill") {
		return
	}
	writeJSON(w, http.StatusOK, depositBillDTO(*b))
}

// ApproveDepositBill settles a PENDING bill. APPROVED credits the
// user's balance in the same transaction.
func (h *Handler) ApproveDepositBill(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ApproveDepositRequest
	if !decode(w, r, &req) {
		return
	}

	actor, _ := ActorFrom(r.Context())
	res, err := h.Settlement.Approve(r.Context(), parcel.DepositBillID(id), actor.ID, req.Status)
	if err != nil {
		h.fail(w, "ApproveDepositBill", err)
		return
	}

	out := SettlementDTO{Bill: depositBillDTO(res.Bill), Credited: res.Credited}
	if res.Credited {
		balance := res.Balance
		out.Balance = &balance
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	userID := parcel.UserID(id)
	if !h.checkOwner(w, r, userID, "read balance") {
		return
	}
	balance, err := h.Settlement.Balance(r.Context(), userID)
	if err != nil {
		h.fail(w, "GetBalance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{UserID: userID, Balance: balance})
}

// =============================================================================
// EXCHANGE HANDLERS
// =============================================================================

func (h *Handler) ListExchanges(w http.ResponseWriter, r *http.Request) {
	list, err := h.Exchanges.List(r.Context())
	if err != nil {
		h.fail(w, "ListExchanges", err)
		return
	}
	out := make([]ExchangeDTO, 0, len(list))
	for _, e := range list {
		out = append(out, exchangeDTO(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateExchange(w http.ResponseWriter, r *http.Request) {
	var req CreateExchangeRequest
	if !decode(w, r, &req) {
		return
	}
	actor, _ := ActorFrom(r.Context())
	e, err := h.Exchanges.Create(r.Context(), req.toInput(), actor.ID)
	if err != nil {
		h.fail(w, "CreateExchange", err)
		return
	}
	writeJSON(w, http.StatusCreated, exchangeDTO(*e))
}

func (h *Handler) GetExchange(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	e, err := h.Exchanges.Get(r.Context(), parcel.ExchangeID(id))
	if err != nil {
		h.fail(w, "GetExchange", err)
		return
	}
	writeJSON(w, http.StatusOK, exchangeDTO(*e))
}

// GetActiveExchange returns the active rate for a pair. Both currencies
// default to CNY/VND.
func (h *Handler) GetActiveExchange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	foreign, local := q.Get("foreign"), q.Get("local")
	if foreign == "" {
		foreign = finance.DefaultForeignCurrency
	}
	if local == "" {
		local = finance.DefaultLocalCurrency
	}
	e, err := h.Exchanges.Active(r.Context(), foreign, local)
	if err != nil {
		h.fail(w, "GetActiveExchange", err)
		return
	}
	writeJSON(w, http.StatusOK, exchangeDTO(*e))
}

func (h *Handler) UpdateExchange(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateExchangeRequest
	if !decode(w, r, &req) {
		return
	}
	actor, _ := ActorFrom(r.Context())
	e, changes, err := h.Exchanges.Update(r.Context(), parcel.ExchangeID(id), req.toUpdate(), actor.ID)
	if err != nil {
		h.fail(w, "UpdateExchange", err)
		return
	}
	if changes == nil {
		changes = []parcel.FieldChange{}
	}
	writeJSON(w, http.StatusOK, ExchangeUpdateDTO{Exchange: exchangeDTO(*e), Changes: changes})
}

// =============================================================================
// AUDIT AND DIRECTORY HANDLERS
// =============================================================================

var objectTypes = map[string]parcel.ObjectType{
	"SHIPMENT":     parcel.ObjectShipment,
	"EXCHANGE":     parcel.ObjectExchange,
	"DEPOSIT_BILL": parcel.ObjectDepositBill,
}

func (h *Handler) ListChangeLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := parcel.ChangeLogFilter{Limit: 100}

	if v := q.Get("object_type"); v != "" {
		t, ok := objectTypes[strings.ToUpper(v)]
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid object_type", nil)
			return
		}
		filter.ObjectType = t
	}
	for key, dst := range map[string]*uint64{"object_id": &filter.ObjectID, "user_id": (*uint64)(&filter.UserID)} {
		if v := q.Get(key); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid "+key, err)
				return
			}
			*dst = n
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000", err)
			return
		}
		filter.Limit = n
	}

	logs, err := parcel.View(r.Context(), h.Store, func(tx parcel.Store) ([]parcel.ChangeLog, error) {
		return tx.ChangeLogs(r.Context(), filter)
	})
	if err != nil {
		h.fail(w, "ListChangeLogs", err)
		return
	}
	out := make([]ChangeLogDTO, 0, len(logs))
	for _, l := range logs {
		out = append(out, changeLogDTO(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) PutWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req WarehouseRequest
	if !decode(w, r, &req) {
		return
	}
	if req.BaseFee.IsNegative() {
		writeDomainError(w, parcel.InvalidArgument("base_fee", "must not be negative"))
		return
	}
	wh := parcel.Warehouse{
		ID: parcel.WarehouseID(id), Code: req.Code, Name: req.Name,
		BaseFee: req.BaseFee, IsDestination: req.IsDestination,
	}
	if err := h.Store.SaveWarehouse(r.Context(), wh); err != nil {
		h.fail(w, "PutWarehouse", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": wh.ID, "code": wh.Code})
}

func (h *Handler) PutAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req AddressRequest
	if !decode(w, r, &req) {
		return
	}
	a := parcel.Address{
		ID: parcel.AddressID(id), UserID: req.UserID,
		Name: req.Name, Phone: req.Phone, Address: req.Address,
	}
	if err := h.Store.SaveAddress(r.Context(), a); err != nil {
		h.fail(w, "PutAddress", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": a.ID, "user_id": a.UserID})
}

// =============================================================================
// HELPERS
// =============================================================================

// targetUser resolves ?user_id. Users default to themselves and may not
// name anyone else; staff and admins must name someone.
func (h *Handler) targetUser(w http.ResponseWriter, r *http.Request) (parcel.UserID, bool) {
	actor, _ := ActorFrom(r.Context())
	v := r.URL.Query().Get("user_id")
	if v == "" {
		if actor.Privileged() {
			writeError(w, http.StatusBadRequest, "user_id is required", nil)
			return 0, false
		}
		return actor.ID, true
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil || n == 0 {
		writeError(w, http.StatusBadRequest, "Invalid user_id", err)
		return 0, false
	}
	if !h.checkOwner(w, r, parcel.UserID(n), "list another user's data") {
		return 0, false
	}
	return parcel.UserID(n), true
}

func (h *Handler) checkOwner(w http.ResponseWriter, r *http.Request, owner parcel.UserID, action string) bool {
	actor, _ := ActorFrom(r.Context())
	if actor.CanAccess(owner) {
		return true
	}
	writeDomainError(w, &parcel.ForbiddenError{Actor: actor.ID, Action: action})
	return false
}

// fail writes err and logs it when the failure is on our side.
func (h *Handler) fail(w http.ResponseWriter, funcName string, err error) {
	if status := statusFor(err); status >= http.StatusInternalServerError {
		config.LogError(h.log, "api", funcName, "request failed", nil, err)
	}
	writeDomainError(w, err)
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

// decode reads a JSON body into v and runs its validator tags.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := parcel.Validate(v); err != nil {
		writeDomainError(w, err)
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, parcel.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, parcel.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, parcel.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, parcel.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, parcel.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, parcel.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Kind: parcel.Kind(err)}
	if status == http.StatusInternalServerError {
		resp.Error = "Internal error"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
