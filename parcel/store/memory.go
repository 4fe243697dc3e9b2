// Package store provides an in-memory parcel.TxStore.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/parcel-engine/parcel"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory serializes every transaction behind one mutex. A failed
// transaction restores the snapshot taken when it started.
type Memory struct {
	mu   sync.Mutex
	data *tables
}

type sequences struct {
	consignment, shipment, fulfillment, bill, exchange, changeLog uint64
}

type tables struct {
	now          parcel.Clock
	seq          sequences
	consignments map[parcel.ConsignmentID]parcel.Consignment
	shipments    map[parcel.ShipmentID]parcel.Shipment
	fulfillments map[parcel.FulfillmentID]parcel.Fulfillment
	finances     map[parcel.UserID]parcel.UserFinance
	bills        map[parcel.DepositBillID]parcel.DepositBill
	exchanges    map[parcel.ExchangeID]parcel.Exchange
	changeLogs   []parcel.ChangeLog
	warehouses   map[parcel.WarehouseID]parcel.Warehouse
	addresses    map[parcel.AddressID]parcel.Address
}

func NewMemory() *Memory {
	return &Memory{data: newTables(time.Now)}
}

func newTables(now parcel.Clock) *tables {
	return &tables{
		now:          now,
		consignments: make(map[parcel.ConsignmentID]parcel.Consignment),
		shipments:    make(map[parcel.ShipmentID]parcel.Shipment),
		fulfillments: make(map[parcel.FulfillmentID]parcel.Fulfillment),
		finances:     make(map[parcel.UserID]parcel.UserFinance),
		bills:        make(map[parcel.DepositBillID]parcel.DepositBill),
		exchanges:    make(map[parcel.ExchangeID]parcel.Exchange),
		warehouses:   make(map[parcel.WarehouseID]parcel.Warehouse),
		addresses:    make(map[parcel.AddressID]parcel.Address),
	}
}

// WithTx runs fn with exclusive access. Writes made by fn are discarded
// if it returns an error.
func (m *Memory) WithTx(ctx context.Context, fn func(parcel.Store) error) error {
	if err := ctx.Err(); err != nil {
		return parcel.Unavailable("begin tx", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.data.clone()
	if err := fn(m.data); err != nil {
		m.data = snap
		return err
	}
	return nil
}

// SaveWarehouse upserts a warehouse into the directory.
func (m *Memory) SaveWarehouse(_ context.Context, w parcel.Warehouse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.warehouses[w.ID] = w
	return nil
}

// SaveAddress upserts an address into the directory.
func (m *Memory) SaveAddress(_ context.Context, a parcel.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.addresses[a.ID] = a
	return nil
}

func (t *tables) clone() *tables {
	c := newTables(t.now)
	c.seq = t.seq
	for k, v := range t.consignments {
		c.consignments[k] = v
	}
	for k, v := range t.shipments {
		c.shipments[k] = v
	}
	for k, v := range t.fulfillments {
		c.fulfillments[k] = v
	}
	for k, v := range t.finances {
		c.finances[k] = v
	}
	for k, v := range t.bills {
		c.bills[k] = v
	}
	for k, v := range t.exchanges {
		c.exchanges[k] = v
	}
	for k, v := range t.warehouses {
		c.warehouses[k] = v
	}
	for k, v := range t.addresses {
		c.addresses[k] = v
	}
	c.changeLogs = append([]parcel.ChangeLog(nil), t.changeLogs...)
	return c
}

// =============================================================================
// SHIPMENTS
// =============================================================================

func (t *tables) GetShipment(_ context.Context, id parcel.ShipmentID) (*parcel.Shipment, error) {
	s, ok := t.shipments[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (t *tables) LockShipment(ctx context.Context, id parcel.ShipmentID) (*parcel.Shipment, error) {
	return t.GetShipment(ctx, id)
}

func (t *tables) ShipmentsByConsignment(_ context.Context, id parcel.ConsignmentID) ([]parcel.Shipment, error) {
	return t.shipmentsWhere(func(s parcel.Shipment) bool { return s.ConsignmentID == id }), nil
}

func (t *tables) ShipmentsByUser(_ context.Context, userID parcel.UserID) ([]parcel.Shipment, error) {
	return t.shipmentsWhere(func(s parcel.Shipment) bool { return s.UserID == userID }), nil
}

func (t *tables) shipmentsWhere(match func(parcel.Shipment) bool) []parcel.Shipment {
	var out []parcel.Shipment
	for _, s := range t.shipments {
		if match(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *tables) CreateShipment(_ context.Context, s *parcel.Shipment) error {
	for _, existing := range t.shipments {
		if existing.ConsignmentID == s.ConsignmentID && existing.Code == s.Code {
			return &parcel.InvalidStateError{
				Entity: "shipment", ID: s.Code,
				Reason: fmt.Sprintf("code already used on consignment %d", s.ConsignmentID),
			}
		}
	}
	t.seq.shipment++
	s.ID = parcel.ShipmentID(t.seq.shipment)
	stamp(&s.CreatedAt, &s.UpdatedAt, t.now())
	t.shipments[s.ID] = *s
	return nil
}

func (t *tables) SaveShipment(_ context.Context, s *parcel.Shipment) error {
	if _, ok := t.shipments[s.ID]; !ok {
		return parcel.NotFound("shipment", s.ID)
	}
	t.shipments[s.ID] = *s
	return nil
}

func (t *tables) DeleteShipment(_ context.Context, id parcel.ShipmentID) error {
	delete(t.shipments, id)
	return nil
}

// =============================================================================
// CONSIGNMENTS
// =============================================================================

func (t *tables) GetConsignment(_ context.Context, id parcel.ConsignmentID) (*parcel.Consignment, error) {
	c, ok := t.consignments[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (t *tables) ConsignmentsByUser(_ context.Context, userID parcel.UserID) ([]parcel.Consignment, error) {
	var out []parcel.Consignment
	for _, c := range t.consignments {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tables) CreateConsignment(_ context.Context, c *parcel.Consignment) error {
	t.seq.consignment++
	c.ID = parcel.ConsignmentID(t.seq.consignment)
	stamp(&c.CreatedAt, &c.UpdatedAt, t.now())
	t.consignments[c.ID] = *c
	return nil
}

func (t *tables) SaveConsignment(_ context.Context, c *parcel.Consignment) error {
	if _, ok := t.consignments[c.ID]; !ok {
		return parcel.NotFound("consignment", c.ID)
	}
	t.consignments[c.ID] = *c
	return nil
}

// =============================================================================
// FULFILLMENTS
// =============================================================================

func (t *tables) GetFulfillment(_ context.Context, id parcel.FulfillmentID) (*parcel.Fulfillment, error) {
	f, ok := t.fulfillments[id]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (t *tables) FulfillmentByShipment(_ context.Context, id parcel.ShipmentID) (*parcel.Fulfillment, error) {
	for _, f := range t.fulfillments {
		if f.ShipmentID == id {
			return &f, nil
		}
	}
	return nil, nil
}

func (t *tables) CreateFulfillment(ctx context.Context, f *parcel.Fulfillment) error {
	if existing, _ := t.FulfillmentByShipment(ctx, f.ShipmentID); existing != nil {
		return &parcel.InvalidStateError{
			Entity: "shipment", ID: f.ShipmentID,
			Reason: "fulfillment already exists",
		}
	}
	t.seq.fulfillment++
	f.ID = parcel.FulfillmentID(t.seq.fulfillment)
	stamp(&f.CreatedAt, &f.UpdatedAt, t.now())
	t.fulfillments[f.ID] = *f
	return nil
}

func (t *tables) SaveFulfillment(_ context.Context, f *parcel.Fulfillment) error {
	if _, ok := t.fulfillments[f.ID]; !ok {
		return parcel.NotFound("fulfillment", f.ID)
	}
	t.fulfillments[f.ID] = *f
	return nil
}

// =============================================================================
// USER FINANCE
// =============================================================================

func (t *tables) GetUserFinance(_ context.Context, userID parcel.UserID) (*parcel.UserFinance, error) {
	f, ok := t.finances[userID]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (t *tables) LockUserFinance(ctx context.Context, userID parcel.UserID) (*parcel.UserFinance, error) {
	return t.GetUserFinance(ctx, userID)
}

func (t *tables) CreateUserFinance(_ context.Context, f *parcel.UserFinance) error {
	if _, ok := t.finances[f.UserID]; ok {
		return &parcel.InvalidStateError{Entity: "user finance", ID: f.UserID, Reason: "already exists"}
	}
	stamp(&f.CreatedAt, &f.UpdatedAt, t.now())
	t.finances[f.UserID] = *f
	return nil
}

func (t *tables) EnsureUserFinance(_ context.Context, userID parcel.UserID) error {
	if _, ok := t.finances[userID]; ok {
		return nil
	}
	f := parcel.UserFinance{UserID: userID, Balance: decimal.Zero}
	stamp(&f.CreatedAt, &f.UpdatedAt, t.now())
	t.finances[userID] = f
	return nil
}

func (t *tables) SaveUserFinance(_ context.Context, f *parcel.UserFinance) error {
	if _, ok := t.finances[f.UserID]; !ok {
		return parcel.NotFound("user finance", f.UserID)
	}
	t.finances[f.UserID] = *f
	return nil
}

// =============================================================================
// DEPOSIT BILLS
// =============================================================================

func (t *tables) GetDepositBill(_ context.Context, id parcel.DepositBillID) (*parcel.DepositBill, error) {
	b, ok := t.bills[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (t *tables) LockDepositBill(ctx context.Context, id parcel.DepositBillID) (*parcel.DepositBill, error) {
	return t.GetDepositBill(ctx, id)
}

func (t *tables) DepositBills(_ context.Context, filter parcel.DepositFilter) ([]parcel.DepositBill, error) {
	var out []parcel.DepositBill
	for _, b := range t.bills {
		if filter.Match(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (t *tables) CreateDepositBill(_ context.Context, b *parcel.DepositBill) error {
	t.seq.bill++
	b.ID = parcel.DepositBillID(t.seq.bill)
	stamp(&b.CreatedAt, &b.UpdatedAt, t.now())
	t.bills[b.ID] = *b
	return nil
}

func (t *tables) SaveDepositBill(_ context.Context, b *parcel.DepositBill) error {
	if _, ok := t.bills[b.ID]; !ok {
		return parcel.NotFound("deposit bill", b.ID)
	}
	t.bills[b.ID] = *b
	return nil
}

// =============================================================================
// EXCHANGES
// =============================================================================

func (t *tables) GetExchange(_ context.Context, id parcel.ExchangeID) (*parcel.Exchange, error) {
	e, ok := t.exchanges[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (t *tables) ActiveExchange(_ context.Context, foreign, local string) (*parcel.Exchange, error) {
	for _, e := range t.exchanges {
		if e.IsActive && e.ForeignCurrency == foreign && e.LocalCurrency == local {
			return &e, nil
		}
	}
	return nil, nil
}

func (t *tables) Exchanges(_ context.Context) ([]parcel.Exchange, error) {
	out := make([]parcel.Exchange, 0, len(t.exchanges))
	for _, e := range t.exchanges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tables) CreateExchange(_ context.Context, e *parcel.Exchange) error {
	t.seq.exchange++
	e.ID = parcel.ExchangeID(t.seq.exchange)
	stamp(&e.CreatedAt, &e.UpdatedAt, t.now())
	t.exchanges[e.ID] = *e
	return nil
}

func (t *tables) SaveExchange(_ context.Context, e *parcel.Exchange) error {
	if _, ok := t.exchanges[e.ID]; !ok {
		return parcel.NotFound("exchange", e.ID)
	}
	t.exchanges[e.ID] = *e
	return nil
}

// =============================================================================
// CHANGE LOGS - append only
// =============================================================================

func (t *tables) AppendChangeLog(_ context.Context, entry *parcel.ChangeLog) error {
	t.seq.changeLog++
	entry.ID = parcel.ChangeLogID(t.seq.changeLog)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = t.now()
	}
	t.changeLogs = append(t.changeLogs, *entry)
	return nil
}

func (t *tables) ChangeLogs(_ context.Context, filter parcel.ChangeLogFilter) ([]parcel.ChangeLog, error) {
	var out []parcel.ChangeLog
	for i := len(t.changeLogs) - 1; i >= 0; i-- {
		if filter.Match(t.changeLogs[i]) {
			out = append(out, t.changeLogs[i])
			if filter.Limit > 0 && len(out) == filter.Limit {
				break
			}
		}
	}
	return out, nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (t *tables) GetWarehouse(_ context.Context, id parcel.WarehouseID) (*parcel.Warehouse, error) {
	w, ok := t.warehouses[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (t *tables) GetAddress(_ context.Context, userID parcel.UserID, id parcel.AddressID) (*parcel.Address, error) {
	a, ok := t.addresses[id]
	if !ok || a.UserID != userID {
		return nil, nil
	}
	return &a, nil
}

func stamp(created, updated *time.Time, now time.Time) {
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = now
	}
}
