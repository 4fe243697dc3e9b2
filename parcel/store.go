/*
store.go - Persistence and lookup interfaces

PURPOSE:
  Defines the boundary between the core workflows and the database.
  Each entity gets a small interface; Store composes them and TxStore
  adds the transactional unit every mutating workflow runs in.

CONVENTIONS:
  - Get* returns (nil, nil) when the row does not exist. The caller
    decides whether absence is a NotFound.
  - Lock* behaves like Get* but takes a row lock for the rest of the
    enclosing transaction (SELECT ... FOR UPDATE on Postgres). Stores
    that serialize whole transactions implement it as a plain read.
  - Create* assigns the ID and timestamps on the value passed in.
  - Driver failures are returned as UnavailableError.

TRANSACTIONS:
  WithTx runs fn against a transactional view. If fn returns an error,
  nothing fn wrote is visible afterwards. Workflows never call the
  outer store from inside fn.

IMPLEMENTATIONS:
  - parcel/store/memory.go: in-memory, for tests
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: Postgres via gorm, with row locks
*/
package parcel

import (
	"context"
	"time"
)

// =============================================================================
// ENTITY STORES
// =============================================================================

type ShipmentStore interface {
	GetShipment(ctx context.Context, id ShipmentID) (*Shipment, error)
	LockShipment(ctx context.Context, id ShipmentID) (*Shipment, error)
	ShipmentsByConsignment(ctx context.Context, id ConsignmentID) ([]Shipment, error)
	ShipmentsByUser(ctx context.Context, userID UserID) ([]Shipment, error)
	CreateShipment(ctx context.Context, s *Shipment) error
	SaveShipment(ctx context.Context, s *Shipment) error
	DeleteShipment(ctx context.Context, id ShipmentID) error
}

type ConsignmentStore interface {
	GetConsignment(ctx context.Context, id ConsignmentID) (*Consignment, error)
	ConsignmentsByUser(ctx context.Context, userID UserID) ([]Consignment, error)
	CreateConsignment(ctx context.Context, c *Consignment) error
	SaveConsignment(ctx context.Context, c *Consignment) error
}

type FulfillmentStore interface {
	GetFulfillment(ctx context.Context, id FulfillmentID) (*Fulfillment, error)
	FulfillmentByShipment(ctx context.Context, id ShipmentID) (*Fulfillment, error)
	CreateFulfillment(ctx context.Context, f *Fulfillment) error
	SaveFulfillment(ctx context.Context, f *Fulfillment) error
}

// FinanceStore persists ledger rows. One row per user.
type FinanceStore interface {
	GetUserFinance(ctx context.Context, userID UserID) (*UserFinance, error)
	LockUserFinance(ctx context.Context, userID UserID) (*UserFinance, error)
	CreateUserFinance(ctx context.Context, f *UserFinance) error
	// EnsureUserFinance inserts a zero-balance row unless one exists.
	// Concurrent callers must both succeed.
	EnsureUserFinance(ctx context.Context, userID UserID) error
	SaveUserFinance(ctx context.Context, f *UserFinance) error
}

type DepositStore interface {
	GetDepositBill(ctx context.Context, id DepositBillID) (*DepositBill, error)
	LockDepositBill(ctx context.Context, id DepositBillID) (*DepositBill, error)
	DepositBills(ctx context.Context, filter DepositFilter) ([]DepositBill, error)
	CreateDepositBill(ctx context.Context, b *DepositBill) error
	SaveDepositBill(ctx context.Context, b *DepositBill) error
}

type ExchangeStore interface {
	GetExchange(ctx context.Context, id ExchangeID) (*Exchange, error)
	// ActiveExchange returns the active rate for a currency pair, if any.
	ActiveExchange(ctx context.Context, foreign, local string) (*Exchange, error)
	Exchanges(ctx context.Context) ([]Exchange, error)
	CreateExchange(ctx context.Context, e *Exchange) error
	SaveExchange(ctx context.Context, e *Exchange) error
}

// ChangeLogStore is append-only. There is no update or delete.
type ChangeLogStore interface {
	AppendChangeLog(ctx context.Context, entry *ChangeLog) error
	ChangeLogs(ctx context.Context, filter ChangeLogFilter) ([]ChangeLog, error)
}

// Directory resolves warehouses and addresses owned by other services.
type Directory interface {
	GetWarehouse(ctx context.Context, id WarehouseID) (*Warehouse, error)
	// GetAddress only returns addresses belonging to userID.
	GetAddress(ctx context.Context, userID UserID, id AddressID) (*Address, error)
}

// =============================================================================
// FILTERS
// =============================================================================

type DepositFilter struct {
	UserID *UserID
	Status *DepositStatus
}

func (f DepositFilter) Match(b DepositBill) bool {
	if f.UserID != nil && b.UserID != *f.UserID {
		return false
	}
	if f.Status != nil && b.Status != *f.Status {
		return false
	}
	return true
}

// ChangeLogFilter selects entries; zero fields match everything. Results
// are newest first.
type ChangeLogFilter struct {
	ObjectType ObjectType
	ObjectID   uint64
	UserID     UserID
	Limit      int
}

func (f ChangeLogFilter) Match(c ChangeLog) bool {
	if f.ObjectType != 0 && c.ObjectType != f.ObjectType {
		return false
	}
	if f.ObjectID != 0 && c.ObjectID != f.ObjectID {
		return false
	}
	if f.UserID != 0 && c.UserID != f.UserID {
		return false
	}
	return true
}

// =============================================================================
// COMPOSED STORES
// =============================================================================

type Store interface {
	ShipmentStore
	ConsignmentStore
	FulfillmentStore
	FinanceStore
	DepositStore
	ExchangeStore
	ChangeLogStore
	Directory
}

// TxStore opens transactional units over a Store.
type TxStore interface {
	WithTx(ctx context.Context, fn func(Store) error) error
}

// View runs a read inside WithTx and returns its result.
func View[T any](ctx context.Context, s TxStore, fn func(Store) (T, error)) (T, error) {
	var out T
	err := s.WithTx(ctx, func(tx Store) error {
		var err error
		out, err = fn(tx)
		return err
	})
	return out, err
}

// =============================================================================
// LOCKER - per-entity serialization ahead of the transaction
// =============================================================================

// Locker serializes units of work on the same key. Lock blocks until the
// key is held or ctx is done; the returned func releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Clock returns the current time. Workflows take one so tests can pin it.
type Clock func() time.Time
