/*
Package sqlite provides a SQLite-backed parcel.TxStore.

PURPOSE:
  Implements every persistence interface of the core (shipments,
  consignments, fulfillments, ledger rows, deposit bills, exchanges,
  change logs) plus the warehouse/address directory.

KEY TABLES:
  consignments, shipments:  parcel groups and their tracked legs
  fulfillments:             last-mile tasks, one per shipment
  user_finances:            one prepaid balance per user
  deposit_bills:            top-up requests
  exchanges:                currency rates
  change_logs:              append-only audit trail
  warehouses, addresses:    directory rows seeded by admin tooling

INDEXES:
  - idx_shipments_consignment_code: code is unique within a consignment
  - idx_fulfillments_shipment:      at most one fulfillment per shipment
  - idx_change_logs_object:         history of one object
  - idx_change_logs_user:           history of one actor

CONCURRENCY:
  WithTx holds the store mutex for the whole transaction, so units of
  work are serialized and Lock* reads need no row locks. Reads outside a
  transaction go straight to the pool.

WAL MODE:
  Opened with WAL and a busy timeout so readers never block the writer.
  ":memory:" databases are pinned to one connection so every query sees
  the same schema.

MONEY:
  Decimals are stored as TEXT and round-trip exactly.

USAGE:
  store, err := sqlite.New("./data/parcel.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - parcel/store.go: interface definitions
  - parcel/store/memory.go: in-memory implementation for testing
  - store/postgres: row-locking implementation for multi-instance setups
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/parcel-engine/parcel"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn implements parcel.Store over a querier.
type conn struct {
	q   querier
	now parcel.Clock
}

// Store implements parcel.TxStore using SQLite. Its embedded conn serves
// reads outside a transaction.
type Store struct {
	conn
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{conn: conn{q: db, now: time.Now}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return parcel.Unavailable("ping", s.db.PingContext(ctx))
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS warehouses (
		id INTEGER PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		base_fee TEXT NOT NULL DEFAULT '0',
		is_destination INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS addresses (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		address TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_addresses_user ON addresses(user_id);

	CREATE TABLE IF NOT EXISTS consignments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		source_warehouse_id INTEGER NOT NULL,
		dest_warehouse_id INTEGER NOT NULL,
		address_id INTEGER NOT NULL,
		shipping_name TEXT NOT NULL,
		shipping_phone TEXT NOT NULL,
		shipping_address TEXT NOT NULL,
		` + physicalSchema + `,
		product_category_id INTEGER NOT NULL DEFAULT 0,
		product_name TEXT NOT NULL DEFAULT '',
		number_of_packages INTEGER NOT NULL DEFAULT 1,
		code TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_consignments_user ON consignments(user_id);
	CREATE INDEX IF NOT EXISTS idx_consignments_code ON consignments(code);

	CREATE TABLE IF NOT EXISTS shipments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		consignment_id INTEGER NOT NULL REFERENCES consignments(id),
		user_id INTEGER NOT NULL,
		code TEXT NOT NULL,
		status INTEGER NOT NULL DEFAULT 0,
		finance_status INTEGER NOT NULL DEFAULT 0,
		` + physicalSchema + `,
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_shipments_consignment_code ON shipments(consignment_id, code);
	CREATE INDEX IF NOT EXISTS idx_shipments_user ON shipments(user_id);

	CREATE TABLE IF NOT EXISTS fulfillments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shipment_id INTEGER NOT NULL REFERENCES shipments(id),
		consignment_id INTEGER NOT NULL REFERENCES consignments(id),
		recipient_name TEXT NOT NULL,
		recipient_phone TEXT NOT NULL,
		recipient_address TEXT NOT NULL,
		status INTEGER NOT NULL DEFAULT 0,
		shipping_type INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_fulfillments_shipment ON fulfillments(shipment_id);

	CREATE TABLE IF NOT EXISTS user_finances (
		user_id INTEGER PRIMARY KEY,
		balance TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS deposit_bills (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		full_name TEXT NOT NULL,
		amount TEXT NOT NULL,
		deposit_type INTEGER NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		status INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_deposit_bills_user_status ON deposit_bills(user_id, status);

	CREATE TABLE IF NOT EXISTS exchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		foreign_currency TEXT NOT NULL DEFAULT 'CNY',
		local_currency TEXT NOT NULL DEFAULT 'VND',
		rate TEXT NOT NULL,
		type INTEGER NOT NULL DEFAULT 1,
		is_active INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_pair ON exchanges(foreign_currency, local_currency, is_active);

	-- Append-only: no UPDATE or DELETE is ever issued against change_logs.
	CREATE TABLE IF NOT EXISTS change_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		object_type INTEGER NOT NULL,
		object_id INTEGER NOT NULL,
		action INTEGER NOT NULL,
		changes_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_change_logs_object ON change_logs(object_type, object_id);
	CREATE INDEX IF NOT EXISTS idx_change_logs_user ON change_logs(user_id, object_type);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (parcel.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store parcel.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return parcel.Unavailable("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx, now: s.now}); err != nil {
		return err
	}

	return parcel.Unavailable("commit", sqlTx.Commit())
}

// =============================================================================
// DIRECTORY SEEDING
// =============================================================================

// SaveWarehouse upserts a warehouse.
func (s *Store) SaveWarehouse(ctx context.Context, w parcel.Warehouse) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO warehouses (id, code, name, base_fee, is_destination)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code, name = excluded.name,
			base_fee = excluded.base_fee, is_destination = excluded.is_destination
	`, w.ID, w.Code, w.Name, w.BaseFee.String(), w.IsDestination)
	return parcel.Unavailable("save warehouse", err)
}

// SaveAddress upserts an address.
func (s *Store) SaveAddress(ctx context.Context, a parcel.Address) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO addresses (id, user_id, name, phone, address)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id, name = excluded.name,
			phone = excluded.phone, address = excluded.address
	`, a.ID, a.UserID, a.Name, a.Phone, a.Address)
	return parcel.Unavailable("save address", err)
}

// =============================================================================
// COLUMN HELPERS
// =============================================================================

// physicalSchema is shared by consignments and shipments.
const physicalSchema = `
		weight TEXT NOT NULL DEFAULT '0',
		height TEXT NOT NULL DEFAULT '0',
		width TEXT NOT NULL DEFAULT '0',
		length TEXT NOT NULL DEFAULT '0',
		weight_packaged TEXT NOT NULL DEFAULT '0',
		height_packaged TEXT NOT NULL DEFAULT '0',
		width_packaged TEXT NOT NULL DEFAULT '0',
		length_packaged TEXT NOT NULL DEFAULT '0',
		contains_liquid INTEGER NOT NULL DEFAULT 0,
		contains_liquid_fee TEXT NOT NULL DEFAULT '0',
		is_fragile INTEGER NOT NULL DEFAULT 0,
		is_fragile_fee TEXT NOT NULL DEFAULT '0',
		wooden_packaging INTEGER NOT NULL DEFAULT 0,
		wooden_packaging_fee TEXT NOT NULL DEFAULT '0',
		insurance INTEGER NOT NULL DEFAULT 0,
		insurance_fee TEXT NOT NULL DEFAULT '0',
		item_count_check INTEGER NOT NULL DEFAULT 0,
		item_count_check_fee TEXT NOT NULL DEFAULT '0',
		domestic_shipping_fee TEXT NOT NULL DEFAULT '0'`

const physicalColumns = `weight, height, width, length,
	weight_packaged, height_packaged, width_packaged, length_packaged,
	contains_liquid, contains_liquid_fee, is_fragile, is_fragile_fee,
	wooden_packaging, wooden_packaging_fee, insurance, insurance_fee,
	item_count_check, item_count_check_fee, domestic_shipping_fee`

const physicalAssignments = `weight = ?, height = ?, width = ?, length = ?,
	weight_packaged = ?, height_packaged = ?, width_packaged = ?, length_packaged = ?,
	contains_liquid = ?, contains_liquid_fee = ?, is_fragile = ?, is_fragile_fee = ?,
	wooden_packaging = ?, wooden_packaging_fee = ?, insurance = ?, insurance_fee = ?,
	item_count_check = ?, item_count_check_fee = ?, domestic_shipping_fee = ?`

const physicalPlaceholders = `?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?`

func physicalArgs(raw, pk parcel.Dimensions, sc parcel.Surcharges, domestic decimal.Decimal) []any {
	return []any{
		raw.Weight.String(), raw.Height.String(), raw.Width.String(), raw.Length.String(),
		pk.Weight.String(), pk.Height.String(), pk.Width.String(), pk.Length.String(),
		sc.ContainsLiquid, sc.ContainsLiquidFee.String(), sc.Fragile, sc.FragileFee.String(),
		sc.WoodenPackaging, sc.WoodenPackagingFee.String(), sc.Insurance, sc.InsuranceFee.String(),
		sc.ItemCountCheck, sc.ItemCountCheckFee.String(), domestic.String(),
	}
}

func physicalDest(raw, pk *parcel.Dimensions, sc *parcel.Surcharges, domestic *decimal.Decimal) []any {
	return []any{
		&raw.Weight, &raw.Height, &raw.Width, &raw.Length,
		&pk.Weight, &pk.Height, &pk.Width, &pk.Length,
		&sc.ContainsLiquid, &sc.ContainsLiquidFee, &sc.Fragile, &sc.FragileFee,
		&sc.WoodenPackaging, &sc.WoodenPackagingFee, &sc.Insurance, &sc.InsuranceFee,
		&sc.ItemCountCheck, &sc.ItemCountCheckFee, domestic,
	}
}

// timeCol scans a TEXT timestamp written by ts.
type timeCol struct{ t *time.Time }

func (c timeCol) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c.t = time.Time{}
		return nil
	case time.Time:
		*c.t = v
		return nil
	case string:
		return c.parse(v)
	case []byte:
		return c.parse(string(v))
	}
	return fmt.Errorf("unsupported timestamp type %T", src)
}

func (c timeCol) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	*c.t = t
	return nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// changesCol scans the JSON diff list of a change log row.
type changesCol struct{ c *[]parcel.FieldChange }

func (c changesCol) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c.c = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported changes type %T", src)
	}
	return json.Unmarshal(raw, c.c)
}

// stamp fills zero timestamps before an insert.
func (c *conn) stamp(created, updated *time.Time) {
	now := c.now()
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = now
	}
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) &&
		(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

// mustAffect turns a zero-row UPDATE into NotFound.
func mustAffect(res sql.Result, entity string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return parcel.Unavailable("rows affected", err)
	}
	if n == 0 {
		return parcel.NotFound(entity, id)
	}
	return nil
}

func lastID(res sql.Result) (uint64, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, parcel.Unavailable("last insert id", err)
	}
	return uint64(id), nil
}
