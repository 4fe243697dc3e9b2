/*
Package postgres provides a Postgres-backed parcel.TxStore built on gorm.

PURPOSE:
  The multi-instance deployment target. Unlike the SQLite store, units
  of work are not serialized in-process: Lock* reads take row locks
  (SELECT ... FOR UPDATE) so concurrent transitions of the same shipment,
  settlements of the same bill and debits of the same balance queue on
  the database instead.

SCHEMA:
  Managed by gorm AutoMigrate from the row models in models.go. Money and
  measures are numeric columns; change log diffs are jsonb.

ERRORS:
  gorm.ErrRecordNotFound becomes (nil, nil) on reads. Duplicate keys are
  translated (TranslateError) into parcel.InvalidStateError. Anything
  else is a parcel.UnavailableError.

SEE ALSO:
  - store/sqlite: single-node store
  - parcel/store.go: interface definitions
*/
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/warp/parcel-engine/parcel"
)

// repo implements parcel.Store over a *gorm.DB, which is either the pool
// or an open transaction.
type repo struct {
	db  *gorm.DB
	now parcel.Clock
}

// Store implements parcel.TxStore.
type Store struct {
	repo
}

// New opens dsn and migrates the schema.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, parcel.Unavailable("open postgres", err)
	}
	return Open(db)
}

// Open wraps an existing gorm handle and migrates the schema.
func Open(db *gorm.DB) (*Store, error) {
	err := db.AutoMigrate(
		&consignmentRow{},
		&shipmentRow{},
		&fulfillmentRow{},
		&userFinanceRow{},
		&depositBillRow{},
		&exchangeRow{},
		&changeLogRow{},
		&warehouseRow{},
		&addressRow{},
	)
	if err != nil {
		return nil, parcel.Unavailable("migrate", err)
	}
	return &Store{repo{db: db, now: time.Now}}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return parcel.Unavailable("ping", err)
	}
	return parcel.Unavailable("ping", sqlDB.PingContext(ctx))
}

// WithTx runs fn in a database transaction. Domain errors returned by fn
// pass through unchanged.
func (s *Store) WithTx(ctx context.Context, fn func(parcel.Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repo{db: tx, now: s.now})
	})
	return parcel.Unavailable("transaction", err)
}

// SaveWarehouse upserts a warehouse.
func (s *Store) SaveWarehouse(ctx context.Context, w parcel.Warehouse) error {
	row := warehouseRow{ID: uint64(w.ID), Code: w.Code, Name: w.Name, BaseFee: w.BaseFee, IsDestination: w.IsDestination}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	return parcel.Unavailable("save warehouse", err)
}

// SaveAddress upserts an address.
func (s *Store) SaveAddress(ctx context.Context, a parcel.Address) error {
	row := addressRow{ID: uint64(a.ID), UserID: uint64(a.UserID), Name: a.Name, Phone: a.Phone, Address: a.Address}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	return parcel.Unavailable("save address", err)
}

// =============================================================================
// HELPERS
// =============================================================================

// first loads one row into dest. A missing row reports found=false.
func (r *repo) first(ctx context.Context, op string, lock bool, dest any, query string, args ...any) (bool, error) {
	q := r.db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where(query, args...).Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, parcel.Unavailable(op, err)
	}
	return true, nil
}

// update writes every column of row except id and created_at.
func (r *repo) update(ctx context.Context, op, entity string, id any, row any) error {
	res := r.db.WithContext(ctx).Model(row).Select("*").Omit("id", "created_at").Updates(row)
	if err := duplicate(res.Error, entity, op); err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return parcel.NotFound(entity, id)
	}
	return nil
}

func (r *repo) stamp(created, updated *time.Time) {
	now := r.now()
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = now
	}
}

func duplicate(err error, entity, op string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &parcel.InvalidStateError{Entity: entity, Reason: "duplicate key: " + err.Error()}
	}
	return parcel.Unavailable(op, err)
}

// =============================================================================
// CONSIGNMENTS
// =============================================================================

func (r *repo) GetConsignment(ctx context.Context, id parcel.ConsignmentID) (*parcel.Consignment, error) {
	var row consignmentRow
	ok, err := r.first(ctx, "get consignment", false, &row, "id = ?", uint64(id))
	if !ok || err != nil {
		return nil, err
	}
	c := row.domain()
	return &c, nil
}

func (r *repo) ConsignmentsByUser(ctx context.Context, userID parcel.UserID) ([]parcel.Consignment, error) {
	var rows []consignmentRow
	if err := r.db.WithContext(ctx).Where("user_id = ?", uint64(userID)).Order("id").Find(&rows).Error; err != nil {
		return nil, parcel.Unavailable("list consignments", err)
	}
	out := make([]parcel.Consignment, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.domain())
	}
	return out, nil
}

func (r *repo) CreateConsignment(ctx context.Context, c *parcel.Consignment) error {
	r.stamp(&c.CreatedAt, &c.UpdatedAt)
	row := consignmentFrom(c)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return duplicate(err, "consignment", "create consignment")
	}
	c.ID = parcel.ConsignmentID(row.ID)
	return nil
}

func (r *repo) SaveConsignment(ctx context.Context, c *parcel.Consignment) error {
	row := consignmentFrom(c)
	return r.update(ctx, "save consignment", "consignment", c.ID, &row)
}

// =============================================================================
// SHIPMENTS
// =============================================================================

func (r *repo) getShipment(ctx context.Context, id parcel.ShipmentID, lock bool) (*parcel.Shipment, error) {
	var row shipmentRow
	ok, err := r.first(ctx, "get shipment", lock, &row, "id = ?", uint64(id))
	if !ok || err != nil {
		return nil, err
	}
	s := row.domain()
	return &s, nil
}

func (r *repo) GetShipment(ctx context.Context, id parcel.ShipmentID) (*parcel.Shipment, error) {
	return r.getShipment(ctx, id, false)
}

func (r *repo) LockShipment(ctx context.Context, id parcel.ShipmentID) (*parcel.Shipment, error) {
	return r.getShipment(ctx, id, true)
}

func (r *repo) listShipments(ctx context.Context, query string, arg any) ([]parcel.Shipment, error) {
	var rows []shipmentRow
	if err := r.db.WithContext(ctx).Where(query, arg).Order("id").Find(&rows).Error; err != nil {
		return nil, parcel.Unavailable("list shipments", err)
	}
	out := make([]parcel.Shipment, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.domain())
	}
	return out, nil
}

func (r *repo) ShipmentsByConsignment(ctx context.Context, id parcel.ConsignmentID) ([]parcel.Shipment, error) {
	return r.listShipments(ctx, "consignment_id = ?", uint64(id))
}

func (r *repo) ShipmentsByUser(ctx context.Context, userID parcel.UserID) ([]parcel.Shipment, error) {
	return r.listShipments(ctx, "user_id = ?", uint64(userID))
}

func (r *repo) CreateShipment(ctx context.Context, s *parcel.Shipment) error {
	r.stamp(&s.CreatedAt, &s.UpdatedAt)
	row := shipmentFrom(s)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return duplicate(err, "shipment", "create shipment")
	}
	s.ID = parcel.ShipmentID(row.ID)
	return nil
}

func (r *repo) SaveShipment(ctx context.Context, s *parcel.Shipment) error {
	row := shipmentFrom(s)
	return r.update(ctx, "save shipment", "shipment", s.ID, &row)
}

func (r *repo) DeleteShipment(ctx context.Context, id parcel.ShipmentID) error {
	res := r.db.WithContext(ctx).Delete(&shipmentRow{}, uint64(id))
	if res.Error != nil {
		return parcel.Unavailable("delete shipment", res.Error)
	}
	if res.RowsAffected == 0 {
		return parcel.NotFound("shipment", id)
	}
	return nil
}

// =============================================================================
// FULFILLMENTS
// =============================================================================

func (r *repo) getFulfillment(ctx context.Context, query string, arg any) (*parcel.Fulfillment, error) {
	var row fulfillmentRow
	ok, err := r.first(ctx, "get fulfillment", false, &row, query, arg)
	if !ok || err != nil {
		return nil, err
	}
	f := row.domain()
	return &f, nil
}

func (r *repo) GetFulfillment(ctx context.Context, id parcel.FulfillmentID) (*parcel.Fulfillment, error) {
	return r.getFulfillment(ctx, "id = ?", uint64(id))
}

func (r *repo) FulfillmentByShipment(ctx context.Context, id parcel.ShipmentID) (*parcel.Fulfillment, error) {
	return r.getFulfillment(ctx, "shipment_id = ?", uint64(id))
}

func (r *repo) CreateFulfillment(ctx context.Context, f *parcel.Fulfillment) error {
	r.stamp(&f.CreatedAt, &f.UpdatedAt)
	row := fulfillmentFrom(f)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return duplicate(err, "fulfillment", "create fulfillment")
	}
	f.ID = parcel.FulfillmentID(row.ID)
	return nil
}

func (r *repo) SaveFulfillment(ctx context.Context, f *parcel.Fulfillment) error {
	row := fulfillmentFrom(f)
	return r.update(ctx, "save fulfillment", "fulfillment", f.ID, &row)
}

// =============================================================================
// LEDGER ROWS
// =============================================================================

func (r *repo) getUserFinance(ctx context.Context, userID parcel.UserID, lock bool) (*parcel.UserFinance, error) {
	var row userFinanceRow
	ok, err := r.first(ctx, "get user finance", lock, &row, "user_id = ?", uint64(userID))
	if !ok || err != nil {
		return nil, err
	}
	return &parcel.UserFinance{
		UserID: parcel.UserID(row.UserID), Balance: row.Balance,
		CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}, nil
}

func (r *repo) GetUserFinance(ctx context.Context, userID parcel.UserID) (*parcel.UserFinance, error) {
	return r.getUserFinance(ctx, userID, false)
}

func (r *repo) LockUserFinance(ctx context.Context, userID parcel.UserID) (*parcel.UserFinance, error) {
	return r.getUserFinance(ctx, userID, true)
}

func (r *repo) CreateUserFinance(ctx context.Context, f *parcel.UserFinance) error {
	r.stamp(&f.CreatedAt, &f.UpdatedAt)
	row := userFinanceRow{UserID: uint64(f.UserID), Balance: f.Balance, CreatedAt: f.CreatedAt, UpdatedAt: f.UpdatedAt}
	return duplicate(r.db.WithContext(ctx).Create(&row).Error, "user finance", "create user finance")
}

// EnsureUserFinance relies on ON CONFLICT so a racing insert from another
// transaction waits for it and then does nothing.
func (r *repo) EnsureUserFinance(ctx context.Context, userID parcel.UserID) error {
	now := r.now()
	row := userFinanceRow{UserID: uint64(userID), Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&row).Error
	return parcel.Unavailable("ensure user finance", err)
}

func (r *repo) SaveUserFinance(ctx context.Context, f *parcel.UserFinance) error {
	res := r.db.WithContext(ctx).Model(&userFinanceRow{}).
		Where("user_id = ?", uint64(f.UserID)).
		Updates(map[string]any{"balance": f.Balance, "updated_at": f.UpdatedAt})
	if res.Error != nil {
		return parcel.Unavailable("save user finance", res.Error)
	}
	if res.RowsAffected == 0 {
		return parcel.NotFound("user finance", f.UserID)
	}
	return nil
}

// =============================================================================
// DEPOSIT BILLS
// =============================================================================

func (r *repo) getDepositBill(ctx context.Context, id parcel.DepositBillID, lock bool) (*parcel.DepositBill, error) {
	var row depositBillRow
	ok, err := r.first(ctx, "get deposit bill", lock, &row, "id = ?", uint64(id))
	if !ok || err != nil {
		return nil, err
	}
	b := row.domain()
	return &b, nil
}

func (r *repo) GetDepositBill(ctx context.Context, id parcel.DepositBillID) (*parcel.DepositBill, error) {
	return r.getDepositBill(ctx, id, false)
}

func (r *repo) LockDepositBill(ctx context.Context, id parcel.DepositBillID) (*parcel.DepositBill, error) {
	return r.getDepositBill(ctx, id, true)
}

func (r *repo) DepositBills(ctx context.Context, filter parcel.DepositFilter) ([]parcel.DepositBill, error) {
	q := r.db.WithContext(ctx)
	if filter.UserID != nil {
		q = q.Where("user_id = ?", uint64(*filter.UserID))
	}
	if filter.Status != nil {
		q = q.Where("status = ?", int(*filter.Status))
	}
	var rows []depositBillRow
	if err := q.Order("id DESC").Find(&rows).Error; err != nil {
		return nil, parcel.Unavailable("list deposit bills", err)
	}
	out := make([]parcel.DepositBill, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.domain())
	}
	return out, nil
}

func (r *repo) CreateDepositBill(ctx context.Context, b *parcel.DepositBill) error {
	r.stamp(&b.CreatedAt, &b.UpdatedAt)
	row := depositFrom(b)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return duplicate(err, "deposit bill", "create deposit bill")
	}
	b.ID = parcel.DepositBillID(row.ID)
	return nil
}

func (r *repo) SaveDepositBill(ctx context.Context, b *parcel.DepositBill) error {
	row := depositFrom(b)
	return r.update(ctx, "save deposit bill", "deposit bill", b.ID, &row)
}

// =============================================================================
// EXCHANGES
// =============================================================================

func (r *repo) GetExchange(ctx context.Context, id parcel.ExchangeID) (*parcel.Exchange, error) {
	var row exchangeRow
	ok, err := r.first(ctx, "get exchange", false, &row, "id = ?", uint64(id))
	if !ok || err != nil {
		return nil, err
	}
	e := row.domain()
	return &e, nil
}

func (r *repo) ActiveExchange(ctx context.Context, foreign, local string) (*parcel.Exchange, error) {
	var rows []exchangeRow
	err := r.db.WithContext(ctx).
		Where("foreign_currency = ? AND local_currency = ? AND is_active", foreign, local).
		Order("id").Limit(1).Find(&rows).Error
	if err != nil {
		return nil, parcel.Unavailable("active exchange", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	e := rows[0].domain()
	return &e, nil
}

func (r *repo) Exchanges(ctx context.Context) ([]parcel.Exchange, error) {
	var rows []exchangeRow
	if err := r.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, parcel.Unavailable("list exchanges", err)
	}
	out := make([]parcel.Exchange, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.domain())
	}
	return out, nil
}

func (r *repo) CreateExchange(ctx context.Context, e *parcel.Exchange) error {
	r.stamp(&e.CreatedAt, &e.UpdatedAt)
	row := exchangeFrom(e)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return duplicate(err, "exchange", "create exchange")
	}
	e.ID = parcel.ExchangeID(row.ID)
	return nil
}

func (r *repo) SaveExchange(ctx context.Context, e *parcel.Exchange) error {
	row := exchangeFrom(e)
	return r.update(ctx, "save exchange", "exchange", e.ID, &row)
}

// =============================================================================
// CHANGE LOGS
// =============================================================================

func (r *repo) AppendChangeLog(ctx context.Context, entry *parcel.ChangeLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	row := changeLogRow{
		UserID: uint64(entry.UserID), ObjectType: int(entry.ObjectType), ObjectID: entry.ObjectID,
		Action: int(entry.Action), Changes: changeList(entry.Changes), CreatedAt: entry.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return parcel.Unavailable("append change log", err)
	}
	entry.ID = parcel.ChangeLogID(row.ID)
	return nil
}

func (r *repo) ChangeLogs(ctx context.Context, filter parcel.ChangeLogFilter) ([]parcel.ChangeLog, error) {
	q := r.db.WithContext(ctx)
	if filter.ObjectType != 0 {
		q = q.Where("object_type = ?", int(filter.ObjectType))
	}
	if filter.ObjectID != 0 {
		q = q.Where("object_id = ?", filter.ObjectID)
	}
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", uint64(filter.UserID))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []changeLogRow
	if err := q.Order("id DESC").Find(&rows).Error; err != nil {
		return nil, parcel.Unavailable("list change logs", err)
	}
	out := make([]parcel.ChangeLog, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.domain())
	}
	return out, nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (r *repo) GetWarehouse(ctx context.Context, id parcel.WarehouseID) (*parcel.Warehouse, error) {
	var row warehouseRow
	ok, err := r.first(ctx, "get warehouse", false, &row, "id = ?", uint64(id))
	if !ok || err != nil {
		return nil, err
	}
	return &parcel.Warehouse{
		ID: parcel.WarehouseID(row.ID), Code: row.Code, Name: row.Name,
		BaseFee: row.BaseFee, IsDestination: row.IsDestination,
	}, nil
}

func (r *repo) GetAddress(ctx context.Context, userID parcel.UserID, id parcel.AddressID) (*parcel.Address, error) {
	var row addressRow
	ok, err := r.first(ctx, "get address", false, &row, "id = ? AND user_id = ?", uint64(id), uint64(userID))
	if !ok || err != nil {
		return nil, err
	}
	return &parcel.Address{
		ID: parcel.AddressID(row.ID), UserID: parcel.UserID(row.UserID),
		Name: row.Name, Phone: row.Phone, Address: row.Address,
	}, nil
}
