package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/parcel-engine/parcel"
)

// =============================================================================
// LEDGER ROWS
// =============================================================================

func (c *conn) GetUserFinance(ctx context.Context, userID parcel.UserID) (*parcel.UserFinance, error) {
	var f parcel.UserFinance
	err := c.q.QueryRowContext(ctx, `
		SELECT user_id, balance, created_at, updated_at FROM user_finances WHERE user_id = ?
	`, userID).Scan(&f.UserID, &f.Balance, timeCol{&f.CreatedAt}, timeCol{&f.UpdatedAt})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, parcel.Unavailable("get user finance", err)
	}
	return &f, nil
}

func (c *conn) LockUserFinance(ctx context.Context, userID parcel.UserID) (*parcel.UserFinance, error) {
	return c.GetUserFinance(ctx, userID)
}

func (c *conn) CreateUserFinance(ctx context.Context, f *parcel.UserFinance) error {
	c.stamp(&f.CreatedAt, &f.UpdatedAt)
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO user_finances (user_id, balance, created_at, updated_at) VALUES (?, ?, ?, ?)
	`, f.UserID, f.Balance.String(), ts(f.CreatedAt), ts(f.UpdatedAt))
	if isUniqueConstraintError(err) {
		return &parcel.InvalidStateError{Entity: "user finance", ID: f.UserID, Reason: "ledger row already exists"}
	}
	return parcel.Unavailable("create user finance", err)
}

func (c *conn) EnsureUserFinance(ctx context.Context, userID parcel.UserID) error {
	now := ts(c.now())
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO user_finances (user_id, balance, created_at, updated_at) VALUES (?, '0', ?, ?)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, now, now)
	return parcel.Unavailable("ensure user finance", err)
}

func (c *conn) SaveUserFinance(ctx context.Context, f *parcel.UserFinance) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE user_finances SET balance = ?, updated_at = ? WHERE user_id = ?
	`, f.Balance.String(), ts(f.UpdatedAt), f.UserID)
	if err != nil {
		return parcel.Unavailable("save user finance", err)
	}
	return mustAffect(res, "user finance", f.UserID)
}

// =============================================================================
// DEPOSIT BILLS
// =============================================================================

const depositColumns = `id, user_id, full_name, amount, deposit_type, note, status, created_at, updated_at`

func scanDeposit(row interface{ Scan(...any) error }) (*parcel.DepositBill, error) {
	var b parcel.DepositBill
	err := row.Scan(&b.ID, &b.UserID, &b.FullName, &b.Amount, &b.DepositType, &b.Note, &b.Status,
		timeCol{&b.CreatedAt}, timeCol{&b.UpdatedAt})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *conn) GetDepositBill(ctx context.Context, id parcel.DepositBillID) (*parcel.DepositBill, error) {
	b, err := scanDeposit(c.q.QueryRowContext(ctx, `SELECT `+depositColumns+` FROM deposit_bills WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, parcel.Unavailable("get deposit bill", err)
	}
	return b, nil
}

func (c *conn) LockDepositBill(ctx context.Context, id parcel.DepositBillID) (*parcel.DepositBill, error) {
	return c.GetDepositBill(ctx, id)
}

func (c *conn) DepositBills(ctx context.Context, filter parcel.DepositFilter) ([]parcel.DepositBill, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *filter.Status)
	}
	query := `SELECT ` + depositColumns + ` FROM deposit_bills`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id DESC`

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, parcel.Unavailable("list deposit bills", err)
	}
	defer rows.Close()

	var out []parcel.DepositBill
	for rows.Next() {
		b, err := scanDeposit(rows)
		if err != nil {
			return nil, parcel.Unavailable("scan deposit bill", err)
		}
		out = append(out, *b)
	}
	return out, parcel.Unavailable("list deposit bills", rows.Err())
}

func (c *conn) CreateDepositBill(ctx context.Context, b *parcel.DepositBill) error {
	c.stamp(&b.CreatedAt, &b.UpdatedAt)
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO deposit_bills (user_id, full_name, amount, deposit_type, note, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, b.UserID, b.FullName, b.Amount.String(), b.DepositType, b.Note, b.Status, ts(b.CreatedAt), ts(b.UpdatedAt))
	if err != nil {
		return parcel.Unavailable("create deposit bill", err)
	}
	id, err := lastID(res)
	if err != nil {
		return err
	}
	b.ID = parcel.DepositBillID(id)
	return nil
}

func (c *conn) SaveDepositBill(ctx context.Context, b *parcel.DepositBill) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE deposit_bills SET full_name = ?, amount = ?, deposit_type = ?, note = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, b.FullName, b.Amount.String(), b.DepositType, b.Note, b.Status, ts(b.UpdatedAt), b.ID)
	if err != nil {
		return parcel.Unavailable("save deposit bill", err)
	}
	return mustAffect(res, "deposit bill", b.ID)
}

// =============================================================================
// EXCHANGES
// =============================================================================

const exchangeColumns = `id, name, description, foreign_currency, local_currency, rate, type, is_active, created_at, updated_at`

func scanExchange(row interface{ Scan(...any) error }) (*parcel.Exchange, error) {
	var e parcel.Exchange
	err := row.Scan(&e.ID, &e.Name, &e.Description, &e.ForeignCurrency, &e.LocalCurrency, &e.Rate,
		&e.Type, &e.IsActive, timeCol{&e.CreatedAt}, timeCol{&e.UpdatedAt})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *conn) getExchange(ctx context.Context, where string, args ...any) (*parcel.Exchange, error) {
	e, err := scanExchange(c.q.QueryRowContext(ctx, `SELECT `+exchangeColumns+` FROM exchanges WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, parcel.Unavailable("get exchange", err)
	}
	return e, nil
}

func (c *conn) GetExchange(ctx context.Context, id parcel.ExchangeID) (*parcel.Exchange, error) {
	return c.getExchange(ctx, "id = ?", id)
}

func (c *conn) ActiveExchange(ctx context.Context, foreign, local string) (*parcel.Exchange, error) {
	return c.getExchange(ctx, "foreign_currency = ? AND local_currency = ? AND is_active = 1 ORDER BY id LIMIT 1", foreign, local)
}

func (c *conn) Exchanges(ctx context.Context) ([]parcel.Exchange, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT `+exchangeColumns+` FROM exchanges ORDER BY id`)
	if err != nil {
		return nil, parcel.Unavailable("list exchanges", err)
	}
	defer rows.Close()

	var out []parcel.Exchange
	for rows.Next() {
		e, err := scanExchange(rows)
		if err != nil {
			return nil, parcel.Unavailable("scan exchange", err)
		}
		out = append(out, *e)
	}
	return out, parcel.Unavailable("list exchanges", rows.Err())
}

func (c *conn) CreateExchange(ctx context.Context, e *parcel.Exchange) error {
	c.stamp(&e.CreatedAt, &e.UpdatedAt)
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO exchanges (name, description, foreign_currency, local_currency, rate, type, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Name, e.Description, e.ForeignCurrency, e.LocalCurrency, e.Rate.String(), e.Type, e.IsActive,
		ts(e.CreatedAt), ts(e.UpdatedAt))
	if err != nil {
		return parcel.Unavailable("create exchange", err)
	}
	id, err := lastID(res)
	if err != nil {
		return err
	}
	e.ID = parcel.ExchangeID(id)
	return nil
}

func (c *conn) SaveExchange(ctx context.Context, e *parcel.Exchange) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE exchanges SET name = ?, description = ?, foreign_currency = ?, local_currency = ?,
			rate = ?, type = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`, e.Name, e.Description, e.ForeignCurrency, e.LocalCurrency, e.Rate.String(), e.Type, e.IsActive,
		ts(e.UpdatedAt), e.ID)
	if err != nil {
		return parcel.Unavailable("save exchange", err)
	}
	return mustAffect(res, "exchange", e.ID)
}

// =============================================================================
// CHANGE LOGS
// =============================================================================

func (c *conn) AppendChangeLog(ctx context.Context, entry *parcel.ChangeLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = c.now()
	}
	changes := entry.Changes
	if changes == nil {
		changes = []parcel.FieldChange{}
	}
	raw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("encode changes: %w", err)
	}

	res, err := c.q.ExecContext(ctx, `
		INSERT INTO change_logs (user_id, object_type, object_id, action, changes_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.UserID, entry.ObjectType, entry.ObjectID, entry.Action, string(raw), ts(entry.CreatedAt))
	if err != nil {
		return parcel.Unavailable("append change log", err)
	}
	id, err := lastID(res)
	if err != nil {
		return err
	}
	entry.ID = parcel.ChangeLogID(id)
	return nil
}

func (c *conn) ChangeLogs(ctx context.Context, filter parcel.ChangeLogFilter) ([]parcel.ChangeLog, error) {
	var (
		where []string
		args  []any
	)
	if filter.ObjectType != 0 {
		where = append(where, "object_type = ?")
		args = append(args, filter.ObjectType)
	}
	if filter.ObjectID != 0 {
		where = append(where, "object_id = ?")
		args = append(args, filter.ObjectID)
	}
	if filter.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	query := `SELECT id, user_id, object_type, object_id, action, changes_json, created_at FROM change_logs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, parcel.Unavailable("list change logs", err)
	}
	defer rows.Close()

	var out []parcel.ChangeLog
	for rows.Next() {
		var l parcel.ChangeLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.ObjectType, &l.ObjectID, &l.Action,
			changesCol{&l.Changes}, timeCol{&l.CreatedAt}); err != nil {
			return nil, parcel.Unavailable("scan change log", err)
		}
		out = append(out, l)
	}
	return out, parcel.Unavailable("list change logs", rows.Err())
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (c *conn) GetWarehouse(ctx context.Context, id parcel.WarehouseID) (*parcel.Warehouse, error) {
	var w parcel.Warehouse
	err := c.q.QueryRowContext(ctx, `
		SELECT id, code, name, base_fee, is_destination FROM warehouses WHERE id = ?
	`, id).Scan(&w.ID, &w.Code, &w.Name, &w.BaseFee, &w.IsDestination)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, parcel.Unavailable("get warehouse", err)
	}
	return &w, nil
}

func (c *conn) GetAddress(ctx context.Context, userID parcel.UserID, id parcel.AddressID) (*parcel.Address, error) {
	var a parcel.Address
	err := c.q.QueryRowContext(ctx, `
		SELECT id, user_id, name, phone, address FROM addresses WHERE id = ? AND user_id = ?
	`, id, userID).Scan(&a.ID, &a.UserID, &a.Name, &a.Phone, &a.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, parcel.Unavailable("get address", err)
	}
	return &a, nil
}
