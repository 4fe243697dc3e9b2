package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/parcel-engine/parcel"
)

// =============================================================================
// CONSIGNMENTS
// =============================================================================

const consignmentColumns = `id, user_id, source_warehouse_id, dest_warehouse_id, address_id,
	shipping_name, shipping_phone, shipping_address, ` + physicalColumns + `,
	product_category_id, product_name, number_of_packages, code, created_at, updated_at`

func scanConsignment(row interface{ Scan(...any) error }) (*parcel.Consignment, error) {
	var c parcel.Consignment
	dest := []any{&c.ID, &c.UserID, &c.SourceWarehouseID, &c.DestWarehouseID, &c.AddressID,
		&c.ShippingName, &c.ShippingPhone, &c.ShippingAddress}
	dest = append(dest, physicalDest(&c.Raw, &c.Packaged, &c.Surcharges, &c.DomesticShippingFee)...)
	dest = append(dest, &c.ProductCategoryID, &c.ProductName, &c.NumberOfPackages, &c.Code,
		timeCol{&c.CreatedAt}, timeCol{&c.UpdatedAt})
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *conn) GetConsignment(ctx context.Context, id parcel.ConsignmentID) (*parcel.Consignment, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+consignmentColumns+` FROM consignments WHERE id = ?`, id)
	out, err := scanConsignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, parcel.Unavailable("get consignment", err)
	}
	return out, nil
}

func (c *conn) ConsignmentsByUser(ctx context.Context, userID parcel.UserID) ([]parcel.Consignment, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT `+consignmentColumns+` FROM consignments WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, parcel.Unavailable("list consignments", err)
	}
	defer rows.Close()

	var out []parcel.Consignment
	for rows.Next() {
		item, err := scanConsignment(rows)
		if err != nil {
			return nil, parcel.Unavailable("scan consignment", err)
		}
		out = append(out, *item)
	}
	return out, parcel.Unavailable("list consignments", rows.Err())
}

func (c *conn) CreateConsignment(ctx context.Context, cs *parcel.Consignment) error {
	c.stamp(&cs.CreatedAt, &cs.UpdatedAt)
	args := []any{cs.UserID, cs.SourceWarehouseID, cs.DestWarehouseID, cs.AddressID,
		cs.ShippingName, cs.ShippingPhone, cs.ShippingAddress}
	args = append(args, physicalArgs(cs.Raw, cs.Packaged, cs.Surcharges, cs.DomesticShippingFee)...)
	args = append(args, cs.ProductCategoryID, cs.ProductName, cs.NumberOfPackages, cs.Code,
		ts(cs.CreatedAt), ts(cs.UpdatedAt))

	res, err := c.q.ExecContext(ctx, `
		INSERT INTO consignments (user_id, source_warehouse_id, dest_warehouse_id, address_id,
			shipping_name, shipping_phone, shipping_address, `+physicalColumns+`,
			product_category_id, product_name, number_of_packages, code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, `+physicalPlaceholders+`, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return parcel.Unavailable("create consignment", err)
	}
	id, err := lastID(res)
	if err != nil {
		return err
	}
	cs.ID = parcel.ConsignmentID(id)
	return nil
}

func (c *conn) SaveConsignment(ctx context.Context, cs *parcel.Consignment) error {
	args := []any{cs.UserID, cs.SourceWarehouseID, cs.DestWarehouseID, cs.AddressID,
		cs.ShippingName, cs.ShippingPhone, cs.ShippingAddress}
	args = append(args, physicalArgs(cs.Raw, cs.Packaged, cs.Surcharges, cs.DomesticShippingFee)...)
	args = append(args, cs.ProductCategoryID, cs.ProductName, cs.NumberOfPackages, cs.Code,
		ts(cs.UpdatedAt), cs.ID)

	res, err := c.q.ExecContext(ctx, `
		UPDATE consignments SET user_id = ?, source_warehouse_id = ?, dest_warehouse_id = ?, address_id = ?,
			shipping_name = ?, shipping_phone = ?, shipping_address = ?, `+physicalAssignments+`,
			product_category_id = ?, product_name = ?, number_of_packages = ?, code = ?, updated_at = ?
		WHERE id = ?
	`, args...)
	if err != nil {
		return parcel.Unavailable("save consignment", err)
	}
	return mustAffect(res, "consignment", cs.ID)
}

// =============================================================================
// SHIPMENTS
// =============================================================================

const shipmentColumns = `id, consignment_id, user_id, code, status, finance_status, ` +
	physicalColumns + `, note, created_at, updated_at`

func scanShipment(row interface{ Scan(...any) error }) (*parcel.Shipment, error) {
	var s parcel.Shipment
	dest := []any{&s.ID, &s.ConsignmentID, &s.UserID, &s.Code, &s.Status, &s.FinanceStatus}
	dest = append(dest, physicalDest(&s.Raw, &s.Packaged, &s.Surcharges, &s.DomesticShippingFee)...)
	dest = append(dest, &s.Note, timeCol{&s.CreatedAt}, timeCol{&s.UpdatedAt})
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *conn) GetShipment(ctx context.Context, id parcel.ShipmentID) (*parcel.Shipment, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = ?`, id)
	s, err := scanShipment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, parcel.Unavailable("get shipment", err)
	}
	return s, nil
}

// LockShipment is a plain read: WithTx already serializes writers.
func (c *conn) LockShipment(ctx context.Context, id parcel.ShipmentID) (*parcel.Shipment, error) {
	return c.GetShipment(ctx, id)
}

func (c *conn) listShipments(ctx context.Context, where string, arg any) ([]parcel.Shipment, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE `+where+` ORDER BY id`, arg)
	if err != nil {
		return nil, parcel.Unavailable("list shipments", err)
	}
	defer rows.Close()

	var out []parcel.Shipment
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, parcel.Unavailable("scan shipment", err)
		}
		out = append(out, *s)
	}
	return out, parcel.Unavailable("list shipments", rows.Err())
}

func (c *conn) ShipmentsByConsignment(ctx context.Context, id parcel.ConsignmentID) ([]parcel.Shipment, error) {
	return c.listShipments(ctx, "consignment_id = ?", id)
}

func (c *conn) ShipmentsByUser(ctx context.Context, userID parcel.UserID) ([]parcel.Shipment, error) {
	return c.listShipments(ctx, "user_id = ?", userID)
}

func (c *conn) CreateShipment(ctx context.Context, s *parcel.Shipment) error {
	c.stamp(&s.CreatedAt, &s.UpdatedAt)
	args := []any{s.ConsignmentID, s.UserID, s.Code, s.Status, s.FinanceStatus}
	args = append(args, physicalArgs(s.Raw, s.Packaged, s.Surcharges, s.DomesticShippingFee)...)
	args = append(args, s.Note, ts(s.CreatedAt), ts(s.UpdatedAt))

	res, err := c.q.ExecContext(ctx, `
		INSERT INTO shipments (consignment_id, user_id, code, status, finance_status, `+physicalColumns+`,
			note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, `+physicalPlaceholders+`, ?, ?, ?)
	`, args...)
	if isUniqueConstraintError(err) {
		return &parcel.InvalidStateError{
			Entity: "shipment", Field: "code",
			Reason: fmt.Sprintf("code %q already exists in consignment %d", s.Code, s.ConsignmentID),
		}
	}
	if err != nil {
		return parcel.Unavailable("create shipment", err)
	}
	id, err := lastID(res)
	if err != nil {
		return err
	}
	s.ID = parcel.ShipmentID(id)
	return nil
}

func (c *conn) SaveShipment(ctx context.Context, s *parcel.Shipment) error {
	args := []any{s.ConsignmentID, s.UserID, s.Code, s.Status, s.FinanceStatus}
	args = append(args, physicalArgs(s.Raw, s.Packaged, s.Surcharges, s.DomesticShippingFee)...)
	args = append(args, s.Note, ts(s.UpdatedAt), s.ID)

	res, err := c.q.ExecContext(ctx, `
		UPDATE shipments SET consignment_id = ?, user_id = ?, code = ?, status = ?, finance_status = ?,
			`+physicalAssignments+`, note = ?, updated_at = ?
		WHERE id = ?
	`, args...)
	if isUniqueConstraintError(err) {
		return &parcel.InvalidStateError{Entity: "shipment", ID: s.ID, Field: "code", Reason: "code already exists in consignment"}
	}
	if err != nil {
		return parcel.Unavailable("save shipment", err)
	}
	return mustAffect(res, "shipment", s.ID)
}

func (c *conn) DeleteShipment(ctx context.Context, id parcel.ShipmentID) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM shipments WHERE id = ?`, id)
	if err != nil {
		return parcel.Unavailable("delete shipment", err)
	}
	return mustAffect(res, "shipment", id)
}

// =============================================================================
// FULFILLMENTS
// =============================================================================

const fulfillmentColumns = `id, shipment_id, consignment_id, recipient_name, recipient_phone,
	recipient_address, status, shipping_type, created_at, updated_at`

func scanFulfillment(row interface{ Scan(...any) error }) (*parcel.Fulfillment, error) {
	var f parcel.Fulfillment
	err := row.Scan(&f.ID, &f.ShipmentID, &f.ConsignmentID, &f.RecipientName, &f.RecipientPhone,
		&f.RecipientAddress, &f.Status, &f.ShippingType, timeCol{&f.CreatedAt}, timeCol{&f.UpdatedAt})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *conn) getFulfillment(ctx context.Context, where string, arg any) (*parcel.Fulfillment, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+fulfillmentColumns+` FROM fulfillments WHERE `+where, arg)
	f, err := scanFulfillment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, parcel.Unavailable("get fulfillment", err)
	}
	return f, nil
}

func (c *conn) GetFulfillment(ctx context.Context, id parcel.FulfillmentID) (*parcel.Fulfillment, error) {
	return c.getFulfillment(ctx, "id = ?", id)
}

func (c *conn) FulfillmentByShipment(ctx context.Context, id parcel.ShipmentID) (*parcel.Fulfillment, error) {
	return c.getFulfillment(ctx, "shipment_id = ?", id)
}

func (c *conn) CreateFulfillment(ctx context.Context, f *parcel.Fulfillment) error {
	c.stamp(&f.CreatedAt, &f.UpdatedAt)
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO fulfillments (shipment_id, consignment_id, recipient_name, recipient_phone,
			recipient_address, status, shipping_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ShipmentID, f.ConsignmentID, f.RecipientName, f.RecipientPhone,
		f.RecipientAddress, f.Status, f.ShippingType, ts(f.CreatedAt), ts(f.UpdatedAt))
	if isUniqueConstraintError(err) {
		return &parcel.InvalidStateError{
			Entity: "fulfillment", Field: "shipment_id",
			Reason: fmt.Sprintf("shipment %d already has a fulfillment", f.ShipmentID),
		}
	}
	if err != nil {
		return parcel.Unavailable("create fulfillment", err)
	}
	id, err := lastID(res)
	if err != nil {
		return err
	}
	f.ID = parcel.FulfillmentID(id)
	return nil
}

func (c *conn) SaveFulfillment(ctx context.Context, f *parcel.Fulfillment) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE fulfillments SET recipient_name = ?, recipient_phone = ?, recipient_address = ?,
			status = ?, shipping_type = ?, updated_at = ?
		WHERE id = ?
	`, f.RecipientName, f.RecipientPhone, f.RecipientAddress, f.Status, f.ShippingType, ts(f.UpdatedAt), f.ID)
	if err != nil {
		return parcel.Unavailable("save fulfillment", err)
	}
	return mustAffect(res, "fulfillment", f.ID)
}
