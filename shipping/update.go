package shipping

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/parcel-engine/parcel"
)

// ShipmentUpdate is a partial set of desired shipment fields. Nil fields
// were not sent and are left alone.
type ShipmentUpdate struct {
	Status        *parcel.ShipmentStatus
	FinanceStatus *parcel.FinanceStatus

	Weight         *decimal.Decimal
	Height         *decimal.Decimal
	Width          *decimal.Decimal
	Length         *decimal.Decimal
	WeightPackaged *decimal.Decimal
	HeightPackaged *decimal.Decimal
	WidthPackaged  *decimal.Decimal
	LengthPackaged *decimal.Decimal

	ContainsLiquid     *bool
	ContainsLiquidFee  *decimal.Decimal
	Fragile            *bool
	FragileFee         *decimal.Decimal
	WoodenPackaging    *bool
	WoodenPackagingFee *decimal.Decimal
	Insurance          *bool
	InsuranceFee       *decimal.Decimal
	ItemCountCheck     *bool
	ItemCountCheckFee  *decimal.Decimal

	DomesticShippingFee *decimal.Decimal
	Note                *string
}

// weightOr returns the sent weight, or fallback when weight was not sent.
func (u ShipmentUpdate) weightOr(fallback decimal.Decimal) decimal.Decimal {
	if u.Weight == nil {
		return fallback
	}
	return *u.Weight
}

func (u ShipmentUpdate) requestsStatus(s parcel.ShipmentStatus) bool {
	return u.Status != nil && *u.Status == s
}

// checkArguments rejects unknown enum values and negative quantities.
func (u ShipmentUpdate) checkArguments() error {
	if u.Status != nil && !u.Status.IsValid() {
		return parcel.InvalidArgument("shipment_status", fmt.Sprintf("unknown status %d", *u.Status))
	}
	if u.FinanceStatus != nil && !u.FinanceStatus.IsValid() {
		return parcel.InvalidArgument("finance_status", fmt.Sprintf("unknown finance status %d", *u.FinanceStatus))
	}
	for _, q := range []struct {
		name  string
		value *decimal.Decimal
	}{
		{"weight", u.Weight},
		{"height", u.Height},
		{"width", u.Width},
		{"length", u.Length},
		{"weight_packaged", u.WeightPackaged},
		{"height_packaged", u.HeightPackaged},
		{"width_packaged", u.WidthPackaged},
		{"length_packaged", u.LengthPackaged},
		{"contains_liquid_fee", u.ContainsLiquidFee},
		{"is_fragile_fee", u.FragileFee},
		{"wooden_packaging_required_fee", u.WoodenPackagingFee},
		{"insurance_required_fee", u.InsuranceFee},
		{"item_count_check_required_fee", u.ItemCountCheckFee},
		{"domestic_shipping_fee", u.DomesticShippingFee},
	} {
		if q.value != nil && q.value.IsNegative() {
			return parcel.InvalidArgument(q.name, "must not be negative")
		}
	}
	return nil
}

// applyTo writes every sent field into s and returns the fields that
// actually changed, in declaration order.
func (u ShipmentUpdate) applyTo(s *parcel.Shipment) *parcel.ChangeSet {
	cs := &parcel.ChangeSet{}
	parcel.Track(cs, "shipment_status", &s.Status, u.Status)
	parcel.Track(cs, "finance_status", &s.FinanceStatus, u.FinanceStatus)

	parcel.TrackDecimal(cs, "weight", &s.Raw.Weight, u.Weight)
	parcel.TrackDecimal(cs, "height", &s.Raw.Height, u.Height)
	parcel.TrackDecimal(cs, "width", &s.Raw.Width, u.Width)
	parcel.TrackDecimal(cs, "length", &s.Raw.Length, u.Length)
	parcel.TrackDecimal(cs, "weight_packaged", &s.Packaged.Weight, u.WeightPackaged)
	parcel.TrackDecimal(cs, "height_packaged", &s.Packaged.Height, u.HeightPackaged)
	parcel.TrackDecimal(cs, "width_packaged", &s.Packaged.Width, u.WidthPackaged)
	parcel.TrackDecimal(cs, "length_packaged", &s.Packaged.Length, u.LengthPackaged)

	parcel.Track(cs, "contains_liquid", &s.ContainsLiquid, u.ContainsLiquid)
	parcel.TrackDecimal(cs, "contains_liquid_fee", &s.ContainsLiquidFee, u.ContainsLiquidFee)
	parcel.Track(cs, "is_fragile", &s.Fragile, u.Fragile)
	parcel.TrackDecimal(cs, "is_fragile_fee", &s.FragileFee, u.FragileFee)
	parcel.Track(cs, "wooden_packaging_required", &s.WoodenPackaging, u.WoodenPackaging)
	parcel.TrackDecimal(cs, "wooden_packaging_required_fee", &s.WoodenPackagingFee, u.WoodenPackagingFee)
	parcel.Track(cs, "insurance_required", &s.Insurance, u.Insurance)
	parcel.TrackDecimal(cs, "insurance_required_fee", &s.InsuranceFee, u.InsuranceFee)
	parcel.Track(cs, "item_count_check_required", &s.ItemCountCheck, u.ItemCountCheck)
	parcel.TrackDecimal(cs, "item_count_check_required_fee", &s.ItemCountCheckFee, u.ItemCountCheckFee)

	parcel.TrackDecimal(cs, "domestic_shipping_fee", &s.DomesticShippingFee, u.DomesticShippingFee)
	parcel.Track(cs, "note", &s.Note, u.Note)
	return cs
}

// =============================================================================
// PERSISTENCE PRIMITIVES - shared by Machine and Reconciler
// =============================================================================

// insertShipment creates s and logs a CREATE entry.
func insertShipment(ctx context.Context, tx parcel.Store, audit *parcel.AuditLog, actor parcel.UserID, s *parcel.Shipment) error {
	if err := tx.CreateShipment(ctx, s); err != nil {
		return err
	}
	_, err := audit.Record(ctx, actor, parcel.ObjectShipment, uint64(s.ID), parcel.ActionCreate, []parcel.FieldChange{
		{Field: "consignment_id", New: s.ConsignmentID},
		{Field: "code", New: s.Code},
		{Field: "shipment_status", New: s.Status},
		{Field: "finance_status", New: s.FinanceStatus},
	})
	return err
}

// saveShipment persists next and, when changes is non-empty, logs exactly
// one UPDATE entry.
func saveShipment(ctx context.Context, tx parcel.Store, audit *parcel.AuditLog, actor parcel.UserID, next *parcel.Shipment, changes *parcel.ChangeSet) error {
	if err := tx.SaveShipment(ctx, next); err != nil {
		return err
	}
	if changes.Empty() {
		return nil
	}
	_, err := audit.Record(ctx, actor, parcel.ObjectShipment, uint64(next.ID), parcel.ActionUpdate, changes.Changes())
	return err
}

// removeShipment deletes s and logs a DELETE entry.
func removeShipment(ctx context.Context, tx parcel.Store, audit *parcel.AuditLog, actor parcel.UserID, s parcel.Shipment) error {
	if err := tx.DeleteShipment(ctx, s.ID); err != nil {
		return err
	}
	_, err := audit.Record(ctx, actor, parcel.ObjectShipment, uint64(s.ID), parcel.ActionDelete, []parcel.FieldChange{
		{Field: "code", Old: s.Code},
		{Field: "shipment_status", Old: s.Status},
	})
	return err
}
