package shipping

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/parcel-engine/metrics"
	"github.com/warp/parcel-engine/parcel"
)

// ReconcileMode decides what happens to shipments whose code is no longer
// in the desired set.
type ReconcileMode int

const (
	// MergeCodes creates missing codes, updates matching ones and leaves
	// the rest untouched.
	MergeCodes ReconcileMode = iota
	// ReplaceCodes additionally deletes shipments whose code was dropped.
	// Only shipments still in FOREIGN_SHIPPING can be deleted.
	ReplaceCodes
)

func (m ReconcileMode) String() string {
	if m == ReplaceCodes {
		return "replace"
	}
	return "merge"
}

// ShipmentAttributes are the consignment-level values copied onto every
// shipment of the consignment.
type ShipmentAttributes struct {
	Raw                 parcel.Dimensions
	Packaged            parcel.Dimensions
	Surcharges          parcel.Surcharges
	DomesticShippingFee decimal.Decimal
}

// AttributesOf extracts the shared shipment attributes of c.
func AttributesOf(c parcel.Consignment) ShipmentAttributes {
	return ShipmentAttributes{
		Raw:                 c.Raw,
		Packaged:            c.Packaged,
		Surcharges:          c.Surcharges,
		DomesticShippingFee: c.DomesticShippingFee,
	}
}

// asUpdate sends every attribute; status fields stay nil.
func (a ShipmentAttributes) asUpdate() ShipmentUpdate {
	sc := a.Surcharges
	return ShipmentUpdate{
		Weight:              &a.Raw.Weight,
		Height:              &a.Raw.Height,
		Width:               &a.Raw.Width,
		Length:              &a.Raw.Length,
		WeightPackaged:      &a.Packaged.Weight,
		HeightPackaged:      &a.Packaged.Height,
		WidthPackaged:       &a.Packaged.Width,
		LengthPackaged:      &a.Packaged.Length,
		ContainsLiquid:      &sc.ContainsLiquid,
		ContainsLiquidFee:   &sc.ContainsLiquidFee,
		Fragile:             &sc.Fragile,
		FragileFee:          &sc.FragileFee,
		WoodenPackaging:     &sc.WoodenPackaging,
		WoodenPackagingFee:  &sc.WoodenPackagingFee,
		Insurance:           &sc.Insurance,
		InsuranceFee:        &sc.InsuranceFee,
		ItemCountCheck:      &sc.ItemCountCheck,
		ItemCountCheckFee:   &sc.ItemCountCheckFee,
		DomesticShippingFee: &a.DomesticShippingFee,
	}
}

// ReconcileResult lists what happened to each shipment.
type ReconcileResult struct {
	Created   []parcel.Shipment
	Updated   []parcel.Shipment
	Unchanged []parcel.Shipment
	// Retained are shipments whose code was not desired but were kept.
	Retained []parcel.Shipment
	Removed  []parcel.Shipment
}

// Reconciler aligns a consignment's shipments with its foreign codes. It
// uses the same create and update primitives as Machine but never runs
// transition logic, so statuses are never touched.
type Reconciler struct {
	store parcel.TxStore
	deps  parcel.Deps
}

func NewReconciler(store parcel.TxStore, deps parcel.Deps) *Reconciler {
	return &Reconciler{store: store, deps: deps.Defaults()}
}

func consignmentKey(id parcel.ConsignmentID) string {
	return fmt.Sprintf("consignment:%d", id)
}

func (r *Reconciler) Reconcile(ctx context.Context, id parcel.ConsignmentID, codes []string, attrs ShipmentAttributes, actor parcel.UserID, mode ReconcileMode) (*ReconcileResult, error) {
	release, err := r.deps.Acquire(ctx, consignmentKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	var res *ReconcileResult
	err = r.store.WithTx(ctx, func(tx parcel.Store) error {
		c, err := tx.GetConsignment(ctx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return parcel.NotFound("consignment", id)
		}
		res, err = reconcile(ctx, tx, r.deps, *c, codes, attrs, actor, mode)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.record(id, mode, res)
	return res, nil
}

func (r *Reconciler) record(id parcel.ConsignmentID, mode ReconcileMode, res *ReconcileResult) {
	metrics.ReconciledShipmentsTotal.WithLabelValues("created").Add(float64(len(res.Created)))
	metrics.ReconciledShipmentsTotal.WithLabelValues("updated").Add(float64(len(res.Updated)))
	metrics.ReconciledShipmentsTotal.WithLabelValues("removed").Add(float64(len(res.Removed)))
	r.deps.Log.WithFields(logrus.Fields{
		"module":         "shipping",
		"consignment_id": id,
		"mode":           mode.String(),
		"created":        len(res.Created),
		"updated":        len(res.Updated),
		"retained":       len(res.Retained),
		"removed":        len(res.Removed),
	}).Info("consignment shipments reconciled")
}

// reconcile runs inside the caller's transaction.
func reconcile(ctx context.Context, tx parcel.Store, deps parcel.Deps, c parcel.Consignment, codes []string, attrs ShipmentAttributes, actor parcel.UserID, mode ReconcileMode) (*ReconcileResult, error) {
	desired, err := normalizeCodes(codes)
	if err != nil {
		return nil, err
	}
	if err := attrs.asUpdate().checkArguments(); err != nil {
		return nil, err
	}

	existing, err := lockShipments(ctx, tx, c.ID)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]parcel.Shipment, len(existing))
	for _, s := range existing {
		byCode[s.Code] = s
	}

	audit := parcel.NewAuditLog(tx, deps.Now)
	res := &ReconcileResult{}

	wanted := make(map[string]bool, len(desired))
	for _, code := range desired {
		wanted[code] = true
	}
	for _, s := range existing {
		if wanted[s.Code] {
			continue
		}
		if mode != ReplaceCodes {
			res.Retained = append(res.Retained, s)
			continue
		}
		if s.Status.PastInitial() {
			return nil, &parcel.InvalidStateError{
				Entity: "shipment", ID: s.ID, Field: "shipment_status",
				Reason:   "shipment " + s.Code + " has progressed and cannot be removed",
				Expected: parcel.StatusForeignShipping.String(), Actual: s.Status.String(),
			}
		}
		if err := removeShipment(ctx, tx, audit, actor, s); err != nil {
			return nil, err
		}
		res.Removed = append(res.Removed, s)
	}

	for _, code := range desired {
		current, ok := byCode[code]
		if !ok {
			s := &parcel.Shipment{
				ConsignmentID:       c.ID,
				UserID:              c.UserID,
				Code:                code,
				Status:              parcel.StatusForeignShipping,
				FinanceStatus:       parcel.FinanceNotApproved,
				Raw:                 attrs.Raw,
				Packaged:            attrs.Packaged,
				Surcharges:          attrs.Surcharges,
				DomesticShippingFee: attrs.DomesticShippingFee,
			}
			if err := insertShipment(ctx, tx, audit, actor, s); err != nil {
				return nil, err
			}
			res.Created = append(res.Created, *s)
			continue
		}

		u := attrs.asUpdate()
		if current.Status.WeightFrozen() {
			u.Weight = nil
		}
		next := current
		changes := u.applyTo(&next)
		next.UserID = c.UserID
		if changes.Empty() && next.UserID == current.UserID {
			res.Unchanged = append(res.Unchanged, current)
			continue
		}
		next.UpdatedAt = deps.Now()
		if err := saveShipment(ctx, tx, audit, actor, &next, changes); err != nil {
			return nil, err
		}
		res.Updated = append(res.Updated, next)
	}
	return res, nil
}

// lockShipments lists the consignment's shipments and re-reads each one
// under its row lock, in id order. A concurrent transition on any of them
// either commits first and is seen here, or waits for this unit.
func lockShipments(ctx context.Context, tx parcel.Store, id parcel.ConsignmentID) ([]parcel.Shipment, error) {
	listed, err := tx.ShipmentsByConsignment(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]parcel.Shipment, 0, len(listed))
	for _, s := range listed {
		locked, err := tx.LockShipment(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		if locked == nil {
			continue
		}
		out = append(out, *locked)
	}
	return out, nil
}

// normalizeCodes trims, rejects blanks and drops duplicates, keeping the
// first occurrence.
func normalizeCodes(codes []string) ([]string, error) {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for i, raw := range codes {
		code := strings.TrimSpace(raw)
		if code == "" {
			return nil, parcel.InvalidArgument(fmt.Sprintf("foreign_shipment_codes[%d]", i), "must not be blank")
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out, nil
}
