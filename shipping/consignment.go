package shipping

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/parcel-engine/parcel"
)

// ConsignmentInput carries the user-editable consignment fields plus the
// desired foreign tracking codes.
type ConsignmentInput struct {
	UserID            parcel.UserID      `validate:"required"`
	SourceWarehouseID parcel.WarehouseID `validate:"required"`
	DestWarehouseID   parcel.WarehouseID `validate:"required"`
	AddressID         parcel.AddressID   `validate:"required"`

	Raw                 parcel.Dimensions
	Packaged            parcel.Dimensions
	Surcharges          parcel.Surcharges
	DomesticShippingFee decimal.Decimal

	ProductCategoryID uint64
	ProductName       string `validate:"max=255"`
	NumberOfPackages  int    `validate:"gte=0"`

	ForeignCodes []string `validate:"dive,max=128"`
}

func (in ConsignmentInput) attributes() ShipmentAttributes {
	return ShipmentAttributes{
		Raw:                 in.Raw,
		Packaged:            in.Packaged,
		Surcharges:          in.Surcharges,
		DomesticShippingFee: in.DomesticShippingFee,
	}
}

// Consignments creates and edits consignments together with their
// shipments. Each call is one unit of work.
type Consignments struct {
	store parcel.TxStore
	deps  parcel.Deps
}

func NewConsignments(store parcel.TxStore, deps parcel.Deps) *Consignments {
	return &Consignments{store: store, deps: deps.Defaults()}
}

func (s *Consignments) Get(ctx context.Context, id parcel.ConsignmentID) (*parcel.Consignment, error) {
	return parcel.View(ctx, s.store, func(tx parcel.Store) (*parcel.Consignment, error) {
		c, err := tx.GetConsignment(ctx, id)
		if err == nil && c == nil {
			err = parcel.NotFound("consignment", id)
		}
		return c, err
	})
}

func (s *Consignments) ListByUser(ctx context.Context, userID parcel.UserID) ([]parcel.Consignment, error) {
	return parcel.View(ctx, s.store, func(tx parcel.Store) ([]parcel.Consignment, error) {
		return tx.ConsignmentsByUser(ctx, userID)
	})
}

func (s *Consignments) Shipments(ctx context.Context, id parcel.ConsignmentID) ([]parcel.Shipment, error) {
	return parcel.View(ctx, s.store, func(tx parcel.Store) ([]parcel.Shipment, error) {
		return tx.ShipmentsByConsignment(ctx, id)
	})
}

// Create stores a consignment and one FOREIGN_SHIPPING shipment per code.
func (s *Consignments) Create(ctx context.Context, in ConsignmentInput, actor parcel.UserID) (*parcel.Consignment, *ReconcileResult, error) {
	if err := parcel.Validate(in); err != nil {
		return nil, nil, err
	}

	var (
		out *parcel.Consignment
		res *ReconcileResult
	)
	err := s.store.WithTx(ctx, func(tx parcel.Store) error {
		src, dst, err := warehouses(ctx, tx, in.SourceWarehouseID, in.DestWarehouseID)
		if err != nil {
			return err
		}
		addr, err := tx.GetAddress(ctx, in.UserID, in.AddressID)
		if err != nil {
			return err
		}
		if addr == nil {
			return parcel.NotFound("address", in.AddressID)
		}

		now := s.deps.Now()
		c := &parcel.Consignment{
			UserID:            in.UserID,
			SourceWarehouseID: src.ID,
			DestWarehouseID:   dst.ID,
			CreatedAt:         now,
			UpdatedAt:         now,
			Code:              fmt.Sprintf("%s-%s-%d%d", src.Code, dst.Code, in.UserID, now.UnixMilli()),
		}
		applyInput(c, in, addr)
		if err := tx.CreateConsignment(ctx, c); err != nil {
			return err
		}

		res, err = reconcile(ctx, tx, s.deps, *c, in.ForeignCodes, in.attributes(), actor, MergeCodes)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.deps.Log.WithFields(logrus.Fields{
		"module":         "shipping",
		"consignment_id": out.ID,
		"code":           out.Code,
		"shipments":      len(res.Created),
	}).Info("consignment created")
	return out, res, nil
}

// Update rewrites the consignment fields. When codes are given, shipments
// are reconciled in mode. The owner cannot change.
func (s *Consignments) Update(ctx context.Context, id parcel.ConsignmentID, in ConsignmentInput, actor parcel.UserID, mode ReconcileMode) (*parcel.Consignment, *ReconcileResult, error) {
	release, err := s.deps.Acquire(ctx, consignmentKey(id))
	if err != nil {
		return nil, nil, err
	}
	defer release()

	var (
		out *parcel.Consignment
		res = &ReconcileResult{}
	)
	err = s.store.WithTx(ctx, func(tx parcel.Store) error {
		c, err := tx.GetConsignment(ctx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return parcel.NotFound("consignment", id)
		}
		in.UserID = c.UserID
		if err := parcel.Validate(in); err != nil {
			return err
		}

		if _, _, err := warehouses(ctx, tx, in.SourceWarehouseID, in.DestWarehouseID); err != nil {
			return err
		}
		addr, err := tx.GetAddress(ctx, c.UserID, in.AddressID)
		if err != nil {
			return err
		}
		if addr == nil {
			return parcel.NotFound("address", in.AddressID)
		}

		c.SourceWarehouseID = in.SourceWarehouseID
		c.DestWarehouseID = in.DestWarehouseID
		applyInput(c, in, addr)
		c.UpdatedAt = s.deps.Now()
		if err := tx.SaveConsignment(ctx, c); err != nil {
			return err
		}

		if len(in.ForeignCodes) > 0 {
			res, err = reconcile(ctx, tx, s.deps, *c, in.ForeignCodes, in.attributes(), actor, mode)
			if err != nil {
				return err
			}
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.deps.Log.WithFields(logrus.Fields{
		"module":         "shipping",
		"consignment_id": out.ID,
		"mode":           mode.String(),
		"created":        len(res.Created),
		"updated":        len(res.Updated),
		"removed":        len(res.Removed),
	}).Info("consignment updated")
	return out, res, nil
}

func warehouses(ctx context.Context, tx parcel.Store, srcID, dstID parcel.WarehouseID) (*parcel.Warehouse, *parcel.Warehouse, error) {
	src, err := tx.GetWarehouse(ctx, srcID)
	if err != nil {
		return nil, nil, err
	}
	if src == nil {
		return nil, nil, parcel.NotFound("warehouse", srcID)
	}
	dst, err := tx.GetWarehouse(ctx, dstID)
	if err != nil {
		return nil, nil, err
	}
	if dst == nil {
		return nil, nil, parcel.NotFound("warehouse", dstID)
	}
	return src, dst, nil
}

func applyInput(c *parcel.Consignment, in ConsignmentInput, addr *parcel.Address) {
	c.AddressID = addr.ID
	c.ShippingName = addr.Name
	c.ShippingPhone = addr.Phone
	c.ShippingAddress = addr.Address
	c.Raw = in.Raw
	c.Packaged = in.Packaged
	c.Surcharges = in.Surcharges
	c.DomesticShippingFee = in.DomesticShippingFee
	c.ProductCategoryID = in.ProductCategoryID
	c.ProductName = in.ProductName
	c.NumberOfPackages = in.NumberOfPackages
	if c.NumberOfPackages == 0 {
		c.NumberOfPackages = 1
	}
}
