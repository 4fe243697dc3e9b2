package shipping

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/warp/parcel-engine/parcel"
)

// =============================================================================
// FULFILLMENT FACTORY
// =============================================================================

// FulfillmentDraft is the input to NewFulfillment. Recipient fields are
// copied by value and never re-read from the address afterwards.
type FulfillmentDraft struct {
	ConsignmentID    parcel.ConsignmentID `validate:"required"`
	ShipmentID       parcel.ShipmentID    `validate:"required"`
	RecipientName    string               `validate:"required"`
	RecipientPhone   string               `validate:"required"`
	RecipientAddress string               `validate:"required"`
	Status           parcel.FulfillmentStatus
	ShippingType     parcel.ShippingType
}

// NewFulfillment builds an unsaved Fulfillment. It does no lookups; the
// caller has already checked that the shipment, consignment and address
// exist.
func NewFulfillment(d FulfillmentDraft) (*parcel.Fulfillment, error) {
	if err := parcel.Validate(d); err != nil {
		return nil, err
	}
	if !d.Status.IsValid() {
		return nil, parcel.InvalidArgument("status", fmt.Sprintf("unknown fulfillment status %d", d.Status))
	}
	if !d.ShippingType.IsValid() {
		return nil, parcel.InvalidArgument("shipping_type", fmt.Sprintf("unknown shipping type %d", d.ShippingType))
	}
	return &parcel.Fulfillment{
		ShipmentID:       d.ShipmentID,
		ConsignmentID:    d.ConsignmentID,
		RecipientName:    d.RecipientName,
		RecipientPhone:   d.RecipientPhone,
		RecipientAddress: d.RecipientAddress,
		Status:           d.Status,
		ShippingType:     d.ShippingType,
	}, nil
}

// =============================================================================
// FULFILLMENT UPDATES
// =============================================================================

type FulfillmentUpdate struct {
	Status       *parcel.FulfillmentStatus
	ShippingType *parcel.ShippingType
}

// Fulfillments moves a last-mile task through WAITING, SHIPPING and SHIPPED.
type Fulfillments struct {
	store parcel.TxStore
	deps  parcel.Deps
}

func NewFulfillments(store parcel.TxStore, deps parcel.Deps) *Fulfillments {
	return &Fulfillments{store: store, deps: deps.Defaults()}
}

func (f *Fulfillments) Get(ctx context.Context, id parcel.FulfillmentID) (*parcel.Fulfillment, error) {
	return parcel.View(ctx, f.store, func(tx parcel.Store) (*parcel.Fulfillment, error) {
		out, err := tx.GetFulfillment(ctx, id)
		if err == nil && out == nil {
			err = parcel.NotFound("fulfillment", id)
		}
		return out, err
	})
}

func (f *Fulfillments) ByShipment(ctx context.Context, id parcel.ShipmentID) (*parcel.Fulfillment, error) {
	return parcel.View(ctx, f.store, func(tx parcel.Store) (*parcel.Fulfillment, error) {
		out, err := tx.FulfillmentByShipment(ctx, id)
		if err == nil && out == nil {
			err = parcel.NotFound("fulfillment for shipment", id)
		}
		return out, err
	})
}

// Update applies u. Status only moves forward; the shipping type is fixed
// once the parcel has left the warehouse.
func (f *Fulfillments) Update(ctx context.Context, id parcel.FulfillmentID, u FulfillmentUpdate) (*parcel.Fulfillment, error) {
	var out *parcel.Fulfillment
	err := f.store.WithTx(ctx, func(tx parcel.Store) error {
		current, err := tx.GetFulfillment(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return parcel.NotFound("fulfillment", id)
		}

		next := *current
		if u.ShippingType != nil && *u.ShippingType != current.ShippingType {
			if !u.ShippingType.IsValid() {
				return parcel.InvalidArgument("shipping_type", fmt.Sprintf("unknown shipping type %d", *u.ShippingType))
			}
			if current.Status != parcel.FulfillmentWaiting {
				return &parcel.InvalidStateError{
					Entity: "fulfillment", ID: id, Field: "shipping_type",
					Reason:   "shipping type can only change while waiting",
					Expected: parcel.FulfillmentWaiting.String(), Actual: current.Status.String(),
				}
			}
			next.ShippingType = *u.ShippingType
		}
		if u.Status != nil && *u.Status != current.Status {
			if !u.Status.IsValid() {
				return parcel.InvalidArgument("status", fmt.Sprintf("unknown fulfillment status %d", *u.Status))
			}
			if *u.Status < current.Status {
				return &parcel.InvalidStateError{
					Entity: "fulfillment", ID: id, Field: "status",
					Reason:   "status cannot move backward",
					Expected: ">= " + current.Status.String(), Actual: u.Status.String(),
				}
			}
			next.Status = *u.Status
		}

		next.UpdatedAt = f.deps.Now()
		if err := tx.SaveFulfillment(ctx, &next); err != nil {
			return err
		}
		out = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	f.deps.Log.WithFields(logrus.Fields{
		"fulfillment_id": out.ID,
		"status":         out.Status.String(),
		"shipping_type":  out.ShippingType.String(),
	}).Info("fulfillment updated")
	return out, nil
}
