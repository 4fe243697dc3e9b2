/*
machine.go - Shipment status state machine

PURPOSE:
  Applies a desired-field update to one shipment. When the update moves
  the shipment from VN_RECEIVED to VN_SHIPMENT_REQUESTED, the machine
  also bills the owning user for last-mile delivery and spawns the
  fulfillment.

LIFECYCLE:
  FOREIGN_SHIPPING -> FOREIGN_STORE_RECEIVED -> VN_RECEIVED
    -> VN_SHIPMENT_REQUESTED -> VN_SHIPPED

  Status stays put or advances one step. Finance status only moves
  NOT_APPROVED -> APPROVED.

VALIDATION ORDER:
  1. shipment exists                                 NotFound
  2. FOREIGN_SHIPPING: effective weight > 0          InvalidState
  3. VN_RECEIVED and later: weight unchanged         InvalidState
  4. owning consignment exists                       NotFound
  5. arguments well formed, status step legal        InvalidArgument / InvalidState

SETTLEMENT (VN_RECEIVED -> VN_SHIPMENT_REQUESTED only):
  a. destination warehouse exists, base fee >= 0
  b. fee = base*weight + wooden + insurance + domestic
  c. ledger row of the consignment owner exists
  d. balance >= fee
  e. consignment address exists
  f. fulfillment WAITING / BUS_SHIPMENT from the address snapshot
  g. debit fee

ATOMICITY:
  Steps 1..g, the shipment write and the change log entry share one
  WithTx unit. Any failure leaves no fulfillment, no debit, no shipment
  change and no log entry.

SEE ALSO:
  - update.go: ShipmentUpdate and the shared persistence primitives
  - fee.go, fulfillment.go: the pure components invoked in a, b and f
*/
package shipping

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/parcel-engine/metrics"
	"github.com/warp/parcel-engine/parcel"
)

type Machine struct {
	store parcel.TxStore
	deps  parcel.Deps
}

func NewMachine(store parcel.TxStore, deps parcel.Deps) *Machine {
	return &Machine{store: store, deps: deps.Defaults()}
}

// TransitionResult is what a committed transition produced.
type TransitionResult struct {
	Shipment    parcel.Shipment
	From        parcel.ShipmentStatus
	Changes     []parcel.FieldChange
	Fulfillment *parcel.Fulfillment
	Fee         decimal.Decimal
	Balance     decimal.Decimal
}

func shipmentKey(id parcel.ShipmentID) string {
	return fmt.Sprintf("shipment:%d", id)
}

// Get returns a shipment or NotFound.
func (m *Machine) Get(ctx context.Context, id parcel.ShipmentID) (*parcel.Shipment, error) {
	return parcel.View(ctx, m.store, func(tx parcel.Store) (*parcel.Shipment, error) {
		s, err := tx.GetShipment(ctx, id)
		if err == nil && s == nil {
			err = parcel.NotFound("shipment", id)
		}
		return s, err
	})
}

// Transition applies u to shipment id on behalf of actor.
func (m *Machine) Transition(ctx context.Context, id parcel.ShipmentID, u ShipmentUpdate, actor parcel.UserID) (*TransitionResult, error) {
	release, err := m.deps.Acquire(ctx, shipmentKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	var res *TransitionResult
	err = m.store.WithTx(ctx, func(tx parcel.Store) error {
		var err error
		res, err = m.transition(ctx, tx, id, u, actor)
		return err
	})

	log := m.deps.Log.WithFields(logrus.Fields{
		"module":      "shipping",
		"shipment_id": id,
		"actor":       actor,
	})
	if err != nil {
		metrics.ShipmentRejectionsTotal.WithLabelValues(parcel.Kind(err)).Inc()
		log.WithField("kind", parcel.Kind(err)).Debug("shipment transition rejected: " + err.Error())
		return nil, err
	}

	metrics.ShipmentTransitionsTotal.WithLabelValues(res.From.String(), res.Shipment.Status.String()).Inc()
	if res.Fulfillment != nil {
		metrics.FulfillmentsCreatedTotal.Inc()
		metrics.LedgerOperationsTotal.WithLabelValues("debit").Inc()
		log = log.WithFields(logrus.Fields{
			"fulfillment_id": res.Fulfillment.ID,
			"fee":            res.Fee.String(),
			"balance":        res.Balance.String(),
		})
	}
	log.WithFields(logrus.Fields{
		"from":    res.From.String(),
		"to":      res.Shipment.Status.String(),
		"changed": len(res.Changes),
	}).Info("shipment updated")
	return res, nil
}

func (m *Machine) transition(ctx context.Context, tx parcel.Store, id parcel.ShipmentID, u ShipmentUpdate, actor parcel.UserID) (*TransitionResult, error) {
	current, err := tx.LockShipment(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, parcel.NotFound("shipment", id)
	}

	if err := checkWeight(current, u); err != nil {
		return nil, err
	}

	consignment, err := tx.GetConsignment(ctx, current.ConsignmentID)
	if err != nil {
		return nil, err
	}
	if consignment == nil {
		return nil, parcel.NotFound("consignment", current.ConsignmentID)
	}

	if err := u.checkArguments(); err != nil {
		return nil, err
	}
	if err := checkProgress(current, u); err != nil {
		return nil, err
	}

	res := &TransitionResult{From: current.Status}
	if current.Status == parcel.StatusVNReceived && u.requestsStatus(parcel.StatusVNShipmentRequested) {
		if err := m.requestDomesticShipment(ctx, tx, *current, *consignment, res); err != nil {
			return nil, err
		}
	}

	next := *current
	changes := u.applyTo(&next)
	next.UserID = consignment.UserID
	next.UpdatedAt = m.deps.Now()
	if err := saveShipment(ctx, tx, parcel.NewAuditLog(tx, m.deps.Now), actor, &next, changes); err != nil {
		return nil, err
	}

	res.Shipment = next
	res.Changes = changes.Changes()
	return res, nil
}

// requestDomesticShipment runs settlement steps a..g. The fee is computed
// from the persisted shipment and charged to the consignment owner, never
// to the actor.
func (m *Machine) requestDomesticShipment(ctx context.Context, tx parcel.Store, s parcel.Shipment, c parcel.Consignment, res *TransitionResult) error {
	warehouse, err := tx.GetWarehouse(ctx, c.DestWarehouseID)
	if err != nil {
		return err
	}
	if warehouse == nil {
		return parcel.NotFound("warehouse", c.DestWarehouseID)
	}
	if warehouse.BaseFee.IsNegative() {
		return &parcel.InvalidStateError{
			Entity: "warehouse", ID: warehouse.ID, Field: "base_fee",
			Reason:   "base fee is not valid",
			Expected: ">= 0", Actual: warehouse.BaseFee.String(),
		}
	}

	fee, err := FeeFor(*warehouse, s)
	if err != nil {
		return err
	}

	ledger := parcel.NewLedger(tx, m.deps.Now)
	balance, err := ledger.Balance(ctx, c.UserID)
	if err != nil {
		return err
	}
	if balance.LessThan(fee) {
		return &parcel.InsufficientFundsError{UserID: c.UserID, Balance: balance, Required: fee}
	}

	addr, err := tx.GetAddress(ctx, c.UserID, c.AddressID)
	if err != nil {
		return err
	}
	if addr == nil {
		return parcel.NotFound("address", c.AddressID)
	}

	f, err := NewFulfillment(FulfillmentDraft{
		ConsignmentID:    c.ID,
		ShipmentID:       s.ID,
		RecipientName:    addr.Name,
		RecipientPhone:   addr.Phone,
		RecipientAddress: addr.Address,
		Status:           parcel.FulfillmentWaiting,
		ShippingType:     parcel.ShippingBus,
	})
	if err != nil {
		return err
	}
	if err := tx.CreateFulfillment(ctx, f); err != nil {
		return err
	}

	after, err := ledger.Debit(ctx, c.UserID, fee)
	if err != nil {
		return err
	}

	res.Fulfillment = f
	res.Fee = fee
	res.Balance = after
	return nil
}

func checkWeight(current *parcel.Shipment, u ShipmentUpdate) error {
	switch {
	case current.Status == parcel.StatusForeignShipping:
		w := u.weightOr(current.Raw.Weight)
		if !w.IsPositive() {
			return &parcel.InvalidStateError{
				Entity: "shipment", ID: current.ID, Field: "weight",
				Reason:   "weight must be positive",
				Expected: "> 0", Actual: w.String(),
			}
		}
	case current.Status.WeightFrozen():
		if u.Weight != nil && !u.Weight.Equal(current.Raw.Weight) {
			return &parcel.InvalidStateError{
				Entity: "shipment", ID: current.ID, Field: "weight",
				Reason:   "weight is immutable in current status " + current.Status.String(),
				Expected: current.Raw.Weight.String(), Actual: u.Weight.String(),
			}
		}
	}
	return nil
}

func checkProgress(current *parcel.Shipment, u ShipmentUpdate) error {
	if u.Status != nil {
		to := *u.Status
		if to < current.Status {
			return &parcel.InvalidStateError{
				Entity: "shipment", ID: current.ID, Field: "shipment_status",
				Reason:   "status cannot move backward",
				Expected: ">= " + current.Status.String(), Actual: to.String(),
			}
		}
		if to > current.Status+1 {
			return &parcel.InvalidStateError{
				Entity: "shipment", ID: current.ID, Field: "shipment_status",
				Reason:   "status cannot skip a step",
				Expected: (current.Status + 1).String(), Actual: to.String(),
			}
		}
	}
	if u.FinanceStatus != nil && current.FinanceStatus == parcel.FinanceApproved && *u.FinanceStatus != parcel.FinanceApproved {
		return &parcel.InvalidStateError{
			Entity: "shipment", ID: current.ID, Field: "finance_status",
			Reason:   "finance approval cannot be revoked",
			Expected: parcel.FinanceApproved.String(), Actual: u.FinanceStatus.String(),
		}
	}
	return nil
}
