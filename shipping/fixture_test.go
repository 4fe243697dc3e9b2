package shipping_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/warp/parcel-engine/lock"
	"github.com/warp/parcel-engine/parcel"
	"github.com/warp/parcel-engine/parcel/store"
	"github.com/warp/parcel-engine/shipping"
)

const (
	ownerID parcel.UserID = 7
	staffID parcel.UserID = 2
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	t            *testing.T
	ctx          context.Context
	store        *store.Memory
	deps         parcel.Deps
	hook         *test.Hook
	machine      *shipping.Machine
	reconciler   *shipping.Reconciler
	consignments *shipping.Consignments
	fulfillments *shipping.Fulfillments
}

// newTestFixture seeds warehouse 1 (source, base fee 5), warehouse 2
// (destination, base fee 20) and address 1 owned by ownerID.
func newTestFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveWarehouse(ctx, parcel.Warehouse{ID: 1, Code: "GZ", BaseFee: dec("5")}))
	require.NoError(t, mem.SaveWarehouse(ctx, parcel.Warehouse{ID: 2, Code: "HN", BaseFee: dec("20"), IsDestination: true}))
	require.NoError(t, mem.SaveAddress(ctx, parcel.Address{ID: 1, UserID: ownerID, Name: "Lan", Phone: "0901", Address: "12 Hang Bac"}))

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	deps := parcel.Deps{
		Locker: lock.NewLocal(),
		Log:    logger,
		Now:    func() time.Time { return fixedNow },
	}
	return &fixture{
		t: t, ctx: ctx, store: mem, deps: deps, hook: hook,
		machine:      shipping.NewMachine(mem, deps),
		reconciler:   shipping.NewReconciler(mem, deps),
		consignments: shipping.NewConsignments(mem, deps),
		fulfillments: shipping.NewFulfillments(mem, deps),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T { return &v }

func (f *fixture) input(weight string, codes ...string) shipping.ConsignmentInput {
	return shipping.ConsignmentInput{
		UserID:            ownerID,
		SourceWarehouseID: 1,
		DestWarehouseID:   2,
		AddressID:         1,
		Raw:               parcel.Dimensions{Weight: dec(weight)},
		ProductName:       "tea",
		ForeignCodes:      codes,
	}
}

// consignment creates a consignment with one shipment per code and
// returns the created shipments in code order.
func (f *fixture) consignment(weight string, codes ...string) (*parcel.Consignment, []parcel.Shipment) {
	f.t.Helper()
	c, res, err := f.consignments.Create(f.ctx, f.input(weight, codes...), ownerID)
	require.NoError(f.t, err)
	return c, res.Created
}

func (f *fixture) credit(userID parcel.UserID, amount string) {
	f.t.Helper()
	require.NoError(f.t, f.store.WithTx(f.ctx, func(tx parcel.Store) error {
		_, err := parcel.NewLedger(tx, f.deps.Now).Credit(f.ctx, userID, dec(amount))
		return err
	}))
}

func (f *fixture) balance(userID parcel.UserID) decimal.Decimal {
	f.t.Helper()
	b, err := parcel.View(f.ctx, f.store, func(tx parcel.Store) (decimal.Decimal, error) {
		return parcel.NewLedger(tx, nil).Balance(f.ctx, userID)
	})
	require.NoError(f.t, err)
	return b
}

func (f *fixture) move(id parcel.ShipmentID, to parcel.ShipmentStatus) (*shipping.TransitionResult, error) {
	return f.machine.Transition(f.ctx, id, shipping.ShipmentUpdate{Status: ptr(to)}, staffID)
}

// walk advances a shipment one step at a time up to to.
func (f *fixture) walk(id parcel.ShipmentID, to parcel.ShipmentStatus) {
	f.t.Helper()
	s, err := f.machine.Get(f.ctx, id)
	require.NoError(f.t, err)
	for next := s.Status + 1; next <= to; next++ {
		_, err := f.move(id, next)
		require.NoError(f.t, err)
	}
}

func (f *fixture) logs(id parcel.ShipmentID) []parcel.ChangeLog {
	f.t.Helper()
	logs, err := parcel.View(f.ctx, f.store, func(tx parcel.Store) ([]parcel.ChangeLog, error) {
		return tx.ChangeLogs(f.ctx, parcel.ChangeLogFilter{ObjectType: parcel.ObjectShipment, ObjectID: uint64(id)})
	})
	require.NoError(f.t, err)
	return logs
}
