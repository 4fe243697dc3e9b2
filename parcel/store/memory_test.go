package store_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/parcel-engine/parcel"
	"github.com/warp/parcel-engine/parcel/store"
)

func newTestMemory(t *testing.T) *store.Memory {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SaveWarehouse(ctx, parcel.Warehouse{ID: 1, Code: "GZ"}))
	require.NoError(t, mem.SaveAddress(ctx, parcel.Address{ID: 1, UserID: 7, Name: "Lan"}))
	return mem
}

func TestMemory_FailedTxRestoresSnapshot(t *testing.T) {
	mem := newTestMemory(t)
	ctx := context.Background()

	err := mem.WithTx(ctx, func(tx parcel.Store) error {
		c := &parcel.Consignment{UserID: 7}
		if err := tx.CreateConsignment(ctx, c); err != nil {
			return err
		}
		return parcel.InvalidArgument("x", "abort")
	})
	require.Error(t, err)

	list, err := parcel.View(ctx, mem, func(tx parcel.Store) ([]parcel.Consignment, error) {
		return tx.ConsignmentsByUser(ctx, 7)
	})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemory_DuplicateShipmentCodeIsInvalidState(t *testing.T) {
	mem := newTestMemory(t)
	ctx := context.Background()

	err := mem.WithTx(ctx, func(tx parcel.Store) error {
		if err := tx.CreateShipment(ctx, &parcel.Shipment{ConsignmentID: 1, Code: "A"}); err != nil {
			return err
		}
		if err := tx.CreateShipment(ctx, &parcel.Shipment{ConsignmentID: 2, Code: "A"}); err != nil {
			return err
		}
		return tx.CreateShipment(ctx, &parcel.Shipment{ConsignmentID: 1, Code: "A"})
	})

	assert.ErrorIs(t, err, parcel.ErrInvalidState)
}

func TestMemory_OneFulfillmentPerShipment(t *testing.T) {
	mem := newTestMemory(t)
	ctx := context.Background()

	err := mem.WithTx(ctx, func(tx parcel.Store) error {
		if err := tx.CreateFulfillment(ctx, &parcel.Fulfillment{ShipmentID: 5}); err != nil {
			return err
		}
		return tx.CreateFulfillment(ctx, &parcel.Fulfillment{ShipmentID: 5})
	})

	assert.ErrorIs(t, err, parcel.ErrInvalidState)
}

func TestMemory_GetAddressScopedToOwner(t *testing.T) {
	mem := newTestMemory(t)
	ctx := context.Background()

	own, err := parcel.View(ctx, mem, func(tx parcel.Store) (*parcel.Address, error) {
		return tx.GetAddress(ctx, 7, 1)
	})
	require.NoError(t, err)
	require.NotNil(t, own)

	other, err := parcel.View(ctx, mem, func(tx parcel.Store) (*parcel.Address, error) {
		return tx.GetAddress(ctx, 8, 1)
	})
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestMemory_ReturnedValuesAreCopies(t *testing.T) {
	mem := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, mem.WithTx(ctx, func(tx parcel.Store) error {
		return tx.CreateUserFinance(ctx, &parcel.UserFinance{UserID: 7, Balance: decimal.NewFromInt(10)})
	}))

	require.NoError(t, mem.WithTx(ctx, func(tx parcel.Store) error {
		f, err := tx.GetUserFinance(ctx, 7)
		if err != nil {
			return err
		}
		f.Balance = decimal.NewFromInt(999)
		return nil
	}))

	f, err := parcel.View(ctx, mem, func(tx parcel.Store) (*parcel.UserFinance, error) {
		return tx.GetUserFinance(ctx, 7)
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(f.Balance))
}

func TestMemory_ChangeLogsNewestFirstWithLimit(t *testing.T) {
	mem := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, mem.WithTx(ctx, func(tx parcel.Store) error {
		for i := 0; i < 3; i++ {
			if err := tx.AppendChangeLog(ctx, &parcel.ChangeLog{ObjectType: parcel.ObjectShipment, ObjectID: 1}); err != nil {
				return err
			}
		}
		return nil
	}))

	logs, err := parcel.View(ctx, mem, func(tx parcel.Store) ([]parcel.ChangeLog, error) {
		return tx.ChangeLogs(ctx, parcel.ChangeLogFilter{ObjectID: 1, Limit: 2})
	})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, parcel.ChangeLogID(3), logs[0].ID)
	assert.Equal(t, parcel.ChangeLogID(2), logs[1].ID)
}

func TestMemory_CancelledContextIsUnavailable(t *testing.T) {
	mem := newTestMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := mem.WithTx(ctx, func(parcel.Store) error { return nil })

	assert.ErrorIs(t, err, parcel.ErrUnavailable)
}
