package shipping_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/parcel-engine/parcel"
	"github.com/warp/parcel-engine/shipping"
)

func TestConsignments_CreateSnapshotsAddressAndSpawnsShipments(t *testing.T) {
	f := newTestFixture(t)

	c, res, err := f.consignments.Create(f.ctx, f.input("2", "A", "B"), ownerID)

	require.NoError(t, err)
	assert.NotZero(t, c.ID)
	assert.Equal(t, "Lan", c.ShippingName)
	assert.Equal(t, "12 Hang Bac", c.ShippingAddress)
	assert.Equal(t, 1, c.NumberOfPackages)
	assert.Contains(t, c.Code, "GZ-HN-7")
	require.Len(t, res.Created, 2)
	for _, s := range res.Created {
		assert.Equal(t, parcel.StatusForeignShipping, s.Status)
		assert.Equal(t, parcel.FinanceNotApproved, s.FinanceStatus)
		assert.Equal(t, ownerID, s.UserID)
		assert.True(t, dec("2").Equal(s.Raw.Weight))
	}
}

func TestConsignments_CreateRejectsForeignAddress(t *testing.T) {
	f := newTestFixture(t)
	in := f.input("2", "A")
	in.UserID = 8

	_, _, err := f.consignments.Create(f.ctx, in, 8)

	var nf *parcel.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "address", nf.Entity)
}

func TestConsignments_CreateRejectsUnknownWarehouse(t *testing.T) {
	f := newTestFixture(t)
	in := f.input("2", "A")
	in.DestWarehouseID = 9

	_, _, err := f.consignments.Create(f.ctx, in, ownerID)

	assert.True(t, parcel.IsNotFound(err))
	list, err := f.consignments.ListByUser(f.ctx, ownerID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestConsignments_CreateValidatesInput(t *testing.T) {
	f := newTestFixture(t)
	in := f.input("2", "A")
	in.AddressID = 0

	_, _, err := f.consignments.Create(f.ctx, in, ownerID)

	assert.ErrorIs(t, err, parcel.ErrInvalidArgument)
}

func TestConsignments_UpdateKeepsOwnerAndReconciles(t *testing.T) {
	f := newTestFixture(t)
	c, _ := f.consignment("2", "A")

	in := f.input("3", "A", "B")
	in.UserID = 8
	in.ProductName = "porcelain"
	updated, res, err := f.consignments.Update(f.ctx, c.ID, in, ownerID, shipping.ReplaceCodes)

	require.NoError(t, err)
	assert.Equal(t, ownerID, updated.UserID)
	assert.Equal(t, "porcelain", updated.ProductName)
	assert.Equal(t, []string{"B"}, codes(res.Created))
	assert.Equal(t, []string{"A"}, codes(res.Updated))
}

func TestConsignments_UpdateWithoutCodesLeavesShipments(t *testing.T) {
	f := newTestFixture(t)
	c, created := f.consignment("2", "A")

	_, res, err := f.consignments.Update(f.ctx, c.ID, f.input("9"), ownerID, shipping.ReplaceCodes)

	require.NoError(t, err)
	assert.Empty(t, res.Removed)
	s, err := f.machine.Get(f.ctx, created[0].ID)
	require.NoError(t, err)
	assert.True(t, dec("2").Equal(s.Raw.Weight))
}

func TestConsignments_GetMissing(t *testing.T) {
	f := newTestFixture(t)
	_, err := f.consignments.Get(f.ctx, 5)
	assert.True(t, parcel.IsNotFound(err))
}
