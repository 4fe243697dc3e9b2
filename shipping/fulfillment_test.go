package shipping_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/parcel-engine/parcel"
	"github.com/warp/parcel-engine/shipping"
)

func (f *fixture) requested() *parcel.Fulfillment {
	f.t.Helper()
	_, shipments := f.consignment("1", "CN-1")
	f.credit(ownerID, "100")
	f.walk(shipments[0].ID, parcel.StatusVNShipmentRequested)
	ful, err := f.fulfillments.ByShipment(f.ctx, shipments[0].ID)
	require.NoError(f.t, err)
	return ful
}

func TestFulfillments_StatusMovesForwardOnly(t *testing.T) {
	f := newTestFixture(t)
	ful := f.requested()

	got, err := f.fulfillments.Update(f.ctx, ful.ID, shipping.FulfillmentUpdate{Status: ptr(parcel.FulfillmentShipping)})
	require.NoError(t, err)
	assert.Equal(t, parcel.FulfillmentShipping, got.Status)

	_, err = f.fulfillments.Update(f.ctx, ful.ID, shipping.FulfillmentUpdate{Status: ptr(parcel.FulfillmentWaiting)})
	assert.ErrorIs(t, err, parcel.ErrInvalidState)

	got, err = f.fulfillments.Update(f.ctx, ful.ID, shipping.FulfillmentUpdate{Status: ptr(parcel.FulfillmentShipped)})
	require.NoError(t, err)
	assert.Equal(t, parcel.FulfillmentShipped, got.Status)
}

func TestFulfillments_ShippingTypeOnlyWhileWaiting(t *testing.T) {
	f := newTestFixture(t)
	ful := f.requested()

	got, err := f.fulfillments.Update(f.ctx, ful.ID, shipping.FulfillmentUpdate{ShippingType: ptr(parcel.ShippingGHTK)})
	require.NoError(t, err)
	assert.Equal(t, parcel.ShippingGHTK, got.ShippingType)

	_, err = f.fulfillments.Update(f.ctx, ful.ID, shipping.FulfillmentUpdate{Status: ptr(parcel.FulfillmentShipping)})
	require.NoError(t, err)

	_, err = f.fulfillments.Update(f.ctx, ful.ID, shipping.FulfillmentUpdate{ShippingType: ptr(parcel.ShippingVTPost)})
	assert.ErrorIs(t, err, parcel.ErrInvalidState)
}

func TestFulfillments_RejectsUnknownValues(t *testing.T) {
	f := newTestFixture(t)
	ful := f.requested()

	_, err := f.fulfillments.Update(f.ctx, ful.ID, shipping.FulfillmentUpdate{Status: ptr(parcel.FulfillmentStatus(7))})
	assert.ErrorIs(t, err, parcel.ErrInvalidArgument)

	_, err = f.fulfillments.Update(f.ctx, ful.ID, shipping.FulfillmentUpdate{ShippingType: ptr(parcel.ShippingType(-1))})
	assert.ErrorIs(t, err, parcel.ErrInvalidArgument)
}

func TestFulfillments_MissingIsNotFound(t *testing.T) {
	f := newTestFixture(t)

	_, err := f.fulfillments.Get(f.ctx, 3)
	assert.True(t, parcel.IsNotFound(err))

	_, err = f.fulfillments.Update(f.ctx, 3, shipping.FulfillmentUpdate{})
	assert.True(t, parcel.IsNotFound(err))
}
