package shipping_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/parcel-engine/parcel"
	"github.com/warp/parcel-engine/shipping"
)

// =============================================================================
// STATUS ORDER
// =============================================================================

func TestTransition_AdvancesOneStepAndLogsUpdate(t *testing.T) {
	f := newTestFixture(t)
	_, shipments := f.consignment("2", "CN-1")
	id := shipments[0].ID

	res, err := f.move(id, parcel.StatusForeignStoreReceived)

	require.NoError(t, err)
	assert.Equal(t, parcel.StatusForeignShipping, res.From)
	assert.Equal(t, parcel.StatusForeignStoreReceived, res.Shipment.Status)
	assert.Nil(t, res.Fulfillment)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, "shipment_status", res.Changes[0].Field)

	logs := f.logs(id)
	require.Len(t, logs, 2)
	assert.Equal(t, parcel.ActionUpdate, logs[0].Action)
	assert.Equal(t, staffID, logs[0].UserID)
	assert.Equal(t, fixedNow, logs[0].CreatedAt)
}

func TestTransition_RejectsSkipAndBackward(t *testing.T) {
	f := newTestFixture(t)
	_, shipments := f.consignment("2", "CN-1")
	id := shipments[0].ID

	_, err := f.move(id, parcel.StatusVNReceived)
	assert.ErrorIs(t, err, parcel.ErrInvalidState, "skip")

	f.walk(id, parcel.StatusVNReceived)
	_, err = f.move(id, parcel.StatusForeignStoreReceived)
	assert.ErrorIs(t, err, parcel.ErrInvalidState, "backward")

	s, err := f.machine.Get(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, parcel.StatusVNReceived, s.Status)
}

func TestTransition_SameStatusWithFieldEdits(t *testing.T) {
	f := newTestFixture(t)
	_, shipments := f.consignment("2", "CN-1")
	id := shipments[0].ID

	res, err := f.machine.Transition(f.ctx, id, shipping.ShipmentUpdate{
		Status: ptr(parcel.StatusForeignShipping),
		Note:   ptr("fragile corner"),
		Height: ptr(dec("30")),
	}, staffID)

	require.NoError(t, err)
	assert.Equal(t, "fragile corner", res.Shipment.Note)
	assert.Equal(t, []string{"height", "note"}, fieldNames(res.Changes))
}

func TestTransition_NoChangeWritesNoLog(t *testing.T) {
	f := newTestFixture(t)
	_, shipments := f.consignment("2", "CN-1")
	id := shipments[0].ID

	res, err := f.machine.Transition(f.ctx, id, shipping.ShipmentUpdate{Weight: ptr(dec("2.000"))}, staffID)

	require.NoError(t, err)
	assert.Empty(t, res.Changes)
	assert.Len(t, f.logs(id), 1, "only the CREATE entry")
}

func TestTransition_MissingShipmentIsNotFound(t *testing.T) {
	f := newTestFixture(t)
	_, err := f.move(99, parcel.StatusForeignStoreReceived)
	assert.True(t, parcel.IsNotFound(err))
}

func TestTransition_RejectsUnknownEnumsAndNegatives(t *testing.T) {
	f := newTestFixture(t)
	_, shipments := f.consignment("2", "CN-1")
	id := shipments[0].ID

	for name, u := range map[string]shipping.ShipmentUpdate{
		"status":         {Status: ptr(parcel.ShipmentStatus(9))},
		"finance status": {FinanceStatus: ptr(parcel.FinanceStatus(5))},
		"negative fee":   {InsuranceFee: ptr(dec("-1"))},
		"negative size":  {LengthPackaged: ptr(dec("-0.1"))},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.machine.Transition(f.ctx, id, u, staffID)
			assert.ErrorIs(t, err, parcel.ErrInvalidArgument)
		})
	}
}

// =============================================================================
// WEIGHT RULES
// =============================================================================

func TestTransition_ForeignShippingNeedsPositiveWeight(t *testing.T) {
	f := newTestFixture(t)
	_, shipments := f.consignment("0", "CN-1")
	id := shipments[0].ID

	_, err := f.move(id, parcel.StatusForeignStoreReceived)
	assert.ErrorIs(t, err, parcel.ErrInvalidState)

	res, err := f.machine.Transition(f.ctx, id, shipping.ShipmentUpdate{
		Status: ptr(parcel.StatusForeignStoreReceived),
		Weight: ptr(dec("1.5")),
	}, staffID)
	require.NoError(t, err)
	assert.True(t, dec("1.5").Equal(res.Shipment.Raw.Weight))
}

func TestTransition_WeightEditableAtForeignStore(t *testing.T) {
	f := newTestFixture(t)
	_, shipments := f.consignment("2", "CN-1")
	id := shipments[0].ID
	f.walk(id, parcel.StatusForeignStoreReceived)

	res, err := f.machine.Transition(f.ctx, id, shipping.ShipmentUpdate{Weight: ptr(dec("3"))}, staffID)

	require.NoError(t, err)
	assert.True(t, dec("3").Equal(res.Shipment.Raw.Weight))
}

func TestTransition_WeightFrozenFromVNReceived(t *testing.T) {
	f := newTestFixture(t)
	_, shipments := f.consignment("2", "CN-1")
	id := shipments[0].ID
	f.walk(id, parcel.StatusVNReceived)

	_, err := f.machine.Transition(f.ctx, id, shipping.ShipmentUpdate{Weight: ptr(dec("2.5"))}, staffID)
	var invalid *parcel.InvalidStateError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "weight", invalid.Field)

	// Resending the current weight is not an edit.
	_, err = f.machine.Transition(f.ctx, id, shipping.ShipmentUpdate{Weight: ptr(dec("2")), Note: ptr("ok")}, staffID)
	assert.NoError(t, err)
}

// =============================================================================
// FINANCE STATUS
// =============================================================================

func TestTransition_FinanceApprovalCannotBeRevoked(t *testing.T) {
	f := newTestFixture(t)
	_, shipments := f.consignment("2", "CN-1")
	id := shipments[0].ID

	_, err := f.machine.Transition(f.ctx, id, shipping.ShipmentUpdate{FinanceStatus: ptr(parcel.FinanceApproved)}, staffID)
	require.NoError(t, err)

	_, err = f.machine.Transition(f.ctx, id, shipping.ShipmentUpdate{FinanceStatus: ptr(parcel.FinanceNotApproved)}, staffID)
	assert.ErrorIs(t, err, parcel.ErrInvalidState)

	_, err = f.machine.Transition(f.ctx, id, shipping.ShipmentUpdate{FinanceStatus: ptr(parcel.FinanceApproved)}, staffID)
	assert.NoError(t, err)
}

// =============================================================================
// DOMESTIC SHIPMENT REQUEST
// =============================================================================

func TestTransition_RequestCreatesFulfillmentAndDebits(t *testing.T) {
	// GIVEN: weight 2 to a base-fee-20 warehouse, wooden packaging 3, balance 100
	f := newTestFixture(t)
	_, shipments := f.consignment("2", "CN-1")
	id := shipments[0].ID
	f.walk(id, parcel.StatusVNReceived)
	_, err := f.machine.Transition(f.ctx, id, shipping.ShipmentUpdate{WoodenPackaging: ptr(true), WoodenPackagingFee: ptr(dec("3"))}, staffID)
	require.NoError(t, err)
	f.credit(ownerID, "100")

	// WHEN
	res, err := f.move(id, parcel.StatusVNShipmentRequested)

	// THEN: fee 43 debited from the consignment owner, fulfillment from the address snapshot
	require.NoError(t, err)
	require.NotNil(t, res.Fulfillment)
	assert.True(t, dec("43").Equal(res.Fee), "fee %s", res.Fee)
	assert.True(t, dec("57").Equal(res.Balance))
	assert.True(t, dec("57").Equal(f.balance(ownerID)))

	ful, err := f.fulfillments.ByShipment(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, res.Fulfillment.ID, ful.ID)
	assert.Equal(t, parcel.FulfillmentWaiting, ful.Status)
	assert.Equal(t, parcel.ShippingBus, ful.ShippingType)
	assert.Equal(t, "Lan", ful.RecipientName)
	assert.Equal(t, "0901", ful.RecipientPhone)
	assert.Equal(t, "12 Hang Bac", ful.RecipientAddress)
}

func TestTransition_InsufficientFundsLeavesNoTrace(t *testing.T) {
	f := newTestFixture(t)
	_, shipments := f.consignment("2", "CN-1")
	id := shipments[0].ID
	f.walk(id, parcel.StatusVNReceived)
	f.credit(ownerID, "39.99")
	logsBefore := len(f.logs(id))

	_, err := f.move(id, parcel.StatusVNShipmentRequested)

	var insufficient *parcel.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, ownerID, insufficient.UserID)
	assert.True(t, dec("40").Equal(insufficient.Required))

	s, err := f.machine.Get(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, parcel.StatusVNReceived, s.Status)
	assert.True(t, dec("39.99").Equal(f.balance(ownerID)))
	assert.Len(t, f.logs(id), logsBefore)
	_, err = f.fulfillments.ByShipment(f.ctx, id)
	assert.True(t, parcel.IsNotFound(err))
}

func TestTransition_DebitAtTheBalanceBoundary(t *testing.T) {
	// base 10, weight 5, wooden 2, insurance 3, domestic 1: fee 56
	for name, tc := range map[string]struct {
		balance string
		ok      bool
		after   string
	}{
		"exact balance succeeds": {balance: "56", ok: true, after: "0"},
		"one short fails":        {balance: "55", ok: false, after: "55"},
	} {
		t.Run(name, func(t *testing.T) {
			// GIVEN: a destination warehouse with base fee 10 and a
			// weight-5 shipment carrying wooden, insurance and domestic fees
			f := newTestFixture(t)
			require.NoError(t, f.store.SaveWarehouse(f.ctx, parcel.Warehouse{ID: 2, Code: "HN", BaseFee: dec("10"), IsDestination: true}))
			_, shipments := f.consignment("5", "CN-1")
			id := shipments[0].ID
			f.walk(id, parcel.StatusVNReceived)
			_, err := f.machine.Transition(f.ctx, id, shipping.ShipmentUpdate{
				WoodenPackaging: ptr(true), WoodenPackagingFee: ptr(dec("2")),
				Insurance: ptr(true), InsuranceFee: ptr(dec("3")),
				DomesticShippingFee: ptr(dec("1")),
			}, staffID)
			require.NoError(t, err)
			f.credit(ownerID, tc.balance)

			// WHEN
			res, err := f.move(id, parcel.StatusVNShipmentRequested)

			// THEN
			if tc.ok {
				require.NoError(t, err)
				assert.True(t, dec("56").Equal(res.Fee), "fee %s", res.Fee)
			} else {
				var insufficient *parcel.InsufficientFundsError
				require.ErrorAs(t, err, &insufficient)
				assert.True(t, dec("56").Equal(insufficient.Required))
			}
			assert.True(t, dec(tc.after).Equal(f.balance(ownerID)), "balance %s", f.balance(ownerID))
		})
	}
}

func TestTransition_RequestWithoutLedgerRowIsNotFound(t *testing.T) {
	f := newTestFixture(t)
	_, shipments := f.consignment("2", "CN-1")
	id := shipments[0].ID
	f.walk(id, parcel.StatusVNReceived)

	_, err := f.move(id, parcel.StatusVNShipmentRequested)

	var nf *parcel.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "user finance", nf.Entity)
}

func TestTransition_FeeUsesPersistedWeight(t *testing.T) {
	// A weight sent alongside the request is rejected as an edit, so the
	// fee can only ever be computed from what is stored.
	f := newTestFixture(t)
	_, shipments := f.consignment("2", "CN-1")
	id := shipments[0].ID
	f.walk(id, parcel.StatusVNReceived)
	f.credit(ownerID, "1000")

	_, err := f.machine.Transition(f.ctx, id, shipping.ShipmentUpdate{
		Status: ptr(parcel.StatusVNShipmentRequested),
		Weight: ptr(dec("0.1")),
	}, staffID)
	assert.ErrorIs(t, err, parcel.ErrInvalidState)
	assert.True(t, dec("1000").Equal(f.balance(ownerID)))
}

func TestTransition_ShippedAfterRequest(t *testing.T) {
	f := newTestFixture(t)
	_, shipments := f.consignment("1", "CN-1")
	id := shipments[0].ID
	f.credit(ownerID, "100")
	f.walk(id, parcel.StatusVNShipped)

	s, err := f.machine.Get(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, parcel.StatusVNShipped, s.Status)
	assert.True(t, dec("80").Equal(f.balance(ownerID)))

	_, err = f.move(id, parcel.StatusVNShipped)
	assert.NoError(t, err, "staying in the last status is allowed")
}

func TestTransition_ConcurrentRequestsNeverOverdraw(t *testing.T) {
	// GIVEN: two shipments costing 40 each and a balance of 60
	f := newTestFixture(t)
	_, shipments := f.consignment("2", "CN-1", "CN-2")
	require.Len(t, shipments, 2)
	for _, s := range shipments {
		f.walk(s.ID, parcel.StatusVNReceived)
	}
	f.credit(ownerID, "60")

	// WHEN: both are requested at once
	var wg sync.WaitGroup
	errs := make([]error, len(shipments))
	for i, s := range shipments {
		wg.Add(1)
		go func(i int, id parcel.ShipmentID) {
			defer wg.Done()
			_, errs[i] = f.move(id, parcel.StatusVNShipmentRequested)
		}(i, s.ID)
	}
	wg.Wait()

	// THEN: exactly one wins
	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, parcel.ErrInsufficientFunds):
			short++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.True(t, dec("20").Equal(f.balance(ownerID)))
}

func TestTransition_DenormalizedOwnerFollowsConsignment(t *testing.T) {
	f := newTestFixture(t)
	_, shipments := f.consignment("2", "CN-1")
	id := shipments[0].ID

	// Corrupt the denormalized owner directly in storage.
	require.NoError(t, f.store.WithTx(f.ctx, func(tx parcel.Store) error {
		s, err := tx.GetShipment(f.ctx, id)
		if err != nil {
			return err
		}
		s.UserID = 99
		return tx.SaveShipment(f.ctx, s)
	}))

	res, err := f.machine.Transition(f.ctx, id, shipping.ShipmentUpdate{Note: ptr("x")}, staffID)

	require.NoError(t, err)
	assert.Equal(t, ownerID, res.Shipment.UserID)
}

func fieldNames(changes []parcel.FieldChange) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.Field
	}
	return out
}
